package scenetools

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/TAMAKQR/KONTENTZAVOD/internal/model/pipeline"
)

// Translator 提示词翻译器
// 翻译是尽力而为的三级降级：一次 JSON 批量 LLM 调用 → 内置词典逐词替换 →
// 保留原文。任何一级都不允许把提示词清空
type Translator struct {
	llm    LLMProvider
	target string // 目标语言代码，如 "ru"
}

// NewTranslator 创建翻译器；target 为空时翻译整体关闭
func NewTranslator(llm LLMProvider, target string) *Translator {
	return &Translator{llm: llm, target: target}
}

// Enabled 翻译是否开启
func (t *Translator) Enabled() bool {
	return t.target != ""
}

// sceneText 批量翻译的传输结构
type sceneText struct {
	Prompt     string `json:"prompt"`
	Atmosphere string `json:"atmosphere"`
}

// TranslateScenes 批量翻译场景的提示词和氛围
// 全部场景合并为一次 JSON 调用；解析失败退词典；
// 翻译结果为空的字段恢复翻译前的文本
func (t *Translator) TranslateScenes(ctx context.Context, scenes []pipeline.Scene) []pipeline.Scene {
	if !t.Enabled() || len(scenes) == 0 {
		return scenes
	}

	out := make([]pipeline.Scene, len(scenes))
	copy(out, scenes)

	translated := t.translateBatch(ctx, scenes)
	for i := range out {
		var tr sceneText
		if translated != nil && i < len(translated) {
			tr = translated[i]
		}
		out[i].Prompt = pickTranslated(tr.Prompt, out[i].Prompt)
		out[i].Atmosphere = pickTranslated(tr.Atmosphere, out[i].Atmosphere)
	}
	return out
}

// pickTranslated LLM 译文非空时采用；否则走词典；词典结果为空保留原文
func pickTranslated(candidate, original string) string {
	if c := strings.TrimSpace(candidate); c != "" {
		return c
	}
	if viaDict := dictionaryTranslate(original); strings.TrimSpace(viaDict) != "" {
		return viaDict
	}
	return original
}

// TranslateText 翻译单段文本，同样的降级阶梯
func (t *Translator) TranslateText(ctx context.Context, text string) string {
	if !t.Enabled() || strings.TrimSpace(text) == "" {
		return text
	}

	if t.llm != nil {
		prompt := fmt.Sprintf(
			"Translate the following text to %s. Return ONLY a JSON array with one string, no commentary.\n\n[%q]",
			t.target, text)
		resp, err := t.llm.Generate(ctx, prompt)
		if err == nil {
			var arr []string
			if span := ExtractJSONSpan(resp); span != "" {
				if json.Unmarshal([]byte(span), &arr) == nil && len(arr) > 0 && strings.TrimSpace(arr[0]) != "" {
					return strings.TrimSpace(arr[0])
				}
			}
		} else {
			log.Warn().Err(err).Msg("翻译调用失败，退词典替换")
		}
	}

	if viaDict := dictionaryTranslate(text); strings.TrimSpace(viaDict) != "" {
		return viaDict
	}
	return text
}

// translateBatch 一次 LLM 调用翻译全部场景的提示词和氛围；失败返回 nil
func (t *Translator) translateBatch(ctx context.Context, scenes []pipeline.Scene) []sceneText {
	if t.llm == nil {
		return nil
	}

	items := make([]sceneText, len(scenes))
	for i, sc := range scenes {
		items[i] = sceneText{Prompt: sc.Prompt, Atmosphere: sc.Atmosphere}
	}
	payload, err := json.Marshal(items)
	if err != nil {
		return nil
	}

	prompt := fmt.Sprintf(
		`Translate the "prompt" and "atmosphere" values of each object in the following JSON array to %s. `+
			"Return ONLY a JSON array of objects with the same fields in the same order, no commentary.\n\n%s",
		t.target, string(payload))

	resp, err := t.llm.Generate(ctx, prompt)
	if err != nil {
		log.Warn().Err(err).Msg("批量翻译调用失败，退词典替换")
		return nil
	}

	span := ExtractJSONSpan(resp)
	if span == "" {
		return nil
	}

	var arr []sceneText
	if err := json.Unmarshal([]byte(span), &arr); err != nil {
		return nil
	}
	if len(arr) != len(scenes) {
		log.Warn().Int("want", len(scenes)).Int("got", len(arr)).Msg("批量翻译数量不匹配，退词典替换")
		return nil
	}
	return arr
}

// 内置英→俄词典（多词条目在前，先长后短替换）
var dictionaryPairs = [][2]string{
	{"slow motion", "замедленная съёмка"},
	{"close-up", "крупный план"},
	{"wide shot", "общий план"},
	{"lighthouse", "маяк"},
	{"cinematic", "кинематографичный"},
	{"dramatic", "драматичный"},
	{"climax", "кульминация"},
	{"focus", "фокус"},
	{"sunrise", "рассвет"},
	{"sunset", "закат"},
	{"mountains", "горы"},
	{"forest", "лес"},
	{"storm", "шторм"},
	{"waves", "волны"},
	{"night", "ночь"},
	{"light", "свет"},
	{"beam", "луч"},
	{"cliff", "скала"},
	{"rain", "дождь"},
	{"wind", "ветер"},
	{"city", "город"},
	{"fire", "огонь"},
	{"water", "вода"},
	{"snow", "снег"},
	{"sea", "море"},
	{"sky", "небо"},
}

var dictionaryRes = func() []struct {
	re  *regexp.Regexp
	sub string
} {
	out := make([]struct {
		re  *regexp.Regexp
		sub string
	}, 0, len(dictionaryPairs))
	for _, p := range dictionaryPairs {
		out = append(out, struct {
			re  *regexp.Regexp
			sub string
		}{regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(p[0]) + `\b`), p[1]})
	}
	return out
}()

// dictionaryTranslate 逐词替换的降级翻译
func dictionaryTranslate(text string) string {
	out := text
	for _, d := range dictionaryRes {
		out = d.re.ReplaceAllString(out, d.sub)
	}
	return out
}
