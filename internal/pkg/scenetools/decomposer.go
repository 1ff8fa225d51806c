package scenetools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/TAMAKQR/KONTENTZAVOD/internal/model/pipeline"
)

// Decomposer 场景拆解器
// 把一个创意描述拆成固定数量的场景提示词。LLM 是首选路径，
// 但它的输出只是建议：数量修复和确定性兜底保证下游永远拿到
// 恰好 sceneCount 个场景
type Decomposer struct {
	llm        LLMProvider
	translator *Translator // 可选的翻译后置步骤
}

// Decomposition 拆解结果
type Decomposition struct {
	EnhancedConcept string
	Scenes          []pipeline.Scene
}

// NewDecomposer 创建场景拆解器；translator 可为 nil
func NewDecomposer(llm LLMProvider, translator *Translator) *Decomposer {
	return &Decomposer{llm: llm, translator: translator}
}

// Decompose 把创意拆成恰好 sceneCount 个场景
// LLM 路径失败（调用失败、JSON 不可解析、全部场景为空）时
// 落到确定性的机位轮换兜底；结果数量永远等于 sceneCount
func (d *Decomposer) Decompose(ctx context.Context, concept string, sceneCount, durationPerScene int) (*Decomposition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sceneCount = ClampSceneCount(sceneCount)

	enhanced := d.enhanceConcept(ctx, concept)

	scenes := d.decomposeWithLLM(ctx, enhanced, sceneCount, durationPerScene)
	if scenes == nil {
		log.Info().Str("concept", concept).Int("count", sceneCount).Msg("LLM 拆解不可用，使用机位轮换兜底")
		scenes = FallbackScenes(concept, sceneCount, durationPerScene)
	} else {
		scenes = repairScenes(scenes, concept, sceneCount, durationPerScene)
	}

	if d.translator != nil && d.translator.Enabled() {
		scenes = d.translator.TranslateScenes(ctx, scenes)
		enhanced = d.translator.TranslateText(ctx, enhanced)
	}

	return &Decomposition{
		EnhancedConcept: enhanced,
		Scenes:          scenes,
	}, nil
}

// enhanceConcept 创意预增强，尽力而为：失败保留原文
func (d *Decomposer) enhanceConcept(ctx context.Context, concept string) string {
	if d.llm == nil {
		return concept
	}

	prompt := fmt.Sprintf(
		"Improve this short video description: make it vivid and concrete, keep it under two sentences. "+
			"Reply with the improved description only, no commentary.\n\n%s", concept)

	resp, err := d.llm.Generate(ctx, prompt)
	if err != nil || strings.TrimSpace(resp) == "" {
		if err != nil {
			log.Warn().Err(err).Msg("创意增强调用失败，保留原始描述")
		}
		return concept
	}
	return strings.TrimSpace(resp)
}

// sceneJSON LLM 返回的场景结构
type sceneJSON struct {
	ID         int    `json:"id"`
	Prompt     string `json:"prompt"`
	Duration   int    `json:"duration"`
	Atmosphere string `json:"atmosphere"`
}

// decomposeWithLLM LLM 拆解路径；任何失败返回 nil 让调用方兜底
func (d *Decomposer) decomposeWithLLM(ctx context.Context, concept string, sceneCount, durationPerScene int) []pipeline.Scene {
	if d.llm == nil {
		return nil
	}

	prompt := fmt.Sprintf(
		"You are a video production planner. Break the concept below into exactly %d scenes.\n"+
			"Return ONLY a JSON array of objects with fields: "+
			`"id" (integer 1..%d), "prompt" (detailed visual description of the shot), `+
			`"duration" (always %d), "atmosphere" (one-word mood).`+"\n"+
			"Scene order: an opening establishing shot first, then detail shots, "+
			"then a progression that ends on a closing shot. No commentary, no markdown.\n\n"+
			"Concept: %s",
		sceneCount, sceneCount, durationPerScene, concept)

	resp, err := d.llm.Generate(ctx, prompt)
	if err != nil {
		log.Warn().Err(err).Msg("场景拆解调用失败")
		return nil
	}

	span := ExtractJSONSpan(resp)
	if span == "" {
		log.Warn().Msg("场景拆解回复中没有可用的 JSON")
		return nil
	}

	var raw []sceneJSON
	if err := json.Unmarshal([]byte(span), &raw); err != nil {
		log.Warn().Err(err).Msg("场景拆解 JSON 解析失败")
		return nil
	}

	scenes := make([]pipeline.Scene, 0, len(raw))
	for _, r := range raw {
		if strings.TrimSpace(r.Prompt) == "" {
			continue
		}
		atmosphere := strings.TrimSpace(r.Atmosphere)
		if atmosphere == "" {
			atmosphere = "cinematic"
		}
		scenes = append(scenes, pipeline.Scene{
			ID:         r.ID,
			Prompt:     strings.TrimSpace(r.Prompt),
			Duration:   durationPerScene,
			Atmosphere: atmosphere,
		})
	}

	if len(scenes) == 0 {
		return nil
	}
	return scenes
}

// repairScenes 数量修复：补齐用原始创意加机位后缀，超出截断；
// 最后统一重排 id 为 1..N 并强制时长
func repairScenes(scenes []pipeline.Scene, concept string, sceneCount, durationPerScene int) []pipeline.Scene {
	if len(scenes) > sceneCount {
		scenes = scenes[:sceneCount]
	}
	for i := len(scenes); i < sceneCount; i++ {
		scenes = append(scenes, pipeline.Scene{
			Prompt:     fmt.Sprintf("%s - угол %d", concept, i+1),
			Atmosphere: "cinematic",
		})
	}
	for i := range scenes {
		scenes[i].ID = i + 1
		scenes[i].Duration = durationPerScene
	}
	return scenes
}

// 兜底机位轮换：六种取景模板循环使用
var fallbackVariations = []struct {
	template string
	mood     string
}{
	{"Общий план: %s, кинематографичное освещение, плавное движение камеры", "cinematic"},
	{"Крупный план деталей: %s, драматичное освещение", "dramatic"},
	{"Динамичный кадр в движении: %s, энергичная камера", "cinematic"},
	{"Акцент на главном объекте: %s, малая глубина резкости", "focus"},
	{"Панорамный вид: %s, масштаб и пространство", "cinematic"},
	{"Финальный кадр: %s, кульминация и завершение", "climax"},
}

// FallbackScenes 确定性兜底拆解
// 不依赖任何外部调用：同样的输入永远产出同样的场景序列
func FallbackScenes(concept string, sceneCount, durationPerScene int) []pipeline.Scene {
	sceneCount = ClampSceneCount(sceneCount)
	scenes := make([]pipeline.Scene, sceneCount)
	for i := 0; i < sceneCount; i++ {
		v := fallbackVariations[i%len(fallbackVariations)]
		scenes[i] = pipeline.Scene{
			ID:         i + 1,
			Prompt:     fmt.Sprintf(v.template, concept),
			Duration:   durationPerScene,
			Atmosphere: v.mood,
		}
	}
	return scenes
}
