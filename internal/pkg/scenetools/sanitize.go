package scenetools

import (
	"regexp"
	"strings"

	"github.com/go-ego/gse"
)

// Sanitizer 提示词脱敏与简化器
// 生成后端的内容安全过滤命中后，用固定替换表把容易触发过滤的
// 措辞换成中性表达后重试；替换表是确定的，同样输入永远得到同样输出
type Sanitizer struct {
	substitutions []substitution
	segmenter     *gse.Segmenter // gse 分词器，用于按词边界截断
}

type substitution struct {
	pattern     *regexp.Regexp
	replacement string
}

// NewSanitizer 创建脱敏器
func NewSanitizer() *Sanitizer {
	pairs := [][2]string{
		// 英文
		{"blood", "red liquid"},
		{"gore", "dramatic detail"},
		{"weapon", "prop"},
		{"gun", "prop device"},
		{"knife", "tool"},
		{"kill", "stop"},
		{"dead body", "still figure"},
		{"corpse", "figure"},
		{"naked", "dressed"},
		{"nude", "clothed"},
		{"violence", "intense action"},
		{"celebrity", "person"},
		{"famous person", "person"},
		// 俄文
		{"кровь", "красная жидкость"},
		{"оружие", "реквизит"},
		{"убийство", "столкновение"},
		{"труп", "неподвижная фигура"},
		{"драка", "противостояние"},
		{"голый", "одетый"},
		{"знаменитость", "человек"},
	}

	subs := make([]substitution, 0, len(pairs))
	for _, p := range pairs {
		subs = append(subs, substitution{
			pattern:     regexp.MustCompile(`(?i)` + regexp.QuoteMeta(p[0])),
			replacement: p[1],
		})
	}

	// 初始化失败时降级为按字符截断
	var segmenter *gse.Segmenter
	if seg, err := gse.New(); err == nil {
		segmenter = &seg
	}

	return &Sanitizer{
		substitutions: subs,
		segmenter:     segmenter,
	}
}

// Sanitize 按替换表脱敏提示词（大小写不敏感）
func (s *Sanitizer) Sanitize(prompt string) string {
	out := prompt
	for _, sub := range s.substitutions {
		out = sub.pattern.ReplaceAllString(out, sub.replacement)
	}
	return cleanSpaces(out)
}

var (
	parentheticalRe = regexp.MustCompile(`\([^)]*\)`)
	positionalRe    = regexp.MustCompile(`(?i)(scene\s+\d+\s+of\s+\d+|сцена\s+\d+\s+из\s+\d+)[,.:;]?`)
	cameraPrefixRe  = regexp.MustCompile(`(?i)^\s*(camera|close-up|wide shot|камера|крупный план|общий план)\s*:\s*`)
	spacesRe        = regexp.MustCompile(`\s+`)
)

// Simplify 简化提示词：去掉位置性/元信息措辞，保留描述核心，
// 再截断到 maxLen 个字符；截断走词边界，CJK 文本不会被切在词中间
func (s *Sanitizer) Simplify(prompt string, maxLen int) string {
	out := cameraPrefixRe.ReplaceAllString(prompt, "")
	out = positionalRe.ReplaceAllString(out, "")
	out = parentheticalRe.ReplaceAllString(out, "")
	out = cleanSpaces(out)

	if maxLen > 0 {
		out = s.truncateAtWordBoundary(out, maxLen)
	}
	return out
}

// truncateAtWordBoundary 按词边界截断到最多 maxLen 个 rune
// 有空格的文本退到最后一个空格；连续书写的 CJK 文本用 gse 分词去掉被切断的尾词
func (s *Sanitizer) truncateAtWordBoundary(text string, maxLen int) string {
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	cut := string(runes[:maxLen])

	if idx := strings.LastIndex(cut, " "); idx > 0 {
		return strings.TrimSpace(cut[:idx])
	}

	if s.segmenter != nil {
		words := s.segmenter.Cut(cut, false)
		if len(words) > 1 {
			return strings.TrimSpace(strings.Join(words[:len(words)-1], ""))
		}
	}

	return strings.TrimSpace(cut)
}

func cleanSpaces(text string) string {
	return strings.TrimSpace(spacesRe.ReplaceAllString(text, " "))
}
