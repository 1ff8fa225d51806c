package scenetools

import (
	"strings"
)

// ExtractJSONSpan 从大模型的回复中提取第一个完整的 JSON 值
// 模型经常在 JSON 前后附带解释文字或 markdown 代码块围栏，
// 这里扫描第一个 '[' 或 '{'，按括号配对找到对应的闭合位置
// 单个对象会被包装成单元素数组，方便上层统一按数组解析
// 找不到可用的 JSON 时返回空字符串
func ExtractJSONSpan(text string) string {
	// 去掉 markdown 围栏
	text = stripCodeFences(text)

	start := -1
	var open, close byte
	for i := 0; i < len(text); i++ {
		if text[i] == '[' {
			start, open, close = i, '[', ']'
			break
		}
		if text[i] == '{' {
			start, open, close = i, '{', '}'
			break
		}
	}
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				span := text[start : i+1]
				if open == '{' {
					// 单个对象包装成数组
					return "[" + span + "]"
				}
				return span
			}
		}
	}

	return ""
}

// stripCodeFences 去掉 ```json ... ``` 这类 markdown 围栏
func stripCodeFences(text string) string {
	if !strings.Contains(text, "```") {
		return text
	}
	var b strings.Builder
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}
