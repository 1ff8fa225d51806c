package scenetools

import (
	"regexp"
	"strconv"
	"strings"
)

// 场景数边界：1..20，所有入口统一用这一对常量
const (
	MinSceneCount     = 1
	MaxSceneCount     = 20
	DefaultSceneCount = 3
)

var digitsRe = regexp.MustCompile(`\d+`)

// 英/俄数量词 → 数字
var numberWords = map[string]int{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
	"одна": 1, "один": 1, "две": 2, "два": 2, "три": 3,
	"четыре": 4, "пять": 5, "шесть": 6, "семь": 7,
	"восемь": 8, "девять": 9, "десять": 10,
}

// ExtractSceneCount 从用户文本中提取期望的场景数
// 先找阿拉伯数字（"5 scenes"、"5 сцен"），再找数量词（"five scenes"、"пять сцен"），
// 都没有则返回默认值；结果统一收敛到 [MinSceneCount, MaxSceneCount]
func ExtractSceneCount(text string) int {
	if m := digitsRe.FindString(text); m != "" {
		if n, err := strconv.Atoi(m); err == nil {
			return ClampSceneCount(n)
		}
	}

	lowered := strings.ToLower(text)
	for _, word := range regexp.MustCompile(`[\p{L}]+`).FindAllString(lowered, -1) {
		if n, ok := numberWords[word]; ok {
			return ClampSceneCount(n)
		}
	}

	return DefaultSceneCount
}

// ClampSceneCount 收敛场景数到允许的区间
func ClampSceneCount(n int) int {
	if n < MinSceneCount {
		return MinSceneCount
	}
	if n > MaxSceneCount {
		return MaxSceneCount
	}
	return n
}
