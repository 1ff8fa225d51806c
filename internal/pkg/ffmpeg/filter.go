package ffmpeg

import (
	"fmt"
	"strings"
)

// DefaultTransition 相邻片段叠化时长（秒）
const DefaultTransition = 0.5

// XfadeOffsets 计算每个 xfade 转场的起始偏移
// 第 i 个转场（从 1 开始计）的偏移 = 前 i 个片段的累计时长 - i*fade，
// 即前一个片段的尾部与后一个片段的头部在 fade 秒内重叠
func XfadeOffsets(durations []float64, fade float64) []float64 {
	if len(durations) < 2 {
		return nil
	}
	offsets := make([]float64, 0, len(durations)-1)
	cumulative := 0.0
	for i := 0; i < len(durations)-1; i++ {
		cumulative += durations[i]
		offsets = append(offsets, cumulative-float64(i+1)*fade)
	}
	return offsets
}

// TotalDuration 叠化合成后的总时长
// n 个片段有 n-1 个转场，每个转场吃掉 fade 秒
func TotalDuration(durations []float64, fade float64) float64 {
	total := 0.0
	for _, d := range durations {
		total += d
	}
	if len(durations) > 1 {
		total -= float64(len(durations)-1) * fade
	}
	return total
}

// BuildXfadeFilter 构建叠化转场的 filter_complex
// 返回滤镜表达式和最终的视频/音频输出标签
func BuildXfadeFilter(durations []float64, fade float64, withAudio bool) (filter, vLabel, aLabel string) {
	offsets := XfadeOffsets(durations, fade)
	var parts []string

	prev := "[0:v]"
	for i, offset := range offsets {
		out := fmt.Sprintf("[v%d]", i+1)
		parts = append(parts, fmt.Sprintf(
			"%s[%d:v]xfade=transition=fade:duration=%.2f:offset=%.2f%s",
			prev, i+1, fade, offset, out))
		prev = out
	}
	vLabel = prev

	if withAudio {
		prevA := "[0:a]"
		for i := 1; i < len(durations); i++ {
			out := fmt.Sprintf("[a%d]", i)
			parts = append(parts, fmt.Sprintf("%s[%d:a]acrossfade=d=%.2f%s", prevA, i, fade, out))
			prevA = out
		}
		aLabel = prevA
	}

	return strings.Join(parts, ";"), vLabel, aLabel
}

// BuildConcatFilter 构建硬切拼接的 filter_complex
func BuildConcatFilter(n int, withAudio bool) (filter, vLabel, aLabel string) {
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "[%d:v]", i)
		if withAudio {
			fmt.Fprintf(&b, "[%d:a]", i)
		}
	}
	if withAudio {
		fmt.Fprintf(&b, "concat=n=%d:v=1:a=1[vout][aout]", n)
		return b.String(), "[vout]", "[aout]"
	}
	fmt.Fprintf(&b, "concat=n=%d:v=1:a=0[vout]", n)
	return b.String(), "[vout]", ""
}
