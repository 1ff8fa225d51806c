package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// Client FFmpeg 客户端
// 封装 ffmpeg/ffprobe 命令调用
type Client struct {
	ffmpegPath  string // FFmpeg 可执行文件路径（默认: ffmpeg）
	ffprobePath string // FFprobe 可执行文件路径（默认: ffprobe）
}

// NewClient 创建 FFmpeg 客户端
func NewClient() *Client {
	ffmpegPath := os.Getenv("FFMPEG_PATH")
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}

	ffprobePath := os.Getenv("FFPROBE_PATH")
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}

	return &Client{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
	}
}

// ProbeInfo 视频探测信息
type ProbeInfo struct {
	Width    int     // 宽度
	Height   int     // 高度
	FPS      float64 // 帧率
	Duration float64 // 时长（秒）
	HasAudio bool    // 是否携带音频流
}

// ffprobe -of json 的输出结构
type probeOutput struct {
	Streams []struct {
		CodecType  string `json:"codec_type"`
		Width      int    `json:"width"`
		Height     int    `json:"height"`
		RFrameRate string `json:"r_frame_rate"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe 探测视频文件
// 文件缺失或不是合法视频时返回错误，调用方据此跳过坏片段
func (c *Client) Probe(ctx context.Context, path string) (*ProbeInfo, error) {
	cmd := exec.CommandContext(ctx, c.ffprobePath,
		"-v", "error",
		"-show_entries", "stream=codec_type,width,height,r_frame_rate",
		"-show_entries", "format=duration",
		"-of", "json",
		path,
	)

	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	var parsed probeOutput
	if err := json.Unmarshal(output, &parsed); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}

	info := &ProbeInfo{}
	for _, s := range parsed.Streams {
		switch s.CodecType {
		case "video":
			info.Width = s.Width
			info.Height = s.Height
			info.FPS = parseFrameRate(s.RFrameRate)
		case "audio":
			info.HasAudio = true
		}
	}

	if parsed.Format.Duration != "" {
		if d, err := strconv.ParseFloat(parsed.Format.Duration, 64); err == nil {
			info.Duration = d
		}
	}

	if info.Width == 0 || info.Duration <= 0 {
		return nil, fmt.Errorf("no usable video stream in %s", path)
	}

	return info, nil
}

// parseFrameRate 解析 "30000/1001" 形式的帧率
func parseFrameRate(s string) float64 {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 {
		return 0
	}
	num, err1 := strconv.ParseFloat(parts[0], 64)
	den, err2 := strconv.ParseFloat(parts[1], 64)
	if err1 != nil || err2 != nil || den == 0 {
		return 0
	}
	return num / den
}

// CrossFade 用 xfade 链将多个片段叠化合成为一个视频
// durations 与 inputs 一一对应；withAudio 为真时同时做 acrossfade
func (c *Client) CrossFade(ctx context.Context, inputs []string, durations []float64, withAudio bool, fps int, outputPath string) error {
	if len(inputs) < 2 {
		return fmt.Errorf("cross-fade requires at least 2 inputs, got %d", len(inputs))
	}
	if len(inputs) != len(durations) {
		return fmt.Errorf("inputs/durations length mismatch: %d vs %d", len(inputs), len(durations))
	}

	filter, vLabel, aLabel := BuildXfadeFilter(durations, DefaultTransition, withAudio)

	args := []string{"-y"}
	for _, in := range inputs {
		args = append(args, "-i", in)
	}
	args = append(args, "-filter_complex", filter, "-map", vLabel)
	if withAudio {
		args = append(args, "-map", aLabel, "-c:a", "aac", "-b:a", "160k")
	} else {
		args = append(args, "-an")
	}
	args = append(args, encodeArgs(fps)...)
	args = append(args, outputPath)

	if err := c.run(ctx, args); err != nil {
		return fmt.Errorf("ffmpeg xfade failed: %w", err)
	}

	log.Info().
		Int("count", len(inputs)).
		Float64("total_duration", TotalDuration(durations, DefaultTransition)).
		Str("output", outputPath).
		Msg("叠化合成完成")
	return nil
}

// Concat 硬切拼接多个片段（重新编码，统一参数）
func (c *Client) Concat(ctx context.Context, inputs []string, withAudio bool, fps int, outputPath string) error {
	if len(inputs) < 2 {
		return fmt.Errorf("concat requires at least 2 inputs, got %d", len(inputs))
	}

	filter, vLabel, aLabel := BuildConcatFilter(len(inputs), withAudio)

	args := []string{"-y"}
	for _, in := range inputs {
		args = append(args, "-i", in)
	}
	args = append(args, "-filter_complex", filter, "-map", vLabel)
	if withAudio {
		args = append(args, "-map", aLabel, "-c:a", "aac", "-b:a", "160k")
	} else {
		args = append(args, "-an")
	}
	args = append(args, encodeArgs(fps)...)
	args = append(args, outputPath)

	if err := c.run(ctx, args); err != nil {
		return fmt.Errorf("ffmpeg concat failed: %w", err)
	}

	log.Info().Int("count", len(inputs)).Str("output", outputPath).Msg("硬切拼接完成")
	return nil
}

// Reencode 单个片段按目标参数重新编码
func (c *Client) Reencode(ctx context.Context, inputPath string, fps int, outputPath string) error {
	args := []string{"-y", "-i", inputPath}
	args = append(args, encodeArgs(fps)...)
	args = append(args, "-c:a", "aac", "-b:a", "160k", outputPath)

	if err := c.run(ctx, args); err != nil {
		return fmt.Errorf("ffmpeg reencode failed: %w", err)
	}
	return nil
}

// encodeArgs 统一的视频编码参数
func encodeArgs(fps int) []string {
	args := []string{
		"-c:v", "libx264",
		"-crf", "20",
		"-preset", "medium",
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
	}
	if fps > 0 {
		args = append(args, "-r", strconv.Itoa(fps))
	}
	return args
}

func (c *Client) run(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, c.ffmpegPath, args...)
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
