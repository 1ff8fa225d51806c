package pipeline

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/TAMAKQR/KONTENTZAVOD/internal/pkg/ffmpeg"
)

// ErrNoClips 没有任何可用片段
var ErrNoClips = errors.New("no usable clips to stitch")

// Prober 视频探测
type Prober interface {
	Probe(ctx context.Context, path string) (*ffmpeg.ProbeInfo, error)
}

// Encoder 视频合成编码
type Encoder interface {
	CrossFade(ctx context.Context, inputs []string, durations []float64, withAudio bool, fps int, outputPath string) error
	Concat(ctx context.Context, inputs []string, withAudio bool, fps int, outputPath string) error
	Reencode(ctx context.Context, inputPath string, fps int, outputPath string) error
}

// Stitcher 成品合成器
// 把本地视频片段合成为单个成品：多片段默认叠化过渡，
// 音频交叉淡化只在所有片段都带音频时启用
type Stitcher struct {
	prober         Prober
	encoder        Encoder
	fps            int
	useTransitions bool
	encodeSem      chan struct{} // ffmpeg 进程并发上限
}

// NewStitcher 创建合成器
func NewStitcher(prober Prober, encoder Encoder, fps, encodeWorkers int, useTransitions bool) *Stitcher {
	if encodeWorkers <= 0 {
		encodeWorkers = 1
	}
	return &Stitcher{
		prober:         prober,
		encoder:        encoder,
		fps:            fps,
		useTransitions: useTransitions,
		encodeSem:      make(chan struct{}, encodeWorkers),
	}
}

// Stitch 合成片段到 outputPath
// 探测失败的片段（文件缺失、损坏）记告警后跳过；
// 全部不可用返回 ErrNoClips
func (s *Stitcher) Stitch(ctx context.Context, clipPaths []string, outputPath string) error {
	var (
		usable    []string
		durations []float64
		withAudio = true
	)

	for _, path := range clipPaths {
		if path == "" {
			continue
		}
		info, err := s.prober.Probe(ctx, path)
		if err != nil {
			log.Warn().Err(err).Str("clip", path).Msg("片段不可用，跳过")
			continue
		}
		usable = append(usable, path)
		durations = append(durations, info.Duration)
		if !info.HasAudio {
			withAudio = false
		}
	}

	if len(usable) == 0 {
		return ErrNoClips
	}

	select {
	case s.encodeSem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-s.encodeSem }()

	if len(usable) == 1 {
		return s.encoder.Reencode(ctx, usable[0], s.fps, outputPath)
	}

	if s.useTransitions {
		return s.encoder.CrossFade(ctx, usable, durations, withAudio, s.fps, outputPath)
	}
	return s.encoder.Concat(ctx, usable, withAudio, s.fps, outputPath)
}
