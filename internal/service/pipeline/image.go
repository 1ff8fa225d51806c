package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/TAMAKQR/KONTENTZAVOD/internal/model/pipeline"
	"github.com/TAMAKQR/KONTENTZAVOD/internal/pkg/fetcher"
	"github.com/TAMAKQR/KONTENTZAVOD/internal/pkg/generation"
	"github.com/TAMAKQR/KONTENTZAVOD/internal/pkg/scenetools"
)

// Backend 媒体生成后端
type Backend interface {
	Run(ctx context.Context, model string, input map[string]any) (generation.ArtifactRef, error)
}

// DefaultImageModel 默认图片模型
const DefaultImageModel = "google/nano-banana"

// 画幅到图片分辨率的映射
var imageResolutions = map[string]string{
	"16:9": "768x432",
	"9:16": "432x768",
	"1:1":  "512x512",
}

const (
	// 参考图影响强度
	referenceStrength = 0.7
	// 每种可重试错误的最大尝试次数
	maxAttempts = 3
	// 后端故障重试的固定间隔
	faultRetryDelay = 3 * time.Second
	// 简化提示词的最大长度
	simplifyMaxLen = 200
)

// ImageClient 单场景图片生成客户端
// 按错误分类执行不同的重试策略：
//   - 安全过滤命中：脱敏一次后用同样的参考图重试，二次命中放弃
//   - 临时不可用：退避重试，第二次尝试去掉参考图，第三次简化提示词
//   - 后端故障：固定间隔重试，第二次去掉参考图并重置画幅，第三次简化提示词
//   - 其它错误：不重试
type ImageClient struct {
	backend   Backend
	sanitizer *scenetools.Sanitizer
	model     string
	sleep     func(time.Duration) // 测试中可替换
}

// NewImageClient 创建图片生成客户端
func NewImageClient(backend Backend, model string) *ImageClient {
	if model == "" {
		model = DefaultImageModel
	}
	return &ImageClient{
		backend:   backend,
		sanitizer: scenetools.NewSanitizer(),
		model:     model,
		sleep:     time.Sleep,
	}
}

// Generate 生成单个场景的图片，内部按错误分类重试
// 失败体现在 ImageResult.ErrorMessage，不作为 error 抛出
func (c *ImageClient) Generate(ctx context.Context, scene pipeline.Scene, referenceURL, aspectRatio string) pipeline.ImageResult {
	result := pipeline.ImageResult{SceneID: scene.ID, Prompt: scene.Prompt}

	prompt := scene.Prompt
	ref := referenceURL
	aspect := aspectRatio
	sanitized := false
	transientTries := 0
	faultTries := 0

	for {
		if err := ctx.Err(); err != nil {
			result.ErrorMessage = err.Error()
			return result
		}

		artifact, err := c.backend.Run(ctx, c.model, c.buildInput(prompt, ref, aspect))
		if err == nil {
			result.Prompt = prompt
			result.URL = artifact.URL
			return result
		}

		switch generation.KindOf(err) {
		case generation.KindSafety:
			if sanitized {
				log.Warn().Int("scene_id", scene.ID).Msg("脱敏后仍命中安全过滤，放弃该场景")
				result.ErrorMessage = err.Error()
				return result
			}
			prompt = c.sanitizer.Sanitize(prompt)
			sanitized = true
			log.Info().Int("scene_id", scene.ID).Msg("命中安全过滤，脱敏后重试")

		case generation.KindTransient:
			transientTries++
			if transientTries >= maxAttempts {
				result.ErrorMessage = err.Error()
				return result
			}
			// 退避 5s、8s
			delay := time.Duration(5+3*(transientTries-1)) * time.Second
			switch transientTries {
			case 1:
				ref = ""
			case 2:
				prompt = c.sanitizer.Simplify(prompt, simplifyMaxLen)
			}
			log.Warn().
				Int("scene_id", scene.ID).
				Int("attempt", transientTries).
				Dur("delay", delay).
				Msg("后端临时不可用，退避重试")
			c.sleep(delay)

		case generation.KindBackendFault:
			faultTries++
			if faultTries >= maxAttempts {
				result.ErrorMessage = err.Error()
				return result
			}
			switch faultTries {
			case 1:
				ref = ""
				aspect = "16:9"
			case 2:
				prompt = c.sanitizer.Simplify(prompt, simplifyMaxLen)
			}
			log.Warn().
				Int("scene_id", scene.ID).
				Int("attempt", faultTries).
				Msg("后端内部故障，固定间隔重试")
			c.sleep(faultRetryDelay)

		default:
			result.ErrorMessage = err.Error()
			return result
		}
	}
}

// buildInput 组装图片模型输入
func (c *ImageClient) buildInput(prompt, referenceURL, aspectRatio string) map[string]any {
	resolution, ok := imageResolutions[aspectRatio]
	if !ok {
		resolution = imageResolutions["16:9"]
	}
	input := map[string]any{
		"prompt":     prompt,
		"resolution": resolution,
	}
	if referenceURL != "" {
		input["image"] = referenceURL
		input["strength"] = referenceStrength
	}
	return input
}

// ImageOrchestrator 多场景图片编排器
type ImageOrchestrator struct {
	client         *ImageClient
	fetcher        *fetcher.Fetcher // 可为 nil，关闭本地落盘
	maxConcurrency int
}

// NewImageOrchestrator 创建图片编排器
func NewImageOrchestrator(client *ImageClient, f *fetcher.Fetcher, maxConcurrency int) *ImageOrchestrator {
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	return &ImageOrchestrator{
		client:         client,
		fetcher:        f,
		maxConcurrency: maxConcurrency,
	}
}

// Run 按策略生成全部场景图片
// 结果与输入场景按下标一一对应，单场景失败不影响其它场景
func (o *ImageOrchestrator) Run(ctx context.Context, scenes []pipeline.Scene, seedReferenceURL, aspectRatio string, strategy pipeline.Strategy, tempDir string) pipeline.ImageRunReport {
	var results []pipeline.ImageResult
	if strategy == pipeline.StrategySequential {
		results = o.runSequential(ctx, scenes, seedReferenceURL, aspectRatio, tempDir)
	} else {
		results = o.runParallel(ctx, scenes, seedReferenceURL, aspectRatio, tempDir)
	}

	report := pipeline.ImageRunReport{Results: results, Total: len(results)}
	for _, r := range results {
		if r.OK() {
			report.Successful++
		}
	}

	log.Info().
		Int("total", report.Total).
		Int("successful", report.Successful).
		Str("strategy", string(strategy)).
		Msg("图片编排完成")
	return report
}

// runParallel 并发生成，所有场景共用同一个种子参考图
func (o *ImageOrchestrator) runParallel(ctx context.Context, scenes []pipeline.Scene, seedReferenceURL, aspectRatio, tempDir string) []pipeline.ImageResult {
	results := make([]pipeline.ImageResult, len(scenes))
	sem := make(chan struct{}, o.maxConcurrency)
	var wg sync.WaitGroup

	for i, scene := range scenes {
		wg.Add(1)
		go func(i int, scene pipeline.Scene) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			results[i] = o.client.Generate(ctx, scene, seedReferenceURL, aspectRatio)
			o.download(ctx, &results[i], tempDir)
		}(i, scene)
	}

	wg.Wait()
	return results
}

// runSequential 严格顺序生成，最近一次成功的图片作为下一场景的参考图
// 某场景失败时参考图保持不变，继承跨过失败的场景
func (o *ImageOrchestrator) runSequential(ctx context.Context, scenes []pipeline.Scene, seedReferenceURL, aspectRatio, tempDir string) []pipeline.ImageResult {
	results := make([]pipeline.ImageResult, len(scenes))
	ref := seedReferenceURL

	for i, scene := range scenes {
		results[i] = o.client.Generate(ctx, scene, ref, aspectRatio)
		if results[i].OK() {
			ref = results[i].URL
		}
		o.download(ctx, &results[i], tempDir)
	}
	return results
}

// download 尽力而为地下载本地副本
func (o *ImageOrchestrator) download(ctx context.Context, r *pipeline.ImageResult, tempDir string) {
	if o.fetcher == nil || tempDir == "" || !r.OK() {
		return
	}
	dest := filepath.Join(tempDir, fmt.Sprintf("scene_%d.png", r.SceneID))
	r.LocalPath = o.fetcher.Download(ctx, r.URL, dest)
}
