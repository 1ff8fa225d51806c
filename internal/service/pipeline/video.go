package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/TAMAKQR/KONTENTZAVOD/internal/model/pipeline"
	"github.com/TAMAKQR/KONTENTZAVOD/internal/pkg/fetcher"
	"github.com/TAMAKQR/KONTENTZAVOD/internal/pkg/generation"
)

// DefaultVideoModel 默认视频模型 key
const DefaultVideoModel = "kling"

// videoModelSpec 视频模型能力描述
type videoModelSpec struct {
	Slug           string   // 后端模型标识
	Durations      []int    // 支持的片段时长（秒）
	AspectRatios   []string // 支持的画幅
	NegativePrompt bool     // 是否接受 negative_prompt
	Resolution     string   // 非空时传 resolution 参数
	GenerateAudio  bool     // 是否请求生成音频
}

// 视频模型能力表；不认识的 key 回落到默认模型
var videoModels = map[string]videoModelSpec{
	"kling": {
		Slug:           "kwaivgi/kling-v2.5-turbo-pro",
		Durations:      []int{5, 10},
		AspectRatios:   []string{"16:9", "9:16", "1:1"},
		NegativePrompt: true,
	},
	"veo": {
		Slug:          "google/veo-3.1-fast",
		Durations:     []int{4, 6, 8},
		AspectRatios:  []string{"16:9", "9:16"},
		Resolution:    "720p",
		GenerateAudio: true,
	},
}

// defaultNegativePrompt 默认负向提示词
const defaultNegativePrompt = "blurry, distorted, low quality, text, watermark"

// VideoOptions 单场景视频生成参数
type VideoOptions struct {
	ModelKey     string
	AspectRatio  string
	ImageURL     string // 起始图片，可为空
	RequireImage bool   // 为真且 ImageURL 为空时直接失败，不提交任务
}

// VideoClient 单场景视频生成客户端
// 视频任务贵且慢，不做重试：失败直接记录在结果里
type VideoClient struct {
	backend Backend
}

// NewVideoClient 创建视频生成客户端
func NewVideoClient(backend Backend) *VideoClient {
	return &VideoClient{backend: backend}
}

// Generate 生成单个场景的视频片段
func (c *VideoClient) Generate(ctx context.Context, scene pipeline.Scene, opts VideoOptions) pipeline.VideoResult {
	result := pipeline.VideoResult{SceneID: scene.ID}

	spec, ok := videoModels[opts.ModelKey]
	if !ok {
		spec = videoModels[DefaultVideoModel]
	}

	if opts.RequireImage && opts.ImageURL == "" {
		err := &generation.Error{
			Kind:    generation.KindInvalidInput,
			Code:    generation.CodeMissingImage,
			Message: fmt.Sprintf("scene %d requires a start image", scene.ID),
		}
		result.ErrorMessage = err.Error()
		return result
	}

	duration := clampDuration(scene.Duration, spec.Durations)
	result.Duration = duration

	artifact, err := c.backend.Run(ctx, spec.Slug, c.buildInput(scene.Prompt, duration, opts, spec))
	if err != nil {
		result.ErrorMessage = err.Error()
		return result
	}

	result.URL = artifact.URL
	return result
}

// buildInput 组装视频模型输入
func (c *VideoClient) buildInput(prompt string, duration int, opts VideoOptions, spec videoModelSpec) map[string]any {
	input := map[string]any{
		"prompt":       prompt,
		"duration":     duration,
		"aspect_ratio": clampAspectRatio(opts.AspectRatio, spec.AspectRatios),
	}
	if opts.ImageURL != "" {
		input["image"] = opts.ImageURL
	}
	if spec.NegativePrompt {
		input["negative_prompt"] = defaultNegativePrompt
	}
	if spec.Resolution != "" {
		input["resolution"] = spec.Resolution
	}
	if spec.GenerateAudio {
		input["generate_audio"] = true
	}
	return input
}

// clampDuration 把请求时长收敛到模型支持的最近值
func clampDuration(want int, allowed []int) int {
	if len(allowed) == 0 {
		return want
	}
	best := allowed[0]
	for _, d := range allowed {
		if abs(d-want) < abs(best-want) {
			best = d
		}
	}
	return best
}

// clampAspectRatio 画幅不支持时回落到 16:9
func clampAspectRatio(want string, allowed []string) string {
	for _, r := range allowed {
		if r == want {
			return want
		}
	}
	return "16:9"
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// VideoBatchOptions 视频编排参数
type VideoBatchOptions struct {
	ModelKey     string
	AspectRatio  string
	RequireImage bool
	Policy       pipeline.PartialFailurePolicy
}

// VideoOrchestrator 多场景视频编排器
type VideoOrchestrator struct {
	client         *VideoClient
	fetcher        *fetcher.Fetcher // 可为 nil，关闭本地落盘
	maxConcurrency int
}

// NewVideoOrchestrator 创建视频编排器
func NewVideoOrchestrator(client *VideoClient, f *fetcher.Fetcher, maxConcurrency int) *VideoOrchestrator {
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	return &VideoOrchestrator{
		client:         client,
		fetcher:        f,
		maxConcurrency: maxConcurrency,
	}
}

// Run 并发生成全部场景的视频片段
// imageRefs 与 scenes 按下标对应（可为 nil，表示纯文本生成）；
// 结果顺序与场景顺序一致。PolicyAbort 下任一场景失败即返回错误，
// 错误信息枚举所有失败的场景 id
func (o *VideoOrchestrator) Run(ctx context.Context, scenes []pipeline.Scene, imageRefs []string, opts VideoBatchOptions, tempDir string) ([]pipeline.VideoResult, error) {
	results := make([]pipeline.VideoResult, len(scenes))
	sem := make(chan struct{}, o.maxConcurrency)
	var wg sync.WaitGroup

	for i, scene := range scenes {
		wg.Add(1)
		go func(i int, scene pipeline.Scene) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			var imageURL string
			if i < len(imageRefs) {
				imageURL = imageRefs[i]
			}

			results[i] = o.client.Generate(ctx, scene, VideoOptions{
				ModelKey:     opts.ModelKey,
				AspectRatio:  opts.AspectRatio,
				ImageURL:     imageURL,
				RequireImage: opts.RequireImage,
			})
			o.download(ctx, &results[i], tempDir)
		}(i, scene)
	}

	wg.Wait()

	var failed []int
	for _, r := range results {
		if !r.OK() {
			failed = append(failed, r.SceneID)
		}
	}

	log.Info().
		Int("total", len(results)).
		Int("failed", len(failed)).
		Str("model", opts.ModelKey).
		Msg("视频编排完成")

	if len(failed) > 0 && opts.Policy == pipeline.PolicyAbort {
		sort.Ints(failed)
		ids := make([]string, len(failed))
		for i, id := range failed {
			ids[i] = fmt.Sprintf("%d", id)
		}
		return results, fmt.Errorf("video generation failed for scenes %s", strings.Join(ids, ", "))
	}

	return results, nil
}

// download 尽力而为地下载本地副本；落盘失败的场景在合成阶段被跳过
func (o *VideoOrchestrator) download(ctx context.Context, r *pipeline.VideoResult, tempDir string) {
	if o.fetcher == nil || tempDir == "" || !r.OK() {
		return
	}
	dest := filepath.Join(tempDir, fmt.Sprintf("scene_%d.mp4", r.SceneID))
	r.LocalPath = o.fetcher.Download(ctx, r.URL, dest)
}
