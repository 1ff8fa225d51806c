package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/TAMAKQR/KONTENTZAVOD/internal/config"
	"github.com/TAMAKQR/KONTENTZAVOD/internal/model/pipeline"
	"github.com/TAMAKQR/KONTENTZAVOD/internal/pkg/airtable"
	"github.com/TAMAKQR/KONTENTZAVOD/internal/pkg/cache"
	"github.com/TAMAKQR/KONTENTZAVOD/internal/pkg/id"
	"github.com/TAMAKQR/KONTENTZAVOD/internal/pkg/scenetools"
	"github.com/TAMAKQR/KONTENTZAVOD/internal/pkg/storage"
	jobrepo "github.com/TAMAKQR/KONTENTZAVOD/internal/repository/job"
)

// Service 生成流水线服务接口
type Service interface {
	// Submit 创建任务并异步执行流水线
	Submit(ctx context.Context, job *pipeline.Job) error
	// Run 同步执行整个流水线
	Run(ctx context.Context, job *pipeline.Job) error
	// Get 查询任务
	Get(ctx context.Context, jobID string) (*pipeline.Job, error)
	// List 查询用户最近的任务
	List(ctx context.Context, userID string, limit int64) ([]*pipeline.Job, error)
	// Progress 读取任务进度快照
	Progress(ctx context.Context, jobID string) (*Progress, error)
	// ArtifactURL 获取成品下载地址
	ArtifactURL(ctx context.Context, jobID string) (string, error)
	// PreviewScenes 只做场景拆解，不生成媒体
	PreviewScenes(ctx context.Context, concept string, sceneCount, durationPerScene int) (*scenetools.Decomposition, error)
}

// Progress 任务进度快照（写入 Redis）
type Progress struct {
	Status  pipeline.Status `json:"status"`
	Percent int             `json:"percent"`
	Message string          `json:"message,omitempty"`
}

// PipelineService 流水线服务实现
type PipelineService struct {
	cfg        *config.PipelineConfig
	decomposer *scenetools.Decomposer
	images     *ImageOrchestrator
	videos     *VideoOrchestrator
	stitcher   *Stitcher
	store      storage.Storage
	repo       jobrepo.JobRepository // 可为 nil（无 Mongo 时任务不落库）
	progress   *cache.RedisCache     // 可为 nil（无 Redis 时不写进度）
	sessions   *airtable.Logger      // 可为 nil
}

// NewPipelineService 创建流水线服务
func NewPipelineService(
	cfg *config.PipelineConfig,
	decomposer *scenetools.Decomposer,
	images *ImageOrchestrator,
	videos *VideoOrchestrator,
	stitcher *Stitcher,
	store storage.Storage,
	repo jobrepo.JobRepository,
	progress *cache.RedisCache,
	sessions *airtable.Logger,
) *PipelineService {
	return &PipelineService{
		cfg:        cfg,
		decomposer: decomposer,
		images:     images,
		videos:     videos,
		stitcher:   stitcher,
		store:      store,
		repo:       repo,
		progress:   progress,
		sessions:   sessions,
	}
}

// Submit 创建任务并异步执行
func (s *PipelineService) Submit(ctx context.Context, job *pipeline.Job) error {
	s.applyDefaults(job)

	if err := s.validate(job); err != nil {
		return err
	}

	if s.repo != nil {
		if err := s.repo.Create(ctx, job); err != nil {
			return fmt.Errorf("create job: %w", err)
		}
	}

	// 流水线生命周期独立于 HTTP 请求
	go func() {
		runCtx, cancel := context.WithTimeout(context.Background(), 2*time.Hour)
		defer cancel()
		if err := s.Run(runCtx, job); err != nil {
			log.Error().Err(err).Str("job_id", job.ID).Msg("流水线执行失败")
		}
	}()

	return nil
}

// applyDefaults 填充任务默认值
func (s *PipelineService) applyDefaults(job *pipeline.Job) {
	if job.ID == "" {
		job.ID = id.New()
	}
	if job.Mode == "" {
		job.Mode = pipeline.ModeTextToVideo
	}
	if job.ModelKey == "" {
		job.ModelKey = s.cfg.DefaultModel
	}
	if job.AspectRatio == "" {
		job.AspectRatio = s.cfg.DefaultAspectRatio
	}
	if job.Strategy == "" {
		job.Strategy = pipeline.StrategyParallel
	}
	if job.SceneCount == 0 {
		// 用户没有显式给场景数时从创意文本里提取（"5 сцен"、"five scenes"）
		job.SceneCount = scenetools.ExtractSceneCount(job.Concept)
	} else {
		job.SceneCount = scenetools.ClampSceneCount(job.SceneCount)
	}
	if job.DurationPerScene == 0 {
		job.DurationPerScene = 5
	}
	if job.Mode == pipeline.ModeAnimation {
		// 动画化永远是单场景
		job.SceneCount = 1
	}
	job.Status = pipeline.StatusPending
}

// validate 校验任务参数
func (s *PipelineService) validate(job *pipeline.Job) error {
	switch job.Mode {
	case pipeline.ModeTextToVideo, pipeline.ModePhotoAI, pipeline.ModeAnimation:
	default:
		return fmt.Errorf("unknown mode: %s", job.Mode)
	}
	if job.Concept == "" {
		return fmt.Errorf("concept is required")
	}
	if job.Mode == pipeline.ModeAnimation && job.ReferenceImageURL == "" {
		return fmt.Errorf("animation mode requires a reference image")
	}
	return nil
}

// Run 同步执行整个流水线
// 阶段：拆解 → (按模式)图片 → 视频 → 合成 → 发布
func (s *PipelineService) Run(ctx context.Context, job *pipeline.Job) error {
	s.logSession(job, airtable.EventJobStarted, string(job.Mode))

	tempDir := filepath.Join(s.cfg.TempDir, "job_"+job.ID)
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return s.fail(ctx, job, fmt.Errorf("create temp dir: %w", err))
	}
	defer os.RemoveAll(tempDir)

	// 1. 场景拆解
	s.setStatus(ctx, job, pipeline.StatusDecomposing, 10)
	dec, err := s.decomposer.Decompose(ctx, job.Concept, job.SceneCount, job.DurationPerScene)
	if err != nil {
		return s.fail(ctx, job, fmt.Errorf("decompose concept: %w", err))
	}
	job.EnhancedConcept = dec.EnhancedConcept
	job.Scenes = dec.Scenes
	job.SceneCount = len(dec.Scenes)
	s.persist(ctx, job, map[string]interface{}{
		"enhanced_concept": job.EnhancedConcept,
		"scenes":           job.Scenes,
		"scene_count":      job.SceneCount,
	})

	// 2. 图片阶段（按模式）
	imageRefs, err := s.runImageStage(ctx, job, tempDir)
	if err != nil {
		return s.fail(ctx, job, err)
	}

	// 3. 视频阶段
	s.setStatus(ctx, job, pipeline.StatusGeneratingVideos, 50)
	videoResults, err := s.runVideoStage(ctx, job, imageRefs, tempDir)
	job.VideoResults = videoResults
	s.persist(ctx, job, map[string]interface{}{"video_results": job.VideoResults})
	if err != nil {
		return s.fail(ctx, job, err)
	}

	// 4. 合成
	s.setStatus(ctx, job, pipeline.StatusStitching, 80)
	outputPath := filepath.Join(tempDir, "final.mp4")
	clips := make([]string, len(videoResults))
	for i, r := range videoResults {
		clips[i] = r.LocalPath
	}
	if err := s.stitcher.Stitch(ctx, clips, outputPath); err != nil {
		return s.fail(ctx, job, fmt.Errorf("stitch clips: %w", err))
	}

	// 5. 发布成品
	artifactURL, err := s.publish(ctx, job, outputPath)
	if err != nil {
		return s.fail(ctx, job, err)
	}
	job.ArtifactURL = artifactURL
	job.Status = pipeline.StatusCompleted
	s.persist(ctx, job, map[string]interface{}{
		"artifact_url": job.ArtifactURL,
		"status":       job.Status,
	})
	s.writeProgress(ctx, job, 100, "")
	s.logSession(job, airtable.EventJobCompleted, artifactURL)

	log.Info().
		Str("job_id", job.ID).
		Str("artifact_url", artifactURL).
		Int("scenes", len(job.Scenes)).
		Msg("流水线完成")
	return nil
}

// runImageStage 按模式执行图片阶段，返回与场景对齐的视频起始图引用
func (s *PipelineService) runImageStage(ctx context.Context, job *pipeline.Job, tempDir string) ([]string, error) {
	switch job.Mode {
	case pipeline.ModeTextToVideo:
		// 纯文本模式没有图片阶段
		return nil, nil

	case pipeline.ModeAnimation:
		// 单场景直接用参考图作为起始帧
		return []string{job.ReferenceImageURL}, nil

	case pipeline.ModePhotoAI:
		s.setStatus(ctx, job, pipeline.StatusGeneratingImages, 30)
		report := s.images.Run(ctx, job.Scenes, job.ReferenceImageURL, job.AspectRatio, job.Strategy, tempDir)
		job.ImageResults = report.Results
		s.persist(ctx, job, map[string]interface{}{"image_results": job.ImageResults})

		if report.Successful == 0 {
			return nil, fmt.Errorf("image generation failed for all %d scenes", report.Total)
		}

		refs := make([]string, len(report.Results))
		for i, r := range report.Results {
			if r.OK() {
				refs[i] = r.URL
			}
		}
		return refs, nil

	default:
		return nil, fmt.Errorf("unknown mode: %s", job.Mode)
	}
}

// runVideoStage 执行视频阶段
// 部分失败策略按模式决定：photo_ai 保留成功子集继续，其余模式整体失败
func (s *PipelineService) runVideoStage(ctx context.Context, job *pipeline.Job, imageRefs []string, tempDir string) ([]pipeline.VideoResult, error) {
	opts := VideoBatchOptions{
		ModelKey:    job.ModelKey,
		AspectRatio: job.AspectRatio,
		Policy:      pipeline.PolicyAbort,
	}
	switch job.Mode {
	case pipeline.ModePhotoAI:
		opts.Policy = pipeline.PolicyProceed
	case pipeline.ModeAnimation:
		opts.RequireImage = true
	}

	// 没有逐场景引用时，任务级参考图只作为首个场景的起始帧
	if len(imageRefs) == 0 && job.ReferenceImageURL != "" {
		imageRefs = []string{job.ReferenceImageURL}
	}

	results, err := s.videos.Run(ctx, job.Scenes, imageRefs, opts, tempDir)
	if err != nil {
		return results, err
	}

	successful := 0
	for _, r := range results {
		if r.OK() {
			successful++
		}
	}
	if successful == 0 {
		return results, fmt.Errorf("video generation failed for all %d scenes", len(results))
	}
	return results, nil
}

// publish 把成品上传到存储
func (s *PipelineService) publish(ctx context.Context, job *pipeline.Job, outputPath string) (string, error) {
	file, err := os.Open(outputPath)
	if err != nil {
		return "", fmt.Errorf("open artifact: %w", err)
	}
	defer file.Close()

	key := fmt.Sprintf("jobs/%s/final.mp4", job.ID)
	url, err := s.store.Upload(ctx, key, file, "video/mp4")
	if err != nil {
		return "", fmt.Errorf("upload artifact: %w", err)
	}
	return url, nil
}

// Get 查询任务
func (s *PipelineService) Get(ctx context.Context, jobID string) (*pipeline.Job, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("job persistence is disabled")
	}
	return s.repo.FindByID(ctx, jobID)
}

// List 查询用户最近的任务
func (s *PipelineService) List(ctx context.Context, userID string, limit int64) ([]*pipeline.Job, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("job persistence is disabled")
	}
	return s.repo.FindByUserID(ctx, userID, limit)
}

// Progress 读取任务进度快照
func (s *PipelineService) Progress(ctx context.Context, jobID string) (*Progress, error) {
	if s.progress == nil {
		return nil, fmt.Errorf("progress cache is disabled")
	}
	var p Progress
	if err := s.progress.Get(ctx, cache.JobProgressKey(jobID), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ArtifactURL 获取成品下载地址
func (s *PipelineService) ArtifactURL(ctx context.Context, jobID string) (string, error) {
	job, err := s.Get(ctx, jobID)
	if err != nil {
		return "", err
	}
	if job.Status != pipeline.StatusCompleted || job.ArtifactURL == "" {
		return "", fmt.Errorf("job %s has no artifact yet", jobID)
	}

	key := fmt.Sprintf("jobs/%s/final.mp4", job.ID)
	url, err := s.store.GetPresignedDownloadURL(ctx, key, time.Hour)
	if err != nil {
		// 签名失败时退回存储的原始 URL
		return job.ArtifactURL, nil
	}
	return url, nil
}

// PreviewScenes 只做场景拆解
func (s *PipelineService) PreviewScenes(ctx context.Context, concept string, sceneCount, durationPerScene int) (*scenetools.Decomposition, error) {
	if concept == "" {
		return nil, fmt.Errorf("concept is required")
	}
	if sceneCount == 0 {
		sceneCount = scenetools.ExtractSceneCount(concept)
	}
	if durationPerScene <= 0 {
		durationPerScene = 5
	}
	return s.decomposer.Decompose(ctx, concept, sceneCount, durationPerScene)
}

// fail 统一的失败收尾：状态、错误信息、会话日志
func (s *PipelineService) fail(ctx context.Context, job *pipeline.Job, err error) error {
	job.Status = pipeline.StatusFailed
	job.ErrorMessage = err.Error()
	s.persist(ctx, job, map[string]interface{}{
		"status":        job.Status,
		"error_message": job.ErrorMessage,
	})
	s.writeProgress(ctx, job, 0, job.ErrorMessage)
	s.logSession(job, airtable.EventJobFailed, job.ErrorMessage)
	return err
}

// setStatus 更新状态并广播进度
func (s *PipelineService) setStatus(ctx context.Context, job *pipeline.Job, status pipeline.Status, percent int) {
	job.Status = status
	s.persist(ctx, job, map[string]interface{}{"status": status})
	s.writeProgress(ctx, job, percent, "")
	s.logSession(job, airtable.EventJobProgress, string(status))
}

// persist 尽力而为地落库
func (s *PipelineService) persist(ctx context.Context, job *pipeline.Job, updates map[string]interface{}) {
	if s.repo == nil {
		return
	}
	if err := s.repo.Update(ctx, job.ID, updates); err != nil {
		log.Warn().Err(err).Str("job_id", job.ID).Msg("任务落库失败")
	}
}

// writeProgress 尽力而为地写进度缓存
func (s *PipelineService) writeProgress(ctx context.Context, job *pipeline.Job, percent int, message string) {
	if s.progress == nil {
		return
	}
	p := Progress{Status: job.Status, Percent: percent, Message: message}
	if err := s.progress.Set(ctx, cache.JobProgressKey(job.ID), p, cache.JobProgressTTL); err != nil {
		log.Warn().Err(err).Str("job_id", job.ID).Msg("进度写入失败")
	}
}

// logSession 尽力而为的会话日志
func (s *PipelineService) logSession(job *pipeline.Job, event, detail string) {
	s.sessions.Log(airtable.SessionEvent{
		JobID:  job.ID,
		UserID: job.UserID,
		Event:  event,
		Detail: detail,
	})
}
