package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/TAMAKQR/KONTENTZAVOD/internal/ai/component"
	"github.com/TAMAKQR/KONTENTZAVOD/internal/config"
	"github.com/TAMAKQR/KONTENTZAVOD/internal/handler"
	pipelineHandler "github.com/TAMAKQR/KONTENTZAVOD/internal/handler/pipeline"
	"github.com/TAMAKQR/KONTENTZAVOD/internal/pkg/airtable"
	"github.com/TAMAKQR/KONTENTZAVOD/internal/pkg/cache"
	"github.com/TAMAKQR/KONTENTZAVOD/internal/pkg/fetcher"
	"github.com/TAMAKQR/KONTENTZAVOD/internal/pkg/ffmpeg"
	"github.com/TAMAKQR/KONTENTZAVOD/internal/pkg/generation"
	"github.com/TAMAKQR/KONTENTZAVOD/internal/pkg/mongodb"
	"github.com/TAMAKQR/KONTENTZAVOD/internal/pkg/scenetools"
	"github.com/TAMAKQR/KONTENTZAVOD/internal/pkg/scenetools/providers"
	"github.com/TAMAKQR/KONTENTZAVOD/internal/pkg/storagefactory"
	jobrepo "github.com/TAMAKQR/KONTENTZAVOD/internal/repository/job"
	"github.com/TAMAKQR/KONTENTZAVOD/internal/server/middleware"
	pipelinesvc "github.com/TAMAKQR/KONTENTZAVOD/internal/service/pipeline"
)

// Server HTTP 服务器
type Server struct {
	cfg      *config.Config
	engine   *gin.Engine
	mongo    *mongodb.Client
	redis    *cache.RedisCache
	pipeline pipelinesvc.Service
}

// New 创建服务器实例
func New(cfg *config.Config) (*Server, error) {
	// 设置 Gin 模式
	switch cfg.Server.Mode {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	// 创建 Gin 引擎
	engine := gin.New()

	// 初始化 MongoDB (可选)
	var mongoClient *mongodb.Client
	if cfg.Mongo.URI != "" {
		client, err := mongodb.New(&cfg.Mongo)
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to MongoDB, continuing without it")
		} else {
			mongoClient = client
			log.Info().Str("database", cfg.Mongo.Database).Msg("connected to MongoDB")

			// 创建索引
			if err := mongodb.EnsureIndexes(mongoClient.Database()); err != nil {
				log.Warn().Err(err).Msg("failed to ensure indexes")
			}
		}
	}

	// 初始化 Redis (可选)
	var redisCache *cache.RedisCache
	if cfg.Redis.Addr != "" {
		rc, err := cache.NewRedisCache(&cfg.Redis)
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to Redis, continuing without it")
		} else {
			redisCache = rc
			log.Info().Str("addr", cfg.Redis.Addr).Msg("connected to Redis")
		}
	}

	srv := &Server{
		cfg:    cfg,
		engine: engine,
		mongo:  mongoClient,
		redis:  redisCache,
	}

	// 初始化流水线服务 (生成后端不可用时相关接口关闭)
	pipelineService, err := srv.buildPipelineService()
	if err != nil {
		log.Warn().Err(err).Msg("pipeline service unavailable, job endpoints disabled")
	} else {
		srv.pipeline = pipelineService
	}

	// 设置路由
	srv.setupRoutes()

	return srv, nil
}

// buildPipelineService 组装流水线服务及其全部依赖
func (s *Server) buildPipelineService() (pipelinesvc.Service, error) {
	cfg := s.cfg

	// 场景拆解的 LLM 路径 (可选，不可用时走确定性兜底)
	var llm scenetools.LLMProvider
	if cfg.AI.APIKey != "" {
		chatModel, err := component.NewChatModel(context.Background(), &cfg.AI)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize chat model, scene decomposition falls back to deterministic templates")
		} else {
			llm = providers.NewEinoProvider(chatModel)
			log.Info().Str("provider", cfg.AI.Provider).Str("model", cfg.AI.Model).Msg("initialized chat model")
		}
	}

	var translator *scenetools.Translator
	if llm != nil && cfg.Pipeline.TranslateTo != "" {
		translator = scenetools.NewTranslator(llm, cfg.Pipeline.TranslateTo)
	}
	decomposer := scenetools.NewDecomposer(llm, translator)

	// 生成后端 (必需)
	backend, err := generation.NewClient(&cfg.Generation)
	if err != nil {
		return nil, err
	}

	// 成品存储 (必需)
	store, err := storagefactory.NewStorage(context.Background(), &cfg.Storage)
	if err != nil {
		return nil, err
	}
	log.Info().Str("type", store.GetStorageType()).Msg("initialized artifact storage")

	f := fetcher.New()
	ff := ffmpeg.NewClient()

	imageClient := pipelinesvc.NewImageClient(backend, cfg.Generation.ImageModel)
	images := pipelinesvc.NewImageOrchestrator(imageClient, f, cfg.Pipeline.MaxConcurrency)
	videos := pipelinesvc.NewVideoOrchestrator(pipelinesvc.NewVideoClient(backend), f, cfg.Pipeline.MaxConcurrency)
	stitcher := pipelinesvc.NewStitcher(ff, ff, cfg.Pipeline.TargetFPS, cfg.Pipeline.EncodeWorkers, true)

	var repo jobrepo.JobRepository
	if s.mongo != nil {
		repo = jobrepo.NewJobRepo(s.mongo.Database())
	}

	sessions := airtable.NewLogger(&cfg.Airtable)
	if sessions != nil {
		log.Info().Str("table", cfg.Airtable.Table).Msg("session logging enabled")
	}

	return pipelinesvc.NewPipelineService(
		&cfg.Pipeline,
		decomposer,
		images,
		videos,
		stitcher,
		store,
		repo,
		s.redis,
		sessions,
	), nil
}

// setupRoutes 设置路由
func (s *Server) setupRoutes() {
	// 全局中间件
	s.engine.Use(middleware.Recovery())
	s.engine.Use(middleware.RequestID())
	s.engine.Use(middleware.Logger())
	s.engine.Use(middleware.CORS())

	// 健康检查
	healthHandler := handler.NewHealthHandler()
	s.engine.GET("/health", healthHandler.Health)
	s.engine.GET("/ready", healthHandler.Ready)

	// Swagger 文档
	s.engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// API v1
	v1 := s.engine.Group("/api/v1")
	{
		if s.pipeline != nil {
			hdl := pipelineHandler.NewHandler(s.pipeline)

			v1.POST("/jobs", hdl.CreateJob)
			v1.GET("/jobs", hdl.ListJobs)
			v1.GET("/jobs/:id", hdl.GetJob)
			v1.GET("/jobs/:id/progress", hdl.GetProgress)
			v1.GET("/jobs/:id/artifact", hdl.GetArtifact)

			v1.POST("/scenes/preview", hdl.PreviewScenes)
		} else {
			log.Warn().Msg("generation backend not configured, job endpoints disabled")
		}
	}
}

// Run 启动服务器
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.engine,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	// 启动服务器
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// 等待关闭信号或错误
	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down server...")

		// 关闭连接
		if s.mongo != nil {
			if err := s.mongo.Close(context.Background()); err != nil {
				log.Error().Err(err).Msg("failed to close MongoDB connection")
			}
		}
		if s.redis != nil {
			if err := s.redis.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close Redis connection")
			}
		}

		return srv.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}

// Engine 获取 Gin 引擎 (用于测试)
func (s *Server) Engine() *gin.Engine {
	return s.engine
}
