package app

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/temiloluwa-oss/arkiva/internal/config"
	"github.com/temiloluwa-oss/arkiva/internal/core"
	"github.com/temiloluwa-oss/arkiva/internal/core/chunker"
	db "github.com/temiloluwa-oss/arkiva/internal/core/database"
	"github.com/temiloluwa-oss/arkiva/internal/core/extract"
	"github.com/temiloluwa-oss/arkiva/internal/core/llm"
	"github.com/temiloluwa-oss/arkiva/internal/core/objectstore"
	"github.com/temiloluwa-oss/arkiva/internal/core/ocr"
	"github.com/temiloluwa-oss/arkiva/internal/core/pipeline"
	"github.com/temiloluwa-oss/arkiva/internal/core/search"
	"github.com/temiloluwa-oss/arkiva/internal/logger"
)

// App holds every long-lived component so startup and shutdown live in one
// place.
type App struct {
	DBClient     *db.DatabaseClient
	ObjectClient *objectstore.S3Client
	Redis        *redis.Client
	Orchestrator *pipeline.Orchestrator
	Server       *Server
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	initCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	dbClient, err := db.NewDatabaseClient(initCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	logger.Info("database initialized and ready")

	objClient, err := objectstore.NewS3Client(initCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("object storage: %w", err)
	}
	logger.Info("object client initialized and ready")

	provider, err := newEmbeddingProvider(initCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("embedding provider: %w", err)
	}
	generator := llm.NewGenerator(provider, cfg.EmbedBatch, cfg.EmbedRPS, cfg.EmbedBurst)

	textract, err := ocr.NewTextractClient(initCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("textract: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(initCtx).Err(); err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	quota := ocr.NewRedisQuota(redisClient, cfg.OcrQuotaWindow, cfg.OcrQuotaPages)

	orchestrator := pipeline.NewOrchestrator(
		dbClient,
		objClient,
		extract.NewDocconvExtractor(cfg.OcrMinTextLen),
		textract,
		quota,
		generator,
		extract.NewFetcher(cfg.FetchTimeout, cfg.FetchMaxBytes),
		chunker.New(cfg.ChunkTargetTokens, cfg.ChunkOverlapTokens, cfg.ChunkHardMaxRunes),
		pipeline.Config{
			Workers:        cfg.IngestWorkers,
			QueueCap:       cfg.IngestQueueCap,
			MaxAttempts:    cfg.MaxAttempts,
			RetryBase:      cfg.RetryBase,
			RetryMax:       cfg.RetryMax,
			OcrPollInitial: cfg.OcrPollInitial,
			OcrPollMax:     cfg.OcrPollMax,
			OcrPollBudget:  cfg.OcrPollBudget,
		},
	)

	engine := search.NewEngine(dbClient, generator)
	server := NewServer(cfg, dbClient, objClient, orchestrator, engine, provider)

	return &App{
		DBClient:     dbClient,
		ObjectClient: objClient,
		Redis:        redisClient,
		Orchestrator: orchestrator,
		Server:       server,
	}, nil
}

func newEmbeddingProvider(ctx context.Context, cfg *config.Config) (core.EmbeddingProvider, error) {
	switch cfg.EmbedProvider {
	case "gemini":
		return llm.NewGeminiEmbedder(ctx, cfg.EmbedAPIKey, cfg.EmbedModel, cfg.EmbedDim)
	case "openai":
		return llm.NewOpenAIEmbedder(cfg.EmbedAPIKey, cfg.EmbedModel, cfg.EmbedDim)
	default:
		return nil, fmt.Errorf("unknown embed provider %q", cfg.EmbedProvider)
	}
}

func (a *App) Close() {
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.DBClient != nil {
		_ = a.DBClient.Close()
	}
}
