package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/miporis/compliance-evaluator/internal/adapter/ai/gemini"
	"github.com/miporis/compliance-evaluator/internal/adapter/ai/openai"
	"github.com/miporis/compliance-evaluator/internal/adapter/ai/tokencount"
	"github.com/miporis/compliance-evaluator/internal/adapter/events/redpanda"
	"github.com/miporis/compliance-evaluator/internal/adapter/extractor"
	httpserver "github.com/miporis/compliance-evaluator/internal/adapter/httpserver"
	"github.com/miporis/compliance-evaluator/internal/adapter/repo/postgres"
	s3store "github.com/miporis/compliance-evaluator/internal/adapter/storage/s3"
	"github.com/miporis/compliance-evaluator/internal/adapter/textextractor/tika"
	"github.com/miporis/compliance-evaluator/internal/app"
	"github.com/miporis/compliance-evaluator/internal/config"
	"github.com/miporis/compliance-evaluator/internal/domain"
	"github.com/miporis/compliance-evaluator/internal/service/keylock"
	"github.com/miporis/compliance-evaluator/internal/service/ratelimiter"
	"github.com/miporis/compliance-evaluator/internal/usecase"
)

type runtime struct {
	Server  *httpserver.Server
	closers []func()
}

// Close releases connections in reverse order of creation.
func (r *runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

func wire(ctx context.Context, cfg config.Config) (*runtime, error) {
	rt := &runtime{}
	fail := func(err error) (*runtime, error) {
		rt.Close()
		return nil, err
	}

	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		return fail(fmt.Errorf("db connect: %w", err))
	}
	rt.closers = append(rt.closers, pool.Close)
	if err := postgres.Migrate(ctx, pool); err != nil {
		return fail(err)
	}

	blobs, err := s3store.New(ctx, cfg)
	if err != nil {
		return fail(fmt.Errorf("blob store: %w", err))
	}

	var locks domain.KeyLocker = keylock.NewLocalLocker(cfg.LockWait)
	var limiter domain.RateLimiter
	var rdb *redis.Client
	if cfg.RedisEnabled() {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fail(fmt.Errorf("redis url: %w", err))
		}
		rdb = redis.NewClient(opts)
		rt.closers = append(rt.closers, func() { _ = rdb.Close() })
		locks = keylock.NewRedisLocker(rdb, cfg.LockTTL, cfg.LockWait)
		limiter = ratelimiter.NewRedisLuaLimiter(rdb, map[string]ratelimiter.BucketConfig{
			"eval": ratelimiter.NewBucketConfigFromPerMinute(cfg.EvalRatePerMin),
		})
		slog.Info("redis locks and evaluation budget enabled")
	} else {
		slog.Warn("REDIS_URL not set, using in-process locks and no evaluation budget")
	}

	var events *redpanda.Publisher
	if cfg.EventsEnabled() {
		events, err = redpanda.NewPublisher(ctx, cfg.KafkaBrokers, cfg.EventsTopic)
		if err != nil {
			return fail(fmt.Errorf("events: %w", err))
		}
		rt.closers = append(rt.closers, func() { _ = events.Close() })
	}

	registry, tikaClient := buildExtractors(cfg, blobs)

	controls := postgres.NewControlRepo(pool)
	chats := postgres.NewChatRepo(pool)
	composer := usecase.NewPromptComposer(tokencount.NewCounter(), cfg.JudgeModel, cfg.HistoryTokenBudget)

	eval := usecase.NewEvaluationService(
		controls, chats, postgres.NewStateRepo(pool),
		usecase.NewUploadService(blobs),
		usecase.NewDocumentAssembler(registry, cfg.ExtractConcurrency),
		composer,
		openai.NewJudge(cfg),
		cfg.MaxFiles,
	)
	eval.Locks = locks
	if limiter != nil {
		eval.Limiter = limiter
	}
	if events != nil {
		eval.Events = events
	}

	deps := app.ReadinessDeps{DB: pool, Blobs: blobs}
	if rdb != nil {
		deps.Redis = app.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	}
	if tikaClient != nil {
		deps.Tika = tikaClient
	}
	if events != nil {
		deps.Events = events
	}

	rt.Server = httpserver.NewServer(cfg,
		eval,
		usecase.NewControlService(controls, chats),
		usecase.NewChatService(controls, chats, openai.NewChat(cfg), composer),
		app.BuildReadinessChecks(cfg, deps)...,
	)
	return rt, nil
}

// buildExtractors registers one extractor per supported format. PDFs and
// images go to the multimodal model; DOCX text comes from Tika when
// configured; spreadsheets are partitioned by Unstructured when configured.
func buildExtractors(cfg config.Config, blobs domain.BlobStore) (*extractor.Registry, *tika.Client) {
	vision := gemini.New(cfg, cfg.GeminiModel)
	tables := gemini.New(cfg, cfg.GeminiTableModel)

	var docText extractor.TextSource = extractor.ZipText{}
	var tikaClient *tika.Client
	if cfg.TikaEnabled() {
		tikaClient = tika.New(cfg.TikaURL)
		docText = tikaClient
	}
	var partitioner extractor.Partitioner = extractor.SheetPartitioner{}
	if cfg.UnstructuredEnabled() {
		partitioner = extractor.NewUnstructured(cfg.UnstructuredURL, cfg.UnstructuredAPIKey)
	}

	registry := extractor.NewRegistry(blobs).
		Register(extractor.KindPDF, extractor.PDF{Model: vision}).
		Register(extractor.KindImage, extractor.Image{Model: vision}).
		Register(extractor.KindDOCX, extractor.DOCX{Text: docText, Model: vision}).
		Register(extractor.KindXLSX, extractor.XLSX{Partitioner: partitioner, Model: tables})
	return registry, tikaClient
}
