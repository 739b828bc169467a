package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/odyssey-erp/freshline/internal/app"
	"github.com/odyssey-erp/freshline/internal/catalog"
	jobmetrics "github.com/odyssey-erp/freshline/internal/jobs"
	"github.com/odyssey-erp/freshline/internal/orders"
	"github.com/odyssey-erp/freshline/internal/platform/cache"
	"github.com/odyssey-erp/freshline/internal/platform/db"
	"github.com/odyssey-erp/freshline/internal/shared"
	"github.com/odyssey-erp/freshline/internal/shortfall"
	"github.com/odyssey-erp/freshline/internal/summary"
	"github.com/odyssey-erp/freshline/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg).With(slog.String("component", "worker"))

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := jobmetrics.NewMetrics(nil)

	catalogRepo := catalog.NewRepository(pool)
	shortfallService := shortfall.NewService(catalogRepo, orders.NewRepository(pool))
	summaryService := summary.NewService(
		summary.NewRepository(pool),
		shortfallService,
		summary.NewRedisStore(redisClient, cfg.SummaryTTL),
		logger,
	)

	refreshJob := jobs.NewSummaryRefreshJob(summaryService, logger, metrics)
	cleanupJob := jobs.NewIdempotencyCleanupJob(shared.NewIdempotencyStore(pool), cfg.IdempotencyRetention, logger, metrics)

	refreshTask, err := jobs.NewSummaryRefreshTask(jobs.SummaryRefreshPayload{Reason: "cron"})
	if err != nil {
		logger.Error("build summary refresh task", slog.Any("error", err))
		os.Exit(1)
	}
	cleanupTask, err := jobs.NewIdempotencyCleanupTask(jobs.IdempotencyCleanupPayload{})
	if err != nil {
		logger.Error("build idempotency cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskSummaryRefresh, Handler: refreshJob.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			// A slow refresh must not pile up behind the next tick.
			{Spec: cfg.SummaryRefreshSpec, Task: refreshTask, Options: []asynq.Option{asynq.Unique(cfg.SummaryTTL)}},
			{Spec: cfg.IdempotencyCleanupSpec, Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if cfg.WorkerMetricsAddr != "" {
		metricsServer := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Warn("worker metrics server", slog.Any("error", err))
			}
		}()
		defer func() {
			_ = metricsServer.Close()
		}()
	}

	logger.Info("starting worker",
		slog.String("summary_spec", cfg.SummaryRefreshSpec),
		slog.String("cleanup_spec", cfg.IdempotencyCleanupSpec))
	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
