package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/freshline/cmd/freshline/cli"
	"github.com/odyssey-erp/freshline/internal/app"
	"github.com/odyssey-erp/freshline/internal/catalog"
	"github.com/odyssey-erp/freshline/internal/observability"
	"github.com/odyssey-erp/freshline/internal/orders"
	"github.com/odyssey-erp/freshline/internal/platform/cache"
	"github.com/odyssey-erp/freshline/internal/platform/db"
	"github.com/odyssey-erp/freshline/internal/replenishment"
	"github.com/odyssey-erp/freshline/internal/routes"
	"github.com/odyssey-erp/freshline/internal/shared"
	"github.com/odyssey-erp/freshline/internal/shortfall"
	"github.com/odyssey-erp/freshline/internal/summary"
	"github.com/odyssey-erp/freshline/jobs"
	"github.com/odyssey-erp/freshline/report"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	if len(os.Args) > 1 && os.Args[1] == "jobs" {
		os.Exit(runJobsCommand(ctx, cfg, os.Args[2:]))
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)

	catalogRepo := catalog.NewRepository(dbpool)
	ordersRepo := orders.NewRepository(dbpool)
	ordersService := orders.NewService(ordersRepo, catalogRepo, logger,
		orders.WithAudit(auditLogger),
		orders.WithIdempotency(idempotencyStore),
		orders.WithRecorder(metrics),
	)
	shortfallService := shortfall.NewService(catalogRepo, ordersRepo)
	replenishmentService := replenishment.NewService(shortfallService, ordersService, ordersService, logger)

	reportClient := report.NewClient(cfg.GotenbergURL)
	routesService := routes.NewService(ordersService, catalogRepo, reportClient, routes.Config{
		Locale:       cfg.Locale(),
		DefaultLabel: cfg.DefaultRouteLabel,
	}, logger)

	summaryService := summary.NewService(
		summary.NewRepository(dbpool),
		shortfallService,
		summary.NewRedisStore(redisClient, cfg.SummaryTTL),
		logger,
	)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:               logger,
		Config:               cfg,
		Metrics:              metrics,
		DB:                   dbpool,
		ShortfallHandler:     shortfall.NewHandler(logger, shortfallService),
		ReplenishmentHandler: replenishment.NewHandler(logger, replenishmentService),
		OrdersHandler:        orders.NewHandler(logger, ordersService),
		RoutesHandler:        routes.NewHandler(logger, routesService),
		SummaryHandler:       summary.NewHandler(logger, summaryService),
		ReportHandler:        report.NewHandler(reportClient, logger),
		JobHandler:           jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}

func runJobsCommand(ctx context.Context, cfg *app.Config, args []string) int {
	jobsCLI, err := cli.NewJobsCLI(cfg.RedisAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "jobs: %v\n", err)
		return 1
	}
	defer func() {
		_ = jobsCLI.Close()
	}()
	return jobsCLI.Run(ctx, args, os.Stdout, os.Stderr)
}
