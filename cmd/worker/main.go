package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/firmdesk/firmdesk/internal/app"
	"github.com/firmdesk/firmdesk/internal/observability"
	"github.com/firmdesk/firmdesk/internal/platform/db"
	"github.com/firmdesk/firmdesk/internal/shared"
	"github.com/firmdesk/firmdesk/internal/tenant"
	"github.com/firmdesk/firmdesk/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Default().Warn("load .env", slog.Any("error", err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)
	tenant.Configure(tenant.Scoping{Enabled: cfg.MultiTenancyEnabled})

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	metrics := observability.NewMetrics()
	auditJob := jobs.NewAuditJob(shared.NewAuditLogger(pool), logger, metrics.Jobs())
	auditJob.Keys = shared.NewIdempotencyStore(pool)

	cron, err := jobs.PruneSchedule(cfg.AuditRetention)
	if err != nil {
		logger.Error("build prune schedule", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers:    auditJob.Handlers(),
		Cron:        cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
