package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/ledgercore/ledgercore/internal/app"
	"github.com/ledgercore/ledgercore/internal/gl/accounts"
	"github.com/ledgercore/ledgercore/internal/gl/journals"
	"github.com/ledgercore/ledgercore/internal/gl/periods"
	glrouter "github.com/ledgercore/ledgercore/internal/gl/router"
	jobmetrics "github.com/ledgercore/ledgercore/internal/jobs"
	"github.com/ledgercore/ledgercore/internal/observability"
	"github.com/ledgercore/ledgercore/internal/platform/db"
	"github.com/ledgercore/ledgercore/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	metrics := observability.NewMetrics()

	accountRepo := accounts.NewRepository(pool)
	accountService := accounts.NewService(accountRepo)

	journalRepo := journals.NewRepository(pool)
	journalService := journals.NewService(journalRepo, accountService, logger)

	periodRepo := periods.NewRepository(pool)
	periodService := periods.NewService(periodRepo, logger)

	retryCfg := glrouter.Config{
		MaxAttempts:    cfg.RetryMaxAttempts,
		InitialBackoff: cfg.RetryInitialBackoff,
		MaxBackoff:     cfg.RetryMaxBackoff,
	}
	deadLetters := glrouter.NewDeadLetterStore(pool)
	eventRouter := glrouter.New(retryCfg, deadLetters, metrics, logger)

	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())
	glHandlers := jobs.NewGLHandlers(journalService, eventRouter, jobMetrics, logger)
	integrityJob := jobs.NewGLIntegrityJob(periodService, periodRepo, jobMetrics, logger)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeGLPosting, Handler: glHandlers.HandlePosting},
			{Type: jobs.TaskTypeGLReversal, Handler: glHandlers.HandleReversal},
			{Type: jobs.TaskTypeGLIntegrityScan, Handler: integrityJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "45 1 * * *", Task: jobs.NewIntegrityScanTask(), Options: []asynq.Option{asynq.MaxRetry(1)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("starting worker", slog.Int("concurrency", cfg.WorkerConcurrency))
	if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
