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
	"github.com/joho/godotenv"

	"github.com/ledgercore/ledgercore/internal/app"
	"github.com/ledgercore/ledgercore/internal/gl/accounts"
	"github.com/ledgercore/ledgercore/internal/gl/balances"
	"github.com/ledgercore/ledgercore/internal/gl/journals"
	"github.com/ledgercore/ledgercore/internal/gl/outbox"
	"github.com/ledgercore/ledgercore/internal/gl/periods"
	"github.com/ledgercore/ledgercore/internal/gl/reports"
	glrouter "github.com/ledgercore/ledgercore/internal/gl/router"
	"github.com/ledgercore/ledgercore/internal/observability"
	"github.com/ledgercore/ledgercore/internal/platform/cache"
	"github.com/ledgercore/ledgercore/internal/platform/db"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	accountRepo := accounts.NewRepository(pool)
	accountService := accounts.NewService(accountRepo)

	periodRepo := periods.NewRepository(pool)
	periodService := periods.NewService(periodRepo, logger)
	periodHandler := periods.NewHandler(logger, periodService)

	balanceRepo := balances.NewRepository(pool)
	balanceService := balances.NewService(balanceRepo, periodService)
	balanceHandler := balances.NewHandler(logger, balanceService, redisClient, cfg.TrialBalanceCacheTTL)

	journalRepo := journals.NewRepository(pool)
	journalService := journals.NewService(journalRepo, accountService, logger)
	journalHandler := journals.NewHandler(logger, journalService, metrics)

	reportRepo := reports.NewRepository(pool)
	reportService := reports.NewService(reportRepo, periodService)
	reportHandler := reports.NewHandler(logger, reportService)

	deadLetters := glrouter.NewDeadLetterStore(pool)

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Warn("asynq client close", slog.Any("error", err))
		}
	}()
	relay := outbox.NewRelay(pool, asynqClient, logger)
	go func() {
		if err := relay.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("outbox relay stopped", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		JournalsHandler: journalHandler,
		BalancesHandler: balanceHandler,
		PeriodsHandler:  periodHandler,
		ReportsHandler:  reportHandler,
		DeadLetters:     deadLetters,
		Pool:            pool,
		Metrics:         metrics,
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
