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

	"github.com/fieldpay-hr/fieldpay/internal/app"
	"github.com/fieldpay-hr/fieldpay/internal/batch"
	"github.com/fieldpay-hr/fieldpay/internal/claims"
	"github.com/fieldpay-hr/fieldpay/internal/directory"
	"github.com/fieldpay-hr/fieldpay/internal/observability"
	"github.com/fieldpay-hr/fieldpay/internal/payout"
	"github.com/fieldpay-hr/fieldpay/internal/platform/cache"
	"github.com/fieldpay-hr/fieldpay/internal/platform/db"
	"github.com/fieldpay-hr/fieldpay/internal/shared"
	"github.com/fieldpay-hr/fieldpay/jobs"
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

	logger := app.NewLogger(cfg)

	directory.DefaultKMRate = cfg.KMRate()

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

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

	auditLogger := shared.NewAuditLogger(dbpool)
	approvalRecorder := shared.NewApprovalRecorder(dbpool, logger)

	directoryRepo := directory.NewRepository(dbpool)
	directoryService := directory.NewService(directoryRepo)
	actors := directory.Middleware{Service: directoryService, Logger: logger}

	metrics := observability.NewMetrics()

	claimStore := claims.NewStore(dbpool)
	weekLock := claims.NewPeriodLock(claimStore)
	lifecycle := claims.NewLifecycle(claimStore, weekLock, approvalRecorder, auditLogger, logger)
	lifecycle.SetMetrics(metrics)
	claimsHandler := claims.NewHandler(logger, lifecycle)

	payoutService := payout.NewService(claimStore, directoryService, logger)
	payoutHandler := payout.NewHandler(logger, payoutService)

	sweeper := batch.NewProcessor(claimStore, directoryService, redisClient, approvalRecorder, logger)
	batchHandler := batch.NewHandler(logger, sweeper)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	queueClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init queue client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := queueClient.Close(); err != nil {
			logger.Warn("queue client close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, queueClient, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:        logger,
		Config:        cfg,
		Actors:        actors,
		ClaimsHandler: claimsHandler,
		PayoutHandler: payoutHandler,
		BatchHandler:  batchHandler,
		JobHandler:    jobHandler,
		Metrics:       metrics,
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
