package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/fieldpay-hr/fieldpay/internal/app"
	"github.com/fieldpay-hr/fieldpay/internal/claims"
	"github.com/fieldpay-hr/fieldpay/internal/directory"
	jobmetrics "github.com/fieldpay-hr/fieldpay/internal/jobs"
	"github.com/fieldpay-hr/fieldpay/internal/payout"
	"github.com/fieldpay-hr/fieldpay/internal/platform/cache"
	"github.com/fieldpay-hr/fieldpay/internal/platform/db"
	"github.com/fieldpay-hr/fieldpay/internal/shared"
	"github.com/fieldpay-hr/fieldpay/jobs"
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

	logger := app.NewLogger(cfg)

	directory.DefaultKMRate = cfg.KMRate()

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
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

	auditLogger := shared.NewAuditLogger(pool)
	approvalRecorder := shared.NewApprovalRecorder(pool, logger)

	directoryService := directory.NewService(directory.NewRepository(pool))

	claimStore := claims.NewStore(pool)
	lifecycle := claims.NewLifecycle(claimStore, claims.NewPeriodLock(claimStore), approvalRecorder, auditLogger, logger)

	payoutService := payout.NewService(claimStore, directoryService, logger)

	client, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init queue client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Warn("queue client close", slog.Any("error", err))
		}
	}()

	metrics := jobmetrics.NewMetrics(nil)
	mailer := jobs.NewMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, logger)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeSendEmail, Handler: mailer.HandlerFunc()},
			{Type: jobs.TaskTypeResetCorrupted, Handler: jobs.NewResetCorruptedHandler(lifecycle, metrics, logger)},
			{Type: jobs.TaskTypeTeamReport, Handler: jobs.NewTeamReportHandler(payoutService, client, redisClient, metrics, logger)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "30 2 * * *", Task: jobs.NewResetCorruptedTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
