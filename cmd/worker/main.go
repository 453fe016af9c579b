package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/stockpile-ims/stockpile/internal/app"
	"github.com/stockpile-ims/stockpile/internal/platform/cache"
	"github.com/stockpile-ims/stockpile/internal/platform/db"
	"github.com/stockpile-ims/stockpile/internal/reports"
	"github.com/stockpile-ims/stockpile/jobs"
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

	reportsCache := reports.NewCache(redisClient, 10*time.Minute)
	reportsService := reports.NewService(dbpool, reportsCache, cfg.LowStockThreshold, logger)

	mailer := jobs.NewMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, logger)
	lowStockJob := jobs.NewLowStockScanJob(reportsService, mailer, logger)
	ledgerJob := jobs.NewLedgerIntegrityJob(dbpool, mailer, logger)

	scanTask, err := jobs.NewLowStockScanTask(jobs.LowStockScanPayload{NotifyEmail: cfg.NotifyEmail})
	if err != nil {
		logger.Error("build low stock task", slog.Any("error", err))
		os.Exit(1)
	}
	ledgerTask, err := jobs.NewLedgerIntegrityTask(jobs.LedgerIntegrityPayload{NotifyEmail: cfg.NotifyEmail})
	if err != nil {
		logger.Error("build ledger task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskLowStockScan, Handler: lowStockJob.Handle},
			{Type: jobs.TaskLedgerIntegrity, Handler: ledgerJob.Handle},
			{Type: jobs.TaskSendEmail, Handler: mailer.HandleSendEmail},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 6 * * *", Task: scanTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "30 2 * * 0", Task: ledgerTask, Options: []asynq.Option{asynq.MaxRetry(1)}},
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
