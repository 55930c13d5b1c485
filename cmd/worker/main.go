package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/openbooks-erp/openbooks/internal/app"
	jobmetrics "github.com/openbooks-erp/openbooks/internal/jobs"
	"github.com/openbooks-erp/openbooks/internal/ledger"
	"github.com/openbooks-erp/openbooks/internal/periods"
	"github.com/openbooks-erp/openbooks/internal/platform/cache"
	"github.com/openbooks-erp/openbooks/internal/platform/db"
	"github.com/openbooks-erp/openbooks/internal/reports"
	"github.com/openbooks-erp/openbooks/jobs"
)

func main() {
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

	tx := db.NewManager(pool)
	ledgerService := ledger.NewService(ledger.NewPGRepository(pool), tx)
	periodService := periods.NewService(periods.NewPGRepository(pool))
	reportCache := reports.NewCache(redisClient, cfg.ReportCacheTTL, logger)
	reportService := reports.NewService(ledgerService, periodService, nil, reportCache)

	warmupJob := jobs.NewReportsWarmupJob(reportService, pool, logger, jobmetrics.NewMetrics(nil))

	warmupTask, err := jobs.NewReportsWarmupTask(jobs.ReportsWarmupPayload{})
	if err != nil {
		logger.Error("build warmup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskReportsWarmup, Handler: warmupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			// Every 10 minutes keeps the hot statements inside the cache TTL.
			{Spec: "*/10 * * * *", Task: warmupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
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
