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

	"github.com/openbooks-erp/openbooks/internal/ap"
	"github.com/openbooks-erp/openbooks/internal/app"
	"github.com/openbooks-erp/openbooks/internal/ar"
	"github.com/openbooks-erp/openbooks/internal/audit"
	"github.com/openbooks-erp/openbooks/internal/ledger"
	"github.com/openbooks-erp/openbooks/internal/observability"
	"github.com/openbooks-erp/openbooks/internal/payments"
	"github.com/openbooks-erp/openbooks/internal/periods"
	"github.com/openbooks-erp/openbooks/internal/platform/cache"
	"github.com/openbooks-erp/openbooks/internal/platform/db"
	"github.com/openbooks-erp/openbooks/internal/reports"
	"github.com/openbooks-erp/openbooks/internal/taxes"
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

	tx := db.NewManager(pool)

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		// Reports degrade to uncached builds without Redis.
		logger.Warn("redis unavailable", slog.Any("error", err))
		redisClient = nil
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	audits := audit.NewBestEffort(audit.NewPGRecorder(pool), logger)

	periodService := periods.NewService(periods.NewPGRepository(pool))
	ledgerService := ledger.NewService(ledger.NewPGRepository(pool), tx)
	taxValidator := taxes.NewValidator(taxes.NewPGRepository(pool))

	apService := ap.NewService(ap.NewPGRepository(pool), ledgerService, taxValidator, periodService, audits, tx)
	arService := ar.NewService(ar.NewPGRepository(pool), ledgerService, taxValidator, periodService, audits, tx)
	paymentService := payments.NewService(
		payments.NewPGRepository(pool),
		ledgerService,
		payments.NewPGInvoiceChecker(pool),
		periodService,
		audits,
		tx,
		cfg.APControlCode,
		cfg.ARControlCode,
	)

	var reportCache *reports.Cache
	if redisClient != nil {
		reportCache = reports.NewCache(redisClient, cfg.ReportCacheTTL, logger)
	}
	reportService := reports.NewService(ledgerService, periodService, nil, reportCache)

	metrics := observability.NewMetrics()

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		PeriodsHandler:  periods.NewHandler(logger, periodService),
		LedgerHandler:   ledger.NewHandler(logger, ledgerService, periodService),
		APHandler:       ap.NewHandler(logger, apService),
		ARHandler:       ar.NewHandler(logger, arService),
		PaymentsHandler: payments.NewHandler(logger, paymentService),
		ReportsHandler:  reports.NewHandler(logger, reportService),
		JobsHandler:     jobs.NewHandler(inspector, logger),
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
