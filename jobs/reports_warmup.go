package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/openbooks-erp/openbooks/internal/jobs"
	"github.com/openbooks-erp/openbooks/internal/reports"
	"github.com/openbooks-erp/openbooks/internal/shared"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// ReportsWarmupJob pre-builds the cached statements so the first dashboard
// hit after a cache expiry does not pay the build cost.
type ReportsWarmupJob struct {
	Reports *reports.Service
	Pool    *pgxpool.Pool
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewReportsWarmupJob wires dependencies for the warm-up handler.
func NewReportsWarmupJob(reportsSvc *reports.Service, pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReportsWarmupJob {
	return &ReportsWarmupJob{
		Reports: reportsSvc,
		Pool:    pool,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes report warm-up tasks.
func (j *ReportsWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("reports warmup: handler not configured")
	}
	var payload ReportsWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskReportsWarmup)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	logger.Info("starting reports warmup")

	tenants, err := j.resolveTenants(ctx, payload)
	if err != nil {
		resultErr = err
		logger.Error("load warmup tenants", slog.Any("error", err))
		return resultErr
	}
	if len(tenants) == 0 {
		logger.Info("no tenants discovered for warmup")
		return resultErr
	}

	now := j.now()
	warmed := 0
	for _, tenant := range tenants {
		if err := j.warmTenant(ctx, tenant, now); err != nil {
			// A tenant whose books predate the requested window is
			// expected; anything else aborts the run.
			var pce *shared.PeriodControlError
			if errors.As(err, &pce) {
				logger.Warn("skipping tenant", slog.String("tenant", tenant.String()), slog.String("kind", string(pce.Kind)))
				continue
			}
			resultErr = err
			logger.Error("warm tenant", slog.String("tenant", tenant.String()), slog.Any("error", err))
			return resultErr
		}
		warmed++
	}

	logger.Info("completed reports warmup", slog.Int("tenants", warmed), slog.Duration("duration", time.Since(now)))
	return resultErr
}

// warmTenant builds the month-to-date income statement and the current
// balance sheet, the two statements the cache serves.
func (j *ReportsWarmupJob) warmTenant(ctx context.Context, tenant uuid.UUID, now time.Time) error {
	if j.Reports == nil {
		return nil
	}
	tenantCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	if _, err := j.Reports.ProfitAndLoss(tenantCtx, tenant, monthStart, today); err != nil {
		return err
	}
	if _, err := j.Reports.BalanceSheet(tenantCtx, tenant, today); err != nil {
		return err
	}
	return nil
}

func (j *ReportsWarmupJob) resolveTenants(ctx context.Context, payload ReportsWarmupPayload) ([]uuid.UUID, error) {
	if payload.TenantID != "" {
		tenant, err := uuid.Parse(payload.TenantID)
		if err != nil {
			return nil, err
		}
		return []uuid.UUID{tenant}, nil
	}
	if j.Pool == nil {
		return nil, errors.New("reports warmup: pool not configured")
	}
	rows, err := j.Pool.Query(ctx, `SELECT DISTINCT tenant_id FROM accounting_periods WHERE status = 'OPEN' ORDER BY tenant_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tenants := make([]uuid.UUID, 0)
	for rows.Next() {
		var tenant uuid.UUID
		if err := rows.Scan(&tenant); err != nil {
			return nil, err
		}
		tenants = append(tenants, tenant)
	}
	return tenants, rows.Err()
}

func (j *ReportsWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskReportsWarmup))
	}
	return slog.Default().With(slog.String("job", TaskReportsWarmup))
}

func (j *ReportsWarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *ReportsWarmupJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
