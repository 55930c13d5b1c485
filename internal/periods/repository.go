package periods

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openbooks-erp/openbooks/internal/platform/db"
	"github.com/openbooks-erp/openbooks/internal/shared"
)

// Repository is the persistence port for accounting periods.
type Repository interface {
	FindByID(ctx context.Context, tenantID uuid.UUID, id int64) (Period, error)
	FindByDate(ctx context.Context, tenantID uuid.UUID, date time.Time) (Period, error)
	FindOpeningBalances(ctx context.Context, tenantID uuid.UUID) (Period, error)
	ListOverlapping(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]Period, error)
	RangeConflict(ctx context.Context, tenantID uuid.UUID, from, to time.Time) (bool, error)
	Insert(ctx context.Context, in CreatePeriodInput, status Status) (Period, error)
	UpdateStatus(ctx context.Context, tenantID uuid.UUID, id int64, status Status) error
}

// PGRepository is the pgx-backed Repository. Queries run against the ambient
// transaction when one is open.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewPGRepository constructs a PGRepository over the pool.
func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const periodColumns = `id, tenant_id, name, start_date, end_date, status`

func scanPeriod(row pgx.Row) (Period, error) {
	var p Period
	err := row.Scan(&p.ID, &p.TenantID, &p.Name, &p.StartDate, &p.EndDate, &p.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return Period{}, &shared.NotFoundError{Entity: "period", ID: ""}
	}
	return p, err
}

// FindByID loads a single period.
func (r *PGRepository) FindByID(ctx context.Context, tenantID uuid.UUID, id int64) (Period, error) {
	q := db.QuerierFrom(ctx, r.pool)
	return scanPeriod(q.QueryRow(ctx, `SELECT `+periodColumns+`
		FROM accounting_periods WHERE tenant_id = $1 AND id = $2`, tenantID, id))
}

// FindByDate resolves the period covering the given day.
func (r *PGRepository) FindByDate(ctx context.Context, tenantID uuid.UUID, date time.Time) (Period, error) {
	q := db.QuerierFrom(ctx, r.pool)
	return scanPeriod(q.QueryRow(ctx, `SELECT `+periodColumns+`
		FROM accounting_periods
		WHERE tenant_id = $1 AND start_date <= $2 AND end_date >= $2
		ORDER BY start_date LIMIT 1`, tenantID, DateOnly(date)))
}

// FindOpeningBalances loads the reserved cutover period, if any.
func (r *PGRepository) FindOpeningBalances(ctx context.Context, tenantID uuid.UUID) (Period, error) {
	q := db.QuerierFrom(ctx, r.pool)
	return scanPeriod(q.QueryRow(ctx, `SELECT `+periodColumns+`
		FROM accounting_periods
		WHERE tenant_id = $1 AND lower(trim(name)) = lower($2)
		LIMIT 1`, tenantID, OpeningBalancesName))
}

// ListOverlapping returns periods intersecting [from, to], ordered by start.
func (r *PGRepository) ListOverlapping(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]Period, error) {
	q := db.QuerierFrom(ctx, r.pool)
	rows, err := q.Query(ctx, `SELECT `+periodColumns+`
		FROM accounting_periods
		WHERE tenant_id = $1 AND start_date <= $2 AND end_date >= $3
		ORDER BY start_date, end_date`, tenantID, DateOnly(to), DateOnly(from))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Period
	for rows.Next() {
		var p Period
		if err := rows.Scan(&p.ID, &p.TenantID, &p.Name, &p.StartDate, &p.EndDate, &p.Status); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// RangeConflict reports whether any existing period intersects [from, to].
func (r *PGRepository) RangeConflict(ctx context.Context, tenantID uuid.UUID, from, to time.Time) (bool, error) {
	q := db.QuerierFrom(ctx, r.pool)
	var exists bool
	err := q.QueryRow(ctx, `SELECT EXISTS (
		SELECT 1 FROM accounting_periods
		WHERE tenant_id = $1 AND start_date <= $2 AND end_date >= $3)`,
		tenantID, DateOnly(to), DateOnly(from)).Scan(&exists)
	return exists, err
}

// Insert creates a period and returns the stored row.
func (r *PGRepository) Insert(ctx context.Context, in CreatePeriodInput, status Status) (Period, error) {
	q := db.QuerierFrom(ctx, r.pool)
	return scanPeriod(q.QueryRow(ctx, `INSERT INTO accounting_periods
		(tenant_id, name, start_date, end_date, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+periodColumns,
		in.TenantID, in.Name, DateOnly(in.StartDate), DateOnly(in.EndDate), status))
}

// UpdateStatus transitions a period's lifecycle state.
func (r *PGRepository) UpdateStatus(ctx context.Context, tenantID uuid.UUID, id int64, status Status) error {
	q := db.QuerierFrom(ctx, r.pool)
	tag, err := q.Exec(ctx, `UPDATE accounting_periods SET status = $3
		WHERE tenant_id = $1 AND id = $2`, tenantID, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &shared.NotFoundError{Entity: "period", ID: ""}
	}
	return nil
}
