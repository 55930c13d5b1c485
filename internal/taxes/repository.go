package taxes

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openbooks-erp/openbooks/internal/platform/db"
)

// Repository is the read port for tax rate reference data.
type Repository interface {
	RatesByIDs(ctx context.Context, tenantID uuid.UUID, ids []int64) (map[int64]TaxRate, error)
}

// PGRepository is the pgx-backed Repository.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewPGRepository constructs a PGRepository over the pool.
func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// RatesByIDs loads a batch of rates keyed by id.
func (r *PGRepository) RatesByIDs(ctx context.Context, tenantID uuid.UUID, ids []int64) (map[int64]TaxRate, error) {
	if len(ids) == 0 {
		return map[int64]TaxRate{}, nil
	}
	q := db.QuerierFrom(ctx, r.pool)
	rows, err := q.Query(ctx, `SELECT id, tenant_id, name, type, rate, gl_account_id, is_active
		FROM tax_rates WHERE tenant_id = $1 AND id = ANY($2)`, tenantID, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64]TaxRate, len(ids))
	for rows.Next() {
		var tr TaxRate
		if err := rows.Scan(&tr.ID, &tr.TenantID, &tr.Name, &tr.Type, &tr.Rate, &tr.GLAccountID, &tr.IsActive); err != nil {
			return nil, err
		}
		out[tr.ID] = tr
	}
	return out, rows.Err()
}
