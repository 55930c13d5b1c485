package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openbooks-erp/openbooks/internal/platform/db"
	"github.com/openbooks-erp/openbooks/internal/shared"
)

// Repository is the persistence port for payments.
type Repository interface {
	NextNumber(ctx context.Context, tenantID uuid.UUID, year int) (int64, error)
	Insert(ctx context.Context, p Payment) (Payment, error)
	Get(ctx context.Context, tenantID uuid.UUID, id int64) (Payment, error)
	MarkApproved(ctx context.Context, tenantID uuid.UUID, id, approverID int64) error
	MarkPosted(ctx context.Context, tenantID uuid.UUID, id, posterID int64, at time.Time, journalID int64) error
}

// PGRepository is the pgx-backed Repository.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewPGRepository constructs a PGRepository over the pool.
func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// NextNumber atomically increments and returns the tenant's payment sequence
// for the year.
func (r *PGRepository) NextNumber(ctx context.Context, tenantID uuid.UUID, year int) (int64, error) {
	q := db.QuerierFrom(ctx, r.pool)
	var seq int64
	err := q.QueryRow(ctx, `INSERT INTO document_sequences (tenant_id, doc_type, year, last_value)
		VALUES ($1, 'payment', $2, 1)
		ON CONFLICT (tenant_id, doc_type, year)
		DO UPDATE SET last_value = document_sequences.last_value + 1
		RETURNING last_value`, tenantID, year).Scan(&seq)
	return seq, err
}

// Insert persists the payment header and allocations.
func (r *PGRepository) Insert(ctx context.Context, p Payment) (Payment, error) {
	q := db.QuerierFrom(ctx, r.pool)
	err := q.QueryRow(ctx, `INSERT INTO payments
		(tenant_id, number, type, bank_account_id, amount, payment_date, status, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		p.TenantID, p.Number, p.Type, p.BankAccountID, p.Amount, p.PaymentDate,
		p.Status, p.CreatedByID).Scan(&p.ID)
	if err != nil {
		return Payment{}, err
	}
	for i := range p.Allocations {
		alloc := &p.Allocations[i]
		alloc.PaymentID = p.ID
		err := q.QueryRow(ctx, `INSERT INTO payment_allocations
			(payment_id, source_type, source_id, amount)
			VALUES ($1, $2, $3, $4)
			RETURNING id`,
			p.ID, alloc.SourceType, alloc.SourceID, alloc.Amount).Scan(&alloc.ID)
		if err != nil {
			return Payment{}, err
		}
	}
	return p, nil
}

// Get loads a payment with its allocations.
func (r *PGRepository) Get(ctx context.Context, tenantID uuid.UUID, id int64) (Payment, error) {
	q := db.QuerierFrom(ctx, r.pool)
	var p Payment
	var approvedBy, postedBy, journalID *int64
	var postedAt *time.Time
	err := q.QueryRow(ctx, `SELECT id, tenant_id, number, type, bank_account_id, amount, payment_date,
			status, created_by, approved_by, posted_by, posted_at, journal_entry_id
		FROM payments WHERE tenant_id = $1 AND id = $2`, tenantID, id).Scan(
		&p.ID, &p.TenantID, &p.Number, &p.Type, &p.BankAccountID, &p.Amount, &p.PaymentDate,
		&p.Status, &p.CreatedByID, &approvedBy, &postedBy, &postedAt, &journalID)
	if errors.Is(err, pgx.ErrNoRows) {
		return Payment{}, &shared.NotFoundError{Entity: "payment", ID: fmt.Sprintf("%d", id)}
	}
	if err != nil {
		return Payment{}, err
	}
	if approvedBy != nil {
		p.ApprovedByID = *approvedBy
	}
	if postedBy != nil {
		p.PostedByID = *postedBy
	}
	if postedAt != nil {
		p.PostedAt = *postedAt
	}
	if journalID != nil {
		p.JournalID = *journalID
	}

	rows, err := q.Query(ctx, `SELECT id, payment_id, source_type, source_id, amount
		FROM payment_allocations WHERE payment_id = $1 ORDER BY id`, id)
	if err != nil {
		return Payment{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var alloc Allocation
		if err := rows.Scan(&alloc.ID, &alloc.PaymentID, &alloc.SourceType, &alloc.SourceID, &alloc.Amount); err != nil {
			return Payment{}, err
		}
		p.Allocations = append(p.Allocations, alloc)
	}
	return p, rows.Err()
}

func (r *PGRepository) transition(ctx context.Context, tenantID uuid.UUID, id int64, from, to Status, set string, args ...any) error {
	q := db.QuerierFrom(ctx, r.pool)
	sql := fmt.Sprintf(`UPDATE payments SET status = $3%s
		WHERE tenant_id = $1 AND id = $2 AND status = $4`, set)
	tag, err := q.Exec(ctx, sql, append([]any{tenantID, id, to, from}, args...)...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &shared.ConflictError{Entity: "payment", Message: fmt.Sprintf("payment is not %s", from)}
	}
	return nil
}

// MarkApproved flips DRAFT to APPROVED, stamping the approver.
func (r *PGRepository) MarkApproved(ctx context.Context, tenantID uuid.UUID, id, approverID int64) error {
	return r.transition(ctx, tenantID, id, StatusDraft, StatusApproved, ", approved_by = $5", approverID)
}

// MarkPosted flips APPROVED to POSTED, stamping poster, time, and journal id.
func (r *PGRepository) MarkPosted(ctx context.Context, tenantID uuid.UUID, id, posterID int64, at time.Time, journalID int64) error {
	return r.transition(ctx, tenantID, id, StatusApproved, StatusPosted,
		", posted_by = $5, posted_at = $6, journal_entry_id = $7", posterID, at, journalID)
}

// PGInvoiceChecker answers allocation-target checks against the invoice
// tables directly.
type PGInvoiceChecker struct {
	pool *pgxpool.Pool
}

// NewPGInvoiceChecker constructs a PGInvoiceChecker over the pool.
func NewPGInvoiceChecker(pool *pgxpool.Pool) *PGInvoiceChecker {
	return &PGInvoiceChecker{pool: pool}
}

// IsPosted reports whether the allocated invoice is POSTED.
func (c *PGInvoiceChecker) IsPosted(ctx context.Context, tenantID uuid.UUID, sourceType string, sourceID int64) (bool, error) {
	var table string
	switch sourceType {
	case SourceSupplierInvoice:
		table = "supplier_invoices"
	case SourceCustomerInvoice:
		table = "customer_invoices"
	default:
		return false, shared.NewValidation("INVALID_ALLOCATION_SOURCE", fmt.Sprintf("unknown source type %q", sourceType))
	}
	q := db.QuerierFrom(ctx, c.pool)
	var posted bool
	err := q.QueryRow(ctx, fmt.Sprintf(`SELECT EXISTS (
		SELECT 1 FROM %s WHERE tenant_id = $1 AND id = $2 AND status = 'POSTED')`, table),
		tenantID, sourceID).Scan(&posted)
	return posted, err
}
