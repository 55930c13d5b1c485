package ap

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

// Repository is the persistence port for supplier invoices.
type Repository interface {
	NextNumber(ctx context.Context, tenantID uuid.UUID, year int) (int64, error)
	Insert(ctx context.Context, inv SupplierInvoice) (SupplierInvoice, error)
	Get(ctx context.Context, tenantID uuid.UUID, id int64) (SupplierInvoice, error)
	MarkSubmitted(ctx context.Context, tenantID uuid.UUID, id int64) error
	MarkApproved(ctx context.Context, tenantID uuid.UUID, id, approverID int64) error
	MarkPosted(ctx context.Context, tenantID uuid.UUID, id, posterID int64, at time.Time, journalID int64) error
	OpenAsOf(ctx context.Context, tenantID uuid.UUID, asOf time.Time) ([]OpenInvoice, error)
}

// PGRepository is the pgx-backed Repository. All writes run against the
// ambient transaction opened by the service.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewPGRepository constructs a PGRepository over the pool.
func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// NextNumber atomically increments and returns the tenant's supplier invoice
// sequence for the year.
func (r *PGRepository) NextNumber(ctx context.Context, tenantID uuid.UUID, year int) (int64, error) {
	q := db.QuerierFrom(ctx, r.pool)
	var seq int64
	err := q.QueryRow(ctx, `INSERT INTO document_sequences (tenant_id, doc_type, year, last_value)
		VALUES ($1, 'supplier_invoice', $2, 1)
		ON CONFLICT (tenant_id, doc_type, year)
		DO UPDATE SET last_value = document_sequences.last_value + 1
		RETURNING last_value`, tenantID, year).Scan(&seq)
	return seq, err
}

// Insert persists the invoice header, lines, and tax lines.
func (r *PGRepository) Insert(ctx context.Context, inv SupplierInvoice) (SupplierInvoice, error) {
	q := db.QuerierFrom(ctx, r.pool)
	err := q.QueryRow(ctx, `INSERT INTO supplier_invoices
		(tenant_id, number, supplier_name, invoice_date, due_date, total_amount, status, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		inv.TenantID, inv.Number, inv.SupplierName, inv.InvoiceDate, inv.DueDate,
		inv.TotalAmount, inv.Status, inv.CreatedByID).Scan(&inv.ID)
	if err != nil {
		return SupplierInvoice{}, err
	}
	for i := range inv.Lines {
		line := &inv.Lines[i]
		line.InvoiceID = inv.ID
		err := q.QueryRow(ctx, `INSERT INTO supplier_invoice_lines
			(invoice_id, account_id, description, amount)
			VALUES ($1, $2, $3, $4)
			RETURNING id`,
			inv.ID, line.AccountID, line.Description, line.Amount).Scan(&line.ID)
		if err != nil {
			return SupplierInvoice{}, err
		}
	}
	for i := range inv.TaxLines {
		tl := &inv.TaxLines[i]
		tl.InvoiceID = inv.ID
		err := q.QueryRow(ctx, `INSERT INTO supplier_invoice_tax_lines
			(invoice_id, tax_rate_id, taxable_amount, tax_amount)
			VALUES ($1, $2, $3, $4)
			RETURNING id`,
			inv.ID, tl.TaxRateID, tl.TaxableAmount, tl.TaxAmount).Scan(&tl.ID)
		if err != nil {
			return SupplierInvoice{}, err
		}
	}
	return inv, nil
}

// Get loads an invoice with its lines and tax lines.
func (r *PGRepository) Get(ctx context.Context, tenantID uuid.UUID, id int64) (SupplierInvoice, error) {
	q := db.QuerierFrom(ctx, r.pool)
	var inv SupplierInvoice
	var approvedBy, postedBy, journalID *int64
	var postedAt *time.Time
	err := q.QueryRow(ctx, `SELECT id, tenant_id, number, supplier_name, invoice_date, due_date,
			total_amount, status, created_by, approved_by, posted_by, posted_at, journal_entry_id
		FROM supplier_invoices WHERE tenant_id = $1 AND id = $2`, tenantID, id).Scan(
		&inv.ID, &inv.TenantID, &inv.Number, &inv.SupplierName, &inv.InvoiceDate, &inv.DueDate,
		&inv.TotalAmount, &inv.Status, &inv.CreatedByID, &approvedBy, &postedBy, &postedAt, &journalID)
	if errors.Is(err, pgx.ErrNoRows) {
		return SupplierInvoice{}, &shared.NotFoundError{Entity: "supplier invoice", ID: fmt.Sprintf("%d", id)}
	}
	if err != nil {
		return SupplierInvoice{}, err
	}
	if approvedBy != nil {
		inv.ApprovedByID = *approvedBy
	}
	if postedBy != nil {
		inv.PostedByID = *postedBy
	}
	if postedAt != nil {
		inv.PostedAt = *postedAt
	}
	if journalID != nil {
		inv.JournalID = *journalID
	}

	rows, err := q.Query(ctx, `SELECT id, invoice_id, account_id, description, amount
		FROM supplier_invoice_lines WHERE invoice_id = $1 ORDER BY id`, id)
	if err != nil {
		return SupplierInvoice{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line InvoiceLine
		if err := rows.Scan(&line.ID, &line.InvoiceID, &line.AccountID, &line.Description, &line.Amount); err != nil {
			return SupplierInvoice{}, err
		}
		inv.Lines = append(inv.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return SupplierInvoice{}, err
	}

	taxRows, err := q.Query(ctx, `SELECT id, invoice_id, tax_rate_id, taxable_amount, tax_amount
		FROM supplier_invoice_tax_lines WHERE invoice_id = $1 ORDER BY id`, id)
	if err != nil {
		return SupplierInvoice{}, err
	}
	defer taxRows.Close()
	for taxRows.Next() {
		var tl TaxLine
		if err := taxRows.Scan(&tl.ID, &tl.InvoiceID, &tl.TaxRateID, &tl.TaxableAmount, &tl.TaxAmount); err != nil {
			return SupplierInvoice{}, err
		}
		inv.TaxLines = append(inv.TaxLines, tl)
	}
	return inv, taxRows.Err()
}

func (r *PGRepository) transition(ctx context.Context, tenantID uuid.UUID, id int64, from, to Status, set string, args ...any) error {
	q := db.QuerierFrom(ctx, r.pool)
	sql := fmt.Sprintf(`UPDATE supplier_invoices SET status = $3%s
		WHERE tenant_id = $1 AND id = $2 AND status = $4`, set)
	tag, err := q.Exec(ctx, sql, append([]any{tenantID, id, to, from}, args...)...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &shared.ConflictError{Entity: "supplier invoice", Message: fmt.Sprintf("invoice is not %s", from)}
	}
	return nil
}

// MarkSubmitted flips DRAFT to SUBMITTED.
func (r *PGRepository) MarkSubmitted(ctx context.Context, tenantID uuid.UUID, id int64) error {
	return r.transition(ctx, tenantID, id, StatusDraft, StatusSubmitted, "")
}

// MarkApproved flips SUBMITTED to APPROVED, stamping the approver.
func (r *PGRepository) MarkApproved(ctx context.Context, tenantID uuid.UUID, id, approverID int64) error {
	return r.transition(ctx, tenantID, id, StatusSubmitted, StatusApproved, ", approved_by = $5", approverID)
}

// MarkPosted flips APPROVED to POSTED, stamping poster, time, and journal id.
func (r *PGRepository) MarkPosted(ctx context.Context, tenantID uuid.UUID, id, posterID int64, at time.Time, journalID int64) error {
	return r.transition(ctx, tenantID, id, StatusApproved, StatusPosted,
		", posted_by = $5, posted_at = $6, journal_entry_id = $7", posterID, at, journalID)
}
