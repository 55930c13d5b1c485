package ap

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/openbooks-erp/openbooks/internal/money"
	"github.com/openbooks-erp/openbooks/internal/periods"
	"github.com/openbooks-erp/openbooks/internal/platform/db"
)

// OpenInvoice is a posted invoice with an unpaid balance as of a date.
type OpenInvoice struct {
	ID           int64
	Number       string
	SupplierName string
	DueDate      time.Time
	OpenAmount   money.Money
}

// AgingBucket groups open balances by days past due.
type AgingBucket struct {
	Label string
	Count int
	Total money.Money
}

// AgingSummary is the payables aging report: open posted invoices bucketed
// by how far past due they are on the as-of date.
type AgingSummary struct {
	AsOf      time.Time
	Buckets   []AgingBucket
	TotalOpen money.Money
}

var agingLabels = []string{"CURRENT", "1-30", "31-60", "61-90", "90+"}

// buildAging buckets open invoices by days past due.
func buildAging(asOf time.Time, invoices []OpenInvoice) AgingSummary {
	summary := AgingSummary{AsOf: asOf}
	buckets := make([]AgingBucket, len(agingLabels))
	for i, label := range agingLabels {
		buckets[i].Label = label
	}
	day := periods.DateOnly(asOf)
	for _, inv := range invoices {
		overdue := int(day.Sub(periods.DateOnly(inv.DueDate)).Hours() / 24)
		idx := 0
		switch {
		case overdue <= 0:
			idx = 0
		case overdue <= 30:
			idx = 1
		case overdue <= 60:
			idx = 2
		case overdue <= 90:
			idx = 3
		default:
			idx = 4
		}
		buckets[idx].Count++
		buckets[idx].Total = buckets[idx].Total.Add(inv.OpenAmount)
		summary.TotalOpen = summary.TotalOpen.Add(inv.OpenAmount)
	}
	summary.Buckets = buckets
	return summary
}

// Aging derives the payables aging summary from posted invoices and posted
// payment allocations.
func (s *Service) Aging(ctx context.Context, tenantID uuid.UUID, asOf time.Time) (AgingSummary, error) {
	if asOf.IsZero() {
		asOf = s.now().UTC()
	}
	open, err := s.repo.OpenAsOf(ctx, tenantID, periods.DateOnly(asOf))
	if err != nil {
		return AgingSummary{}, err
	}
	return buildAging(asOf, open), nil
}

// OpenAsOf lists posted invoices whose gross total is not fully covered by
// allocations from posted payments on or before the as-of date. Invoices
// without a due date fall back to the invoice date.
func (r *PGRepository) OpenAsOf(ctx context.Context, tenantID uuid.UUID, asOf time.Time) ([]OpenInvoice, error) {
	q := db.QuerierFrom(ctx, r.pool)
	rows, err := q.Query(ctx, `SELECT i.id, i.number, i.supplier_name,
			COALESCE(i.due_date, i.invoice_date),
			i.total_amount - COALESCE(paid.amount, 0)
		FROM supplier_invoices i
		LEFT JOIN (
			SELECT pa.source_id, SUM(pa.amount) AS amount
			FROM payment_allocations pa
			JOIN payments p ON p.id = pa.payment_id
			WHERE p.tenant_id = $1 AND p.status = 'POSTED'
				AND p.payment_date <= $2 AND pa.source_type = 'supplier_invoice'
			GROUP BY pa.source_id
		) paid ON paid.source_id = i.id
		WHERE i.tenant_id = $1 AND i.status = 'POSTED' AND i.invoice_date <= $2
			AND i.total_amount - COALESCE(paid.amount, 0) <> 0
		ORDER BY i.id`, tenantID, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	open := make([]OpenInvoice, 0)
	for rows.Next() {
		var inv OpenInvoice
		if err := rows.Scan(&inv.ID, &inv.Number, &inv.SupplierName, &inv.DueDate, &inv.OpenAmount); err != nil {
			return nil, err
		}
		open = append(open, inv)
	}
	return open, rows.Err()
}
