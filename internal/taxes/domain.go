// Package taxes holds tax rate reference data and the invoice tax validator.
package taxes

import (
	"github.com/google/uuid"

	"github.com/openbooks-erp/openbooks/internal/money"
)

// RateType separates purchase-side from sales-side rates. INPUT rates apply
// only to supplier invoices, OUTPUT only to customer invoices.
type RateType string

const (
	RateTypeInput  RateType = "INPUT"
	RateTypeOutput RateType = "OUTPUT"
)

// TaxRate is a tenant-scoped configured rate pointing at the GL account the
// collected or reclaimable tax posts to.
type TaxRate struct {
	ID          int64
	TenantID    uuid.UUID
	Name        string
	Type        RateType
	Rate        money.Rate
	GLAccountID int64
	IsActive    bool
}

// LineInput is one invoice tax line as submitted by the caller.
type LineInput struct {
	TaxRateID     int64
	TaxableAmount money.Money
	TaxAmount     money.Money
}

// Row is a validated tax line, normalized with its destination GL account for
// the caller to persist and fold into the journal entry.
type Row struct {
	TaxRateID     int64
	GLAccountID   int64
	TaxableAmount money.Money
	TaxAmount     money.Money
}

// Result is the outcome of a successful validation.
type Result struct {
	TotalTax money.Money
	Rows     []Row
}

// TaxByGLAccount aggregates the validated tax amounts per destination GL
// account, the shape journal lines are built from.
func (r Result) TaxByGLAccount() map[int64]money.Money {
	out := make(map[int64]money.Money, len(r.Rows))
	for _, row := range r.Rows {
		out[row.GLAccountID] = out[row.GLAccountID].Add(row.TaxAmount)
	}
	return out
}
