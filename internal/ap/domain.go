// Package ap implements the supplier invoice lifecycle: draft capture,
// submission, approval under segregation of duties, and posting to the ledger
// against the accounts payable control account.
package ap

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/openbooks-erp/openbooks/internal/money"
	"github.com/openbooks-erp/openbooks/internal/shared"
	"github.com/openbooks-erp/openbooks/internal/taxes"
)

// Status enumerates supplier invoice lifecycle states. Transitions are
// monotonic; POSTED is terminal.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusSubmitted Status = "SUBMITTED"
	StatusApproved  Status = "APPROVED"
	StatusPosted    Status = "POSTED"
)

// DefaultControlAccountCode is the accounts payable control account used when
// the caller does not override it at posting time.
const DefaultControlAccountCode = "2000"

// SupplierInvoice is a tenant-scoped purchase invoice.
type SupplierInvoice struct {
	ID           int64
	TenantID     uuid.UUID
	Number       string
	SupplierName string
	InvoiceDate  time.Time
	DueDate      time.Time
	TotalAmount  money.Money
	Status       Status
	CreatedByID  int64
	ApprovedByID int64
	PostedByID   int64
	PostedAt     time.Time
	JournalID    int64
	Lines        []InvoiceLine
	TaxLines     []TaxLine
}

// NetAmount is the tax-exclusive sum of the invoice lines.
func (inv SupplierInvoice) NetAmount() money.Money {
	var net money.Money
	for _, line := range inv.Lines {
		net = net.Add(line.Amount)
	}
	return net
}

// InvoiceLine is one expense or asset line on the invoice.
type InvoiceLine struct {
	ID          int64
	InvoiceID   int64
	AccountID   int64
	Description string
	Amount      money.Money
}

// TaxLine is one persisted invoice tax line.
type TaxLine struct {
	ID            int64
	InvoiceID     int64
	TaxRateID     int64
	TaxableAmount money.Money
	TaxAmount     money.Money
}

// LineInput is one invoice line as submitted by the caller.
type LineInput struct {
	AccountID   int64
	Description string
	Amount      money.Money
}

// CreateInput is a request to capture a new draft supplier invoice.
type CreateInput struct {
	TenantID     uuid.UUID
	SupplierName string
	InvoiceDate  time.Time
	DueDate      time.Time
	TotalAmount  money.Money
	CreatedByID  int64
	Lines        []LineInput
	TaxLines     []taxes.LineInput
}

// Validate enforces the structural draft invariants before any store access.
func (in CreateInput) Validate() error {
	if in.TenantID == uuid.Nil {
		return shared.NewValidation("MISSING_TENANT", "tenant is required")
	}
	if in.CreatedByID == 0 {
		return shared.NewValidation("MISSING_ACTOR", "creator is required")
	}
	if in.InvoiceDate.IsZero() {
		return shared.NewValidation("MISSING_INVOICE_DATE", "invoice date is required")
	}
	if len(in.Lines) == 0 {
		return shared.NewValidation("NO_LINES", "an invoice needs at least one line")
	}
	for i, line := range in.Lines {
		if line.AccountID == 0 {
			return shared.NewValidation("MISSING_ACCOUNT", fmt.Sprintf("line %d has no account", i+1))
		}
		if !line.Amount.IsPositive() {
			return shared.NewValidation("NON_POSITIVE_LINE", fmt.Sprintf("line %d amount must be positive", i+1))
		}
	}
	return nil
}

// taxInputs converts persisted tax lines back to validator inputs for the
// re-checks on submit and post.
func taxInputs(lines []TaxLine) []taxes.LineInput {
	out := make([]taxes.LineInput, 0, len(lines))
	for _, tl := range lines {
		out = append(out, taxes.LineInput{
			TaxRateID:     tl.TaxRateID,
			TaxableAmount: tl.TaxableAmount,
			TaxAmount:     tl.TaxAmount,
		})
	}
	return out
}

// FormatNumber renders a sequence value as a document number,
// e.g. PINV-2025-00042.
func FormatNumber(year int, seq int64) string {
	return fmt.Sprintf("PINV-%d-%05d", year, seq)
}
