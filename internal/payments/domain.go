// Package payments implements the payment lifecycle for settling supplier and
// customer invoices. Payments skip submission: DRAFT goes straight to
// APPROVED, then POSTED.
package payments

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/openbooks-erp/openbooks/internal/money"
	"github.com/openbooks-erp/openbooks/internal/shared"
)

// Type separates outgoing supplier payments from incoming customer receipts.
type Type string

const (
	TypeSupplierPayment Type = "SUPPLIER_PAYMENT"
	TypeCustomerReceipt Type = "CUSTOMER_RECEIPT"
)

// Status enumerates payment lifecycle states.
type Status string

const (
	StatusDraft    Status = "DRAFT"
	StatusApproved Status = "APPROVED"
	StatusPosted   Status = "POSTED"
)

// Allocation source types.
const (
	SourceSupplierInvoice = "supplier_invoice"
	SourceCustomerInvoice = "customer_invoice"
)

// Payment is a tenant-scoped bank payment or receipt.
type Payment struct {
	ID            int64
	TenantID      uuid.UUID
	Number        string
	Type          Type
	BankAccountID int64
	Amount        money.Money
	PaymentDate   time.Time
	Status        Status
	CreatedByID   int64
	ApprovedByID  int64
	PostedByID    int64
	PostedAt      time.Time
	JournalID     int64
	Allocations   []Allocation
}

// Allocation applies part of the payment against one invoice.
type Allocation struct {
	ID         int64
	PaymentID  int64
	SourceType string
	SourceID   int64
	Amount     money.Money
}

// AllocationInput is one allocation as submitted by the caller.
type AllocationInput struct {
	SourceID int64
	Amount   money.Money
}

// CreateInput is a request to capture a new draft payment.
type CreateInput struct {
	TenantID      uuid.UUID
	Type          Type
	BankAccountID int64
	Amount        money.Money
	PaymentDate   time.Time
	CreatedByID   int64
	Allocations   []AllocationInput
}

// SourceType returns the invoice table the payment type settles against.
func (in CreateInput) SourceType() string {
	if in.Type == TypeCustomerReceipt {
		return SourceCustomerInvoice
	}
	return SourceSupplierInvoice
}

// Validate enforces the structural draft invariants.
func (in CreateInput) Validate() error {
	if in.TenantID == uuid.Nil {
		return shared.NewValidation("MISSING_TENANT", "tenant is required")
	}
	if in.Type != TypeSupplierPayment && in.Type != TypeCustomerReceipt {
		return shared.NewValidation("INVALID_PAYMENT_TYPE", fmt.Sprintf("unknown payment type %q", in.Type))
	}
	if in.CreatedByID == 0 {
		return shared.NewValidation("MISSING_ACTOR", "creator is required")
	}
	if in.BankAccountID == 0 {
		return shared.NewValidation("MISSING_BANK_ACCOUNT", "bank account is required")
	}
	if in.PaymentDate.IsZero() {
		return shared.NewValidation("MISSING_PAYMENT_DATE", "payment date is required")
	}
	if !in.Amount.IsPositive() {
		return shared.NewValidation("NON_POSITIVE_AMOUNT", "payment amount must be positive")
	}
	var allocated money.Money
	for i, alloc := range in.Allocations {
		if alloc.SourceID == 0 {
			return shared.NewValidation("MISSING_ALLOCATION_SOURCE", fmt.Sprintf("allocation %d has no invoice", i+1))
		}
		if !alloc.Amount.IsPositive() {
			return shared.NewValidation("NON_POSITIVE_ALLOCATION", fmt.Sprintf("allocation %d amount must be positive", i+1))
		}
		allocated = allocated.Add(alloc.Amount)
	}
	if len(in.Allocations) > 0 && !allocated.Equal(in.Amount) {
		return &shared.ValidationError{
			Code:     "ALLOCATION_MISMATCH",
			Message:  "allocations do not sum to the payment amount",
			Expected: in.Amount.String(),
			Actual:   allocated.String(),
		}
	}
	return nil
}

// FormatNumber renders a sequence value as a document number,
// e.g. PAY-2025-00042.
func FormatNumber(year int, seq int64) string {
	return fmt.Sprintf("PAY-%d-%05d", year, seq)
}
