package ap

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/openbooks-erp/openbooks/internal/audit"
	"github.com/openbooks-erp/openbooks/internal/ledger"
	"github.com/openbooks-erp/openbooks/internal/money"
	"github.com/openbooks-erp/openbooks/internal/periods"
	"github.com/openbooks-erp/openbooks/internal/platform/db"
	"github.com/openbooks-erp/openbooks/internal/shared"
	"github.com/openbooks-erp/openbooks/internal/taxes"
)

// LedgerPort is the slice of the ledger service the AP pipeline uses.
type LedgerPort interface {
	AccountByCode(ctx context.Context, tenantID uuid.UUID, code string) (ledger.Account, error)
	AccountsByIDs(ctx context.Context, tenantID uuid.UUID, ids []int64) (map[int64]ledger.Account, error)
	PostEntry(ctx context.Context, in ledger.PostingInput) (ledger.JournalEntry, error)
}

// TaxPort validates invoice tax lines.
type TaxPort interface {
	Validate(ctx context.Context, tenantID uuid.UUID, expected taxes.RateType, net money.Money, lines []taxes.LineInput) (taxes.Result, error)
}

// PostInput carries the posting request. ControlAccountCode overrides the
// default AP control account for this call only.
type PostInput struct {
	TenantID           uuid.UUID
	InvoiceID          int64
	ActorID            int64
	ControlAccountCode string
}

// Service drives the supplier invoice state machine.
type Service struct {
	repo   Repository
	books  LedgerPort
	tax    TaxPort
	guard  periods.Guard
	audits audit.Sink
	tx     db.TxRunner
	now    func() time.Time
}

// NewService constructs the AP service.
func NewService(repo Repository, books LedgerPort, tax TaxPort, guard periods.Guard, audits audit.Sink, tx db.TxRunner) *Service {
	return &Service{
		repo:   repo,
		books:  books,
		tax:    tax,
		guard:  guard,
		audits: audits,
		tx:     tx,
		now:    time.Now,
	}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Create captures a new draft invoice. Lines, tax lines, the sequence
// increment, and the header insert commit as one transaction.
func (s *Service) Create(ctx context.Context, in CreateInput) (SupplierInvoice, error) {
	if err := in.Validate(); err != nil {
		return SupplierInvoice{}, err
	}
	if err := s.checkLineAccounts(ctx, in.TenantID, in.Lines); err != nil {
		return SupplierInvoice{}, err
	}

	var net money.Money
	for _, line := range in.Lines {
		net = net.Add(line.Amount)
	}
	taxResult, err := s.tax.Validate(ctx, in.TenantID, taxes.RateTypeInput, net, in.TaxLines)
	if err != nil {
		return SupplierInvoice{}, err
	}
	if gross := net.Add(taxResult.TotalTax); !gross.Equal(in.TotalAmount) {
		return SupplierInvoice{}, &shared.ValidationError{
			Code:     "TOTAL_MISMATCH",
			Message:  "net plus tax does not equal the declared total",
			Expected: gross.String(),
			Actual:   in.TotalAmount.String(),
		}
	}

	var created SupplierInvoice
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		year := in.InvoiceDate.UTC().Year()
		seq, err := s.repo.NextNumber(ctx, in.TenantID, year)
		if err != nil {
			return err
		}
		inv := SupplierInvoice{
			TenantID:     in.TenantID,
			Number:       FormatNumber(year, seq),
			SupplierName: in.SupplierName,
			InvoiceDate:  in.InvoiceDate,
			DueDate:      in.DueDate,
			TotalAmount:  in.TotalAmount,
			Status:       StatusDraft,
			CreatedByID:  in.CreatedByID,
		}
		for _, line := range in.Lines {
			inv.Lines = append(inv.Lines, InvoiceLine{
				AccountID:   line.AccountID,
				Description: line.Description,
				Amount:      line.Amount,
			})
		}
		for _, row := range taxResult.Rows {
			inv.TaxLines = append(inv.TaxLines, TaxLine{
				TaxRateID:     row.TaxRateID,
				TaxableAmount: row.TaxableAmount,
				TaxAmount:     row.TaxAmount,
			})
		}
		created, err = s.repo.Insert(ctx, inv)
		return err
	})
	if err != nil {
		return SupplierInvoice{}, err
	}
	s.record(ctx, created, "create", audit.OutcomeSuccess, "", in.CreatedByID)
	return created, nil
}

// Submit moves a draft to SUBMITTED. Only the creator may submit, and the tax
// integrity checks re-run against the persisted rows.
func (s *Service) Submit(ctx context.Context, tenantID uuid.UUID, invoiceID, actorID int64) (SupplierInvoice, error) {
	var inv SupplierInvoice
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		inv, err = s.repo.Get(ctx, tenantID, invoiceID)
		if err != nil {
			return err
		}
		if inv.Status != StatusDraft {
			return &shared.ConflictError{Entity: "supplier invoice", Message: fmt.Sprintf("invoice is %s, not DRAFT", inv.Status)}
		}
		if actorID != inv.CreatedByID {
			return &shared.AuthorizationError{Rule: "SUBMIT_BY_CREATOR", Message: "only the creator may submit a supplier invoice"}
		}
		if _, err := s.revalidate(ctx, inv); err != nil {
			return err
		}
		if err := s.repo.MarkSubmitted(ctx, tenantID, invoiceID); err != nil {
			return err
		}
		inv.Status = StatusSubmitted
		return nil
	})
	if err != nil {
		return SupplierInvoice{}, err
	}
	s.record(ctx, inv, "submit", audit.OutcomeSuccess, "", actorID)
	return inv, nil
}

// Approve moves a submitted invoice to APPROVED. The approver must differ
// from the creator; a violating attempt is recorded before it is rejected.
func (s *Service) Approve(ctx context.Context, tenantID uuid.UUID, invoiceID, actorID int64) (SupplierInvoice, error) {
	var inv SupplierInvoice
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		inv, err = s.repo.Get(ctx, tenantID, invoiceID)
		if err != nil {
			return err
		}
		if inv.Status != StatusSubmitted {
			return &shared.ConflictError{Entity: "supplier invoice", Message: fmt.Sprintf("invoice is %s, not SUBMITTED", inv.Status)}
		}
		if actorID == inv.CreatedByID {
			reason := "Creator cannot approve the supplier invoice they created"
			s.record(ctx, inv, "approve", audit.OutcomeBlocked, reason, actorID)
			return &shared.AuthorizationError{Rule: "SEGREGATION_OF_DUTIES", Message: reason}
		}
		if err := s.repo.MarkApproved(ctx, tenantID, invoiceID, actorID); err != nil {
			return err
		}
		inv.Status = StatusApproved
		inv.ApprovedByID = actorID
		return nil
	})
	if err != nil {
		return SupplierInvoice{}, err
	}
	s.record(ctx, inv, "approve", audit.OutcomeSuccess, "", actorID)
	return inv, nil
}

// Post writes the balanced journal entry and stamps the invoice POSTED. The
// status re-read, the journal write, and the stamp share one transaction, so
// a racing second post fails on the status guard.
func (s *Service) Post(ctx context.Context, in PostInput) (SupplierInvoice, error) {
	code := in.ControlAccountCode
	if code == "" {
		code = DefaultControlAccountCode
	}

	var inv SupplierInvoice
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		inv, err = s.repo.Get(ctx, in.TenantID, in.InvoiceID)
		if err != nil {
			return err
		}
		if inv.Status == StatusPosted {
			return &shared.ConflictError{Entity: "supplier invoice", Message: "invoice is already POSTED"}
		}
		if inv.Status != StatusApproved {
			return &shared.ConflictError{Entity: "supplier invoice", Message: fmt.Sprintf("invoice is %s, not APPROVED", inv.Status)}
		}
		if inv.ApprovedByID == 0 {
			return &shared.ConflictError{Entity: "supplier invoice", Message: "invoice has no approver"}
		}
		if in.ActorID == inv.CreatedByID {
			reason := "Creator cannot post the supplier invoice they created"
			s.record(ctx, inv, "post", audit.OutcomeBlocked, reason, in.ActorID)
			return &shared.AuthorizationError{Rule: "SEGREGATION_OF_DUTIES", Message: reason}
		}
		if in.ActorID == inv.ApprovedByID {
			reason := "Approver cannot post the same supplier invoice"
			s.record(ctx, inv, "post", audit.OutcomeBlocked, reason, in.ActorID)
			return &shared.AuthorizationError{Rule: "SEGREGATION_OF_DUTIES", Message: reason}
		}
		if err := s.checkLineAccounts(ctx, inv.TenantID, lineInputs(inv.Lines)); err != nil {
			return err
		}
		taxResult, err := s.revalidate(ctx, inv)
		if err != nil {
			return err
		}
		if err := s.guard.AssertPostable(ctx, inv.TenantID, inv.InvoiceDate); err != nil {
			var pce *shared.PeriodControlError
			if errors.As(err, &pce) {
				s.record(ctx, inv, "post", audit.OutcomeBlocked, pce.Message, in.ActorID)
			}
			return err
		}

		control, err := s.books.AccountByCode(ctx, inv.TenantID, code)
		if err != nil {
			return err
		}
		if control.Type != ledger.AccountTypeLiability || !control.IsActive {
			return shared.NewValidation("INVALID_CONTROL_ACCOUNT",
				fmt.Sprintf("account %s is not an active LIABILITY control account", code))
		}

		entry, err := s.books.PostEntry(ctx, buildJournal(inv, control.ID, in.ActorID, taxResult.TaxByGLAccount()))
		if err != nil {
			return err
		}
		postedAt := s.now().UTC()
		if err := s.repo.MarkPosted(ctx, in.TenantID, in.InvoiceID, in.ActorID, postedAt, entry.ID); err != nil {
			return err
		}
		inv.Status = StatusPosted
		inv.PostedByID = in.ActorID
		inv.PostedAt = postedAt
		inv.JournalID = entry.ID
		return nil
	})
	if err != nil {
		return SupplierInvoice{}, err
	}
	s.record(ctx, inv, "post", audit.OutcomeSuccess, fmt.Sprintf("posted journal entry %d", inv.JournalID), in.ActorID)
	return inv, nil
}

// Get loads an invoice with lines and tax lines.
func (s *Service) Get(ctx context.Context, tenantID uuid.UUID, id int64) (SupplierInvoice, error) {
	return s.repo.Get(ctx, tenantID, id)
}

// checkLineAccounts verifies every line account exists, is active, and is of
// an allowed type for purchases.
func (s *Service) checkLineAccounts(ctx context.Context, tenantID uuid.UUID, lines []LineInput) error {
	ids := make([]int64, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.AccountID)
	}
	accounts, err := s.books.AccountsByIDs(ctx, tenantID, ids)
	if err != nil {
		return err
	}
	for _, line := range lines {
		account, ok := accounts[line.AccountID]
		if !ok {
			return &shared.NotFoundError{Entity: "account", ID: fmt.Sprintf("%d", line.AccountID)}
		}
		if !account.IsActive {
			return shared.NewValidation("INACTIVE_ACCOUNT", fmt.Sprintf("account %s is inactive", account.Code))
		}
		if account.Type != ledger.AccountTypeExpense && account.Type != ledger.AccountTypeAsset {
			return shared.NewValidation("DISALLOWED_ACCOUNT_TYPE",
				fmt.Sprintf("account %s is %s; supplier invoice lines must be EXPENSE or ASSET", account.Code, account.Type))
		}
	}
	return nil
}

// revalidate re-runs the tax and total reconciliation against persisted rows,
// defense against drift between transitions.
func (s *Service) revalidate(ctx context.Context, inv SupplierInvoice) (taxes.Result, error) {
	net := inv.NetAmount()
	result, err := s.tax.Validate(ctx, inv.TenantID, taxes.RateTypeInput, net, taxInputs(inv.TaxLines))
	if err != nil {
		return taxes.Result{}, err
	}
	if gross := net.Add(result.TotalTax); !gross.Equal(inv.TotalAmount) {
		return taxes.Result{}, &shared.ValidationError{
			Code:     "TOTAL_MISMATCH",
			Message:  "net plus tax does not equal the stored total",
			Expected: gross.String(),
			Actual:   inv.TotalAmount.String(),
		}
	}
	return result, nil
}

func lineInputs(lines []InvoiceLine) []LineInput {
	out := make([]LineInput, 0, len(lines))
	for _, l := range lines {
		out = append(out, LineInput{AccountID: l.AccountID, Description: l.Description, Amount: l.Amount})
	}
	return out
}

// buildJournal assembles the balanced entry: debit each line account, debit
// the tax aggregates per destination GL account, credit the control account
// for the gross total.
func buildJournal(inv SupplierInvoice, controlAccountID, actorID int64, taxByGL map[int64]money.Money) ledger.PostingInput {
	input := ledger.PostingInput{
		TenantID:    inv.TenantID,
		JournalDate: inv.InvoiceDate,
		Reference:   inv.Number,
		CreatedByID: inv.CreatedByID,
		PostedByID:  actorID,
	}
	for _, line := range inv.Lines {
		input.Lines = append(input.Lines, ledger.LineInput{AccountID: line.AccountID, Debit: line.Amount})
	}
	taxAccounts := make([]int64, 0, len(taxByGL))
	for id := range taxByGL {
		taxAccounts = append(taxAccounts, id)
	}
	sort.Slice(taxAccounts, func(i, j int) bool { return taxAccounts[i] < taxAccounts[j] })
	for _, id := range taxAccounts {
		input.Lines = append(input.Lines, ledger.LineInput{AccountID: id, Debit: taxByGL[id]})
	}
	input.Lines = append(input.Lines, ledger.LineInput{AccountID: controlAccountID, Credit: inv.TotalAmount})
	return input
}

func (s *Service) record(ctx context.Context, inv SupplierInvoice, action string, outcome audit.Outcome, reason string, actorID int64) {
	s.audits.Try(ctx, audit.Record{
		TenantID:   inv.TenantID,
		EventType:  "POSTING",
		EntityType: "supplier_invoice",
		EntityID:   fmt.Sprintf("%d", inv.ID),
		Action:     action,
		Outcome:    outcome,
		Reason:     reason,
		UserID:     actorID,
		At:         s.now().UTC(),
	})
}
