package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/openbooks-erp/openbooks/internal/audit"
	"github.com/openbooks-erp/openbooks/internal/ledger"
	"github.com/openbooks-erp/openbooks/internal/periods"
	"github.com/openbooks-erp/openbooks/internal/platform/db"
	"github.com/openbooks-erp/openbooks/internal/shared"
)

// LedgerPort is the slice of the ledger service the payments pipeline uses.
type LedgerPort interface {
	AccountByCode(ctx context.Context, tenantID uuid.UUID, code string) (ledger.Account, error)
	AccountsByIDs(ctx context.Context, tenantID uuid.UUID, ids []int64) (map[int64]ledger.Account, error)
	PostEntry(ctx context.Context, in ledger.PostingInput) (ledger.JournalEntry, error)
}

// InvoicePort answers whether an allocated invoice has been posted. Payments
// only settle invoices that already hit the ledger.
type InvoicePort interface {
	IsPosted(ctx context.Context, tenantID uuid.UUID, sourceType string, sourceID int64) (bool, error)
}

// PostInput carries the posting request. ControlAccountCode overrides the
// default control account for the payment's type for this call only.
type PostInput struct {
	TenantID           uuid.UUID
	PaymentID          int64
	ActorID            int64
	ControlAccountCode string
}

// Service drives the payment state machine.
type Service struct {
	repo     Repository
	books    LedgerPort
	invoices InvoicePort
	guard    periods.Guard
	audits   audit.Sink
	tx       db.TxRunner
	now      func() time.Time

	apControlCode string
	arControlCode string
}

// NewService constructs the payments service. The control codes are the
// tenant-independent defaults; callers may override per post.
func NewService(repo Repository, books LedgerPort, invoices InvoicePort, guard periods.Guard, audits audit.Sink, tx db.TxRunner, apControlCode, arControlCode string) *Service {
	if apControlCode == "" {
		apControlCode = "2000"
	}
	if arControlCode == "" {
		arControlCode = "1100"
	}
	return &Service{
		repo:          repo,
		books:         books,
		invoices:      invoices,
		guard:         guard,
		audits:        audits,
		tx:            tx,
		now:           time.Now,
		apControlCode: apControlCode,
		arControlCode: arControlCode,
	}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Create captures a new draft payment with its allocations.
func (s *Service) Create(ctx context.Context, in CreateInput) (Payment, error) {
	if err := in.Validate(); err != nil {
		return Payment{}, err
	}
	if err := s.checkBankAccount(ctx, in.TenantID, in.BankAccountID); err != nil {
		return Payment{}, err
	}
	for _, alloc := range in.Allocations {
		posted, err := s.invoices.IsPosted(ctx, in.TenantID, in.SourceType(), alloc.SourceID)
		if err != nil {
			return Payment{}, err
		}
		if !posted {
			return Payment{}, shared.NewValidation("UNPOSTED_ALLOCATION_TARGET",
				fmt.Sprintf("%s %d is not posted and cannot be settled", in.SourceType(), alloc.SourceID))
		}
	}

	var created Payment
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		year := in.PaymentDate.UTC().Year()
		seq, err := s.repo.NextNumber(ctx, in.TenantID, year)
		if err != nil {
			return err
		}
		p := Payment{
			TenantID:      in.TenantID,
			Number:        FormatNumber(year, seq),
			Type:          in.Type,
			BankAccountID: in.BankAccountID,
			Amount:        in.Amount,
			PaymentDate:   in.PaymentDate,
			Status:        StatusDraft,
			CreatedByID:   in.CreatedByID,
		}
		for _, alloc := range in.Allocations {
			p.Allocations = append(p.Allocations, Allocation{
				SourceType: in.SourceType(),
				SourceID:   alloc.SourceID,
				Amount:     alloc.Amount,
			})
		}
		created, err = s.repo.Insert(ctx, p)
		return err
	})
	if err != nil {
		return Payment{}, err
	}
	s.record(ctx, created, "create", audit.OutcomeSuccess, "", in.CreatedByID)
	return created, nil
}

// Approve moves a draft payment to APPROVED. The approver must differ from
// the creator; a violating attempt is recorded before it is rejected.
func (s *Service) Approve(ctx context.Context, tenantID uuid.UUID, paymentID, actorID int64) (Payment, error) {
	var p Payment
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		p, err = s.repo.Get(ctx, tenantID, paymentID)
		if err != nil {
			return err
		}
		if p.Status != StatusDraft {
			return &shared.ConflictError{Entity: "payment", Message: fmt.Sprintf("payment is %s, not DRAFT", p.Status)}
		}
		if actorID == p.CreatedByID {
			reason := "Creator cannot approve the payment they created"
			s.record(ctx, p, "approve", audit.OutcomeBlocked, reason, actorID)
			return &shared.AuthorizationError{Rule: "SEGREGATION_OF_DUTIES", Message: reason}
		}
		if err := s.repo.MarkApproved(ctx, tenantID, paymentID, actorID); err != nil {
			return err
		}
		p.Status = StatusApproved
		p.ApprovedByID = actorID
		return nil
	})
	if err != nil {
		return Payment{}, err
	}
	s.record(ctx, p, "approve", audit.OutcomeSuccess, "", actorID)
	return p, nil
}

// Post writes the balanced journal entry and stamps the payment POSTED.
// Neither the creator nor the approver may post.
func (s *Service) Post(ctx context.Context, in PostInput) (Payment, error) {
	var p Payment
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		p, err = s.repo.Get(ctx, in.TenantID, in.PaymentID)
		if err != nil {
			return err
		}
		if p.Status == StatusPosted {
			return &shared.ConflictError{Entity: "payment", Message: "payment is already POSTED"}
		}
		if p.Status != StatusApproved {
			return &shared.ConflictError{Entity: "payment", Message: fmt.Sprintf("payment is %s, not APPROVED", p.Status)}
		}
		if p.ApprovedByID == 0 {
			return &shared.ConflictError{Entity: "payment", Message: "payment has no approver"}
		}
		if in.ActorID == p.CreatedByID {
			reason := "Creator cannot post the payment they created"
			s.record(ctx, p, "post", audit.OutcomeBlocked, reason, in.ActorID)
			return &shared.AuthorizationError{Rule: "SEGREGATION_OF_DUTIES", Message: reason}
		}
		if in.ActorID == p.ApprovedByID {
			reason := "Approver cannot post the same payment"
			s.record(ctx, p, "post", audit.OutcomeBlocked, reason, in.ActorID)
			return &shared.AuthorizationError{Rule: "SEGREGATION_OF_DUTIES", Message: reason}
		}
		if err := s.guard.AssertPostable(ctx, p.TenantID, p.PaymentDate); err != nil {
			var pce *shared.PeriodControlError
			if errors.As(err, &pce) {
				s.record(ctx, p, "post", audit.OutcomeBlocked, pce.Message, in.ActorID)
			}
			return err
		}

		if err := s.checkBankAccount(ctx, p.TenantID, p.BankAccountID); err != nil {
			return err
		}
		control, err := s.controlAccount(ctx, p, in.ControlAccountCode)
		if err != nil {
			return err
		}

		entry, err := s.books.PostEntry(ctx, buildJournal(p, control.ID, in.ActorID))
		if err != nil {
			return err
		}
		postedAt := s.now().UTC()
		if err := s.repo.MarkPosted(ctx, in.TenantID, in.PaymentID, in.ActorID, postedAt, entry.ID); err != nil {
			return err
		}
		p.Status = StatusPosted
		p.PostedByID = in.ActorID
		p.PostedAt = postedAt
		p.JournalID = entry.ID
		return nil
	})
	if err != nil {
		return Payment{}, err
	}
	s.record(ctx, p, "post", audit.OutcomeSuccess, fmt.Sprintf("posted journal entry %d", p.JournalID), in.ActorID)
	return p, nil
}

// Get loads a payment with allocations.
func (s *Service) Get(ctx context.Context, tenantID uuid.UUID, id int64) (Payment, error) {
	return s.repo.Get(ctx, tenantID, id)
}

func (s *Service) checkBankAccount(ctx context.Context, tenantID uuid.UUID, accountID int64) error {
	accounts, err := s.books.AccountsByIDs(ctx, tenantID, []int64{accountID})
	if err != nil {
		return err
	}
	account, ok := accounts[accountID]
	if !ok {
		return &shared.NotFoundError{Entity: "account", ID: fmt.Sprintf("%d", accountID)}
	}
	if account.Type != ledger.AccountTypeAsset || !account.IsActive {
		return shared.NewValidation("INVALID_BANK_ACCOUNT",
			fmt.Sprintf("account %s is not an active ASSET bank account", account.Code))
	}
	return nil
}

// controlAccount resolves the AP or AR control account for the payment type,
// honoring a per-call override.
func (s *Service) controlAccount(ctx context.Context, p Payment, override string) (ledger.Account, error) {
	code := override
	wantType := ledger.AccountTypeLiability
	if p.Type == TypeCustomerReceipt {
		wantType = ledger.AccountTypeAsset
		if code == "" {
			code = s.arControlCode
		}
	} else if code == "" {
		code = s.apControlCode
	}
	control, err := s.books.AccountByCode(ctx, p.TenantID, code)
	if err != nil {
		return ledger.Account{}, err
	}
	if control.Type != wantType || !control.IsActive {
		return ledger.Account{}, shared.NewValidation("INVALID_CONTROL_ACCOUNT",
			fmt.Sprintf("account %s is not an active %s control account", code, wantType))
	}
	return control, nil
}

// buildJournal assembles the two-line entry: a supplier payment debits the AP
// control and credits the bank; a customer receipt debits the bank and
// credits the AR control.
func buildJournal(p Payment, controlAccountID, actorID int64) ledger.PostingInput {
	input := ledger.PostingInput{
		TenantID:    p.TenantID,
		JournalDate: p.PaymentDate,
		Reference:   p.Number,
		CreatedByID: p.CreatedByID,
		PostedByID:  actorID,
	}
	if p.Type == TypeCustomerReceipt {
		input.Lines = []ledger.LineInput{
			{AccountID: p.BankAccountID, Debit: p.Amount},
			{AccountID: controlAccountID, Credit: p.Amount},
		}
	} else {
		input.Lines = []ledger.LineInput{
			{AccountID: controlAccountID, Debit: p.Amount},
			{AccountID: p.BankAccountID, Credit: p.Amount},
		}
	}
	return input
}

func (s *Service) record(ctx context.Context, p Payment, action string, outcome audit.Outcome, reason string, actorID int64) {
	s.audits.Try(ctx, audit.Record{
		TenantID:   p.TenantID,
		EventType:  "POSTING",
		EntityType: "payment",
		EntityID:   fmt.Sprintf("%d", p.ID),
		Action:     action,
		Outcome:    outcome,
		Reason:     reason,
		UserID:     actorID,
		At:         s.now().UTC(),
	})
}
