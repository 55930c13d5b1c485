package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/openbooks-erp/openbooks/internal/platform/db"
	"github.com/openbooks-erp/openbooks/internal/shared"
)

// Service writes balanced journal entries and serves the aggregation reads
// the reporting engine derives statements from.
type Service struct {
	repo Repository
	tx   db.TxRunner
	now  func() time.Time
}

// NewService constructs the ledger service.
func NewService(repo Repository, tx db.TxRunner) *Service {
	return &Service{repo: repo, tx: tx, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// PostEntry validates and writes one balanced journal entry. The entry is
// inserted DRAFT with its lines and then flipped to POSTED, so the lines exist
// before the entry is final. When a document service calls this inside its own
// transaction, the whole posting commits or rolls back as one unit.
func (s *Service) PostEntry(ctx context.Context, in PostingInput) (JournalEntry, error) {
	if err := in.Validate(); err != nil {
		return JournalEntry{}, err
	}

	var entry JournalEntry
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		if in.Reference != "" {
			exists, err := s.repo.ReferenceExists(ctx, in.TenantID, in.Reference)
			if err != nil {
				return err
			}
			if exists {
				return &shared.ConflictError{
					Entity:  "journal_entry",
					Message: fmt.Sprintf("an entry with reference %q already exists", in.Reference),
				}
			}
		}

		ids := make([]int64, 0, len(in.Lines))
		for _, line := range in.Lines {
			ids = append(ids, line.AccountID)
		}
		accounts, err := s.repo.AccountsByIDs(ctx, in.TenantID, ids)
		if err != nil {
			return err
		}
		for _, line := range in.Lines {
			account, ok := accounts[line.AccountID]
			if !ok {
				return &shared.NotFoundError{Entity: "account", ID: fmt.Sprintf("%d", line.AccountID)}
			}
			if !account.IsActive {
				return shared.NewValidation("INACTIVE_ACCOUNT",
					fmt.Sprintf("account %s is inactive", account.Code))
			}
		}

		inserted, err := s.repo.InsertEntry(ctx, in, EntryStatusDraft)
		if err != nil {
			return err
		}
		lines, err := s.repo.InsertLines(ctx, inserted.ID, in.Lines)
		if err != nil {
			return err
		}
		postedAt := s.now().UTC()
		if err := s.repo.MarkPosted(ctx, in.TenantID, inserted.ID, in.PostedByID, postedAt); err != nil {
			return err
		}
		inserted.Status = EntryStatusPosted
		inserted.PostedByID = in.PostedByID
		inserted.PostedAt = postedAt
		inserted.Lines = lines
		entry = inserted
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	return entry, nil
}

// AccountByCode resolves a tenant account by code.
func (s *Service) AccountByCode(ctx context.Context, tenantID uuid.UUID, code string) (Account, error) {
	return s.repo.AccountByCode(ctx, tenantID, code)
}

// AccountsByIDs loads a batch of tenant accounts keyed by id.
func (s *Service) AccountsByIDs(ctx context.Context, tenantID uuid.UUID, ids []int64) (map[int64]Account, error) {
	return s.repo.AccountsByIDs(ctx, tenantID, ids)
}

// ActivityBetween returns per-account debit/credit sums over a date range.
func (s *Service) ActivityBetween(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]AccountActivity, error) {
	return s.repo.ActivityBetween(ctx, tenantID, from, to)
}

// ActivityAsOf returns cumulative per-account sums up to a date.
func (s *Service) ActivityAsOf(ctx context.Context, tenantID uuid.UUID, asOf time.Time) ([]AccountActivity, error) {
	return s.repo.ActivityAsOf(ctx, tenantID, asOf)
}

// EntriesTouchingAccounts returns posted entries in range touching any of the
// given accounts, lines included.
func (s *Service) EntriesTouchingAccounts(ctx context.Context, tenantID uuid.UUID, accountIDs []int64, from, to time.Time) ([]JournalEntry, error) {
	return s.repo.EntriesTouchingAccounts(ctx, tenantID, accountIDs, from, to)
}
