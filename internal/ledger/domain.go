// Package ledger owns the chart of accounts and the double-entry journal. It
// is the only writer of journal entries; every posted entry balances to the
// cent.
package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/openbooks-erp/openbooks/internal/money"
	"github.com/openbooks-erp/openbooks/internal/shared"
)

// AccountType enumerates chart-of-accounts categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeIncome    AccountType = "INCOME"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// NormalBalance is the side on which an account naturally accumulates.
type NormalBalance string

const (
	NormalDebit  NormalBalance = "DEBIT"
	NormalCredit NormalBalance = "CREDIT"
)

// EntryStatus enumerates journal entry lifecycle values.
type EntryStatus string

const (
	EntryStatusDraft  EntryStatus = "DRAFT"
	EntryStatusPosted EntryStatus = "POSTED"
)

// Account is a tenant-scoped chart of accounts node.
type Account struct {
	ID            int64
	TenantID      uuid.UUID
	Code          string
	Name          string
	Type          AccountType
	NormalBalance NormalBalance
	IsActive      bool
}

// NormalizedLabel returns the lowercase "code name" string the report
// classifier matches keywords against.
func (a Account) NormalizedLabel() string {
	return strings.ToLower(strings.TrimSpace(a.Code + " " + a.Name))
}

// JournalEntry is one balanced double-entry posting.
type JournalEntry struct {
	ID          int64
	TenantID    uuid.UUID
	JournalDate time.Time
	Reference   string
	Status      EntryStatus
	CreatedByID int64
	PostedByID  int64
	PostedAt    time.Time
	Lines       []JournalLine
}

// JournalLine carries a single-sided amount against one account.
type JournalLine struct {
	ID        int64
	EntryID   int64
	AccountID int64
	Debit     money.Money
	Credit    money.Money
}

// LineInput is one line of a posting request.
type LineInput struct {
	AccountID int64
	Debit     money.Money
	Credit    money.Money
}

// PostingInput is a request to write one balanced journal entry.
type PostingInput struct {
	TenantID    uuid.UUID
	JournalDate time.Time
	Reference   string
	CreatedByID int64
	PostedByID  int64
	Lines       []LineInput
}

// Validate enforces the structural posting invariants: at least two lines,
// exactly one positive side per line, and debits equal to credits.
func (in PostingInput) Validate() error {
	if in.TenantID == uuid.Nil {
		return shared.NewValidation("MISSING_TENANT", "tenant is required")
	}
	if in.JournalDate.IsZero() {
		return shared.NewValidation("MISSING_JOURNAL_DATE", "journal date is required")
	}
	if len(in.Lines) < 2 {
		return shared.NewValidation("TOO_FEW_LINES", "a journal entry needs at least two lines")
	}
	var debits, credits money.Money
	for i, line := range in.Lines {
		if line.AccountID == 0 {
			return shared.NewValidation("MISSING_ACCOUNT", fmt.Sprintf("line %d has no account", i+1))
		}
		if line.Debit.IsNegative() || line.Credit.IsNegative() {
			return shared.NewValidation("NEGATIVE_LINE", fmt.Sprintf("line %d carries a negative amount", i+1))
		}
		debitSet, creditSet := line.Debit.IsPositive(), line.Credit.IsPositive()
		if debitSet == creditSet {
			return shared.NewValidation("ONE_SIDED_LINE", fmt.Sprintf("line %d must set exactly one of debit or credit", i+1))
		}
		debits = debits.Add(line.Debit)
		credits = credits.Add(line.Credit)
	}
	if !debits.Equal(credits) {
		return &shared.ValidationError{
			Code:     "UNBALANCED_ENTRY",
			Message:  "journal entry debits do not equal credits",
			Expected: debits.String(),
			Actual:   credits.String(),
		}
	}
	return nil
}

// AccountActivity is the grouped debit/credit aggregate for one account over a
// queried range, the raw material of every financial statement.
type AccountActivity struct {
	Account Account
	Debit   money.Money
	Credit  money.Money
}

// Net returns the activity netted onto the account's natural side: debit−credit
// for debit-normal accounts, credit−debit otherwise.
func (a AccountActivity) Net() money.Money {
	switch a.Account.Type {
	case AccountTypeAsset, AccountTypeExpense:
		return a.Debit.Sub(a.Credit)
	default:
		return a.Credit.Sub(a.Debit)
	}
}
