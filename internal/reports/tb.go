package reports

import (
	"time"

	"github.com/openbooks-erp/openbooks/internal/ledger"
	"github.com/openbooks-erp/openbooks/internal/money"
)

// TrialBalanceRow is one account's aggregated movement over the report range.
type TrialBalanceRow struct {
	AccountID   int64              `json:"accountId"`
	AccountCode string             `json:"accountCode"`
	AccountName string             `json:"accountName"`
	AccountType ledger.AccountType `json:"accountType"`
	Debit       money.Money        `json:"debit"`
	Credit      money.Money        `json:"credit"`
	Net         money.Money        `json:"net"`
}

// TrialBalance lists per-account debit and credit totals for the range. A
// ledger that only accepts balanced entries always produces equal totals; the
// totals are reported anyway so a reader can verify.
type TrialBalance struct {
	From        time.Time         `json:"from"`
	To          time.Time         `json:"to"`
	Rows        []TrialBalanceRow `json:"rows"`
	TotalDebit  money.Money       `json:"totalDebit"`
	TotalCredit money.Money       `json:"totalCredit"`
}

func buildTrialBalance(from, to time.Time, activities []ledger.AccountActivity) TrialBalance {
	tb := TrialBalance{From: from, To: to}
	for _, act := range activities {
		if act.Debit.IsZero() && act.Credit.IsZero() {
			continue
		}
		tb.Rows = append(tb.Rows, TrialBalanceRow{
			AccountID:   act.Account.ID,
			AccountCode: act.Account.Code,
			AccountName: act.Account.Name,
			AccountType: act.Account.Type,
			Debit:       act.Debit,
			Credit:      act.Credit,
			Net:         act.Net(),
		})
		tb.TotalDebit = tb.TotalDebit.Add(act.Debit)
		tb.TotalCredit = tb.TotalCredit.Add(act.Credit)
	}
	return tb
}
