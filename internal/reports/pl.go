package reports

import (
	"time"

	"github.com/openbooks-erp/openbooks/internal/ledger"
	"github.com/openbooks-erp/openbooks/internal/money"
)

// StatementRow is one account line inside a statement grouping.
type StatementRow struct {
	AccountID   int64       `json:"accountId"`
	AccountCode string      `json:"accountCode"`
	AccountName string      `json:"accountName"`
	Amount      money.Money `json:"amount"`
}

// StatementGroup is a named grouping of rows with its subtotal.
type StatementGroup struct {
	Rows  []StatementRow `json:"rows"`
	Total money.Money    `json:"total"`
}

func (g *StatementGroup) add(a ledger.Account, amount money.Money) {
	g.Rows = append(g.Rows, StatementRow{
		AccountID:   a.ID,
		AccountCode: a.Code,
		AccountName: a.Name,
		Amount:      amount,
	})
	g.Total = g.Total.Add(amount)
}

// ProfitAndLoss is the income statement for a range. Income amounts are
// credit minus debit, expense amounts debit minus credit, so contra activity
// shows as a negative line rather than switching sections.
type ProfitAndLoss struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`

	Revenue           StatementGroup `json:"revenue"`
	CostOfSales       StatementGroup `json:"costOfSales"`
	GrossProfit       money.Money    `json:"grossProfit"`
	OperatingExpenses StatementGroup `json:"operatingExpenses"`
	OperatingProfit   money.Money    `json:"operatingProfit"`
	OtherIncome       StatementGroup `json:"otherIncome"`
	OtherExpenses     StatementGroup `json:"otherExpenses"`
	TaxExpense        StatementGroup `json:"taxExpense"`
	ProfitOrLoss      money.Money    `json:"profitOrLoss"`
}

func buildProfitAndLoss(from, to time.Time, activities []ledger.AccountActivity, classifier *Classifier) ProfitAndLoss {
	pl := ProfitAndLoss{From: from, To: to}
	for _, act := range activities {
		switch act.Account.Type {
		case ledger.AccountTypeIncome, ledger.AccountTypeExpense:
		default:
			continue
		}
		amount := act.Net()
		if amount.IsZero() {
			continue
		}
		switch classifier.Section(act.Account) {
		case SectionRevenue:
			pl.Revenue.add(act.Account, amount)
		case SectionCostOfSales:
			pl.CostOfSales.add(act.Account, amount)
		case SectionTaxExpense:
			pl.TaxExpense.add(act.Account, amount)
		case SectionOtherIncome:
			pl.OtherIncome.add(act.Account, amount)
		case SectionOtherExpenses:
			pl.OtherExpenses.add(act.Account, amount)
		default:
			pl.OperatingExpenses.add(act.Account, amount)
		}
	}
	pl.GrossProfit = pl.Revenue.Total.Sub(pl.CostOfSales.Total)
	pl.OperatingProfit = pl.GrossProfit.Sub(pl.OperatingExpenses.Total)
	pl.ProfitOrLoss = pl.OperatingProfit.
		Add(pl.OtherIncome.Total).
		Sub(pl.OtherExpenses.Total).
		Sub(pl.TaxExpense.Total)
	return pl
}
