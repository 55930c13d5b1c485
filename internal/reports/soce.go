package reports

import (
	"time"

	"github.com/openbooks-erp/openbooks/internal/ledger"
	"github.com/openbooks-erp/openbooks/internal/money"
)

// EquitySnapshot is the equity position at one instant.
type EquitySnapshot struct {
	ShareCapital     money.Money `json:"shareCapital"`
	OtherReserves    money.Money `json:"otherReserves"`
	RetainedEarnings money.Money `json:"retainedEarnings"`
	Total            money.Money `json:"total"`
}

func snapshotEquity(bs BalanceSheet) EquitySnapshot {
	return EquitySnapshot{
		ShareCapital:     bs.Equity.ShareCapital.Total,
		OtherReserves:    bs.Equity.OtherReserves.Total,
		RetainedEarnings: bs.Equity.RetainedEarnings,
		Total:            bs.Equity.Total,
	}
}

// ChangesInEquity reconciles the equity delta between two balance-sheet
// snapshots additively: opening plus contributions plus profit plus dividends
// and drawings plus any residual movement equals closing. Net dividends and
// drawings reduce equity, so DividendsAndDrawings is negative in the usual
// case. OtherMovements is the residual, so the statement always reconciles
// even when equity accounts move in ways the decomposition does not recognize.
type ChangesInEquity struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`

	Opening EquitySnapshot `json:"opening"`
	Closing EquitySnapshot `json:"closing"`

	OwnerContributions   money.Money `json:"ownerContributions"`
	ProfitOrLoss         money.Money `json:"profitOrLoss"`
	DividendsAndDrawings money.Money `json:"dividendsAndDrawings"`
	OtherMovements       money.Money `json:"otherMovements"`
}

func buildChangesInEquity(from, to time.Time, opening, closing BalanceSheet, pl ProfitAndLoss, rangeActivities []ledger.AccountActivity, classifier *Classifier) ChangesInEquity {
	soce := ChangesInEquity{
		From:         from,
		To:           to,
		Opening:      snapshotEquity(opening),
		Closing:      snapshotEquity(closing),
		ProfitOrLoss: pl.ProfitOrLoss,
	}
	soce.OwnerContributions = soce.Closing.ShareCapital.Add(soce.Closing.OtherReserves).
		Sub(soce.Opening.ShareCapital).Sub(soce.Opening.OtherReserves)

	// Drawings accumulate on the debit side of equity; the signed movement is
	// therefore credit minus debit.
	for _, act := range rangeActivities {
		if act.Account.Type != ledger.AccountTypeEquity {
			continue
		}
		if classifier.BalanceSheetBucket(act.Account) != BucketDrawings {
			continue
		}
		soce.DividendsAndDrawings = soce.DividendsAndDrawings.Add(act.Credit.Sub(act.Debit))
	}

	delta := soce.Closing.Total.Sub(soce.Opening.Total)
	soce.OtherMovements = delta.
		Sub(soce.OwnerContributions).
		Sub(soce.ProfitOrLoss).
		Sub(soce.DividendsAndDrawings)
	return soce
}
