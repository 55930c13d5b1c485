package reports

import (
	"time"

	"github.com/openbooks-erp/openbooks/internal/ledger"
	"github.com/openbooks-erp/openbooks/internal/money"
)

// ClassifiedRow is one account balance placed into a balance-sheet bucket.
type ClassifiedRow struct {
	Bucket      Bucket      `json:"bucket"`
	AccountID   int64       `json:"accountId"`
	AccountCode string      `json:"accountCode"`
	AccountName string      `json:"accountName"`
	Amount      money.Money `json:"amount"`
}

// BalanceSheetSide is one side of the sheet split into current and
// non-current rows.
type BalanceSheetSide struct {
	Current         []ClassifiedRow `json:"current"`
	NonCurrent      []ClassifiedRow `json:"nonCurrent"`
	TotalCurrent    money.Money     `json:"totalCurrent"`
	TotalNonCurrent money.Money     `json:"totalNonCurrent"`
	Total           money.Money     `json:"total"`
}

func (s *BalanceSheetSide) add(row ClassifiedRow, nonCurrent bool) {
	if nonCurrent {
		s.NonCurrent = append(s.NonCurrent, row)
		s.TotalNonCurrent = s.TotalNonCurrent.Add(row.Amount)
	} else {
		s.Current = append(s.Current, row)
		s.TotalCurrent = s.TotalCurrent.Add(row.Amount)
	}
	s.Total = s.Total.Add(row.Amount)
}

// EquitySection presents capital and reserves. Retained earnings are derived
// from the accounting identity rather than read off an account, so the sheet
// absorbs current-year profit, drawings, and any unclassified equity without
// a year-end close.
type EquitySection struct {
	ShareCapital     StatementGroup `json:"shareCapital"`
	OtherReserves    StatementGroup `json:"otherReserves"`
	RetainedEarnings money.Money    `json:"retainedEarnings"`
	Total            money.Money    `json:"total"`
}

// BalanceSheet is the cumulative statement of financial position as of a
// date. An account whose balance sits on the wrong side of its type, such as
// an overdrawn bank account, is reclassified to the opposite side instead of
// being shown negative.
type BalanceSheet struct {
	AsOf        time.Time        `json:"asOf"`
	Assets      BalanceSheetSide `json:"assets"`
	Liabilities BalanceSheetSide `json:"liabilities"`
	Equity      EquitySection    `json:"equity"`

	TotalAssets               money.Money `json:"totalAssets"`
	TotalLiabilitiesAndEquity money.Money `json:"totalLiabilitiesAndEquity"`
	Balanced                  bool        `json:"balanced"`
}

func buildBalanceSheet(asOf time.Time, activities []ledger.AccountActivity, classifier *Classifier) BalanceSheet {
	bs := BalanceSheet{AsOf: asOf}
	for _, act := range activities {
		net := act.Net()
		if net.IsZero() {
			continue
		}
		switch act.Account.Type {
		case ledger.AccountTypeAsset:
			bucket := classifier.BalanceSheetBucket(act.Account)
			// Accumulated depreciation is contra by nature and stays a
			// negative asset row instead of flipping sides.
			if net.IsNegative() && bucket != BucketAccumulatedDepreciation {
				bs.Liabilities.add(classified(act.Account, BucketOtherLiabilities, net.Neg()), false)
				continue
			}
			bs.Assets.add(classified(act.Account, bucket, net), classifier.IsNonCurrent(act.Account, bucket))
		case ledger.AccountTypeLiability:
			bucket := classifier.BalanceSheetBucket(act.Account)
			if net.IsNegative() {
				bs.Assets.add(classified(act.Account, BucketOtherAssets, net.Neg()), false)
				continue
			}
			bs.Liabilities.add(classified(act.Account, bucket, net), classifier.IsNonCurrent(act.Account, bucket))
		case ledger.AccountTypeEquity:
			switch classifier.BalanceSheetBucket(act.Account) {
			case BucketShareCapital:
				bs.Equity.ShareCapital.add(act.Account, net)
			case BucketOtherReserves:
				bs.Equity.OtherReserves.add(act.Account, net)
			}
			// Drawings and unclassified equity fold into the derived
			// retained earnings figure.
		}
		// Income and expense balances likewise surface through retained
		// earnings, not as sheet rows.
	}
	bs.TotalAssets = bs.Assets.Total
	bs.Equity.RetainedEarnings = bs.TotalAssets.
		Sub(bs.Liabilities.Total).
		Sub(bs.Equity.ShareCapital.Total).
		Sub(bs.Equity.OtherReserves.Total)
	bs.Equity.Total = bs.Equity.ShareCapital.Total.
		Add(bs.Equity.OtherReserves.Total).
		Add(bs.Equity.RetainedEarnings)
	bs.TotalLiabilitiesAndEquity = bs.Liabilities.Total.Add(bs.Equity.Total)
	bs.Balanced = bs.TotalAssets.Equal(bs.TotalLiabilitiesAndEquity)
	return bs
}

func classified(a ledger.Account, bucket Bucket, amount money.Money) ClassifiedRow {
	return ClassifiedRow{
		Bucket:      bucket,
		AccountID:   a.ID,
		AccountCode: a.Code,
		AccountName: a.Name,
		Amount:      amount,
	}
}
