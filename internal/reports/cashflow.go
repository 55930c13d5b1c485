package reports

import (
	"sort"
	"time"

	"github.com/openbooks-erp/openbooks/internal/ledger"
	"github.com/openbooks-erp/openbooks/internal/money"
)

// CashFlowLine is one labelled movement inside a cash-flow section. Outflows
// are negative.
type CashFlowLine struct {
	Label  string      `json:"label"`
	Amount money.Money `json:"amount"`
}

// CashFlow is the indirect-method cash flow statement. Operating cash starts
// from profit before tax, adds back non-cash charges, and applies working-
// capital deltas; investing and financing movements are read off journal
// entries that move cash against exactly one classified category. Whatever
// the decomposition cannot attribute lands in UnclassifiedMovements, so the
// three sections always sum to the actual cash delta.
type CashFlow struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`

	ProfitBeforeTax       money.Money    `json:"profitBeforeTax"`
	AddBacks              []CashFlowLine `json:"addBacks"`
	WorkingCapital        []CashFlowLine `json:"workingCapital"`
	UnclassifiedMovements money.Money    `json:"unclassifiedMovements"`
	NetOperating          money.Money    `json:"netOperating"`

	Investing    []CashFlowLine `json:"investing"`
	NetInvesting money.Money    `json:"netInvesting"`
	Financing    []CashFlowLine `json:"financing"`
	NetFinancing money.Money    `json:"netFinancing"`

	OpeningCash     money.Money `json:"openingCash"`
	ClosingCash     money.Money `json:"closingCash"`
	NetChangeInCash money.Money `json:"netChangeInCash"`
}

var addBackLabels = map[AddBack]string{
	AddBackDepreciation: "Depreciation",
	AddBackAmortization: "Amortisation",
	AddBackImpairment:   "Impairment and write-offs",
	AddBackBadDebt:      "Bad and doubtful debts",
	AddBackInterest:     "Interest expense",
}

var addBackOrder = []AddBack{
	AddBackDepreciation,
	AddBackAmortization,
	AddBackImpairment,
	AddBackBadDebt,
	AddBackInterest,
}

// workingCapitalBuckets lists the deltas applied to operating cash. For asset
// buckets an increase consumes cash; for liability buckets it releases cash.
var workingCapitalBuckets = []struct {
	Bucket Bucket
	Label  string
	Asset  bool
}{
	{BucketTradeReceivables, "Change in trade receivables", true},
	{BucketVATReceivable, "Change in VAT receivable", true},
	{BucketInventory, "Change in inventory", true},
	{BucketPrepayments, "Change in prepayments", true},
	{BucketTradePayables, "Change in trade payables", false},
	{BucketVATPayable, "Change in VAT payable", false},
	{BucketAccruals, "Change in accruals", false},
	{BucketDeferredIncome, "Change in deferred income", false},
}

var investingBuckets = map[Bucket]string{
	BucketPropertyPlantEquipment:  "Property, plant and equipment",
	BucketAccumulatedDepreciation: "Property, plant and equipment",
	BucketIntangibles:             "Intangible assets",
	BucketLongTermInvestments:     "Long-term investments",
}

var financingBuckets = map[Bucket]string{
	BucketLongTermBorrowings: "Borrowings",
	BucketShareCapital:       "Share capital",
	BucketOtherReserves:      "Share capital",
	BucketDrawings:           "Dividends and drawings",
}

func buildCashFlow(
	from, to time.Time,
	pl ProfitAndLoss,
	opening, closing, rangeActs []ledger.AccountActivity,
	cashEntries []ledger.JournalEntry,
	accounts map[int64]ledger.Account,
	classifier *Classifier,
) CashFlow {
	cf := CashFlow{From: from, To: to}
	cf.ProfitBeforeTax = pl.ProfitOrLoss.Add(pl.TaxExpense.Total)

	// Non-cash and non-operating charges added back to profit.
	addBacks := map[AddBack]money.Money{}
	for _, act := range rangeActs {
		if kind, ok := classifier.AddBack(act.Account); ok {
			addBacks[kind] = addBacks[kind].Add(act.Net())
		}
	}
	for _, kind := range addBackOrder {
		if amount, ok := addBacks[kind]; ok && !amount.IsZero() {
			cf.AddBacks = append(cf.AddBacks, CashFlowLine{Label: addBackLabels[kind], Amount: amount})
		}
	}

	openingByBucket := bucketBalances(opening, classifier)
	closingByBucket := bucketBalances(closing, classifier)
	for _, wc := range workingCapitalBuckets {
		delta := closingByBucket[wc.Bucket].Sub(openingByBucket[wc.Bucket])
		if delta.IsZero() {
			continue
		}
		if wc.Asset {
			delta = delta.Neg()
		}
		cf.WorkingCapital = append(cf.WorkingCapital, CashFlowLine{Label: wc.Label, Amount: delta})
	}

	cf.OpeningCash = openingByBucket[BucketCashAndBank]
	cf.ClosingCash = closingByBucket[BucketCashAndBank]
	cf.NetChangeInCash = cf.ClosingCash.Sub(cf.OpeningCash)

	cashIDs := map[int64]bool{}
	for id, a := range accounts {
		if a.Type == ledger.AccountTypeAsset && classifier.BalanceSheetBucket(a) == BucketCashAndBank {
			cashIDs[id] = true
		}
	}

	investing := map[string]money.Money{}
	financing := map[string]money.Money{}
	for _, entry := range cashEntries {
		cashDelta, invLabel, finLabel, ambiguous := splitCashEntry(entry, cashIDs, accounts, classifier)
		if cashDelta.IsZero() || ambiguous {
			continue
		}
		switch {
		case invLabel != "" && finLabel == "":
			investing[invLabel] = investing[invLabel].Add(cashDelta)
		case finLabel != "" && invLabel == "":
			financing[finLabel] = financing[finLabel].Add(cashDelta)
		}
	}
	cf.Investing, cf.NetInvesting = flattenSection(investing)
	cf.Financing, cf.NetFinancing = flattenSection(financing)

	indirect := cf.ProfitBeforeTax
	for _, line := range cf.AddBacks {
		indirect = indirect.Add(line.Amount)
	}
	for _, line := range cf.WorkingCapital {
		indirect = indirect.Add(line.Amount)
	}
	// Residual so the sections reconcile to the actual cash delta.
	cf.UnclassifiedMovements = cf.NetChangeInCash.
		Sub(indirect).
		Sub(cf.NetInvesting).
		Sub(cf.NetFinancing)
	cf.NetOperating = indirect.Add(cf.UnclassifiedMovements)
	return cf
}

// splitCashEntry nets the cash movement of one journal entry and identifies
// the investing or financing label of the counterpart lines. An entry whose
// counterparts span more than one labelled category is ambiguous and left for
// the unclassified residual.
func splitCashEntry(entry ledger.JournalEntry, cashIDs map[int64]bool, accounts map[int64]ledger.Account, classifier *Classifier) (cashDelta money.Money, invLabel, finLabel string, ambiguous bool) {
	for _, line := range entry.Lines {
		if cashIDs[line.AccountID] {
			cashDelta = cashDelta.Add(line.Debit.Sub(line.Credit))
			continue
		}
		account, ok := accounts[line.AccountID]
		if !ok {
			continue
		}
		if account.Type != ledger.AccountTypeAsset &&
			account.Type != ledger.AccountTypeLiability &&
			account.Type != ledger.AccountTypeEquity {
			continue
		}
		bucket := classifier.BalanceSheetBucket(account)
		if label, ok := investingBuckets[bucket]; ok {
			if (invLabel != "" && invLabel != label) || finLabel != "" {
				ambiguous = true
			}
			invLabel = label
		} else if label, ok := financingBuckets[bucket]; ok {
			if (finLabel != "" && finLabel != label) || invLabel != "" {
				ambiguous = true
			}
			finLabel = label
		}
	}
	return cashDelta, invLabel, finLabel, ambiguous
}

// bucketBalances sums activity nets per balance-sheet bucket.
func bucketBalances(activities []ledger.AccountActivity, classifier *Classifier) map[Bucket]money.Money {
	out := map[Bucket]money.Money{}
	for _, act := range activities {
		switch act.Account.Type {
		case ledger.AccountTypeAsset, ledger.AccountTypeLiability, ledger.AccountTypeEquity:
			bucket := classifier.BalanceSheetBucket(act.Account)
			out[bucket] = out[bucket].Add(act.Net())
		}
	}
	return out
}

func flattenSection(byLabel map[string]money.Money) ([]CashFlowLine, money.Money) {
	labels := make([]string, 0, len(byLabel))
	for label := range byLabel {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	var lines []CashFlowLine
	var total money.Money
	for _, label := range labels {
		amount := byLabel[label]
		if amount.IsZero() {
			continue
		}
		lines = append(lines, CashFlowLine{Label: label, Amount: amount})
		total = total.Add(amount)
	}
	return lines, total
}
