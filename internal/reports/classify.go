// Package reports derives financial statements purely from posted journal
// lines: trial balance, profit and loss, balance sheet, changes in equity, and
// an indirect cash flow. Nothing here writes to the ledger.
package reports

import (
	"strconv"
	"strings"

	"github.com/openbooks-erp/openbooks/internal/ledger"
)

// Bucket is the closed set of balance-sheet classifications an account can
// land in. Unmatched accounts fall into the "other" bucket of their natural
// type rather than disappearing from the statement.
type Bucket string

const (
	BucketCashAndBank             Bucket = "CASH_AND_BANK"
	BucketTradeReceivables        Bucket = "TRADE_RECEIVABLES"
	BucketVATReceivable           Bucket = "VAT_RECEIVABLE"
	BucketInventory               Bucket = "INVENTORY"
	BucketPrepayments             Bucket = "PREPAYMENTS"
	BucketPropertyPlantEquipment  Bucket = "PROPERTY_PLANT_EQUIPMENT"
	BucketAccumulatedDepreciation Bucket = "ACCUMULATED_DEPRECIATION"
	BucketIntangibles             Bucket = "INTANGIBLES"
	BucketLongTermInvestments     Bucket = "LONG_TERM_INVESTMENTS"
	BucketDeferredTaxAsset        Bucket = "DEFERRED_TAX_ASSET"
	BucketOtherAssets             Bucket = "OTHER_ASSETS"

	BucketTradePayables      Bucket = "TRADE_PAYABLES"
	BucketVATPayable         Bucket = "VAT_PAYABLE"
	BucketAccruals           Bucket = "ACCRUALS"
	BucketDeferredIncome     Bucket = "DEFERRED_INCOME"
	BucketLongTermBorrowings Bucket = "LONG_TERM_BORROWINGS"
	BucketDeferredTaxLiab    Bucket = "DEFERRED_TAX_LIABILITY"
	BucketOtherLiabilities   Bucket = "OTHER_LIABILITIES"

	BucketShareCapital  Bucket = "SHARE_CAPITAL"
	BucketOtherReserves Bucket = "OTHER_RESERVES"
	BucketDrawings      Bucket = "DIVIDENDS_AND_DRAWINGS"
	BucketOtherEquity   Bucket = "OTHER_EQUITY"
)

// Section is the closed set of profit-and-loss groupings.
type Section string

const (
	SectionRevenue           Section = "REVENUE"
	SectionCostOfSales       Section = "COST_OF_SALES"
	SectionOperatingExpenses Section = "OPERATING_EXPENSES"
	SectionTaxExpense        Section = "TAX_EXPENSE"
	SectionOtherIncome       Section = "OTHER_INCOME"
	SectionOtherExpenses     Section = "OTHER_EXPENSES"
)

// AddBack identifies a non-cash or non-operating expense the indirect cash
// flow adds back to profit before tax.
type AddBack string

const (
	AddBackDepreciation AddBack = "DEPRECIATION"
	AddBackAmortization AddBack = "AMORTIZATION"
	AddBackImpairment   AddBack = "IMPAIRMENT"
	AddBackBadDebt      AddBack = "BAD_DEBT"
	AddBackInterest     AddBack = "INTEREST"
)

// BucketRule maps label keywords to a balance-sheet bucket. When Types is
// non-empty the rule only applies to accounts of those types.
type BucketRule struct {
	Bucket   Bucket
	Types    []ledger.AccountType
	Keywords []string
}

// SectionRule maps label keywords to a profit-and-loss section.
type SectionRule struct {
	Section  Section
	Types    []ledger.AccountType
	Keywords []string
}

// AddBackRule maps label keywords to a cash-flow add-back.
type AddBackRule struct {
	AddBack  AddBack
	Keywords []string
}

// CodeRange assigns a section to accounts whose numeric code falls inside an
// inclusive range. Ranges are checked before keywords.
type CodeRange struct {
	Low, High int
	Section   Section
}

// KeywordTable is the classification configuration. It is data handed to the
// classifier, not behaviour baked into it, so a deployment can reshape the
// mapping to its chart of accounts without code changes.
type KeywordTable struct {
	BalanceSheet  []BucketRule
	SectionRanges []CodeRange
	Sections      []SectionRule
	AddBacks      []AddBackRule
	// NonCurrentMarkers force an otherwise-current account onto the
	// non-current side of the sheet.
	NonCurrentMarkers []string
}

// DefaultKeywordTable returns the stock mapping for a conventional small-
// business chart of accounts.
func DefaultKeywordTable() KeywordTable {
	asset := []ledger.AccountType{ledger.AccountTypeAsset}
	liability := []ledger.AccountType{ledger.AccountTypeLiability}
	return KeywordTable{
		BalanceSheet: []BucketRule{
			{Bucket: BucketAccumulatedDepreciation, Types: asset, Keywords: []string{"accumulated depreciation", "accum depreciation", "accum. depreciation"}},
			{Bucket: BucketCashAndBank, Types: asset, Keywords: []string{"cash", "bank", "petty"}},
			{Bucket: BucketVATReceivable, Types: asset, Keywords: []string{"vat receivable", "input vat", "tax receivable", "gst receivable"}},
			{Bucket: BucketTradeReceivables, Types: asset, Keywords: []string{"receivable", "debtors"}},
			{Bucket: BucketInventory, Types: asset, Keywords: []string{"inventory", "stock on hand", "goods held"}},
			{Bucket: BucketPrepayments, Types: asset, Keywords: []string{"prepaid", "prepayment"}},
			{Bucket: BucketIntangibles, Types: asset, Keywords: []string{"intangible", "goodwill", "patent", "trademark", "software licence", "software license"}},
			{Bucket: BucketLongTermInvestments, Types: asset, Keywords: []string{"long-term investment", "long term investment", "investment in"}},
			{Bucket: BucketDeferredTaxAsset, Types: asset, Keywords: []string{"deferred tax"}},
			{Bucket: BucketPropertyPlantEquipment, Types: asset, Keywords: []string{"property", "plant", "equipment", "machinery", "vehicle", "fixture", "furniture", "building", "land", "computer"}},

			{Bucket: BucketVATPayable, Types: liability, Keywords: []string{"vat payable", "output vat", "tax payable", "gst payable", "sales tax"}},
			{Bucket: BucketTradePayables, Types: liability, Keywords: []string{"payable", "creditors"}},
			{Bucket: BucketAccruals, Types: liability, Keywords: []string{"accrual", "accrued"}},
			{Bucket: BucketDeferredIncome, Types: liability, Keywords: []string{"deferred income", "deferred revenue", "unearned"}},
			{Bucket: BucketLongTermBorrowings, Types: liability, Keywords: []string{"loan", "borrowing", "mortgage", "bond", "note payable"}},
			{Bucket: BucketDeferredTaxLiab, Types: liability, Keywords: []string{"deferred tax"}},

			{Bucket: BucketShareCapital, Types: []ledger.AccountType{ledger.AccountTypeEquity}, Keywords: []string{"share capital", "ordinary shares", "common stock", "capital stock", "owner capital", "owner's capital", "capital introduced"}},
			{Bucket: BucketDrawings, Types: []ledger.AccountType{ledger.AccountTypeEquity}, Keywords: []string{"drawing", "dividend", "distribution"}},
			{Bucket: BucketOtherReserves, Types: []ledger.AccountType{ledger.AccountTypeEquity}, Keywords: []string{"reserve", "revaluation", "share premium"}},
		},
		SectionRanges: []CodeRange{
			{Low: 40000, High: 49999, Section: SectionRevenue},
			{Low: 50000, High: 59999, Section: SectionCostOfSales},
			{Low: 60000, High: 66999, Section: SectionOperatingExpenses},
			{Low: 67000, High: 67999, Section: SectionTaxExpense},
			{Low: 70000, High: 79999, Section: SectionOtherIncome},
			{Low: 80000, High: 89999, Section: SectionOtherExpenses},
		},
		Sections: []SectionRule{
			{Section: SectionCostOfSales, Types: []ledger.AccountType{ledger.AccountTypeExpense}, Keywords: []string{"cost of sales", "cost of goods", "cogs", "direct materials", "direct labour", "direct labor"}},
			{Section: SectionTaxExpense, Types: []ledger.AccountType{ledger.AccountTypeExpense}, Keywords: []string{"income tax", "corporation tax", "tax expense", "tax charge"}},
			{Section: SectionOtherIncome, Types: []ledger.AccountType{ledger.AccountTypeIncome}, Keywords: []string{"other income", "interest income", "interest received", "dividend income", "gain on", "sundry income"}},
			{Section: SectionOtherExpenses, Types: []ledger.AccountType{ledger.AccountTypeExpense}, Keywords: []string{"other expense", "loss on", "sundry expense"}},
		},
		AddBacks: []AddBackRule{
			{AddBack: AddBackDepreciation, Keywords: []string{"depreciation"}},
			{AddBack: AddBackAmortization, Keywords: []string{"amortisation", "amortization"}},
			{AddBack: AddBackImpairment, Keywords: []string{"impairment", "write-off", "write off", "write-down", "write down"}},
			{AddBack: AddBackBadDebt, Keywords: []string{"bad debt", "doubtful"}},
			{AddBack: AddBackInterest, Keywords: []string{"interest"}},
		},
		NonCurrentMarkers: []string{"long-term", "long term", "non-current", "noncurrent"},
	}
}

// Classifier maps accounts into statement buckets using an injected keyword
// table. Matching runs against the account's normalized "code name" label;
// first rule wins.
type Classifier struct {
	table KeywordTable
}

// NewClassifier builds a Classifier over the table.
func NewClassifier(table KeywordTable) *Classifier {
	return &Classifier{table: table}
}

func typeMatches(types []ledger.AccountType, t ledger.AccountType) bool {
	if len(types) == 0 {
		return true
	}
	for _, want := range types {
		if want == t {
			return true
		}
	}
	return false
}

func labelMatches(label string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(label, kw) {
			return true
		}
	}
	return false
}

// BalanceSheetBucket classifies a non-P&L account onto the sheet.
func (c *Classifier) BalanceSheetBucket(a ledger.Account) Bucket {
	label := a.NormalizedLabel()
	for _, rule := range c.table.BalanceSheet {
		if typeMatches(rule.Types, a.Type) && labelMatches(label, rule.Keywords) {
			return rule.Bucket
		}
	}
	switch a.Type {
	case ledger.AccountTypeAsset:
		return BucketOtherAssets
	case ledger.AccountTypeLiability:
		return BucketOtherLiabilities
	default:
		return BucketOtherEquity
	}
}

// Section classifies an income or expense account into a P&L section. Numeric
// code ranges take precedence over keywords; an unmatched account falls to
// REVENUE or OPERATING_EXPENSES by type.
func (c *Classifier) Section(a ledger.Account) Section {
	if code, ok := leadingCode(a.Code); ok {
		for _, r := range c.table.SectionRanges {
			if code >= r.Low && code <= r.High {
				return r.Section
			}
		}
	}
	label := a.NormalizedLabel()
	for _, rule := range c.table.Sections {
		if typeMatches(rule.Types, a.Type) && labelMatches(label, rule.Keywords) {
			return rule.Section
		}
	}
	if a.Type == ledger.AccountTypeIncome {
		return SectionRevenue
	}
	return SectionOperatingExpenses
}

// AddBack reports the cash-flow add-back an expense account represents, if
// any.
func (c *Classifier) AddBack(a ledger.Account) (AddBack, bool) {
	if a.Type != ledger.AccountTypeExpense {
		return "", false
	}
	label := a.NormalizedLabel()
	for _, rule := range c.table.AddBacks {
		if labelMatches(label, rule.Keywords) {
			return rule.AddBack, true
		}
	}
	return "", false
}

// nonCurrentBuckets always sit outside the current section regardless of
// labeling.
var nonCurrentBuckets = map[Bucket]bool{
	BucketPropertyPlantEquipment:  true,
	BucketAccumulatedDepreciation: true,
	BucketIntangibles:             true,
	BucketLongTermInvestments:     true,
	BucketDeferredTaxAsset:        true,
	BucketDeferredTaxLiab:         true,
	BucketLongTermBorrowings:      true,
}

// IsNonCurrent reports whether the account belongs on the non-current side of
// the sheet, either because its bucket is inherently long-lived or because its
// label carries a non-current marker.
func (c *Classifier) IsNonCurrent(a ledger.Account, b Bucket) bool {
	if nonCurrentBuckets[b] {
		return true
	}
	return labelMatches(a.NormalizedLabel(), c.table.NonCurrentMarkers)
}

// leadingCode parses the leading digit run of an account code.
func leadingCode(code string) (int, bool) {
	i := 0
	for i < len(code) && code[i] >= '0' && code[i] <= '9' {
		i++
	}
	if i == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(code[:i])
	if err != nil {
		return 0, false
	}
	return n, true
}
