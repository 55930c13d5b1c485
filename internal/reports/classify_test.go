package reports

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openbooks-erp/openbooks/internal/ledger"
)

func account(code, name string, typ ledger.AccountType) ledger.Account {
	return ledger.Account{Code: code, Name: name, Type: typ, IsActive: true}
}

func TestBalanceSheetBucket(t *testing.T) {
	c := NewClassifier(DefaultKeywordTable())

	for _, tc := range []struct {
		name    string
		account ledger.Account
		want    Bucket
	}{
		{"bank", account("1000", "Business Bank Account", ledger.AccountTypeAsset), BucketCashAndBank},
		{"receivable", account("1100", "Accounts Receivable", ledger.AccountTypeAsset), BucketTradeReceivables},
		{"vat receivable", account("1300", "Input VAT", ledger.AccountTypeAsset), BucketVATReceivable},
		{"inventory", account("1200", "Inventory", ledger.AccountTypeAsset), BucketInventory},
		{"equipment", account("1500", "Office Equipment", ledger.AccountTypeAsset), BucketPropertyPlantEquipment},
		{"accum dep beats equipment", account("1590", "Accumulated Depreciation - Equipment", ledger.AccountTypeAsset), BucketAccumulatedDepreciation},
		{"deferred tax asset", account("1900", "Deferred Tax", ledger.AccountTypeAsset), BucketDeferredTaxAsset},
		{"unmatched asset", account("1999", "Suspense", ledger.AccountTypeAsset), BucketOtherAssets},

		{"payable", account("2000", "Accounts Payable", ledger.AccountTypeLiability), BucketTradePayables},
		{"vat payable", account("2200", "VAT Payable", ledger.AccountTypeLiability), BucketVATPayable},
		{"accrual", account("2300", "Accrued Expenses", ledger.AccountTypeLiability), BucketAccruals},
		{"loan", account("2500", "Long-term Loan", ledger.AccountTypeLiability), BucketLongTermBorrowings},
		{"deferred tax liability", account("2900", "Deferred Tax", ledger.AccountTypeLiability), BucketDeferredTaxLiab},

		{"share capital", account("3000", "Share Capital", ledger.AccountTypeEquity), BucketShareCapital},
		{"drawings", account("3100", "Owner Drawings", ledger.AccountTypeEquity), BucketDrawings},
		{"reserve", account("3200", "Revaluation Reserve", ledger.AccountTypeEquity), BucketOtherReserves},
		{"unmatched equity", account("3900", "Sundry Equity", ledger.AccountTypeEquity), BucketOtherEquity},
	} {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, c.BalanceSheetBucket(tc.account))
		})
	}
}

func TestSectionByCodeRange(t *testing.T) {
	c := NewClassifier(DefaultKeywordTable())

	for _, tc := range []struct {
		code string
		typ  ledger.AccountType
		want Section
	}{
		{"40000", ledger.AccountTypeIncome, SectionRevenue},
		{"51200", ledger.AccountTypeExpense, SectionCostOfSales},
		{"66999", ledger.AccountTypeExpense, SectionOperatingExpenses},
		{"67100", ledger.AccountTypeExpense, SectionTaxExpense},
		{"70500", ledger.AccountTypeIncome, SectionOtherIncome},
		{"89999", ledger.AccountTypeExpense, SectionOtherExpenses},
	} {
		require.Equal(t, tc.want, c.Section(account(tc.code, "Some Account", tc.typ)), "code %s", tc.code)
	}
}

func TestSectionByKeyword(t *testing.T) {
	c := NewClassifier(DefaultKeywordTable())

	require.Equal(t, SectionCostOfSales, c.Section(account("5000", "Cost of Goods Sold", ledger.AccountTypeExpense)))
	require.Equal(t, SectionTaxExpense, c.Section(account("9500", "Corporation Tax", ledger.AccountTypeExpense)))
	require.Equal(t, SectionOtherIncome, c.Section(account("9000", "Interest Income", ledger.AccountTypeIncome)))
	// Fallbacks by type.
	require.Equal(t, SectionRevenue, c.Section(account("4000", "Sales", ledger.AccountTypeIncome)))
	require.Equal(t, SectionOperatingExpenses, c.Section(account("6100", "Office Expenses", ledger.AccountTypeExpense)))
}

func TestAddBackClassification(t *testing.T) {
	c := NewClassifier(DefaultKeywordTable())

	kind, ok := c.AddBack(account("6200", "Depreciation Expense", ledger.AccountTypeExpense))
	require.True(t, ok)
	require.Equal(t, AddBackDepreciation, kind)

	kind, ok = c.AddBack(account("6300", "Bad Debt Expense", ledger.AccountTypeExpense))
	require.True(t, ok)
	require.Equal(t, AddBackBadDebt, kind)

	_, ok = c.AddBack(account("6100", "Office Expenses", ledger.AccountTypeExpense))
	require.False(t, ok)

	// Income accounts never produce add-backs even on keyword match.
	_, ok = c.AddBack(account("9000", "Interest Income", ledger.AccountTypeIncome))
	require.False(t, ok)
}

func TestIsNonCurrent(t *testing.T) {
	c := NewClassifier(DefaultKeywordTable())

	ppe := account("1500", "Office Equipment", ledger.AccountTypeAsset)
	require.True(t, c.IsNonCurrent(ppe, BucketPropertyPlantEquipment))

	deposit := account("1800", "Long-term Deposit", ledger.AccountTypeAsset)
	require.True(t, c.IsNonCurrent(deposit, BucketOtherAssets))

	bank := account("1000", "Business Bank Account", ledger.AccountTypeAsset)
	require.False(t, c.IsNonCurrent(bank, BucketCashAndBank))
}
