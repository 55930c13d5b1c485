package taxes

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/openbooks-erp/openbooks/internal/money"
	"github.com/openbooks-erp/openbooks/internal/shared"
)

type memRepo struct {
	rates map[int64]TaxRate
}

func (m *memRepo) RatesByIDs(_ context.Context, _ uuid.UUID, ids []int64) (map[int64]TaxRate, error) {
	out := map[int64]TaxRate{}
	for _, id := range ids {
		if r, ok := m.rates[id]; ok {
			out[id] = r
		}
	}
	return out, nil
}

func testRates() *memRepo {
	return &memRepo{rates: map[int64]TaxRate{
		1: {ID: 1, Name: "VAT 15% Output", Type: RateTypeOutput, Rate: money.RateFromFloat(0.15), GLAccountID: 40, IsActive: true},
		2: {ID: 2, Name: "VAT 15% Input", Type: RateTypeInput, Rate: money.RateFromFloat(0.15), GLAccountID: 41, IsActive: true},
		3: {ID: 3, Name: "Old VAT", Type: RateTypeOutput, Rate: money.RateFromFloat(0.14), GLAccountID: 40, IsActive: false},
	}}
}

func TestValidateHappyPath(t *testing.T) {
	v := NewValidator(testRates())

	res, err := v.Validate(context.Background(), uuid.New(), RateTypeOutput, money.MustParse("1000.00"), []LineInput{
		{TaxRateID: 1, TaxableAmount: money.MustParse("1000.00"), TaxAmount: money.MustParse("150.00")},
	})
	require.NoError(t, err)
	require.Equal(t, "150.00", res.TotalTax.String())
	require.Len(t, res.Rows, 1)
	require.Equal(t, int64(40), res.Rows[0].GLAccountID)
}

func TestValidateNoTaxLines(t *testing.T) {
	v := NewValidator(testRates())

	res, err := v.Validate(context.Background(), uuid.New(), RateTypeInput, money.MustParse("500.00"), nil)
	require.NoError(t, err)
	require.True(t, res.TotalTax.IsZero())
	require.Empty(t, res.Rows)
}

func TestValidateRejectsWrongRate(t *testing.T) {
	v := NewValidator(testRates())
	net := money.MustParse("100.00")

	cases := []struct {
		name string
		line LineInput
	}{
		{"unknown rate", LineInput{TaxRateID: 99, TaxableAmount: net, TaxAmount: money.MustParse("15.00")}},
		{"inactive rate", LineInput{TaxRateID: 3, TaxableAmount: net, TaxAmount: money.MustParse("14.00")}},
		{"wrong type", LineInput{TaxRateID: 2, TaxableAmount: net, TaxAmount: money.MustParse("15.00")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := v.Validate(context.Background(), uuid.New(), RateTypeOutput, net, []LineInput{tc.line})
			var ve *shared.ValidationError
			require.ErrorAs(t, err, &ve)
			require.Equal(t, CodeInvalidTaxRate, ve.Code)
		})
	}
}

func TestValidateTaxableBaseMismatch(t *testing.T) {
	v := NewValidator(testRates())

	_, err := v.Validate(context.Background(), uuid.New(), RateTypeOutput, money.MustParse("1000.00"), []LineInput{
		{TaxRateID: 1, TaxableAmount: money.MustParse("900.00"), TaxAmount: money.MustParse("135.00")},
	})
	var ve *shared.ValidationError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, CodeTaxableBaseMismatch, ve.Code)
	require.Equal(t, "1000.00", ve.Expected)
	require.Equal(t, "900.00", ve.Actual)
}

func TestValidateArithmeticMismatch(t *testing.T) {
	v := NewValidator(testRates())

	_, err := v.Validate(context.Background(), uuid.New(), RateTypeOutput, money.MustParse("1000.00"), []LineInput{
		{TaxRateID: 1, TaxableAmount: money.MustParse("1000.00"), TaxAmount: money.MustParse("150.01")},
	})
	var ve *shared.ValidationError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, CodeTaxArithmeticMismatch, ve.Code)
	require.Equal(t, "150.00", ve.Expected)
	require.Equal(t, "150.01", ve.Actual)
}

func TestValidateRoundHalfUpBoundary(t *testing.T) {
	repo := testRates()
	repo.rates[5] = TaxRate{ID: 5, Name: "Levy 7.2513%", Type: RateTypeOutput, Rate: money.RateFromFloat(0.072513), GLAccountID: 40, IsActive: true}
	v := NewValidator(repo)

	// 123.45 × 0.072513 = 8.951730
	for _, tc := range []struct {
		tax string
		ok  bool
	}{
		{"8.95", true},
		{"8.96", false},
		{"8.94", false},
	} {
		t.Run(fmt.Sprintf("tax=%s", tc.tax), func(t *testing.T) {
			_, err := v.Validate(context.Background(), uuid.New(), RateTypeOutput, money.MustParse("123.45"), []LineInput{
				{TaxRateID: 5, TaxableAmount: money.MustParse("123.45"), TaxAmount: money.MustParse(tc.tax)},
			})
			if tc.ok {
				require.NoError(t, err)
			} else {
				var ve *shared.ValidationError
				require.ErrorAs(t, err, &ve)
				require.Equal(t, CodeTaxArithmeticMismatch, ve.Code)
			}
		})
	}
}

func TestTaxByGLAccountAggregates(t *testing.T) {
	repo := testRates()
	repo.rates[6] = TaxRate{ID: 6, Name: "VAT 5% Output", Type: RateTypeOutput, Rate: money.RateFromFloat(0.05), GLAccountID: 40, IsActive: true}
	v := NewValidator(repo)

	res, err := v.Validate(context.Background(), uuid.New(), RateTypeOutput, money.MustParse("300.00"), []LineInput{
		{TaxRateID: 1, TaxableAmount: money.MustParse("200.00"), TaxAmount: money.MustParse("30.00")},
		{TaxRateID: 6, TaxableAmount: money.MustParse("100.00"), TaxAmount: money.MustParse("5.00")},
	})
	require.NoError(t, err)
	require.Equal(t, "35.00", res.TotalTax.String())

	byGL := res.TaxByGLAccount()
	require.Len(t, byGL, 1)
	require.Equal(t, "35.00", byGL[40].String())
}
