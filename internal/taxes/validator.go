package taxes

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/openbooks-erp/openbooks/internal/money"
	"github.com/openbooks-erp/openbooks/internal/shared"
)

// Validation error codes surfaced to callers.
const (
	CodeInvalidTaxRate        = "INVALID_TAX_RATE"
	CodeTaxableBaseMismatch   = "TAXABLE_BASE_MISMATCH"
	CodeTaxArithmeticMismatch = "TAX_ARITHMETIC_MISMATCH"
)

// Validator cross-checks submitted invoice tax lines against configured
// rates. Both the AP and AR pipelines run it on create, submit, and again on
// post as defense against state drift.
type Validator struct {
	repo Repository
}

// NewValidator constructs a Validator.
func NewValidator(repo Repository) *Validator {
	return &Validator{repo: repo}
}

// Validate resolves every referenced rate, reconciles the taxable base against
// the net amount, and checks the rate arithmetic line by line. An invoice with
// no tax lines validates to a zero total.
func (v *Validator) Validate(ctx context.Context, tenantID uuid.UUID, expected RateType, net money.Money, lines []LineInput) (Result, error) {
	if len(lines) == 0 {
		return Result{}, nil
	}

	ids := make([]int64, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.TaxRateID)
	}
	rates, err := v.repo.RatesByIDs(ctx, tenantID, ids)
	if err != nil {
		return Result{}, err
	}

	result := Result{Rows: make([]Row, 0, len(lines))}
	var base money.Money
	for _, line := range lines {
		rate, ok := rates[line.TaxRateID]
		if !ok || !rate.IsActive || rate.Type != expected {
			return Result{}, shared.NewValidation(CodeInvalidTaxRate,
				fmt.Sprintf("tax rate %d is not an active %s rate", line.TaxRateID, expected))
		}
		base = base.Add(line.TaxableAmount)
	}
	if !base.Equal(net) {
		return Result{}, &shared.ValidationError{
			Code:     CodeTaxableBaseMismatch,
			Message:  "sum of taxable amounts does not equal the invoice net amount",
			Expected: net.String(),
			Actual:   base.String(),
		}
	}
	for _, line := range lines {
		rate := rates[line.TaxRateID]
		want := rate.Rate.Apply(line.TaxableAmount)
		if !want.Equal(line.TaxAmount) {
			return Result{}, &shared.ValidationError{
				Code:     CodeTaxArithmeticMismatch,
				Message:  fmt.Sprintf("tax amount for rate %d does not match rate arithmetic", line.TaxRateID),
				Expected: want.String(),
				Actual:   line.TaxAmount.String(),
			}
		}
		result.Rows = append(result.Rows, Row{
			TaxRateID:     line.TaxRateID,
			GLAccountID:   rate.GLAccountID,
			TaxableAmount: line.TaxableAmount,
			TaxAmount:     line.TaxAmount,
		})
		result.TotalTax = result.TotalTax.Add(line.TaxAmount)
	}
	return result, nil
}
