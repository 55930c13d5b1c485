// Package money provides the fixed-point amount types used by the posting
// pipeline and the reporting engine. All monetary comparisons in the ledger go
// through Money so rounding behaviour stays uniform.
package money

import (
	"database/sql/driver"
	"fmt"

	"github.com/shopspring/decimal"
)

// Money is a two-decimal fixed-point amount. Construction always rounds
// half-up to two decimals, so two Money values representing the same cent
// amount always compare equal.
type Money struct {
	d decimal.Decimal
}

// Zero is the zero amount.
var Zero = Money{}

// New builds a Money from a decimal, rounding half-up to two decimals.
func New(d decimal.Decimal) Money {
	return Money{d: d.Round(2)}
}

// FromFloat builds a Money from a float64 amount.
func FromFloat(v float64) Money {
	return New(decimal.NewFromFloat(v))
}

// FromCents builds a Money from an integer number of cents.
func FromCents(cents int64) Money {
	return Money{d: decimal.New(cents, -2)}
}

// Parse builds a Money from its string form.
func Parse(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("money: parse %q: %w", s, err)
	}
	return New(d), nil
}

// MustParse is Parse for literals in tests and defaults.
func MustParse(s string) Money {
	m, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return m
}

// Add returns m + other.
func (m Money) Add(other Money) Money {
	return Money{d: m.d.Add(other.d)}
}

// Sub returns m - other.
func (m Money) Sub(other Money) Money {
	return Money{d: m.d.Sub(other.d)}
}

// Neg returns -m.
func (m Money) Neg() Money {
	return Money{d: m.d.Neg()}
}

// Abs returns the absolute value.
func (m Money) Abs() Money {
	return Money{d: m.d.Abs()}
}

// Cmp compares m against other: -1 if less, 0 if equal, 1 if greater.
func (m Money) Cmp(other Money) int {
	return m.d.Cmp(other.d)
}

// Equal reports whether both amounts are the same to the cent.
func (m Money) Equal(other Money) bool {
	return m.d.Equal(other.d)
}

// IsZero reports whether the amount is zero.
func (m Money) IsZero() bool {
	return m.d.IsZero()
}

// IsNegative reports whether the amount is below zero.
func (m Money) IsNegative() bool {
	return m.d.IsNegative()
}

// IsPositive reports whether the amount is above zero.
func (m Money) IsPositive() bool {
	return m.d.IsPositive()
}

// Cents returns the amount as an integer number of cents.
func (m Money) Cents() int64 {
	return m.d.Shift(2).IntPart()
}

// Float64 returns the amount as a float64 for display-only callers.
func (m Money) Float64() float64 {
	f, _ := m.d.Float64()
	return f
}

// Decimal exposes the underlying decimal value.
func (m Money) Decimal() decimal.Decimal {
	return m.d
}

// String renders the amount with two decimals.
func (m Money) String() string {
	return m.d.StringFixed(2)
}

// MarshalJSON renders the amount as a JSON number with two decimals.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.d.StringFixed(2)), nil
}

// UnmarshalJSON parses a JSON number or string amount.
func (m *Money) UnmarshalJSON(data []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return err
	}
	*m = New(d)
	return nil
}

// Value implements driver.Valuer so Money binds as NUMERIC.
func (m Money) Value() (driver.Value, error) {
	return m.d.StringFixed(2), nil
}

// Scan implements sql.Scanner for NUMERIC columns.
func (m *Money) Scan(src any) error {
	var d decimal.Decimal
	if err := d.Scan(src); err != nil {
		return err
	}
	*m = New(d)
	return nil
}

// Sum adds a series of amounts.
func Sum(amounts ...Money) Money {
	total := Money{}
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

// Rate is a decimal fraction with six-decimal intermediate precision, used for
// tax rates and discount percentages before the final two-decimal rounding.
type Rate struct {
	d decimal.Decimal
}

// NewRate builds a Rate, rounding half-up to six decimals.
func NewRate(d decimal.Decimal) Rate {
	return Rate{d: d.Round(6)}
}

// RateFromFloat builds a Rate from a float64 fraction.
func RateFromFloat(v float64) Rate {
	return NewRate(decimal.NewFromFloat(v))
}

// ParseRate builds a Rate from its string form.
func ParseRate(s string) (Rate, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Rate{}, fmt.Errorf("money: parse rate %q: %w", s, err)
	}
	return NewRate(d), nil
}

// Apply computes round2(base × rate).
func (r Rate) Apply(base Money) Money {
	return New(base.d.Mul(r.d))
}

// Decimal exposes the underlying fraction.
func (r Rate) Decimal() decimal.Decimal {
	return r.d
}

// String renders the fraction with six decimals.
func (r Rate) String() string {
	return r.d.StringFixed(6)
}

// Value implements driver.Valuer.
func (r Rate) Value() (driver.Value, error) {
	return r.d.StringFixed(6), nil
}

// Scan implements sql.Scanner.
func (r *Rate) Scan(src any) error {
	var d decimal.Decimal
	if err := d.Scan(src); err != nil {
		return err
	}
	*r = NewRate(d)
	return nil
}
