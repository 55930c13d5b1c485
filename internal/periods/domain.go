// Package periods implements the accounting period guard: period resolution,
// posting-date gating, range coverage checks, and the Opening Balances cutover.
package periods

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/openbooks-erp/openbooks/internal/shared"
)

// Status is the lifecycle state of an accounting period.
type Status string

const (
	StatusOpen   Status = "OPEN"
	StatusClosed Status = "CLOSED"
)

// OpeningBalancesName is the reserved period name that marks the historical
// cutover period. Matching is case-insensitive.
const OpeningBalancesName = "Opening Balances"

// Period is a contiguous posting window for one tenant.
type Period struct {
	ID        int64
	TenantID  uuid.UUID
	Name      string
	StartDate time.Time
	EndDate   time.Time
	Status    Status
}

// IsOpeningBalances reports whether the period is the reserved cutover period.
func (p Period) IsOpeningBalances() bool {
	return strings.EqualFold(strings.TrimSpace(p.Name), OpeningBalancesName)
}

// Contains reports whether the date falls within the period, day-granular.
func (p Period) Contains(date time.Time) bool {
	d := DateOnly(date)
	return !d.Before(DateOnly(p.StartDate)) && !d.After(DateOnly(p.EndDate))
}

// CreatePeriodInput carries the fields needed to open a new period.
type CreatePeriodInput struct {
	TenantID  uuid.UUID
	Name      string
	StartDate time.Time
	EndDate   time.Time
}

// Validate checks structural constraints before touching the store.
func (in CreatePeriodInput) Validate() error {
	if in.TenantID == uuid.Nil {
		return shared.NewValidation("MISSING_TENANT", "tenant is required")
	}
	if strings.TrimSpace(in.Name) == "" {
		return shared.NewValidation("MISSING_PERIOD_NAME", "period name is required")
	}
	if in.StartDate.IsZero() || in.EndDate.IsZero() {
		return shared.NewValidation("MISSING_PERIOD_RANGE", "period start and end dates are required")
	}
	if DateOnly(in.EndDate).Before(DateOnly(in.StartDate)) {
		return shared.NewValidation("INVERTED_PERIOD_RANGE", "period end date precedes start date")
	}
	return nil
}

// DateOnly truncates a timestamp to its UTC calendar day. All period
// comparisons run at day granularity.
func DateOnly(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
