package periods

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/openbooks-erp/openbooks/internal/shared"
)

// Guard is the gating surface the posting and reporting services depend on.
type Guard interface {
	Resolve(ctx context.Context, tenantID uuid.UUID, date time.Time) (Period, error)
	AssertPostable(ctx context.Context, tenantID uuid.UUID, date time.Time) error
	AssertCoverage(ctx context.Context, tenantID uuid.UUID, from, to time.Time) error
	CutoverDate(ctx context.Context, tenantID uuid.UUID) (time.Time, bool, error)
}

// Service resolves periods and enforces period control over postings and
// report ranges. It also owns the period admin lifecycle.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService constructs a Service instance.
func NewService(repo Repository) *Service {
	return &Service{
		repo: repo,
		now:  time.Now,
	}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Resolve returns the period covering the given date.
func (s *Service) Resolve(ctx context.Context, tenantID uuid.UUID, date time.Time) (Period, error) {
	return s.repo.FindByDate(ctx, tenantID, date)
}

// AssertPostable rejects posting dates that fall outside an open period,
// inside the Opening Balances period, or before the cutover.
func (s *Service) AssertPostable(ctx context.Context, tenantID uuid.UUID, date time.Time) error {
	day := DateOnly(date)

	period, err := s.repo.FindByDate(ctx, tenantID, day)
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			return err
		}
		cutover, ok, cerr := s.CutoverDate(ctx, tenantID)
		if cerr != nil {
			return cerr
		}
		if ok && day.Before(cutover) {
			return &shared.PeriodControlError{
				Kind:    shared.BeforeCutover,
				Message: fmt.Sprintf("posting date %s precedes the cutover date %s", day.Format(time.DateOnly), cutover.Format(time.DateOnly)),
			}
		}
		return &shared.PeriodControlError{
			Kind:    shared.PeriodNotOpen,
			Message: fmt.Sprintf("no accounting period covers %s", day.Format(time.DateOnly)),
		}
	}

	// The Opening Balances period is never a posting target, whatever its
	// status: it exists only to carry the migrated history.
	if period.IsOpeningBalances() {
		return &shared.PeriodControlError{
			Kind:    shared.OpeningBalancesLocked,
			Message: fmt.Sprintf("posting date %s falls in the Opening Balances period", day.Format(time.DateOnly)),
		}
	}
	if period.Status != StatusOpen {
		return &shared.PeriodControlError{
			Kind:    shared.PeriodNotOpen,
			Message: fmt.Sprintf("period %q covering %s is %s", period.Name, day.Format(time.DateOnly), period.Status),
		}
	}

	cutover, ok, err := s.CutoverDate(ctx, tenantID)
	if err != nil {
		return err
	}
	if ok && day.Before(cutover) {
		return &shared.PeriodControlError{
			Kind:    shared.BeforeCutover,
			Message: fmt.Sprintf("posting date %s precedes the cutover date %s", day.Format(time.DateOnly), cutover.Format(time.DateOnly)),
		}
	}
	return nil
}

// AssertCoverage verifies that periods cover every day of [from, to] with no
// gap. Report ranges with uncovered days would silently understate balances.
func (s *Service) AssertCoverage(ctx context.Context, tenantID uuid.UUID, from, to time.Time) error {
	start, end := DateOnly(from), DateOnly(to)
	if end.Before(start) {
		return shared.NewValidation("INVERTED_RANGE", "range end precedes range start")
	}

	overlapping, err := s.repo.ListOverlapping(ctx, tenantID, start, end)
	if err != nil {
		return err
	}
	if len(overlapping) == 0 {
		return coverageGap(start, end)
	}

	first := overlapping[0]
	if DateOnly(first.StartDate).After(start) {
		return coverageGap(start, DateOnly(first.StartDate).AddDate(0, 0, -1))
	}
	covered := DateOnly(first.EndDate)
	for _, p := range overlapping[1:] {
		ps := DateOnly(p.StartDate)
		if ps.After(covered.AddDate(0, 0, 1)) {
			return coverageGap(covered.AddDate(0, 0, 1), ps.AddDate(0, 0, -1))
		}
		if pe := DateOnly(p.EndDate); pe.After(covered) {
			covered = pe
		}
	}
	if covered.Before(end) {
		return coverageGap(covered.AddDate(0, 0, 1), end)
	}
	return nil
}

func coverageGap(from, to time.Time) error {
	return &shared.PeriodControlError{
		Kind:    shared.PeriodCoverageGap,
		Message: fmt.Sprintf("no accounting period covers %s through %s", from.Format(time.DateOnly), to.Format(time.DateOnly)),
	}
}

// CutoverDate returns the start date of the closed Opening Balances period,
// the hard floor before which nothing may post or report. The second return is
// false when no cutover is established, which is the state of a tenant without
// migrated history.
func (s *Service) CutoverDate(ctx context.Context, tenantID uuid.UUID) (time.Time, bool, error) {
	ob, err := s.repo.FindOpeningBalances(ctx, tenantID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}
	if ob.Status != StatusClosed {
		return time.Time{}, false, nil
	}
	return DateOnly(ob.StartDate), true, nil
}

// CreatePeriod opens a new period after checking range overlap.
func (s *Service) CreatePeriod(ctx context.Context, in CreatePeriodInput) (Period, error) {
	if err := in.Validate(); err != nil {
		return Period{}, err
	}
	conflict, err := s.repo.RangeConflict(ctx, in.TenantID, in.StartDate, in.EndDate)
	if err != nil {
		return Period{}, err
	}
	if conflict {
		return Period{}, &shared.ConflictError{Entity: "period", Message: "period range overlaps an existing period"}
	}
	return s.repo.Insert(ctx, in, StatusOpen)
}

// ClosePeriod transitions an open period to CLOSED.
func (s *Service) ClosePeriod(ctx context.Context, tenantID uuid.UUID, id int64) (Period, error) {
	period, err := s.repo.FindByID(ctx, tenantID, id)
	if err != nil {
		return Period{}, err
	}
	if period.Status == StatusClosed {
		return Period{}, &shared.ConflictError{Entity: "period", Message: "period is already closed"}
	}
	if err := s.repo.UpdateStatus(ctx, tenantID, id, StatusClosed); err != nil {
		return Period{}, err
	}
	period.Status = StatusClosed
	return period, nil
}

// ReopenPeriod transitions a closed period back to OPEN. The Opening Balances
// period stays closed forever: reopening it would unlock the migrated history.
func (s *Service) ReopenPeriod(ctx context.Context, tenantID uuid.UUID, id int64) (Period, error) {
	period, err := s.repo.FindByID(ctx, tenantID, id)
	if err != nil {
		return Period{}, err
	}
	if period.IsOpeningBalances() {
		return Period{}, &shared.PeriodControlError{
			Kind:    shared.OpeningBalancesLocked,
			Message: "the Opening Balances period cannot be reopened",
		}
	}
	if period.Status == StatusOpen {
		return Period{}, &shared.ConflictError{Entity: "period", Message: "period is already open"}
	}
	if err := s.repo.UpdateStatus(ctx, tenantID, id, StatusOpen); err != nil {
		return Period{}, err
	}
	period.Status = StatusOpen
	return period, nil
}
