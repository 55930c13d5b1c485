package periods

import (
	"context"
	"sort"
	"time"

	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/openbooks-erp/openbooks/internal/shared"
)

type memRepo struct {
	seq     int64
	periods []Period
}

func (m *memRepo) FindByID(_ context.Context, tenantID uuid.UUID, id int64) (Period, error) {
	for _, p := range m.periods {
		if p.TenantID == tenantID && p.ID == id {
			return p, nil
		}
	}
	return Period{}, &shared.NotFoundError{Entity: "period"}
}

func (m *memRepo) FindByDate(_ context.Context, tenantID uuid.UUID, date time.Time) (Period, error) {
	for _, p := range m.periods {
		if p.TenantID == tenantID && p.Contains(date) {
			return p, nil
		}
	}
	return Period{}, &shared.NotFoundError{Entity: "period"}
}

func (m *memRepo) FindOpeningBalances(_ context.Context, tenantID uuid.UUID) (Period, error) {
	for _, p := range m.periods {
		if p.TenantID == tenantID && p.IsOpeningBalances() {
			return p, nil
		}
	}
	return Period{}, &shared.NotFoundError{Entity: "period"}
}

func (m *memRepo) ListOverlapping(_ context.Context, tenantID uuid.UUID, from, to time.Time) ([]Period, error) {
	var out []Period
	for _, p := range m.periods {
		if p.TenantID != tenantID {
			continue
		}
		if !DateOnly(p.StartDate).After(DateOnly(to)) && !DateOnly(p.EndDate).Before(DateOnly(from)) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out, nil
}

func (m *memRepo) RangeConflict(ctx context.Context, tenantID uuid.UUID, from, to time.Time) (bool, error) {
	overlapping, err := m.ListOverlapping(ctx, tenantID, from, to)
	return len(overlapping) > 0, err
}

func (m *memRepo) Insert(_ context.Context, in CreatePeriodInput, status Status) (Period, error) {
	m.seq++
	p := Period{
		ID:        m.seq,
		TenantID:  in.TenantID,
		Name:      in.Name,
		StartDate: DateOnly(in.StartDate),
		EndDate:   DateOnly(in.EndDate),
		Status:    status,
	}
	m.periods = append(m.periods, p)
	return p, nil
}

func (m *memRepo) UpdateStatus(_ context.Context, tenantID uuid.UUID, id int64, status Status) error {
	for i, p := range m.periods {
		if p.TenantID == tenantID && p.ID == id {
			m.periods[i].Status = status
			return nil
		}
	}
	return &shared.NotFoundError{Entity: "period"}
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func seedTenant(t *testing.T, repo *memRepo) uuid.UUID {
	t.Helper()
	tenant := uuid.New()
	repo.periods = append(repo.periods,
		Period{ID: 101, TenantID: tenant, Name: "Opening Balances", StartDate: day(2023, 1, 1), EndDate: day(2023, 12, 31), Status: StatusClosed},
		Period{ID: 102, TenantID: tenant, Name: "FY2024", StartDate: day(2024, 1, 1), EndDate: day(2024, 12, 31), Status: StatusClosed},
		Period{ID: 103, TenantID: tenant, Name: "2025-01", StartDate: day(2025, 1, 1), EndDate: day(2025, 1, 31), Status: StatusOpen},
		Period{ID: 104, TenantID: tenant, Name: "2025-02", StartDate: day(2025, 2, 1), EndDate: day(2025, 2, 28), Status: StatusOpen},
		// 2025-03 deliberately missing.
		Period{ID: 105, TenantID: tenant, Name: "2025-04", StartDate: day(2025, 4, 1), EndDate: day(2025, 4, 30), Status: StatusOpen},
	)
	return tenant
}

func TestAssertPostableOpenPeriod(t *testing.T) {
	repo := &memRepo{}
	tenant := seedTenant(t, repo)
	svc := NewService(repo)

	require.NoError(t, svc.AssertPostable(context.Background(), tenant, day(2025, 1, 15)))

	// Time-of-day and zone must not matter.
	late := time.Date(2025, 1, 31, 23, 30, 0, 0, time.FixedZone("X", 3*3600))
	require.NoError(t, svc.AssertPostable(context.Background(), tenant, late))
}

func TestAssertPostableClosedPeriod(t *testing.T) {
	repo := &memRepo{}
	tenant := seedTenant(t, repo)
	svc := NewService(repo)

	err := svc.AssertPostable(context.Background(), tenant, day(2024, 6, 15))
	require.True(t, shared.IsPeriodControl(err, shared.PeriodNotOpen))
}

func TestAssertPostableOpeningBalancesAlwaysLocked(t *testing.T) {
	repo := &memRepo{}
	tenant := seedTenant(t, repo)
	svc := NewService(repo)

	err := svc.AssertPostable(context.Background(), tenant, day(2023, 6, 1))
	require.True(t, shared.IsPeriodControl(err, shared.OpeningBalancesLocked))

	// Locked even if someone flips the period open.
	repo.periods[0].Status = StatusOpen
	err = svc.AssertPostable(context.Background(), tenant, day(2023, 6, 1))
	require.True(t, shared.IsPeriodControl(err, shared.OpeningBalancesLocked))
}

func TestAssertPostableBeforeCutover(t *testing.T) {
	repo := &memRepo{}
	tenant := seedTenant(t, repo)
	svc := NewService(repo)

	// No period covers 2022 and the date precedes the cutover.
	err := svc.AssertPostable(context.Background(), tenant, day(2022, 12, 1))
	require.True(t, shared.IsPeriodControl(err, shared.BeforeCutover))

	// After the cutover with no period it is a plain not-open failure.
	err = svc.AssertPostable(context.Background(), tenant, day(2025, 3, 10))
	require.True(t, shared.IsPeriodControl(err, shared.PeriodNotOpen))
}

func TestAssertPostableNoCutoverEstablished(t *testing.T) {
	repo := &memRepo{}
	tenant := uuid.New()
	repo.periods = append(repo.periods,
		Period{ID: 1, TenantID: tenant, Name: "2025-01", StartDate: day(2025, 1, 1), EndDate: day(2025, 1, 31), Status: StatusOpen})
	svc := NewService(repo)

	require.NoError(t, svc.AssertPostable(context.Background(), tenant, day(2025, 1, 10)))

	err := svc.AssertPostable(context.Background(), tenant, day(2020, 1, 10))
	require.True(t, shared.IsPeriodControl(err, shared.PeriodNotOpen))
}

func TestCutoverDate(t *testing.T) {
	repo := &memRepo{}
	tenant := seedTenant(t, repo)
	svc := NewService(repo)

	cutover, ok, err := svc.CutoverDate(context.Background(), tenant)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, day(2023, 1, 1), cutover)

	// An open Opening Balances period means migration is still in flight.
	repo.periods[0].Status = StatusOpen
	_, ok, err = svc.CutoverDate(context.Background(), tenant)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestAssertCoverage(t *testing.T) {
	repo := &memRepo{}
	tenant := seedTenant(t, repo)
	svc := NewService(repo)

	require.NoError(t, svc.AssertCoverage(context.Background(), tenant, day(2025, 1, 1), day(2025, 2, 28)))
	require.NoError(t, svc.AssertCoverage(context.Background(), tenant, day(2024, 6, 1), day(2025, 1, 15)))

	err := svc.AssertCoverage(context.Background(), tenant, day(2025, 2, 1), day(2025, 4, 30))
	require.True(t, shared.IsPeriodControl(err, shared.PeriodCoverageGap))

	err = svc.AssertCoverage(context.Background(), tenant, day(2026, 1, 1), day(2026, 12, 31))
	require.True(t, shared.IsPeriodControl(err, shared.PeriodCoverageGap))

	err = svc.AssertCoverage(context.Background(), tenant, day(2025, 2, 1), day(2025, 1, 1))
	require.Error(t, err)
}

func TestCreatePeriodOverlap(t *testing.T) {
	repo := &memRepo{}
	tenant := seedTenant(t, repo)
	svc := NewService(repo)

	_, err := svc.CreatePeriod(context.Background(), CreatePeriodInput{
		TenantID:  tenant,
		Name:      "2025-01-bis",
		StartDate: day(2025, 1, 20),
		EndDate:   day(2025, 2, 5),
	})
	var conflict *shared.ConflictError
	require.ErrorAs(t, err, &conflict)

	created, err := svc.CreatePeriod(context.Background(), CreatePeriodInput{
		TenantID:  tenant,
		Name:      "2025-03",
		StartDate: day(2025, 3, 1),
		EndDate:   day(2025, 3, 31),
	})
	require.NoError(t, err)
	require.Equal(t, StatusOpen, created.Status)
}

func TestCloseAndReopenPeriod(t *testing.T) {
	repo := &memRepo{}
	tenant := seedTenant(t, repo)
	svc := NewService(repo)

	closed, err := svc.ClosePeriod(context.Background(), tenant, 103)
	require.NoError(t, err)
	require.Equal(t, StatusClosed, closed.Status)

	_, err = svc.ClosePeriod(context.Background(), tenant, 103)
	var conflict *shared.ConflictError
	require.ErrorAs(t, err, &conflict)

	reopened, err := svc.ReopenPeriod(context.Background(), tenant, 103)
	require.NoError(t, err)
	require.Equal(t, StatusOpen, reopened.Status)

	_, err = svc.ReopenPeriod(context.Background(), tenant, 101)
	require.True(t, shared.IsPeriodControl(err, shared.OpeningBalancesLocked))
}
