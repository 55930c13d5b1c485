package reports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/openbooks-erp/openbooks/internal/ledger"
	"github.com/openbooks-erp/openbooks/internal/periods"
	"github.com/openbooks-erp/openbooks/internal/shared"
)

// LedgerPort is the slice of the ledger service the statement builders read
// from. Only POSTED lines ever reach these aggregates.
type LedgerPort interface {
	ActivityBetween(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]ledger.AccountActivity, error)
	ActivityAsOf(ctx context.Context, tenantID uuid.UUID, asOf time.Time) ([]ledger.AccountActivity, error)
	EntriesTouchingAccounts(ctx context.Context, tenantID uuid.UUID, accountIDs []int64, from, to time.Time) ([]ledger.JournalEntry, error)
}

// Service builds financial statements. Ranges are clamped at the tenant's
// cutover date, coverage gaps are rejected, and the two expensive statements
// are cached and deduplicated per key.
type Service struct {
	books      LedgerPort
	guard      periods.Guard
	classifier *Classifier
	cache      *Cache
	group      singleflight.Group
}

// NewService constructs the report service. cache may be nil.
func NewService(books LedgerPort, guard periods.Guard, classifier *Classifier, cache *Cache) *Service {
	if classifier == nil {
		classifier = NewClassifier(DefaultKeywordTable())
	}
	return &Service{books: books, guard: guard, classifier: classifier, cache: cache}
}

// normalizeRange validates a report range, clamps it forward to the cutover
// date, and asserts the clamped range is covered by accounting periods. The
// returned empty flag means the whole range precedes the cutover and the
// statement is trivially zero.
func (s *Service) normalizeRange(ctx context.Context, tenantID uuid.UUID, from, to time.Time) (time.Time, time.Time, bool, error) {
	from, to = periods.DateOnly(from), periods.DateOnly(to)
	if to.Before(from) {
		return from, to, false, shared.NewValidation("INVALID_RANGE", "the report range end precedes its start")
	}
	cutover, ok, err := s.guard.CutoverDate(ctx, tenantID)
	if err != nil {
		return from, to, false, err
	}
	if ok {
		if to.Before(cutover) {
			return from, to, true, nil
		}
		if from.Before(cutover) {
			from = cutover
		}
	}
	if err := s.guard.AssertCoverage(ctx, tenantID, from, to); err != nil {
		return from, to, false, err
	}
	return from, to, false, nil
}

// normalizeAsOf validates a point-in-time date. A date before the cutover is
// rejected outright: balances before the cutover never existed in this
// ledger.
func (s *Service) normalizeAsOf(ctx context.Context, tenantID uuid.UUID, asOf time.Time) (time.Time, error) {
	asOf = periods.DateOnly(asOf)
	cutover, ok, err := s.guard.CutoverDate(ctx, tenantID)
	if err != nil {
		return asOf, err
	}
	coverFrom := asOf
	if ok {
		if asOf.Before(cutover) {
			return asOf, &shared.PeriodControlError{
				Kind:    shared.BeforeCutover,
				Message: "the requested date precedes the opening-balances cutover",
			}
		}
		coverFrom = cutover
	}
	if err := s.guard.AssertCoverage(ctx, tenantID, coverFrom, asOf); err != nil {
		return asOf, err
	}
	return asOf, nil
}

// sharedBuild runs fn once per key across concurrent callers.
func sharedBuild[T any](s *Service, ctx context.Context, key string, fn func(ctx context.Context) (T, error)) (T, error) {
	v, err, _ := s.group.Do(key, func() (any, error) {
		return fn(ctx)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// TrialBalance aggregates per-account movement over the range.
func (s *Service) TrialBalance(ctx context.Context, tenantID uuid.UUID, from, to time.Time) (TrialBalance, error) {
	from, to, empty, err := s.normalizeRange(ctx, tenantID, from, to)
	if err != nil {
		return TrialBalance{}, err
	}
	if empty {
		return TrialBalance{From: from, To: to}, nil
	}
	activities, err := s.books.ActivityBetween(ctx, tenantID, from, to)
	if err != nil {
		return TrialBalance{}, err
	}
	return buildTrialBalance(from, to, activities), nil
}

// ProfitAndLoss builds the income statement for the range. Results are cached
// and concurrent identical requests share one build.
func (s *Service) ProfitAndLoss(ctx context.Context, tenantID uuid.UUID, from, to time.Time) (ProfitAndLoss, error) {
	from, to, empty, err := s.normalizeRange(ctx, tenantID, from, to)
	if err != nil {
		return ProfitAndLoss{}, err
	}
	if empty {
		return ProfitAndLoss{From: from, To: to}, nil
	}
	key := cacheKey("pl", tenantID, from.Format(time.DateOnly), to.Format(time.DateOnly))
	return sharedBuild(s, ctx, key, func(ctx context.Context) (ProfitAndLoss, error) {
		return fetchJSON(ctx, s.cache, key, func(ctx context.Context) (ProfitAndLoss, error) {
			return s.buildPL(ctx, tenantID, from, to)
		})
	})
}

func (s *Service) buildPL(ctx context.Context, tenantID uuid.UUID, from, to time.Time) (ProfitAndLoss, error) {
	activities, err := s.books.ActivityBetween(ctx, tenantID, from, to)
	if err != nil {
		return ProfitAndLoss{}, err
	}
	return buildProfitAndLoss(from, to, activities, s.classifier), nil
}

// BalanceSheet builds the cumulative statement of financial position as of a
// date. Results are cached and concurrent identical requests share one build.
func (s *Service) BalanceSheet(ctx context.Context, tenantID uuid.UUID, asOf time.Time) (BalanceSheet, error) {
	asOf, err := s.normalizeAsOf(ctx, tenantID, asOf)
	if err != nil {
		return BalanceSheet{}, err
	}
	key := cacheKey("bs", tenantID, asOf.Format(time.DateOnly))
	return sharedBuild(s, ctx, key, func(ctx context.Context) (BalanceSheet, error) {
		return fetchJSON(ctx, s.cache, key, func(ctx context.Context) (BalanceSheet, error) {
			return s.buildBS(ctx, tenantID, asOf)
		})
	})
}

func (s *Service) buildBS(ctx context.Context, tenantID uuid.UUID, asOf time.Time) (BalanceSheet, error) {
	activities, err := s.books.ActivityAsOf(ctx, tenantID, asOf)
	if err != nil {
		return BalanceSheet{}, err
	}
	return buildBalanceSheet(asOf, activities, s.classifier), nil
}

// ChangesInEquity reconciles the equity movement over the range against the
// opening and closing balance sheets.
func (s *Service) ChangesInEquity(ctx context.Context, tenantID uuid.UUID, from, to time.Time) (ChangesInEquity, error) {
	from, to, empty, err := s.normalizeRange(ctx, tenantID, from, to)
	if err != nil {
		return ChangesInEquity{}, err
	}
	if empty {
		return ChangesInEquity{From: from, To: to}, nil
	}

	var (
		opening   BalanceSheet
		closing   BalanceSheet
		pl        ProfitAndLoss
		rangeActs []ledger.AccountActivity
	)
	openingAsOf := from.AddDate(0, 0, -1)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sheet, err := s.openingSheet(gctx, tenantID, openingAsOf)
		opening = sheet
		return err
	})
	g.Go(func() error {
		var err error
		closing, err = s.buildBS(gctx, tenantID, to)
		return err
	})
	g.Go(func() error {
		var err error
		pl, err = s.buildPL(gctx, tenantID, from, to)
		return err
	})
	g.Go(func() error {
		var err error
		rangeActs, err = s.books.ActivityBetween(gctx, tenantID, from, to)
		return err
	})
	if err := g.Wait(); err != nil {
		return ChangesInEquity{}, err
	}
	return buildChangesInEquity(from, to, opening, closing, pl, rangeActs, s.classifier), nil
}

// CashFlow builds the indirect-method cash flow statement for the range.
func (s *Service) CashFlow(ctx context.Context, tenantID uuid.UUID, from, to time.Time) (CashFlow, error) {
	from, to, empty, err := s.normalizeRange(ctx, tenantID, from, to)
	if err != nil {
		return CashFlow{}, err
	}
	if empty {
		return CashFlow{From: from, To: to}, nil
	}

	var (
		openingActs []ledger.AccountActivity
		closingActs []ledger.AccountActivity
		rangeActs   []ledger.AccountActivity
		pl          ProfitAndLoss
	)
	openingAsOf := from.AddDate(0, 0, -1)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		openingActs, err = s.books.ActivityAsOf(gctx, tenantID, openingAsOf)
		return err
	})
	g.Go(func() error {
		var err error
		closingActs, err = s.books.ActivityAsOf(gctx, tenantID, to)
		return err
	})
	g.Go(func() error {
		var err error
		rangeActs, err = s.books.ActivityBetween(gctx, tenantID, from, to)
		return err
	})
	g.Go(func() error {
		var err error
		pl, err = s.buildPL(gctx, tenantID, from, to)
		return err
	})
	if err := g.Wait(); err != nil {
		return CashFlow{}, err
	}

	accounts := make(map[int64]ledger.Account, len(closingActs))
	var cashIDs []int64
	for _, act := range closingActs {
		accounts[act.Account.ID] = act.Account
		if act.Account.Type == ledger.AccountTypeAsset &&
			s.classifier.BalanceSheetBucket(act.Account) == BucketCashAndBank {
			cashIDs = append(cashIDs, act.Account.ID)
		}
	}
	var cashEntries []ledger.JournalEntry
	if len(cashIDs) > 0 {
		cashEntries, err = s.books.EntriesTouchingAccounts(ctx, tenantID, cashIDs, from, to)
		if err != nil {
			return CashFlow{}, err
		}
	}
	return buildCashFlow(from, to, pl, openingActs, closingActs, rangeActs, cashEntries, accounts, s.classifier), nil
}

// openingSheet builds the sheet the day before a range starts. Before the
// cutover there is no ledger history, so the opening position is zero.
func (s *Service) openingSheet(ctx context.Context, tenantID uuid.UUID, asOf time.Time) (BalanceSheet, error) {
	cutover, ok, err := s.guard.CutoverDate(ctx, tenantID)
	if err != nil {
		return BalanceSheet{}, err
	}
	if ok && asOf.Before(cutover) {
		return BalanceSheet{AsOf: asOf, Balanced: true}, nil
	}
	return s.buildBS(ctx, tenantID, asOf)
}
