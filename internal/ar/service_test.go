package ar

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/openbooks-erp/openbooks/internal/audit"
	"github.com/openbooks-erp/openbooks/internal/ledger"
	"github.com/openbooks-erp/openbooks/internal/money"
	"github.com/openbooks-erp/openbooks/internal/periods"
	"github.com/openbooks-erp/openbooks/internal/shared"
	"github.com/openbooks-erp/openbooks/internal/taxes"
)

type nopTx struct{}

func (nopTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type memRepo struct {
	seq      int64
	nextID   int64
	invoices map[int64]CustomerInvoice
	open     []OpenInvoice
}

func newMemRepo() *memRepo {
	return &memRepo{invoices: map[int64]CustomerInvoice{}}
}

func (m *memRepo) NextNumber(context.Context, uuid.UUID, int) (int64, error) {
	m.seq++
	return m.seq, nil
}

func (m *memRepo) Insert(_ context.Context, inv CustomerInvoice) (CustomerInvoice, error) {
	m.nextID++
	inv.ID = m.nextID
	m.invoices[inv.ID] = inv
	return inv, nil
}

func (m *memRepo) Get(_ context.Context, _ uuid.UUID, id int64) (CustomerInvoice, error) {
	inv, ok := m.invoices[id]
	if !ok {
		return CustomerInvoice{}, &shared.NotFoundError{Entity: "customer invoice"}
	}
	return inv, nil
}

func (m *memRepo) MarkSubmitted(_ context.Context, _ uuid.UUID, id int64) error {
	return m.transition(id, StatusDraft, func(inv *CustomerInvoice) { inv.Status = StatusSubmitted })
}

func (m *memRepo) MarkApproved(_ context.Context, _ uuid.UUID, id, approverID int64) error {
	return m.transition(id, StatusSubmitted, func(inv *CustomerInvoice) {
		inv.Status = StatusApproved
		inv.ApprovedByID = approverID
	})
}

func (m *memRepo) MarkPosted(_ context.Context, _ uuid.UUID, id, posterID int64, at time.Time, journalID int64) error {
	return m.transition(id, StatusApproved, func(inv *CustomerInvoice) {
		inv.Status = StatusPosted
		inv.PostedByID = posterID
		inv.PostedAt = at
		inv.JournalID = journalID
	})
}

func (m *memRepo) OpenAsOf(context.Context, uuid.UUID, time.Time) ([]OpenInvoice, error) {
	return m.open, nil
}

func (m *memRepo) transition(id int64, from Status, mutate func(*CustomerInvoice)) error {
	inv, ok := m.invoices[id]
	if !ok {
		return &shared.NotFoundError{Entity: "customer invoice"}
	}
	if inv.Status != from {
		return &shared.ConflictError{Entity: "customer invoice", Message: "unexpected status"}
	}
	mutate(&inv)
	m.invoices[id] = inv
	return nil
}

type memLedger struct {
	accounts map[int64]ledger.Account
	byCode   map[string]ledger.Account
	entries  []ledger.PostingInput
	nextID   int64
}

func newMemLedger(accounts ...ledger.Account) *memLedger {
	m := &memLedger{accounts: map[int64]ledger.Account{}, byCode: map[string]ledger.Account{}}
	for _, a := range accounts {
		m.accounts[a.ID] = a
		m.byCode[a.Code] = a
	}
	return m
}

func (m *memLedger) AccountByCode(_ context.Context, _ uuid.UUID, code string) (ledger.Account, error) {
	a, ok := m.byCode[code]
	if !ok {
		return ledger.Account{}, &shared.NotFoundError{Entity: "account", ID: code}
	}
	return a, nil
}

func (m *memLedger) AccountsByIDs(_ context.Context, _ uuid.UUID, ids []int64) (map[int64]ledger.Account, error) {
	out := map[int64]ledger.Account{}
	for _, id := range ids {
		if a, ok := m.accounts[id]; ok {
			out[id] = a
		}
	}
	return out, nil
}

func (m *memLedger) PostEntry(_ context.Context, in ledger.PostingInput) (ledger.JournalEntry, error) {
	if err := in.Validate(); err != nil {
		return ledger.JournalEntry{}, err
	}
	m.nextID++
	m.entries = append(m.entries, in)
	return ledger.JournalEntry{ID: m.nextID, Status: ledger.EntryStatusPosted}, nil
}

type memTaxRepo struct {
	rates map[int64]taxes.TaxRate
}

func (m *memTaxRepo) RatesByIDs(_ context.Context, _ uuid.UUID, ids []int64) (map[int64]taxes.TaxRate, error) {
	out := map[int64]taxes.TaxRate{}
	for _, id := range ids {
		if r, ok := m.rates[id]; ok {
			out[id] = r
		}
	}
	return out, nil
}

type stubGuard struct {
	err error
}

func (g stubGuard) Resolve(context.Context, uuid.UUID, time.Time) (periods.Period, error) {
	return periods.Period{}, nil
}

func (g stubGuard) AssertPostable(context.Context, uuid.UUID, time.Time) error {
	return g.err
}

func (g stubGuard) AssertCoverage(context.Context, uuid.UUID, time.Time, time.Time) error {
	return nil
}

func (g stubGuard) CutoverDate(context.Context, uuid.UUID) (time.Time, bool, error) {
	return time.Time{}, false, nil
}

type memSink struct {
	records []audit.Record
}

func (m *memSink) Try(_ context.Context, rec audit.Record) {
	m.records = append(m.records, rec)
}

type fixture struct {
	repo    *memRepo
	books   *memLedger
	sink    *memSink
	service *Service
	tenant  uuid.UUID
}

func newFixture(t *testing.T, guard periods.Guard) *fixture {
	t.Helper()
	books := newMemLedger(
		ledger.Account{ID: 30, Code: "4000", Name: "Sales Revenue", Type: ledger.AccountTypeIncome, IsActive: true},
		ledger.Account{ID: 31, Code: "4100", Name: "Service Revenue", Type: ledger.AccountTypeIncome, IsActive: true},
		ledger.Account{ID: 40, Code: "1100", Name: "Accounts Receivable", Type: ledger.AccountTypeAsset, IsActive: true},
		ledger.Account{ID: 42, Code: "2200", Name: "VAT Payable", Type: ledger.AccountTypeLiability, IsActive: true},
		ledger.Account{ID: 43, Code: "6100", Name: "Office Supplies", Type: ledger.AccountTypeExpense, IsActive: true},
	)
	taxRepo := &memTaxRepo{rates: map[int64]taxes.TaxRate{
		2: {ID: 2, Name: "VAT 15% Output", Type: taxes.RateTypeOutput, Rate: money.RateFromFloat(0.15), GLAccountID: 42, IsActive: true},
	}}
	repo := newMemRepo()
	sink := &memSink{}
	svc := NewService(repo, books, taxes.NewValidator(taxRepo), guard, sink, nopTx{})
	svc.WithNow(func() time.Time { return time.Date(2025, 1, 20, 12, 0, 0, 0, time.UTC) })
	return &fixture{repo: repo, books: books, sink: sink, service: svc, tenant: uuid.New()}
}

func validCreate(tenant uuid.UUID) CreateInput {
	return CreateInput{
		TenantID:     tenant,
		CustomerName: "Globex Corporation",
		InvoiceDate:  time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC),
		DueDate:      time.Date(2025, 2, 14, 0, 0, 0, 0, time.UTC),
		TotalAmount:  money.MustParse("1150.00"),
		CreatedByID:  1,
		Lines: []LineInput{
			{AccountID: 30, Description: "Consulting services", Amount: money.MustParse("1000.00")},
		},
		TaxLines: []taxes.LineInput{
			{TaxRateID: 2, TaxableAmount: money.MustParse("1000.00"), TaxAmount: money.MustParse("150.00")},
		},
	}
}

// Full lifecycle: create by 1, submit by 1, approve by 2, post by 3.
func TestLifecycleHappyPath(t *testing.T) {
	f := newFixture(t, stubGuard{})

	inv, err := f.service.Create(context.Background(), validCreate(f.tenant))
	require.NoError(t, err)
	require.Equal(t, StatusDraft, inv.Status)
	require.Equal(t, "SINV-2025-00001", inv.Number)

	_, err = f.service.Submit(context.Background(), f.tenant, inv.ID, 1)
	require.NoError(t, err)

	_, err = f.service.Approve(context.Background(), f.tenant, inv.ID, 2)
	require.NoError(t, err)

	posted, err := f.service.Post(context.Background(), PostInput{TenantID: f.tenant, InvoiceID: inv.ID, ActorID: 3})
	require.NoError(t, err)
	require.Equal(t, StatusPosted, posted.Status)

	require.Len(t, f.books.entries, 1)
	entry := f.books.entries[0]
	require.Len(t, entry.Lines, 3)
	require.Equal(t, int64(40), entry.Lines[0].AccountID)
	require.Equal(t, "1150.00", entry.Lines[0].Debit.String())
	require.Equal(t, int64(30), entry.Lines[1].AccountID)
	require.Equal(t, "1000.00", entry.Lines[1].Credit.String())
	require.Equal(t, int64(42), entry.Lines[2].AccountID)
	require.Equal(t, "150.00", entry.Lines[2].Credit.String())
}

func TestApproverCannotPost(t *testing.T) {
	f := newFixture(t, stubGuard{})
	inv, err := f.service.Create(context.Background(), validCreate(f.tenant))
	require.NoError(t, err)
	_, err = f.service.Submit(context.Background(), f.tenant, inv.ID, 1)
	require.NoError(t, err)
	_, err = f.service.Approve(context.Background(), f.tenant, inv.ID, 2)
	require.NoError(t, err)

	_, err = f.service.Post(context.Background(), PostInput{TenantID: f.tenant, InvoiceID: inv.ID, ActorID: 2})
	var authz *shared.AuthorizationError
	require.ErrorAs(t, err, &authz)
	require.Contains(t, authz.Message, "Approver cannot post the same customer invoice")
	require.Empty(t, f.books.entries)

	var blocked int
	for _, rec := range f.sink.records {
		if rec.Outcome == audit.OutcomeBlocked {
			blocked++
		}
	}
	require.Equal(t, 1, blocked)
}

// Unlike purchases, the creator may post a customer invoice someone else
// approved.
func TestCreatorMayPost(t *testing.T) {
	f := newFixture(t, stubGuard{})
	inv, err := f.service.Create(context.Background(), validCreate(f.tenant))
	require.NoError(t, err)
	_, err = f.service.Submit(context.Background(), f.tenant, inv.ID, 1)
	require.NoError(t, err)
	_, err = f.service.Approve(context.Background(), f.tenant, inv.ID, 2)
	require.NoError(t, err)

	posted, err := f.service.Post(context.Background(), PostInput{TenantID: f.tenant, InvoiceID: inv.ID, ActorID: 1})
	require.NoError(t, err)
	require.Equal(t, StatusPosted, posted.Status)
}

func TestPostBlockedInOpeningBalancesPeriod(t *testing.T) {
	guardErr := &shared.PeriodControlError{
		Kind:    shared.OpeningBalancesLocked,
		Message: "posting date 2025-01-15 falls in the Opening Balances period",
	}
	f := newFixture(t, stubGuard{err: guardErr})
	inv, err := f.service.Create(context.Background(), validCreate(f.tenant))
	require.NoError(t, err)
	_, err = f.service.Submit(context.Background(), f.tenant, inv.ID, 1)
	require.NoError(t, err)
	_, err = f.service.Approve(context.Background(), f.tenant, inv.ID, 2)
	require.NoError(t, err)

	_, err = f.service.Post(context.Background(), PostInput{TenantID: f.tenant, InvoiceID: inv.ID, ActorID: 3})
	require.True(t, shared.IsPeriodControl(err, shared.OpeningBalancesLocked))
	require.Empty(t, f.books.entries)
}

func TestCreateRejectsNonIncomeLine(t *testing.T) {
	f := newFixture(t, stubGuard{})
	in := validCreate(f.tenant)
	in.Lines[0].AccountID = 43

	_, err := f.service.Create(context.Background(), in)
	var ve *shared.ValidationError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, "DISALLOWED_ACCOUNT_TYPE", ve.Code)
}

func TestCreateRejectsInputRate(t *testing.T) {
	f := newFixture(t, stubGuard{})
	in := validCreate(f.tenant)
	in.TaxLines[0].TaxRateID = 99

	_, err := f.service.Create(context.Background(), in)
	var ve *shared.ValidationError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, taxes.CodeInvalidTaxRate, ve.Code)
}

func TestSubmitNonDraftConflicts(t *testing.T) {
	f := newFixture(t, stubGuard{})
	inv, err := f.service.Create(context.Background(), validCreate(f.tenant))
	require.NoError(t, err)
	_, err = f.service.Submit(context.Background(), f.tenant, inv.ID, 1)
	require.NoError(t, err)

	_, err = f.service.Submit(context.Background(), f.tenant, inv.ID, 1)
	var conflict *shared.ConflictError
	require.ErrorAs(t, err, &conflict)
}

func TestAgingBucketsOpenReceivables(t *testing.T) {
	f := newFixture(t, stubGuard{})
	f.repo.open = []OpenInvoice{
		{ID: 1, DueDate: time.Date(2025, 1, 25, 0, 0, 0, 0, time.UTC), OpenAmount: money.MustParse("1150.00")},
		{ID: 2, DueDate: time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC), OpenAmount: money.MustParse("600.00")},
		{ID: 3, DueDate: time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC), OpenAmount: money.MustParse("75.50")},
	}

	summary, err := f.service.Aging(context.Background(), f.tenant, time.Time{})
	require.NoError(t, err)
	require.Equal(t, "1150.00", summary.Buckets[0].Total.String())
	require.Equal(t, "600.00", summary.Buckets[1].Total.String())
	require.Equal(t, "75.50", summary.Buckets[4].Total.String())
	require.Equal(t, "1825.50", summary.TotalOpen.String())
}
