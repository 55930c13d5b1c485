package ap

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
	invoices map[int64]SupplierInvoice
	open     []OpenInvoice
}

func newMemRepo() *memRepo {
	return &memRepo{invoices: map[int64]SupplierInvoice{}}
}

func (m *memRepo) NextNumber(context.Context, uuid.UUID, int) (int64, error) {
	m.seq++
	return m.seq, nil
}

func (m *memRepo) Insert(_ context.Context, inv SupplierInvoice) (SupplierInvoice, error) {
	m.nextID++
	inv.ID = m.nextID
	for i := range inv.Lines {
		inv.Lines[i].InvoiceID = inv.ID
	}
	for i := range inv.TaxLines {
		inv.TaxLines[i].InvoiceID = inv.ID
	}
	m.invoices[inv.ID] = inv
	return inv, nil
}

func (m *memRepo) Get(_ context.Context, _ uuid.UUID, id int64) (SupplierInvoice, error) {
	inv, ok := m.invoices[id]
	if !ok {
		return SupplierInvoice{}, &shared.NotFoundError{Entity: "supplier invoice"}
	}
	return inv, nil
}

func (m *memRepo) MarkSubmitted(_ context.Context, _ uuid.UUID, id int64) error {
	return m.transition(id, StatusDraft, func(inv *SupplierInvoice) { inv.Status = StatusSubmitted })
}

func (m *memRepo) MarkApproved(_ context.Context, _ uuid.UUID, id, approverID int64) error {
	return m.transition(id, StatusSubmitted, func(inv *SupplierInvoice) {
		inv.Status = StatusApproved
		inv.ApprovedByID = approverID
	})
}

func (m *memRepo) MarkPosted(_ context.Context, _ uuid.UUID, id, posterID int64, at time.Time, journalID int64) error {
	return m.transition(id, StatusApproved, func(inv *SupplierInvoice) {
		inv.Status = StatusPosted
		inv.PostedByID = posterID
		inv.PostedAt = at
		inv.JournalID = journalID
	})
}

func (m *memRepo) OpenAsOf(context.Context, uuid.UUID, time.Time) ([]OpenInvoice, error) {
	return m.open, nil
}

func (m *memRepo) transition(id int64, from Status, mutate func(*SupplierInvoice)) error {
	inv, ok := m.invoices[id]
	if !ok {
		return &shared.NotFoundError{Entity: "supplier invoice"}
	}
	if inv.Status != from {
		return &shared.ConflictError{Entity: "supplier invoice", Message: "unexpected status"}
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

type allowAllGuard struct {
	err error
}

func (g allowAllGuard) Resolve(context.Context, uuid.UUID, time.Time) (periods.Period, error) {
	return periods.Period{}, nil
}

func (g allowAllGuard) AssertPostable(context.Context, uuid.UUID, time.Time) error {
	return g.err
}

func (g allowAllGuard) AssertCoverage(context.Context, uuid.UUID, time.Time, time.Time) error {
	return nil
}

func (g allowAllGuard) CutoverDate(context.Context, uuid.UUID) (time.Time, bool, error) {
	return time.Time{}, false, nil
}

type memSink struct {
	records []audit.Record
}

func (m *memSink) Try(_ context.Context, rec audit.Record) {
	m.records = append(m.records, rec)
}

func (m *memSink) blocked() []audit.Record {
	var out []audit.Record
	for _, rec := range m.records {
		if rec.Outcome == audit.OutcomeBlocked {
			out = append(out, rec)
		}
	}
	return out
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
		ledger.Account{ID: 10, Code: "6100", Name: "Office Supplies", Type: ledger.AccountTypeExpense, IsActive: true},
		ledger.Account{ID: 11, Code: "1500", Name: "Equipment", Type: ledger.AccountTypeAsset, IsActive: true},
		ledger.Account{ID: 12, Code: "4000", Name: "Sales Revenue", Type: ledger.AccountTypeIncome, IsActive: true},
		ledger.Account{ID: 20, Code: "2000", Name: "Accounts Payable", Type: ledger.AccountTypeLiability, IsActive: true},
		ledger.Account{ID: 21, Code: "2100", Name: "Other Payables", Type: ledger.AccountTypeLiability, IsActive: true},
		ledger.Account{ID: 41, Code: "1400", Name: "VAT Receivable", Type: ledger.AccountTypeAsset, IsActive: true},
	)
	taxRepo := &memTaxRepo{rates: map[int64]taxes.TaxRate{
		1: {ID: 1, Name: "VAT 15% Input", Type: taxes.RateTypeInput, Rate: money.RateFromFloat(0.15), GLAccountID: 41, IsActive: true},
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
		SupplierName: "Acme Supplies Ltd",
		InvoiceDate:  time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC),
		DueDate:      time.Date(2025, 2, 14, 0, 0, 0, 0, time.UTC),
		TotalAmount:  money.MustParse("1150.00"),
		CreatedByID:  1,
		Lines: []LineInput{
			{AccountID: 10, Description: "Stationery", Amount: money.MustParse("1000.00")},
		},
		TaxLines: []taxes.LineInput{
			{TaxRateID: 1, TaxableAmount: money.MustParse("1000.00"), TaxAmount: money.MustParse("150.00")},
		},
	}
}

func TestCreateDraft(t *testing.T) {
	f := newFixture(t, allowAllGuard{})

	inv, err := f.service.Create(context.Background(), validCreate(f.tenant))
	require.NoError(t, err)
	require.Equal(t, StatusDraft, inv.Status)
	require.Equal(t, "PINV-2025-00001", inv.Number)
	require.Len(t, inv.TaxLines, 1)
	require.Equal(t, "1000.00", inv.NetAmount().String())
}

func TestCreateRejectsTotalMismatch(t *testing.T) {
	f := newFixture(t, allowAllGuard{})
	in := validCreate(f.tenant)
	in.TotalAmount = money.MustParse("1150.01")

	_, err := f.service.Create(context.Background(), in)
	var ve *shared.ValidationError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, "TOTAL_MISMATCH", ve.Code)
	require.Equal(t, "1150.00", ve.Expected)
	require.Equal(t, "1150.01", ve.Actual)
}

func TestCreateRejectsIncomeAccountLine(t *testing.T) {
	f := newFixture(t, allowAllGuard{})
	in := validCreate(f.tenant)
	in.Lines[0].AccountID = 12

	_, err := f.service.Create(context.Background(), in)
	var ve *shared.ValidationError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, "DISALLOWED_ACCOUNT_TYPE", ve.Code)
}

func TestSubmitOnlyByCreator(t *testing.T) {
	f := newFixture(t, allowAllGuard{})
	inv, err := f.service.Create(context.Background(), validCreate(f.tenant))
	require.NoError(t, err)

	_, err = f.service.Submit(context.Background(), f.tenant, inv.ID, 2)
	var authz *shared.AuthorizationError
	require.ErrorAs(t, err, &authz)

	submitted, err := f.service.Submit(context.Background(), f.tenant, inv.ID, 1)
	require.NoError(t, err)
	require.Equal(t, StatusSubmitted, submitted.Status)
}

func TestSubmitRevalidatesStoredTaxLines(t *testing.T) {
	f := newFixture(t, allowAllGuard{})
	inv, err := f.service.Create(context.Background(), validCreate(f.tenant))
	require.NoError(t, err)

	stored := f.repo.invoices[inv.ID]
	stored.TaxLines[0].TaxAmount = money.MustParse("149.00")
	f.repo.invoices[inv.ID] = stored

	_, err = f.service.Submit(context.Background(), f.tenant, inv.ID, 1)
	var ve *shared.ValidationError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, StatusDraft, f.repo.invoices[inv.ID].Status)
}

func TestApproveSegregationOfDuties(t *testing.T) {
	f := newFixture(t, allowAllGuard{})
	inv, err := f.service.Create(context.Background(), validCreate(f.tenant))
	require.NoError(t, err)
	_, err = f.service.Submit(context.Background(), f.tenant, inv.ID, 1)
	require.NoError(t, err)

	_, err = f.service.Approve(context.Background(), f.tenant, inv.ID, 1)
	var authz *shared.AuthorizationError
	require.ErrorAs(t, err, &authz)
	require.Len(t, f.sink.blocked(), 1)

	approved, err := f.service.Approve(context.Background(), f.tenant, inv.ID, 2)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, approved.Status)
	require.Equal(t, int64(2), approved.ApprovedByID)
}

func approvedInvoice(t *testing.T, f *fixture) SupplierInvoice {
	t.Helper()
	inv, err := f.service.Create(context.Background(), validCreate(f.tenant))
	require.NoError(t, err)
	_, err = f.service.Submit(context.Background(), f.tenant, inv.ID, 1)
	require.NoError(t, err)
	approved, err := f.service.Approve(context.Background(), f.tenant, inv.ID, 2)
	require.NoError(t, err)
	return approved
}

func TestPostBuildsBalancedJournal(t *testing.T) {
	f := newFixture(t, allowAllGuard{})
	inv := approvedInvoice(t, f)

	posted, err := f.service.Post(context.Background(), PostInput{TenantID: f.tenant, InvoiceID: inv.ID, ActorID: 3})
	require.NoError(t, err)
	require.Equal(t, StatusPosted, posted.Status)
	require.Equal(t, int64(3), posted.PostedByID)

	require.Len(t, f.books.entries, 1)
	entry := f.books.entries[0]
	require.Equal(t, inv.Number, entry.Reference)
	require.Len(t, entry.Lines, 3)
	require.Equal(t, "1000.00", entry.Lines[0].Debit.String())
	require.Equal(t, int64(41), entry.Lines[1].AccountID)
	require.Equal(t, "150.00", entry.Lines[1].Debit.String())
	require.Equal(t, int64(20), entry.Lines[2].AccountID)
	require.Equal(t, "1150.00", entry.Lines[2].Credit.String())
}

func TestPostControlAccountOverride(t *testing.T) {
	f := newFixture(t, allowAllGuard{})
	inv := approvedInvoice(t, f)

	_, err := f.service.Post(context.Background(), PostInput{
		TenantID: f.tenant, InvoiceID: inv.ID, ActorID: 3, ControlAccountCode: "2100",
	})
	require.NoError(t, err)
	entry := f.books.entries[0]
	require.Equal(t, int64(21), entry.Lines[len(entry.Lines)-1].AccountID)
}

func TestPostRejectsNonLiabilityControl(t *testing.T) {
	f := newFixture(t, allowAllGuard{})
	inv := approvedInvoice(t, f)

	_, err := f.service.Post(context.Background(), PostInput{
		TenantID: f.tenant, InvoiceID: inv.ID, ActorID: 3, ControlAccountCode: "1500",
	})
	var ve *shared.ValidationError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, "INVALID_CONTROL_ACCOUNT", ve.Code)
	require.Empty(t, f.books.entries)
}

func TestPostSegregationOfDuties(t *testing.T) {
	for _, tc := range []struct {
		name  string
		actor int64
	}{
		{"creator cannot post", 1},
		{"approver cannot post", 2},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, allowAllGuard{})
			inv := approvedInvoice(t, f)

			_, err := f.service.Post(context.Background(), PostInput{TenantID: f.tenant, InvoiceID: inv.ID, ActorID: tc.actor})
			var authz *shared.AuthorizationError
			require.ErrorAs(t, err, &authz)
			require.Empty(t, f.books.entries)
			require.Len(t, f.sink.blocked(), 1)
		})
	}
}

func TestPostTwiceConflicts(t *testing.T) {
	f := newFixture(t, allowAllGuard{})
	inv := approvedInvoice(t, f)
	in := PostInput{TenantID: f.tenant, InvoiceID: inv.ID, ActorID: 3}

	_, err := f.service.Post(context.Background(), in)
	require.NoError(t, err)

	_, err = f.service.Post(context.Background(), in)
	var conflict *shared.ConflictError
	require.ErrorAs(t, err, &conflict)
	require.Len(t, f.books.entries, 1)
}

func TestAgingBucketsByDaysPastDue(t *testing.T) {
	f := newFixture(t, allowAllGuard{})
	due := func(days int) time.Time {
		return time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -days)
	}
	f.repo.open = []OpenInvoice{
		{ID: 1, DueDate: due(-10), OpenAmount: money.MustParse("100.00")},
		{ID: 2, DueDate: due(0), OpenAmount: money.MustParse("50.00")},
		{ID: 3, DueDate: due(15), OpenAmount: money.MustParse("200.00")},
		{ID: 4, DueDate: due(30), OpenAmount: money.MustParse("25.00")},
		{ID: 5, DueDate: due(45), OpenAmount: money.MustParse("300.00")},
		{ID: 6, DueDate: due(90), OpenAmount: money.MustParse("400.00")},
		{ID: 7, DueDate: due(91), OpenAmount: money.MustParse("500.00")},
	}

	summary, err := f.service.Aging(context.Background(), f.tenant, time.Time{})
	require.NoError(t, err)
	require.Equal(t, "2025-01-20", summary.AsOf.Format(time.DateOnly))
	require.Len(t, summary.Buckets, 5)

	require.Equal(t, 2, summary.Buckets[0].Count)
	require.Equal(t, "150.00", summary.Buckets[0].Total.String())
	require.Equal(t, "225.00", summary.Buckets[1].Total.String())
	require.Equal(t, "300.00", summary.Buckets[2].Total.String())
	require.Equal(t, "400.00", summary.Buckets[3].Total.String())
	require.Equal(t, "500.00", summary.Buckets[4].Total.String())
	require.Equal(t, "1575.00", summary.TotalOpen.String())
}

func TestPostBlockedByPeriodGuard(t *testing.T) {
	guardErr := &shared.PeriodControlError{Kind: shared.PeriodNotOpen, Message: "no accounting period covers 2025-01-15"}
	f := newFixture(t, allowAllGuard{err: guardErr})
	inv := approvedInvoice(t, f)

	_, err := f.service.Post(context.Background(), PostInput{TenantID: f.tenant, InvoiceID: inv.ID, ActorID: 3})
	require.True(t, shared.IsPeriodControl(err, shared.PeriodNotOpen))
	require.Empty(t, f.books.entries)
	require.Len(t, f.sink.blocked(), 1)
}
