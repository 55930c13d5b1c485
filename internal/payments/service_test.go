package payments

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
)

type nopTx struct{}

func (nopTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type memRepo struct {
	seq      int64
	nextID   int64
	payments map[int64]Payment
}

func newMemRepo() *memRepo {
	return &memRepo{payments: map[int64]Payment{}}
}

func (m *memRepo) NextNumber(context.Context, uuid.UUID, int) (int64, error) {
	m.seq++
	return m.seq, nil
}

func (m *memRepo) Insert(_ context.Context, p Payment) (Payment, error) {
	m.nextID++
	p.ID = m.nextID
	m.payments[p.ID] = p
	return p, nil
}

func (m *memRepo) Get(_ context.Context, _ uuid.UUID, id int64) (Payment, error) {
	p, ok := m.payments[id]
	if !ok {
		return Payment{}, &shared.NotFoundError{Entity: "payment"}
	}
	return p, nil
}

func (m *memRepo) MarkApproved(_ context.Context, _ uuid.UUID, id, approverID int64) error {
	return m.transition(id, StatusDraft, func(p *Payment) {
		p.Status = StatusApproved
		p.ApprovedByID = approverID
	})
}

func (m *memRepo) MarkPosted(_ context.Context, _ uuid.UUID, id, posterID int64, at time.Time, journalID int64) error {
	return m.transition(id, StatusApproved, func(p *Payment) {
		p.Status = StatusPosted
		p.PostedByID = posterID
		p.PostedAt = at
		p.JournalID = journalID
	})
}

func (m *memRepo) transition(id int64, from Status, mutate func(*Payment)) error {
	p, ok := m.payments[id]
	if !ok {
		return &shared.NotFoundError{Entity: "payment"}
	}
	if p.Status != from {
		return &shared.ConflictError{Entity: "payment", Message: "unexpected status"}
	}
	mutate(&p)
	m.payments[id] = p
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

type memInvoices struct {
	posted map[int64]bool
}

func (m *memInvoices) IsPosted(_ context.Context, _ uuid.UUID, _ string, sourceID int64) (bool, error) {
	return m.posted[sourceID], nil
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
		ledger.Account{ID: 1, Code: "1000", Name: "Business Bank Account", Type: ledger.AccountTypeAsset, IsActive: true},
		ledger.Account{ID: 20, Code: "2000", Name: "Accounts Payable", Type: ledger.AccountTypeLiability, IsActive: true},
		ledger.Account{ID: 40, Code: "1100", Name: "Accounts Receivable", Type: ledger.AccountTypeAsset, IsActive: true},
	)
	repo := newMemRepo()
	sink := &memSink{}
	svc := NewService(repo, books, &memInvoices{posted: map[int64]bool{7: true}}, guard, sink, nopTx{}, "", "")
	svc.WithNow(func() time.Time { return time.Date(2025, 1, 20, 12, 0, 0, 0, time.UTC) })
	return &fixture{repo: repo, books: books, sink: sink, service: svc, tenant: uuid.New()}
}

func validCreate(tenant uuid.UUID, typ Type) CreateInput {
	return CreateInput{
		TenantID:      tenant,
		Type:          typ,
		BankAccountID: 1,
		Amount:        money.MustParse("1150.00"),
		PaymentDate:   time.Date(2025, 1, 18, 0, 0, 0, 0, time.UTC),
		CreatedByID:   1,
		Allocations: []AllocationInput{
			{SourceID: 7, Amount: money.MustParse("1150.00")},
		},
	}
}

func approvedPayment(t *testing.T, f *fixture, typ Type) Payment {
	t.Helper()
	p, err := f.service.Create(context.Background(), validCreate(f.tenant, typ))
	require.NoError(t, err)
	approved, err := f.service.Approve(context.Background(), f.tenant, p.ID, 2)
	require.NoError(t, err)
	return approved
}

func TestCreateDraftPayment(t *testing.T) {
	f := newFixture(t, stubGuard{})

	p, err := f.service.Create(context.Background(), validCreate(f.tenant, TypeSupplierPayment))
	require.NoError(t, err)
	require.Equal(t, StatusDraft, p.Status)
	require.Equal(t, "PAY-2025-00001", p.Number)
	require.Len(t, p.Allocations, 1)
	require.Equal(t, SourceSupplierInvoice, p.Allocations[0].SourceType)
}

func TestCreateRejectsAllocationMismatch(t *testing.T) {
	f := newFixture(t, stubGuard{})
	in := validCreate(f.tenant, TypeSupplierPayment)
	in.Allocations[0].Amount = money.MustParse("1000.00")

	_, err := f.service.Create(context.Background(), in)
	var ve *shared.ValidationError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, "ALLOCATION_MISMATCH", ve.Code)
}

func TestCreateRejectsUnpostedInvoice(t *testing.T) {
	f := newFixture(t, stubGuard{})
	in := validCreate(f.tenant, TypeSupplierPayment)
	in.Allocations[0].SourceID = 8

	_, err := f.service.Create(context.Background(), in)
	var ve *shared.ValidationError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, "UNPOSTED_ALLOCATION_TARGET", ve.Code)
}

func TestApproveSegregationOfDuties(t *testing.T) {
	f := newFixture(t, stubGuard{})
	p, err := f.service.Create(context.Background(), validCreate(f.tenant, TypeSupplierPayment))
	require.NoError(t, err)

	_, err = f.service.Approve(context.Background(), f.tenant, p.ID, 1)
	var authz *shared.AuthorizationError
	require.ErrorAs(t, err, &authz)

	approved, err := f.service.Approve(context.Background(), f.tenant, p.ID, 2)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, approved.Status)
}

func TestPostSupplierPaymentJournal(t *testing.T) {
	f := newFixture(t, stubGuard{})
	p := approvedPayment(t, f, TypeSupplierPayment)

	posted, err := f.service.Post(context.Background(), PostInput{TenantID: f.tenant, PaymentID: p.ID, ActorID: 3})
	require.NoError(t, err)
	require.Equal(t, StatusPosted, posted.Status)

	require.Len(t, f.books.entries, 1)
	entry := f.books.entries[0]
	require.Len(t, entry.Lines, 2)
	require.Equal(t, int64(20), entry.Lines[0].AccountID)
	require.Equal(t, "1150.00", entry.Lines[0].Debit.String())
	require.Equal(t, int64(1), entry.Lines[1].AccountID)
	require.Equal(t, "1150.00", entry.Lines[1].Credit.String())
}

func TestPostCustomerReceiptJournal(t *testing.T) {
	f := newFixture(t, stubGuard{})
	p := approvedPayment(t, f, TypeCustomerReceipt)

	_, err := f.service.Post(context.Background(), PostInput{TenantID: f.tenant, PaymentID: p.ID, ActorID: 3})
	require.NoError(t, err)

	entry := f.books.entries[0]
	require.Equal(t, int64(1), entry.Lines[0].AccountID)
	require.Equal(t, "1150.00", entry.Lines[0].Debit.String())
	require.Equal(t, int64(40), entry.Lines[1].AccountID)
	require.Equal(t, "1150.00", entry.Lines[1].Credit.String())
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
			f := newFixture(t, stubGuard{})
			p := approvedPayment(t, f, TypeSupplierPayment)

			_, err := f.service.Post(context.Background(), PostInput{TenantID: f.tenant, PaymentID: p.ID, ActorID: tc.actor})
			var authz *shared.AuthorizationError
			require.ErrorAs(t, err, &authz)
			require.Empty(t, f.books.entries)

			var blocked int
			for _, rec := range f.sink.records {
				if rec.Outcome == audit.OutcomeBlocked {
					blocked++
				}
			}
			require.Equal(t, 1, blocked)
		})
	}
}

func TestPostTwiceConflicts(t *testing.T) {
	f := newFixture(t, stubGuard{})
	p := approvedPayment(t, f, TypeSupplierPayment)
	in := PostInput{TenantID: f.tenant, PaymentID: p.ID, ActorID: 3}

	_, err := f.service.Post(context.Background(), in)
	require.NoError(t, err)

	_, err = f.service.Post(context.Background(), in)
	var conflict *shared.ConflictError
	require.ErrorAs(t, err, &conflict)
	require.Len(t, f.books.entries, 1)
}

func TestPostBlockedBeforeCutover(t *testing.T) {
	guardErr := &shared.PeriodControlError{Kind: shared.BeforeCutover, Message: "posting date precedes the cutover date"}
	f := newFixture(t, stubGuard{err: guardErr})
	p := approvedPayment(t, f, TypeSupplierPayment)

	_, err := f.service.Post(context.Background(), PostInput{TenantID: f.tenant, PaymentID: p.ID, ActorID: 3})
	require.True(t, shared.IsPeriodControl(err, shared.BeforeCutover))
	require.Empty(t, f.books.entries)
}
