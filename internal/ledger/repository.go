package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openbooks-erp/openbooks/internal/platform/db"
	"github.com/openbooks-erp/openbooks/internal/shared"
)

// Repository is the persistence port for accounts and journal entries.
type Repository interface {
	AccountByID(ctx context.Context, tenantID uuid.UUID, id int64) (Account, error)
	AccountByCode(ctx context.Context, tenantID uuid.UUID, code string) (Account, error)
	AccountsByIDs(ctx context.Context, tenantID uuid.UUID, ids []int64) (map[int64]Account, error)
	ReferenceExists(ctx context.Context, tenantID uuid.UUID, reference string) (bool, error)
	InsertEntry(ctx context.Context, in PostingInput, status EntryStatus) (JournalEntry, error)
	InsertLines(ctx context.Context, entryID int64, lines []LineInput) ([]JournalLine, error)
	MarkPosted(ctx context.Context, tenantID uuid.UUID, entryID, postedBy int64, at time.Time) error

	ActivityBetween(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]AccountActivity, error)
	ActivityAsOf(ctx context.Context, tenantID uuid.UUID, asOf time.Time) ([]AccountActivity, error)
	EntriesTouchingAccounts(ctx context.Context, tenantID uuid.UUID, accountIDs []int64, from, to time.Time) ([]JournalEntry, error)
}

// PGRepository is the pgx-backed Repository. Writes run against the ambient
// transaction opened by the calling service.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewPGRepository constructs a PGRepository over the pool.
func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const accountColumns = `id, tenant_id, code, name, type, normal_balance, is_active`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.TenantID, &a.Code, &a.Name, &a.Type, &a.NormalBalance, &a.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, &shared.NotFoundError{Entity: "account"}
	}
	return a, err
}

// AccountByID loads one account.
func (r *PGRepository) AccountByID(ctx context.Context, tenantID uuid.UUID, id int64) (Account, error) {
	q := db.QuerierFrom(ctx, r.pool)
	return scanAccount(q.QueryRow(ctx, `SELECT `+accountColumns+`
		FROM accounts WHERE tenant_id = $1 AND id = $2`, tenantID, id))
}

// AccountByCode resolves an account by its tenant-unique code.
func (r *PGRepository) AccountByCode(ctx context.Context, tenantID uuid.UUID, code string) (Account, error) {
	q := db.QuerierFrom(ctx, r.pool)
	a, err := scanAccount(q.QueryRow(ctx, `SELECT `+accountColumns+`
		FROM accounts WHERE tenant_id = $1 AND code = $2`, tenantID, code))
	if err != nil {
		var nf *shared.NotFoundError
		if errors.As(err, &nf) {
			return Account{}, &shared.NotFoundError{Entity: "account", ID: code}
		}
		return Account{}, err
	}
	return a, nil
}

// AccountsByIDs loads a batch of accounts keyed by id.
func (r *PGRepository) AccountsByIDs(ctx context.Context, tenantID uuid.UUID, ids []int64) (map[int64]Account, error) {
	if len(ids) == 0 {
		return map[int64]Account{}, nil
	}
	q := db.QuerierFrom(ctx, r.pool)
	rows, err := q.Query(ctx, `SELECT `+accountColumns+`
		FROM accounts WHERE tenant_id = $1 AND id = ANY($2)`, tenantID, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64]Account, len(ids))
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.TenantID, &a.Code, &a.Name, &a.Type, &a.NormalBalance, &a.IsActive); err != nil {
			return nil, err
		}
		out[a.ID] = a
	}
	return out, rows.Err()
}

// ReferenceExists reports whether an entry with the reference already exists.
func (r *PGRepository) ReferenceExists(ctx context.Context, tenantID uuid.UUID, reference string) (bool, error) {
	q := db.QuerierFrom(ctx, r.pool)
	var exists bool
	err := q.QueryRow(ctx, `SELECT EXISTS (
		SELECT 1 FROM journal_entries WHERE tenant_id = $1 AND reference = $2)`,
		tenantID, reference).Scan(&exists)
	return exists, err
}

// InsertEntry writes the entry header.
func (r *PGRepository) InsertEntry(ctx context.Context, in PostingInput, status EntryStatus) (JournalEntry, error) {
	q := db.QuerierFrom(ctx, r.pool)
	entry := JournalEntry{
		TenantID:    in.TenantID,
		JournalDate: in.JournalDate,
		Reference:   in.Reference,
		Status:      status,
		CreatedByID: in.CreatedByID,
	}
	err := q.QueryRow(ctx, `INSERT INTO journal_entries
		(tenant_id, journal_date, reference, status, created_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		in.TenantID, in.JournalDate, in.Reference, status, in.CreatedByID).Scan(&entry.ID)
	return entry, err
}

// InsertLines writes the entry's lines in order.
func (r *PGRepository) InsertLines(ctx context.Context, entryID int64, lines []LineInput) ([]JournalLine, error) {
	q := db.QuerierFrom(ctx, r.pool)
	out := make([]JournalLine, 0, len(lines))
	for _, line := range lines {
		jl := JournalLine{EntryID: entryID, AccountID: line.AccountID, Debit: line.Debit, Credit: line.Credit}
		err := q.QueryRow(ctx, `INSERT INTO journal_lines
			(entry_id, account_id, debit, credit)
			VALUES ($1, $2, $3, $4)
			RETURNING id`,
			entryID, line.AccountID, line.Debit, line.Credit).Scan(&jl.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, jl)
	}
	return out, nil
}

// MarkPosted flips a DRAFT entry to POSTED and stamps the poster.
func (r *PGRepository) MarkPosted(ctx context.Context, tenantID uuid.UUID, entryID, postedBy int64, at time.Time) error {
	q := db.QuerierFrom(ctx, r.pool)
	tag, err := q.Exec(ctx, `UPDATE journal_entries
		SET status = $4, posted_by = $5, posted_at = $6
		WHERE tenant_id = $1 AND id = $2 AND status = $3`,
		tenantID, entryID, EntryStatusDraft, EntryStatusPosted, postedBy, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &shared.ConflictError{Entity: "journal_entry", Message: "entry is not in DRAFT state"}
	}
	return nil
}

const activitySelect = `SELECT a.id, a.tenant_id, a.code, a.name, a.type, a.normal_balance, a.is_active,
		COALESCE(SUM(l.debit), 0), COALESCE(SUM(l.credit), 0)
	FROM journal_lines l
	JOIN journal_entries e ON e.id = l.entry_id
	JOIN accounts a ON a.id = l.account_id
	WHERE e.tenant_id = $1 AND e.status = 'POSTED'`

func scanActivities(rows pgx.Rows) ([]AccountActivity, error) {
	defer rows.Close()
	var out []AccountActivity
	for rows.Next() {
		var act AccountActivity
		a := &act.Account
		if err := rows.Scan(&a.ID, &a.TenantID, &a.Code, &a.Name, &a.Type, &a.NormalBalance, &a.IsActive,
			&act.Debit, &act.Credit); err != nil {
			return nil, err
		}
		out = append(out, act)
	}
	return out, rows.Err()
}

// ActivityBetween aggregates per-account debit and credit sums over [from, to].
func (r *PGRepository) ActivityBetween(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]AccountActivity, error) {
	q := db.QuerierFrom(ctx, r.pool)
	rows, err := q.Query(ctx, activitySelect+`
		AND e.journal_date >= $2 AND e.journal_date <= $3
		GROUP BY a.id, a.tenant_id, a.code, a.name, a.type, a.normal_balance, a.is_active
		ORDER BY a.code`, tenantID, from, to)
	if err != nil {
		return nil, err
	}
	return scanActivities(rows)
}

// ActivityAsOf aggregates cumulative per-account sums since inception.
func (r *PGRepository) ActivityAsOf(ctx context.Context, tenantID uuid.UUID, asOf time.Time) ([]AccountActivity, error) {
	q := db.QuerierFrom(ctx, r.pool)
	rows, err := q.Query(ctx, activitySelect+`
		AND e.journal_date <= $2
		GROUP BY a.id, a.tenant_id, a.code, a.name, a.type, a.normal_balance, a.is_active
		ORDER BY a.code`, tenantID, asOf)
	if err != nil {
		return nil, err
	}
	return scanActivities(rows)
}

// EntriesTouchingAccounts returns posted entries in range that carry at least
// one line on one of the given accounts, with all lines attached. The cash
// flow engine uses it to inspect the counterpart side of cash movements.
func (r *PGRepository) EntriesTouchingAccounts(ctx context.Context, tenantID uuid.UUID, accountIDs []int64, from, to time.Time) ([]JournalEntry, error) {
	if len(accountIDs) == 0 {
		return nil, nil
	}
	q := db.QuerierFrom(ctx, r.pool)
	rows, err := q.Query(ctx, `SELECT e.id, e.tenant_id, e.journal_date, e.reference, e.status,
			e.created_by, COALESCE(e.posted_by, 0), COALESCE(e.posted_at, 'epoch'::timestamptz),
			l.id, l.account_id, l.debit, l.credit
		FROM journal_entries e
		JOIN journal_lines l ON l.entry_id = e.id
		WHERE e.tenant_id = $1 AND e.status = 'POSTED'
			AND e.journal_date >= $2 AND e.journal_date <= $3
			AND e.id IN (
				SELECT entry_id FROM journal_lines WHERE account_id = ANY($4))
		ORDER BY e.journal_date, e.id, l.id`, tenantID, from, to, accountIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []JournalEntry
	var current *JournalEntry
	for rows.Next() {
		var e JournalEntry
		var line JournalLine
		if err := rows.Scan(&e.ID, &e.TenantID, &e.JournalDate, &e.Reference, &e.Status,
			&e.CreatedByID, &e.PostedByID, &e.PostedAt,
			&line.ID, &line.AccountID, &line.Debit, &line.Credit); err != nil {
			return nil, err
		}
		line.EntryID = e.ID
		if current == nil || current.ID != e.ID {
			out = append(out, e)
			current = &out[len(out)-1]
		}
		current.Lines = append(current.Lines, line)
	}
	return out, rows.Err()
}
