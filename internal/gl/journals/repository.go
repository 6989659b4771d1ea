package journals

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ledgercore/ledgercore/internal/gl/balances"
	"github.com/ledgercore/ledgercore/internal/gl/outbox"
	"github.com/ledgercore/ledgercore/internal/gl/periods"
	"github.com/ledgercore/ledgercore/internal/gl/shared"
	"github.com/ledgercore/ledgercore/internal/platform/db"
)

// Repository encapsulates DB operations for the journal store. The posting
// pipeline is the only writer; entries are append-only.
type Repository interface {
	GetEntryWithLines(ctx context.Context, tenantID string, id uuid.UUID) (JournalEntry, error)
	FindEntryBySourceEvent(ctx context.Context, tenantID string, sourceEventID uuid.UUID) (JournalEntry, error)
	ProcessedEventExists(ctx context.Context, tenantID string, sourceEventID uuid.UUID) (bool, error)
	ReversalExists(ctx context.Context, tenantID string, originalEntryID uuid.UUID) (bool, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes operations available within the posting transaction.
// Journal insert, balance upsert, and the idempotency marker all ride the same
// transaction so partial application is never observable.
type TxRepository interface {
	InsertEntry(ctx context.Context, entry JournalEntry) error
	InsertLines(ctx context.Context, entryID uuid.UUID, lines []JournalLine) error
	InsertProcessedEvent(ctx context.Context, tenantID string, sourceEventID uuid.UUID, subject string) error
	UpsertBalance(ctx context.Context, tenantID string, periodID uuid.UUID, delta balances.Delta, entryID uuid.UUID) (balances.Snapshot, error)
	FindPeriodByDate(ctx context.Context, tenantID string, date time.Time) (periods.Period, error)
	GetEntryWithLines(ctx context.Context, tenantID string, id uuid.UUID) (JournalEntry, error)
	InsertOutboxEvent(ctx context.Context, ev outbox.Event) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs the pgx-backed journal repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const entryColumns = `id, tenant_id, source_event_id, source_module, description, currency, posted_at, reverses_entry_id, created_at`

func (r *repository) GetEntryWithLines(ctx context.Context, tenantID string, id uuid.UUID) (JournalEntry, error) {
	return getEntryWithLines(ctx, r.db, tenantID, id)
}

func (r *repository) FindEntryBySourceEvent(ctx context.Context, tenantID string, sourceEventID uuid.UUID) (JournalEntry, error) {
	var id uuid.UUID
	err := r.db.QueryRow(ctx, `SELECT id FROM journal_entries WHERE tenant_id=$1 AND source_event_id=$2`,
		tenantID, sourceEventID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, shared.ErrEntryNotFound
		}
		return JournalEntry{}, err
	}
	return r.GetEntryWithLines(ctx, tenantID, id)
}

func (r *repository) ProcessedEventExists(ctx context.Context, tenantID string, sourceEventID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM processed_events WHERE tenant_id=$1 AND source_event_id=$2)`,
		tenantID, sourceEventID).Scan(&exists)
	return exists, err
}

func (r *repository) ReversalExists(ctx context.Context, tenantID string, originalEntryID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM journal_entries WHERE tenant_id=$1 AND reverses_entry_id=$2)`,
		tenantID, originalEntryID).Scan(&exists)
	return exists, err
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) InsertEntry(ctx context.Context, entry JournalEntry) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO journal_entries
(id, tenant_id, source_event_id, source_module, description, currency, posted_at, reverses_entry_id)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		entry.ID, entry.TenantID, entry.SourceEventID, entry.SourceModule, entry.Description,
		entry.Currency, entry.PostedAt, entry.ReversesEntryID)
	if err != nil {
		if isUniqueViolation(err) {
			return shared.ErrDuplicateEvent
		}
		return err
	}
	return nil
}

func (r *txRepository) InsertLines(ctx context.Context, entryID uuid.UUID, lines []JournalLine) error {
	for _, line := range lines {
		if _, err := r.tx.Exec(ctx, `INSERT INTO journal_lines
(id, entry_id, line_no, account_code, debit_minor, credit_minor, memo)
VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			line.ID, entryID, line.LineNo, line.AccountCode, line.DebitMinor, line.CreditMinor, line.Memo); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) InsertProcessedEvent(ctx context.Context, tenantID string, sourceEventID uuid.UUID, subject string) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO processed_events (tenant_id, source_event_id, subject)
VALUES ($1,$2,$3)`, tenantID, sourceEventID, subject)
	if err != nil {
		if isUniqueViolation(err) {
			return shared.ErrDuplicateEvent
		}
		return err
	}
	return nil
}

func (r *txRepository) UpsertBalance(ctx context.Context, tenantID string, periodID uuid.UUID, delta balances.Delta, entryID uuid.UUID) (balances.Snapshot, error) {
	return balances.UpsertRollupTx(ctx, r.tx, tenantID, periodID, delta, entryID)
}

// FindPeriodByDate locks the period row for the life of the posting
// transaction. A concurrent close takes FOR UPDATE on the same row, so it
// either waits for in-flight postings to commit before sealing the hash or
// forces them to retry on 40001. FOR SHARE keeps concurrent postings into the
// same period from serializing on each other.
func (r *txRepository) FindPeriodByDate(ctx context.Context, tenantID string, date time.Time) (periods.Period, error) {
	var p periods.Period
	err := r.tx.QueryRow(ctx, `SELECT id, tenant_id, start_date, end_date, closed_at, closed_by, close_reason, close_hash, created_at
FROM accounting_periods WHERE tenant_id=$1 AND $2::DATE BETWEEN start_date AND end_date LIMIT 1 FOR SHARE`, tenantID, date).
		Scan(&p.ID, &p.TenantID, &p.StartDate, &p.EndDate, &p.ClosedAt, &p.ClosedBy, &p.CloseReason, &p.CloseHash, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return periods.Period{}, &periods.NoPeriodForDateError{TenantID: tenantID, Date: date}
		}
		return periods.Period{}, err
	}
	return p, nil
}

func (r *txRepository) GetEntryWithLines(ctx context.Context, tenantID string, id uuid.UUID) (JournalEntry, error) {
	return getEntryWithLines(ctx, r.tx, tenantID, id)
}

func (r *txRepository) InsertOutboxEvent(ctx context.Context, ev outbox.Event) error {
	return outbox.InsertTx(ctx, r.tx, ev)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getEntryWithLines(ctx context.Context, q querier, tenantID string, id uuid.UUID) (JournalEntry, error) {
	var e JournalEntry
	err := q.QueryRow(ctx, `SELECT `+entryColumns+`
FROM journal_entries WHERE tenant_id=$1 AND id=$2`, tenantID, id).
		Scan(&e.ID, &e.TenantID, &e.SourceEventID, &e.SourceModule, &e.Description,
			&e.Currency, &e.PostedAt, &e.ReversesEntryID, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, shared.ErrEntryNotFound
		}
		return JournalEntry{}, err
	}
	rows, err := q.Query(ctx, `SELECT id, entry_id, line_no, account_code, debit_minor, credit_minor, memo
FROM journal_lines WHERE entry_id=$1 ORDER BY line_no ASC`, id)
	if err != nil {
		return JournalEntry{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line JournalLine
		if err := rows.Scan(&line.ID, &line.EntryID, &line.LineNo, &line.AccountCode, &line.DebitMinor, &line.CreditMinor, &line.Memo); err != nil {
			return JournalEntry{}, err
		}
		e.Lines = append(e.Lines, line)
	}
	return e, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
