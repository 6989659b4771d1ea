package periods

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ledgercore/ledgercore/internal/gl/outbox"
	"github.com/ledgercore/ledgercore/internal/gl/shared"
	"github.com/ledgercore/ledgercore/internal/platform/db"
)

// Repository encapsulates DB operations for accounting periods.
type Repository interface {
	FindByDate(ctx context.Context, tenantID string, date time.Time) (Period, error)
	FindByID(ctx context.Context, tenantID string, id uuid.UUID) (Period, error)
	ListClosed(ctx context.Context, limit int) ([]Period, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes period operations available within a transaction.
type TxRepository interface {
	LockPeriod(ctx context.Context, tenantID string, id uuid.UUID) (Period, error)
	CurrencyTotals(ctx context.Context, tenantID string, periodID uuid.UUID) ([]CurrencySnapshot, error)
	BalanceRowCount(ctx context.Context, tenantID string, periodID uuid.UUID) (int64, error)
	InsertSnapshot(ctx context.Context, tenantID string, periodID uuid.UUID, snap CurrencySnapshot) error
	MarkClosed(ctx context.Context, id uuid.UUID, closedBy, reason, hash string, at time.Time) error
	InsertOutboxEvent(ctx context.Context, ev outbox.Event) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs the pgx-backed period repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const periodColumns = `id, tenant_id, start_date, end_date, closed_at, closed_by, close_reason, close_hash, created_at`

func scanPeriod(row pgx.Row) (Period, error) {
	var p Period
	err := row.Scan(&p.ID, &p.TenantID, &p.StartDate, &p.EndDate, &p.ClosedAt, &p.ClosedBy, &p.CloseReason, &p.CloseHash, &p.CreatedAt)
	return p, err
}

// FindByDate returns the period covering the supplied date, open or closed.
// The open/closed decision belongs to the caller and is re-evaluated per call.
func (r *repository) FindByDate(ctx context.Context, tenantID string, date time.Time) (Period, error) {
	row := r.db.QueryRow(ctx, `SELECT `+periodColumns+`
FROM accounting_periods WHERE tenant_id=$1 AND $2::DATE BETWEEN start_date AND end_date LIMIT 1`, tenantID, date)
	p, err := scanPeriod(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Period{}, &NoPeriodForDateError{TenantID: tenantID, Date: date}
		}
		return Period{}, err
	}
	return p, nil
}

func (r *repository) FindByID(ctx context.Context, tenantID string, id uuid.UUID) (Period, error) {
	row := r.db.QueryRow(ctx, `SELECT `+periodColumns+`
FROM accounting_periods WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	p, err := scanPeriod(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Period{}, shared.ErrPeriodNotFound
		}
		return Period{}, err
	}
	return p, nil
}

// ListClosed returns closed periods across all tenants, most recent first.
// Used by the integrity sweep.
func (r *repository) ListClosed(ctx context.Context, limit int) ([]Period, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Query(ctx, `SELECT `+periodColumns+`
FROM accounting_periods WHERE closed_at IS NOT NULL ORDER BY closed_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Period
	for rows.Next() {
		var p Period
		if err := rows.Scan(&p.ID, &p.TenantID, &p.StartDate, &p.EndDate, &p.ClosedAt, &p.ClosedBy, &p.CloseReason, &p.CloseHash, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx pgx.Tx
}

// LockPeriod fetches the period row FOR UPDATE so concurrent close calls
// serialize on it and converge to a single closure record.
func (r *txRepository) LockPeriod(ctx context.Context, tenantID string, id uuid.UUID) (Period, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+periodColumns+`
FROM accounting_periods WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, id)
	p, err := scanPeriod(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Period{}, shared.ErrPeriodNotFound
		}
		return Period{}, err
	}
	return p, nil
}

// CurrencyTotals scans journal lines grouped by currency. This is the one
// place the engine scans lines for a whole period, and only at close time.
func (r *txRepository) CurrencyTotals(ctx context.Context, tenantID string, periodID uuid.UUID) ([]CurrencySnapshot, error) {
	rows, err := r.tx.Query(ctx, `SELECT je.currency,
       COUNT(DISTINCT je.id)::BIGINT AS journal_count,
       COUNT(jl.id)::BIGINT AS line_count,
       COALESCE(SUM(jl.debit_minor), 0)::BIGINT AS total_debits_minor,
       COALESCE(SUM(jl.credit_minor), 0)::BIGINT AS total_credits_minor
FROM accounting_periods ap
JOIN journal_entries je ON je.tenant_id = ap.tenant_id
  AND je.posted_at::DATE >= ap.start_date
  AND je.posted_at::DATE <= ap.end_date
LEFT JOIN journal_lines jl ON jl.entry_id = je.id
WHERE ap.id = $1 AND ap.tenant_id = $2
GROUP BY je.currency
ORDER BY je.currency`, periodID, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var snaps []CurrencySnapshot
	for rows.Next() {
		var s CurrencySnapshot
		if err := rows.Scan(&s.Currency, &s.JournalCount, &s.LineCount, &s.TotalDebitsMinor, &s.TotalCreditsMinor); err != nil {
			return nil, err
		}
		snaps = append(snaps, s)
	}
	return snaps, rows.Err()
}

func (r *txRepository) BalanceRowCount(ctx context.Context, tenantID string, periodID uuid.UUID) (int64, error) {
	var count int64
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM account_balances WHERE tenant_id=$1 AND period_id=$2`, tenantID, periodID).Scan(&count)
	return count, err
}

func (r *txRepository) InsertSnapshot(ctx context.Context, tenantID string, periodID uuid.UUID, snap CurrencySnapshot) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO period_summary_snapshots
(tenant_id, period_id, currency, journal_count, line_count, total_debits_minor, total_credits_minor, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,NOW())
ON CONFLICT (tenant_id, period_id, currency) DO UPDATE SET
  journal_count = EXCLUDED.journal_count,
  line_count = EXCLUDED.line_count,
  total_debits_minor = EXCLUDED.total_debits_minor,
  total_credits_minor = EXCLUDED.total_credits_minor,
  created_at = EXCLUDED.created_at`,
		tenantID, periodID, snap.Currency, snap.JournalCount, snap.LineCount, snap.TotalDebitsMinor, snap.TotalCreditsMinor)
	return err
}

func (r *txRepository) MarkClosed(ctx context.Context, id uuid.UUID, closedBy, reason, hash string, at time.Time) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE accounting_periods
SET closed_at=$2, closed_by=$3, close_reason=$4, close_hash=$5
WHERE id=$1 AND closed_at IS NULL`, id, at, closedBy, reason, hash)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrPeriodNotFound
	}
	return nil
}

func (r *txRepository) InsertOutboxEvent(ctx context.Context, ev outbox.Event) error {
	return outbox.InsertTx(ctx, r.tx, ev)
}
