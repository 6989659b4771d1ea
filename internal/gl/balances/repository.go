package balances

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ledgercore/ledgercore/internal/gl/shared"
)

// Repository encapsulates read access to the balance projection.
type Repository interface {
	FindByGrain(ctx context.Context, grain Grain) (Snapshot, error)
	TrialBalance(ctx context.Context, tenantID string, periodID uuid.UUID, currency string) ([]TrialBalanceRow, error)
	ReplayGrain(ctx context.Context, grain Grain, periodStart, periodEnd string) (debitMinor, creditMinor int64, err error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs the pgx-backed balance repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const snapshotColumns = `id, tenant_id, period_id, account_code, currency,
debit_total_minor, credit_total_minor, net_balance_minor, last_journal_entry_id, updated_at, created_at`

func (r *repository) FindByGrain(ctx context.Context, grain Grain) (Snapshot, error) {
	var s Snapshot
	err := r.db.QueryRow(ctx, `SELECT `+snapshotColumns+`
FROM account_balances WHERE tenant_id=$1 AND period_id=$2 AND account_code=$3 AND currency=$4`,
		grain.TenantID, grain.PeriodID, grain.AccountCode, grain.Currency).
		Scan(&s.ID, &s.TenantID, &s.PeriodID, &s.AccountCode, &s.Currency,
			&s.DebitTotalMinor, &s.CreditTotalMinor, &s.NetBalanceMinor, &s.LastJournalEntryID, &s.UpdatedAt, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Snapshot{}, shared.ErrBalanceNotFound
		}
		return Snapshot{}, err
	}
	return s, nil
}

// TrialBalance lists balances joined with account metadata, ordered by account
// code then currency. Currency filters when non-empty.
func (r *repository) TrialBalance(ctx context.Context, tenantID string, periodID uuid.UUID, currency string) ([]TrialBalanceRow, error) {
	query := `SELECT b.account_code, a.name, a.type, a.normal_balance, b.currency,
       b.debit_total_minor, b.credit_total_minor, b.net_balance_minor
FROM account_balances b
JOIN accounts a ON a.tenant_id = b.tenant_id AND a.code = b.account_code
WHERE b.tenant_id=$1 AND b.period_id=$2`
	args := []any{tenantID, periodID}
	if currency != "" {
		query += ` AND b.currency=$3`
		args = append(args, currency)
	}
	query += ` ORDER BY b.account_code, b.currency`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TrialBalanceRow
	for rows.Next() {
		var row TrialBalanceRow
		if err := rows.Scan(&row.AccountCode, &row.AccountName, &row.AccountType, &row.NormalBalance,
			&row.Currency, &row.DebitTotalMinor, &row.CreditTotalMinor, &row.NetBalanceMinor); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// ReplayGrain recomputes a grain's totals from journal lines alone. Used by
// reconciliation to prove the projection is reproducible from the journal.
func (r *repository) ReplayGrain(ctx context.Context, grain Grain, periodStart, periodEnd string) (int64, int64, error) {
	var debit, credit int64
	err := r.db.QueryRow(ctx, `SELECT COALESCE(SUM(jl.debit_minor),0)::BIGINT, COALESCE(SUM(jl.credit_minor),0)::BIGINT
FROM journal_lines jl
JOIN journal_entries je ON je.id = jl.entry_id
WHERE je.tenant_id=$1 AND jl.account_code=$2 AND je.currency=$3
  AND je.posted_at::DATE >= $4::DATE AND je.posted_at::DATE <= $5::DATE`,
		grain.TenantID, grain.AccountCode, grain.Currency, periodStart, periodEnd).Scan(&debit, &credit)
	return debit, credit, err
}

// UpsertRollupTx additively merges a delta into the grain's balance row inside
// the caller's transaction. The single INSERT ... ON CONFLICT statement is the
// engine's only required point of mutual exclusion: Postgres row-locks the
// grain, so concurrent postings to the same grain serialize here while
// disjoint grains proceed in parallel. Net is always recomputed from the
// stored totals, never accepted from the caller.
func UpsertRollupTx(ctx context.Context, tx pgx.Tx, tenantID string, periodID uuid.UUID, delta Delta, entryID uuid.UUID) (Snapshot, error) {
	var s Snapshot
	err := tx.QueryRow(ctx, `INSERT INTO account_balances
(tenant_id, period_id, account_code, currency, debit_total_minor, credit_total_minor, net_balance_minor, last_journal_entry_id, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$5-$6,$7,NOW())
ON CONFLICT (tenant_id, period_id, account_code, currency) DO UPDATE SET
  debit_total_minor = account_balances.debit_total_minor + EXCLUDED.debit_total_minor,
  credit_total_minor = account_balances.credit_total_minor + EXCLUDED.credit_total_minor,
  net_balance_minor = (account_balances.debit_total_minor + EXCLUDED.debit_total_minor)
                    - (account_balances.credit_total_minor + EXCLUDED.credit_total_minor),
  last_journal_entry_id = EXCLUDED.last_journal_entry_id,
  updated_at = NOW()
RETURNING `+snapshotColumns,
		tenantID, periodID, delta.AccountCode, delta.Currency, delta.DebitMinor, delta.CreditMinor, entryID).
		Scan(&s.ID, &s.TenantID, &s.PeriodID, &s.AccountCode, &s.Currency,
			&s.DebitTotalMinor, &s.CreditTotalMinor, &s.NetBalanceMinor, &s.LastJournalEntryID, &s.UpdatedAt, &s.CreatedAt)
	if err != nil {
		return Snapshot{}, err
	}
	return s, nil
}
