package reports

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EntryFilter bounds the journal detail query to one tenant and date window.
type EntryFilter struct {
	TenantID    string
	Start       time.Time
	End         time.Time
	AccountCode string
	Currency    string
	Limit       int
	Offset      int
}

// LineFilter bounds the account activity query.
type LineFilter struct {
	TenantID    string
	AccountCode string
	Start       time.Time
	End         time.Time
	Currency    string
	Limit       int
	Offset      int
}

// Repository runs the read-only reporting queries. All queries are bounded by
// tenant and date window with deterministic ordering.
type Repository interface {
	EntriesByPostedRange(ctx context.Context, f EntryFilter) ([]DetailEntry, error)
	CountEntriesByPostedRange(ctx context.Context, f EntryFilter) (int64, error)
	AccountActivity(ctx context.Context, f LineFilter) ([]ActivityLine, error)
	CountAccountActivity(ctx context.Context, f LineFilter) (int64, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs the pgx-backed report repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func entryWhere(f EntryFilter) (string, []any) {
	where := `WHERE e.tenant_id=$1 AND e.posted_at::DATE BETWEEN $2 AND $3`
	args := []any{f.TenantID, f.Start, f.End}
	if f.Currency != "" {
		args = append(args, f.Currency)
		where += fmt.Sprintf(` AND e.currency=$%d`, len(args))
	}
	if f.AccountCode != "" {
		args = append(args, f.AccountCode)
		where += fmt.Sprintf(` AND EXISTS (SELECT 1 FROM journal_lines l WHERE l.entry_id=e.id AND l.account_code=$%d)`, len(args))
	}
	return where, args
}

func (r *repository) EntriesByPostedRange(ctx context.Context, f EntryFilter) ([]DetailEntry, error) {
	where, args := entryWhere(f)
	args = append(args, f.Limit, f.Offset)
	query := fmt.Sprintf(`SELECT e.id, e.posted_at, e.description, e.source_module, e.currency
FROM journal_entries e
%s
ORDER BY e.posted_at, e.id
LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []DetailEntry
	byID := make(map[uuid.UUID]int)
	var ids []uuid.UUID
	for rows.Next() {
		var e DetailEntry
		if err := rows.Scan(&e.ID, &e.PostedAt, &e.Description, &e.SourceModule, &e.Currency); err != nil {
			return nil, err
		}
		byID[e.ID] = len(entries)
		ids = append(ids, e.ID)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return entries, nil
	}

	lineRows, err := r.db.Query(ctx, `SELECT l.entry_id, l.line_no, l.account_code, a.name, l.debit_minor, l.credit_minor, l.memo
FROM journal_lines l
JOIN journal_entries e ON e.id = l.entry_id
JOIN accounts a ON a.tenant_id = e.tenant_id AND a.code = l.account_code
WHERE l.entry_id = ANY($1)
ORDER BY l.entry_id, l.line_no`, ids)
	if err != nil {
		return nil, err
	}
	defer lineRows.Close()
	for lineRows.Next() {
		var entryID uuid.UUID
		var line DetailLine
		if err := lineRows.Scan(&entryID, &line.LineNo, &line.AccountCode, &line.AccountName,
			&line.DebitMinor, &line.CreditMinor, &line.Memo); err != nil {
			return nil, err
		}
		if idx, ok := byID[entryID]; ok {
			entries[idx].Lines = append(entries[idx].Lines, line)
		}
	}
	return entries, lineRows.Err()
}

func (r *repository) CountEntriesByPostedRange(ctx context.Context, f EntryFilter) (int64, error) {
	where, args := entryWhere(f)
	var count int64
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM journal_entries e `+where, args...).Scan(&count)
	return count, err
}

func lineWhere(f LineFilter) (string, []any) {
	where := `WHERE e.tenant_id=$1 AND l.account_code=$2 AND e.posted_at::DATE BETWEEN $3 AND $4`
	args := []any{f.TenantID, f.AccountCode, f.Start, f.End}
	if f.Currency != "" {
		args = append(args, f.Currency)
		where += fmt.Sprintf(` AND e.currency=$%d`, len(args))
	}
	return where, args
}

func (r *repository) AccountActivity(ctx context.Context, f LineFilter) ([]ActivityLine, error) {
	where, args := lineWhere(f)
	args = append(args, f.Limit, f.Offset)
	query := fmt.Sprintf(`SELECT e.id, e.posted_at, e.description, e.currency, l.debit_minor, l.credit_minor, l.memo
FROM journal_lines l
JOIN journal_entries e ON e.id = l.entry_id
%s
ORDER BY e.posted_at, e.id, l.line_no
LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []ActivityLine
	for rows.Next() {
		var line ActivityLine
		if err := rows.Scan(&line.EntryID, &line.PostedAt, &line.Description, &line.Currency,
			&line.DebitMinor, &line.CreditMinor, &line.Memo); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func (r *repository) CountAccountActivity(ctx context.Context, f LineFilter) (int64, error) {
	where, args := lineWhere(f)
	var count int64
	err := r.db.QueryRow(ctx, `SELECT COUNT(*)
FROM journal_lines l
JOIN journal_entries e ON e.id = l.entry_id `+where, args...).Scan(&count)
	return count, err
}
