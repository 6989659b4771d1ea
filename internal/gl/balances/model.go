package balances

import (
	"time"

	"github.com/google/uuid"

	"github.com/ledgercore/ledgercore/internal/gl/accounts"
)

// Snapshot is one materialized balance row. The grain (tenant, period,
// account, currency) is unique; totals only ever grow by additive upsert and
// the row is never deleted. Net is always derived from the stored totals.
type Snapshot struct {
	ID                 uuid.UUID
	TenantID           string
	PeriodID           uuid.UUID
	AccountCode        string
	Currency           string
	DebitTotalMinor    int64
	CreditTotalMinor   int64
	NetBalanceMinor    int64
	LastJournalEntryID *uuid.UUID
	UpdatedAt          time.Time
	CreatedAt          time.Time
}

// TrialBalanceRow is a balance joined with account metadata for reporting.
type TrialBalanceRow struct {
	AccountCode      string
	AccountName      string
	AccountType      accounts.AccountType
	NormalBalance    accounts.NormalBalance
	Currency         string
	DebitTotalMinor  int64
	CreditTotalMinor int64
	NetBalanceMinor  int64
}

// Grain identifies a single balance row.
type Grain struct {
	TenantID    string
	PeriodID    uuid.UUID
	AccountCode string
	Currency    string
}
