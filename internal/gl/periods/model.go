package periods

import (
	"time"

	"github.com/google/uuid"
)

// Period represents a fiscal period window for a tenant. Periods for a tenant
// never overlap, and closure is irreversible once ClosedAt is set.
type Period struct {
	ID          uuid.UUID
	TenantID    string
	StartDate   time.Time
	EndDate     time.Time
	ClosedAt    *time.Time
	ClosedBy    *string
	CloseReason *string
	CloseHash   *string
	CreatedAt   time.Time
}

// Closed reports whether the period has been closed.
func (p Period) Closed() bool {
	return p.ClosedAt != nil
}

// Contains reports whether the given date falls inside the period window.
func (p Period) Contains(date time.Time) bool {
	d := date.Truncate(24 * time.Hour)
	return !d.Before(p.StartDate) && !d.After(p.EndDate)
}

// CurrencySnapshot carries per-currency totals captured at close time.
type CurrencySnapshot struct {
	Currency          string
	JournalCount      int64
	LineCount         int64
	TotalDebitsMinor  int64
	TotalCreditsMinor int64
}

// ClosureResult describes the outcome of a close operation. AlreadyClosed is
// true when the call converged on an existing closure record.
type ClosureResult struct {
	PeriodID      uuid.UUID
	TenantID      string
	ClosedAt      time.Time
	ClosedBy      string
	CloseReason   string
	CloseHash     string
	AlreadyClosed bool
}

// CloseInput bundles parameters for closing a period.
type CloseInput struct {
	TenantID string
	PeriodID uuid.UUID
	ClosedBy string
	Reason   string
}
