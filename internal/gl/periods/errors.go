package periods

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NoPeriodForDateError indicates no period covers the posting date. This is an
// administrative gap, not a transient fault, and is never retried.
type NoPeriodForDateError struct {
	TenantID string
	Date     time.Time
}

func (e *NoPeriodForDateError) Error() string {
	return fmt.Sprintf("gl: no accounting period for tenant=%s date=%s", e.TenantID, e.Date.Format("2006-01-02"))
}

// PeriodClosedError indicates the posting date falls inside a closed period.
type PeriodClosedError struct {
	TenantID string
	Date     time.Time
	PeriodID uuid.UUID
}

func (e *PeriodClosedError) Error() string {
	return fmt.Sprintf("gl: period closed for tenant=%s date=%s period=%s", e.TenantID, e.Date.Format("2006-01-02"), e.PeriodID)
}

// OriginalPeriodClosedError indicates a reversal was blocked because the
// original entry's period has since been closed. Operators must be able to
// distinguish this from the reversal's own target period being closed.
type OriginalPeriodClosedError struct {
	OriginalEntryID uuid.UUID
	PeriodID        uuid.UUID
}

func (e *OriginalPeriodClosedError) Error() string {
	return fmt.Sprintf("gl: cannot reverse entry %s, original period %s is closed", e.OriginalEntryID, e.PeriodID)
}

// PeriodNotClosedError indicates a verification request against a period that
// is still open and therefore has no sealed hash.
type PeriodNotClosedError struct {
	PeriodID uuid.UUID
}

func (e *PeriodNotClosedError) Error() string {
	return fmt.Sprintf("gl: period %s is not closed, no close hash to verify", e.PeriodID)
}

// HashMismatchError indicates the stored close hash no longer matches the
// recomputed state, i.e. closed-period data was altered after the fact.
type HashMismatchError struct {
	PeriodID uuid.UUID
	Computed string
	Expected string
}

func (e *HashMismatchError) Error() string {
	return fmt.Sprintf("gl: close hash mismatch for period %s: computed=%s expected=%s", e.PeriodID, e.Computed, e.Expected)
}
