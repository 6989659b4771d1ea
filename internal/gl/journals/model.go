package journals

import (
	"time"

	"github.com/google/uuid"
)

// JournalEntry is an immutable double-entry record. Entries are never updated
// or deleted once committed; corrections happen via reversal entries.
type JournalEntry struct {
	ID              uuid.UUID
	TenantID        string
	SourceEventID   uuid.UUID
	SourceModule    string
	Description     string
	Currency        string
	PostedAt        time.Time
	ReversesEntryID *uuid.UUID
	CreatedAt       time.Time
	Lines           []JournalLine
}

// IsReversal reports whether the entry reverses another entry.
func (e JournalEntry) IsReversal() bool {
	return e.ReversesEntryID != nil
}

// JournalLine stores a debit or credit amount in minor units for one account.
// Currency is inherited from the entry.
type JournalLine struct {
	ID          uuid.UUID
	EntryID     uuid.UUID
	LineNo      int
	AccountCode string
	DebitMinor  int64
	CreditMinor int64
	Memo        string
}
