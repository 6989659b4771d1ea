package reports

import (
	"time"

	"github.com/google/uuid"
)

// Page carries pagination metadata for bounded report queries.
type Page struct {
	Limit      int
	Offset     int
	TotalCount int64
	HasMore    bool
}

// DetailLine is one journal line enriched with account metadata.
type DetailLine struct {
	LineNo      int
	AccountCode string
	AccountName string
	DebitMinor  int64
	CreditMinor int64
	Memo        string
}

// DetailEntry is a journal entry header with its lines.
type DetailEntry struct {
	ID           uuid.UUID
	PostedAt     time.Time
	Description  string
	SourceModule string
	Currency     string
	Lines        []DetailLine
}

// Detail is the journal detail report for one tenant and period.
type Detail struct {
	TenantID    string
	PeriodStart time.Time
	PeriodEnd   time.Time
	Entries     []DetailEntry
	Page        Page
}

// ActivityLine is one journal line touching the requested account.
type ActivityLine struct {
	EntryID     uuid.UUID
	PostedAt    time.Time
	Description string
	Currency    string
	DebitMinor  int64
	CreditMinor int64
	Memo        string
}

// Activity is the account activity report over a date range.
type Activity struct {
	TenantID    string
	AccountCode string
	RangeStart  time.Time
	RangeEnd    time.Time
	Lines       []ActivityLine
	Page        Page
}
