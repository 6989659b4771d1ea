package journals

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ledgercore/ledgercore/internal/gl/shared"
)

const maxTextLen = 500

// PostingLineInput describes one line of a posting request. Amounts are in
// minor currency units.
type PostingLineInput struct {
	AccountCode string
	DebitMinor  int64
	CreditMinor int64
	Memo        string
}

// PostingInput groups fields required to create a journal entry.
type PostingInput struct {
	SourceEventID uuid.UUID
	TenantID      string
	SourceModule  string
	Description   string
	Currency      string
	PostedAt      time.Time
	Lines         []PostingLineInput
}

// Validate enforces the structural posting rules. All violations are
// permanent rejections; nothing is persisted for an invalid request.
func (in PostingInput) Validate() error {
	if in.SourceEventID == uuid.Nil {
		return errors.New("gl: source event id required")
	}
	if in.TenantID == "" {
		return errors.New("gl: tenant id required")
	}
	if in.PostedAt.IsZero() {
		return errors.New("gl: posting date required")
	}
	if !validCurrency(in.Currency) {
		return fmt.Errorf("%w, got %q", shared.ErrInvalidCurrency, in.Currency)
	}
	if len(in.Description) == 0 || len(in.Description) > maxTextLen {
		return fmt.Errorf("gl: description must be 1-%d characters, got %d", maxTextLen, len(in.Description))
	}
	if len(in.Lines) < 2 {
		return shared.ErrTooFewLines
	}
	var debit, credit int64
	for idx, line := range in.Lines {
		if line.AccountCode == "" {
			return fmt.Errorf("gl: line %d missing account code", idx)
		}
		if line.DebitMinor < 0 || line.CreditMinor < 0 {
			return fmt.Errorf("gl: line %d negative amount", idx)
		}
		if line.DebitMinor > 0 && line.CreditMinor > 0 {
			return fmt.Errorf("gl: line %d cannot carry both debit and credit", idx)
		}
		if len(line.Memo) > maxTextLen {
			return fmt.Errorf("gl: line %d memo exceeds %d characters", idx, maxTextLen)
		}
		debit += line.DebitMinor
		credit += line.CreditMinor
	}
	if debit != credit {
		return fmt.Errorf("%w: debits %d != credits %d", shared.ErrUnbalanced, debit, credit)
	}
	return nil
}

// ReversalInput wraps parameters for reversing an entry.
type ReversalInput struct {
	SourceEventID   uuid.UUID
	TenantID        string
	OriginalEntryID uuid.UUID
	PostedAt        time.Time
	Reason          string
}

// Validate enforces minimal reversal request rules.
func (in ReversalInput) Validate() error {
	if in.SourceEventID == uuid.Nil {
		return errors.New("gl: source event id required")
	}
	if in.TenantID == "" {
		return errors.New("gl: tenant id required")
	}
	if in.OriginalEntryID == uuid.Nil {
		return errors.New("gl: original entry id required")
	}
	if in.PostedAt.IsZero() {
		return errors.New("gl: reversal posting date required")
	}
	return nil
}

func validCurrency(currency string) bool {
	if len(currency) != 3 {
		return false
	}
	for _, c := range currency {
		if c < 'A' || c > 'Z' {
			return false
		}
	}
	return true
}
