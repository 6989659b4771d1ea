package shared

import "errors"

var (
	// ErrUnbalanced indicates debit != credit across an entry's lines.
	ErrUnbalanced = errors.New("gl: journal lines must balance")
	// ErrTooFewLines indicates less than two lines.
	ErrTooFewLines = errors.New("gl: journal requires at least two lines")
	// ErrInvalidCurrency indicates a malformed currency code.
	ErrInvalidCurrency = errors.New("gl: currency must be a 3-letter uppercase code")
	// ErrAccountNotFound indicates an account code unknown to the chart of accounts.
	ErrAccountNotFound = errors.New("gl: account not found in chart of accounts")
	// ErrAccountInactive indicates an account that exists but cannot be posted to.
	ErrAccountInactive = errors.New("gl: account is inactive")
	// ErrEntryNotFound indicates a missing journal entry.
	ErrEntryNotFound = errors.New("gl: journal entry not found")
	// ErrAlreadyReversed indicates the entry is itself a reversal.
	ErrAlreadyReversed = errors.New("gl: entry is a reversal and cannot be reversed")
	// ErrDuplicateEvent indicates the source event was already processed.
	ErrDuplicateEvent = errors.New("gl: source event already processed")
	// ErrBalanceNotFound indicates no balance row exists for the grain.
	ErrBalanceNotFound = errors.New("gl: no balance for grain")
	// ErrPeriodNotFound indicates a missing period row.
	ErrPeriodNotFound = errors.New("gl: period not found")
	// ErrIntegrity indicates an unexpected constraint violation.
	ErrIntegrity = errors.New("gl: integrity violation")
)
