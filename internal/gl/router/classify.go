package router

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// Class describes whether a failure may succeed on retry.
type Class int

const (
	// Permanent failures are routed to the dead-letter store immediately.
	Permanent Class = iota
	// Transient failures are retried with backoff before dead-lettering.
	Transient
)

func (c Class) String() string {
	if c == Transient {
		return "transient"
	}
	return "permanent"
}

// transientPgCodes are storage faults that clear on their own: serialization
// failures, deadlocks, lock timeouts, and cancelled statements.
var transientPgCodes = map[string]struct{}{
	"40001": {},
	"40P01": {},
	"55P03": {},
	"57014": {},
}

// Classify buckets an error as Transient or Permanent. Validation, period
// governance, and integrity violations are permanent; only storage-level
// faults earn a retry.
func Classify(err error) Class {
	if err == nil {
		return Permanent
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Transient
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if _, ok := transientPgCodes[pgErr.Code]; ok {
			return Transient
		}
		// Class 08 covers connection exceptions.
		if strings.HasPrefix(pgErr.Code, "08") {
			return Transient
		}
		return Permanent
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return Transient
	}
	return Permanent
}
