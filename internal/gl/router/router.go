// Package router retries transient failures and routes exhausted or permanent
// ones to the dead-letter store.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// ErrDeadLettered is returned after a request has been recorded to the
// dead-letter store. Wrap checks distinguish it from the underlying cause.
var ErrDeadLettered = errors.New("glrouter: event routed to dead letter")

// Observer receives routing outcomes for metrics.
type Observer interface {
	ObserveRetry(subject string)
	ObserveDeadLetter()
}

// Request identifies the unit of work being routed.
type Request struct {
	TenantID      string
	SourceEventID uuid.UUID
	Subject       string
	Payload       json.RawMessage
}

// Router drives a request through the retry policy and dead-letters it when
// the policy gives up.
type Router struct {
	retry    Config
	store    DeadLetterStore
	observer Observer
	logger   *slog.Logger
	now      func() time.Time
}

func New(retry Config, store DeadLetterStore, observer Observer, logger *slog.Logger) *Router {
	return &Router{retry: retry, store: store, observer: observer, logger: logger, now: time.Now}
}

// WithNow overrides the router clock, for tests.
func (r *Router) WithNow(now func() time.Time) *Router {
	r.now = now
	return r
}

// Process runs fn under the retry policy. Transient failures are retried with
// backoff; permanent failures and exhausted retries land in the dead-letter
// store and return ErrDeadLettered wrapping the cause.
func (r *Router) Process(ctx context.Context, req Request, fn func(context.Context) error) error {
	attempts, err := r.retry.Do(ctx, fn, func(attempt int, cause error) {
		if r.observer != nil {
			r.observer.ObserveRetry(req.Subject)
		}
		r.logger.WarnContext(ctx, "transient failure, retrying",
			slog.String("subject", req.Subject),
			slog.String("source_event_id", req.SourceEventID.String()),
			slog.Int("attempt", attempt),
			slog.Any("error", cause))
	})
	if err == nil {
		return nil
	}

	class := Classify(err)
	ev := FailedEvent{
		ID:            uuid.New(),
		TenantID:      req.TenantID,
		SourceEventID: req.SourceEventID,
		Subject:       req.Subject,
		Payload:       req.Payload,
		ErrorMessage:  err.Error(),
		ErrorClass:    class.String(),
		Attempts:      attempts,
		FailedAt:      r.now().UTC(),
	}
	if insertErr := r.store.Insert(ctx, ev); insertErr != nil {
		r.logger.ErrorContext(ctx, "dead-letter insert failed",
			slog.String("subject", req.Subject),
			slog.String("source_event_id", req.SourceEventID.String()),
			slog.Any("error", insertErr))
		return fmt.Errorf("dead-letter insert failed after %w: %s", err, insertErr)
	}
	if r.observer != nil {
		r.observer.ObserveDeadLetter()
	}
	r.logger.ErrorContext(ctx, "event dead-lettered",
		slog.String("subject", req.Subject),
		slog.String("source_event_id", req.SourceEventID.String()),
		slog.String("class", class.String()),
		slog.Int("attempts", attempts),
		slog.String("dead_letter_id", ev.ID.String()),
		slog.Any("error", err))
	return fmt.Errorf("%w (dead_letter_id=%s): %s", ErrDeadLettered, ev.ID, err)
}
