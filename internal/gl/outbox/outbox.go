// Package outbox implements the transactional outbox used for best-effort
// event egress. Events are written inside the same transaction as the domain
// change and relayed to the task queue asynchronously; relay failures never
// affect commits.
package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Event types published by the balance engine.
const (
	EventEntryPosted   = "gl.entry.posted"
	EventEntryReversed = "gl.entry.reversed"
	EventPeriodClosed  = "gl.period.closed"
)

// Event is a pending outbox row.
type Event struct {
	EventID       uuid.UUID
	EventType     string
	AggregateType string
	AggregateID   string
	Payload       json.RawMessage
	CreatedAt     time.Time
}

// NewEvent builds an outbox event with a fresh event id, marshalling payload.
func NewEvent(eventType, aggregateType, aggregateID string, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		EventID:       uuid.New(),
		EventType:     eventType,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Payload:       data,
	}, nil
}

// InsertTx appends an event to the outbox within the caller's transaction.
func InsertTx(ctx context.Context, tx pgx.Tx, ev Event) error {
	_, err := tx.Exec(ctx, `INSERT INTO events_outbox (event_id, event_type, aggregate_type, aggregate_id, payload)
VALUES ($1,$2,$3,$4,$5)`, ev.EventID, ev.EventType, ev.AggregateType, ev.AggregateID, ev.Payload)
	return err
}
