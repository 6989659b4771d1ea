package router

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// FailedEvent is a dead-letter record. Rows are write-once and kept for
// manual replay after root-cause resolution; nothing auto-drains the store.
type FailedEvent struct {
	ID            uuid.UUID       `json:"id"`
	TenantID      string          `json:"tenant_id"`
	SourceEventID uuid.UUID       `json:"source_event_id"`
	Subject       string          `json:"subject"`
	Payload       json.RawMessage `json:"payload"`
	ErrorMessage  string          `json:"error_message"`
	ErrorClass    string          `json:"error_class"`
	Attempts      int             `json:"attempts"`
	FailedAt      time.Time       `json:"failed_at"`
}

// DeadLetterStore persists failed events.
type DeadLetterStore interface {
	Insert(ctx context.Context, ev FailedEvent) error
	List(ctx context.Context, tenantID string, limit int) ([]FailedEvent, error)
}

type pgDeadLetterStore struct {
	db *pgxpool.Pool
}

// NewDeadLetterStore constructs the pgx-backed dead-letter store.
func NewDeadLetterStore(db *pgxpool.Pool) DeadLetterStore {
	return &pgDeadLetterStore{db: db}
}

func (s *pgDeadLetterStore) Insert(ctx context.Context, ev FailedEvent) error {
	_, err := s.db.Exec(ctx, `INSERT INTO failed_events
(id, tenant_id, source_event_id, subject, payload, error_message, error_class, attempts, failed_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		ev.ID, ev.TenantID, ev.SourceEventID, ev.Subject, ev.Payload,
		ev.ErrorMessage, ev.ErrorClass, ev.Attempts, ev.FailedAt)
	return err
}

func (s *pgDeadLetterStore) List(ctx context.Context, tenantID string, limit int) ([]FailedEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, `SELECT id, tenant_id, source_event_id, subject, payload, error_message, error_class, attempts, failed_at
FROM failed_events WHERE tenant_id=$1 ORDER BY failed_at DESC LIMIT $2`, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var events []FailedEvent
	for rows.Next() {
		var ev FailedEvent
		if err := rows.Scan(&ev.ID, &ev.TenantID, &ev.SourceEventID, &ev.Subject, &ev.Payload,
			&ev.ErrorMessage, &ev.ErrorClass, &ev.Attempts, &ev.FailedAt); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
