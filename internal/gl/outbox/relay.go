package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Publisher enqueues relayed events; satisfied by *asynq.Client.
type Publisher interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Relay polls the outbox and forwards unpublished events to the task queue.
type Relay struct {
	pool      *pgxpool.Pool
	publisher Publisher
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
}

// NewRelay constructs a Relay with sane polling defaults.
func NewRelay(pool *pgxpool.Pool, publisher Publisher, logger *slog.Logger) *Relay {
	return &Relay{
		pool:      pool,
		publisher: publisher,
		logger:    logger,
		interval:  2 * time.Second,
		batchSize: 100,
	}
}

// Run polls until context cancellation. Publish failures are logged and the
// row stays pending for the next tick; the relay never blocks domain commits.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.drainOnce(ctx); err != nil {
				r.logger.Warn("outbox relay pass failed", slog.Any("error", err))
			}
		}
	}
}

func (r *Relay) drainOnce(ctx context.Context) error {
	rows, err := r.pool.Query(ctx, `SELECT event_id, event_type, aggregate_type, aggregate_id, payload, created_at
FROM events_outbox WHERE published_at IS NULL ORDER BY created_at ASC LIMIT $1`, r.batchSize)
	if err != nil {
		return err
	}
	var pending []Event
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.EventID, &ev.EventType, &ev.AggregateType, &ev.AggregateID, &ev.Payload, &ev.CreatedAt); err != nil {
			rows.Close()
			return err
		}
		pending = append(pending, ev)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, ev := range pending {
		task := asynq.NewTask("gl:event:"+ev.EventType, ev.Payload)
		if _, err := r.publisher.EnqueueContext(ctx, task, asynq.Queue("events")); err != nil {
			r.logger.Warn("outbox publish failed",
				slog.String("event_id", ev.EventID.String()),
				slog.String("event_type", ev.EventType),
				slog.Any("error", err))
			continue
		}
		if _, err := r.pool.Exec(ctx, `UPDATE events_outbox SET published_at=NOW() WHERE event_id=$1`, ev.EventID); err != nil {
			r.logger.Warn("outbox mark published failed",
				slog.String("event_id", ev.EventID.String()),
				slog.Any("error", err))
		}
	}
	return nil
}
