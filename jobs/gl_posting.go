package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/ledgercore/ledgercore/internal/gl/journals"
	glrouter "github.com/ledgercore/ledgercore/internal/gl/router"
	jobmetrics "github.com/ledgercore/ledgercore/internal/jobs"
)

// GLHandlers processes posting and reversal tasks from the ingress queue.
// Retry scheduling belongs to the engine's own router, not to Asynq: the
// router has already retried transients and dead-lettered terminal failures
// by the time a handler returns, so every failure maps to asynq.SkipRetry.
type GLHandlers struct {
	postings *journals.Service
	router   *glrouter.Router
	metrics  *jobmetrics.Metrics
	logger   *slog.Logger
}

// NewGLHandlers constructs the GL task handlers. metrics may be nil.
func NewGLHandlers(postings *journals.Service, router *glrouter.Router, metrics *jobmetrics.Metrics, logger *slog.Logger) *GLHandlers {
	return &GLHandlers{postings: postings, router: router, metrics: metrics, logger: logger}
}

// HandlePosting processes TaskTypeGLPosting tasks.
func (h *GLHandlers) HandlePosting(ctx context.Context, t *asynq.Task) error {
	tracker := h.metrics.Track(TaskTypeGLPosting)
	return tracker.End(h.handlePosting(ctx, t))
}

func (h *GLHandlers) handlePosting(ctx context.Context, t *asynq.Task) error {
	var payload PostingPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		h.logger.ErrorContext(ctx, "malformed posting payload", slog.Any("error", err))
		return asynq.SkipRetry
	}
	sourceEventID, err := uuid.Parse(payload.SourceEventID)
	if err != nil {
		h.logger.ErrorContext(ctx, "invalid source_event_id", slog.String("value", payload.SourceEventID))
		return asynq.SkipRetry
	}

	input := journals.PostingInput{
		SourceEventID: sourceEventID,
		TenantID:      payload.TenantID,
		SourceModule:  payload.SourceModule,
		Description:   payload.Description,
		Currency:      payload.Currency,
		PostedAt:      payload.PostedAt,
	}
	for _, line := range payload.Lines {
		input.Lines = append(input.Lines, journals.PostingLineInput{
			AccountCode: line.AccountCode,
			DebitMinor:  line.DebitMinor,
			CreditMinor: line.CreditMinor,
			Memo:        line.Memo,
		})
	}

	req := glrouter.Request{
		TenantID:      payload.TenantID,
		SourceEventID: sourceEventID,
		Subject:       TaskTypeGLPosting,
		Payload:       t.Payload(),
	}
	err = h.router.Process(ctx, req, func(ctx context.Context) error {
		_, err := h.postings.Post(ctx, input)
		return err
	})
	if err != nil {
		if errors.Is(err, glrouter.ErrDeadLettered) {
			return asynq.SkipRetry
		}
		return fmt.Errorf("gl posting: %w", err)
	}
	return nil
}

// HandleReversal processes TaskTypeGLReversal tasks.
func (h *GLHandlers) HandleReversal(ctx context.Context, t *asynq.Task) error {
	tracker := h.metrics.Track(TaskTypeGLReversal)
	return tracker.End(h.handleReversal(ctx, t))
}

func (h *GLHandlers) handleReversal(ctx context.Context, t *asynq.Task) error {
	var payload ReversalPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		h.logger.ErrorContext(ctx, "malformed reversal payload", slog.Any("error", err))
		return asynq.SkipRetry
	}
	sourceEventID, err := uuid.Parse(payload.SourceEventID)
	if err != nil {
		h.logger.ErrorContext(ctx, "invalid source_event_id", slog.String("value", payload.SourceEventID))
		return asynq.SkipRetry
	}
	originalID, err := uuid.Parse(payload.OriginalEntryID)
	if err != nil {
		h.logger.ErrorContext(ctx, "invalid original_entry_id", slog.String("value", payload.OriginalEntryID))
		return asynq.SkipRetry
	}

	input := journals.ReversalInput{
		SourceEventID:   sourceEventID,
		TenantID:        payload.TenantID,
		OriginalEntryID: originalID,
		PostedAt:        payload.PostedAt,
		Reason:          payload.Reason,
	}
	req := glrouter.Request{
		TenantID:      payload.TenantID,
		SourceEventID: sourceEventID,
		Subject:       TaskTypeGLReversal,
		Payload:       t.Payload(),
	}
	err = h.router.Process(ctx, req, func(ctx context.Context) error {
		_, err := h.postings.Reverse(ctx, input)
		return err
	})
	if err != nil {
		if errors.Is(err, glrouter.ErrDeadLettered) {
			return asynq.SkipRetry
		}
		return fmt.Errorf("gl reversal: %w", err)
	}
	return nil
}
