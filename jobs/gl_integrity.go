package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/ledgercore/ledgercore/internal/gl/periods"
	jobmetrics "github.com/ledgercore/ledgercore/internal/jobs"
)

const integrityScanBatch = 100

// GLIntegrityJob re-verifies close hashes of sealed periods on a schedule.
// A mismatch means closed-period data was altered after the fact and is
// surfaced loudly; nothing is auto-corrected.
type GLIntegrityJob struct {
	periods *periods.Service
	repo    periods.Repository
	metrics *jobmetrics.Metrics
	logger  *slog.Logger
}

// NewGLIntegrityJob constructs the integrity sweep. metrics may be nil.
func NewGLIntegrityJob(service *periods.Service, repo periods.Repository, metrics *jobmetrics.Metrics, logger *slog.Logger) *GLIntegrityJob {
	return &GLIntegrityJob{periods: service, repo: repo, metrics: metrics, logger: logger}
}

// Handle processes TaskTypeGLIntegrityScan tasks.
func (j *GLIntegrityJob) Handle(ctx context.Context, t *asynq.Task) error {
	tracker := j.metrics.Track(TaskTypeGLIntegrityScan)
	return tracker.End(j.scan(ctx, t))
}

func (j *GLIntegrityJob) scan(ctx context.Context, _ *asynq.Task) error {
	closed, err := j.repo.ListClosed(ctx, integrityScanBatch)
	if err != nil {
		return err
	}
	var mismatches int
	for _, p := range closed {
		err := j.periods.VerifyCloseHash(ctx, p.TenantID, p.ID)
		if err == nil {
			continue
		}
		var mismatch *periods.HashMismatchError
		if errors.As(err, &mismatch) {
			mismatches++
			j.logger.ErrorContext(ctx, "close hash mismatch detected",
				slog.String("tenant_id", p.TenantID),
				slog.String("period_id", p.ID.String()),
				slog.String("computed", mismatch.Computed),
				slog.String("expected", mismatch.Expected))
			continue
		}
		j.logger.WarnContext(ctx, "close hash verification errored",
			slog.String("tenant_id", p.TenantID),
			slog.String("period_id", p.ID.String()),
			slog.Any("error", err))
	}
	j.logger.InfoContext(ctx, "integrity scan complete",
		slog.Int("periods_checked", len(closed)),
		slog.Int("mismatches", mismatches))
	return nil
}
