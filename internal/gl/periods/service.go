package periods

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ledgercore/ledgercore/internal/gl/outbox"
)

// Service is the period directory: it resolves dates to periods and owns
// closure as a one-way, idempotent operation.
type Service struct {
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs a Service instance.
func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// FindPeriod returns the period covering the date. The open/closed state is
// re-evaluated on every call; callers must not cache the decision.
func (s *Service) FindPeriod(ctx context.Context, tenantID string, date time.Time) (Period, error) {
	return s.repo.FindByDate(ctx, tenantID, date)
}

// GetPeriod returns a period by id.
func (s *Service) GetPeriod(ctx context.Context, tenantID string, id uuid.UUID) (Period, error) {
	return s.repo.FindByID(ctx, tenantID, id)
}

type periodClosedEvent struct {
	PeriodID  uuid.UUID `json:"period_id"`
	TenantID  string    `json:"tenant_id"`
	ClosedAt  time.Time `json:"closed_at"`
	ClosedBy  string    `json:"closed_by"`
	CloseHash string    `json:"close_hash"`
}

// Close seals a period. Idempotent: if the period is already closed the
// existing closure metadata is returned and nothing is written. The hash,
// per-currency snapshots, and closed_at all land in one transaction, with the
// period row locked so concurrent calls converge on a single closure.
func (s *Service) Close(ctx context.Context, in CloseInput) (ClosureResult, error) {
	var result ClosureResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		period, err := tx.LockPeriod(ctx, in.TenantID, in.PeriodID)
		if err != nil {
			return err
		}
		if period.Closed() {
			result = ClosureResult{
				PeriodID:      period.ID,
				TenantID:      period.TenantID,
				ClosedAt:      *period.ClosedAt,
				AlreadyClosed: true,
			}
			if period.ClosedBy != nil {
				result.ClosedBy = *period.ClosedBy
			}
			if period.CloseReason != nil {
				result.CloseReason = *period.CloseReason
			}
			if period.CloseHash != nil {
				result.CloseHash = *period.CloseHash
			}
			return nil
		}

		snapshot, err := s.computeSnapshot(ctx, tx, in.TenantID, in.PeriodID)
		if err != nil {
			return err
		}
		for _, snap := range snapshot.currencies {
			if err := tx.InsertSnapshot(ctx, in.TenantID, in.PeriodID, snap); err != nil {
				return err
			}
		}

		closedAt := s.now().UTC()
		if err := tx.MarkClosed(ctx, in.PeriodID, in.ClosedBy, in.Reason, snapshot.hash, closedAt); err != nil {
			return err
		}

		ev, err := outbox.NewEvent(outbox.EventPeriodClosed, "accounting_period", in.PeriodID.String(), periodClosedEvent{
			PeriodID:  in.PeriodID,
			TenantID:  in.TenantID,
			ClosedAt:  closedAt,
			ClosedBy:  in.ClosedBy,
			CloseHash: snapshot.hash,
		})
		if err != nil {
			return err
		}
		if err := tx.InsertOutboxEvent(ctx, ev); err != nil {
			return err
		}

		result = ClosureResult{
			PeriodID:    in.PeriodID,
			TenantID:    in.TenantID,
			ClosedAt:    closedAt,
			ClosedBy:    in.ClosedBy,
			CloseReason: in.Reason,
			CloseHash:   snapshot.hash,
		}
		return nil
	})
	if err != nil {
		return ClosureResult{}, err
	}
	if result.AlreadyClosed {
		s.logger.Info("period close converged on existing closure",
			slog.String("tenant_id", in.TenantID),
			slog.String("period_id", in.PeriodID.String()))
	} else {
		s.logger.Info("period closed",
			slog.String("tenant_id", in.TenantID),
			slog.String("period_id", in.PeriodID.String()),
			slog.String("close_hash", result.CloseHash))
	}
	return result, nil
}

// VerifyCloseHash recomputes the close fingerprint from live data and compares
// it with the sealed hash. A mismatch means closed-period data was altered.
func (s *Service) VerifyCloseHash(ctx context.Context, tenantID string, periodID uuid.UUID) error {
	period, err := s.repo.FindByID(ctx, tenantID, periodID)
	if err != nil {
		return err
	}
	if !period.Closed() || period.CloseHash == nil {
		return &PeriodNotClosedError{PeriodID: periodID}
	}
	expected := *period.CloseHash

	var computed string
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		snapshot, err := s.computeSnapshot(ctx, tx, tenantID, periodID)
		if err != nil {
			return err
		}
		computed = snapshot.hash
		return nil
	})
	if err != nil {
		return err
	}
	if computed != expected {
		return &HashMismatchError{PeriodID: periodID, Computed: computed, Expected: expected}
	}
	return nil
}

type closeSnapshot struct {
	currencies []CurrencySnapshot
	hash       string
}

func (s *Service) computeSnapshot(ctx context.Context, tx TxRepository, tenantID string, periodID uuid.UUID) (closeSnapshot, error) {
	currencies, err := tx.CurrencyTotals(ctx, tenantID, periodID)
	if err != nil {
		return closeSnapshot{}, err
	}
	balanceRows, err := tx.BalanceRowCount(ctx, tenantID, periodID)
	if err != nil {
		return closeSnapshot{}, err
	}
	var journalCount, debits, credits int64
	for _, c := range currencies {
		journalCount += c.JournalCount
		debits += c.TotalDebitsMinor
		credits += c.TotalCreditsMinor
	}
	hash := ComputeCloseHash(tenantID, periodID, journalCount, debits, credits, balanceRows)
	return closeSnapshot{currencies: currencies, hash: hash}, nil
}
