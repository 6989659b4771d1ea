package balances

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ledgercore/ledgercore/internal/gl/periods"
)

// PeriodDirectory resolves period metadata for reconciliation.
type PeriodDirectory interface {
	GetPeriod(ctx context.Context, tenantID string, id uuid.UUID) (periods.Period, error)
}

// Service exposes balance reads and the reconciliation check.
type Service struct {
	repo    Repository
	periods PeriodDirectory
}

// NewService constructs a Service instance.
func NewService(repo Repository, periodDir PeriodDirectory) *Service {
	return &Service{repo: repo, periods: periodDir}
}

// GetBalance returns the snapshot for one grain, or shared.ErrBalanceNotFound.
func (s *Service) GetBalance(ctx context.Context, grain Grain) (Snapshot, error) {
	return s.repo.FindByGrain(ctx, grain)
}

// TrialBalance lists all balances for a tenant and period with account
// metadata, optionally filtered by currency.
func (s *Service) TrialBalance(ctx context.Context, tenantID string, periodID uuid.UUID, currency string) ([]TrialBalanceRow, error) {
	return s.repo.TrialBalance(ctx, tenantID, periodID, currency)
}

// DriftError reports a snapshot whose stored totals no longer match a replay
// of the journal. Divergence is surfaced, never auto-corrected.
type DriftError struct {
	Grain  Grain
	Detail string
}

func (e *DriftError) Error() string {
	return fmt.Sprintf("gl: grain %s/%s/%s/%s %s",
		e.Grain.TenantID, e.Grain.PeriodID, e.Grain.AccountCode, e.Grain.Currency, e.Detail)
}

// Reconcile replays all journal lines for a grain and compares the result
// against the stored snapshot. The projection must always be reproducible from
// the journal alone.
func (s *Service) Reconcile(ctx context.Context, grain Grain) error {
	stored, err := s.repo.FindByGrain(ctx, grain)
	if err != nil {
		return err
	}
	period, err := s.periods.GetPeriod(ctx, grain.TenantID, grain.PeriodID)
	if err != nil {
		return err
	}
	debit, credit, err := s.repo.ReplayGrain(ctx, grain,
		period.StartDate.Format("2006-01-02"), period.EndDate.Format("2006-01-02"))
	if err != nil {
		return err
	}
	if debit != stored.DebitTotalMinor || credit != stored.CreditTotalMinor {
		return &DriftError{Grain: grain, Detail: fmt.Sprintf(
			"diverged from journal: replayed debit=%d credit=%d, stored debit=%d credit=%d",
			debit, credit, stored.DebitTotalMinor, stored.CreditTotalMinor)}
	}
	if stored.NetBalanceMinor != stored.DebitTotalMinor-stored.CreditTotalMinor {
		return &DriftError{Grain: grain, Detail: fmt.Sprintf(
			"net drifted: net=%d debit=%d credit=%d",
			stored.NetBalanceMinor, stored.DebitTotalMinor, stored.CreditTotalMinor)}
	}
	return nil
}
