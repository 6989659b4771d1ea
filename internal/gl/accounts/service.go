package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/ledgercore/ledgercore/internal/gl/shared"
)

// Service answers chart-of-accounts questions for the posting pipeline.
type Service struct {
	repo Repository
}

// NewService constructs a Service instance.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// AccountExistsActive reports whether the code names an active account for the
// tenant. Returns shared.ErrAccountNotFound or shared.ErrAccountInactive with
// the offending code attached.
func (s *Service) AccountExistsActive(ctx context.Context, tenantID, code string) error {
	account, err := s.repo.FindByCode(ctx, tenantID, code)
	if err != nil {
		if errors.Is(err, shared.ErrAccountNotFound) {
			return fmt.Errorf("account %q tenant %q: %w", code, tenantID, shared.ErrAccountNotFound)
		}
		return err
	}
	if !account.IsActive {
		return fmt.Errorf("account %q tenant %q: %w", code, tenantID, shared.ErrAccountInactive)
	}
	return nil
}

// List returns the tenant's chart of accounts ordered by code.
func (s *Service) List(ctx context.Context, tenantID string) ([]Account, error) {
	return s.repo.List(ctx, tenantID)
}
