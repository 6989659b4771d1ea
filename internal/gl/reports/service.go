package reports

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ledgercore/ledgercore/internal/gl/periods"
)

var (
	// ErrInvalidPage rejects pagination outside the bounded window.
	ErrInvalidPage = errors.New("gl: limit must be between 1 and 100 and offset must be non-negative")
	// ErrMissingRange rejects activity queries with neither a period nor a date range.
	ErrMissingRange = errors.New("gl: account activity requires period_id or a from/to range")
	// ErrInvalidRange rejects inverted date ranges.
	ErrInvalidRange = errors.New("gl: from date is after to date")
)

const (
	maxPageSize     = 100
	defaultPageSize = 50
)

// PeriodDirectory resolves periods so reports can derive date boundaries.
type PeriodDirectory interface {
	GetPeriod(ctx context.Context, tenantID string, id uuid.UUID) (periods.Period, error)
}

// DetailQuery selects journal entries for one tenant and period, optionally
// narrowed to an account or currency.
type DetailQuery struct {
	TenantID    string
	PeriodID    uuid.UUID
	AccountCode string
	Currency    string
	Limit       int
	Offset      int
}

// ActivityQuery selects journal lines for one account. The window comes from
// PeriodID when set, otherwise from the From/To pair.
type ActivityQuery struct {
	TenantID    string
	AccountCode string
	PeriodID    *uuid.UUID
	From        *time.Time
	To          *time.Time
	Currency    string
	Limit       int
	Offset      int
}

// Service serves read-only journal reporting. Reports read committed rows
// only and never mutate state.
type Service struct {
	repo    Repository
	periods PeriodDirectory
}

func NewService(repo Repository, periods PeriodDirectory) *Service {
	return &Service{repo: repo, periods: periods}
}

// Detail returns entries with their lines for the requested period, in posting
// order with pagination metadata.
func (s *Service) Detail(ctx context.Context, q DetailQuery) (Detail, error) {
	limit, offset, err := normalizePage(q.Limit, q.Offset)
	if err != nil {
		return Detail{}, err
	}
	period, err := s.periods.GetPeriod(ctx, q.TenantID, q.PeriodID)
	if err != nil {
		return Detail{}, err
	}
	filter := EntryFilter{
		TenantID:    q.TenantID,
		Start:       period.StartDate,
		End:         period.EndDate,
		AccountCode: q.AccountCode,
		Currency:    q.Currency,
		Limit:       limit,
		Offset:      offset,
	}
	entries, err := s.repo.EntriesByPostedRange(ctx, filter)
	if err != nil {
		return Detail{}, fmt.Errorf("query entries: %w", err)
	}
	total, err := s.repo.CountEntriesByPostedRange(ctx, filter)
	if err != nil {
		return Detail{}, fmt.Errorf("count entries: %w", err)
	}
	return Detail{
		TenantID:    q.TenantID,
		PeriodStart: period.StartDate,
		PeriodEnd:   period.EndDate,
		Entries:     entries,
		Page:        buildPage(limit, offset, len(entries), total),
	}, nil
}

// Activity returns the journal lines touching one account within the window.
func (s *Service) Activity(ctx context.Context, q ActivityQuery) (Activity, error) {
	limit, offset, err := normalizePage(q.Limit, q.Offset)
	if err != nil {
		return Activity{}, err
	}
	start, end, err := s.resolveRange(ctx, q)
	if err != nil {
		return Activity{}, err
	}
	filter := LineFilter{
		TenantID:    q.TenantID,
		AccountCode: q.AccountCode,
		Start:       start,
		End:         end,
		Currency:    q.Currency,
		Limit:       limit,
		Offset:      offset,
	}
	lines, err := s.repo.AccountActivity(ctx, filter)
	if err != nil {
		return Activity{}, fmt.Errorf("query activity: %w", err)
	}
	total, err := s.repo.CountAccountActivity(ctx, filter)
	if err != nil {
		return Activity{}, fmt.Errorf("count activity: %w", err)
	}
	return Activity{
		TenantID:    q.TenantID,
		AccountCode: q.AccountCode,
		RangeStart:  start,
		RangeEnd:    end,
		Lines:       lines,
		Page:        buildPage(limit, offset, len(lines), total),
	}, nil
}

func (s *Service) resolveRange(ctx context.Context, q ActivityQuery) (time.Time, time.Time, error) {
	if q.PeriodID != nil {
		period, err := s.periods.GetPeriod(ctx, q.TenantID, *q.PeriodID)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		return period.StartDate, period.EndDate, nil
	}
	if q.From != nil && q.To != nil {
		if q.From.After(*q.To) {
			return time.Time{}, time.Time{}, ErrInvalidRange
		}
		return *q.From, *q.To, nil
	}
	return time.Time{}, time.Time{}, ErrMissingRange
}

func normalizePage(limit, offset int) (int, int, error) {
	if limit == 0 {
		limit = defaultPageSize
	}
	if limit < 1 || limit > maxPageSize || offset < 0 {
		return 0, 0, ErrInvalidPage
	}
	return limit, offset, nil
}

func buildPage(limit, offset, returned int, total int64) Page {
	return Page{
		Limit:      limit,
		Offset:     offset,
		TotalCount: total,
		HasMore:    int64(offset+returned) < total,
	}
}
