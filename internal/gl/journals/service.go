package journals

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ledgercore/ledgercore/internal/gl/balances"
	"github.com/ledgercore/ledgercore/internal/gl/outbox"
	"github.com/ledgercore/ledgercore/internal/gl/periods"
	"github.com/ledgercore/ledgercore/internal/gl/shared"
)

// AccountGate validates destination accounts before any row is written.
type AccountGate interface {
	AccountExistsActive(ctx context.Context, tenantID, code string) error
}

// PostingResult is the committed outcome of a posting or reversal. Replayed is
// true when the source event was already processed and the stored entry is
// returned unchanged.
type PostingResult struct {
	Entry    JournalEntry
	Balances []balances.Snapshot
	Replayed bool
}

// Service drives the posting pipeline: idempotency check, structural
// validation, account gate, period resolution, then a single transaction
// committing the entry, its lines, the balance rollups, and the processed
// event marker together.
type Service struct {
	repo   Repository
	gate   AccountGate
	logger *slog.Logger
	now    func() time.Time
}

func NewService(repo Repository, gate AccountGate, logger *slog.Logger) *Service {
	return &Service{repo: repo, gate: gate, logger: logger, now: time.Now}
}

// WithNow overrides the service clock, for tests.
func (s *Service) WithNow(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) Post(ctx context.Context, input PostingInput) (PostingResult, error) {
	if err := input.Validate(); err != nil {
		return PostingResult{}, err
	}
	if res, ok, err := s.replay(ctx, input.TenantID, input.SourceEventID); err != nil || ok {
		return res, err
	}
	if err := s.gateAccounts(ctx, input.TenantID, input.Lines); err != nil {
		return PostingResult{}, err
	}

	entry := JournalEntry{
		ID:            uuid.New(),
		TenantID:      input.TenantID,
		SourceEventID: input.SourceEventID,
		SourceModule:  input.SourceModule,
		Description:   input.Description,
		Currency:      input.Currency,
		PostedAt:      input.PostedAt,
	}
	for i, line := range input.Lines {
		entry.Lines = append(entry.Lines, JournalLine{
			ID:          uuid.New(),
			EntryID:     entry.ID,
			LineNo:      i + 1,
			AccountCode: line.AccountCode,
			DebitMinor:  line.DebitMinor,
			CreditMinor: line.CreditMinor,
			Memo:        line.Memo,
		})
	}
	return s.commit(ctx, entry, outbox.EventEntryPosted)
}

// Reverse posts the inverse of an existing entry through the same pipeline.
// The reversal lands in the period covering its own posting date, which may
// differ from the original entry's period.
func (s *Service) Reverse(ctx context.Context, input ReversalInput) (PostingResult, error) {
	if err := input.Validate(); err != nil {
		return PostingResult{}, err
	}
	if res, ok, err := s.replay(ctx, input.TenantID, input.SourceEventID); err != nil || ok {
		return res, err
	}

	original, err := s.repo.GetEntryWithLines(ctx, input.TenantID, input.OriginalEntryID)
	if err != nil {
		return PostingResult{}, err
	}
	if original.IsReversal() {
		return PostingResult{}, fmt.Errorf("entry %s is itself a reversal: %w", original.ID, shared.ErrAlreadyReversed)
	}
	reversed, err := s.repo.ReversalExists(ctx, input.TenantID, original.ID)
	if err != nil {
		return PostingResult{}, err
	}
	if reversed {
		return PostingResult{}, fmt.Errorf("entry %s: %w", original.ID, shared.ErrAlreadyReversed)
	}

	description := input.Reason
	if description == "" {
		description = "REVERSAL: " + original.Description
	}
	entry := JournalEntry{
		ID:              uuid.New(),
		TenantID:        input.TenantID,
		SourceEventID:   input.SourceEventID,
		SourceModule:    original.SourceModule,
		Description:     description,
		Currency:        original.Currency,
		PostedAt:        input.PostedAt,
		ReversesEntryID: &original.ID,
	}
	for i, line := range original.Lines {
		memo := "REVERSAL"
		if line.Memo != "" {
			memo = "REVERSAL: " + line.Memo
		}
		entry.Lines = append(entry.Lines, JournalLine{
			ID:          uuid.New(),
			EntryID:     entry.ID,
			LineNo:      i + 1,
			AccountCode: line.AccountCode,
			DebitMinor:  line.CreditMinor,
			CreditMinor: line.DebitMinor,
			Memo:        memo,
		})
	}
	return s.commit(ctx, entry, outbox.EventEntryReversed)
}

// GetEntry loads a committed entry with its lines.
func (s *Service) GetEntry(ctx context.Context, tenantID string, id uuid.UUID) (JournalEntry, error) {
	return s.repo.GetEntryWithLines(ctx, tenantID, id)
}

// replay returns the previously committed result when the source event has
// already been processed. Reprocessing a delivered event must converge on the
// original outcome instead of double-posting.
func (s *Service) replay(ctx context.Context, tenantID string, sourceEventID uuid.UUID) (PostingResult, bool, error) {
	seen, err := s.repo.ProcessedEventExists(ctx, tenantID, sourceEventID)
	if err != nil {
		return PostingResult{}, false, err
	}
	if !seen {
		return PostingResult{}, false, nil
	}
	entry, err := s.repo.FindEntryBySourceEvent(ctx, tenantID, sourceEventID)
	if err != nil {
		return PostingResult{}, false, err
	}
	s.logger.InfoContext(ctx, "duplicate source event replayed",
		slog.String("tenant_id", tenantID),
		slog.String("source_event_id", sourceEventID.String()),
		slog.String("entry_id", entry.ID.String()))
	return PostingResult{Entry: entry, Replayed: true}, true, nil
}

func (s *Service) gateAccounts(ctx context.Context, tenantID string, lines []PostingLineInput) error {
	seen := make(map[string]struct{}, len(lines))
	for _, line := range lines {
		if _, ok := seen[line.AccountCode]; ok {
			continue
		}
		seen[line.AccountCode] = struct{}{}
		if err := s.gate.AccountExistsActive(ctx, tenantID, line.AccountCode); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) commit(ctx context.Context, entry JournalEntry, eventType string) (PostingResult, error) {
	var amounts []balances.LineAmount
	for _, line := range entry.Lines {
		amounts = append(amounts, balances.LineAmount{
			AccountCode: line.AccountCode,
			DebitMinor:  line.DebitMinor,
			CreditMinor: line.CreditMinor,
		})
	}
	deltas, err := balances.ComputeDeltas(amounts, entry.Currency)
	if err != nil {
		return PostingResult{}, err
	}

	var snapshots []balances.Snapshot
	txErr := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		period, err := tx.FindPeriodByDate(ctx, entry.TenantID, entry.PostedAt)
		if err != nil {
			return err
		}
		if period.Closed() {
			return &periods.PeriodClosedError{TenantID: entry.TenantID, Date: entry.PostedAt, PeriodID: period.ID}
		}
		if entry.ReversesEntryID != nil {
			origEntry, err := tx.GetEntryWithLines(ctx, entry.TenantID, *entry.ReversesEntryID)
			if err != nil {
				return err
			}
			origPeriod, err := tx.FindPeriodByDate(ctx, entry.TenantID, origEntry.PostedAt)
			if err != nil {
				return err
			}
			if origPeriod.Closed() {
				return &periods.OriginalPeriodClosedError{OriginalEntryID: origEntry.ID, PeriodID: origPeriod.ID}
			}
		}
		if err := tx.InsertEntry(ctx, entry); err != nil {
			return err
		}
		if err := tx.InsertLines(ctx, entry.ID, entry.Lines); err != nil {
			return err
		}
		for _, delta := range deltas {
			snap, err := tx.UpsertBalance(ctx, entry.TenantID, period.ID, delta, entry.ID)
			if err != nil {
				return err
			}
			snapshots = append(snapshots, snap)
		}
		if err := tx.InsertProcessedEvent(ctx, entry.TenantID, entry.SourceEventID, eventType); err != nil {
			return err
		}
		ev, err := outbox.NewEvent(eventType, "journal_entry", entry.ID.String(), entryEventPayload(entry))
		if err != nil {
			return err
		}
		return tx.InsertOutboxEvent(ctx, ev)
	})
	if txErr != nil {
		if errors.Is(txErr, shared.ErrDuplicateEvent) {
			// Lost the race against a concurrent delivery of the same event.
			if res, ok, err := s.replay(ctx, entry.TenantID, entry.SourceEventID); err == nil && ok {
				return res, nil
			}
		}
		return PostingResult{}, txErr
	}

	s.logger.InfoContext(ctx, "journal entry committed",
		slog.String("tenant_id", entry.TenantID),
		slog.String("entry_id", entry.ID.String()),
		slog.String("event_type", eventType),
		slog.Int("lines", len(entry.Lines)))
	return PostingResult{Entry: entry, Balances: snapshots}, nil
}

func entryEventPayload(entry JournalEntry) map[string]any {
	payload := map[string]any{
		"entry_id":        entry.ID.String(),
		"tenant_id":       entry.TenantID,
		"source_event_id": entry.SourceEventID.String(),
		"currency":        entry.Currency,
		"posted_at":       entry.PostedAt.Format(time.RFC3339),
		"line_count":      len(entry.Lines),
	}
	if entry.ReversesEntryID != nil {
		payload["reverses_entry_id"] = entry.ReversesEntryID.String()
	}
	return payload
}
