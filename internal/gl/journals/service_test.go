package journals

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgercore/ledgercore/internal/gl/balances"
	"github.com/ledgercore/ledgercore/internal/gl/outbox"
	"github.com/ledgercore/ledgercore/internal/gl/periods"
	"github.com/ledgercore/ledgercore/internal/gl/shared"
)

type memStore struct {
	mu        sync.Mutex
	periods   []periods.Period
	entries   map[uuid.UUID]JournalEntry
	bySource  map[string]uuid.UUID
	processed map[string]struct{}
	balances  map[string]balances.Snapshot
	outbox    []outbox.Event
}

func newMemStore(ps ...periods.Period) *memStore {
	return &memStore{
		periods:   ps,
		entries:   make(map[uuid.UUID]JournalEntry),
		bySource:  make(map[string]uuid.UUID),
		processed: make(map[string]struct{}),
		balances:  make(map[string]balances.Snapshot),
	}
}

func sourceKey(tenantID string, sourceEventID uuid.UUID) string {
	return tenantID + "|" + sourceEventID.String()
}

func grainKey(tenantID string, periodID uuid.UUID, account, currency string) string {
	return fmt.Sprintf("%s|%s|%s|%s", tenantID, periodID, account, currency)
}

func (s *memStore) GetEntryWithLines(_ context.Context, tenantID string, id uuid.UUID) (JournalEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	if !ok || entry.TenantID != tenantID {
		return JournalEntry{}, shared.ErrEntryNotFound
	}
	return entry, nil
}

func (s *memStore) FindEntryBySourceEvent(_ context.Context, tenantID string, sourceEventID uuid.UUID) (JournalEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.bySource[sourceKey(tenantID, sourceEventID)]
	if !ok {
		return JournalEntry{}, shared.ErrEntryNotFound
	}
	return s.entries[id], nil
}

func (s *memStore) ProcessedEventExists(_ context.Context, tenantID string, sourceEventID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.processed[sourceKey(tenantID, sourceEventID)]
	return ok, nil
}

func (s *memStore) ReversalExists(_ context.Context, tenantID string, originalEntryID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, entry := range s.entries {
		if entry.TenantID == tenantID && entry.ReversesEntryID != nil && *entry.ReversesEntryID == originalEntryID {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &memTx{
		store:     s,
		entries:   make(map[uuid.UUID]JournalEntry),
		processed: make(map[string]struct{}),
		balances:  make(map[string]balances.Snapshot),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

type memTx struct {
	store     *memStore
	entries   map[uuid.UUID]JournalEntry
	processed map[string]struct{}
	balances  map[string]balances.Snapshot
	outbox    []outbox.Event
}

func (tx *memTx) commit() {
	for id, entry := range tx.entries {
		tx.store.entries[id] = entry
		tx.store.bySource[sourceKey(entry.TenantID, entry.SourceEventID)] = id
	}
	for key := range tx.processed {
		tx.store.processed[key] = struct{}{}
	}
	for key, snap := range tx.balances {
		tx.store.balances[key] = snap
	}
	tx.store.outbox = append(tx.store.outbox, tx.outbox...)
}

func (tx *memTx) InsertEntry(_ context.Context, entry JournalEntry) error {
	if _, ok := tx.store.bySource[sourceKey(entry.TenantID, entry.SourceEventID)]; ok {
		return shared.ErrDuplicateEvent
	}
	entry.Lines = nil
	tx.entries[entry.ID] = entry
	return nil
}

func (tx *memTx) InsertLines(_ context.Context, entryID uuid.UUID, lines []JournalLine) error {
	entry := tx.entries[entryID]
	entry.Lines = append(entry.Lines, lines...)
	tx.entries[entryID] = entry
	return nil
}

func (tx *memTx) InsertProcessedEvent(_ context.Context, tenantID string, sourceEventID uuid.UUID, _ string) error {
	key := sourceKey(tenantID, sourceEventID)
	if _, ok := tx.store.processed[key]; ok {
		return shared.ErrDuplicateEvent
	}
	tx.processed[key] = struct{}{}
	return nil
}

func (tx *memTx) UpsertBalance(_ context.Context, tenantID string, periodID uuid.UUID, delta balances.Delta, entryID uuid.UUID) (balances.Snapshot, error) {
	key := grainKey(tenantID, periodID, delta.AccountCode, delta.Currency)
	snap, ok := tx.balances[key]
	if !ok {
		snap, ok = tx.store.balances[key]
	}
	if !ok {
		snap = balances.Snapshot{
			ID:          uuid.New(),
			TenantID:    tenantID,
			PeriodID:    periodID,
			AccountCode: delta.AccountCode,
			Currency:    delta.Currency,
		}
	}
	snap.DebitTotalMinor += delta.DebitMinor
	snap.CreditTotalMinor += delta.CreditMinor
	snap.NetBalanceMinor = snap.DebitTotalMinor - snap.CreditTotalMinor
	snap.LastJournalEntryID = &entryID
	tx.balances[key] = snap
	return snap, nil
}

func (tx *memTx) FindPeriodByDate(_ context.Context, tenantID string, date time.Time) (periods.Period, error) {
	for _, p := range tx.store.periods {
		if p.TenantID == tenantID && p.Contains(date) {
			return p, nil
		}
	}
	return periods.Period{}, &periods.NoPeriodForDateError{TenantID: tenantID, Date: date}
}

func (tx *memTx) GetEntryWithLines(_ context.Context, tenantID string, id uuid.UUID) (JournalEntry, error) {
	entry, ok := tx.store.entries[id]
	if !ok || entry.TenantID != tenantID {
		return JournalEntry{}, shared.ErrEntryNotFound
	}
	return entry, nil
}

func (tx *memTx) InsertOutboxEvent(_ context.Context, ev outbox.Event) error {
	tx.outbox = append(tx.outbox, ev)
	return nil
}

type stubGate struct {
	accounts map[string]bool
}

func (g stubGate) AccountExistsActive(_ context.Context, _, code string) error {
	active, ok := g.accounts[code]
	if !ok {
		return shared.ErrAccountNotFound
	}
	if !active {
		return shared.ErrAccountInactive
	}
	return nil
}

func testPeriod(tenantID string, start, end string) periods.Period {
	startDate, _ := time.Parse("2006-01-02", start)
	endDate, _ := time.Parse("2006-01-02", end)
	return periods.Period{
		ID:        uuid.New(),
		TenantID:  tenantID,
		StartDate: startDate,
		EndDate:   endDate,
	}
}

func closePeriod(store *memStore, id uuid.UUID) {
	store.mu.Lock()
	defer store.mu.Unlock()
	for i := range store.periods {
		if store.periods[i].ID == id {
			now := time.Now()
			store.periods[i].ClosedAt = &now
		}
	}
}

func newTestService(store *memStore) *Service {
	gate := stubGate{accounts: map[string]bool{
		"1000": true,
		"4000": true,
		"5000": true,
		"9100": false,
	}}
	return NewService(store, gate, slog.New(slog.DiscardHandler))
}

func cashRevenueInput(tenantID string, date string, amountMinor int64) PostingInput {
	postedAt, _ := time.Parse("2006-01-02", date)
	return PostingInput{
		SourceEventID: uuid.New(),
		TenantID:      tenantID,
		SourceModule:  "billing",
		Description:   "Invoice settled",
		Currency:      "USD",
		PostedAt:      postedAt,
		Lines: []PostingLineInput{
			{AccountCode: "1000", DebitMinor: amountMinor},
			{AccountCode: "4000", CreditMinor: amountMinor},
		},
	}
}

func TestPostUpdatesBalances(t *testing.T) {
	period := testPeriod("acme", "2026-01-01", "2026-01-31")
	store := newMemStore(period)
	svc := newTestService(store)

	result, err := svc.Post(context.Background(), cashRevenueInput("acme", "2026-01-15", 10000))
	require.NoError(t, err)
	require.False(t, result.Replayed)
	require.Len(t, result.Balances, 2)

	cash := store.balances[grainKey("acme", period.ID, "1000", "USD")]
	revenue := store.balances[grainKey("acme", period.ID, "4000", "USD")]
	assert.Equal(t, int64(10000), cash.NetBalanceMinor)
	assert.Equal(t, int64(-10000), revenue.NetBalanceMinor)
	assert.Equal(t, int64(10000), cash.DebitTotalMinor)
	assert.Equal(t, int64(10000), revenue.CreditTotalMinor)
	assert.Len(t, store.outbox, 1)
	assert.Equal(t, outbox.EventEntryPosted, store.outbox[0].EventType)
}

func TestPostIdempotentReplay(t *testing.T) {
	period := testPeriod("acme", "2026-01-01", "2026-01-31")
	store := newMemStore(period)
	svc := newTestService(store)

	input := cashRevenueInput("acme", "2026-01-15", 10000)
	first, err := svc.Post(context.Background(), input)
	require.NoError(t, err)

	second, err := svc.Post(context.Background(), input)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Entry.ID, second.Entry.ID)

	assert.Len(t, store.entries, 1)
	cash := store.balances[grainKey("acme", period.ID, "1000", "USD")]
	assert.Equal(t, int64(10000), cash.NetBalanceMinor)
}

func TestReverseZeroesBalances(t *testing.T) {
	period := testPeriod("acme", "2026-01-01", "2026-01-31")
	store := newMemStore(period)
	svc := newTestService(store)

	posted, err := svc.Post(context.Background(), cashRevenueInput("acme", "2026-01-15", 10000))
	require.NoError(t, err)

	reversal, err := svc.Reverse(context.Background(), ReversalInput{
		SourceEventID:   uuid.New(),
		TenantID:        "acme",
		OriginalEntryID: posted.Entry.ID,
		PostedAt:        posted.Entry.PostedAt,
		Reason:          "billing correction",
	})
	require.NoError(t, err)
	require.NotNil(t, reversal.Entry.ReversesEntryID)
	assert.Equal(t, posted.Entry.ID, *reversal.Entry.ReversesEntryID)

	cash := store.balances[grainKey("acme", period.ID, "1000", "USD")]
	revenue := store.balances[grainKey("acme", period.ID, "4000", "USD")]
	assert.Zero(t, cash.NetBalanceMinor)
	assert.Zero(t, revenue.NetBalanceMinor)
	assert.Len(t, store.entries, 2)

	// Lines are the exact arithmetic inverse of the original.
	require.Len(t, reversal.Entry.Lines, 2)
	assert.Equal(t, posted.Entry.Lines[0].DebitMinor, reversal.Entry.Lines[0].CreditMinor)
	assert.Equal(t, posted.Entry.Lines[1].CreditMinor, reversal.Entry.Lines[1].DebitMinor)
}

func TestReverseTwiceRejected(t *testing.T) {
	period := testPeriod("acme", "2026-01-01", "2026-01-31")
	store := newMemStore(period)
	svc := newTestService(store)

	posted, err := svc.Post(context.Background(), cashRevenueInput("acme", "2026-01-15", 10000))
	require.NoError(t, err)

	_, err = svc.Reverse(context.Background(), ReversalInput{
		SourceEventID:   uuid.New(),
		TenantID:        "acme",
		OriginalEntryID: posted.Entry.ID,
		PostedAt:        posted.Entry.PostedAt,
	})
	require.NoError(t, err)

	_, err = svc.Reverse(context.Background(), ReversalInput{
		SourceEventID:   uuid.New(),
		TenantID:        "acme",
		OriginalEntryID: posted.Entry.ID,
		PostedAt:        posted.Entry.PostedAt,
	})
	assert.ErrorIs(t, err, shared.ErrAlreadyReversed)
}

func TestPostClosedPeriodRejected(t *testing.T) {
	period := testPeriod("acme", "2026-01-01", "2026-01-31")
	store := newMemStore(period)
	svc := newTestService(store)
	closePeriod(store, period.ID)

	_, err := svc.Post(context.Background(), cashRevenueInput("acme", "2026-01-20", 5000))
	var closedErr *periods.PeriodClosedError
	require.ErrorAs(t, err, &closedErr)
	assert.Equal(t, period.ID, closedErr.PeriodID)

	assert.Empty(t, store.entries)
	assert.Empty(t, store.balances)
	assert.Empty(t, store.processed)
}

func TestReverseOriginalPeriodClosed(t *testing.T) {
	january := testPeriod("acme", "2026-01-01", "2026-01-31")
	february := testPeriod("acme", "2026-02-01", "2026-02-28")
	store := newMemStore(january, february)
	svc := newTestService(store)

	posted, err := svc.Post(context.Background(), cashRevenueInput("acme", "2026-01-15", 10000))
	require.NoError(t, err)

	closePeriod(store, january.ID)

	febDate, _ := time.Parse("2006-01-02", "2026-02-10")
	_, err = svc.Reverse(context.Background(), ReversalInput{
		SourceEventID:   uuid.New(),
		TenantID:        "acme",
		OriginalEntryID: posted.Entry.ID,
		PostedAt:        febDate,
	})
	var origClosed *periods.OriginalPeriodClosedError
	require.ErrorAs(t, err, &origClosed)
	assert.Equal(t, posted.Entry.ID, origClosed.OriginalEntryID)
	assert.Equal(t, january.ID, origClosed.PeriodID)

	// Distinct from the reversal's own target period being closed.
	var closedErr *periods.PeriodClosedError
	assert.False(t, errors.As(err, &closedErr))
	assert.Len(t, store.entries, 1)
}

func TestReverseTargetPeriodClosed(t *testing.T) {
	january := testPeriod("acme", "2026-01-01", "2026-01-31")
	february := testPeriod("acme", "2026-02-01", "2026-02-28")
	store := newMemStore(january, february)
	svc := newTestService(store)

	posted, err := svc.Post(context.Background(), cashRevenueInput("acme", "2026-01-15", 10000))
	require.NoError(t, err)

	closePeriod(store, february.ID)

	febDate, _ := time.Parse("2006-01-02", "2026-02-10")
	_, err = svc.Reverse(context.Background(), ReversalInput{
		SourceEventID:   uuid.New(),
		TenantID:        "acme",
		OriginalEntryID: posted.Entry.ID,
		PostedAt:        febDate,
	})
	var closedErr *periods.PeriodClosedError
	require.ErrorAs(t, err, &closedErr)
	assert.Equal(t, february.ID, closedErr.PeriodID)
}

func TestPostNoPeriodForDate(t *testing.T) {
	store := newMemStore(testPeriod("acme", "2026-01-01", "2026-01-31"))
	svc := newTestService(store)

	_, err := svc.Post(context.Background(), cashRevenueInput("acme", "2026-06-15", 5000))
	var noPeriod *periods.NoPeriodForDateError
	require.ErrorAs(t, err, &noPeriod)
	assert.Empty(t, store.entries)
}

func TestPostRejectsValidationFailures(t *testing.T) {
	store := newMemStore(testPeriod("acme", "2026-01-01", "2026-01-31"))
	svc := newTestService(store)
	ctx := context.Background()

	unbalanced := cashRevenueInput("acme", "2026-01-15", 10000)
	unbalanced.Lines[1].CreditMinor = 9999
	_, err := svc.Post(ctx, unbalanced)
	assert.ErrorIs(t, err, shared.ErrUnbalanced)

	single := cashRevenueInput("acme", "2026-01-15", 10000)
	single.Lines = single.Lines[:1]
	_, err = svc.Post(ctx, single)
	assert.ErrorIs(t, err, shared.ErrTooFewLines)

	unknown := cashRevenueInput("acme", "2026-01-15", 10000)
	unknown.Lines[0].AccountCode = "7777"
	_, err = svc.Post(ctx, unknown)
	assert.ErrorIs(t, err, shared.ErrAccountNotFound)

	inactive := cashRevenueInput("acme", "2026-01-15", 10000)
	inactive.Lines[0].AccountCode = "9100"
	_, err = svc.Post(ctx, inactive)
	assert.ErrorIs(t, err, shared.ErrAccountInactive)

	assert.Empty(t, store.entries)
	assert.Empty(t, store.balances)
}

func TestConcurrentPostingsNoLostUpdates(t *testing.T) {
	period := testPeriod("acme", "2026-01-01", "2026-01-31")
	store := newMemStore(period)
	svc := newTestService(store)

	const workers = 50
	const amount = int64(200)

	var wg sync.WaitGroup
	errCh := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Post(context.Background(), cashRevenueInput("acme", "2026-01-15", amount))
			errCh <- err
		}()
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		require.NoError(t, err)
	}

	cash := store.balances[grainKey("acme", period.ID, "1000", "USD")]
	revenue := store.balances[grainKey("acme", period.ID, "4000", "USD")]
	assert.Equal(t, int64(workers)*amount, cash.DebitTotalMinor)
	assert.Equal(t, int64(workers)*amount, cash.NetBalanceMinor)
	assert.Equal(t, int64(workers)*amount, revenue.CreditTotalMinor)
	assert.Equal(t, int64(-workers)*amount, revenue.NetBalanceMinor)
	assert.Len(t, store.entries, workers)
}

func TestConcurrentSameEventPostsOnce(t *testing.T) {
	period := testPeriod("acme", "2026-01-01", "2026-01-31")
	store := newMemStore(period)
	svc := newTestService(store)

	input := cashRevenueInput("acme", "2026-01-15", 10000)

	const workers = 10
	var wg sync.WaitGroup
	errCh := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Post(context.Background(), input)
			errCh <- err
		}()
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		require.NoError(t, err)
	}

	assert.Len(t, store.entries, 1)
	cash := store.balances[grainKey("acme", period.ID, "1000", "USD")]
	assert.Equal(t, int64(10000), cash.NetBalanceMinor)
}

func TestTenantsIsolated(t *testing.T) {
	acme := testPeriod("acme", "2026-01-01", "2026-01-31")
	globex := testPeriod("globex", "2026-01-01", "2026-01-31")
	store := newMemStore(acme, globex)
	svc := newTestService(store)

	_, err := svc.Post(context.Background(), cashRevenueInput("acme", "2026-01-15", 10000))
	require.NoError(t, err)
	_, err = svc.Post(context.Background(), cashRevenueInput("globex", "2026-01-15", 300))
	require.NoError(t, err)

	acmeCash := store.balances[grainKey("acme", acme.ID, "1000", "USD")]
	globexCash := store.balances[grainKey("globex", globex.ID, "1000", "USD")]
	assert.Equal(t, int64(10000), acmeCash.NetBalanceMinor)
	assert.Equal(t, int64(300), globexCash.NetBalanceMinor)
}
