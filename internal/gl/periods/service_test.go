package periods

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgercore/ledgercore/internal/gl/outbox"
)

type stubRepo struct {
	mu          sync.Mutex
	period      Period
	currencies  []CurrencySnapshot
	balanceRows int64
	snapshots   []CurrencySnapshot
	outbox      []outbox.Event
}

func (r *stubRepo) FindByDate(_ context.Context, _ string, _ time.Time) (Period, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.period, nil
}

func (r *stubRepo) FindByID(_ context.Context, _ string, _ uuid.UUID) (Period, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.period, nil
}

func (r *stubRepo) ListClosed(_ context.Context, _ int) ([]Period, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.period.Closed() {
		return []Period{r.period}, nil
	}
	return nil, nil
}

func (r *stubRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(ctx, (*stubTx)(r))
}

type stubTx stubRepo

func (tx *stubTx) LockPeriod(_ context.Context, _ string, _ uuid.UUID) (Period, error) {
	return tx.period, nil
}

func (tx *stubTx) CurrencyTotals(_ context.Context, _ string, _ uuid.UUID) ([]CurrencySnapshot, error) {
	return tx.currencies, nil
}

func (tx *stubTx) BalanceRowCount(_ context.Context, _ string, _ uuid.UUID) (int64, error) {
	return tx.balanceRows, nil
}

func (tx *stubTx) InsertSnapshot(_ context.Context, _ string, _ uuid.UUID, snap CurrencySnapshot) error {
	tx.snapshots = append(tx.snapshots, snap)
	return nil
}

func (tx *stubTx) MarkClosed(_ context.Context, _ uuid.UUID, closedBy, reason, hash string, at time.Time) error {
	tx.period.ClosedAt = &at
	tx.period.ClosedBy = &closedBy
	tx.period.CloseReason = &reason
	tx.period.CloseHash = &hash
	return nil
}

func (tx *stubTx) InsertOutboxEvent(_ context.Context, ev outbox.Event) error {
	tx.outbox = append(tx.outbox, ev)
	return nil
}

func openPeriod(tenantID string) Period {
	start, _ := time.Parse("2006-01-02", "2026-01-01")
	end, _ := time.Parse("2006-01-02", "2026-01-31")
	return Period{ID: uuid.New(), TenantID: tenantID, StartDate: start, EndDate: end}
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		period: openPeriod("acme"),
		currencies: []CurrencySnapshot{
			{Currency: "EUR", JournalCount: 2, LineCount: 4, TotalDebitsMinor: 3000, TotalCreditsMinor: 3000},
			{Currency: "USD", JournalCount: 10, LineCount: 21, TotalDebitsMinor: 50000, TotalCreditsMinor: 50000},
		},
		balanceRows: 6,
	}
}

func TestCloseSealsPeriod(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo, slog.New(slog.DiscardHandler))
	fixed := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	svc.WithNow(func() time.Time { return fixed })

	result, err := svc.Close(context.Background(), CloseInput{
		TenantID: "acme",
		PeriodID: repo.period.ID,
		ClosedBy: "controller@acme",
		Reason:   "month end",
	})
	require.NoError(t, err)
	assert.False(t, result.AlreadyClosed)
	assert.Equal(t, fixed, result.ClosedAt)
	assert.NotEmpty(t, result.CloseHash)

	expected := ComputeCloseHash("acme", repo.period.ID, 12, 53000, 53000, 6)
	assert.Equal(t, expected, result.CloseHash)

	require.Len(t, repo.snapshots, 2)
	assert.Equal(t, "EUR", repo.snapshots[0].Currency)
	assert.Equal(t, "USD", repo.snapshots[1].Currency)

	require.Len(t, repo.outbox, 1)
	assert.Equal(t, outbox.EventPeriodClosed, repo.outbox[0].EventType)
}

func TestCloseIdempotentConvergence(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo, slog.New(slog.DiscardHandler))

	first, err := svc.Close(context.Background(), CloseInput{
		TenantID: "acme",
		PeriodID: repo.period.ID,
		ClosedBy: "controller@acme",
	})
	require.NoError(t, err)

	second, err := svc.Close(context.Background(), CloseInput{
		TenantID: "acme",
		PeriodID: repo.period.ID,
		ClosedBy: "someone-else@acme",
	})
	require.NoError(t, err)
	assert.True(t, second.AlreadyClosed)
	assert.Equal(t, first.CloseHash, second.CloseHash)
	assert.Equal(t, first.ClosedAt, second.ClosedAt)
	assert.Equal(t, first.ClosedBy, second.ClosedBy)

	// Only the first call writes snapshots and emits the event.
	assert.Len(t, repo.snapshots, 2)
	assert.Len(t, repo.outbox, 1)
}

func TestCloseConcurrentCallsSingleClosure(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo, slog.New(slog.DiscardHandler))

	const workers = 8
	var wg sync.WaitGroup
	results := make(chan ClosureResult, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := svc.Close(context.Background(), CloseInput{
				TenantID: "acme",
				PeriodID: repo.period.ID,
				ClosedBy: "controller@acme",
			})
			assert.NoError(t, err)
			results <- result
		}()
	}
	wg.Wait()
	close(results)

	var fresh int
	var hash string
	for result := range results {
		if !result.AlreadyClosed {
			fresh++
		}
		if hash == "" {
			hash = result.CloseHash
		}
		assert.Equal(t, hash, result.CloseHash)
	}
	assert.Equal(t, 1, fresh)
	assert.Len(t, repo.outbox, 1)
}

func TestVerifyCloseHash(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo, slog.New(slog.DiscardHandler))

	_, err := svc.Close(context.Background(), CloseInput{TenantID: "acme", PeriodID: repo.period.ID, ClosedBy: "x"})
	require.NoError(t, err)

	require.NoError(t, svc.VerifyCloseHash(context.Background(), "acme", repo.period.ID))

	// Tampering with sealed data must surface as a mismatch.
	repo.mu.Lock()
	repo.currencies[1].TotalDebitsMinor += 100
	repo.mu.Unlock()

	err = svc.VerifyCloseHash(context.Background(), "acme", repo.period.ID)
	var mismatch *HashMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, repo.period.ID, mismatch.PeriodID)
	assert.NotEqual(t, mismatch.Computed, mismatch.Expected)
}

func TestVerifyOpenPeriodRejected(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo, slog.New(slog.DiscardHandler))

	err := svc.VerifyCloseHash(context.Background(), "acme", repo.period.ID)
	var notClosed *PeriodNotClosedError
	require.ErrorAs(t, err, &notClosed)
}

func TestComputeCloseHashDeterministic(t *testing.T) {
	periodID := uuid.MustParse("c56a4180-65aa-42ec-a945-5fd21dec0538")

	a := ComputeCloseHash("acme", periodID, 12, 53000, 53000, 6)
	b := ComputeCloseHash("acme", periodID, 12, 53000, 53000, 6)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	assert.NotEqual(t, a, ComputeCloseHash("acme", periodID, 13, 53000, 53000, 6))
	assert.NotEqual(t, a, ComputeCloseHash("acme", periodID, 12, 53001, 53000, 6))
	assert.NotEqual(t, a, ComputeCloseHash("globex", periodID, 12, 53000, 53000, 6))
}
