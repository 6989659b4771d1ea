package reports

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgercore/ledgercore/internal/gl/periods"
	"github.com/ledgercore/ledgercore/internal/gl/shared"
)

type stubReportRepo struct {
	entries         []DetailEntry
	lines           []ActivityLine
	total           int64
	lastEntryFilter EntryFilter
	lastLineFilter  LineFilter
}

func (r *stubReportRepo) EntriesByPostedRange(_ context.Context, f EntryFilter) ([]DetailEntry, error) {
	r.lastEntryFilter = f
	return r.entries, nil
}

func (r *stubReportRepo) CountEntriesByPostedRange(_ context.Context, f EntryFilter) (int64, error) {
	return r.total, nil
}

func (r *stubReportRepo) AccountActivity(_ context.Context, f LineFilter) ([]ActivityLine, error) {
	r.lastLineFilter = f
	return r.lines, nil
}

func (r *stubReportRepo) CountAccountActivity(_ context.Context, f LineFilter) (int64, error) {
	return r.total, nil
}

type stubPeriodDir struct {
	start time.Time
	end   time.Time
	err   error
}

func (d stubPeriodDir) GetPeriod(_ context.Context, tenantID string, id uuid.UUID) (periods.Period, error) {
	if d.err != nil {
		return periods.Period{}, d.err
	}
	return periods.Period{ID: id, TenantID: tenantID, StartDate: d.start, EndDate: d.end}, nil
}

func newReportRouter(t *testing.T, repo *stubReportRepo, dir stubPeriodDir) http.Handler {
	t.Helper()
	handler := NewHandler(slog.New(slog.DiscardHandler), NewService(repo, dir))
	r := chi.NewRouter()
	handler.MountRoutes(r)
	return r
}

func marchPeriod() stubPeriodDir {
	return stubPeriodDir{
		start: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		end:   time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
	}
}

func TestDetailReturnsEntriesWithPagination(t *testing.T) {
	entryID := uuid.New()
	repo := &stubReportRepo{
		entries: []DetailEntry{{
			ID:           entryID,
			PostedAt:     time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
			Description:  "Invoice INV-100",
			SourceModule: "billing",
			Currency:     "USD",
			Lines: []DetailLine{
				{LineNo: 1, AccountCode: "1000", AccountName: "Cash", DebitMinor: 10000},
				{LineNo: 2, AccountCode: "4000", AccountName: "Revenue", CreditMinor: 10000},
			},
		}},
		total: 5,
	}
	router := newReportRouter(t, repo, marchPeriod())

	url := fmt.Sprintf("/entries?tenant_id=acme&period_id=%s&limit=1", uuid.New())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp detailResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "acme", resp.TenantID)
	assert.Equal(t, "2026-03-01", resp.PeriodStart)
	assert.Equal(t, "2026-03-31", resp.PeriodEnd)
	require.Len(t, resp.Entries, 1)
	assert.Equal(t, entryID.String(), resp.Entries[0].ID)
	require.Len(t, resp.Entries[0].Lines, 2)
	assert.Equal(t, "Cash", resp.Entries[0].Lines[0].AccountName)
	assert.Equal(t, int64(5), resp.Pagination.TotalCount)
	assert.True(t, resp.Pagination.HasMore)
	// The period window bounds the repository query.
	assert.Equal(t, "2026-03-01", repo.lastEntryFilter.Start.Format("2006-01-02"))
	assert.Equal(t, "2026-03-31", repo.lastEntryFilter.End.Format("2006-01-02"))
}

func TestDetailPeriodNotFound(t *testing.T) {
	router := newReportRouter(t, &stubReportRepo{}, stubPeriodDir{err: shared.ErrPeriodNotFound})

	url := fmt.Sprintf("/entries?tenant_id=acme&period_id=%s", uuid.New())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDetailRejectsOversizedPage(t *testing.T) {
	router := newReportRouter(t, &stubReportRepo{}, marchPeriod())

	url := fmt.Sprintf("/entries?tenant_id=acme&period_id=%s&limit=101", uuid.New())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestActivityByPeriod(t *testing.T) {
	entryID := uuid.New()
	repo := &stubReportRepo{
		lines: []ActivityLine{{
			EntryID:     entryID,
			PostedAt:    time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
			Description: "Invoice INV-100",
			Currency:    "USD",
			DebitMinor:  10000,
		}},
		total: 1,
	}
	router := newReportRouter(t, repo, marchPeriod())

	url := fmt.Sprintf("/accounts/1000/activity?tenant_id=acme&period_id=%s", uuid.New())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp activityResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "1000", resp.AccountCode)
	require.Len(t, resp.Lines, 1)
	assert.Equal(t, entryID.String(), resp.Lines[0].EntryID)
	assert.Equal(t, int64(10000), resp.Lines[0].DebitMinor)
	assert.False(t, resp.Pagination.HasMore)
	assert.Equal(t, "1000", repo.lastLineFilter.AccountCode)
}

func TestActivityByDateRange(t *testing.T) {
	repo := &stubReportRepo{total: 0}
	router := newReportRouter(t, repo, stubPeriodDir{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/accounts/1000/activity?tenant_id=acme&from=2026-03-01&to=2026-03-31", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2026-03-01", repo.lastLineFilter.Start.Format("2006-01-02"))
	assert.Equal(t, "2026-03-31", repo.lastLineFilter.End.Format("2006-01-02"))
}

func TestActivityRequiresDateFilter(t *testing.T) {
	router := newReportRouter(t, &stubReportRepo{}, stubPeriodDir{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/accounts/1000/activity?tenant_id=acme", nil))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestActivityRejectsInvertedRange(t *testing.T) {
	router := newReportRouter(t, &stubReportRepo{}, stubPeriodDir{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/accounts/1000/activity?tenant_id=acme&from=2026-03-31&to=2026-03-01", nil))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}
