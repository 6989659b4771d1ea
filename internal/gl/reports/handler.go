package reports

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ledgercore/ledgercore/internal/gl/shared"
	"github.com/ledgercore/ledgercore/internal/platform/httpx"
)

// Handler wires the read-only journal reporting endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers reporting endpoints on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/entries", h.Detail)
	r.Get("/accounts/{code}/activity", h.Activity)
}

type pageResponse struct {
	Limit      int   `json:"limit"`
	Offset     int   `json:"offset"`
	TotalCount int64 `json:"total_count"`
	HasMore    bool  `json:"has_more"`
}

type detailLineResponse struct {
	LineNo      int    `json:"line_no"`
	AccountCode string `json:"account_code"`
	AccountName string `json:"account_name"`
	DebitMinor  int64  `json:"debit_minor"`
	CreditMinor int64  `json:"credit_minor"`
	Memo        string `json:"memo,omitempty"`
}

type detailEntryResponse struct {
	ID           string               `json:"id"`
	PostedAt     string               `json:"posted_at"`
	Description  string               `json:"description"`
	SourceModule string               `json:"source_module"`
	Currency     string               `json:"currency"`
	Lines        []detailLineResponse `json:"lines"`
}

type detailResponse struct {
	TenantID    string                `json:"tenant_id"`
	PeriodStart string                `json:"period_start"`
	PeriodEnd   string                `json:"period_end"`
	Entries     []detailEntryResponse `json:"entries"`
	Pagination  pageResponse          `json:"pagination"`
}

type activityLineResponse struct {
	EntryID     string `json:"entry_id"`
	PostedAt    string `json:"posted_at"`
	Description string `json:"description"`
	Currency    string `json:"currency"`
	DebitMinor  int64  `json:"debit_minor"`
	CreditMinor int64  `json:"credit_minor"`
	Memo        string `json:"memo,omitempty"`
}

type activityResponse struct {
	TenantID    string                 `json:"tenant_id"`
	AccountCode string                 `json:"account_code"`
	RangeStart  string                 `json:"range_start"`
	RangeEnd    string                 `json:"range_end"`
	Lines       []activityLineResponse `json:"lines"`
	Pagination  pageResponse           `json:"pagination"`
}

func (h *Handler) Detail(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tenantID := q.Get("tenant_id")
	if tenantID == "" {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation failed", "tenant_id query parameter is required")
		return
	}
	periodID, err := uuid.Parse(q.Get("period_id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid period_id", err.Error())
		return
	}
	limit, offset, err := parsePage(q)
	if err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation failed", err.Error())
		return
	}
	detail, err := h.service.Detail(r.Context(), DetailQuery{
		TenantID:    tenantID,
		PeriodID:    periodID,
		AccountCode: q.Get("account_code"),
		Currency:    q.Get("currency"),
		Limit:       limit,
		Offset:      offset,
	})
	if err != nil {
		h.respondError(w, r, err, "journal detail")
		return
	}
	resp := detailResponse{
		TenantID:    detail.TenantID,
		PeriodStart: detail.PeriodStart.Format("2006-01-02"),
		PeriodEnd:   detail.PeriodEnd.Format("2006-01-02"),
		Entries:     make([]detailEntryResponse, 0, len(detail.Entries)),
		Pagination:  toPageResponse(detail.Page),
	}
	for _, entry := range detail.Entries {
		er := detailEntryResponse{
			ID:           entry.ID.String(),
			PostedAt:     entry.PostedAt.Format(time.RFC3339),
			Description:  entry.Description,
			SourceModule: entry.SourceModule,
			Currency:     entry.Currency,
			Lines:        make([]detailLineResponse, 0, len(entry.Lines)),
		}
		for _, line := range entry.Lines {
			er.Lines = append(er.Lines, detailLineResponse{
				LineNo:      line.LineNo,
				AccountCode: line.AccountCode,
				AccountName: line.AccountName,
				DebitMinor:  line.DebitMinor,
				CreditMinor: line.CreditMinor,
				Memo:        line.Memo,
			})
		}
		resp.Entries = append(resp.Entries, er)
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) Activity(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tenantID := q.Get("tenant_id")
	if tenantID == "" {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation failed", "tenant_id query parameter is required")
		return
	}
	query := ActivityQuery{
		TenantID:    tenantID,
		AccountCode: chi.URLParam(r, "code"),
		Currency:    q.Get("currency"),
	}
	if raw := q.Get("period_id"); raw != "" {
		periodID, err := uuid.Parse(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid period_id", err.Error())
			return
		}
		query.PeriodID = &periodID
	}
	for _, bound := range []struct {
		param string
		dst   **time.Time
	}{{"from", &query.From}, {"to", &query.To}} {
		if raw := q.Get(bound.param); raw != "" {
			parsed, err := parseDate(raw)
			if err != nil {
				httpx.Problem(w, http.StatusUnprocessableEntity, "Validation failed", err.Error())
				return
			}
			*bound.dst = &parsed
		}
	}
	limit, offset, err := parsePage(q)
	if err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation failed", err.Error())
		return
	}
	query.Limit = limit
	query.Offset = offset

	activity, err := h.service.Activity(r.Context(), query)
	if err != nil {
		h.respondError(w, r, err, "account activity")
		return
	}
	resp := activityResponse{
		TenantID:    activity.TenantID,
		AccountCode: activity.AccountCode,
		RangeStart:  activity.RangeStart.Format("2006-01-02"),
		RangeEnd:    activity.RangeEnd.Format("2006-01-02"),
		Lines:       make([]activityLineResponse, 0, len(activity.Lines)),
		Pagination:  toPageResponse(activity.Page),
	}
	for _, line := range activity.Lines {
		resp.Lines = append(resp.Lines, activityLineResponse{
			EntryID:     line.EntryID.String(),
			PostedAt:    line.PostedAt.Format(time.RFC3339),
			Description: line.Description,
			Currency:    line.Currency,
			DebitMinor:  line.DebitMinor,
			CreditMinor: line.CreditMinor,
			Memo:        line.Memo,
		})
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error, op string) {
	switch {
	case errors.Is(err, shared.ErrPeriodNotFound):
		httpx.Problem(w, http.StatusNotFound, "Period not found", err.Error())
	case errors.Is(err, ErrInvalidPage), errors.Is(err, ErrMissingRange), errors.Is(err, ErrInvalidRange):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation failed", err.Error())
	default:
		h.logger.ErrorContext(r.Context(), op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal server error", op+" failed")
	}
}

func toPageResponse(p Page) pageResponse {
	return pageResponse{Limit: p.Limit, Offset: p.Offset, TotalCount: p.TotalCount, HasMore: p.HasMore}
}

func parsePage(q url.Values) (int, int, error) {
	limit, offset := 0, 0
	if raw := q.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid limit %q", raw)
		}
		limit = parsed
	}
	if raw := q.Get("offset"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid offset %q", raw)
		}
		offset = parsed
	}
	return limit, offset, nil
}

func parseDate(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want RFC3339 or YYYY-MM-DD", value)
	}
	return t, nil
}
