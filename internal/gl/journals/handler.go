package journals

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ledgercore/ledgercore/internal/gl/periods"
	"github.com/ledgercore/ledgercore/internal/gl/shared"
	"github.com/ledgercore/ledgercore/internal/observability"
	"github.com/ledgercore/ledgercore/internal/platform/httpx"
)

// Handler wires HTTP endpoints for posting and reversing journal entries.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	metrics   *observability.Metrics
	validator *validator.Validate
}

// NewHandler constructs a Handler instance. Metrics may be nil.
func NewHandler(logger *slog.Logger, service *Service, metrics *observability.Metrics) *Handler {
	return &Handler{logger: logger, service: service, metrics: metrics, validator: validator.New()}
}

type postingLineRequest struct {
	AccountCode string `json:"account_code" validate:"required"`
	Debit       string `json:"debit"`
	Credit      string `json:"credit"`
	Memo        string `json:"memo" validate:"max=500"`
}

type postingRequest struct {
	SourceEventID string               `json:"source_event_id" validate:"required,uuid4"`
	TenantID      string               `json:"tenant_id" validate:"required"`
	SourceModule  string               `json:"source_module" validate:"required"`
	Description   string               `json:"description" validate:"required,max=500"`
	Currency      string               `json:"currency" validate:"required,len=3,uppercase"`
	PostedAt      string               `json:"posted_at" validate:"required"`
	Lines         []postingLineRequest `json:"lines" validate:"required,min=2,dive"`
}

type reversalRequest struct {
	SourceEventID string `json:"source_event_id" validate:"required,uuid4"`
	TenantID      string `json:"tenant_id" validate:"required"`
	PostedAt      string `json:"posted_at" validate:"required"`
	Reason        string `json:"reason" validate:"max=500"`
}

type lineResponse struct {
	LineNo      int    `json:"line_no"`
	AccountCode string `json:"account_code"`
	DebitMinor  int64  `json:"debit_minor"`
	CreditMinor int64  `json:"credit_minor"`
	Memo        string `json:"memo,omitempty"`
}

type entryResponse struct {
	ID              string         `json:"id"`
	TenantID        string         `json:"tenant_id"`
	SourceEventID   string         `json:"source_event_id"`
	SourceModule    string         `json:"source_module"`
	Description     string         `json:"description"`
	Currency        string         `json:"currency"`
	PostedAt        string         `json:"posted_at"`
	ReversesEntryID string         `json:"reverses_entry_id,omitempty"`
	Replayed        bool           `json:"replayed"`
	Lines           []lineResponse `json:"lines"`
}

func (h *Handler) Post(w http.ResponseWriter, r *http.Request) {
	var req postingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation failed", err.Error())
		return
	}
	input, err := h.toPostingInput(req)
	if err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation failed", err.Error())
		return
	}
	result, err := h.service.Post(r.Context(), input)
	if err != nil {
		h.metrics.ObservePosting("posting", postingOutcome(err))
		h.respondDomainError(w, r, err)
		return
	}
	h.metrics.ObservePosting("posting", "committed")
	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	httpx.JSON(w, status, toEntryResponse(result))
}

func (h *Handler) Reverse(w http.ResponseWriter, r *http.Request) {
	originalID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid entry id", err.Error())
		return
	}
	var req reversalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation failed", err.Error())
		return
	}
	postedAt, err := parseDate(req.PostedAt)
	if err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation failed", err.Error())
		return
	}
	input := ReversalInput{
		SourceEventID:   uuid.MustParse(req.SourceEventID),
		TenantID:        req.TenantID,
		OriginalEntryID: originalID,
		PostedAt:        postedAt,
		Reason:          req.Reason,
	}
	result, err := h.service.Reverse(r.Context(), input)
	if err != nil {
		h.metrics.ObservePosting("reversal", postingOutcome(err))
		h.respondDomainError(w, r, err)
		return
	}
	h.metrics.ObservePosting("reversal", "committed")
	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	httpx.JSON(w, status, toEntryResponse(result))
}

func (h *Handler) GetEntry(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid entry id", err.Error())
		return
	}
	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation failed", "tenant_id query parameter is required")
		return
	}
	entry, err := h.service.GetEntry(r.Context(), tenantID, id)
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toEntryResponse(PostingResult{Entry: entry}))
}

func (h *Handler) toPostingInput(req postingRequest) (PostingInput, error) {
	postedAt, err := parseDate(req.PostedAt)
	if err != nil {
		return PostingInput{}, err
	}
	input := PostingInput{
		SourceEventID: uuid.MustParse(req.SourceEventID),
		TenantID:      req.TenantID,
		SourceModule:  req.SourceModule,
		Description:   req.Description,
		Currency:      req.Currency,
		PostedAt:      postedAt,
	}
	for i, line := range req.Lines {
		debit, err := parseMinor(line.Debit, req.Currency)
		if err != nil {
			return PostingInput{}, fmt.Errorf("line %d debit: %w", i+1, err)
		}
		credit, err := parseMinor(line.Credit, req.Currency)
		if err != nil {
			return PostingInput{}, fmt.Errorf("line %d credit: %w", i+1, err)
		}
		input.Lines = append(input.Lines, PostingLineInput{
			AccountCode: line.AccountCode,
			DebitMinor:  debit,
			CreditMinor: credit,
			Memo:        line.Memo,
		})
	}
	return input, nil
}

// postingOutcome classifies a posting error for the outcome counter.
func postingOutcome(err error) string {
	var noPeriod *periods.NoPeriodForDateError
	var closed *periods.PeriodClosedError
	var origClosed *periods.OriginalPeriodClosedError
	switch {
	case errors.Is(err, shared.ErrUnbalanced),
		errors.Is(err, shared.ErrTooFewLines),
		errors.Is(err, shared.ErrInvalidCurrency),
		errors.Is(err, shared.ErrAccountNotFound),
		errors.Is(err, shared.ErrAccountInactive),
		errors.Is(err, shared.ErrAlreadyReversed),
		errors.Is(err, shared.ErrEntryNotFound),
		errors.As(err, &noPeriod),
		errors.As(err, &closed),
		errors.As(err, &origClosed):
		return "rejected"
	default:
		return "failed"
	}
}

func (h *Handler) respondDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var noPeriod *periods.NoPeriodForDateError
	var closed *periods.PeriodClosedError
	var origClosed *periods.OriginalPeriodClosedError
	switch {
	case errors.Is(err, shared.ErrUnbalanced),
		errors.Is(err, shared.ErrTooFewLines),
		errors.Is(err, shared.ErrInvalidCurrency),
		errors.Is(err, shared.ErrAccountNotFound),
		errors.Is(err, shared.ErrAccountInactive):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation failed", err.Error())
	case errors.As(err, &noPeriod), errors.As(err, &closed), errors.As(err, &origClosed),
		errors.Is(err, shared.ErrAlreadyReversed):
		httpx.Problem(w, http.StatusConflict, "Posting rejected", err.Error())
	case errors.Is(err, shared.ErrEntryNotFound):
		httpx.Problem(w, http.StatusNotFound, "Entry not found", err.Error())
	default:
		h.logger.ErrorContext(r.Context(), "posting failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal server error", "posting could not be completed")
	}
}

func toEntryResponse(result PostingResult) entryResponse {
	entry := result.Entry
	resp := entryResponse{
		ID:            entry.ID.String(),
		TenantID:      entry.TenantID,
		SourceEventID: entry.SourceEventID.String(),
		SourceModule:  entry.SourceModule,
		Description:   entry.Description,
		Currency:      entry.Currency,
		PostedAt:      entry.PostedAt.Format(time.RFC3339),
		Replayed:      result.Replayed,
	}
	if entry.ReversesEntryID != nil {
		resp.ReversesEntryID = entry.ReversesEntryID.String()
	}
	for _, line := range entry.Lines {
		resp.Lines = append(resp.Lines, lineResponse{
			LineNo:      line.LineNo,
			AccountCode: line.AccountCode,
			DebitMinor:  line.DebitMinor,
			CreditMinor: line.CreditMinor,
			Memo:        line.Memo,
		})
	}
	return resp
}

// zeroExponentCurrencies lists ISO 4217 codes without a minor unit.
var zeroExponentCurrencies = map[string]struct{}{
	"JPY": {}, "KRW": {}, "VND": {}, "CLP": {}, "ISK": {},
}

// parseMinor converts a major-unit decimal string such as "100.00" into minor
// units. Empty strings mean zero so callers can send only one side of a line.
func parseMinor(amount, currency string) (int64, error) {
	if strings.TrimSpace(amount) == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	exp := int32(2)
	if _, ok := zeroExponentCurrencies[currency]; ok {
		exp = 0
	}
	scaled := d.Shift(exp)
	if !scaled.IsInteger() {
		return 0, fmt.Errorf("amount %q has more precision than %s allows", amount, currency)
	}
	return scaled.IntPart(), nil
}

func parseDate(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid posted_at %q, want RFC3339 or YYYY-MM-DD", value)
	}
	return t, nil
}
