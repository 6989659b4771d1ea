package periods

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/ledgercore/ledgercore/internal/gl/shared"
	"github.com/ledgercore/ledgercore/internal/platform/httpx"
)

// Handler wires period close and verification endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers period endpoints on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/periods/{id}/close", h.Close)
	r.Get("/periods/{id}/close-verify", h.Verify)
}

type closeRequest struct {
	TenantID string `json:"tenant_id" validate:"required"`
	ClosedBy string `json:"closed_by" validate:"required,max=200"`
	Reason   string `json:"reason" validate:"max=500"`
}

type closeResponse struct {
	PeriodID      string `json:"period_id"`
	TenantID      string `json:"tenant_id"`
	ClosedAt      string `json:"closed_at"`
	ClosedBy      string `json:"closed_by"`
	CloseReason   string `json:"close_reason,omitempty"`
	CloseHash     string `json:"close_hash"`
	AlreadyClosed bool   `json:"already_closed"`
}

func (h *Handler) Close(w http.ResponseWriter, r *http.Request) {
	periodID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid period id", err.Error())
		return
	}
	var req closeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation failed", err.Error())
		return
	}
	result, err := h.service.Close(r.Context(), CloseInput{
		TenantID: req.TenantID,
		PeriodID: periodID,
		ClosedBy: req.ClosedBy,
		Reason:   req.Reason,
	})
	if err != nil {
		if errors.Is(err, shared.ErrPeriodNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Period not found", err.Error())
			return
		}
		h.logger.ErrorContext(r.Context(), "close period", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal server error", "period close failed")
		return
	}
	status := http.StatusCreated
	if result.AlreadyClosed {
		status = http.StatusOK
	}
	httpx.JSON(w, status, closeResponse{
		PeriodID:      result.PeriodID.String(),
		TenantID:      result.TenantID,
		ClosedAt:      result.ClosedAt.Format(time.RFC3339),
		ClosedBy:      result.ClosedBy,
		CloseReason:   result.CloseReason,
		CloseHash:     result.CloseHash,
		AlreadyClosed: result.AlreadyClosed,
	})
}

type verifyResponse struct {
	PeriodID    string `json:"period_id"`
	HashVersion int    `json:"hash_version"`
	Verified    bool   `json:"verified"`
	Detail      string `json:"detail,omitempty"`
}

func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	periodID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid period id", err.Error())
		return
	}
	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation failed", "tenant_id query parameter is required")
		return
	}
	err = h.service.VerifyCloseHash(r.Context(), tenantID, periodID)
	switch {
	case err == nil:
		httpx.JSON(w, http.StatusOK, verifyResponse{PeriodID: periodID.String(), HashVersion: CloseHashVersion, Verified: true})
	case errors.Is(err, shared.ErrPeriodNotFound):
		httpx.Problem(w, http.StatusNotFound, "Period not found", err.Error())
	default:
		var notClosed *PeriodNotClosedError
		var mismatch *HashMismatchError
		if errors.As(err, &notClosed) {
			httpx.Problem(w, http.StatusConflict, "Period not closed", err.Error())
			return
		}
		if errors.As(err, &mismatch) {
			httpx.JSON(w, http.StatusOK, verifyResponse{PeriodID: periodID.String(), HashVersion: CloseHashVersion, Verified: false, Detail: err.Error()})
			return
		}
		h.logger.ErrorContext(r.Context(), "verify close hash", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal server error", "verification failed")
	}
}
