package balances

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/ledgercore/ledgercore/internal/gl/shared"
	"github.com/ledgercore/ledgercore/internal/platform/httpx"
)

// Handler wires balance read endpoints. Trial balances are cached in Redis
// with a short TTL and deduplicated in-flight with singleflight so a reporting
// burst does not fan out identical aggregate queries.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	cache    *redis.Client
	cacheTTL time.Duration
	group    singleflight.Group
}

// NewHandler constructs a Handler instance. cache may be nil, which disables
// trial-balance caching.
func NewHandler(logger *slog.Logger, service *Service, cache *redis.Client, cacheTTL time.Duration) *Handler {
	return &Handler{logger: logger, service: service, cache: cache, cacheTTL: cacheTTL}
}

// MountRoutes registers balance endpoints on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/balances", h.GetBalance)
	r.Get("/balances/reconcile", h.Reconcile)
	r.Get("/periods/{id}/trial-balance", h.TrialBalance)
}

type balanceResponse struct {
	TenantID         string `json:"tenant_id"`
	PeriodID         string `json:"period_id"`
	AccountCode      string `json:"account_code"`
	Currency         string `json:"currency"`
	DebitTotalMinor  int64  `json:"debit_total_minor"`
	CreditTotalMinor int64  `json:"credit_total_minor"`
	NetBalanceMinor  int64  `json:"net_balance_minor"`
	UpdatedAt        string `json:"updated_at"`
}

type trialBalanceRowResponse struct {
	AccountCode      string `json:"account_code"`
	AccountName      string `json:"account_name"`
	AccountType      string `json:"account_type"`
	NormalBalance    string `json:"normal_balance"`
	Currency         string `json:"currency"`
	DebitTotalMinor  int64  `json:"debit_total_minor"`
	CreditTotalMinor int64  `json:"credit_total_minor"`
	NetBalanceMinor  int64  `json:"net_balance_minor"`
}

type trialBalanceResponse struct {
	TenantID          string                    `json:"tenant_id"`
	PeriodID          string                    `json:"period_id"`
	Rows              []trialBalanceRowResponse `json:"rows"`
	TotalDebitsMinor  int64                     `json:"total_debits_minor"`
	TotalCreditsMinor int64                     `json:"total_credits_minor"`
	Balanced          bool                      `json:"balanced"`
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	periodID, err := uuid.Parse(q.Get("period_id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid period_id", err.Error())
		return
	}
	grain := Grain{
		TenantID:    q.Get("tenant_id"),
		PeriodID:    periodID,
		AccountCode: q.Get("account_code"),
		Currency:    q.Get("currency"),
	}
	if grain.TenantID == "" || grain.AccountCode == "" || grain.Currency == "" {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation failed",
			"tenant_id, account_code and currency query parameters are required")
		return
	}
	snap, err := h.service.GetBalance(r.Context(), grain)
	if err != nil {
		if errors.Is(err, shared.ErrBalanceNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Balance not found", err.Error())
			return
		}
		h.logger.ErrorContext(r.Context(), "get balance", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal server error", "balance lookup failed")
		return
	}
	httpx.JSON(w, http.StatusOK, balanceResponse{
		TenantID:         snap.TenantID,
		PeriodID:         snap.PeriodID.String(),
		AccountCode:      snap.AccountCode,
		Currency:         snap.Currency,
		DebitTotalMinor:  snap.DebitTotalMinor,
		CreditTotalMinor: snap.CreditTotalMinor,
		NetBalanceMinor:  snap.NetBalanceMinor,
		UpdatedAt:        snap.UpdatedAt.Format(time.RFC3339),
	})
}

type reconcileResponse struct {
	TenantID    string `json:"tenant_id"`
	PeriodID    string `json:"period_id"`
	AccountCode string `json:"account_code"`
	Currency    string `json:"currency"`
	Consistent  bool   `json:"consistent"`
	Detail      string `json:"detail,omitempty"`
}

// Reconcile replays the journal for one grain and reports whether the stored
// snapshot matches. Divergence is reported, never auto-corrected.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	periodID, err := uuid.Parse(q.Get("period_id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid period_id", err.Error())
		return
	}
	grain := Grain{
		TenantID:    q.Get("tenant_id"),
		PeriodID:    periodID,
		AccountCode: q.Get("account_code"),
		Currency:    q.Get("currency"),
	}
	if grain.TenantID == "" || grain.AccountCode == "" || grain.Currency == "" {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation failed",
			"tenant_id, account_code and currency query parameters are required")
		return
	}
	resp := reconcileResponse{
		TenantID:    grain.TenantID,
		PeriodID:    grain.PeriodID.String(),
		AccountCode: grain.AccountCode,
		Currency:    grain.Currency,
		Consistent:  true,
	}
	if err := h.service.Reconcile(r.Context(), grain); err != nil {
		var drift *DriftError
		switch {
		case errors.Is(err, shared.ErrBalanceNotFound):
			httpx.Problem(w, http.StatusNotFound, "Balance not found", err.Error())
			return
		case errors.Is(err, shared.ErrPeriodNotFound):
			httpx.Problem(w, http.StatusNotFound, "Period not found", err.Error())
			return
		case errors.As(err, &drift):
			resp.Consistent = false
			resp.Detail = err.Error()
			h.logger.ErrorContext(r.Context(), "balance reconciliation divergence",
				slog.String("tenant_id", grain.TenantID),
				slog.String("account_code", grain.AccountCode),
				slog.Any("error", err))
		default:
			h.logger.ErrorContext(r.Context(), "reconcile balance", slog.Any("error", err))
			httpx.Problem(w, http.StatusInternalServerError, "Internal server error", "reconciliation failed")
			return
		}
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) TrialBalance(w http.ResponseWriter, r *http.Request) {
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
	currency := r.URL.Query().Get("currency")

	resp, err := h.trialBalanceCached(r.Context(), tenantID, periodID, currency)
	if err != nil {
		if errors.Is(err, shared.ErrPeriodNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Period not found", err.Error())
			return
		}
		h.logger.ErrorContext(r.Context(), "trial balance", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal server error", "trial balance failed")
		return
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) trialBalanceCached(ctx context.Context, tenantID string, periodID uuid.UUID, currency string) (trialBalanceResponse, error) {
	key := fmt.Sprintf("gl:tb:%s:%s:%s", tenantID, periodID, currency)
	if h.cache != nil {
		if raw, err := h.cache.Get(ctx, key).Bytes(); err == nil {
			var cached trialBalanceResponse
			if err := json.Unmarshal(raw, &cached); err == nil {
				return cached, nil
			}
		}
	}
	v, err, _ := h.group.Do(key, func() (any, error) {
		// The flight outlives the first caller. Detach from its context so a
		// cancelled request does not fail every waiter sharing the key.
		ctx := context.WithoutCancel(ctx)
		rows, err := h.service.TrialBalance(ctx, tenantID, periodID, currency)
		if err != nil {
			return trialBalanceResponse{}, err
		}
		resp := buildTrialBalanceResponse(tenantID, periodID, rows)
		if h.cache != nil {
			if raw, err := json.Marshal(resp); err == nil {
				if err := h.cache.Set(ctx, key, raw, h.cacheTTL).Err(); err != nil {
					h.logger.WarnContext(ctx, "trial balance cache write failed", slog.Any("error", err))
				}
			}
		}
		return resp, nil
	})
	if err != nil {
		return trialBalanceResponse{}, err
	}
	return v.(trialBalanceResponse), nil
}

func buildTrialBalanceResponse(tenantID string, periodID uuid.UUID, rows []TrialBalanceRow) trialBalanceResponse {
	resp := trialBalanceResponse{
		TenantID: tenantID,
		PeriodID: periodID.String(),
		Rows:     make([]trialBalanceRowResponse, 0, len(rows)),
	}
	for _, row := range rows {
		resp.Rows = append(resp.Rows, trialBalanceRowResponse{
			AccountCode:      row.AccountCode,
			AccountName:      row.AccountName,
			AccountType:      string(row.AccountType),
			NormalBalance:    string(row.NormalBalance),
			Currency:         row.Currency,
			DebitTotalMinor:  row.DebitTotalMinor,
			CreditTotalMinor: row.CreditTotalMinor,
			NetBalanceMinor:  row.NetBalanceMinor,
		})
	}
	for _, row := range rows {
		resp.TotalDebitsMinor += row.DebitTotalMinor
		resp.TotalCreditsMinor += row.CreditTotalMinor
	}
	resp.Balanced = resp.TotalDebitsMinor == resp.TotalCreditsMinor
	return resp
}
