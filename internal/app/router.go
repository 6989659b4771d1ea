package app

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ledgercore/ledgercore/internal/gl/balances"
	"github.com/ledgercore/ledgercore/internal/gl/journals"
	"github.com/ledgercore/ledgercore/internal/gl/periods"
	"github.com/ledgercore/ledgercore/internal/gl/reports"
	glrouter "github.com/ledgercore/ledgercore/internal/gl/router"
	"github.com/ledgercore/ledgercore/internal/observability"
	"github.com/ledgercore/ledgercore/internal/platform/httpx"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	JournalsHandler *journals.Handler
	BalancesHandler *balances.Handler
	PeriodsHandler  *periods.Handler
	ReportsHandler  *reports.Handler
	DeadLetters     glrouter.DeadLetterStore
	Pool            *pgxpool.Pool
	Metrics         *observability.Metrics
}

// NewRouter constructs the chi.Router with ledgercore defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if params.Pool != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := params.Pool.Ping(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"degraded","database":"unreachable"}`))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api/gl", func(r chi.Router) {
		if params.JournalsHandler != nil {
			params.JournalsHandler.MountRoutes(r)
		}
		if params.BalancesHandler != nil {
			params.BalancesHandler.MountRoutes(r)
		}
		if params.PeriodsHandler != nil {
			params.PeriodsHandler.MountRoutes(r)
		}
		if params.ReportsHandler != nil {
			params.ReportsHandler.MountRoutes(r)
		}
		if params.DeadLetters != nil {
			r.Get("/dead-letters", deadLetterList(params.Logger, params.DeadLetters))
		}
	})

	return r
}

// deadLetterList serves the operator view of dead-lettered events so failed
// postings can be inspected and replayed after root-cause resolution.
func deadLetterList(logger *slog.Logger, store glrouter.DeadLetterStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID := r.URL.Query().Get("tenant_id")
		if tenantID == "" {
			httpx.Problem(w, http.StatusUnprocessableEntity, "Validation failed", "tenant_id query parameter is required")
			return
		}
		limit := 50
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 || parsed > 500 {
				httpx.Problem(w, http.StatusUnprocessableEntity, "Validation failed", "limit must be an integer between 1 and 500")
				return
			}
			limit = parsed
		}
		events, err := store.List(r.Context(), tenantID, limit)
		if err != nil {
			logger.ErrorContext(r.Context(), "list dead letters", slog.Any("error", err))
			httpx.Problem(w, http.StatusInternalServerError, "Internal server error", "dead letters unavailable")
			return
		}
		if events == nil {
			events = []glrouter.FailedEvent{}
		}
		httpx.JSON(w, http.StatusOK, events)
	}
}
