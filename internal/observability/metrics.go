package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the balance engine.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	postingsTotal   *prometheus.CounterVec
	retriesTotal    *prometheus.CounterVec
	deadLetters     prometheus.Counter
}

// NewMetrics initialises the registry and base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledgercore_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledgercore_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	postings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledgercore_postings_total",
		Help: "Posting pipeline outcomes by kind and result.",
	}, []string{"kind", "result"})
	retries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledgercore_retries_total",
		Help: "Retry attempts by subject.",
	}, []string{"subject"})
	deadLetters := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ledgercore_dead_letters_total",
		Help: "Events routed to the dead-letter store.",
	})
	registry.MustRegister(requests, duration, postings, retries, deadLetters)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		postingsTotal:   postings,
		retriesTotal:    retries,
		deadLetters:     deadLetters,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records request metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// ObservePosting records a posting pipeline outcome. Kind is "posting" or
// "reversal"; result is "committed", "rejected", or "failed".
func (m *Metrics) ObservePosting(kind, result string) {
	if m == nil {
		return
	}
	m.postingsTotal.WithLabelValues(kind, result).Inc()
}

// ObserveRetry records a retry attempt for a subject.
func (m *Metrics) ObserveRetry(subject string) {
	if m == nil {
		return
	}
	m.retriesTotal.WithLabelValues(subject).Inc()
}

// ObserveDeadLetter records an event routed to the dead-letter store.
func (m *Metrics) ObserveDeadLetter() {
	if m == nil {
		return
	}
	m.deadLetters.Inc()
}

// Registerer exposes the registry for custom metric registration.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
