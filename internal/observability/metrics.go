package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the application.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	entriesPosted   *prometheus.CounterVec
	entriesApproved *prometheus.CounterVec
	unbalancedSeen  prometheus.Counter
}

// NewMetrics initialises the registry and base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "andino_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "andino_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	posted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "andino_ledger_entries_posted_total",
		Help: "Journal entries created, by source type.",
	}, []string{"source_type"})
	approved := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "andino_ledger_entries_approved_total",
		Help: "Journal entries approved, by entry type.",
	}, []string{"entry_type"})
	unbalanced := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "andino_ledger_unbalanced_entries_total",
		Help: "Approved entries found outside the balance tolerance by the integrity scan.",
	})
	registry.MustRegister(requests, duration, posted, approved, unbalanced)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		entriesPosted:   posted,
		entriesApproved: approved,
		unbalancedSeen:  unbalanced,
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

// EntryPosted increments the posted-entries counter.
func (m *Metrics) EntryPosted(sourceType string) {
	if m == nil {
		return
	}
	if sourceType == "" {
		sourceType = "manual"
	}
	m.entriesPosted.WithLabelValues(sourceType).Inc()
}

// EntryApproved increments the approved-entries counter.
func (m *Metrics) EntryApproved(entryType string) {
	if m == nil {
		return
	}
	m.entriesApproved.WithLabelValues(entryType).Inc()
}

// UnbalancedEntryFound increments the integrity violation counter.
func (m *Metrics) UnbalancedEntryFound() {
	if m == nil {
		return
	}
	m.unbalancedSeen.Inc()
}

// Middleware records metrics for every HTTP request.
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
