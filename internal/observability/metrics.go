package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the process.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	CacheHits        prometheus.Counter
	CacheMisses      prometheus.Counter
	CacheEvictions   prometheus.Counter
	EventsPublished  *prometheus.CounterVec
	EventsApplied    *prometheus.CounterVec
	EventsDiscarded  *prometheus.CounterVec
	PoolExhausted    prometheus.Counter
	SessionConflicts prometheus.Counter
}

// NewMetrics initializes the registry and the base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meridian_http_requests_total",
		Help: "HTTP requests by route and status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "meridian_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meridian_state_cache_hits_total",
		Help: "Reads served from the resident state cache.",
	})
	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meridian_state_cache_misses_total",
		Help: "Reads that fell back to the store.",
	})
	cacheEvictions := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meridian_state_cache_evictions_total",
		Help: "Idle entries dropped from the state cache.",
	})
	published := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meridian_events_published_total",
		Help: "Events published to the broker by topic.",
	}, []string{"topic"})
	applied := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meridian_events_applied_total",
		Help: "Events applied to the local cache by topic.",
	}, []string{"topic"})
	discarded := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meridian_events_discarded_total",
		Help: "Duplicate or stale events discarded by topic.",
	}, []string{"topic"})
	poolExhausted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meridian_pool_exhausted_total",
		Help: "Store pool acquisitions that timed out.",
	})
	sessionConflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meridian_session_conflicts_total",
		Help: "Disconnects that referenced a superseded session.",
	})
	registry.MustRegister(requests, duration, cacheHits, cacheMisses, cacheEvictions,
		published, applied, discarded, poolExhausted, sessionConflicts)
	return &Metrics{
		registry:         registry,
		handler:          promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:    requests,
		requestDuration:  duration,
		CacheHits:        cacheHits,
		CacheMisses:      cacheMisses,
		CacheEvictions:   cacheEvictions,
		EventsPublished:  published,
		EventsApplied:    applied,
		EventsDiscarded:  discarded,
		PoolExhausted:    poolExhausted,
		SessionConflicts: sessionConflicts,
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
