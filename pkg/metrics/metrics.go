// Package metrics defines the Prometheus collectors of the fuzzy search
// service and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	SearchQueriesTotal   *prometheus.CounterVec
	SearchLatency        *prometheus.HistogramVec
	SearchMatches        prometheus.Histogram
	CandidatesScanned    prometheus.Counter
	VectorFallbacks      prometheus.Counter
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	HaystackSize         prometheus.Gauge
	HaystackReloads      *prometheus.CounterVec
	CircuitBreakerState  *prometheus.GaugeVec
	RateLimitedTotal     prometheus.Counter
}

// New creates the collectors and registers them with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the collectors with reg. Tests pass a fresh
// prometheus.NewRegistry() so that repeated construction does not collide.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fuzzy_search_queries_total",
				Help: "Fuzzy searches by outcome (match, zero_result, error).",
			},
			[]string{"outcome"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fuzzy_search_latency_seconds",
				Help:    "Time to score and rank the haystack for one query.",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
			},
			[]string{"cache_status"},
		),
		SearchMatches: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "fuzzy_search_matches",
				Help:    "Number of candidates with a non-zero score per query.",
				Buckets: []float64{0, 1, 5, 10, 50, 100, 1000, 10000},
			},
		),
		CandidatesScanned: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "fuzzy_candidates_scanned_total",
				Help: "Total candidate strings scored.",
			},
		),
		VectorFallbacks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "fuzzy_vector_fallbacks_total",
				Help: "Scores recomputed on the scalar path after a vector fault.",
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of result cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of result cache misses.",
			},
		),
		HaystackSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "fuzzy_haystack_entries",
				Help: "Number of candidate strings in the active snapshot.",
			},
		),
		HaystackReloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fuzzy_haystack_reloads_total",
				Help: "Haystack reloads by status.",
			},
			[]string{"status"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
		RateLimitedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "rate_limited_requests_total",
				Help: "Requests rejected by the per-client rate limiter.",
			},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.SearchMatches,
		m.CandidatesScanned,
		m.VectorFallbacks,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.HaystackSize,
		m.HaystackReloads,
		m.CircuitBreakerState,
		m.RateLimitedTotal,
	)

	return m
}

// ObserveSearch records one completed search.
func (m *Metrics) ObserveSearch(cacheStatus string, elapsed time.Duration, scanned, matched int) {
	if m == nil {
		return
	}
	m.SearchLatency.WithLabelValues(cacheStatus).Observe(elapsed.Seconds())
	m.SearchMatches.Observe(float64(matched))
	if cacheStatus != "hit" {
		m.CandidatesScanned.Add(float64(scanned))
	}
	outcome := "match"
	if matched == 0 {
		outcome = "zero_result"
	}
	m.SearchQueriesTotal.WithLabelValues(outcome).Inc()
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
