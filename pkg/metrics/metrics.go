// Package metrics defines the Prometheus collectors for the index build, the
// update path and the search API, and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	SlicesTotal          *prometheus.CounterVec
	SliceDuration        prometheus.Histogram
	PostingsInserted     prometheus.Counter
	RecordsIndexedTotal  *prometheus.CounterVec
	BuildProgress        prometheus.Gauge
	BuildFailed          prometheus.Gauge
	UpdatesTotal         *prometheus.CounterVec
	ChangeEventsTotal    *prometheus.CounterVec
	PlansTotal           *prometheus.CounterVec
	SearchQueriesTotal   *prometheus.CounterVec
	SearchLatency        *prometheus.HistogramVec
	SearchCandidateCount prometheus.Histogram
	CircuitBreakerState  *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg. Binaries pass
// prometheus.DefaultRegisterer; tests pass a fresh registry.
func New(reg prometheus.Registerer) *Metrics {
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
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		SlicesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "textdex_slices_total",
				Help: "Batch slices processed by outcome (ok, read_error, write_error, abandoned).",
			},
			[]string{"status"},
		),
		SliceDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "textdex_slice_duration_seconds",
				Help:    "Time spent indexing one batch slice.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
		),
		PostingsInserted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "textdex_postings_inserted_total",
				Help: "Postings rows newly inserted.",
			},
		),
		RecordsIndexedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "textdex_records_indexed_total",
				Help: "Records whose text was tokenized, by path (batch, update).",
			},
			[]string{"path"},
		),
		BuildProgress: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "textdex_build_progress_ratio",
				Help: "Fraction of the record id range already indexed.",
			},
		),
		BuildFailed: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "textdex_build_failed",
				Help: "1 while the batch build is halted on an error.",
			},
		),
		UpdatesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "textdex_updates_total",
				Help: "Incremental update calls by outcome (reindexed, deferred, error).",
			},
			[]string{"status"},
		),
		ChangeEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "textdex_change_events_total",
				Help: "Record change events by stage and outcome.",
			},
			[]string{"stage", "status"},
		),
		PlansTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "textdex_plans_total",
				Help: "Query plans produced by kind (prefix, single, intersect).",
			},
			[]string{"kind"},
		),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_queries_total",
				Help: "Total candidate lookups by result type (hit, zero_result, not_ready, error).",
			},
			[]string{"result_type"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_latency_seconds",
				Help:    "Candidate lookup latency in seconds by plan kind.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"kind"},
		),
		SearchCandidateCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_candidates_count",
				Help:    "Number of candidate records returned per lookup.",
				Buckets: []float64{0, 1, 5, 10, 50, 100, 500, 1000, 5000},
			},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.SlicesTotal,
		m.SliceDuration,
		m.PostingsInserted,
		m.RecordsIndexedTotal,
		m.BuildProgress,
		m.BuildFailed,
		m.UpdatesTotal,
		m.ChangeEventsTotal,
		m.PlansTotal,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.SearchCandidateCount,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the scrape handler for g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
