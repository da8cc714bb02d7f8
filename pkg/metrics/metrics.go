// Package metrics defines the Prometheus metric collectors used by the
// service and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	ParagraphsStored     prometheus.Counter
	IndexWritesTotal     *prometheus.CounterVec
	SearchesTotal        *prometheus.CounterVec
	SearchLatency        *prometheus.HistogramVec
	TopWordsTotal        *prometheus.CounterVec
	RebuildsTotal        *prometheus.CounterVec
	RebuildDuration      prometheus.Histogram
	CacheAvailable       prometheus.Gauge
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
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
		ParagraphsStored: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "paragraphs_stored_total",
				Help: "Total paragraphs persisted to the authoritative store.",
			},
		),
		IndexWritesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_writes_total",
				Help: "Total index-cache write operations by status (ok, failed).",
			},
			[]string{"status"},
		),
		SearchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "searches_total",
				Help: "Total search requests by path (cache, scan) and operator.",
			},
			[]string{"path", "operator"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_latency_seconds",
				Help:    "Search latency in seconds by path (cache, scan).",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"path"},
		),
		TopWordsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "top_words_requests_total",
				Help: "Total top-words requests by path (cache, scan).",
			},
			[]string{"path"},
		),
		RebuildsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_rebuilds_total",
				Help: "Total index rebuilds by status (ok, failed).",
			},
			[]string{"status"},
		),
		RebuildDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "index_rebuild_duration_seconds",
				Help:    "Duration of full index rebuilds in seconds.",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
			},
		),
		CacheAvailable: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "index_cache_available",
				Help: "Whether the index cache backend is reachable (1) or not (0).",
			},
		),
	}

	prometheus.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.ParagraphsStored,
		m.IndexWritesTotal,
		m.SearchesTotal,
		m.SearchLatency,
		m.TopWordsTotal,
		m.RebuildsTotal,
		m.RebuildDuration,
		m.CacheAvailable,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
