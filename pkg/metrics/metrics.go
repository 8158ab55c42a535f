// Package metrics defines the Prometheus collectors for indexing,
// similarity queries, the cache and the Kafka pipeline, and serves them for
// scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	HTTPRequestsTotal      *prometheus.CounterVec
	HTTPRequestDuration    *prometheus.HistogramVec
	HTTPRequestsInFlight   prometheus.Gauge
	DocumentsIndexedTotal  prometheus.Counter
	VocabularySize         prometheus.Gauge
	SimilarityQueriesTotal *prometheus.CounterVec
	SimilarityLatency      prometheus.Histogram
	CacheHitsTotal         prometheus.Counter
	CacheMissesTotal       prometheus.Counter
	SnapshotsTotal         *prometheus.CounterVec
	IngestMessagesTotal    *prometheus.CounterVec
	CircuitBreakerState    *prometheus.GaugeVec
}

// New creates all collectors and registers them with reg. A nil reg uses
// the default Prometheus registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
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
		DocumentsIndexedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "termvec_documents_indexed_total",
				Help: "Total documents indexed.",
			},
		),
		VocabularySize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "termvec_vocabulary_size",
				Help: "Number of distinct tokens in the dictionary.",
			},
		),
		SimilarityQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "termvec_similarity_queries_total",
				Help: "Similarity queries by result (ok, cached, error).",
			},
			[]string{"result"},
		),
		SimilarityLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "termvec_similarity_latency_seconds",
				Help:    "Similarity query latency in seconds.",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of cache misses.",
			},
		),
		SnapshotsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "termvec_snapshots_total",
				Help: "Corpus snapshots written by status.",
			},
			[]string{"status"},
		),
		IngestMessagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "termvec_ingest_messages_total",
				Help: "Kafka document events processed by status.",
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
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.DocumentsIndexedTotal,
		m.VocabularySize,
		m.SimilarityQueriesTotal,
		m.SimilarityLatency,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.SnapshotsTotal,
		m.IngestMessagesTotal,
		m.CircuitBreakerState,
	)

	return m
}

// NewRegistry returns a registry that already carries the Go runtime and
// process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler returns the scrape handler for g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{ErrorHandling: promhttp.ContinueOnError})
}
