// Package metrics defines the Prometheus collectors recorded during an
// experiment run. Collectors live on a private registry so a run can be
// exported to a node-exporter textfile as well as scraped.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the harness.
type Metrics struct {
	Registry *prometheus.Registry

	DocsIndexedTotal     prometheus.Counter
	IndexTerms           prometheus.Gauge
	IndexAvgDocLength    prometheus.Gauge
	IndexBuildSeconds    prometheus.Gauge
	QueriesScoredTotal   *prometheus.CounterVec
	QueriesSkippedTotal  prometheus.Counter
	ScoringLatency       *prometheus.HistogramVec
	ResultsPerQuery      *prometheus.HistogramVec
	EvaluationRunsTotal  *prometheus.CounterVec
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	EventsPublishedTotal *prometheus.CounterVec
	PhaseDurationSeconds *prometheus.GaugeVec
}

// New creates all collectors and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		DocsIndexedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "harness_docs_indexed_total",
				Help: "Total documents added to the index.",
			},
		),
		IndexTerms: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "harness_index_terms",
				Help: "Number of distinct terms in the index.",
			},
		),
		IndexAvgDocLength: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "harness_index_avg_doc_length",
				Help: "Average document length in terms.",
			},
		),
		IndexBuildSeconds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "harness_index_build_seconds",
				Help: "Wall time of the index build phase.",
			},
		),
		QueriesScoredTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harness_queries_scored_total",
				Help: "Queries ranked, by model.",
			},
			[]string{"model"},
		),
		QueriesSkippedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "harness_queries_skipped_total",
				Help: "Queries skipped because they could not be parsed.",
			},
		),
		ScoringLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harness_scoring_latency_seconds",
				Help:    "Time to rank one query under one model.",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
			},
			[]string{"model"},
		),
		ResultsPerQuery: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harness_results_per_query",
				Help:    "Number of ranked results produced per query.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
			},
			[]string{"model"},
		),
		EvaluationRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harness_evaluation_runs_total",
				Help: "Evaluation tool invocations by model and status.",
			},
			[]string{"model", "status"},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "harness_cache_hits_total",
				Help: "Total number of ranking cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "harness_cache_misses_total",
				Help: "Total number of ranking cache misses.",
			},
		),
		EventsPublishedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harness_events_published_total",
				Help: "Run lifecycle events published, by type and status.",
			},
			[]string{"type", "status"},
		),
		PhaseDurationSeconds: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "harness_phase_duration_seconds",
				Help: "Wall time of each pipeline phase.",
			},
			[]string{"phase"},
		),
	}

	m.Registry.MustRegister(
		m.DocsIndexedTotal,
		m.IndexTerms,
		m.IndexAvgDocLength,
		m.IndexBuildSeconds,
		m.QueriesScoredTotal,
		m.QueriesSkippedTotal,
		m.ScoringLatency,
		m.ResultsPerQuery,
		m.EvaluationRunsTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.EventsPublishedTotal,
		m.PhaseDurationSeconds,
	)

	return m
}

// Handler returns the scrape handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// WriteTextfile writes every collector in the node-exporter textfile format.
// The file is replaced atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return fmt.Errorf("writing metrics textfile %s: %w", path, err)
	}
	return nil
}
