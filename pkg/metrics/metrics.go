// Package metrics defines the Prometheus metric collectors used by the
// embedding service and exposes an HTTP handler for scraping.
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
	TrainInstancesTotal  prometheus.Counter
	TrainBurstsTotal     *prometheus.CounterVec
	TrainBurstDuration   prometheus.Histogram
	TrainEpochsTotal     prometheus.Counter
	LearningRate         prometheus.Gauge
	VocabularySize       prometheus.Gauge
	RankingsTotal        prometheus.Counter
	RankingDuration      prometheus.Histogram
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	SentencesIngested    prometheus.Counter
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
		TrainInstancesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "train_instances_total",
				Help: "Total training instances (center-word updates) processed.",
			},
		),
		TrainBurstsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "train_bursts_total",
				Help: "Total training bursts by the breakpoint that ended them (deadline, instances, watched).",
			},
			[]string{"breakpoint"},
		),
		TrainBurstDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "train_burst_duration_seconds",
				Help:    "Wall-clock duration of training bursts in seconds.",
				Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
		),
		TrainEpochsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "train_epochs_total",
				Help: "Total completed passes over the corpus.",
			},
		),
		LearningRate: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "train_learning_rate",
				Help: "Current annealed learning rate.",
			},
		),
		VocabularySize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "vocabulary_size",
				Help: "Number of vocabulary entries including the null sentinel.",
			},
		),
		RankingsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "rankings_computed_total",
				Help: "Total similarity rankings computed.",
			},
		),
		RankingDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ranking_duration_seconds",
				Help:    "Latency of full-vocabulary similarity ranking in seconds.",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of ranking cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of ranking cache misses.",
			},
		),
		SentencesIngested: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "corpus_sentences_ingested_total",
				Help: "Total corpus sentences accepted for training.",
			},
		),
	}

	prometheus.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.TrainInstancesTotal,
		m.TrainBurstsTotal,
		m.TrainBurstDuration,
		m.TrainEpochsTotal,
		m.LearningRate,
		m.VocabularySize,
		m.RankingsTotal,
		m.RankingDuration,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.SentencesIngested,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
