// Package metrics exposes scoring counters and histograms to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prediction outcomes recorded by RecordPrediction.
const (
	OutcomeClear       = "clear"
	OutcomeFlagged     = "flagged"
	OutcomeInvalid     = "invalid"
	OutcomeUnavailable = "unavailable"
	OutcomeBusy        = "busy"
	OutcomeDegraded    = "degraded"
	OutcomeError       = "error"
)

// Collector owns a private registry so tests and multiple servers never
// collide on the default one.
type Collector struct {
	registry            *prometheus.Registry
	predictions         *prometheus.CounterVec
	predictionDuration  prometheus.Histogram
	probability         prometheus.Histogram
	persistenceRetries  prometheus.Counter
	persistenceFailures prometheus.Counter
	cacheHits           prometheus.Counter
}

// NewCollector creates a Collector with all scoring metrics registered.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Collector{
		registry: registry,
		predictions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fraud_predictions_total",
			Help: "Scoring requests by outcome",
		}, []string{"outcome"}),
		predictionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "fraud_prediction_duration_seconds",
			Help:    "Time taken to serve a scoring request",
			Buckets: prometheus.DefBuckets,
		}),
		probability: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "fraud_probability_distribution",
			Help:    "Distribution of fraud probabilities",
			Buckets: prometheus.LinearBuckets(0.1, 0.1, 10),
		}),
		persistenceRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "fraud_persistence_retries_total",
			Help: "Retried fraud record writes",
		}),
		persistenceFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "fraud_persistence_failures_total",
			Help: "Fraud record writes that failed after all retries",
		}),
		cacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "fraud_verdict_cache_hits_total",
			Help: "Verdicts served from the cache",
		}),
	}
}

// RecordPrediction counts one request and observes its latency.
func (c *Collector) RecordPrediction(outcome string, duration time.Duration) {
	c.predictions.WithLabelValues(outcome).Inc()
	c.predictionDuration.Observe(duration.Seconds())
}

// ObserveProbability records a scored probability.
func (c *Collector) ObserveProbability(p float64) {
	c.probability.Observe(p)
}

// PersistenceRetry counts one retried write.
func (c *Collector) PersistenceRetry() {
	c.persistenceRetries.Inc()
}

// PersistenceFailure counts one write abandoned after retries.
func (c *Collector) PersistenceFailure() {
	c.persistenceFailures.Inc()
}

// CacheHit counts one verdict served from the cache.
func (c *Collector) CacheHit() {
	c.cacheHits.Inc()
}

// RegisterQueue exposes the scoring queue: a depth gauge sampled from depth on
// every scrape and a constant capacity gauge.
func (c *Collector) RegisterQueue(depth func() int, capacity int) {
	factory := promauto.With(c.registry)
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "fraud_scoring_queue_depth",
		Help: "Scoring tasks waiting for a worker",
	}, func() float64 { return float64(depth()) })
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "fraud_scoring_queue_capacity",
		Help: "Scoring tasks that can wait before requests are refused as busy",
	}, func() float64 { return float64(capacity) })
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
