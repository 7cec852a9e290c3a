// Package metrics exposes Prometheus counters for the artifact pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds all Prometheus metrics for the application.
// A nil *Collector is valid and records nothing.
type Collector struct {
	// Registry for this collector instance
	registry *prometheus.Registry

	// Cache metrics
	cacheHits   prometheus.Counter
	cacheMisses prometheus.Counter

	// Renderer metrics
	renders        *prometheus.CounterVec
	renderDuration prometheus.Histogram
	slotsInUse     *prometheus.GaugeVec

	// Delivery metrics
	deliveries       *prometheus.CounterVec
	deliveryAttempts prometheus.Counter

	// Queue metrics
	jobs *prometheus.CounterVec

	// Extractor metrics
	fallbacks *prometheus.CounterVec
}

// NewCollector creates a collector with its own registry under the given namespace
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of artifact cache hits",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of artifact cache misses",
		}),
		renders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "renders_total",
			Help:      "Total number of document renders by outcome",
		}, []string{"outcome"}),
		renderDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "render_duration_seconds",
			Help:      "Document render duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		slotsInUse: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "limiter_slots_in_use",
			Help:      "Limiter slots currently held per resource",
		}, []string{"resource"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Total number of email deliveries by outcome",
		}, []string{"outcome"}),
		deliveryAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_attempts_total",
			Help:      "Total number of SMTP send attempts",
		}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Total number of queue jobs reaching a terminal state",
		}, []string{"type", "state"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extractor_fallbacks_total",
			Help:      "Total number of structured-text fallbacks by kind",
		}, []string{"kind"}),
	}

	// Register all metrics with the registry
	registry.MustRegister(
		c.cacheHits,
		c.cacheMisses,
		c.renders,
		c.renderDuration,
		c.slotsInUse,
		c.deliveries,
		c.deliveryAttempts,
		c.jobs,
		c.fallbacks,
	)

	return c
}

// Registry returns the private registry
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) CacheHit() {
	if c != nil {
		c.cacheHits.Inc()
	}
}

func (c *Collector) CacheMiss() {
	if c != nil {
		c.cacheMisses.Inc()
	}
}

// RenderFinished records one render outcome ("success" or "error") and its duration
func (c *Collector) RenderFinished(outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.renders.WithLabelValues(outcome).Inc()
	c.renderDuration.Observe(d.Seconds())
}

func (c *Collector) SlotsInUse(resource string, n int) {
	if c != nil {
		c.slotsInUse.WithLabelValues(resource).Set(float64(n))
	}
}

func (c *Collector) DeliveryAttempt() {
	if c != nil {
		c.deliveryAttempts.Inc()
	}
}

func (c *Collector) DeliveryFinished(outcome string) {
	if c != nil {
		c.deliveries.WithLabelValues(outcome).Inc()
	}
}

func (c *Collector) JobFinished(jobType, state string) {
	if c != nil {
		c.jobs.WithLabelValues(jobType, state).Inc()
	}
}

func (c *Collector) ExtractorFallback(kind string) {
	if c != nil {
		c.fallbacks.WithLabelValues(kind).Inc()
	}
}
