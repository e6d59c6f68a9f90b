// Package metrics exposes Prometheus metrics for caches, remote calls and HTTP traffic.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tubepulse"

// Collector holds all Prometheus metrics for the application.
type Collector struct {
	registry *prometheus.Registry

	CacheHits      *prometheus.CounterVec
	CacheMisses    *prometheus.CounterVec
	CacheEvictions *prometheus.CounterVec

	RemoteCalls    *prometheus.CounterVec
	RemoteDuration prometheus.Histogram
	RetryAttempts  *prometheus.CounterVec

	BatchComments prometheus.Histogram
	HTTPRequests  *prometheus.CounterVec
}

// New creates a Collector with its own registry.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits.",
		}, []string{"cache"}),
		CacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses.",
		}, []string{"cache"}),
		CacheEvictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_evictions_total",
			Help:      "Total number of entries evicted at capacity.",
		}, []string{"cache"}),
		RemoteCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_calls_total",
			Help:      "Total number of model API calls by outcome.",
		}, []string{"outcome"}),
		RemoteDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "remote_call_duration_seconds",
			Help:      "Model API call duration in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		RetryAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retry_attempts_total",
			Help:      "Total number of retries by reason.",
		}, []string{"reason"}),
		BatchComments: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_comments",
			Help:      "Number of comments per analyzed batch.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 6),
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
	}

	c.registry.MustRegister(
		c.CacheHits, c.CacheMisses, c.CacheEvictions,
		c.RemoteCalls, c.RemoteDuration, c.RetryAttempts,
		c.BatchComments, c.HTTPRequests,
	)
	return c
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) CacheHit(cache string)      { c.CacheHits.WithLabelValues(cache).Inc() }
func (c *Collector) CacheMiss(cache string)     { c.CacheMisses.WithLabelValues(cache).Inc() }
func (c *Collector) CacheEviction(cache string) { c.CacheEvictions.WithLabelValues(cache).Inc() }

// RetryAttempt counts one retry.
func (c *Collector) RetryAttempt(reason string) {
	c.RetryAttempts.WithLabelValues(reason).Inc()
}

// RemoteCall records one model API call.
func (c *Collector) RemoteCall(outcome string, d time.Duration) {
	c.RemoteCalls.WithLabelValues(outcome).Inc()
	c.RemoteDuration.Observe(d.Seconds())
}

// BatchAnalyzed records the size of an analyzed batch.
func (c *Collector) BatchAnalyzed(comments int) {
	c.BatchComments.Observe(float64(comments))
}

// HTTPRequest counts one served request.
func (c *Collector) HTTPRequest(method, route string, status int) {
	c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}
