// Package telemetry exposes prometheus instrumentation for the query
// engine and HTTP surface.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics implements the engine's MetricsRecorder. One instance is shared
// across all entities; series are split by entity label.
type Metrics struct {
	queryDuration *prometheus.HistogramVec
	cacheHits     *prometheus.CounterVec
	cacheMisses   *prometheus.CounterVec
	rejections    *prometheus.CounterVec
	timeouts      *prometheus.CounterVec

	// RequestDuration is the latency of HTTP requests by method and route.
	RequestDuration *prometheus.HistogramVec
	// RequestTotal counts HTTP requests by method, route and status.
	RequestTotal *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		queryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "backoffice_query_duration_seconds",
				Help:    "End-to-end latency of compiled queries",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"entity"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backoffice_query_cache_hits_total",
				Help: "Query results served from cache",
			},
			[]string{"entity"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backoffice_query_cache_misses_total",
				Help: "Query results that required storage execution",
			},
			[]string{"entity"},
		),
		rejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backoffice_query_rejections_total",
				Help: "Requests rejected during validation",
			},
			[]string{"entity"},
		),
		timeouts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backoffice_query_timeouts_total",
				Help: "Queries abandoned at the execution deadline",
			},
			[]string{"entity"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "backoffice_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		RequestTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backoffice_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
	}
}

func (m *Metrics) ObserveQuery(entity string, d time.Duration) {
	m.queryDuration.WithLabelValues(entity).Observe(d.Seconds())
}

func (m *Metrics) CacheHit(entity string) {
	m.cacheHits.WithLabelValues(entity).Inc()
}

func (m *Metrics) CacheMiss(entity string) {
	m.cacheMisses.WithLabelValues(entity).Inc()
}

func (m *Metrics) ValidationRejected(entity string) {
	m.rejections.WithLabelValues(entity).Inc()
}

func (m *Metrics) QueryTimeout(entity string) {
	m.timeouts.WithLabelValues(entity).Inc()
}
