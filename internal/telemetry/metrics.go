// Package telemetry holds the Prometheus metrics and OpenTelemetry tracer
// setup shared by the HTTP server, the process invoker, and the usage cache.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "clawdesk"

// Metrics holds all Prometheus collectors. A nil *Metrics is valid and
// records nothing, so components can be built without a registry in tests.
type Metrics struct {
	HTTPRequests      *prometheus.CounterVec
	HTTPDuration      *prometheus.HistogramVec
	Invocations       *prometheus.CounterVec
	InvocationSeconds *prometheus.HistogramVec
	UsageCache        *prometheus.CounterVec
	LogStreamClients  prometheus.Gauge
	RateLimited       prometheus.Counter
}

// NewMetrics creates and registers all collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		HTTPRequests: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests served, by route pattern and status code",
			},
			[]string{"route", "code"},
		),
		HTTPDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		Invocations: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "openclaw_invocations_total",
				Help:      "External CLI invocations, by command and result",
			},
			[]string{"command", "result"}, // result=ok/error/timeout/overflow
		),
		InvocationSeconds: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "openclaw_invocation_seconds",
				Help:      "External CLI invocation wall time",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15},
			},
			[]string{"command"},
		),
		UsageCache: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "usage_cache_total",
				Help:      "Usage snapshot lookups, by result",
			},
			[]string{"result"}, // result=hit/miss
		),
		LogStreamClients: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "logstream_clients",
				Help:      "Connected log stream clients",
			},
		),
		RateLimited: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limited_total",
				Help:      "Requests rejected by the rate limiter",
			},
		),
	}
}

// ObserveInvocation records one CLI run.
func (m *Metrics) ObserveInvocation(command, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.Invocations.WithLabelValues(command, result).Inc()
	m.InvocationSeconds.WithLabelValues(command).Observe(d.Seconds())
}

// ObserveRequest records one HTTP request.
func (m *Metrics) ObserveRequest(route, code string, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, code).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(d.Seconds())
}

// CacheResult counts a usage cache hit or miss.
func (m *Metrics) CacheResult(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.UsageCache.WithLabelValues("hit").Inc()
		return
	}
	m.UsageCache.WithLabelValues("miss").Inc()
}

// StreamOpened and StreamClosed track connected log stream clients.
func (m *Metrics) StreamOpened() {
	if m != nil {
		m.LogStreamClients.Inc()
	}
}

func (m *Metrics) StreamClosed() {
	if m != nil {
		m.LogStreamClients.Dec()
	}
}

// Limited counts a rate-limited request.
func (m *Metrics) Limited() {
	if m != nil {
		m.RateLimited.Inc()
	}
}
