// Package observability exposes Prometheus metrics for the bridge.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// MetricsManager manages Prometheus metrics.
type MetricsManager struct {
	logger   *zap.SugaredLogger
	registry *prometheus.Registry
	started  time.Time

	uptime            prometheus.Gauge
	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	handshakeOutcomes *prometheus.CounterVec
	handshakeDuration prometheus.Histogram
	toolExecutions    *prometheus.CounterVec
	toolDuration      prometheus.Histogram
}

// NewMetricsManager creates a new metrics manager with its own registry.
func NewMetricsManager(logger *zap.SugaredLogger) *MetricsManager {
	mm := &MetricsManager{
		logger:   logger,
		registry: prometheus.NewRegistry(),
		started:  time.Now(),
	}

	mm.initMetrics()
	mm.registerMetrics()

	return mm
}

// initMetrics initializes all Prometheus metrics.
func (mm *MetricsManager) initMetrics() {
	mm.uptime = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bridged_uptime_seconds",
		Help: "Time since the application started",
	})

	mm.httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridged_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	mm.httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bridged_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	mm.handshakeOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridged_handshake_outcomes_total",
			Help: "Authorization handshake attempts by terminal outcome",
		},
		[]string{"outcome"},
	)

	mm.handshakeDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "bridged_handshake_duration_seconds",
		Help:    "Time from handshake start to settlement",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 180, 300},
	})

	mm.toolExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridged_tool_executions_total",
			Help: "Tool executions by result status",
		},
		[]string{"status"},
	)

	mm.toolDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "bridged_tool_execution_duration_seconds",
		Help:    "Tool execution duration in seconds",
		Buckets: prometheus.DefBuckets,
	})
}

// registerMetrics registers all metrics with the registry.
func (mm *MetricsManager) registerMetrics() {
	mm.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		mm.uptime,
		mm.httpRequests,
		mm.httpDuration,
		mm.handshakeOutcomes,
		mm.handshakeDuration,
		mm.toolExecutions,
		mm.toolDuration,
	)
}

// Handler returns an HTTP handler serving the /metrics endpoint.
func (mm *MetricsManager) Handler() http.Handler {
	return promhttp.HandlerFor(mm.registry, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records one handled HTTP request.
func (mm *MetricsManager) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	mm.uptime.Set(time.Since(mm.started).Seconds())
	mm.httpRequests.WithLabelValues(method, path, status).Inc()
	mm.httpDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// RecordHandshakeOutcome records a settled handshake attempt.
func (mm *MetricsManager) RecordHandshakeOutcome(outcome string, duration time.Duration) {
	mm.handshakeOutcomes.WithLabelValues(outcome).Inc()
	mm.handshakeDuration.Observe(duration.Seconds())
}

// RecordToolExecution records one tool execution.
func (mm *MetricsManager) RecordToolExecution(status string, duration time.Duration) {
	mm.toolExecutions.WithLabelValues(status).Inc()
	mm.toolDuration.Observe(duration.Seconds())
}
