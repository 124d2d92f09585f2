package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. Each instance owns its registry, so
// tests and embedded servers can create as many as they like. All recording
// methods are safe on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// Navigation metrics
	Navigations        *prometheus.CounterVec
	NavigationDuration *prometheus.HistogramVec

	// Pipeline metrics
	FetchTotal      *prometheus.CounterVec
	FetchDuration   prometheus.Histogram
	RewriteDuration prometheus.Histogram
	RewriteBytes    *prometheus.HistogramVec

	// Render host metrics
	DocumentsLive     prometheus.Gauge
	DocumentsReleased *prometheus.CounterVec
	InlineFallbacks   prometheus.Counter

	// External opener
	ExternalOpens *prometheus.CounterVec

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	startTime time.Time

	snapshot MetricsSnapshot
	mu       sync.RWMutex
}

// MetricsSnapshot holds current values for the JSON health endpoint
type MetricsSnapshot struct {
	TotalRequests    int64 `json:"total_requests"`
	TotalErrors      int64 `json:"total_errors"`
	Navigations      int64 `json:"navigations"`
	FailedNavigation int64 `json:"failed_navigations"`
	LiveDocuments    int64 `json:"live_documents"`
	WSConnections    int64 `json:"ws_connections"`
	UptimeSeconds    int64 `json:"uptime_seconds"`
}

var (
	latencyBuckets = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30}
	sizeBuckets    = []float64{1 << 10, 16 << 10, 128 << 10, 1 << 20, 4 << 20, 16 << 20}
)

// NewMetrics creates a new metrics collector
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "proxyview_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "proxyview_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: latencyBuckets,
			},
			[]string{"method", "path"},
		),
		ResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "proxyview_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: sizeBuckets,
			},
			[]string{"method", "path"},
		),

		Navigations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "proxyview_navigations_total",
				Help: "Navigations by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		NavigationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "proxyview_navigation_duration_seconds",
				Help:    "End-to-end navigation duration in seconds",
				Buckets: latencyBuckets,
			},
			[]string{"kind"},
		),

		FetchTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "proxyview_fetch_total",
				Help: "Upstream fetches by status class",
			},
			[]string{"class"},
		),
		FetchDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "proxyview_fetch_duration_seconds",
				Help:    "Upstream fetch duration in seconds",
				Buckets: latencyBuckets,
			},
		),
		RewriteDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "proxyview_rewrite_duration_seconds",
				Help:    "Content rewrite duration in seconds",
				Buckets: latencyBuckets,
			},
		),
		RewriteBytes: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "proxyview_rewrite_bytes",
				Help:    "Document size before and after rewriting",
				Buckets: sizeBuckets,
			},
			[]string{"stage"},
		),

		DocumentsLive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "proxyview_documents_live",
				Help: "Documents currently held by the render host",
			},
		),
		DocumentsReleased: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "proxyview_documents_released_total",
				Help: "Documents released by reason",
			},
			[]string{"reason"},
		),
		InlineFallbacks: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "proxyview_inline_fallbacks_total",
				Help: "Documents handed to the surface as data: URIs",
			},
		),

		ExternalOpens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "proxyview_external_opens_total",
				Help: "External browser hand-offs by result",
			},
			[]string{"result"},
		),

		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "proxyview_ws_connections",
				Help: "Number of active WebSocket connections",
			},
		),
		WSMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "proxyview_ws_messages_total",
				Help: "Total number of WebSocket messages",
			},
			[]string{"direction", "type"},
		),
	}

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "proxyview_uptime_seconds",
			Help: "Process uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, respSize int64) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))

	m.mu.Lock()
	m.snapshot.TotalRequests++
	if status != "" && (status[0] == '4' || status[0] == '5') {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordNavigation records a finished navigation
func (m *Metrics) RecordNavigation(kind, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.Navigations.WithLabelValues(kind, outcome).Inc()
	m.NavigationDuration.WithLabelValues(kind).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.Navigations++
	if outcome == "failed" {
		m.snapshot.FailedNavigation++
	}
	m.mu.Unlock()
}

// RecordFetch records an upstream fetch. status 0 means a transport error.
func (m *Metrics) RecordFetch(status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.FetchTotal.WithLabelValues(statusClass(status)).Inc()
	m.FetchDuration.Observe(duration.Seconds())
}

// RecordRewrite records a rewrite pass
func (m *Metrics) RecordRewrite(duration time.Duration, in, out int) {
	if m == nil {
		return
	}
	m.RewriteDuration.Observe(duration.Seconds())
	m.RewriteBytes.WithLabelValues("in").Observe(float64(in))
	m.RewriteBytes.WithLabelValues("out").Observe(float64(out))
}

// DocumentRegistered counts a document entering the render host
func (m *Metrics) DocumentRegistered() {
	if m == nil {
		return
	}
	m.DocumentsLive.Inc()
	m.mu.Lock()
	m.snapshot.LiveDocuments++
	m.mu.Unlock()
}

// DocumentReleased counts a document leaving the render host
func (m *Metrics) DocumentReleased(reason string) {
	if m == nil {
		return
	}
	m.DocumentsLive.Dec()
	m.DocumentsReleased.WithLabelValues(reason).Inc()
	m.mu.Lock()
	m.snapshot.LiveDocuments--
	m.mu.Unlock()
}

// IncInlineFallbacks counts a data: URI fallback
func (m *Metrics) IncInlineFallbacks() {
	if m == nil {
		return
	}
	m.InlineFallbacks.Inc()
}

// RecordExternalOpen records an external browser hand-off
func (m *Metrics) RecordExternalOpen(result string) {
	if m == nil {
		return
	}
	m.ExternalOpens.WithLabelValues(result).Inc()
}

// RecordWSMessage records a WebSocket message
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Inc()
	m.mu.Lock()
	m.snapshot.WSConnections++
	m.mu.Unlock()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Dec()
	m.mu.Lock()
	m.snapshot.WSConnections--
	m.mu.Unlock()
}

// Snapshot returns a copy of the tracked counters
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := m.snapshot
	s.UptimeSeconds = int64(time.Since(m.startTime).Seconds())
	return s
}

func statusClass(status int) string {
	switch {
	case status <= 0:
		return "error"
	case status < 200:
		return "1xx"
	case status < 300:
		return "2xx"
	case status < 400:
		return "3xx"
	case status < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
