package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestSize     *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// API client metrics
	ServiceCalls    *prometheus.CounterVec
	ServiceDuration *prometheus.HistogramVec
	ServiceErrors   *prometheus.CounterVec

	// Session metrics
	SessionsActive   prometheus.Gauge
	SessionsSaved    prometheus.Counter
	SessionsCleared  prometheus.Counter
	SessionsPruned   prometheus.Counter
	SessionsMigrated prometheus.Counter
	SessionsRestored prometheus.Counter
	StorageBytes     prometheus.Gauge

	// Tab metrics
	TabsActive prometheus.Gauge

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	gatherer  prometheus.Gatherer
	startTime time.Time

	// Snapshot for JSON API - track current values
	snapshot MetricsSnapshot

	mu sync.RWMutex
}

// MetricsSnapshot holds current metric values for JSON API
type MetricsSnapshot struct {
	TotalRequests     int64   `json:"totalRequests"`
	TotalErrors       int64   `json:"totalErrors"`
	ActiveSessions    int64   `json:"activeSessions"`
	ActiveTabs        int64   `json:"activeTabs"`
	ActiveConnections int64   `json:"activeConnections"`
	AvgDurationMs     float64 `json:"avgDurationMs"`
	UptimeSeconds     float64 `json:"uptimeSeconds"`

	totalDuration float64
}

// NewMetrics registers every collector on reg. A nil reg selects the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	m := &Metrics{
		startTime: time.Now(),
		gatherer:  prometheus.DefaultGatherer,

		// HTTP metrics
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tabsessions_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tabsessions_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		RequestSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tabsessions_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000},
			},
			[]string{"method", "path"},
		),
		ResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tabsessions_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000},
			},
			[]string{"method", "path"},
		),

		// API client metrics
		ServiceCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tabsessions_api_calls_total",
				Help: "Total number of backend API calls",
			},
			[]string{"service", "method", "status"},
		),
		ServiceDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tabsessions_api_call_duration_seconds",
				Help:    "Backend API call duration in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"service", "method"},
		),
		ServiceErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tabsessions_api_errors_total",
				Help: "Total number of backend API errors",
			},
			[]string{"service", "method", "error_type"},
		),

		// Session metrics
		SessionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "tabsessions_sessions_active",
				Help: "Number of sessions found in the shared store",
			},
		),
		SessionsSaved: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "tabsessions_sessions_saved_total",
				Help: "Total number of authentication payloads saved",
			},
		),
		SessionsCleared: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "tabsessions_sessions_cleared_total",
				Help: "Total number of session namespaces cleared",
			},
		),
		SessionsPruned: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "tabsessions_sessions_pruned_total",
				Help: "Total number of expired sessions pruned by sweeps",
			},
		),
		SessionsMigrated: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "tabsessions_sessions_migrated_total",
				Help: "Total number of legacy payloads migrated",
			},
		),
		SessionsRestored: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "tabsessions_sessions_restored_total",
				Help: "Total number of sessions restored from backups",
			},
		),
		StorageBytes: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "tabsessions_storage_used_bytes",
				Help: "Characters held by all session namespaces",
			},
		),

		// Tab metrics
		TabsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "tabsessions_tabs_active",
				Help: "Number of tabs announced in the registry",
			},
		),

		// WebSocket metrics
		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "tabsessions_ws_connections",
				Help: "Number of active WebSocket connections",
			},
		),
		WSMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tabsessions_ws_messages_total",
				Help: "Total number of WebSocket messages",
			},
			[]string{"direction", "type"},
		),
	}

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "tabsessions_uptime_seconds",
			Help: "Process uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	}
	return m
}

// Handler serves the registry in Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, reqSize, respSize int64) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.RequestSize.WithLabelValues(method, path).Observe(float64(reqSize))
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))

	m.mu.Lock()
	m.snapshot.TotalRequests++
	m.snapshot.totalDuration += duration.Seconds()
	if status[0] == '4' || status[0] == '5' {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordServiceCall records a backend API call
func (m *Metrics) RecordServiceCall(service, method, status string, duration time.Duration) {
	m.ServiceCalls.WithLabelValues(service, method, status).Inc()
	m.ServiceDuration.WithLabelValues(service, method).Observe(duration.Seconds())
}

// RecordServiceError records a backend API error
func (m *Metrics) RecordServiceError(service, method, errorType string) {
	m.ServiceErrors.WithLabelValues(service, method, errorType).Inc()
}

// RecordWSMessage records a WebSocket message
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// SetSessionsActive sets the number of sessions in the shared store
func (m *Metrics) SetSessionsActive(count int) {
	m.SessionsActive.Set(float64(count))
	m.mu.Lock()
	m.snapshot.ActiveSessions = int64(count)
	m.mu.Unlock()
}

// SetStorageBytes sets the footprint of all session namespaces
func (m *Metrics) SetStorageBytes(n int) {
	m.StorageBytes.Set(float64(n))
}

// IncSessionsSaved increments the sessions saved counter
func (m *Metrics) IncSessionsSaved() {
	m.SessionsSaved.Inc()
}

// IncSessionsCleared increments the sessions cleared counter
func (m *Metrics) IncSessionsCleared() {
	m.SessionsCleared.Inc()
}

// AddSessionsPruned adds n to the sessions pruned counter
func (m *Metrics) AddSessionsPruned(n int) {
	m.SessionsPruned.Add(float64(n))
}

// IncSessionsMigrated increments the sessions migrated counter
func (m *Metrics) IncSessionsMigrated() {
	m.SessionsMigrated.Inc()
}

// AddSessionsRestored adds n to the sessions restored counter
func (m *Metrics) AddSessionsRestored(n int) {
	m.SessionsRestored.Add(float64(n))
}

// SetTabsActive sets the number of registered tabs
func (m *Metrics) SetTabsActive(count int) {
	m.TabsActive.Set(float64(count))
	m.mu.Lock()
	m.snapshot.ActiveTabs = int64(count)
	m.mu.Unlock()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	m.WSConnections.Inc()
	m.mu.Lock()
	m.snapshot.ActiveConnections++
	m.mu.Unlock()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	m.WSConnections.Dec()
	m.mu.Lock()
	m.snapshot.ActiveConnections--
	m.mu.Unlock()
}

// Snapshot returns current values for the JSON API
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := m.snapshot
	if snap.TotalRequests > 0 {
		snap.AvgDurationMs = snap.totalDuration / float64(snap.TotalRequests) * 1000
	}
	snap.UptimeSeconds = time.Since(m.startTime).Seconds()
	return snap
}
