// Package monitoring exposes Prometheus metrics for the session controller.
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Session metrics
	SessionsActive  prometheus.Gauge
	SessionsTotal   prometheus.Counter
	SessionSwitches prometheus.Counter

	// Navigation metrics
	NavigationsTotal *prometheus.CounterVec

	// Event-stream metrics
	EventsBubbled *prometheus.CounterVec
	EventsDropped *prometheus.CounterVec

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time
}

// NewMetrics creates a metrics collector registered on the default registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		startTime: time.Now(),

		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spyglass_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "spyglass_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		SessionsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "spyglass_sessions_active",
				Help: "Number of open browsing sessions",
			},
		),
		SessionsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "spyglass_sessions_total",
				Help: "Total number of browsing sessions created",
			},
		),
		SessionSwitches: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "spyglass_session_switches_total",
				Help: "Total number of session switches",
			},
		),

		NavigationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spyglass_navigations_total",
				Help: "Total number of navigations by resolution outcome",
			},
			[]string{"resolution"},
		),

		EventsBubbled: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spyglass_events_bubbled_total",
				Help: "Notifications forwarded to the host UI",
			},
			[]string{"kind"},
		),
		EventsDropped: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spyglass_events_dropped_total",
				Help: "Notifications dropped by the active-only filter",
			},
			[]string{"kind"},
		),

		WSConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "spyglass_ws_connections",
				Help: "Number of active host UI stream connections",
			},
		),
		WSMessages: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spyglass_ws_messages_total",
				Help: "Total number of WebSocket messages",
			},
			[]string{"direction", "type"},
		),

		Uptime: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "spyglass_uptime_seconds",
				Help: "Controller uptime in seconds",
			},
		),
	}

	go m.updateUptime()

	return m
}

func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.Uptime.Set(time.Since(m.startTime).Seconds())
	}
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordBubbled records a notification forwarded to the host UI.
func (m *Metrics) RecordBubbled(kind string) {
	m.EventsBubbled.WithLabelValues(kind).Inc()
}

// RecordDropped records a notification suppressed by the active-only filter.
func (m *Metrics) RecordDropped(kind string) {
	m.EventsDropped.WithLabelValues(kind).Inc()
}

// RecordNavigation records a navigation by resolution outcome
// ("absolute", "domain", "search").
func (m *Metrics) RecordNavigation(resolution string) {
	m.NavigationsTotal.WithLabelValues(resolution).Inc()
}

// RecordWSMessage records a WebSocket message.
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// SetSessionsActive sets the open-session gauge.
func (m *Metrics) SetSessionsActive(count int) {
	m.SessionsActive.Set(float64(count))
}

// IncSessionsTotal increments the created-session counter.
func (m *Metrics) IncSessionsTotal() {
	m.SessionsTotal.Inc()
}

// IncSessionSwitches increments the switch counter.
func (m *Metrics) IncSessionSwitches() {
	m.SessionSwitches.Inc()
}

// IncWSConnections increments stream connections.
func (m *Metrics) IncWSConnections() {
	m.WSConnections.Inc()
}

// DecWSConnections decrements stream connections.
func (m *Metrics) DecWSConnections() {
	m.WSConnections.Dec()
}
