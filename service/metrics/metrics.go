package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct is
// passed to every component that needs to record metrics.
type Metrics struct {
	// Session metrics
	sessionsActive prometheus.Gauge
	sessionsTotal  prometheus.Counter
	commandsTotal  *prometheus.CounterVec

	// Ledger metrics
	transfersTotal  *prometheus.CounterVec
	transferAmounts prometheus.Histogram
	accountsTotal   prometheus.Gauge
	monitorsActive  prometheus.Gauge

	// HTTP metrics
	httpRequestDuration *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec

	// SSE metrics
	sseActiveConnections *prometheus.GaugeVec
	sseEventsSent        *prometheus.CounterVec

	// Event publishing metrics
	eventsPublished *prometheus.CounterVec
	publishDuration prometheus.Histogram
}

// New creates a Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func New(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		sessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "bank_sessions_active",
			Help: "Number of connected client sessions",
		}),
		sessionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "bank_sessions_total",
			Help: "Total number of client sessions accepted",
		}),
		commandsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bank_commands_total",
				Help: "Total number of protocol commands processed by command and status",
			},
			[]string{"command", "status"},
		),
		transfersTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bank_transfers_total",
				Help: "Total number of transfer attempts by outcome",
			},
			[]string{"status"},
		),
		transferAmounts: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "bank_transfer_amount_xts",
			Help:    "Amounts of successful transfers in XTS",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}),
		accountsTotal: factory.NewGauge(prometheus.GaugeOpts{
			Name: "bank_accounts_total",
			Help: "Number of accounts in the ledger",
		}),
		monitorsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "bank_monitors_active",
			Help: "Number of sessions currently streaming via the monitor command",
		}),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bank_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"handler", "method", "status"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bank_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),
		sseActiveConnections: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "bank_sse_active_connections",
				Help: "Number of active SSE connections",
			},
			[]string{"account"},
		),
		sseEventsSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bank_sse_events_sent_total",
				Help: "Total number of SSE events sent",
			},
			[]string{"account", "event_type"},
		),
		eventsPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bank_events_published_total",
				Help: "Total number of transfer events published to NATS",
			},
			[]string{"status"},
		),
		publishDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "bank_event_publish_duration_seconds",
			Help:    "Duration of NATS publish operations in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}),
	}
}

// Session metric helpers

// RecordSessionStart records a newly accepted client session.
func (m *Metrics) RecordSessionStart() {
	m.sessionsTotal.Inc()
	m.sessionsActive.Inc()
}

// RecordSessionEnd records a session ending.
func (m *Metrics) RecordSessionEnd() {
	m.sessionsActive.Dec()
}

// RecordCommand records a processed protocol command.
func (m *Metrics) RecordCommand(command, status string) {
	m.commandsTotal.WithLabelValues(command, status).Inc()
}

// Ledger metric helpers

// RecordTransfer records a transfer attempt with its outcome and, when
// successful, the transferred amount.
func (m *Metrics) RecordTransfer(status string, amount int64) {
	m.transfersTotal.WithLabelValues(status).Inc()
	if status == "ok" {
		m.transferAmounts.Observe(float64(amount))
	}
}

// SetAccountCount records the current number of accounts.
func (m *Metrics) SetAccountCount(n int) {
	m.accountsTotal.Set(float64(n))
}

// RecordMonitorStart records a monitor stream starting.
func (m *Metrics) RecordMonitorStart() {
	m.monitorsActive.Inc()
}

// RecordMonitorEnd records a monitor stream ending.
func (m *Metrics) RecordMonitorEnd() {
	m.monitorsActive.Dec()
}

// HTTP metric helpers

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
}

// SSE metric helpers

// RecordSSEConnectionChange records a change in SSE connection count.
func (m *Metrics) RecordSSEConnectionChange(account string, delta float64) {
	m.sseActiveConnections.WithLabelValues(account).Add(delta)
}

// RecordSSEEventSent records an SSE event being sent.
func (m *Metrics) RecordSSEEventSent(account, eventType string) {
	m.sseEventsSent.WithLabelValues(account, eventType).Inc()
}

// Event publishing helpers

// RecordEventPublish records a NATS publish attempt with duration.
func (m *Metrics) RecordEventPublish(err error, duration float64) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.eventsPublished.WithLabelValues(status).Inc()
	m.publishDuration.Observe(duration)
}

func statusCodeToString(code int) string {
	// Group status codes by class
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "unknown"
	}
}
