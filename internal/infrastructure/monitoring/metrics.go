package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Mailbox operation metrics
	Operations        *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	PayloadBytes      *prometheus.HistogramVec
	Retries           *prometheus.CounterVec

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	startTime time.Time

	// Snapshot for JSON API - track current values
	snapshot Snapshot

	mu sync.RWMutex
}

// Snapshot holds current metric values for the JSON health endpoint
type Snapshot struct {
	TotalRequests   int64   `json:"total_requests"`
	TotalOperations int64   `json:"total_operations"`
	FailedOps       int64   `json:"failed_operations"`
	TotalRetries    int64   `json:"total_retries"`
	UptimeSeconds   float64 `json:"uptime_seconds"`
}

// NewMetrics registers the collectors with reg. Pass prometheus.NewRegistry()
// in tests to avoid duplicate registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	m := &Metrics{
		startTime: time.Now(),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shmbridge_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shmbridge_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		Operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shmbridge_operations_total",
				Help: "Total number of mailbox operations by outcome code",
			},
			[]string{"op", "code"},
		),
		OperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shmbridge_operation_duration_seconds",
				Help:    "Mailbox operation duration in seconds, including retries",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 5, 30},
			},
			[]string{"op"},
		),
		PayloadBytes: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shmbridge_payload_bytes",
				Help:    "Size of payloads read from or written to the segment",
				Buckets: prometheus.ExponentialBuckets(64, 4, 8),
			},
			[]string{"op"},
		),
		Retries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shmbridge_retries_total",
				Help: "Total number of retried mailbox attempts",
			},
			[]string{"op"},
		),

		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "shmbridge_ws_connections",
				Help: "Number of active watch stream connections",
			},
		),
		WSMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shmbridge_ws_messages_total",
				Help: "Total number of watch stream messages",
			},
			[]string{"type"},
		),
	}

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "shmbridge_uptime_seconds",
			Help: "Process uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.TotalRequests++
	m.mu.Unlock()
}

// RecordOperation records a mailbox operation and its outcome code ("ok" on success)
func (m *Metrics) RecordOperation(op, code string, duration time.Duration) {
	m.Operations.WithLabelValues(op, code).Inc()
	m.OperationDuration.WithLabelValues(op).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.TotalOperations++
	if code != "ok" {
		m.snapshot.FailedOps++
	}
	m.mu.Unlock()
}

// ObservePayload records the size of a payload moved by op
func (m *Metrics) ObservePayload(op string, size int) {
	m.PayloadBytes.WithLabelValues(op).Observe(float64(size))
}

// RecordRetry records one swallowed attempt failure
func (m *Metrics) RecordRetry(op string) {
	m.Retries.WithLabelValues(op).Inc()

	m.mu.Lock()
	m.snapshot.TotalRetries++
	m.mu.Unlock()
}

// RecordWSMessage records a watch stream message
func (m *Metrics) RecordWSMessage(msgType string) {
	m.WSMessages.WithLabelValues(msgType).Inc()
}

// IncWSConnections increments watch stream connections
func (m *Metrics) IncWSConnections() {
	m.WSConnections.Inc()
}

// DecWSConnections decrements watch stream connections
func (m *Metrics) DecWSConnections() {
	m.WSConnections.Dec()
}

// Snapshot returns the current counters
func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := m.snapshot
	s.UptimeSeconds = time.Since(m.startTime).Seconds()
	return s
}
