package prometheus

import (
	"time"

	"github.com/marmos91/linepool/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// lineMetrics is the Prometheus implementation of metrics.LineMetrics.
type lineMetrics struct {
	requestsTotal          *prometheus.CounterVec
	requestLatency         *prometheus.HistogramVec
	busyWorkers            prometheus.Gauge
	rejectedTotal          *prometheus.CounterVec
	droppedTotal           prometheus.Counter
	queueLength            prometheus.Gauge
	throughput             prometheus.Gauge
	activeConnections      prometheus.Gauge
	connectionsAccepted    prometheus.Counter
	connectionsClosed      prometheus.Counter
	connectionsForceClosed prometheus.Counter
}

// NewLineMetrics creates a LineMetrics registered on the process-wide
// registry.
//
// Returns a no-op implementation if metrics are not enabled (InitRegistry not
// called).
func NewLineMetrics() metrics.LineMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopLineMetrics()
	}
	return NewLineMetricsWith(metrics.GetRegistry())
}

// NewLineMetricsWith creates a LineMetrics registered on reg. Panics if the
// collectors are already registered there.
func NewLineMetricsWith(reg prometheus.Registerer) metrics.LineMetrics {
	factory := promauto.With(reg)

	return &lineMetrics{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linepool_requests_total",
				Help: "Total number of processed requests by opcode and status",
			},
			[]string{"op", "status"},
		),
		requestLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "linepool_request_latency_milliseconds",
				Help: "Time from reading a request line to finishing it, in milliseconds",
				Buckets: []float64{
					1,     // 1ms
					10,    // 10ms
					100,   // 100ms
					1000,  // 1s
					5000,  // 5s
					10000, // 10s
					30000, // 30s
				},
			},
			[]string{"op"},
		),
		busyWorkers: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "linepool_workers_busy",
				Help: "Number of workers currently processing a request",
			},
		),
		rejectedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linepool_requests_rejected_total",
				Help: "Requests answered with server busy, by reason",
			},
			[]string{"reason"},
		),
		droppedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "linepool_requests_dropped_total",
				Help: "Queued requests abandoned when shutdown timed out",
			},
		),
		queueLength: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "linepool_queue_length",
				Help: "Number of requests waiting in the task queue",
			},
		),
		throughput: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "linepool_throughput_rps",
				Help: "Processed requests per second since start",
			},
		),
		activeConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "linepool_active_connections",
				Help: "Current number of open client connections",
			},
		),
		connectionsAccepted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "linepool_connections_accepted_total",
				Help: "Total number of client connections accepted",
			},
		),
		connectionsClosed: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "linepool_connections_closed_total",
				Help: "Total number of client connections closed",
			},
		),
		connectionsForceClosed: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "linepool_connections_force_closed_total",
				Help: "Total number of connections force-closed during shutdown timeout",
			},
		),
	}
}

func (m *lineMetrics) RecordRequest(op string, latency time.Duration, failed bool) {
	status := "ok"
	if failed {
		status = "error"
	}

	m.requestsTotal.WithLabelValues(op, status).Inc()
	m.requestLatency.WithLabelValues(op).Observe(float64(latency) / float64(time.Millisecond))
}

func (m *lineMetrics) RecordRequestStart() {
	m.busyWorkers.Inc()
}

func (m *lineMetrics) RecordRequestEnd() {
	m.busyWorkers.Dec()
}

func (m *lineMetrics) RecordRejected(reason string) {
	m.rejectedTotal.WithLabelValues(reason).Inc()
}

func (m *lineMetrics) RecordDropped(n int) {
	if n > 0 {
		m.droppedTotal.Add(float64(n))
	}
}

func (m *lineMetrics) SetQueueLength(n int) {
	m.queueLength.Set(float64(n))
}

func (m *lineMetrics) SetThroughput(rps float64) {
	m.throughput.Set(rps)
}

func (m *lineMetrics) SetActiveConnections(count int32) {
	m.activeConnections.Set(float64(count))
}

func (m *lineMetrics) RecordConnectionAccepted() {
	m.connectionsAccepted.Inc()
}

func (m *lineMetrics) RecordConnectionClosed() {
	m.connectionsClosed.Inc()
}

func (m *lineMetrics) RecordConnectionForceClosed() {
	m.connectionsForceClosed.Inc()
}
