package metrics

import "time"

// Rejection reasons used as label values by RecordRejected.
const (
	RejectQueueFull   = "queue_full"
	RejectRateLimited = "rate_limited"
)

// LineMetrics observes the line server: requests, the task queue, the worker
// pool and connections.
//
// Implementations must be safe for concurrent use. Use NewNoopLineMetrics
// when metrics are disabled.
type LineMetrics interface {
	// RecordRequest records a completed request.
	//
	// Parameters:
	//   - op: canonical opcode or pseudo-opcode (bounded label set)
	//   - latency: time from reading the line to finishing it
	//   - failed: true if the reply was an ERR reply
	RecordRequest(op string, latency time.Duration, failed bool)

	// RecordRequestStart / RecordRequestEnd bracket the time a worker spends
	// on one task. Their difference is the number of busy workers.
	RecordRequestStart()
	RecordRequestEnd()

	// RecordRejected counts a request answered with "server busy".
	RecordRejected(reason string)

	// RecordDropped counts queued requests abandoned at shutdown.
	RecordDropped(n int)

	// SetQueueLength publishes the number of queued tasks.
	SetQueueLength(n int)

	// SetThroughput publishes the processed-per-second rate since start.
	SetThroughput(rps float64)

	// SetActiveConnections updates the current connection count.
	SetActiveConnections(count int32)

	// RecordConnectionAccepted counts an accepted connection.
	RecordConnectionAccepted()

	// RecordConnectionClosed counts a closed connection.
	RecordConnectionClosed()

	// RecordConnectionForceClosed counts a connection closed by the
	// shutdown timeout rather than by its own goroutines.
	RecordConnectionForceClosed()
}

// NewNoopLineMetrics returns a LineMetrics that discards everything.
func NewNoopLineMetrics() LineMetrics {
	return noopLineMetrics{}
}

type noopLineMetrics struct{}

func (noopLineMetrics) RecordRequest(string, time.Duration, bool) {}
func (noopLineMetrics) RecordRequestStart()                       {}
func (noopLineMetrics) RecordRequestEnd()                         {}
func (noopLineMetrics) RecordRejected(string)                     {}
func (noopLineMetrics) RecordDropped(int)                         {}
func (noopLineMetrics) SetQueueLength(int)                        {}
func (noopLineMetrics) SetThroughput(float64)                     {}
func (noopLineMetrics) SetActiveConnections(int32)                {}
func (noopLineMetrics) RecordConnectionAccepted()                 {}
func (noopLineMetrics) RecordConnectionClosed()                   {}
func (noopLineMetrics) RecordConnectionForceClosed()              {}
