// Package stats keeps the server-wide request counters and reports them
// periodically.
package stats

import (
	"sync"
	"time"
)

// Snapshot is a consistent copy of the counters at one instant.
type Snapshot struct {
	// Processed is the number of requests a worker has completed.
	Processed uint64 `json:"processed"`

	// TotalLatency is the sum of (finish - enqueue) over processed requests.
	TotalLatency time.Duration `json:"total_latency_ns"`

	// Rejected is the number of requests answered with "server busy".
	Rejected uint64 `json:"rejected"`

	// Dropped is the number of requests abandoned at shutdown: queued
	// requests the workers did not reach, and lines read after shutdown
	// began.
	Dropped uint64 `json:"dropped"`

	// Elapsed is the time since the counters were created.
	Elapsed time.Duration `json:"elapsed_ns"`

	// QueueLen is the task queue length when the snapshot was taken. Only
	// filled in by the Reporter.
	QueueLen int `json:"queue_len"`
}

// AvgLatencyMillis is the mean request latency in milliseconds, 0 when
// nothing has been processed.
func (s Snapshot) AvgLatencyMillis() float64 {
	if s.Processed == 0 {
		return 0
	}
	return float64(s.TotalLatency) / float64(time.Millisecond) / float64(s.Processed)
}

// Throughput is processed requests per second since start.
func (s Snapshot) Throughput() float64 {
	secs := s.Elapsed.Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(s.Processed) / secs
}

// Counters accumulates request outcomes. Every counter only grows.
//
// Thread safety:
// One mutex guards all fields; it is held only for the update or copy.
type Counters struct {
	mu           sync.Mutex
	processed    uint64
	totalLatency time.Duration
	rejected     uint64
	dropped      uint64
	start        time.Time
}

// NewCounters creates zeroed counters with the start time set to now.
func NewCounters() *Counters {
	return &Counters{start: time.Now()}
}

// RecordProcessed counts one completed request and adds its latency.
// Negative latencies (clock steps) are counted as zero.
func (c *Counters) RecordProcessed(latency time.Duration) {
	if latency < 0 {
		latency = 0
	}

	c.mu.Lock()
	c.processed++
	c.totalLatency += latency
	c.mu.Unlock()
}

// RecordRejected counts one request refused under the reject policy.
func (c *Counters) RecordRejected() {
	c.mu.Lock()
	c.rejected++
	c.mu.Unlock()
}

// RecordDropped counts n requests abandoned at shutdown, whether queued or
// only read.
func (c *Counters) RecordDropped(n int) {
	if n <= 0 {
		return
	}

	c.mu.Lock()
	c.dropped += uint64(n)
	c.mu.Unlock()
}

// Snapshot returns a copy of the counters.
func (c *Counters) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		Processed:    c.processed,
		TotalLatency: c.totalLatency,
		Rejected:     c.rejected,
		Dropped:      c.dropped,
		Elapsed:      time.Since(c.start),
	}
}
