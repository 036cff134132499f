package stats

import (
	"context"
	"time"

	"github.com/marmos91/linepool/internal/logger"
	"github.com/marmos91/linepool/pkg/metrics"
)

// DefaultInterval is the reporting period when none is configured.
const DefaultInterval = 2 * time.Second

// QueueLengther reports the current task queue length.
type QueueLengther interface {
	Len() int
}

// Reporter periodically logs a one-line summary of the counters and
// publishes the derived gauges. It never modifies the counters.
type Reporter struct {
	counters *Counters
	queue    QueueLengther
	interval time.Duration
	metrics  metrics.LineMetrics
}

// NewReporter creates a reporter. A non-positive interval uses
// DefaultInterval; nil metrics uses the no-op implementation.
func NewReporter(counters *Counters, queue QueueLengther, interval time.Duration, m metrics.LineMetrics) *Reporter {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if m == nil {
		m = metrics.NewNoopLineMetrics()
	}

	return &Reporter{
		counters: counters,
		queue:    queue,
		interval: interval,
		metrics:  m,
	}
}

// Run reports every interval until ctx is cancelled.
func (r *Reporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Report()
		}
	}
}

// Report takes a snapshot, logs it and publishes gauges. Returns the
// snapshot with QueueLen filled in.
func (r *Reporter) Report() Snapshot {
	snap := r.Snapshot()

	logger.Info("[stats] processed=%d avg_latency_ms=%.2f qlen=%d rps=%.2f rejected=%d dropped=%d",
		snap.Processed, snap.AvgLatencyMillis(), snap.QueueLen, snap.Throughput(),
		snap.Rejected, snap.Dropped)

	r.metrics.SetQueueLength(snap.QueueLen)
	r.metrics.SetThroughput(snap.Throughput())

	return snap
}

// Snapshot returns the counters together with the current queue length.
func (r *Reporter) Snapshot() Snapshot {
	snap := r.counters.Snapshot()
	if r.queue != nil {
		snap.QueueLen = r.queue.Len()
	}
	return snap
}
