// Package worker runs the fixed-size pool of goroutines that execute queued
// request lines.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/linepool/internal/logger"
	"github.com/marmos91/linepool/internal/protocol"
	"github.com/marmos91/linepool/pkg/metrics"
	"github.com/marmos91/linepool/pkg/queue"
	"github.com/marmos91/linepool/pkg/stats"
)

// Source is where workers take tasks from. *queue.Queue implements it.
type Source interface {
	Dequeue(ctx context.Context) (*queue.Task, error)
}

// Handler executes one request line. *protocol.Handler implements it.
type Handler interface {
	Handle(line string) protocol.Result
}

// Pool is a fixed number of long-lived workers sharing one Source.
//
// Each worker loops: dequeue a task, run the handler, account for it, then
// hand the reply back through the task. Workers exit when the source reports
// queue.ErrQueueClosed (closed and fully drained) or when the context passed
// to Run is cancelled.
//
// Counters are updated before the reply is handed back, so a client that has
// read a reply is guaranteed to see it reflected in the stats.
type Pool struct {
	size     int
	source   Source
	handler  Handler
	counters *stats.Counters
	metrics  metrics.LineMetrics

	active atomic.Int32
}

// New creates a pool of size workers. nil metrics uses the no-op
// implementation.
func New(size int, source Source, handler Handler, counters *stats.Counters, m metrics.LineMetrics) *Pool {
	if size <= 0 {
		panic(fmt.Sprintf("worker pool size must be positive, got %d", size))
	}
	if m == nil {
		m = metrics.NewNoopLineMetrics()
	}

	return &Pool{
		size:     size,
		source:   source,
		handler:  handler,
		counters: counters,
		metrics:  m,
	}
}

// Run starts the workers and blocks until all of them have exited.
//
// ctx is the hard stop: cancelling it makes idle workers return immediately.
// A worker in the middle of a task always finishes that task first. For a
// graceful stop, close the queue instead and let the workers drain it.
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup

	logger.Debug("Starting %d workers", p.size)
	for i := 0; i < p.size; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.work(ctx, id)
		}(i)
	}

	wg.Wait()
	logger.Debug("All %d workers exited", p.size)
}

func (p *Pool) work(ctx context.Context, id int) {
	for {
		if ctx.Err() != nil {
			logger.Debug("Worker %d: stopping: %v", id, ctx.Err())
			return
		}

		task, err := p.source.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrQueueClosed) {
				logger.Debug("Worker %d: queue drained, exiting", id)
			} else {
				logger.Debug("Worker %d: stopping: %v", id, err)
			}
			return
		}

		p.process(id, task)
	}
}

func (p *Pool) process(id int, task *queue.Task) {
	p.active.Add(1)
	p.metrics.RecordRequestStart()
	defer func() {
		p.metrics.RecordRequestEnd()
		p.active.Add(-1)
	}()

	res := p.execute(id, task)
	latency := time.Since(task.EnqueuedAt)

	p.counters.RecordProcessed(latency)
	p.metrics.RecordRequest(res.Op, latency, res.Failed)

	task.Complete(res.Reply)
}

// execute runs the handler, converting a panic into an ERR reply so one bad
// request cannot take a worker down.
func (p *Pool) execute(id int, task *queue.Task) (res protocol.Result) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic in worker %d handling %q from %s: %v",
				id, task.Line, task.RemoteAddr, r)
			res = protocol.Result{Op: protocol.OpUnknown, Reply: protocol.MsgInternalError, Failed: true}
		}
	}()

	return p.handler.Handle(task.Line)
}

// Active returns the number of workers currently processing a task.
func (p *Pool) Active() int {
	return int(p.active.Load())
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return p.size
}
