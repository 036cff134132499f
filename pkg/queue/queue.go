// Package queue provides the bounded task queue shared by all connections and
// all workers.
//
// Producers (connection readers) call Enqueue; consumers (workers) call
// Dequeue. When the queue is full, the configured Policy decides what a
// producer does: wait for space (PolicyBlock) or give up after a short bound
// (PolicyReject).
//
// Shutdown does not use sentinel tasks. Close seals the queue: further
// enqueues fail, workers keep dequeuing until the queue is empty and then
// receive ErrQueueClosed.
package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

var (
	// ErrQueueFull is returned by Enqueue under PolicyReject when no space
	// became available within the reject wait.
	ErrQueueFull = errors.New("queue full")

	// ErrQueueClosed is returned by Enqueue after Close, and by Dequeue once
	// the queue is closed and empty.
	ErrQueueClosed = errors.New("queue closed")
)

// Policy selects the backpressure behavior when the queue is full.
type Policy int

const (
	// PolicyBlock makes producers wait for space. A stalled producer stops
	// reading from its own connection, which pushes back on that client.
	PolicyBlock Policy = iota

	// PolicyReject makes producers wait at most RejectWait, then fail with
	// ErrQueueFull so the caller can answer the client directly.
	PolicyReject
)

func (p Policy) String() string {
	switch p {
	case PolicyBlock:
		return "block"
	case PolicyReject:
		return "reject"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ParsePolicy converts a configuration value to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "block", "block-with-backpressure":
		return PolicyBlock, nil
	case "reject", "reject-with-error":
		return PolicyReject, nil
	}
	return PolicyBlock, fmt.Errorf("unknown backpressure policy %q (want block or reject)", s)
}

// DefaultRejectWait is how long PolicyReject waits for space.
const DefaultRejectWait = time.Second

// Config describes a queue. Capacity and policy are fixed for its lifetime.
type Config struct {
	Capacity   int
	Policy     Policy
	RejectWait time.Duration
}

// Queue is a bounded FIFO of tasks.
//
// Thread safety:
// All methods are safe for concurrent use.
type Queue struct {
	items      chan *Task
	policy     Policy
	rejectWait time.Duration

	// mu is held shared by every Enqueue in progress and exclusively by
	// Close, so that once sealed is closed no send on items can happen.
	mu sync.RWMutex

	// closing is closed first and makes pending enqueues give up.
	closing chan struct{}

	// sealed is closed after all pending enqueues have returned.
	sealed chan struct{}

	closeOnce sync.Once
}

// New creates an empty queue. Capacity must be positive.
func New(cfg Config) *Queue {
	if cfg.Capacity <= 0 {
		panic(fmt.Sprintf("queue capacity must be positive, got %d", cfg.Capacity))
	}
	if cfg.RejectWait < 0 {
		cfg.RejectWait = 0
	}

	return &Queue{
		items:      make(chan *Task, cfg.Capacity),
		policy:     cfg.Policy,
		rejectWait: cfg.RejectWait,
		closing:    make(chan struct{}),
		sealed:     make(chan struct{}),
	}
}

// Enqueue adds a task according to the queue's policy.
//
// Returns:
//   - nil if the task was queued
//   - ErrQueueFull under PolicyReject when the queue stayed full
//   - ErrQueueClosed if the queue is (or becomes) closed
//   - ctx.Err() if ctx ends first
func (q *Queue) Enqueue(ctx context.Context, t *Task) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	select {
	case <-q.closing:
		return ErrQueueClosed
	default:
	}

	select {
	case q.items <- t:
		return nil
	default:
	}

	var timeout <-chan time.Time
	if q.policy == PolicyReject {
		if q.rejectWait == 0 {
			return ErrQueueFull
		}
		timer := time.NewTimer(q.rejectWait)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case q.items <- t:
		return nil
	case <-timeout:
		return ErrQueueFull
	case <-q.closing:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dequeue removes the oldest task, waiting until one is available.
//
// Returns ErrQueueClosed once the queue has been closed and every task queued
// before Close has been handed out, or ctx.Err() if ctx ends first.
func (q *Queue) Dequeue(ctx context.Context) (*Task, error) {
	select {
	case t := <-q.items:
		return t, nil
	case <-q.sealed:
		select {
		case t := <-q.items:
			return t, nil
		default:
			return nil, ErrQueueClosed
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close seals the queue. Pending and future enqueues fail with
// ErrQueueClosed; tasks already queued remain available to Dequeue.
//
// Close returns once every enqueue that was in progress has returned, so the
// set of queued tasks is final afterwards. Safe to call more than once.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		close(q.closing)

		q.mu.Lock()
		close(q.sealed)
		q.mu.Unlock()
	})
}

// Drain removes and returns every task still queued. Used after workers have
// been abandoned during shutdown so the remaining tasks can be accounted for.
func (q *Queue) Drain() []*Task {
	var rest []*Task
	for {
		select {
		case t := <-q.items:
			rest = append(rest, t)
		default:
			return rest
		}
	}
}

// Len returns the number of queued tasks.
func (q *Queue) Len() int {
	return len(q.items)
}

// Cap returns the queue capacity.
func (q *Queue) Cap() int {
	return cap(q.items)
}

// Policy returns the backpressure policy.
func (q *Queue) Policy() Policy {
	return q.policy
}
