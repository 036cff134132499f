package worker

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/linepool/internal/protocol"
	"github.com/marmos91/linepool/pkg/queue"
	"github.com/marmos91/linepool/pkg/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// panicHandler panics on "BOOM" and echoes everything else.
type panicHandler struct{}

func (panicHandler) Handle(line string) protocol.Result {
	if line == "BOOM" {
		panic("boom")
	}
	return (&protocol.Handler{}).Handle(line)
}

// blockingHandler parks every call until release is closed.
type blockingHandler struct {
	started atomic.Int32
	release chan struct{}
}

func (h *blockingHandler) Handle(line string) protocol.Result {
	h.started.Add(1)
	<-h.release
	return protocol.Result{Op: protocol.OpEcho, Reply: "OK " + line}
}

func enqueue(t *testing.T, q *queue.Queue, line string) *queue.Task {
	t.Helper()
	task := queue.NewTask(uuid.New(), "127.0.0.1:1", line)
	require.NoError(t, q.Enqueue(context.Background(), task))
	return task
}

func awaitReply(t *testing.T, task *queue.Task) string {
	t.Helper()
	select {
	case r := <-task.Reply():
		return r
	case <-time.After(2 * time.Second):
		t.Fatalf("no reply for %q", task.Line)
		return ""
	}
}

func TestPool_ProcessesAndCounts(t *testing.T) {
	q := queue.New(queue.Config{Capacity: 16})
	counters := stats.NewCounters()
	pool := New(4, q, &protocol.Handler{Sleep: func(time.Duration) {}}, counters, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		pool.Run(ctx)
		close(done)
	}()

	tasks := []*queue.Task{
		enqueue(t, q, "ECHO one"),
		enqueue(t, q, "SLEEP 5"),
		enqueue(t, q, "nope"),
		enqueue(t, q, ""),
	}
	want := []string{"OK one", "OK 5", "ERR unknown op NOPE", "ERR empty request"}

	for i, task := range tasks {
		assert.Equal(t, want[i], awaitReply(t, task))
	}

	// Counters are updated before replies are delivered.
	assert.Equal(t, uint64(4), counters.Snapshot().Processed)

	q.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pool did not exit after queue closed")
	}
}

func TestPool_DrainsQueueBeforeExiting(t *testing.T) {
	q := queue.New(queue.Config{Capacity: 64})
	counters := stats.NewCounters()

	var tasks []*queue.Task
	for i := 0; i < 50; i++ {
		tasks = append(tasks, enqueue(t, q, fmt.Sprintf("ECHO %d", i)))
	}
	q.Close()

	pool := New(3, q, &protocol.Handler{}, counters, nil)
	pool.Run(context.Background())

	for i, task := range tasks {
		assert.Equal(t, fmt.Sprintf("OK %d", i), awaitReply(t, task))
	}
	assert.Equal(t, uint64(50), counters.Snapshot().Processed)
}

func TestPool_RecoversFromPanic(t *testing.T) {
	q := queue.New(queue.Config{Capacity: 4})
	counters := stats.NewCounters()

	bad := enqueue(t, q, "BOOM")
	good := enqueue(t, q, "ECHO still alive")
	q.Close()

	pool := New(1, q, panicHandler{}, counters, nil)
	pool.Run(context.Background())

	assert.Equal(t, protocol.MsgInternalError, awaitReply(t, bad))
	assert.Equal(t, "OK still alive", awaitReply(t, good))
	assert.Equal(t, uint64(2), counters.Snapshot().Processed)
}

func TestPool_BoundedConcurrency(t *testing.T) {
	q := queue.New(queue.Config{Capacity: 16})
	h := &blockingHandler{release: make(chan struct{})}
	pool := New(3, q, h, stats.NewCounters(), nil)

	for i := 0; i < 10; i++ {
		enqueue(t, q, fmt.Sprint(i))
	}

	done := make(chan struct{})
	go func() {
		pool.Run(context.Background())
		close(done)
	}()

	require.Eventually(t, func() bool { return pool.Active() == 3 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(3), h.started.Load(), "no more than N tasks may run at once")
	assert.Equal(t, 7, q.Len())

	close(h.release)
	q.Close()
	<-done
	assert.Equal(t, 0, pool.Active())
}

func TestPool_HardStopLeavesQueuedTasks(t *testing.T) {
	q := queue.New(queue.Config{Capacity: 8})
	h := &blockingHandler{release: make(chan struct{})}
	pool := New(1, q, h, stats.NewCounters(), nil)

	for i := 0; i < 3; i++ {
		enqueue(t, q, fmt.Sprint(i))
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		pool.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return h.started.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	close(h.release)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pool did not stop after hard stop")
	}
	assert.Equal(t, 2, q.Len(), "cancelled workers must not keep draining")
}

func TestNew_PanicsOnZeroSize(t *testing.T) {
	assert.Panics(t, func() {
		New(0, queue.New(queue.Config{Capacity: 1}), &protocol.Handler{}, stats.NewCounters(), nil)
	})
}
