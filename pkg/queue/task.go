package queue

import (
	"time"

	"github.com/google/uuid"
)

// Task is one request line waiting to be processed.
//
// A Task is created by the connection that read the line and consumed by
// exactly one worker. The worker hands the reply back through the task's
// one-shot reply slot; the connection's writer is the only reader of that
// slot, so the socket never has more than one writer.
type Task struct {
	// ConnID identifies the originating connection.
	ConnID uuid.UUID

	// RemoteAddr is the client address, for logging.
	RemoteAddr string

	// Line is the raw request line without its terminator.
	Line string

	// EnqueuedAt is when the line was read. Latency is measured from here,
	// so time spent waiting for queue space counts.
	EnqueuedAt time.Time

	reply chan string
}

// NewTask creates a task stamped with the current time.
func NewTask(connID uuid.UUID, remoteAddr, line string) *Task {
	return &Task{
		ConnID:     connID,
		RemoteAddr: remoteAddr,
		Line:       line,
		EnqueuedAt: time.Now(),
		reply:      make(chan string, 1),
	}
}

// Complete delivers the reply. Only the first call has any effect, and it
// never blocks.
func (t *Task) Complete(reply string) {
	select {
	case t.reply <- reply:
	default:
	}
}

// Reply returns the channel on which the reply is delivered.
func (t *Task) Reply() <-chan string {
	return t.reply
}
