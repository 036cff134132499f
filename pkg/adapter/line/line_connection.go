package line

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/linepool/internal/logger"
	"github.com/marmos91/linepool/internal/protocol"
	"github.com/marmos91/linepool/pkg/metrics"
	"github.com/marmos91/linepool/pkg/queue"
)

// initialLineBuffer is the scanner's starting buffer; it grows up to
// MaxLineBytes.
const initialLineBuffer = 4096

var (
	errShutdown     = errors.New("server shutting down")
	errWriterClosed = errors.New("writer closed")
)

// LineConnection handles a single client connection: one reader goroutine
// framing request lines and one writer goroutine returning their replies.
type LineConnection struct {
	server *LineAdapter
	conn   net.Conn
	id     uuid.UUID
	remote string
}

func NewLineConnection(server *LineAdapter, conn net.Conn) *LineConnection {
	return &LineConnection{
		server: server,
		conn:   conn,
		id:     newConnID(),
		remote: conn.RemoteAddr().String(),
	}
}

// ID returns the connection identifier carried by its tasks.
func (c *LineConnection) ID() uuid.UUID {
	return c.id
}

// Serve reads request lines until the client goes away or the server shuts
// down, then waits for the writer to deliver every reply still owed.
// A panic in either goroutine is recovered so a single misbehaving
// connection cannot crash the server.
//
// The connection is closed when:
//   - The client closes its side (EOF)
//   - The idle timeout elapses with no request
//   - A read or write fails, or a line exceeds MaxLineBytes
//   - The server shuts down (after pending replies are written)
func (c *LineConnection) Serve(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic in connection handler %s from %s: %v", c.id, c.remote, r)
		}
		_ = c.conn.Close()
	}()

	logger.Debug("Connection %s: serving %s", c.id, c.remote)

	pending := make(chan *queue.Task, c.server.config.MaxPipelined)
	writerDone := make(chan struct{})
	go c.writeLoop(pending, writerDone)

	defer func() {
		close(pending)
		<-writerDone
	}()

	err := c.readLoop(ctx, pending, writerDone)

	var netErr net.Error
	switch {
	case err == nil:
		logger.Debug("Connection %s: closed by client", c.id)
	case errors.Is(err, errShutdown), errors.Is(err, context.Canceled), errors.Is(err, queue.ErrQueueClosed):
		logger.Debug("Connection %s: stopped reading for shutdown", c.id)
	case errors.Is(err, bufio.ErrTooLong):
		logger.Warn("Connection %s from %s: request line exceeds %d bytes, closing",
			c.id, c.remote, c.server.config.MaxLineBytes)
	case errors.As(err, &netErr) && netErr.Timeout():
		if c.stopping() {
			logger.Debug("Connection %s: read interrupted for shutdown", c.id)
		} else {
			logger.Debug("Connection %s: idle timeout", c.id)
		}
	default:
		logger.Debug("Connection %s: read ended: %v", c.id, err)
	}
}

// readLoop frames the byte stream into lines and submits each one.
// A final line without terminator before EOF is still a request.
//
// Returns nil on EOF, otherwise the reason reading stopped.
func (c *LineConnection) readLoop(ctx context.Context, pending chan<- *queue.Task, writerDone <-chan struct{}) error {
	// Scanner caps tokens at max(cap(buf), limit), so the initial buffer
	// must not exceed the limit.
	limit := c.server.config.MaxLineBytes
	scanner := bufio.NewScanner(c.conn)
	scanner.Buffer(make([]byte, 0, min(initialLineBuffer, limit)), limit)

	for {
		// The deadline must be set before the shutdown check: shutdown
		// expires deadlines after closing the shutdown channel, so one of
		// the two always wins.
		if err := c.conn.SetReadDeadline(time.Now().Add(c.server.config.IdleTimeout)); err != nil {
			return err
		}
		if c.stopping() {
			return errShutdown
		}

		if !scanner.Scan() {
			err := scanner.Err()
			if err == nil || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		if c.stopping() {
			c.discard(scanner.Text(), errShutdown)
			return errShutdown
		}

		task := queue.NewTask(c.id, c.remote, scanner.Text())
		if err := c.admit(ctx, task); err != nil {
			c.discard(task.Line, err)
			return err
		}

		select {
		case pending <- task:
		case <-writerDone:
			return errWriterClosed
		}
	}
}

// admit passes a task through the rate limiter and into the queue. A task
// refused under the reject policy is completed here with the busy reply, so
// the caller still queues its reply slot and ordering is preserved.
//
// Returns an error only when the reader should stop.
func (c *LineConnection) admit(ctx context.Context, task *queue.Task) error {
	policy := c.server.submitter.Policy()

	if c.server.limiter.Enabled() {
		if policy == queue.PolicyReject {
			if !c.server.limiter.Allow() {
				logger.Debug("Connection %s: rate limited (%.2f tokens left)",
					c.id, c.server.limiter.Tokens())
				c.reject(task, metrics.RejectRateLimited)
				return nil
			}
		} else if err := c.server.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	err := c.server.submitter.Enqueue(ctx, task)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, queue.ErrQueueFull):
		c.reject(task, metrics.RejectQueueFull)
		return nil
	default:
		return err
	}
}

func (c *LineConnection) reject(task *queue.Task, reason string) {
	c.server.counters.RecordRejected()
	c.server.metrics.RecordRejected(reason)
	task.Complete(protocol.MsgServerBusy)
	logger.Debug("Connection %s: rejected %q (%s)", c.id, task.Line, reason)
}

// discard accounts for a line that was read but never queued because the
// server is shutting down. The client gets no reply for it.
func (c *LineConnection) discard(line string, reason error) {
	c.server.counters.RecordDropped(1)
	c.server.metrics.RecordDropped(1)
	logger.Debug("Connection %s: dropped %q read during shutdown: %v", c.id, line, reason)
}

// writeLoop writes replies in request order. It is the only goroutine that
// writes to the socket.
//
// It returns when pending is closed and drained, when a write fails (the
// socket is closed so the reader stops too), or when the server's shutdown
// timeout expires.
func (c *LineConnection) writeLoop(pending <-chan *queue.Task, done chan<- struct{}) {
	defer close(done)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic in connection writer %s from %s: %v", c.id, c.remote, r)
			_ = c.conn.Close()
		}
	}()

	for task := range pending {
		var reply string
		select {
		case reply = <-task.Reply():
		case <-c.server.forceCtx.Done():
			return
		}

		if err := c.writeReply(reply); err != nil {
			logger.Debug("Connection %s: write failed: %v", c.id, err)
			_ = c.conn.Close()
			return
		}
	}
}

func (c *LineConnection) writeReply(reply string) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.server.config.WriteTimeout)); err != nil {
		return err
	}

	buf := make([]byte, 0, len(reply)+1)
	buf = append(buf, reply...)
	buf = append(buf, '\n')

	_, err := c.conn.Write(buf)
	return err
}

// interruptRead expires the read deadline so a blocked Read returns.
func (c *LineConnection) interruptRead() {
	if err := c.conn.SetReadDeadline(time.Now()); err != nil {
		logger.Debug("Connection %s: failed to interrupt read: %v", c.id, err)
	}
}

func (c *LineConnection) stopping() bool {
	select {
	case <-c.server.shutdown:
		return true
	default:
		return false
	}
}
