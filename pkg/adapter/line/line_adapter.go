// Package line implements the TCP front end of the line protocol server.
//
// LineAdapter owns the listening socket and the lifecycle of every client
// connection. Each connection runs two goroutines:
//
//   - a reader that splits the byte stream into lines and submits each line
//     to the shared task queue
//   - a writer that hands replies back to the client in request order
//
// The reader pushes each submitted task's reply slot onto a bounded FIFO; the
// writer pops slots in order and waits on each. Replies on one connection
// are therefore written in the order the requests arrived, no matter which
// workers produced them, and only one goroutine ever writes to the socket.
package line

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/linepool/internal/logger"
	"github.com/marmos91/linepool/internal/ratelimiter"
	"github.com/marmos91/linepool/pkg/metrics"
	"github.com/marmos91/linepool/pkg/queue"
	"github.com/marmos91/linepool/pkg/stats"
)

// Submitter is the queue as seen by connection readers.
// *queue.Queue implements it.
type Submitter interface {
	Enqueue(ctx context.Context, t *queue.Task) error
	Policy() queue.Policy
}

// LineAdapter accepts client connections and serves the line protocol on
// them.
//
// Shutdown flow:
//  1. Context cancelled or Stop() called
//  2. Listener closed (no new connections)
//  3. shutdownCtx cancelled and blocked reads interrupted: readers stop
//     submitting new requests
//  4. Writers flush the replies their connection still owes
//  5. Wait for connections to complete (up to ShutdownTimeout)
//  6. Cancel writers and force-close any remaining connections after timeout
//
// Thread safety:
// All methods are safe for concurrent use. Shutdown uses sync.Once, so
// Stop() is idempotent.
type LineAdapter struct {
	config Config

	// listener is created by Listen and closed during shutdown.
	listener net.Listener
	listenMu sync.Mutex

	submitter Submitter
	limiter   *ratelimiter.RateLimiter
	counters  *stats.Counters
	metrics   metrics.LineMetrics

	// activeConns counts connection goroutines for graceful shutdown.
	activeConns sync.WaitGroup

	shutdownOnce sync.Once

	// shutdown is closed when shutdown starts. Readers check it between
	// lines.
	shutdown chan struct{}

	connCount atomic.Int32

	// connSemaphore limits concurrent connections if MaxConnections > 0.
	// nil means unlimited.
	connSemaphore chan struct{}

	// shutdownCtx is cancelled when shutdown starts. Readers pass it to
	// the queue and the rate limiter, so a reader blocked on backpressure
	// gives up instead of submitting more work.
	shutdownCtx    context.Context
	cancelRequests context.CancelFunc

	// forceCtx is cancelled when the shutdown timeout expires. Writers
	// stop waiting for replies that will never come.
	forceCtx    context.Context
	cancelForce context.CancelFunc

	// activeConnections maps connection ID to *LineConnection for read
	// interruption and forced closure.
	activeConnections sync.Map
}

// New creates a LineAdapter in a stopped state.
//
// Parameters:
//   - config: network settings; zero values are replaced with defaults
//   - submitter: the shared task queue
//   - limiter: optional admission limiter (nil disables)
//   - counters: server-wide counters, for rejected requests
//   - m: optional metrics (nil for no-op)
//
// Panics if config validation fails.
func New(config Config, submitter Submitter, limiter *ratelimiter.RateLimiter, counters *stats.Counters, m metrics.LineMetrics) *LineAdapter {
	config.applyDefaults()
	if err := config.validate(); err != nil {
		panic(fmt.Sprintf("invalid line server config: %v", err))
	}

	var connSemaphore chan struct{}
	if config.MaxConnections > 0 {
		connSemaphore = make(chan struct{}, config.MaxConnections)
		logger.Debug("Connection limit: %d", config.MaxConnections)
	} else {
		logger.Debug("Connection limit: unlimited")
	}

	if m == nil {
		m = metrics.NewNoopLineMetrics()
	}
	if counters == nil {
		counters = stats.NewCounters()
	}

	shutdownCtx, cancelRequests := context.WithCancel(context.Background())
	forceCtx, cancelForce := context.WithCancel(context.Background())

	return &LineAdapter{
		config:         config,
		submitter:      submitter,
		limiter:        limiter,
		counters:       counters,
		metrics:        m,
		shutdown:       make(chan struct{}),
		connSemaphore:  connSemaphore,
		shutdownCtx:    shutdownCtx,
		cancelRequests: cancelRequests,
		forceCtx:       forceCtx,
		cancelForce:    cancelForce,
	}
}

// Listen binds the listening socket.
func (s *LineAdapter) Listen() error {
	s.listenMu.Lock()
	defer s.listenMu.Unlock()

	if s.listener != nil {
		return errors.New("line server already listening")
	}

	addr := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to create listener on %s: %w", addr, err)
	}

	s.listener = listener
	logger.Info("Line server listening on %s", listener.Addr())
	logger.Debug("Line server config: max_connections=%d max_line_bytes=%d max_pipelined=%d idle_timeout=%v write_timeout=%v",
		s.config.MaxConnections, s.config.MaxLineBytes, s.config.MaxPipelined,
		s.config.IdleTimeout, s.config.WriteTimeout)

	return nil
}

// Serve accepts connections until ctx is cancelled, then shuts down
// gracefully.
//
// Accept() is unblocked by closing the listener rather than by polling with
// a timeout, so shutdown does not wait for an accept tick.
//
// Returns:
//   - nil on graceful shutdown
//   - error if the listener cannot be created or shutdown timed out
func (s *LineAdapter) Serve(ctx context.Context) error {
	if s.currentListener() == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}
	listener := s.currentListener()

	go func() {
		select {
		case <-ctx.Done():
			logger.Info("Line server shutdown signal received: %v", ctx.Err())
			s.initiateShutdown()
		case <-s.shutdown:
		}
	}()

	var backoff time.Duration
	for {
		if s.connSemaphore != nil {
			select {
			case s.connSemaphore <- struct{}{}:
			case <-s.shutdown:
				return s.gracefulShutdown()
			}
		}

		tcpConn, err := listener.Accept()
		if err != nil {
			if s.connSemaphore != nil {
				<-s.connSemaphore
			}

			select {
			case <-s.shutdown:
				return s.gracefulShutdown()
			default:
			}

			// Transient errors (e.g. EMFILE) are retried with capped
			// exponential backoff; anything else is fatal.
			var netErr net.Error
			if (errors.As(err, &netErr) && netErr.Timeout()) || isTemporary(err) {
				backoff = nextBackoff(backoff)
				logger.Warn("Accept error: %v; retrying in %v", err, backoff)
				select {
				case <-time.After(backoff):
				case <-s.shutdown:
					return s.gracefulShutdown()
				}
				continue
			}

			s.initiateShutdown()
			_ = s.gracefulShutdown()
			return fmt.Errorf("accept failed: %w", err)
		}
		backoff = 0

		s.handle(tcpConn)
	}
}

// handle registers and serves one accepted connection.
func (s *LineAdapter) handle(tcpConn net.Conn) {
	s.activeConns.Add(1)
	currentConns := s.connCount.Add(1)

	conn := NewLineConnection(s, tcpConn)
	s.activeConnections.Store(conn.ID(), conn)

	// A connection accepted while shutdown starts may have missed the read
	// interruption sweep.
	select {
	case <-s.shutdown:
		conn.interruptRead()
	default:
	}

	s.metrics.RecordConnectionAccepted()
	s.metrics.SetActiveConnections(currentConns)

	logger.Debug("Connection %s accepted from %s (active: %d)",
		conn.ID(), tcpConn.RemoteAddr(), currentConns)

	go func() {
		defer func() {
			s.activeConnections.Delete(conn.ID())

			s.activeConns.Done()
			remaining := s.connCount.Add(-1)
			if s.connSemaphore != nil {
				<-s.connSemaphore
			}

			s.metrics.RecordConnectionClosed()
			s.metrics.SetActiveConnections(remaining)

			logger.Debug("Connection %s closed from %s (active: %d)",
				conn.ID(), tcpConn.RemoteAddr(), remaining)
		}()

		conn.Serve(s.shutdownCtx)
	}()
}

// initiateShutdown stops accepting and reading. Safe to call multiple times.
//
// Shutdown sequence:
//  1. Close shutdown channel (readers stop between lines)
//  2. Close listener (unblocks Accept)
//  3. Cancel shutdownCtx (releases readers blocked on backpressure)
//  4. Expire read deadlines (releases readers blocked in Read)
func (s *LineAdapter) initiateShutdown() {
	s.shutdownOnce.Do(func() {
		logger.Debug("Line server shutdown initiated")

		close(s.shutdown)

		if l := s.currentListener(); l != nil {
			if err := l.Close(); err != nil {
				logger.Debug("Error closing listener: %v", err)
			}
		}

		s.cancelRequests()

		s.activeConnections.Range(func(_, value any) bool {
			value.(*LineConnection).interruptRead()
			return true
		})
	})
}

// gracefulShutdown waits for active connections to finish writing their
// replies, force-closing them after ShutdownTimeout.
//
// Returns:
//   - nil if all connections completed gracefully
//   - error if the timeout expired and connections were force-closed
func (s *LineAdapter) gracefulShutdown() error {
	activeCount := s.connCount.Load()
	logger.Info("Line server graceful shutdown: waiting for %d active connection(s) (timeout: %v)",
		activeCount, s.config.ShutdownTimeout)

	if s.waitConnections(s.config.ShutdownTimeout) {
		logger.Info("Line server graceful shutdown complete: all connections closed")
		return nil
	}

	remaining := s.connCount.Load()
	logger.Warn("Line server shutdown timeout exceeded: %d connection(s) still active after %v - forcing closure",
		remaining, s.config.ShutdownTimeout)

	s.forceCloseConnections()

	return fmt.Errorf("line server shutdown timeout: %d connections force-closed", remaining)
}

// waitConnections waits up to timeout for all connection goroutines to exit.
func (s *LineAdapter) waitConnections(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		s.activeConns.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

// forceCloseConnections cancels writers and closes every remaining socket.
// Blocked reads and writes fail immediately and the connection goroutines
// exit.
func (s *LineAdapter) forceCloseConnections() {
	s.cancelForce()

	closedCount := 0
	s.activeConnections.Range(func(_, value any) bool {
		conn := value.(*LineConnection)
		if err := conn.conn.Close(); err != nil {
			logger.Debug("Error force-closing connection %s: %v", conn.ID(), err)
		} else {
			closedCount++
			s.metrics.RecordConnectionForceClosed()
		}
		return true
	})

	if closedCount > 0 {
		logger.Info("Force-closed %d connection(s)", closedCount)
	}
}

// Stop initiates graceful shutdown and waits for connections to finish or
// ctx to end.
//
// Returns:
//   - nil when all connections have closed
//   - ctx.Err() if ctx ended first; connections are then force-closed
func (s *LineAdapter) Stop(ctx context.Context) error {
	s.initiateShutdown()

	done := make(chan struct{})
	go func() {
		s.activeConns.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		logger.Warn("Line server stop: %d connection(s) still active: %v",
			s.connCount.Load(), ctx.Err())
		s.forceCloseConnections()
		return ctx.Err()
	}
}

// ActiveConnections returns the current number of open connections.
func (s *LineAdapter) ActiveConnections() int32 {
	return s.connCount.Load()
}

// Addr returns the bound address, or nil before Listen.
func (s *LineAdapter) Addr() net.Addr {
	if l := s.currentListener(); l != nil {
		return l.Addr()
	}
	return nil
}

// Port returns the bound port once listening, the configured port before.
func (s *LineAdapter) Port() int {
	if tcp, ok := s.Addr().(*net.TCPAddr); ok {
		return tcp.Port
	}
	return s.config.Port
}

// Protocol returns "LINE" as the protocol identifier.
func (s *LineAdapter) Protocol() string {
	return "LINE"
}

func (s *LineAdapter) currentListener() net.Listener {
	s.listenMu.Lock()
	defer s.listenMu.Unlock()
	return s.listener
}

// newConnID returns a time-ordered connection identifier.
func newConnID() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return id
}

func nextBackoff(d time.Duration) time.Duration {
	const maxBackoff = time.Second
	if d == 0 {
		return 5 * time.Millisecond
	}
	d *= 2
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

// isTemporary reports whether err is an accept error worth retrying.
func isTemporary(err error) bool {
	var t interface{ Temporary() bool }
	return errors.As(err, &t) && t.Temporary()
}
