package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/linepool/internal/logger"
	"github.com/marmos91/linepool/internal/protocol"
	"github.com/marmos91/linepool/internal/ratelimiter"
	"github.com/marmos91/linepool/pkg/adapter"
	"github.com/marmos91/linepool/pkg/adapter/line"
	"github.com/marmos91/linepool/pkg/metrics"
	"github.com/marmos91/linepool/pkg/queue"
	"github.com/marmos91/linepool/pkg/stats"
	"github.com/marmos91/linepool/pkg/worker"
)

// Default sizing used when Config leaves a field at zero.
const (
	DefaultWorkers   = 8
	DefaultQueueSize = 500
)

// ErrShutdownTimeout is returned (wrapped) by Serve when the workers did not
// drain the queue within the shutdown timeout and queued requests were
// dropped. It is a report, not a failure: everything has stopped by the time
// Serve returns it.
var ErrShutdownTimeout = errors.New("shutdown timeout exceeded")

// Config assembles the settings of every component.
type Config struct {
	// Line configures the listening socket and per-connection limits. Its
	// ShutdownTimeout is also the worker join timeout.
	Line line.Config

	// Workers is the number of worker goroutines.
	Workers int

	// Queue sizes the task queue and selects the backpressure policy. A zero
	// RejectWait rejects as soon as the queue is full.
	Queue queue.Config

	// RateLimitRPS enables the admission limiter when positive.
	RateLimitRPS   float64
	RateLimitBurst int

	// StatsInterval is the stats reporting period.
	StatsInterval time.Duration

	// Metrics, when non-nil, serves /metrics, /healthz and /stats.
	Metrics *MetricsConfig
}

// MetricsConfig locates the metrics HTTP endpoint.
type MetricsConfig struct {
	Host string
	Port int
}

// LineServer wires the queue, the worker pool, the line adapter and the stats
// reporter together and owns their shutdown.
//
// Lifecycle:
//  1. Creation: New() builds every component in a stopped state
//  2. Startup: Serve() binds the socket and starts all components
//  3. Shutdown: context cancellation or Stop() runs the shutdown sequence
//
// Shutdown sequence (see shutdown):
//  1. Listener closed and connection reads interrupted
//  2. Queue sealed; workers drain what is already queued
//  3. After ShutdownTimeout: workers told to stop, still-queued tasks dropped
//     and answered with an error, in-flight tasks allowed to finish
//  4. Connections flush the replies they owe (force-closed after timeout)
//  5. Reporter and metrics server stopped, final stats logged
//
// Shutdown latency is therefore bounded by ShutdownTimeout plus the longest
// in-flight SLEEP.
type LineServer struct {
	config Config

	queue    *queue.Queue
	counters *stats.Counters
	pool     *worker.Pool
	adapter  adapter.Adapter
	reporter *stats.Reporter
	metrics  metrics.LineMetrics

	metricsServer *metrics.Server

	served   atomic.Bool
	ready    chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
}

// New creates a LineServer. nil metrics uses the no-op implementation.
//
// Returns an error if the configuration is invalid.
func New(config Config, m metrics.LineMetrics) (*LineServer, error) {
	if config.Workers == 0 {
		config.Workers = DefaultWorkers
	}
	if config.Queue.Capacity == 0 {
		config.Queue.Capacity = DefaultQueueSize
	}
	if config.Workers < 0 {
		return nil, fmt.Errorf("invalid worker count %d: must be positive", config.Workers)
	}
	if config.Queue.Capacity < 0 {
		return nil, fmt.Errorf("invalid queue size %d: must be positive", config.Queue.Capacity)
	}
	if config.Queue.RejectWait < 0 {
		return nil, fmt.Errorf("invalid reject wait %v: must be >= 0", config.Queue.RejectWait)
	}
	if config.RateLimitRPS < 0 || config.RateLimitBurst < 0 {
		return nil, fmt.Errorf("invalid rate limit %v/s burst %d: must be >= 0",
			config.RateLimitRPS, config.RateLimitBurst)
	}
	config.Line = config.Line.WithDefaults()

	if m == nil {
		m = metrics.NewNoopLineMetrics()
	}

	q := queue.New(config.Queue)
	counters := stats.NewCounters()
	limiter := ratelimiter.New(config.RateLimitRPS, config.RateLimitBurst)

	// Connections get the join timeout plus the longest SLEEP to flush, so a
	// request still in flight when the workers are told to stop gets its
	// reply written before the socket is forced closed.
	lineConfig := config.Line
	lineConfig.ShutdownTimeout += protocol.MaxSleepMillis * time.Millisecond

	s := &LineServer{
		config:   config,
		queue:    q,
		counters: counters,
		pool:     worker.New(config.Workers, q, protocol.NewHandler(), counters, m),
		adapter:  line.New(lineConfig, q, limiter, counters, m),
		reporter: stats.NewReporter(counters, q, config.StatsInterval, m),
		metrics:  m,
		ready:    make(chan struct{}),
		stop:     make(chan struct{}),
	}

	if config.Metrics != nil {
		s.metricsServer = metrics.NewServer(metrics.ServerConfig{
			Host:  config.Metrics.Host,
			Port:  config.Metrics.Port,
			Stats: func() any { return s.Stats() },
		})
	}

	return s, nil
}

// Serve starts every component and blocks until ctx is cancelled, Stop is
// called or a component fails, then shuts down.
//
// Returns:
//   - nil after a clean shutdown
//   - an error wrapping ErrShutdownTimeout if queued requests were dropped
//   - the component's error if the listener or metrics server failed
func (s *LineServer) Serve(ctx context.Context) error {
	if !s.served.CompareAndSwap(false, true) {
		return errors.New("server already started")
	}

	if err := s.adapter.Listen(); err != nil {
		return err
	}
	close(s.ready)

	logger.Info("Starting line server: workers=%d queue=%d policy=%s",
		s.pool.Size(), s.queue.Cap(), s.queue.Policy())

	// Workers get their own context: shutdown cancels it only after giving
	// them the chance to drain the queue.
	workerCtx, hardStop := context.WithCancel(context.Background())
	defer hardStop()

	workersDone := make(chan struct{})
	go func() {
		defer close(workersDone)
		s.pool.Run(workerCtx)
	}()

	serveCtx, cancelServe := context.WithCancel(context.Background())
	defer cancelServe()

	adapterDone := make(chan error, 1)
	go func() {
		adapterDone <- s.adapter.Serve(serveCtx)
	}()

	var aux sync.WaitGroup
	metricsErr := make(chan error, 1)

	aux.Add(1)
	go func() {
		defer aux.Done()
		s.reporter.Run(serveCtx)
	}()

	if s.metricsServer != nil {
		aux.Add(1)
		go func() {
			defer aux.Done()
			if err := s.metricsServer.Start(serveCtx); err != nil {
				metricsErr <- err
			}
		}()
	}

	var (
		adapterErr error
		adapterOut bool
		failure    error
	)

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received (reason: %v)", ctx.Err())
	case <-s.stop:
		logger.Info("Shutdown requested")
	case adapterErr = <-adapterDone:
		adapterOut = true
		failure = fmt.Errorf("%s adapter stopped unexpectedly: %w", s.adapter.Protocol(), adapterErr)
		logger.Error("%v - initiating shutdown", failure)
	case err := <-metricsErr:
		failure = err
		logger.Error("Metrics server failed: %v - initiating shutdown", err)
	}

	cancelServe()

	shutdownErr := s.shutdown(hardStop, workersDone)

	if !adapterOut {
		adapterErr = <-adapterDone
		if adapterErr != nil {
			logger.Warn("%s adapter: %v", s.adapter.Protocol(), adapterErr)
		}
	}

	aux.Wait()
	s.reporter.Report()

	logger.Info("Line server stopped")

	if failure != nil {
		return errors.Join(failure, shutdownErr)
	}
	return shutdownErr
}

// shutdown seals the queue and joins the workers. The adapter has already
// been told to stop by the caller.
func (s *LineServer) shutdown(hardStop context.CancelFunc, workersDone <-chan struct{}) error {
	s.queue.Close()

	timeout := s.config.Line.ShutdownTimeout
	logger.Info("Waiting for workers to drain %d queued request(s) (timeout: %v)",
		s.queue.Len(), timeout)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-workersDone:
		logger.Debug("Workers drained the queue")
		return nil
	case <-timer.C:
	}

	hardStop()

	dropped := s.queue.Drain()
	for _, t := range dropped {
		t.Complete(protocol.MsgShuttingDown)
	}
	s.counters.RecordDropped(len(dropped))
	s.metrics.RecordDropped(len(dropped))

	logger.Warn("Workers did not drain the queue within %v: dropped %d queued request(s), waiting for %d in-flight",
		timeout, len(dropped), s.pool.Active())

	<-workersDone

	return fmt.Errorf("%w: %d queued request(s) dropped after %v", ErrShutdownTimeout, len(dropped), timeout)
}

// Stop asks a running Serve to shut down. It does not wait; Serve returns
// when shutdown is complete. Safe to call more than once, and before Serve.
func (s *LineServer) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
}

// Ready is closed once the listening socket is bound.
func (s *LineServer) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the bound address, or nil before Ready.
func (s *LineServer) Addr() net.Addr {
	return s.adapter.Addr()
}

// MetricsAddr returns the metrics endpoint address once bound, or "" when
// metrics are disabled or ctx ends first.
func (s *LineServer) MetricsAddr(ctx context.Context) string {
	if s.metricsServer == nil {
		return ""
	}
	return s.metricsServer.Addr(ctx)
}

// Stats returns the current counters with the queue length.
func (s *LineServer) Stats() stats.Snapshot {
	return s.reporter.Snapshot()
}

// ActiveConnections returns the number of open client connections.
func (s *LineServer) ActiveConnections() int32 {
	return s.adapter.ActiveConnections()
}
