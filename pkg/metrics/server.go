package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/marmos91/linepool/internal/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server exposes metrics and server state over HTTP.
//
// Endpoints:
//   - GET /metrics: Prometheus text format (503 if metrics are disabled)
//   - GET /healthz: liveness probe, always 200 "ok"
//   - GET /stats: JSON snapshot of the line server counters
type Server struct {
	config       ServerConfig
	server       *http.Server
	addr         chan string
	shutdownOnce sync.Once
}

// ServerConfig configures the metrics HTTP server.
type ServerConfig struct {
	// Host to bind. Empty binds all interfaces.
	Host string

	// Port to listen on. 0 picks a free port (see Addr).
	Port int

	// Stats returns the value served as JSON on /stats. Optional.
	Stats func() any
}

// NewServer creates a metrics HTTP server in a stopped state. Call Start to
// begin serving.
func NewServer(config ServerConfig) *Server {
	s := &Server{
		config: config,
		addr:   make(chan string, 1),
	}

	s.server = &http.Server{
		Handler:      s.routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the HTTP handler, for mounting elsewhere or testing.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	if reg := GetRegistry(); reg != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{
			EnableOpenMetrics: true,
		}))
	} else {
		r.Get("/metrics", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/plain")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = fmt.Fprintln(w, "Metrics collection is disabled")
		})
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = fmt.Fprintln(w, "ok")
	})

	r.Get("/stats", func(w http.ResponseWriter, _ *http.Request) {
		if s.config.Stats == nil {
			http.Error(w, "stats unavailable", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(s.config.Stats()); err != nil {
			logger.Debug("Failed to encode /stats response: %v", err)
		}
	})

	return r
}

// Start binds the listener and serves until ctx is cancelled or the server
// fails.
//
// Returns:
//   - nil on graceful shutdown
//   - error if the listener cannot be created or serving fails
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", net.JoinHostPort(s.config.Host, fmt.Sprint(s.config.Port)))
	if err != nil {
		return fmt.Errorf("failed to create metrics listener on port %d: %w", s.config.Port, err)
	}
	s.addr <- listener.Addr().String()

	logger.Info("Metrics server listening on %s", listener.Addr())

	errChan := make(chan error, 1)
	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		// The caller's ctx is already done; give shutdown its own deadline.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("metrics server failed: %w", err)
	}
}

// Stop shuts the server down gracefully. Safe to call more than once and
// concurrently with Start.
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("metrics server shutdown error: %w", err)
			logger.Error("Metrics server shutdown error: %v", err)
		} else {
			logger.Debug("Metrics server stopped")
		}
	})
	return shutdownErr
}

// Addr blocks until Start has bound its listener and returns the address, or
// returns "" if ctx ends first.
func (s *Server) Addr(ctx context.Context) string {
	select {
	case a := <-s.addr:
		s.addr <- a
		return a
	case <-ctx.Done():
		return ""
	}
}

// Port returns the configured port.
func (s *Server) Port() int {
	return s.config.Port
}
