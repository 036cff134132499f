// Package metrics provides optional Prometheus metrics for linepool.
//
// Metrics are off unless InitRegistry is called. Components receive a
// LineMetrics value; when metrics are disabled that value is a no-op with no
// overhead, so the hot path never checks whether collection is on.
//
// Usage:
//
//	metrics.InitRegistry()
//	m := prometheus.NewLineMetrics() // pkg/metrics/prometheus
//	srv := server.New(cfg, m)
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// registry is written once by InitRegistry and read many times.
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry creates the process-wide registry and registers the Go
// runtime and process collectors on it. Later calls are ignored.
func InitRegistry() {
	registryOnce.Do(func() {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		registry = reg
	})
}

// GetRegistry returns the process-wide registry, or nil if InitRegistry has
// not been called.
func GetRegistry() *prometheus.Registry {
	return registry
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	return GetRegistry() != nil
}
