package config

import (
	"github.com/marmos91/linepool/pkg/metrics"
	promMetrics "github.com/marmos91/linepool/pkg/metrics/prometheus"
	"github.com/marmos91/linepool/pkg/queue"
	"github.com/marmos91/linepool/pkg/server"
)

// InitializeMetrics creates the metrics collector described by the
// configuration.
//
// If metrics are enabled in the configuration:
//   - Initializes the global Prometheus registry
//   - Returns Prometheus-backed collectors registered on it
//
// If metrics are disabled:
//   - Returns the no-op implementation (zero overhead)
func InitializeMetrics(cfg *Config) metrics.LineMetrics {
	if !cfg.Metrics.Enabled {
		return metrics.NewNoopLineMetrics()
	}

	metrics.InitRegistry()

	return promMetrics.NewLineMetrics()
}

// ServerConfig converts the loaded configuration into the settings of
// server.New.
func (c *Config) ServerConfig() (server.Config, error) {
	policy, err := queue.ParsePolicy(c.Queue.Backpressure)
	if err != nil {
		return server.Config{}, err
	}

	sc := server.Config{
		Line:    c.Server,
		Workers: c.Workers.Count,
		Queue: queue.Config{
			Capacity:   c.Queue.Size,
			Policy:     policy,
			RejectWait: c.Queue.RejectWait,
		},
		RateLimitRPS:   c.RateLimit.RequestsPerSecond,
		RateLimitBurst: c.RateLimit.Burst,
		StatsInterval:  c.Stats.Interval,
	}

	if c.Metrics.Enabled {
		sc.Metrics = &server.MetricsConfig{
			Host: c.Metrics.Host,
			Port: c.Metrics.Port,
		}
	}

	return sc, nil
}
