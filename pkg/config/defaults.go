package config

import (
	"strings"
	"time"

	"github.com/marmos91/linepool/pkg/adapter/line"
	"github.com/marmos91/linepool/pkg/server"
	"github.com/marmos91/linepool/pkg/stats"
)

// Default values for settings the server packages leave to the caller.
const (
	DefaultPort         = 9000
	DefaultBackpressure = "block"
	DefaultRejectWait   = time.Second
	DefaultMetricsPort  = 9090
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
//   - server.port is the exception: 0 is kept and picks a free port, the
//     default port comes from GetDefaultConfig when no source sets one
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyQueueDefaults(&cfg.Queue)
	applyWorkersDefaults(&cfg.Workers)
	applyStatsDefaults(&cfg.Stats)
	applyMetricsDefaults(&cfg.Metrics)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyServerDefaults sets listener and connection defaults.
func applyServerDefaults(cfg *line.Config) {
	*cfg = cfg.WithDefaults()
}

func applyQueueDefaults(cfg *QueueConfig) {
	if cfg.Size == 0 {
		cfg.Size = server.DefaultQueueSize
	}
	if cfg.Backpressure == "" {
		cfg.Backpressure = DefaultBackpressure
	}
	cfg.Backpressure = strings.ToLower(cfg.Backpressure)

	// reject_wait: 0 is meaningful (reject as soon as the queue is full)
	// and is preserved.
}

func applyWorkersDefaults(cfg *WorkersConfig) {
	if cfg.Count == 0 {
		cfg.Count = server.DefaultWorkers
	}
}

func applyStatsDefaults(cfg *StatsConfig) {
	if cfg.Interval == 0 {
		cfg.Interval = stats.DefaultInterval
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	// Enabled defaults to false
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultMetricsPort
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Registering every key with viper
//   - Testing
func GetDefaultConfig() *Config {
	cfg := &Config{
		Server: line.Config{
			Port: DefaultPort,
		},
		Queue: QueueConfig{
			RejectWait: DefaultRejectWait,
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
