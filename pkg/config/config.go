package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/marmos91/linepool/pkg/adapter/line"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config represents the complete linepool configuration.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (LINEPOOL_*)
//  3. Configuration file (YAML or TOML)
//  4. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging"`

	// Server contains the listening socket and per-connection settings.
	// Uses the line.Config type directly to avoid duplication.
	Server line.Config `mapstructure:"server"`

	// Queue sizes the shared task queue and selects its backpressure policy
	Queue QueueConfig `mapstructure:"queue"`

	// Workers sizes the worker pool
	Workers WorkersConfig `mapstructure:"workers"`

	// RateLimit configures the optional admission limiter
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`

	// Stats controls the periodic stats line
	Stats StatsConfig `mapstructure:"stats"`

	// Metrics controls the Prometheus endpoint
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required"`
}

// QueueConfig configures the task queue.
type QueueConfig struct {
	// Size is the queue capacity
	Size int `mapstructure:"size" validate:"required,gt=0"`

	// Backpressure selects what happens when the queue is full
	// Valid values: block, reject (aliases block-with-backpressure, reject-with-error)
	Backpressure string `mapstructure:"backpressure" validate:"required,oneof=block reject block-with-backpressure reject-with-error"`

	// RejectWait is how long the reject policy waits for space before
	// answering "ERR server busy"
	RejectWait time.Duration `mapstructure:"reject_wait" validate:"gte=0"`
}

// WorkersConfig configures the worker pool.
type WorkersConfig struct {
	// Count is the number of workers
	Count int `mapstructure:"count" validate:"required,gt=0"`
}

// RateLimitConfig configures the admission limiter. A zero rate disables it.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained admission rate across all connections
	RequestsPerSecond float64 `mapstructure:"requests_per_second" validate:"gte=0"`

	// Burst is the bucket size (0 = the rate rounded up)
	Burst int `mapstructure:"burst" validate:"gte=0"`
}

// StatsConfig controls the stats reporter.
type StatsConfig struct {
	// Interval is the reporting period
	Interval time.Duration `mapstructure:"interval" validate:"required,gt=0"`
}

// MetricsConfig controls the metrics HTTP server.
type MetricsConfig struct {
	// Enabled turns on Prometheus collection and the HTTP endpoint
	Enabled bool `mapstructure:"enabled"`

	// Host is the address the metrics server binds
	Host string `mapstructure:"host"`

	// Port is the metrics server port
	Port int `mapstructure:"port" validate:"min=0,max=65535"`
}

// flagKeys maps CLI flag names to configuration keys. Flags not registered on
// the FlagSet passed to LoadWithFlags are ignored.
var flagKeys = map[string]string{
	"host":           "server.host",
	"port":           "server.port",
	"workers":        "workers.count",
	"queue":          "queue.size",
	"backpressure":   "queue.backpressure",
	"log-level":      "logging.level",
	"metrics":        "metrics.enabled",
	"metrics-port":   "metrics.port",
	"stats-interval": "stats.interval",
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (LINEPOOL_*)
//  2. Configuration file
//  3. Default values
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	return LoadWithFlags(configPath, nil)
}

// LoadWithFlags is Load with CLI flags taking precedence over every other
// source. Only flags the user actually set override anything.
func LoadWithFlags(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	// Defaults must be registered so that environment variables are seen
	// by Unmarshal for keys absent from the config file.
	if err := registerDefaults(v, GetDefaultConfig()); err != nil {
		return nil, err
	}

	if flags != nil {
		if err := bindFlags(v, flags); err != nil {
			return nil, err
		}
	}

	if err := readConfigFile(v, configPath); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if flags != nil {
		applyFlagOverrides(&cfg, flags)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use LINEPOOL_ prefix and underscores
	// Example: LINEPOOL_SERVER_PORT=9100
	v.SetEnvPrefix("LINEPOOL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default location: $XDG_CONFIG_HOME/linepool/config.{yaml,toml}
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// registerDefaults makes every configuration key known to viper.
func registerDefaults(v *viper.Viper, defaults *Config) error {
	tree, err := toMap(defaults)
	if err != nil {
		return fmt.Errorf("failed to register defaults: %w", err)
	}
	for key, value := range flatten("", tree) {
		v.SetDefault(key, value)
	}
	return nil
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		flag := flags.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("failed to bind flag --%s: %w", name, err)
		}
	}
	return nil
}

// applyFlagOverrides handles flags that do not map one-to-one onto a key.
func applyFlagOverrides(cfg *Config, flags *pflag.FlagSet) {
	if flags.Changed("reject-when-full") {
		if reject, err := flags.GetBool("reject-when-full"); err == nil && reject {
			cfg.Queue.Backpressure = "reject"
		}
	}
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper, configPath string) error {
	// An explicit path that does not exist falls back to defaults, like a
	// missing file in the default location.
	if configPath != "" {
		if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
			return nil
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "linepool")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "linepool")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for init command).
func GetConfigDir() string {
	return getConfigDir()
}
