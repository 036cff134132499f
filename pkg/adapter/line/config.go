package line

import (
	"fmt"
	"time"
)

// Default values applied by New for zero fields.
const (
	DefaultHost            = "127.0.0.1"
	DefaultMaxLineBytes    = 64 * 1024
	DefaultMaxPipelined    = 128
	DefaultIdleTimeout     = 5 * time.Minute
	DefaultWriteTimeout    = 30 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
)

// Config holds the line server's network settings.
//
// Default values (applied by New if zero):
//   - Host: 127.0.0.1
//   - Port: 0 picks a free port (the configuration layer defaults to 9000)
//   - MaxConnections: 0 (unlimited)
//   - MaxLineBytes: 64 KiB
//   - MaxPipelined: 128
//   - IdleTimeout: 5m
//   - WriteTimeout: 30s
//   - ShutdownTimeout: 10s
type Config struct {
	// Host is the address to bind.
	Host string `mapstructure:"host"`

	// Port is the TCP port to listen on.
	Port int `mapstructure:"port" validate:"min=0,max=65535"`

	// MaxConnections caps concurrently open connections. When reached, the
	// acceptor waits for a connection to close before accepting another.
	// 0 means unlimited: one reader per connection, without bound.
	MaxConnections int `mapstructure:"max_connections" validate:"min=0"`

	// MaxLineBytes is the longest accepted request line. A longer line
	// closes the connection.
	MaxLineBytes int `mapstructure:"max_line_bytes" validate:"min=0"`

	// MaxPipelined caps the replies a connection may owe at once. When
	// reached, the connection stops reading until a reply is written.
	MaxPipelined int `mapstructure:"max_pipelined" validate:"min=0"`

	// IdleTimeout closes a connection that sends nothing for this long.
	IdleTimeout time.Duration `mapstructure:"idle_timeout" validate:"min=0"`

	// WriteTimeout bounds writing one reply.
	WriteTimeout time.Duration `mapstructure:"write_timeout" validate:"min=0"`

	// ShutdownTimeout bounds how long shutdown waits for connections to
	// flush their replies (and for workers to drain the queue) before
	// forcing them closed.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"min=0"`
}

// applyDefaults fills in zero values with sensible defaults.
func (c *Config) applyDefaults() {
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.MaxLineBytes == 0 {
		c.MaxLineBytes = DefaultMaxLineBytes
	}
	if c.MaxPipelined == 0 {
		c.MaxPipelined = DefaultMaxPipelined
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
}

// validate checks the configuration after defaults are applied.
func (c *Config) validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be 0-65535", c.Port)
	}
	if c.MaxConnections < 0 {
		return fmt.Errorf("invalid MaxConnections %d: must be >= 0", c.MaxConnections)
	}
	if c.MaxLineBytes < 0 {
		return fmt.Errorf("invalid MaxLineBytes %d: must be >= 0", c.MaxLineBytes)
	}
	if c.MaxPipelined < 0 {
		return fmt.Errorf("invalid MaxPipelined %d: must be >= 0", c.MaxPipelined)
	}
	if c.IdleTimeout < 0 || c.WriteTimeout < 0 || c.ShutdownTimeout < 0 {
		return fmt.Errorf("invalid timeouts idle=%v write=%v shutdown=%v: must be >= 0",
			c.IdleTimeout, c.WriteTimeout, c.ShutdownTimeout)
	}
	return nil
}

// WithDefaults returns a copy of c with defaults applied.
func (c Config) WithDefaults() Config {
	c.applyDefaults()
	return c
}
