package config

import (
	"fmt"

	"github.com/marmos91/linepool/pkg/metrics"
	"github.com/marmos91/linepool/pkg/server"
)

// CreateServer builds the line server described by the configuration.
//
// Parameters:
//   - cfg: The complete linepool configuration
//   - m: Optional metrics collector (nil = no metrics, see InitializeMetrics)
//
// Returns:
//   - *server.LineServer: Ready to Serve
//   - error: If the configuration cannot be turned into server settings
func CreateServer(cfg *Config, m metrics.LineMetrics) (*server.LineServer, error) {
	sc, err := cfg.ServerConfig()
	if err != nil {
		return nil, fmt.Errorf("invalid server configuration: %w", err)
	}

	srv, err := server.New(sc, m)
	if err != nil {
		return nil, fmt.Errorf("failed to create server: %w", err)
	}

	return srv, nil
}
