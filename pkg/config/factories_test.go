package config

import (
	"testing"
	"time"

	"github.com/marmos91/linepool/pkg/metrics"
	"github.com/marmos91/linepool/pkg/queue"
)

func TestServerConfig_MapsEverySection(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Server.Port = 7100
	cfg.Workers.Count = 3
	cfg.Queue.Size = 12
	cfg.Queue.Backpressure = "reject-with-error"
	cfg.Queue.RejectWait = 20 * time.Millisecond
	cfg.RateLimit.RequestsPerSecond = 50
	cfg.RateLimit.Burst = 5
	cfg.Stats.Interval = time.Second

	sc, err := cfg.ServerConfig()
	if err != nil {
		t.Fatalf("ServerConfig failed: %v", err)
	}

	if sc.Line.Port != 7100 {
		t.Errorf("Expected line port 7100, got %d", sc.Line.Port)
	}
	if sc.Workers != 3 {
		t.Errorf("Expected 3 workers, got %d", sc.Workers)
	}
	if sc.Queue.Capacity != 12 {
		t.Errorf("Expected queue capacity 12, got %d", sc.Queue.Capacity)
	}
	if sc.Queue.Policy != queue.PolicyReject {
		t.Errorf("Expected reject policy, got %v", sc.Queue.Policy)
	}
	if sc.Queue.RejectWait != 20*time.Millisecond {
		t.Errorf("Expected reject wait 20ms, got %v", sc.Queue.RejectWait)
	}
	if sc.RateLimitRPS != 50 || sc.RateLimitBurst != 5 {
		t.Errorf("Expected rate 50/5, got %v/%d", sc.RateLimitRPS, sc.RateLimitBurst)
	}
	if sc.StatsInterval != time.Second {
		t.Errorf("Expected stats interval 1s, got %v", sc.StatsInterval)
	}
	if sc.Metrics != nil {
		t.Error("Expected no metrics endpoint when metrics are disabled")
	}
}

func TestServerConfig_MetricsEnabled(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Metrics.Enabled = true
	cfg.Metrics.Port = 9191

	sc, err := cfg.ServerConfig()
	if err != nil {
		t.Fatalf("ServerConfig failed: %v", err)
	}
	if sc.Metrics == nil {
		t.Fatal("Expected metrics endpoint when metrics are enabled")
	}
	if sc.Metrics.Host != "127.0.0.1" || sc.Metrics.Port != 9191 {
		t.Errorf("Expected metrics at 127.0.0.1:9191, got %s:%d", sc.Metrics.Host, sc.Metrics.Port)
	}
}

func TestServerConfig_InvalidBackpressure(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Queue.Backpressure = "drop"

	if _, err := cfg.ServerConfig(); err == nil {
		t.Error("Expected error for unknown backpressure policy")
	}
}

func TestInitializeMetrics_Disabled(t *testing.T) {
	cfg := GetDefaultConfig()

	m := InitializeMetrics(cfg)
	if m == nil {
		t.Fatal("Expected a metrics implementation, got nil")
	}
	if metrics.IsEnabled() {
		t.Error("Disabled metrics should not initialize the registry")
	}
}

func TestCreateServer(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Server.Port = 0

	srv, err := CreateServer(cfg, metrics.NewNoopLineMetrics())
	if err != nil {
		t.Fatalf("CreateServer failed: %v", err)
	}
	if srv == nil {
		t.Fatal("Expected server, got nil")
	}
	if srv.Addr() != nil {
		t.Error("Server should not be bound before Serve")
	}
}

func TestCreateServer_InvalidConfig(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Queue.Backpressure = "drop"

	if _, err := CreateServer(cfg, metrics.NewNoopLineMetrics()); err == nil {
		t.Error("Expected error for invalid configuration")
	}
}
