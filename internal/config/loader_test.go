package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/flowdeck/flowdeck/internal/config"
)

func writeYAML(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "flowdeck.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	return path
}

func TestLoadFrom_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := config.LoadFrom(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("missing yaml must not be an error: %v", err)
	}
	if cfg.Server.Port != "8090" {
		t.Fatalf("expected default port, got %q", cfg.Server.Port)
	}
	if cfg.Retention.LogLimit != 0 {
		t.Fatalf("expected unbounded log by default, got %d", cfg.Retention.LogLimit)
	}
}

func TestLoadFrom_YAMLOverridesDefaults(t *testing.T) {
	path := writeYAML(t, `
server:
  port: "9999"
breaker:
  max_failures: 3
  timeout: 10s
retention:
  log_limit: 500
`)
	cfg, err := config.LoadFrom(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9999" {
		t.Fatalf("expected yaml port, got %q", cfg.Server.Port)
	}
	if cfg.Breaker.MaxFailures != 3 || cfg.Breaker.Timeout != 10*time.Second {
		t.Fatalf("breaker not overridden: %+v", cfg.Breaker)
	}
	if cfg.Retention.LogLimit != 500 {
		t.Fatalf("expected log_limit 500, got %d", cfg.Retention.LogLimit)
	}
	// Untouched sections keep defaults.
	if cfg.NATS.URL != "nats://localhost:4222" {
		t.Fatalf("expected default nats url, got %q", cfg.NATS.URL)
	}
}

func TestLoadFrom_EnvOverridesYAML(t *testing.T) {
	path := writeYAML(t, `
server:
  port: "9999"
`)
	t.Setenv("FLOWDECK_PORT", "7777")
	t.Setenv("FLOWDECK_LOG_LEVEL", "debug")
	t.Setenv("FLOWDECK_CACHE_SNAPSHOT_TTL", "5s")

	cfg, err := config.LoadFrom(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "7777" {
		t.Fatalf("env must beat yaml, got %q", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("expected debug level, got %q", cfg.Logging.Level)
	}
	if cfg.Cache.SnapshotTTL != 5*time.Second {
		t.Fatalf("expected 5s ttl, got %s", cfg.Cache.SnapshotTTL)
	}
}

func TestLoadFrom_MalformedYAML(t *testing.T) {
	path := writeYAML(t, "server: [not a map")
	if _, err := config.LoadFrom(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadFrom_ValidationRejectsEmptyPort(t *testing.T) {
	path := writeYAML(t, `
server:
  port: ""
`)
	t.Setenv("FLOWDECK_PORT", "")
	if _, err := config.LoadFrom(path); err == nil {
		t.Fatal("expected validation error for empty port")
	}
}

func TestLoadFrom_ValidationRejectsNegativeLogLimit(t *testing.T) {
	path := writeYAML(t, `
retention:
  log_limit: -1
`)
	if _, err := config.LoadFrom(path); err == nil {
		t.Fatal("expected validation error for negative log_limit")
	}
}
