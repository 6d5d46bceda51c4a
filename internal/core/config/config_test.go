package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDatabaseURL(t *testing.T) {
	t.Setenv(DatabaseURLEnv, "  sqlite://corr.db ")
	if got := DatabaseURL(); got != "sqlite://corr.db" {
		t.Errorf("DatabaseURL() = %q, want sqlite://corr.db", got)
	}

	t.Setenv(DatabaseURLEnv, "")
	if got := DatabaseURL(); got != "" {
		t.Errorf("DatabaseURL() = %q, want empty", got)
	}
}

func TestLoadConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := LoadConfig("")
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.Host != "0.0.0.0" {
			t.Errorf("expected host 0.0.0.0, got %s", cfg.Host)
		}
		if cfg.Port != 50051 {
			t.Errorf("expected port 50051, got %d", cfg.Port)
		}
		if cfg.RequestTimeout != 30*time.Second {
			t.Errorf("expected timeout 30s, got %v", cfg.RequestTimeout)
		}
		if cfg.MaxBatchSize != 1000 {
			t.Errorf("expected max_batch_size 1000, got %d", cfg.MaxBatchSize)
		}
		if cfg.MetricsAddr != ":9090" {
			t.Errorf("expected metrics_addr :9090, got %s", cfg.MetricsAddr)
		}
		if cfg.LogLevel != "info" || cfg.LogFormat != "json" {
			t.Errorf("expected info/json logging, got %s/%s", cfg.LogLevel, cfg.LogFormat)
		}
		if cfg.RateLimit != 0 || cfg.RateBurst != 100 {
			t.Errorf("expected rate limiting off with burst 100, got %v/%d", cfg.RateLimit, cfg.RateBurst)
		}
		if !cfg.StoreBreaker {
			t.Error("expected store breaker enabled by default")
		}
		if cfg.Addr() != "0.0.0.0:50051" {
			t.Errorf("expected addr 0.0.0.0:50051, got %s", cfg.Addr())
		}
	})

	t.Run("environment override", func(t *testing.T) {
		t.Setenv("CORR_CORRELATION_API_PORT", "9999")
		t.Setenv("CORR_CORRELATION_API_HOST", "127.0.0.1")
		t.Setenv("CORR_LOG_LEVEL", "DEBUG")

		cfg, err := LoadConfig("")
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.Port != 9999 {
			t.Errorf("expected port 9999, got %d", cfg.Port)
		}
		if cfg.Host != "127.0.0.1" {
			t.Errorf("expected host 127.0.0.1, got %s", cfg.Host)
		}
		if cfg.LogLevel != "debug" {
			t.Errorf("expected log level debug, got %s", cfg.LogLevel)
		}
	})

	t.Run("config file", func(t *testing.T) {
		path := writeConfig(t, `correlation_api:
  request_timeout: 5s
  max_batch_size: 50
log:
  format: console
`)
		cfg, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.RequestTimeout != 5*time.Second {
			t.Errorf("expected timeout 5s, got %v", cfg.RequestTimeout)
		}
		if cfg.MaxBatchSize != 50 {
			t.Errorf("expected max_batch_size 50, got %d", cfg.MaxBatchSize)
		}
		if cfg.LogFormat != "console" {
			t.Errorf("expected console format, got %s", cfg.LogFormat)
		}
	})

	t.Run("rate limit needs burst", func(t *testing.T) {
		t.Setenv("CORR_CORRELATION_API_RATE_LIMIT", "50")
		t.Setenv("CORR_CORRELATION_API_RATE_BURST", "0")
		if _, err := LoadConfig(""); err == nil {
			t.Error("expected error for rate limit without burst")
		}

		t.Setenv("CORR_CORRELATION_API_RATE_BURST", "10")
		cfg, err := LoadConfig("")
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.RateLimit != 50 || cfg.RateBurst != 10 {
			t.Errorf("expected 50/10, got %v/%d", cfg.RateLimit, cfg.RateBurst)
		}
	})

	t.Run("store breaker from file", func(t *testing.T) {
		path := writeConfig(t, "store:\n  breaker: false\n")
		cfg, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.StoreBreaker {
			t.Error("expected store breaker disabled")
		}
	})

	t.Run("missing config file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
		if err == nil {
			t.Error("expected error for missing config file")
		}
	})

	t.Run("invalid values", func(t *testing.T) {
		tests := map[string]string{
			"CORR_CORRELATION_API_PORT":            "70000",
			"CORR_CORRELATION_API_MAX_BATCH_SIZE":  "-1",
			"CORR_CORRELATION_API_REQUEST_TIMEOUT": "0s",
			"CORR_LOG_LEVEL":                       "verbose",
			"CORR_LOG_FORMAT":                      "xml",
			"CORR_CORRELATION_API_RATE_LIMIT":      "-1",
		}
		for env, val := range tests {
			t.Run(env, func(t *testing.T) {
				t.Setenv(env, val)
				if _, err := LoadConfig(""); err == nil {
					t.Errorf("expected error for %s=%s", env, val)
				}
			})
		}
	})
}

func TestLoadConfigFlags(t *testing.T) {
	newFlags := func() *pflag.FlagSet {
		fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
		fs.String("host", "0.0.0.0", "")
		fs.Int("port", 50051, "")
		fs.String("log-level", "info", "")
		return fs
	}

	t.Run("unchanged flags keep lower layers", func(t *testing.T) {
		t.Setenv("CORR_CORRELATION_API_PORT", "8080")

		cfg, err := LoadConfig("", newFlags())
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.Port != 8080 {
			t.Errorf("expected env port 8080, got %d", cfg.Port)
		}
	})

	t.Run("changed flags win", func(t *testing.T) {
		t.Setenv("CORR_CORRELATION_API_PORT", "8080")

		fs := newFlags()
		if err := fs.Parse([]string{"--port=7070", "--log-level=warn"}); err != nil {
			t.Fatal(err)
		}
		cfg, err := LoadConfig("", fs)
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.Port != 7070 {
			t.Errorf("expected flag port 7070, got %d", cfg.Port)
		}
		if cfg.LogLevel != "warn" {
			t.Errorf("expected flag log level warn, got %s", cfg.LogLevel)
		}
	})
}
