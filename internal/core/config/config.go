// Package config provides configuration management for the correlation
// service.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// DatabaseURLEnv names the environment variable carrying the database URL.
const DatabaseURLEnv = "CORR_DB_URL"

// CorrelationAPIConfig holds configuration for the gRPC correlation API
// service.
type CorrelationAPIConfig struct {
	Host           string
	Port           int
	RequestTimeout time.Duration
	MaxBatchSize   int
	// MetricsAddr is the listen address of the metrics and health endpoint.
	// Empty disables it.
	MetricsAddr string
	// RateLimit caps accepted requests per second. Zero disables limiting.
	RateLimit float64
	RateBurst int
	// StoreBreaker guards the database with a circuit breaker.
	StoreBreaker bool
	LogLevel     string
	LogFormat    string
}

// DefaultCorrelationAPIConfig returns configuration with default values.
func DefaultCorrelationAPIConfig() *CorrelationAPIConfig {
	return &CorrelationAPIConfig{
		Host:           "0.0.0.0",
		Port:           50051,
		RequestTimeout: 30 * time.Second,
		MaxBatchSize:   1000,
		MetricsAddr:    ":9090",
		RateBurst:      100,
		StoreBreaker:   true,
		LogLevel:       "info",
		LogFormat:      "json",
	}
}

// Addr returns the host:port the gRPC server listens on.
func (c *CorrelationAPIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseURL returns the database URL from the environment.
// Database credentials travel in the URL, so it is never read from a file.
func DatabaseURL() string {
	return strings.TrimSpace(os.Getenv(DatabaseURLEnv))
}

var (
	logLevels  = []string{"debug", "info", "warn", "error"}
	logFormats = []string{"json", "console"}
)

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
