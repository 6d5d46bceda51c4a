package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// flagKeys maps command line flags to configuration keys.
var flagKeys = map[string]string{
	"host":            "correlation_api.host",
	"port":            "correlation_api.port",
	"request-timeout": "correlation_api.request_timeout",
	"max-batch-size":  "correlation_api.max_batch_size",
	"metrics-addr":    "correlation_api.metrics_addr",
	"rate-limit":      "correlation_api.rate_limit",
	"rate-burst":      "correlation_api.rate_burst",
	"store-breaker":   "store.breaker",
	"log-level":       "log.level",
	"log-format":      "log.format",
}

// LoadConfig loads configuration from file using viper.
// CLI flags > environment > config file > defaults precedence.
// flags may be nil; only flags the user changed override lower layers.
func LoadConfig(configPath string, flags ...*pflag.FlagSet) (*CorrelationAPIConfig, error) {
	v := viper.New()

	d := DefaultCorrelationAPIConfig()
	v.SetDefault("correlation_api.host", d.Host)
	v.SetDefault("correlation_api.port", d.Port)
	v.SetDefault("correlation_api.request_timeout", d.RequestTimeout.String())
	v.SetDefault("correlation_api.max_batch_size", d.MaxBatchSize)
	v.SetDefault("correlation_api.metrics_addr", d.MetricsAddr)
	v.SetDefault("correlation_api.rate_limit", d.RateLimit)
	v.SetDefault("correlation_api.rate_burst", d.RateBurst)
	v.SetDefault("store.breaker", d.StoreBreaker)
	v.SetDefault("log.level", d.LogLevel)
	v.SetDefault("log.format", d.LogFormat)

	// Bind environment variables with CORR_ prefix
	v.SetEnvPrefix("CORR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := validateNoSecretsInConfig(v); err != nil {
		return nil, err
	}

	for _, fs := range flags {
		if fs == nil {
			continue
		}
		if err := bindFlags(v, fs); err != nil {
			return nil, err
		}
	}

	cfg := &CorrelationAPIConfig{
		Host:           v.GetString("correlation_api.host"),
		Port:           v.GetInt("correlation_api.port"),
		RequestTimeout: v.GetDuration("correlation_api.request_timeout"),
		MaxBatchSize:   v.GetInt("correlation_api.max_batch_size"),
		MetricsAddr:    v.GetString("correlation_api.metrics_addr"),
		RateLimit:      v.GetFloat64("correlation_api.rate_limit"),
		RateBurst:      v.GetInt("correlation_api.rate_burst"),
		StoreBreaker:   v.GetBool("store.breaker"),
		LogLevel:       strings.ToLower(v.GetString("log.level")),
		LogFormat:      strings.ToLower(v.GetString("log.format")),
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// bindFlags binds the known flags present in fs. Unchanged flags keep their
// lower-precedence value because viper only prefers a flag once it is set.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}
	return nil
}

// validateConfig checks port range, positive timeout and batch size, the
// rate limit and the log settings.
func validateConfig(cfg *CorrelationAPIConfig) error {
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", cfg.Port)
	}
	if cfg.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %v", cfg.RequestTimeout)
	}
	if cfg.MaxBatchSize <= 0 {
		return fmt.Errorf("max_batch_size must be positive, got %d", cfg.MaxBatchSize)
	}
	if cfg.RateLimit < 0 {
		return fmt.Errorf("rate_limit must not be negative, got %v", cfg.RateLimit)
	}
	if cfg.RateLimit > 0 && cfg.RateBurst <= 0 {
		return fmt.Errorf("rate_burst must be positive when rate_limit is set, got %d", cfg.RateBurst)
	}
	if !oneOf(cfg.LogLevel, logLevels) {
		return fmt.Errorf("log level must be one of %s, got %q", strings.Join(logLevels, ", "), cfg.LogLevel)
	}
	if !oneOf(cfg.LogFormat, logFormats) {
		return fmt.Errorf("log format must be one of %s, got %q", strings.Join(logFormats, ", "), cfg.LogFormat)
	}
	return nil
}

// validateNoSecretsInConfig keeps the database URL environment-only
// (12-factor principle).
func validateNoSecretsInConfig(v *viper.Viper) error {
	if v.InConfig("db_url") || v.InConfig("correlation_api.db_url") || v.InConfig("database") {
		return fmt.Errorf("database URL not allowed in config files (use %s environment variable)", DatabaseURLEnv)
	}
	return nil
}
