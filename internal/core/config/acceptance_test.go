package config

import (
	"testing"
)

// TestAcceptanceCriteria verifies the configuration layering guarantees.
func TestAcceptanceCriteria(t *testing.T) {
	t.Run("AC1: Database URL accessible via environment", func(t *testing.T) {
		t.Setenv(DatabaseURLEnv, "postgres://corr@localhost/corr")

		if got := DatabaseURL(); got != "postgres://corr@localhost/corr" {
			t.Fatalf("AC1 FAIL: DatabaseURL() = %q", got)
		}
	})

	t.Run("AC2: Config file with db_url rejected with clear error", func(t *testing.T) {
		for _, content := range []string{
			"db_url: \"sqlite://leak.db\"\n",
			"correlation_api:\n  host: \"localhost\"\n  db_url: \"sqlite://leak.db\"\n",
		} {
			_, err := LoadConfig(writeConfig(t, content))
			if err == nil {
				t.Fatal("AC2 FAIL: Expected error for database URL in config file")
			}
			if err.Error() != "database URL not allowed in config files (use CORR_DB_URL environment variable)" {
				t.Fatalf("AC2 FAIL: Wrong error message: %v", err)
			}
		}
	})

	t.Run("AC3: Database URL in environment does not trip the file check", func(t *testing.T) {
		t.Setenv(DatabaseURLEnv, "sqlite://corr.db")

		if _, err := LoadConfig(writeConfig(t, "correlation_api:\n  port: 9090\n")); err != nil {
			t.Fatalf("AC3 FAIL: LoadConfig error: %v", err)
		}
	})

	t.Run("AC4: Environment variables override config file", func(t *testing.T) {
		t.Setenv("CORR_CORRELATION_API_PORT", "8080")

		cfg, err := LoadConfig(writeConfig(t, "correlation_api:\n  port: 9090\n"))
		if err != nil {
			t.Fatalf("AC4 FAIL: LoadConfig error: %v", err)
		}
		if cfg.Port != 8080 {
			t.Fatalf("AC4 FAIL: Environment should override config file. Expected 8080, got %d", cfg.Port)
		}
	})
}
