package cmd

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/solatis/correlate/internal/core/config"
	"github.com/solatis/correlate/internal/core/db"
)

var (
	configFile string
	dbURL      string
)

var rootCmd = &cobra.Command{
	Use:          "correlate",
	Short:        "Event correlation rule compiler and service",
	Long:         `correlate validates, compiles and stores event correlation rules and serves them over gRPC.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&dbURL, "db-url", "", "database connection URL (sqlite://path or postgres://...), defaults to $"+config.DatabaseURLEnv)
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "log format (json, console)")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func databaseURL() (string, error) {
	if dbURL != "" {
		return dbURL, nil
	}
	if u := config.DatabaseURL(); u != "" {
		return u, nil
	}
	return "", fmt.Errorf("--db-url or %s required", config.DatabaseURLEnv)
}

func openDatabase(ctx context.Context) (*sqlx.DB, error) {
	u, err := databaseURL()
	if err != nil {
		return nil, err
	}
	database, err := db.Open(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return database, nil
}
