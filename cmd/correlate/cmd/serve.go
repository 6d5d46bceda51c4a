package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sony/gobreaker"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/solatis/correlate/internal/core/api"
	"github.com/solatis/correlate/internal/core/config"
	"github.com/solatis/correlate/internal/core/db"
	"github.com/solatis/correlate/internal/core/logging"
	"github.com/solatis/correlate/internal/core/metrics"
	"github.com/solatis/correlate/internal/core/server"
	"github.com/solatis/correlate/internal/correlation"
)

const Version = "0.1.0"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start gRPC correlation API service",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("host", "0.0.0.0", "gRPC server host")
	serveCmd.Flags().Int("port", 50051, "gRPC server port")
	serveCmd.Flags().Duration("request-timeout", 30*time.Second, "per-request timeout")
	serveCmd.Flags().Int("max-batch-size", 1000, "maximum rules per request")
	serveCmd.Flags().String("metrics-addr", ":9090", "metrics and health listen address, empty to disable")
	serveCmd.Flags().Float64("rate-limit", 0, "maximum requests per second, 0 to disable")
	serveCmd.Flags().Int("rate-burst", 100, "requests allowed above the rate limit in a burst")
	serveCmd.Flags().Bool("store-breaker", true, "guard the database with a circuit breaker")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.LoadConfig(configFile, cmd.Flags())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer log.Sync()

	database, err := openDatabase(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	pending, err := db.Pending(ctx, database)
	if err != nil {
		return fmt.Errorf("failed to check migrations: %w", err)
	}
	if len(pending) > 0 {
		return fmt.Errorf("%d migrations not applied - run 'correlate migrate' first", len(pending))
	}

	store, err := db.NewStore(database)
	if err != nil {
		return fmt.Errorf("failed to create store: %w", err)
	}

	m := metrics.New()

	var backend correlation.Store = store
	if cfg.StoreBreaker {
		breakerCfg := db.DefaultBreakerConfig()
		breakerCfg.OnStateChange = func(name string, from, to gobreaker.State) {
			log.Warn("store circuit breaker changed state",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
			m.SetStoreBreakerState(int(to))
		}
		backend = db.NewBreakerStore(store, breakerCfg)
	}

	svc := correlation.NewService(backend,
		correlation.WithLogger(log),
		correlation.WithFailureRecorder(m),
	)

	apiService, err := api.NewCorrelationAPIService(svc, cfg)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	grpcServer, err := server.NewGRPCServer(cfg, apiService, m, log)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	errChan := make(chan error, 2)

	var httpServer *server.HTTPServer
	if cfg.MetricsAddr != "" {
		httpServer = server.NewHTTPServer(cfg.MetricsAddr, m, database)
		go func() {
			errChan <- httpServer.Start()
		}()
	}

	log.Info("starting correlation API",
		zap.String("version", Version),
		zap.String("addr", cfg.Addr()),
		zap.String("metrics_addr", cfg.MetricsAddr),
		zap.Float64("rate_limit", cfg.RateLimit),
		zap.Bool("store_breaker", cfg.StoreBreaker))
	go func() {
		errChan <- grpcServer.Start(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case <-sigChan:
		log.Info("shutting down gracefully")
		if httpServer != nil {
			shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				log.Warn("metrics server shutdown failed", zap.Error(err))
			}
		}
		return grpcServer.Shutdown(ctx)
	}
}
