package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/promptmeter/spendgate/internal/metrics"
	"github.com/promptmeter/spendgate/internal/pkg/config"
	"github.com/promptmeter/spendgate/internal/rollup"
	"github.com/promptmeter/spendgate/internal/server"
	"github.com/promptmeter/spendgate/internal/spendlogs"
	"github.com/promptmeter/spendgate/internal/storage/sqldb"
	"github.com/promptmeter/spendgate/internal/telemetry"
	"github.com/promptmeter/spendgate/internal/tokens"
	"github.com/promptmeter/spendgate/internal/tracking"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	configPath := os.Getenv("SPENDGATE_CONFIG")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer("spendgate", logger)
		if err != nil {
			log.Fatalf("Failed to initialize tracer: %v", err)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
			}
		}()
	}

	store, err := sqldb.New(sqldb.Config{Driver: cfg.Storage.Driver, DSN: cfg.Storage.DSN})
	if err != nil {
		log.Fatalf("Failed to open spend log store: %v", err)
	}
	defer store.Close()

	collector := metrics.NewCollector(nil)
	builder := spendlogs.NewBuilder(cfg.BuilderSettings(), logger)
	tracker := tracking.New(builder, store, collector, tokens.NewEstimator(), logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Hot-reload the spend log policy flags on config file changes.
	if _, err := os.Stat(configPath); err == nil {
		go func() {
			err := config.Watch(ctx, configPath, logger, func(next *config.Config) {
				tracker.SetBuilder(spendlogs.NewBuilder(next.BuilderSettings(), logger))
				logger.Info("spend log settings reloaded")
			})
			if err != nil {
				logger.Error("config watch stopped", slog.String("error", err.Error()))
			}
		}()
	}

	srv := server.New(cfg.Server.Port, logger)
	server.NewHandlers(tracker, store, collector, logger).Register(srv.Router)

	if cfg.Rollup.Schedule != "" {
		job := rollup.New(store, collector, logger)
		if err := job.Start(cfg.Rollup.Schedule); err != nil {
			log.Fatalf("Failed to start rollup job: %v", err)
		}
		defer job.Stop()
	}

	go func() {
		if err := srv.Start(); err != nil {
			logger.Error("server stopped", slog.String("error", err.Error()))
			cancel()
		}
	}()

	logger.Info("spendgate started",
		slog.Int("port", cfg.Server.Port),
		slog.String("storage_driver", cfg.Storage.Driver),
		slog.String("rollup_schedule", cfg.Rollup.Schedule),
	)

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigChan:
	case <-ctx.Done():
	}

	logger.Info("Shutdown signal received, stopping spendgate...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("spendgate shutdown complete")
}
