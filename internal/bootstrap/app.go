// Package bootstrap handles application initialization and lifecycle management
// for the price-tracker service.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	infralogger "github.com/jonesrussell/north-cloud/price-tracker/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/price-tracker/infrastructure/profiling"
	"github.com/jonesrussell/north-cloud/price-tracker/internal/database"
	"github.com/jonesrussell/north-cloud/price-tracker/internal/metrics"
)

// Options carries the command-line inputs to Start.
type Options struct {
	ConfigPath string
	Debug      bool
	Version    string
}

// Start initializes and runs the price-tracker until ctx is cancelled or
// the process receives SIGINT/SIGTERM.
func Start(ctx context.Context, opts Options) error {
	// Phase 1: Load config and create logger
	cfg, err := LoadConfig(opts.ConfigPath, opts.Debug)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := CreateLogger(cfg, opts.Version)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	// Phase 2: Profiling (if enabled)
	profiling.StartPprofServer(cfg.Profiling, log)
	profiler, err := profiling.StartPyroscope(cfg.Profiling, serviceName, opts.Version, log)
	if err != nil {
		log.Warn("Continuous profiling disabled", infralogger.Error(err))
	}
	defer func() { _ = profiler.Stop() }()

	// Phase 3: Backing services
	db, err := SetupDatabase(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			log.Error("Failed to close database", infralogger.Error(closeErr))
		}
	}()

	redisClient, err := SetupRedis(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	// Phase 4: Domain services
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	store := database.NewPostgresStore(db)
	svc, err := NewServices(cfg, store, redisClient, m, log)
	if err != nil {
		return fmt.Errorf("failed to wire services: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cfg.Shops.Watch {
		if watchErr := svc.Registry.Watch(runCtx, cfg.Shops.File, log); watchErr != nil {
			log.Warn("Shops file watcher disabled", infralogger.Error(watchErr))
		}
	}

	svc.Outbox.Start(runCtx)
	defer func() {
		svc.Outbox.Stop()
		svc.Dispatcher.Wait()
	}()

	if svc.Scheduler != nil {
		svc.Scheduler.Start()
		defer svc.Scheduler.Stop()
	}

	// Phase 5: HTTP server
	server := SetupHTTPServer(cfg, svc, store, redisClient, reg, opts.Version, log)
	if runErr := server.Run(runCtx); runErr != nil {
		log.Error("Server error", infralogger.Error(runErr))
		return fmt.Errorf("server error: %w", runErr)
	}

	log.Info("Server exited")
	return nil
}
