// Command server runs the achievement pipeline: HTTP intake, the queue
// drain worker, and the notification stream.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"badgehub/internal/cache"
	"badgehub/internal/config"
	"badgehub/internal/database"
	"badgehub/internal/events"
	"badgehub/internal/monitoring"
	"badgehub/internal/registry"
	"badgehub/internal/repositories"
	"badgehub/internal/router"
	"badgehub/internal/services"
	"badgehub/internal/worker"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := buildLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting badgehub",
		zap.String("environment", cfg.Server.Environment),
		zap.String("addr", cfg.Server.Host+":"+cfg.Server.Port),
	)

	// ===============================
	// INFRASTRUCTURE
	// ===============================

	db, err := database.NewManager(&cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer func() { _ = db.Close() }()

	if err := db.Migrate(cfg.Database.MigrationsPath); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	cacheLayer := cache.New(&cfg.Cache, db, logger)
	defer func() { _ = cacheLayer.Close() }()

	metrics := monitoring.NewDefault()
	reg := registry.NewDefault()

	bus := events.NewBus(events.DefaultBusConfig(), logger)
	bus.Start()

	// ===============================
	// DOMAIN WIRING
	// ===============================

	repos := repositories.NewCollection(db, logger)
	svcs := services.NewCollection(repos, cacheLayer, reg, bus, metrics, cfg, logger)

	drainWorker := worker.NewDrainWorker(svcs.Queue, metrics, &cfg.Queue, logger)
	drainWorker.Start(context.Background())

	handler, stream, err := router.New(router.Deps{
		Config:   cfg,
		Services: svcs,
		Registry: reg,
		Bus:      bus,
		DB:       db,
		Cache:    cacheLayer,
		Metrics:  metrics,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("build router: %w", err)
	}

	// ===============================
	// SERVE
	// ===============================

	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case sig := <-stop:
		logger.Info("Shutdown signal received", zap.String("signal", sig.String()))
	}

	// Drain in dependency order: stop intake, then the worker, then the bus.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown incomplete", zap.Error(err))
	}
	stream.Close()
	drainWorker.Stop()
	if err := bus.Stop(shutdownCtx); err != nil {
		logger.Error("Notification bus shutdown incomplete", zap.Error(err))
	}

	logger.Info("Shutdown complete")
	return nil
}

func buildLogger(cfg *config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Development {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	return zapCfg.Build()
}
