package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Harshitk-cp/curio/internal/api"
	"github.com/Harshitk-cp/curio/internal/buildconfig"
	"github.com/Harshitk-cp/curio/internal/config"
	"github.com/Harshitk-cp/curio/internal/service"
	"github.com/Harshitk-cp/curio/internal/store"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := config.Load(); err != nil {
		panic(err)
	}

	logger := newLogger(config.LogLevel())
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()

	var (
		stores service.Stores
		pinger api.Pinger
	)
	if dbURL := config.DatabaseURL(); dbURL != "" {
		pool, err := pgxpool.New(ctx, dbURL)
		if err != nil {
			logger.Fatal("failed to connect to database", zap.Error(err))
		}
		defer pool.Close()

		if err := pool.Ping(ctx); err != nil {
			logger.Fatal("failed to ping database", zap.Error(err))
		}
		logger.Info("connected to database")

		applied, err := store.Migrate(ctx, pool, config.MigrationsPath())
		if err != nil {
			logger.Fatal("failed to apply migrations", zap.Error(err))
		}
		logger.Info("migrations applied", zap.Int("files", len(applied)))

		stores = service.Stores{
			Events:    store.NewEventStore(pool),
			Snapshots: store.NewSnapshotStore(pool),
			Crystals:  store.NewCrystalStore(pool),
			Subjects:  store.NewSubjectStore(pool),
		}
		pinger = pool
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory stores; state is lost on exit")
		stores = service.Stores{
			Events:    store.NewMemoryEventStore(),
			Snapshots: store.NewMemorySnapshotStore(),
			Crystals:  store.NewMemoryCrystalStore(),
			Subjects:  store.NewMemorySubjectStore(),
		}
	}

	if config.APIKey() == "" {
		logger.Warn("API_KEY not set, /v1 routes are unauthenticated")
	}

	engineOpts, err := config.EngineOptions()
	if err != nil {
		logger.Fatal("invalid engine configuration", zap.Error(err))
	}

	app := api.NewApp(stores, pinger, api.Config{
		APIKey:         config.APIKey(),
		RateLimitRPS:   config.RateLimitRPS(),
		RateLimitBurst: config.RateLimitBurst(),
		DecayInterval:  config.DecayInterval(),
		DecayWorkers:   config.DecayWorkers(),
		Options:        engineOpts,
	}, logger)

	// Start background services
	app.Decay.Start()

	addr := config.ServerAddr()
	srv := &http.Server{
		Addr:              addr,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	// Open notification streams end when shutdown begins.
	srv.RegisterOnShutdown(app.Hub.Close)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("server starting",
			zap.String("addr", addr),
			zap.String("version", buildconfig.Version()),
			zap.String("commit", buildconfig.Commit()))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("shutting down server")

	// Stop background services
	app.Decay.Stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}

func newLogger(level string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if lvl, err := zapcore.ParseLevel(level); err == nil {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	logger, err := cfg.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}
