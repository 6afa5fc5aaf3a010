package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/wormworks/agentic-worm/internal/api"
	"github.com/wormworks/agentic-worm/internal/arango"
	"github.com/wormworks/agentic-worm/internal/cache"
	"github.com/wormworks/agentic-worm/internal/config"
	"github.com/wormworks/agentic-worm/internal/demo"
	"github.com/wormworks/agentic-worm/internal/embedding"
	"github.com/wormworks/agentic-worm/internal/memory"
	"github.com/wormworks/agentic-worm/internal/metrics"
	"github.com/wormworks/agentic-worm/internal/world"
)

func main() {
	_ = godotenv.Load()

	// Load configuration
	var cfg *config.Config
	var err error
	if cfgPath := os.Getenv("CONFIG_PATH"); cfgPath != "" {
		cfg, err = config.Load(cfgPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load config %s: %v\n", cfgPath, err)
			os.Exit(1)
		}
	} else {
		cfg = config.Default()
	}

	logger := newLogger(cfg.Server.LogLevel)
	defer logger.Sync()

	logger.Info("Starting worm memory server...")

	// Connect to ArangoDB with retries; the database may still be starting.
	connectCtx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	store, err := arango.Connect(connectCtx, arango.Config{
		Endpoint: cfg.Database.Arango.Endpoint(),
		Database: cfg.Database.Arango.Database,
		Username: cfg.Database.Arango.Username,
		Password: cfg.Database.Arango.Password,
	}, logger)
	cancel()
	if err != nil {
		logger.Fatal("arangodb connection failed", zap.Error(err))
	}

	// Redis is optional; without it the manager skips caching and events.
	var redisClient *cache.Client
	if addr := cfg.Database.Redis.Addr(); addr != "" {
		redisClient, err = cache.New(context.Background(), addr, logger)
		if err != nil {
			logger.Warn("redis unavailable, running without cache and events", zap.Error(err))
			redisClient = nil
		}
	}

	embedder, err := embedding.New(embedding.Config{
		Provider:  cfg.Embedding.Provider,
		Endpoint:  cfg.Embedding.Endpoint,
		Model:     cfg.Embedding.Model,
		APIKey:    cfg.Embedding.APIKey,
		Dimension: cfg.Embedding.Dimension,
	})
	if err != nil {
		logger.Fatal("embedding provider setup failed", zap.Error(err))
	}

	opts := []memory.Option{}
	if redisClient != nil {
		opts = append(opts, memory.WithEvents(redisClient), memory.WithStatsCache(redisClient))
	}
	if cfg.Consolidation.Enabled {
		opts = append(opts, memory.WithConsolidation(time.Duration(cfg.Consolidation.IntervalHours)*time.Hour))
	}
	mem := memory.NewManager(store, embedder, logger, opts...)

	// Metrics and the per-tick collector
	m := metrics.New()
	collector := metrics.NewCollector(m)

	// World simulation
	tick := time.Duration(cfg.Simulation.TickMillis) * time.Millisecond
	clock := world.NewClock(tick, cfg.Simulation.Speed, logger)
	var consolidator *world.Consolidator
	if cfg.Consolidation.Enabled {
		consolidator = world.NewConsolidator(time.Duration(cfg.Consolidation.IntervalHours)*time.Hour, mem, logger)
		clock.AddListener(consolidator)
	}
	clock.Start()
	defer clock.Stop()

	runner := demo.NewRunner(mem, collector, tick, cfg.Simulation.Speed, logger)
	if consolidator != nil {
		runner.SetRegistry(consolidator)
	}

	// HTTP server
	handler := api.NewHandler(mem, runner, collector, m, clock, logger)
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: handler.Router(),
	}

	go func() {
		logger.Info("worm memory server listening", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	if redisClient != nil {
		redisClient.Close()
	}
	logger.Info("goodbye")
}

func newLogger(level string) *zap.Logger {
	var cfg zap.Config
	if os.Getenv("ENV") == "production" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}
	if lvl, err := zap.ParseAtomicLevel(level); err == nil {
		cfg.Level = lvl
	}
	logger, err := cfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger setup: %v\n", err)
		os.Exit(1)
	}
	return logger
}
