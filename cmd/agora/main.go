// Agora pipeline server. Serves the HTTP API, manages queue workers, and
// turns consultation comments into structured reports.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/civitas-labs/agora/pkg/api"
	"github.com/civitas-labs/agora/pkg/bridging"
	"github.com/civitas-labs/agora/pkg/config"
	"github.com/civitas-labs/agora/pkg/lock"
	"github.com/civitas-labs/agora/pkg/perspective"
	"github.com/civitas-labs/agora/pkg/pipeline"
	"github.com/civitas-labs/agora/pkg/queue"
	"github.com/civitas-labs/agora/pkg/ratelimit"
	"github.com/civitas-labs/agora/pkg/redisx"
	"github.com/civitas-labs/agora/pkg/store"
	"github.com/civitas-labs/agora/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// resolvePodID determines the pod identifier for multi-replica coordination.
// Priority: POD_ID env > HOSTNAME env > "local"
func resolvePodID() string {
	if id := os.Getenv("POD_ID"); id != "" {
		return id
	}
	if hostname := os.Getenv("HOSTNAME"); hostname != "" {
		return hostname
	}
	return "local"
}

func main() {
	configPath := flag.String("config",
		getEnv("CONFIG_PATH", "./deploy/config/agora.yaml"),
		"Path to configuration file")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment", "error", err)
	}

	httpPort := getEnv("HTTP_PORT", "8080")
	podID := resolvePodID()

	slog.Info("Starting agora",
		"version", version.Full(),
		"http_port", httpPort,
		"pod_id", podID,
		"config_path", *configPath)

	ctx := context.Background()

	// 1. Configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	// 2. Redis
	rdb := redisx.NewClient(cfg.Redis)
	defer func() {
		if err := rdb.Close(); err != nil {
			slog.Error("Error closing Redis client", "error", err)
		}
	}()
	if err := redisx.Ready(ctx, rdb); err != nil {
		slog.Error("Failed to connect to Redis", "addr", cfg.Redis.Addr, "error", err)
		os.Exit(1)
	}
	slog.Info("Connected to Redis", "addr", cfg.Redis.Addr)

	// 3. Core components
	states := store.NewStateStore(rdb, cfg.Pipeline.StateTTL, cfg.Pipeline.FailedStateTTL)
	locks := lock.NewManager(rdb)
	runner := pipeline.NewRunner(states, locks,
		pipeline.OpenAIExecutorFactory(""),
		*cfg.Lock, *cfg.Pipeline, pipeline.LogObserver{})

	// 4. Bridging scorer (disabled without an API key; jobs requesting it
	// then complete without scores)
	var scorer queue.BridgingScorer
	if cfg.Perspective.APIKey != "" {
		limiter := ratelimit.NewLimiter(rdb, cfg.Perspective.RateLimitKey,
			cfg.Perspective.MinInterval, cfg.Perspective.PollGranularity,
			cfg.Perspective.FallbackDelay, cfg.Perspective.RateLimitKeyTTL)
		cache := perspective.NewScoreCache(rdb, cfg.Perspective.EnvPrefix, cfg.Perspective.CacheTTL)
		analyzer := perspective.NewClient(cfg.Perspective.BaseURL, cfg.Perspective.APIKey)
		scorer = bridging.NewScorer(analyzer, cache, limiter)
		slog.Info("Bridging scorer enabled", "env_prefix", cfg.Perspective.EnvPrefix)
	} else {
		slog.Warn("No classifier API key configured, bridging scoring disabled")
	}

	// 5. Worker pool (before the HTTP server)
	jobs := queue.NewJobQueue(rdb, cfg.Queue.JobQueueKey)
	pool := queue.NewPool(podID, jobs, cfg.Queue, runner, scorer)
	if err := pool.Start(ctx); err != nil {
		slog.Error("Failed to start worker pool", "error", err)
		os.Exit(1)
	}

	// 6. HTTP server
	httpServer := api.NewServer(jobs, pool, states, runner)
	errCh := make(chan error, 1)
	go func() {
		addr := ":" + httpPort
		slog.Info("HTTP server listening", "addr", addr)
		if err := httpServer.Start(addr); err != nil {
			errCh <- err
		}
	}()

	// 7. Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		slog.Info("Received shutdown signal", "signal", sig)
	case err := <-errCh:
		slog.Error("HTTP server error", "error", err)
	}

	// 8. Graceful shutdown: stop accepting requests, then drain workers.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}
	pool.Stop()
	slog.Info("Shutdown complete")
}
