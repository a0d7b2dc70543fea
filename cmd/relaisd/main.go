package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jacques-ia/relais/internal/api"
	"github.com/jacques-ia/relais/internal/config"
	"github.com/jacques-ia/relais/internal/llm"
	"github.com/jacques-ia/relais/internal/logger"
	"github.com/jacques-ia/relais/internal/ratelimit"
	"github.com/jacques-ia/relais/internal/realtime"
	"github.com/jacques-ia/relais/internal/runner"
	"github.com/jacques-ia/relais/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() (err error) {
	configPath := flag.String("config", config.GetConfigPath(), "path to the configuration file")
	listenAddr := flag.String("listen", "", "listen address (overrides configuration)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}

	if initErr := logger.Init(logger.ParseLevel(cfg.LogLevel), cfg.LogPath); initErr != nil {
		return fmt.Errorf("failed to initialize logger: %w", initErr)
	}
	defer func() {
		if err != nil {
			logger.Error("Fatal error: %v", err)
		}
		if closeErr := logger.Global().Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close logger: %v\n", closeErr)
		}
	}()

	logger.Info("relaisd starting")

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Warn("Failed to close database: %v", closeErr)
		}
	}()

	limiter := ratelimit.New(poolSettings(cfg))
	broker := realtime.NewBroker(cfg, limiter, st)
	ai := llm.NewManager(cfg)
	codeRunner := runner.New()

	server := api.NewServer(cfg.ListenAddr, broker, limiter, st, ai, codeRunner)

	broker.Start()
	server.Start()

	// Periodically drop idle admission buckets so long-running processes
	// don't accumulate state for every client address ever seen.
	cleanupStop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				limiter.Cleanup()
			case <-cleanupStop:
				return
			}
		}
	}()

	watcher, err := config.Watch(*configPath, func(next *config.Config) {
		logger.Global().SetLevel(logger.ParseLevel(next.LogLevel))
		for name, s := range poolSettings(next) {
			limiter.UpdatePool(name, s)
		}
		broker.ApplyConfig(next)
	})
	if err != nil {
		logger.Warn("Config watching disabled: %v", err)
	} else {
		defer watcher.Close()
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	received := <-sig
	logger.Info("Received %s, shutting down", received)

	close(cleanupStop)
	broker.Stop()
	if stopErr := server.Stop(); stopErr != nil {
		return fmt.Errorf("failed to stop HTTP server: %w", stopErr)
	}

	logger.Info("relaisd stopped")
	return nil
}

func poolSettings(cfg *config.Config) map[ratelimit.Pool]ratelimit.PoolSettings {
	toSettings := func(p config.PoolConfig) ratelimit.PoolSettings {
		return ratelimit.PoolSettings{
			Points: p.Points,
			Window: time.Duration(p.WindowSeconds) * time.Second,
			Block:  time.Duration(p.BlockSeconds) * time.Second,
		}
	}
	return map[ratelimit.Pool]ratelimit.PoolSettings{
		ratelimit.PoolGeneral: toSettings(cfg.RateLimit.General),
		ratelimit.PoolAI:      toSettings(cfg.RateLimit.AI),
		ratelimit.PoolCode:    toSettings(cfg.RateLimit.Code),
	}
}
