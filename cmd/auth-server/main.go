// Copyright (c) 2026 Formloom, Inc.
//
// This file is part of the Formloom server.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/formloom/formloom/internal/config"
	"github.com/formloom/formloom/internal/rest"
	"github.com/formloom/formloom/pkg/gateway"
	"github.com/formloom/formloom/pkg/logger"
	"github.com/formloom/formloom/pkg/metrics"
	"github.com/formloom/formloom/pkg/passkey"
	"github.com/formloom/formloom/pkg/ratelimit"
	"github.com/formloom/formloom/pkg/token"
	"github.com/formloom/formloom/pkg/user"
)

var (
	// Version information (set during build)
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	configPath := flag.String("config", "/etc/formloom/config.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("Formloom auth server\n")
		fmt.Printf("  Version:    %s\n", version)
		fmt.Printf("  Git Commit: %s\n", commit)
		fmt.Printf("  Built:      %s\n", date)
		os.Exit(0)
	}

	// Check for config file override via environment
	if envConfig := os.Getenv("FORMLOOM_CONFIG"); envConfig != "" {
		*configPath = envConfig
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewSlogAdapter(&logger.SlogConfig{
		Level: logger.ParseLevel(cfg.Logging.Level),
		JSON:  cfg.Logging.Format == "json",
	})

	log.Info("Starting auth server",
		logger.String("config", *configPath),
		logger.String("version", version),
		logger.String("rp_id", cfg.Passkey.RPID),
		logger.String("addr", cfg.ListenAddr()))

	users := user.NewMemoryStore()
	challenges := passkey.NewMemoryChallengeStore()
	revocations := token.NewMemoryRevocationStore(time.Minute)
	defer revocations.Close()

	passkeys, err := passkey.NewService(passkey.ServiceParams{
		Config:     &cfg.Passkey,
		Users:      users,
		Challenges: challenges,
		Logger:     log,
	})
	if err != nil {
		log.Fatal("Failed to create passkey service", logger.Error(err))
	}

	tokens, err := token.NewService(token.ServiceParams{
		Config:      &cfg.Token,
		Users:       users,
		Revocations: revocations,
		Logger:      log,
	})
	if err != nil {
		log.Fatal("Failed to create token service", logger.Error(err))
	}

	gw, err := gateway.New(gateway.Params{
		Tokens: tokens,
		Users:  users,
		Logger: log,
	})
	if err != nil {
		log.Fatal("Failed to create auth gateway", logger.Error(err))
	}

	limiter := ratelimit.New(&cfg.RateLimit)
	defer limiter.Stop()

	restCfg := &rest.Config{
		Addr:           cfg.ListenAddr(),
		Passkeys:       passkeys,
		Tokens:         tokens,
		Gateway:        gw,
		Users:          users,
		Limiter:        limiter,
		Logger:         log,
		Version:        version,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		ReadTimeout:    time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}
	if cfg.Metrics.Enabled {
		restCfg.MetricsPath = cfg.Metrics.Path
	}
	if cfg.Health.Enabled {
		restCfg.HealthPath = cfg.Health.Path
	}

	server, err := rest.NewServer(restCfg)
	if err != nil {
		log.Fatal("Failed to create REST server", logger.Error(err))
	}

	shutdownCtx := setupSignalHandler(log)

	if cfg.Metrics.Enabled {
		go updateGauges(shutdownCtx, users, challenges, revocations)
	}

	errChan := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-shutdownCtx.Done():
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Server error", logger.Error(err))
	}

	shutdownTimeout := time.Duration(cfg.Server.ShutdownTimeout) * time.Second
	if shutdownTimeout == 0 {
		shutdownTimeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Stop(ctx); err != nil {
		log.Error("Error during server shutdown", logger.Error(err))
		os.Exit(1)
	}

	log.Info("Auth server stopped successfully")
}

// updateGauges periodically refreshes the store gauges and uptime.
func updateGauges(ctx context.Context, users *user.MemoryStore, challenges *passkey.MemoryChallengeStore, revocations *token.MemoryRevocationStore) {
	start := time.Now()
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			challenges.Cleanup()
			metrics.SetPendingChallenges(float64(challenges.Count()))
			metrics.SetRevokedTokens(float64(revocations.Count()))
			if count, err := users.Count(ctx); err == nil {
				metrics.SetUsersTotal(float64(count))
			}
			metrics.ServerUptime.Set(time.Since(start).Seconds())
		}
	}
}

// setupSignalHandler sets up signal handling for graceful shutdown
func setupSignalHandler(log logger.Logger) context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-signalCh
		log.Info("Received shutdown signal")
		cancel()
	}()

	return ctx
}
