// SpiritX - Fantasy cricket for the inter-university tournament.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/opensource-finance/spiritx/internal/api"
	"github.com/opensource-finance/spiritx/internal/auth"
	"github.com/opensource-finance/spiritx/internal/bus"
	"github.com/opensource-finance/spiritx/internal/cache"
	"github.com/opensource-finance/spiritx/internal/chatbot"
	"github.com/opensource-finance/spiritx/internal/domain"
	"github.com/opensource-finance/spiritx/internal/live"
	"github.com/opensource-finance/spiritx/internal/metrics"
	"github.com/opensource-finance/spiritx/internal/query"
	"github.com/opensource-finance/spiritx/internal/repository"
	"github.com/opensource-finance/spiritx/internal/telemetry"
	"github.com/opensource-finance/spiritx/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Load configuration
	cfg, err := domain.LoadConfig(os.LookupEnv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	slog.SetDefault(newLogger(cfg.Logging))

	slog.Info("starting spiritx",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	if cfg.Auth.JWTSecret == "" {
		cfg.Auth.JWTSecret = randomSecret()
		slog.Warn("SPIRITX_JWT_SECRET not set, using a random secret; sessions end on restart")
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	shutdownTracing, err := telemetry.Setup(cfg.Tracing, Version, os.Stderr)
	if err != nil {
		slog.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	authSvc, err := auth.NewService(repo, cacheImpl, cfg.Auth)
	if err != nil {
		slog.Error("failed to initialize auth service", "error", err)
		os.Exit(1)
	}

	engine, err := query.NewEngine()
	if err != nil {
		slog.Error("failed to initialize query engine", "error", err)
		os.Exit(1)
	}

	var assistant chatbot.Assistant
	if cfg.Assistant.APIKey != "" {
		assistant = chatbot.NewGemini(cfg.Assistant)
		slog.Info("chatbot assistant enabled", "model", cfg.Assistant.Model)
	}
	bot := chatbot.New(repo, engine, assistant)

	rec := metrics.New()

	// Live updates: bus events are relayed to websocket clients
	hub := live.NewHub(rec.SetLiveClients)
	go hub.Run(ctx)

	relay := worker.NewRelay(busImpl, hub)
	if err := relay.Start(); err != nil {
		slog.Error("failed to start live relay", "error", err)
		os.Exit(1)
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, api.Deps{
		Repo:    repo,
		Cache:   cacheImpl,
		Bus:     busImpl,
		Auth:    authSvc,
		Query:   engine,
		Chatbot: bot,
		Hub:     hub,
		Metrics: rec,
	}, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("spiritx is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop relaying before the bus closes
	if err := relay.Stop(); err != nil {
		slog.Error("failed to stop live relay", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		slog.Error("failed to flush traces", "error", err)
	}

	slog.Info("spiritx shutdown complete")
}

func newLogger(cfg domain.LoggingConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func randomSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  +-------------------------------------------+")
	fmt.Println("  |                 SPIRITX                   |")
	fmt.Println("  |        Inter-university fantasy cricket   |")
	fmt.Println("  +-------------------------------------------+")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /api/auth/register              - Create an account")
	fmt.Println("    POST /api/auth/login                 - Sign in")
	fmt.Println("    GET  /api/players                    - Browse players")
	fmt.Println("    GET  /api/teams/me                   - Your team")
	fmt.Println("    POST /api/teams/me/players           - Buy a player")
	fmt.Println("    GET  /api/leaderboard                - Rankings")
	fmt.Println("    POST /api/chatbot/query              - Ask Spiriter")
	fmt.Println("    GET  /api/live                       - Live updates (websocket)")
	fmt.Println("    POST /api/mcp                        - MCP tools")
	fmt.Println("    POST /api/admin/players/import       - Import players from CSV")
	fmt.Println("    GET  /health                         - Health check")
	fmt.Println("    GET  /metrics                        - Prometheus metrics")
	fmt.Println()
}
