package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/wbarena/arena/internal/config"
	"github.com/wbarena/arena/internal/eventlog"
	"github.com/wbarena/arena/internal/hub"
	"github.com/wbarena/arena/internal/judging"
	"github.com/wbarena/arena/internal/llm"
	"github.com/wbarena/arena/internal/runner"
	"github.com/wbarena/arena/internal/storage"
	"github.com/wbarena/arena/web/handlers"
)

func main() {
	port := flag.Int("port", 0, "Server port (default: from config)")
	dbPath := flag.String("db", "", "Database path (default: from config)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if *debug {
		opts.Level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, opts)))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}

	ctx := context.Background()

	slog.Info("initializing storage", "path", cfg.Database.Path)
	store, err := storage.NewSQLiteStorage(cfg.Database.Path)
	if err != nil {
		slog.Error("failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	if err := store.Initialize(ctx); err != nil {
		slog.Error("failed to initialize database schema", "error", err)
		os.Exit(1)
	}

	provider, err := cfg.CreateProvider()
	if err != nil {
		slog.Error("failed to initialize LLM provider", "error", err)
		os.Exit(1)
	}
	slog.Info("LLM provider ready", "provider", provider.Name(), "available", provider.Available())

	if cfg.LLM.Provider != "" && cfg.LLM.Provider != "mock" {
		health := llm.HealthCheck(ctx, provider)
		if !health.Available {
			slog.Warn("configured LLM provider failed health check", "provider", provider.Name(), "error", health.Error)
		} else {
			slog.Info("LLM provider health check passed", "provider", provider.Name(), "response_time", health.ResponseTime)
		}
	}

	log := eventlog.New(store, nil)
	matchHub := hub.New(log)
	log.SetNotifier(matchHub)

	matchRunner := runner.New(store, log, provider)
	judgingStore := judging.New(store)

	h := handlers.New(store, log, matchHub, matchRunner, judgingStore)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh
		slog.Info("shutting down...")
		server.Close()
	}()

	slog.Info("starting worldbuild arena server", "url", fmt.Sprintf("http://localhost%s", addr))
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
