package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/contextlabs/ragway/internal/backend"
	"github.com/contextlabs/ragway/internal/config"
	"github.com/contextlabs/ragway/internal/gateway"
	"github.com/contextlabs/ragway/internal/metadata"
	"github.com/contextlabs/ragway/internal/retrieval"
	"github.com/contextlabs/ragway/internal/telemetry"
	"github.com/contextlabs/ragway/internal/vectorstore"
)

var version = "dev"

func main() {
	configDir := flag.String("config", "configs", "path to configuration directory")
	flag.Parse()

	// Load configuration
	bootLogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	loader := config.NewLoader(*configDir, bootLogger)
	if err := loader.Load(); err != nil {
		bootLogger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	cfg := loader.Config()

	logger := newLogger(cfg.Telemetry)
	slog.SetDefault(logger)

	if err := loader.Watch(); err != nil {
		logger.Warn("failed to start config watcher", "error", err)
	}

	// Open the metadata store (collections registry + usage logs)
	store, err := metadata.Open(cfg.Metadata.Path)
	if err != nil {
		logger.Error("failed to open metadata store", "error", err, "path", cfg.Metadata.Path)
		os.Exit(1)
	}
	defer store.Close()
	logger.Info("metadata store ready", "path", cfg.Metadata.Path)

	metrics := telemetry.NewMetrics()

	// Retrieval pipeline
	vectors := vectorstore.NewClient(cfg.VectorStore)
	retriever := retrieval.NewAggregator(store, vectors, cfg.Retrieval.TopK, metrics)

	// Backend registry, rebuilt on config reload
	registry := backend.BuildFromConfig(loader.Backends())
	loader.OnReload(func() {
		registry.Replace(backend.BuildFromConfig(loader.Backends()))
		logger.Info("backend registry reloaded", "active", loader.Backends().Active)
	})

	health := backend.NewHealthTracker(5, 30*time.Second)

	handler := gateway.NewHandler(registry, health, retriever, vectors, store, metrics, func() *config.BackendsConfig {
		return loader.Backends()
	})
	admin := gateway.NewAdminHandler(store)

	// Router setup
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)

	r.Get("/ragway/v1/health", handler.Health)
	r.Post("/v1/chat/completions", handler.ChatCompletions)
	r.Get("/v1/models", handler.ListModels)
	r.Get("/v1/collections", admin.ListCollections)

	r.Route("/admin/v1", func(r chi.Router) {
		r.Patch("/collections/{id}", admin.RenameCollection)
		r.Delete("/collections/{id}", admin.DeleteCollection)
		r.Get("/usage", admin.UsageSummary)
	})

	// Metrics on a separate listener, never exposed with the gateway surface
	metricsSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Telemetry.MetricsPort),
		Handler: promhttp.Handler(),
	}
	go func() {
		logger.Info("metrics server starting", "addr", metricsSrv.Addr)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway starting", "addr", addr, "version", version,
			"active_backend", loader.Backends().Active)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	metricsSrv.Shutdown(ctx)
	logger.Info("gateway stopped")
}

func newLogger(cfg config.TelemetryConfig) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = generateRequestID()
		}
		// Handlers read the ID back from the response header.
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r)
	})
}

func generateRequestID() string {
	now := time.Now()
	b := make([]byte, 8)
	rand.Read(b)
	return fmt.Sprintf("req_%d_%s", now.UnixMilli(), hex.EncodeToString(b))
}
