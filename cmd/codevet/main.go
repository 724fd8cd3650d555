package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	cvhttp "github.com/codevet/codevet/internal/adapter/http"
	cvmcp "github.com/codevet/codevet/internal/adapter/mcp"
	otelx "github.com/codevet/codevet/internal/adapter/otel"
	"github.com/codevet/codevet/internal/adapter/ristretto"
	"github.com/codevet/codevet/internal/config"
	"github.com/codevet/codevet/internal/logger"
	"github.com/codevet/codevet/internal/service"
)

const version = "0.1.0"

func main() {
	// Stdout carries the MCP protocol, so even bootstrap logging goes to
	// stderr.
	bootstrap := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(bootstrap)

	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, closeLog := logger.New(cfg.Logging)
	defer closeLog.Close()
	slog.SetDefault(log)

	slog.Info("config loaded",
		"workspace", cfg.Checker.Workspace,
		"log_level", cfg.Logging.Level,
		"mcp_enabled", cfg.MCP.Enabled,
		"http_enabled", cfg.Server.Enabled,
	)

	// --- Infrastructure ---

	store, err := ristretto.New(cfg.Cache.MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer store.Close()

	metrics, err := otelx.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Services ---

	checker := service.NewChecker(cfg, store, metrics, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- HTTP status API (optional) ---

	var srv *http.Server
	if cfg.Server.Enabled {
		r := chi.NewRouter()
		r.Use(chimw.RealIP)
		r.Use(chimw.Recoverer)
		r.Use(chimw.Timeout(30 * time.Second))
		cvhttp.MountRoutes(r, cvhttp.NewHandlers(checker, store))

		srv = &http.Server{
			Addr:              ":" + cfg.Server.Port,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
		}
		go func() {
			slog.Info("status api listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("status api failed", "error", err)
			}
		}()
	}

	// --- MCP stdio server ---

	serveErr := make(chan error, 1)
	if cfg.MCP.Enabled {
		mcpSrv := cvmcp.NewServer(
			cvmcp.ServerConfig{Name: "codevet", Version: version},
			cvmcp.ServerDeps{Validator: checker},
			log,
		)
		go func() { serveErr <- mcpSrv.Serve() }()
	}

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			slog.Warn("mcp server exited", "error", err)
		} else {
			slog.Info("mcp client disconnected")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	checker.Cleanup(shutdownCtx)

	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
	}
	return nil
}
