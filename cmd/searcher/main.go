// Command searcher serves candidate lookups, query plans, index status and
// the index administration endpoints over HTTP.
//
// Usage:
//
//	go run ./cmd/searcher [-config configs/development.yaml]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/textdex/internal/bootstrap"
	"github.com/Adithya-Monish-Kumar-K/textdex/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/textdex/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/textdex/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/textdex/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/textdex/pkg/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting search service", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.Open(ctx, cfg, bootstrap.Options{})
	if err != nil {
		slog.Error("failed to initialize components", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	exec := executor.New(app.Engine, app.Planner, app.Metrics, app.Clock)
	h := handler.New(exec, app.Planner, app.Engine, nil)
	checker := app.HealthChecker()

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	// Metrics wraps the mux directly so it sees the matched pattern.
	var chain http.Handler = mux
	chain = middleware.Metrics(app.Metrics)(chain)
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	shutdownMetrics := app.StartMetrics(prometheus.DefaultGatherer)

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), app.ShutdownTimeout())
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
		if err := shutdownMetrics(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown error", "error", err)
		}
	}()

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("search service stopped")
}
