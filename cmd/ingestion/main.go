// Command ingestion accepts record-change notifications over HTTP and
// publishes them to Kafka for the indexer.
//
// Usage:
//
//	go run ./cmd/ingestion [-config configs/development.yaml]
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
	"time"

	"github.com/Adithya-Monish-Kumar-K/textdex/internal/ingestion/handler"
	"github.com/Adithya-Monish-Kumar-K/textdex/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/textdex/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/textdex/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/textdex/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/textdex/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/textdex/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/textdex/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/textdex/pkg/resilience"
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
	slog.Info("starting ingestion service", "port", cfg.Server.Port)
	if !cfg.Kafka.Enabled {
		slog.Error("ingestion service requires kafka; post changes to the search service instead")
		os.Exit(1)
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.RecordChanges)
	defer producer.Close()
	slog.Info("kafka producer initialized", "topic", cfg.Kafka.Topics.RecordChanges)

	breaker := resilience.NewCircuitBreaker("kafka-publish", resilience.CircuitBreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
		OnStateChange: func(name string, s resilience.State) {
			m.CircuitBreakerState.WithLabelValues(name).Set(float64(s))
		},
	})
	pub := publisher.New(producer, breaker, m, nil)
	h := handler.New(pub)

	checker := health.NewChecker()
	checker.Register("kafka", func(context.Context) health.ComponentHealth {
		if s := breaker.GetState(); s != resilience.StateClosed {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "publisher circuit " + s.String()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Metrics(m)(chain)
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	shutdownMetrics := func(context.Context) error { return nil }
	if cfg.Metrics.Enabled {
		shutdownMetrics = metrics.StartServer(cfg.Metrics.Port, prometheus.DefaultGatherer)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
		if err := shutdownMetrics(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown error", "error", err)
		}
	}()
	slog.Info("ingestion service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("ingestion service stopped")
}
