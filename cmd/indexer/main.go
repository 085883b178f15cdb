// Command indexer activates the trigram index, drives the resumable batch
// build in the background and applies record-change events from Kafka.
//
// Usage:
//
//	go run ./cmd/indexer [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/textdex/internal/bootstrap"
	"github.com/Adithya-Monish-Kumar-K/textdex/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/textdex/internal/indexer/scheduler"
	"github.com/Adithya-Monish-Kumar-K/textdex/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/textdex/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/textdex/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/textdex/pkg/resilience"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
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
	slog.Info("starting indexer service", "version", cfg.Index.Version, "table", cfg.Index.Table)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.Open(ctx, cfg, bootstrap.Options{})
	if err != nil {
		slog.Error("failed to initialize components", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	if err := app.Engine.Activate(ctx); err != nil {
		slog.Error("failed to activate index", "error", err)
		os.Exit(1)
	}

	shutdownMetrics := app.StartMetrics(prometheus.DefaultGatherer)

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Scheduler.Enabled {
		sched := scheduler.New(app.Engine, app.Locker(), cfg.Scheduler.Interval, app.Clock)
		sched.Enqueue()
		g.Go(func() error { return sched.Start(gctx) })
	} else {
		slog.Info("background build disabled")
	}

	if cfg.Kafka.Enabled {
		retry := resilience.RetryConfig{MaxAttempts: 5, InitialDelay: 200 * time.Millisecond, Clock: app.Clock}
		handler := consumer.HandleMessage(app.Engine, app.Metrics, cfg.Server.WriteTimeout, retry)
		kafkaConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.RecordChanges, handler)
		indexConsumer := consumer.New(kafkaConsumer)
		slog.Info("consuming record changes",
			"topic", cfg.Kafka.Topics.RecordChanges,
			"group", cfg.Kafka.ConsumerGroup,
		)
		g.Go(func() error { return indexConsumer.Start(gctx) })
	} else {
		slog.Info("kafka disabled, record changes arrive over http only")
	}

	slog.Info("indexer service ready")
	// A consumer failure ends the group with its event uncommitted; exiting
	// non-zero lets the supervisor restart us so the event is redelivered.
	runErr := g.Wait()
	if runErr != nil {
		slog.Error("indexer stopped with error", "error", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.ShutdownTimeout())
	defer cancel()
	if err := shutdownMetrics(shutdownCtx); err != nil {
		slog.Error("metrics server shutdown error", "error", err)
	}
	slog.Info("indexer service stopped")
	if runErr != nil {
		cancel()
		app.Close()
		os.Exit(1)
	}
}
