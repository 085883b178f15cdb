// Package bootstrap wires the shared index components from configuration:
// the database, the optional Redis client, the checkpoint and diagnostics
// stores, the engine and the query planner. Every binary builds on it.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/textdex/internal/diagnostics"
	"github.com/Adithya-Monish-Kumar-K/textdex/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/textdex/internal/indexer/checkpoint"
	"github.com/Adithya-Monish-Kumar-K/textdex/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/textdex/internal/indexer/records"
	"github.com/Adithya-Monish-Kumar-K/textdex/internal/indexer/scheduler"
	"github.com/Adithya-Monish-Kumar-K/textdex/internal/searcher/planner"
	"github.com/Adithya-Monish-Kumar-K/textdex/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/textdex/pkg/database"
	"github.com/Adithya-Monish-Kumar-K/textdex/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/textdex/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/textdex/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/textdex/pkg/resilience"
	"github.com/hashicorp/go-multierror"
	"github.com/juju/clock"
	"github.com/prometheus/client_golang/prometheus"
)

// Components are the long-lived objects shared by the binaries.
type Components struct {
	Config      *config.Config
	DB          *database.Client
	Redis       *pkgredis.Client
	Metrics     *metrics.Metrics
	Diagnostics *diagnostics.Log
	Engine      *indexer.Engine
	Planner     *planner.Planner
	Clock       clock.Clock
}

// Options override pieces of the wiring, mainly for tests.
type Options struct {
	Registerer prometheus.Registerer
	Clock      clock.Clock
	Retry      resilience.RetryConfig
}

// Open connects to the configured stores and builds the engine. The database
// and Redis connections are retried; any failure closes what was opened.
func Open(ctx context.Context, cfg *config.Config, opts Options) (*Components, error) {
	if opts.Registerer == nil {
		opts.Registerer = prometheus.DefaultRegisterer
	}
	if opts.Clock == nil {
		opts.Clock = clock.WallClock
	}
	c := &Components{
		Config:  cfg,
		Metrics: metrics.New(opts.Registerer),
		Clock:   opts.Clock,
	}

	err := resilience.Retry(ctx, "database connect", opts.Retry, func() error {
		db, err := database.New(cfg.Database)
		if err != nil {
			return err
		}
		c.DB = db
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	slog.Info("database connected", "driver", cfg.Database.Driver)

	if cfg.Redis.Enabled {
		err := resilience.Retry(ctx, "redis connect", opts.Retry, func() error {
			rc, err := pkgredis.NewClient(cfg.Redis)
			if err != nil {
				return err
			}
			c.Redis = rc
			return nil
		})
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		slog.Info("redis connected", "addr", cfg.Redis.Addr)
	}

	state, diag, err := c.stateStores(ctx)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Diagnostics = diagnostics.New(diag, opts.Clock)
	postings := index.NewStore(c.DB.DB, c.DB.Dialect, cfg.Index.Table)
	reader := records.NewSQLReader(c.DB.DB, c.DB.Dialect, cfg.Records.Sources)

	engineOpts := indexer.OptionsFromConfig(cfg.Index)
	engineOpts.Clock = opts.Clock
	c.Engine = indexer.NewEngine(c.DB, postings, state, reader, c.Diagnostics, c.Metrics, engineOpts)
	c.Planner = planner.New(cfg.Index.Table, c.DB.Dialect, c.Metrics)
	return c, nil
}

// stateStores builds the checkpoint store and the diagnostics store on the
// configured backend, so every process sharing the index reads the same
// progress and the same diagnostics. The SQL table is created up front so
// status reads work before the index is activated.
func (c *Components) stateStores(ctx context.Context) (checkpoint.Store, diagnostics.Store, error) {
	key := c.Config.Index.StateKey
	switch c.Config.Index.CheckpointBackend {
	case "redis":
		if c.Redis == nil {
			return nil, nil, fmt.Errorf("redis checkpoint backend requires redis to be enabled")
		}
		return checkpoint.NewRedisStore(c.Redis, key, c.Clock),
			diagnostics.NewRedisStore(c.Redis, key+":diagnostics"), nil
	case "sql", "":
		table := c.Config.Index.StateTable
		state := checkpoint.NewSQLStore(c.DB.DB, c.DB.Dialect, table, key, c.Clock)
		if err := state.Ensure(ctx); err != nil {
			return nil, nil, err
		}
		return state, diagnostics.NewSQLStore(c.DB.DB, c.DB.Dialect, table, key+":diagnostics"), nil
	default:
		return nil, nil, fmt.Errorf("unknown checkpoint backend %q", c.Config.Index.CheckpointBackend)
	}
}

// Locker returns the job token guarding the batch build.
func (c *Components) Locker() scheduler.Locker {
	if c.Config.Scheduler.LockBackend == "redis" && c.Redis != nil {
		return scheduler.NewRedisLock(c.Redis, c.Config.Index.StateKey+":job", c.Config.Redis.LockTTL)
	}
	return &scheduler.LocalLock{}
}

// HealthChecker reports the database, Redis (when used) and the index. An
// index that is still building or has halted is degraded, not down.
func (c *Components) HealthChecker() *health.Checker {
	checker := health.NewChecker()
	checker.Register("database", health.PingCheck(c.DB))
	if c.Redis != nil {
		checker.Register("redis", health.PingCheck(c.Redis))
	}
	checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		st, err := c.Engine.Status(ctx)
		if err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		if !st.Ready {
			msg := fmt.Sprintf("%s, %.0f%% built", st.Phase, st.Fraction*100)
			if st.LastError != "" {
				msg += ": " + st.LastError
			}
			return health.ComponentHealth{Status: health.StatusDegraded, Message: msg}
		}
		return health.ComponentHealth{Status: health.StatusUp, Message: string(st.Phase)}
	})
	return checker
}

// StartMetrics serves /metrics when enabled and returns its shutdown func,
// which is a no-op otherwise.
func (c *Components) StartMetrics(g prometheus.Gatherer) func(context.Context) error {
	if !c.Config.Metrics.Enabled {
		return func(context.Context) error { return nil }
	}
	return metrics.StartServer(c.Config.Metrics.Port, g)
}

// Close releases every connection, reporting all failures.
func (c *Components) Close() error {
	var result error
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("closing redis: %w", err))
		}
	}
	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("closing database: %w", err))
		}
	}
	return result
}

// ShutdownTimeout bounds graceful shutdown of servers.
func (c *Components) ShutdownTimeout() time.Duration {
	if c.Config.Server.ShutdownTimeout > 0 {
		return c.Config.Server.ShutdownTimeout
	}
	return 15 * time.Second
}
