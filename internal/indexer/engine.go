// Package indexer builds and maintains the trigram postings table. The
// Engine drives the resumable batch build, applies per-record updates and
// owns every write to the postings table and the checkpoint.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/textdex/internal/diagnostics"
	"github.com/Adithya-Monish-Kumar-K/textdex/internal/indexer/checkpoint"
	"github.com/Adithya-Monish-Kumar-K/textdex/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/textdex/internal/indexer/records"
	"github.com/Adithya-Monish-Kumar-K/textdex/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/textdex/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/textdex/pkg/database"
	"github.com/Adithya-Monish-Kumar-K/textdex/pkg/metrics"
	"github.com/juju/clock"
)

// Options tune the build. Zero values fall back to the checkpoint defaults.
type Options struct {
	BatchSize        int
	ShingleBatchSize int
	ReadyFuzz        int64
	Version          string
	// TimeBudget bounds one Run call; zero runs a single slice.
	TimeBudget time.Duration
	Clock      clock.Clock
}

func OptionsFromConfig(cfg config.IndexConfig) Options {
	return Options{
		BatchSize:        cfg.BatchSize,
		ShingleBatchSize: cfg.ShingleBatchSize,
		ReadyFuzz:        cfg.ReadyFuzz,
		Version:          cfg.Version,
		TimeBudget:       cfg.TimeBudget,
	}
}

type Engine struct {
	client   *database.Client
	postings *index.Store
	state    checkpoint.Store
	records  records.Reader
	diag     *diagnostics.Log
	metrics  *metrics.Metrics
	opts     Options
	clock    clock.Clock
	logger   *slog.Logger

	// mu serialises checkpoint read-modify-write cycles within this process.
	mu sync.Mutex
}

func NewEngine(
	client *database.Client,
	postings *index.Store,
	state checkpoint.Store,
	reader records.Reader,
	diag *diagnostics.Log,
	m *metrics.Metrics,
	opts Options,
) *Engine {
	if opts.BatchSize <= 0 {
		opts.BatchSize = checkpoint.DefaultBatchSize
	}
	if opts.ShingleBatchSize <= 0 {
		opts.ShingleBatchSize = checkpoint.DefaultShingleBatchSize
	}
	if opts.Clock == nil {
		opts.Clock = clock.WallClock
	}
	return &Engine{
		client:   client,
		postings: postings,
		state:    state,
		records:  reader,
		diag:     diag,
		metrics:  m,
		opts:     opts,
		clock:    opts.Clock,
		logger:   slog.Default().With("component", "indexer"),
	}
}

// Status is a point-in-time view of the build for operators. Diagnostics
// come from the shared store, so they include entries written by other
// processes.
type Status struct {
	State       checkpoint.State    `json:"state"`
	Phase       checkpoint.Phase    `json:"phase"`
	Ready       bool                `json:"ready"`
	Fraction    float64             `json:"fraction"`
	LastError   string              `json:"last_error,omitempty"`
	Diagnostics []diagnostics.Entry `json:"diagnostics"`
}

func (e *Engine) Status(ctx context.Context) (Status, error) {
	st, err := e.load(ctx)
	if err != nil {
		return Status{}, err
	}
	entries, err := e.diag.Entries(ctx)
	if err != nil {
		return Status{}, err
	}
	return Status{
		State:       st,
		Phase:       st.Phase(),
		Ready:       st.Ready(e.opts.ReadyFuzz),
		Fraction:    st.Fraction(),
		LastError:   st.Error,
		Diagnostics: entries,
	}, nil
}

// ReadyFuzz is the configured number of trailing records that may still be
// unindexed while lookups are trusted.
func (e *Engine) ReadyFuzz() int64 { return e.opts.ReadyFuzz }

// Postings exposes the store lookups run against.
func (e *Engine) Postings() *index.Store { return e.postings }

// IsReady reports whether the index is activated, not failed and built up to
// fuzz records short of the end.
func (e *Engine) IsReady(ctx context.Context, fuzz int64) (bool, error) {
	st, err := e.load(ctx)
	if err != nil {
		return false, err
	}
	return st.Ready(fuzz), nil
}

func (e *Engine) FractionComplete(ctx context.Context) (float64, error) {
	st, err := e.load(ctx)
	if err != nil {
		return 0, err
	}
	return st.Fraction(), nil
}

// LastError returns the error that halted the build, or "".
func (e *Engine) LastError(ctx context.Context) (string, error) {
	st, err := e.load(ctx)
	if err != nil {
		return "", err
	}
	return st.Error, nil
}

func (e *Engine) load(ctx context.Context) (checkpoint.State, error) {
	st, _, err := e.state.Load(ctx)
	if err != nil {
		return checkpoint.State{}, fmt.Errorf("loading checkpoint: %w", err)
	}
	return st, nil
}

func (e *Engine) save(ctx context.Context, st checkpoint.State) error {
	if err := e.state.Save(ctx, st); err != nil {
		return fmt.Errorf("saving checkpoint: %w", err)
	}
	e.observe(st)
	return nil
}

func (e *Engine) observe(st checkpoint.State) {
	e.metrics.BuildProgress.Set(st.Fraction())
	if st.Halted() {
		e.metrics.BuildFailed.Set(1)
	} else {
		e.metrics.BuildFailed.Set(0)
	}
}

// writeRecords tokenizes recs and upserts their postings in chunks of
// chunkSize pairs.
func (e *Engine) writeRecords(ctx context.Context, q database.Querier, recs []records.Record, chunkSize int) (int64, error) {
	var pairs []index.Pair
	for _, r := range recs {
		pairs = append(pairs, index.PairsFor(r.ID, tokenizer.Shingles(r.Text))...)
	}
	var inserted int64
	for _, chunk := range index.Chunk(pairs, chunkSize) {
		n, err := e.postings.UpsertMany(ctx, q, chunk)
		if err != nil {
			return inserted, err
		}
		inserted += n
	}
	return inserted, nil
}
