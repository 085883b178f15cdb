// Package executor runs candidate lookups for search terms against the
// postings table once the index is ready to be trusted.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"

	"github.com/Adithya-Monish-Kumar-K/textdex/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/textdex/internal/searcher/planner"
	apperrors "github.com/Adithya-Monish-Kumar-K/textdex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/textdex/pkg/metrics"
	"github.com/juju/clock"
	"golang.org/x/sync/singleflight"
)

// Index is satisfied by *indexer.Engine.
type Index interface {
	IsReady(ctx context.Context, fuzz int64) (bool, error)
	ReadyFuzz() int64
	Postings() *index.Store
}

// Result lists the candidate records for a term. Shared between coalesced
// callers, so it must not be modified.
type Result struct {
	Term      string       `json:"term"`
	Kind      planner.Kind `json:"kind"`
	Total     int          `json:"total"`
	RecordIDs []int64      `json:"record_ids"`
}

type Executor struct {
	index   Index
	planner *planner.Planner
	metrics *metrics.Metrics
	clock   clock.Clock
	group   singleflight.Group
	logger  *slog.Logger
}

func New(idx Index, p *planner.Planner, m *metrics.Metrics, clk clock.Clock) *Executor {
	if clk == nil {
		clk = clock.WallClock
	}
	return &Executor{
		index:   idx,
		planner: p,
		metrics: m,
		clock:   clk,
		logger:  slog.Default().With("component", "candidate-executor"),
	}
}

// Candidates returns the ids of records that may contain term, in ascending
// order. It fails with ErrNotReady while the index is still being built.
// Concurrent calls for the same folded term share one database query.
func (e *Executor) Candidates(ctx context.Context, term string) (*Result, error) {
	ready, err := e.index.IsReady(ctx, e.index.ReadyFuzz())
	if err != nil {
		e.metrics.SearchQueriesTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("checking index readiness: %w", err)
	}
	if !ready {
		e.metrics.SearchQueriesTotal.WithLabelValues("not_ready").Inc()
		return nil, apperrors.New(apperrors.ErrNotReady, http.StatusServiceUnavailable, "index is still being built")
	}

	plan, err := e.planner.PlanFor(term)
	if err != nil {
		return nil, err
	}

	v, err, shared := e.group.Do(plan.Term, func() (any, error) {
		return e.run(ctx, plan)
	})
	if err != nil {
		e.metrics.SearchQueriesTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	res := v.(*Result)
	if res.Total == 0 {
		e.metrics.SearchQueriesTotal.WithLabelValues("zero_result").Inc()
	} else {
		e.metrics.SearchQueriesTotal.WithLabelValues("hit").Inc()
	}
	e.logger.Debug("candidates found",
		"term", plan.Term,
		"kind", plan.Kind,
		"total", res.Total,
		"shared", shared,
	)
	return res, nil
}

func (e *Executor) run(ctx context.Context, plan *planner.Plan) (*Result, error) {
	start := e.clock.Now()
	query, args := plan.Build(0)
	ids, err := e.index.Postings().QueryIDs(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("looking up %s candidates for %q: %w", plan.Kind, plan.Term, err)
	}
	slices.Sort(ids)
	if ids == nil {
		ids = []int64{}
	}
	e.metrics.SearchLatency.WithLabelValues(string(plan.Kind)).Observe(e.clock.Now().Sub(start).Seconds())
	e.metrics.SearchCandidateCount.Observe(float64(len(ids)))
	return &Result{
		Term:      plan.Term,
		Kind:      plan.Kind,
		Total:     len(ids),
		RecordIDs: ids,
	}, nil
}
