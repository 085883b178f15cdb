package indexer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/textdex/internal/indexer/records"
	apperrors "github.com/Adithya-Monish-Kumar-K/textdex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/textdex/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/textdex/pkg/tracing"
	"github.com/google/uuid"
)

// RunOneBatch indexes the next slice of at most BatchSize record ids and
// advances the checkpoint past it. It reports whether more slices remain.
func (e *Engine) RunOneBatch(ctx context.Context) (bool, error) {
	st, err := e.load(ctx)
	if err != nil {
		return false, err
	}
	switch {
	case st.New:
		return false, fmt.Errorf("running batch: %w", apperrors.ErrNotActivated)
	case st.Halted():
		return false, fmt.Errorf("running batch (%s): %w", st.Error, apperrors.ErrBuildHalted)
	case st.Complete():
		e.observe(st)
		return false, nil
	}

	lo := st.Current
	hi := min(lo+int64(st.BatchSize), st.Last)
	log := logger.FromContext(ctx).With("component", "indexer", "lo", lo, "hi", hi)

	ctx, span := tracing.StartChildSpan(ctx, "index.slice")
	span.SetAttr("lo", lo)
	span.SetAttr("hi", hi)
	defer span.End()
	start := e.clock.Now()

	var (
		recs     []records.Record
		inserted int64
	)
	err = e.client.InTx(ctx, func(tx *sql.Tx) error {
		var txErr error
		fctx, fetch := tracing.StartChildSpan(ctx, "fetch")
		recs, txErr = e.records.TextForRange(fctx, tx, lo, hi)
		fetch.SetAttr("records", len(recs))
		fetch.End()
		if txErr != nil {
			return apperrors.Wrap(apperrors.ErrRead, txErr, "reading records [%d, %d)", lo, hi)
		}

		uctx, upsert := tracing.StartChildSpan(ctx, "upsert")
		inserted, txErr = e.writeRecords(uctx, tx, recs, st.ShingleBatchSize)
		upsert.SetAttr("inserted", inserted)
		upsert.End()
		return txErr
	})
	if err != nil {
		return false, e.failSlice(ctx, st.Generation, lo, hi, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	cur, err := e.load(ctx)
	if err != nil {
		return false, err
	}
	// Only move forward from inside this slice and within the build it
	// was read under; a rebuild or a faster overlapping run wins.
	if !cur.New && cur.Generation == st.Generation && cur.Current >= lo && cur.Current < hi {
		cur.Current = hi
		if err := e.save(ctx, cur); err != nil {
			return false, err
		}
	}

	e.metrics.SlicesTotal.WithLabelValues("ok").Inc()
	e.metrics.SliceDuration.Observe(e.clock.Now().Sub(start).Seconds())
	e.metrics.PostingsInserted.Add(float64(inserted))
	e.metrics.RecordsIndexedTotal.WithLabelValues("batch").Add(float64(len(recs)))
	log.Debug("slice indexed", "records", len(recs), "postings_inserted", inserted)

	return !cur.New && !cur.Halted() && !cur.Complete(), nil
}

// failSlice halts the build with err recorded in the checkpoint. A slice
// abandoned because ctx ended is left for the next run, and a failure from a
// build generation that has since been replaced is not recorded.
func (e *Engine) failSlice(ctx context.Context, generation, lo, hi int64, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		e.metrics.SlicesTotal.WithLabelValues("abandoned").Inc()
		logger.FromContext(ctx).Info("slice abandoned", "lo", lo, "hi", hi, "reason", ctxErr)
		return fmt.Errorf("indexing records [%d, %d): %w", lo, hi, ctxErr)
	}

	status := "write_error"
	if errors.Is(err, apperrors.ErrRead) {
		status = "read_error"
	} else if !errors.Is(err, apperrors.ErrWrite) {
		err = apperrors.Wrap(apperrors.ErrWrite, err, "indexing records [%d, %d)", lo, hi)
	}
	e.metrics.SlicesTotal.WithLabelValues(status).Inc()
	e.diag.Addf(ctx, "batch", "slice [%d, %d) failed: %v", lo, hi, err)

	e.mu.Lock()
	defer e.mu.Unlock()
	st, loadErr := e.load(ctx)
	if loadErr != nil {
		logger.FromContext(ctx).Error("cannot record slice failure", "error", loadErr)
		return err
	}
	if st.New || st.Generation != generation {
		return err
	}
	st.Error = err.Error()
	if saveErr := e.save(ctx, st); saveErr != nil {
		logger.FromContext(ctx).Error("cannot record slice failure", "error", saveErr)
	}
	return err
}

// HasMoreBatches reports whether RunOneBatch would index anything.
func (e *Engine) HasMoreBatches(ctx context.Context) (bool, error) {
	st, err := e.load(ctx)
	if err != nil {
		return false, err
	}
	return !st.New && !st.Halted() && !st.Complete(), nil
}

// Run indexes slices until none remain, ctx is done, or the time budget is
// spent. It reports whether more slices remain.
func (e *Engine) Run(ctx context.Context) (bool, error) {
	ctx = logger.WithJobID(ctx, uuid.NewString())
	ctx, span := tracing.StartSpan(ctx, "index.run", "")
	defer span.End()

	log := logger.FromContext(ctx).With("component", "indexer")
	deadline := e.clock.Now().Add(e.opts.TimeBudget)
	slices := 0
	for {
		more, err := e.RunOneBatch(ctx)
		if err != nil {
			log.Error("index run stopped", "slices", slices, "error", err)
			return false, err
		}
		slices++
		if !more {
			log.Info("index run finished", "slices", slices)
			return false, nil
		}
		if ctx.Err() != nil || !e.clock.Now().Before(deadline) {
			log.Info("index run paused", "slices", slices)
			return true, nil
		}
	}
}
