package indexer

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/textdex/internal/indexer/checkpoint"
	apperrors "github.com/Adithya-Monish-Kumar-K/textdex/pkg/errors"
	"github.com/Masterminds/semver/v3"
	"github.com/hashicorp/go-multierror"
)

// ensurer is implemented by checkpoint stores that need a schema.
type ensurer interface {
	Ensure(ctx context.Context) error
}

// Activate prepares a new index: creates the postings table, computes the id
// range and starts the build at its first id. An index that is already
// activated is upgraded to the configured version instead.
func (e *Engine) Activate(ctx context.Context) error {
	if en, ok := e.state.(ensurer); ok {
		if err := en.Ensure(ctx); err != nil {
			e.diag.Addf(ctx, "activate", "creating checkpoint store: %v", err)
			return apperrors.Wrap(apperrors.ErrSchema, err, "preparing checkpoint store")
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	st, err := e.load(ctx)
	if err != nil {
		return err
	}
	if !st.New {
		return e.upgrade(ctx, st, e.opts.Version)
	}

	if err := e.postings.CreateIfAbsent(ctx); err != nil {
		e.diag.Addf(ctx, "activate", "%v", err)
		return err
	}
	if err := e.resetRange(ctx, &st); err != nil {
		return err
	}
	st.New = false
	st.Error = ""
	st.Version = e.opts.Version
	e.applyBatchSizes(&st)
	if err := e.save(ctx, st); err != nil {
		return err
	}
	e.logger.Info("index activated", "first", st.First, "last", st.Last, "version", st.Version)
	return nil
}

// Deactivate drops the postings table and forgets the checkpoint. Both are
// attempted even if one fails.
func (e *Engine) Deactivate(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var result error
	if err := e.postings.Drop(ctx); err != nil {
		result = multierror.Append(result, err)
	}
	if err := e.state.Delete(ctx); err != nil {
		result = multierror.Append(result, err)
	}
	if result != nil {
		e.diag.Addf(ctx, "deactivate", "%v", result)
		return result
	}
	e.metrics.BuildProgress.Set(0)
	e.metrics.BuildFailed.Set(0)
	e.logger.Info("index deactivated")
	return nil
}

// Upgrade records a new index version. A higher major or minor version than
// the stored one forces a full rebuild; any change clears a recorded error.
func (e *Engine) Upgrade(ctx context.Context, version string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, err := e.load(ctx)
	if err != nil {
		return err
	}
	if st.New {
		return fmt.Errorf("upgrading to %s: %w", version, apperrors.ErrNotActivated)
	}
	return e.upgrade(ctx, st, version)
}

func (e *Engine) upgrade(ctx context.Context, st checkpoint.State, version string) error {
	prev := st.Version
	changed := prev != version
	e.applyBatchSizes(&st)
	if !changed {
		return e.save(ctx, st)
	}

	if needsRebuild(prev, version) {
		e.logger.Info("version change requires rebuild", "from", prev, "to", version)
		if err := e.rebuild(ctx, &st); err != nil {
			return err
		}
	}
	st.Error = ""
	st.Version = version
	if err := e.save(ctx, st); err != nil {
		return err
	}
	e.logger.Info("index version updated", "from", prev, "to", version)
	return nil
}

// Rebuild discards all postings and restarts the build from the first id.
// It also clears a recorded error.
func (e *Engine) Rebuild(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, err := e.load(ctx)
	if err != nil {
		return err
	}
	if st.New {
		return fmt.Errorf("rebuilding: %w", apperrors.ErrNotActivated)
	}
	if err := e.rebuild(ctx, &st); err != nil {
		return err
	}
	st.Error = ""
	e.applyBatchSizes(&st)
	if err := e.save(ctx, st); err != nil {
		return err
	}
	e.diag.Addf(ctx, "rebuild", "index rebuild started over [%d, %d)", st.First, st.Last)
	return nil
}

// rebuild resets the range in st, starting a new generation, and empties the
// postings table. The reset checkpoint is saved before truncating so a crash
// in between leaves only surplus postings behind, and slices still running
// under the old generation cannot advance it.
func (e *Engine) rebuild(ctx context.Context, st *checkpoint.State) error {
	if err := e.postings.CreateIfAbsent(ctx); err != nil {
		e.diag.Addf(ctx, "rebuild", "%v", err)
		return err
	}
	if err := e.resetRange(ctx, st); err != nil {
		return err
	}
	if err := e.save(ctx, *st); err != nil {
		return err
	}
	if err := e.postings.Truncate(ctx, e.client.DB); err != nil {
		e.diag.Addf(ctx, "rebuild", "%v", err)
		st.Error = err.Error()
		if saveErr := e.save(ctx, *st); saveErr != nil {
			return multierror.Append(err, saveErr)
		}
		return err
	}
	return nil
}

func (e *Engine) resetRange(ctx context.Context, st *checkpoint.State) error {
	first, last, err := e.records.IDRange(ctx)
	if err != nil {
		err = apperrors.Wrap(apperrors.ErrRead, err, "computing record id range")
		e.diag.Addf(ctx, "activate", "%v", err)
		return err
	}
	st.First, st.Last, st.Current = first, last, first
	// A deactivated index loses its state, so the clock keeps generations
	// unique across re-activation too.
	st.Generation = max(st.Generation+1, e.clock.Now().UnixNano())
	return nil
}

func (e *Engine) applyBatchSizes(st *checkpoint.State) {
	st.BatchSize = e.opts.BatchSize
	st.ShingleBatchSize = e.opts.ShingleBatchSize
}

// needsRebuild reports whether moving from prev to next raises the major or
// minor version. Versions that do not parse are compared as strings and any
// difference counts.
func needsRebuild(prev, next string) bool {
	if prev == next {
		return false
	}
	pv, err := semver.NewVersion(prev)
	if err != nil {
		return true
	}
	nv, err := semver.NewVersion(next)
	if err != nil {
		return true
	}
	if nv.Major() != pv.Major() {
		return nv.Major() > pv.Major()
	}
	return nv.Minor() > pv.Minor()
}
