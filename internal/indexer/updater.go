package indexer

import (
	"context"
	"database/sql"
	"slices"

	"github.com/Adithya-Monish-Kumar-K/textdex/internal/indexer/records"
	apperrors "github.com/Adithya-Monish-Kumar-K/textdex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/textdex/pkg/logger"
)

// Update brings the postings of the given records in line with their current
// text. Ids past the known range extend it. Records are re-indexed right away
// when the index is ready or the build has already passed them; otherwise
// the build picks them up later. Failures are returned and logged but do not
// halt the build.
func (e *Engine) Update(ctx context.Context, ids []int64) error {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return nil
	}
	log := logger.FromContext(ctx).With("component", "indexer")

	e.mu.Lock()
	defer e.mu.Unlock()
	st, err := e.load(ctx)
	if err != nil {
		return err
	}
	if st.New {
		e.metrics.UpdatesTotal.WithLabelValues("deferred").Inc()
		log.Debug("update deferred, index not activated", "records", len(ids))
		return nil
	}

	wasComplete := st.Complete()
	for _, id := range ids {
		st.Last = max(st.Last, id+1)
		if wasComplete {
			st.Current = max(st.Current, id+1)
		}
	}

	var reindex []int64
	if !st.Halted() {
		ready := st.Ready(e.opts.ReadyFuzz)
		for _, id := range ids {
			if ready || id < st.Current {
				reindex = append(reindex, id)
			}
		}
	}

	if len(reindex) > 0 {
		var (
			recs     []records.Record
			inserted int64
		)
		err := e.client.InTx(ctx, func(tx *sql.Tx) error {
			if err := e.postings.DeleteRecords(ctx, tx, reindex); err != nil {
				return err
			}
			var err error
			recs, err = e.records.TextForIDs(ctx, tx, reindex)
			if err != nil {
				return apperrors.Wrap(apperrors.ErrRead, err, "reading %d changed records", len(reindex))
			}
			inserted, err = e.writeRecords(ctx, tx, recs, st.ShingleBatchSize)
			return err
		})
		if err != nil {
			e.metrics.UpdatesTotal.WithLabelValues("error").Inc()
			e.diag.Addf(ctx, "update", "re-indexing records %v failed: %v", reindex, err)
			return err
		}
		e.metrics.PostingsInserted.Add(float64(inserted))
		e.metrics.RecordsIndexedTotal.WithLabelValues("update").Add(float64(len(recs)))
	}

	if err := e.save(ctx, st); err != nil {
		e.metrics.UpdatesTotal.WithLabelValues("error").Inc()
		e.diag.Addf(ctx, "update", "%v", err)
		return err
	}
	if len(reindex) > 0 {
		e.metrics.UpdatesTotal.WithLabelValues("reindexed").Inc()
	} else {
		e.metrics.UpdatesTotal.WithLabelValues("deferred").Inc()
	}
	log.Debug("records updated", "records", len(ids), "reindexed", len(reindex), "last", st.Last)
	return nil
}

func uniqueIDs(ids []int64) []int64 {
	if len(ids) == 0 {
		return nil
	}
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}
