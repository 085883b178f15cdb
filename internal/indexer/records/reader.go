// Package records reads searchable text out of the host record store. A
// record's text is the space-joined values of every configured source row
// carrying its id.
package records

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/textdex/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/textdex/pkg/database"
)

// Record is the searchable text of one record.
type Record struct {
	ID   int64
	Text string
}

// Reader is the record store as the index sees it.
type Reader interface {
	// IDRange returns the first id and one past the last id across all
	// sources. An empty store yields first == last.
	IDRange(ctx context.Context) (first, last int64, err error)
	// TextForRange returns the records with ids in [lo, hi), ordered by id.
	TextForRange(ctx context.Context, q database.Querier, lo, hi int64) ([]Record, error)
	// TextForIDs returns the records among ids that still have text.
	TextForIDs(ctx context.Context, q database.Querier, ids []int64) ([]Record, error)
}

// SQLReader reads the configured sources from the host database.
type SQLReader struct {
	db      *sql.DB
	dialect database.Dialect
	sources []config.SourceConfig
}

func NewSQLReader(db *sql.DB, dialect database.Dialect, sources []config.SourceConfig) *SQLReader {
	return &SQLReader{db: db, dialect: dialect, sources: sources}
}

func (r *SQLReader) IDRange(ctx context.Context) (int64, int64, error) {
	var (
		first, last int64
		found       bool
	)
	for _, src := range r.sources {
		where, args := r.keyFilter(src, 0)
		query := fmt.Sprintf("SELECT MIN(%s), MAX(%s) FROM %s", src.IDColumn, src.IDColumn, src.Table)
		if where != "" {
			query += " WHERE " + where
		}
		var lo, hi sql.NullInt64
		if err := r.db.QueryRowContext(ctx, query, args...).Scan(&lo, &hi); err != nil {
			return 0, 0, fmt.Errorf("reading id range of %s: %w", src.Table, err)
		}
		if !lo.Valid || !hi.Valid {
			continue
		}
		if !found || lo.Int64 < first {
			first = lo.Int64
		}
		if !found || hi.Int64+1 > last {
			last = hi.Int64 + 1
		}
		found = true
	}
	return first, last, nil
}

func (r *SQLReader) TextForRange(ctx context.Context, q database.Querier, lo, hi int64) ([]Record, error) {
	if hi <= lo {
		return nil, nil
	}
	return r.collect(ctx, q, func(src config.SourceConfig) (string, []any) {
		cond := fmt.Sprintf("%s >= %s AND %s < %s",
			src.IDColumn, r.dialect.Placeholder(1), src.IDColumn, r.dialect.Placeholder(2))
		return cond, []any{lo, hi}
	})
}

func (r *SQLReader) TextForIDs(ctx context.Context, q database.Querier, ids []int64) ([]Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return r.collect(ctx, q, func(src config.SourceConfig) (string, []any) {
		args := make([]any, len(ids))
		for i, id := range ids {
			args[i] = id
		}
		cond := fmt.Sprintf("%s IN (%s)", src.IDColumn, database.Placeholders(r.dialect, 0, len(ids)))
		return cond, args
	})
}

// collect runs one query per source and joins the values per id, in source
// order then row order.
func (r *SQLReader) collect(ctx context.Context, q database.Querier, idCond func(config.SourceConfig) (string, []any)) ([]Record, error) {
	parts := make(map[int64][]string)
	for _, src := range r.sources {
		cond, args := idCond(src)
		if where, keyArgs := r.keyFilter(src, len(args)); where != "" {
			cond += " AND " + where
			args = append(args, keyArgs...)
		}
		query := fmt.Sprintf("SELECT %s, %s FROM %s WHERE %s ORDER BY %s, %s",
			src.IDColumn, src.TextColumn, src.Table, cond, src.IDColumn, src.TextColumn)
		if err := scanText(ctx, q, query, args, parts); err != nil {
			return nil, fmt.Errorf("reading text from %s: %w", src.Table, err)
		}
	}

	out := make([]Record, 0, len(parts))
	for id, values := range parts {
		out = append(out, Record{ID: id, Text: strings.Join(values, " ")})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func scanText(ctx context.Context, q database.Querier, query string, args []any, parts map[int64][]string) error {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id   int64
			text sql.NullString
		)
		if err := rows.Scan(&id, &text); err != nil {
			return err
		}
		if !text.Valid || strings.TrimSpace(text.String) == "" {
			continue
		}
		parts[id] = append(parts[id], text.String)
	}
	return rows.Err()
}

func (r *SQLReader) keyFilter(src config.SourceConfig, offset int) (string, []any) {
	if src.KeyColumn == "" || len(src.Keys) == 0 {
		return "", nil
	}
	args := make([]any, len(src.Keys))
	for i, k := range src.Keys {
		args[i] = k
	}
	return fmt.Sprintf("%s IN (%s)", src.KeyColumn, database.Placeholders(r.dialect, offset, len(src.Keys))), args
}
