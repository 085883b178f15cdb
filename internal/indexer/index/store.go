// Package index persists the trigram postings table: a set of
// (shingle, record_id) pairs with shingles stored case-folded.
package index

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/textdex/pkg/database"
	apperrors "github.com/Adithya-Monish-Kumar-K/textdex/pkg/errors"
)

// Store reads and writes the postings table. Writes take a Querier so they
// can join the caller's transaction.
type Store struct {
	db      *sql.DB
	dialect database.Dialect
	table   string
}

// NewStore returns a Store for the postings table named table.
func NewStore(db *sql.DB, dialect database.Dialect, table string) *Store {
	return &Store{db: db, dialect: dialect, table: table}
}

// Table returns the postings table name, for callers composing subqueries.
func (s *Store) Table() string { return s.table }

// Dialect returns the SQL dialect the store renders statements for.
func (s *Store) Dialect() database.Dialect { return s.dialect }

// CreateIfAbsent creates the postings table and its record_id index. An
// existing table or index is not an error.
func (s *Store) CreateIfAbsent(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE %s (
			shingle CHAR(3) NOT NULL,
			record_id BIGINT NOT NULL,
			PRIMARY KEY (shingle, record_id)
		)`, s.table),
		fmt.Sprintf(`CREATE INDEX %s_record_id_idx ON %s (record_id)`, indexName(s.table), s.table),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			if s.dialect.IsDuplicateObject(err) {
				continue
			}
			return apperrors.Wrap(apperrors.ErrSchema, err, "creating postings table %s", s.table)
		}
	}
	return nil
}

// Drop removes the postings table if it exists.
func (s *Store) Drop(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DROP TABLE IF EXISTS `+s.table); err != nil {
		return apperrors.Wrap(apperrors.ErrSchema, err, "dropping postings table %s", s.table)
	}
	return nil
}

// Truncate removes every posting.
func (s *Store) Truncate(ctx context.Context, q database.Querier) error {
	if _, err := q.ExecContext(ctx, s.dialect.TruncateStmt(s.table)); err != nil {
		return apperrors.Wrap(apperrors.ErrWrite, err, "truncating %s", s.table)
	}
	return nil
}

// UpsertMany inserts pairs in one multi-row statement, ignoring pairs that
// already exist. It returns the number of rows actually inserted, which is
// informational only.
func (s *Store) UpsertMany(ctx context.Context, q database.Querier, pairs []Pair) (int64, error) {
	pairs = dedupe(pairs)
	if len(pairs) == 0 {
		return 0, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (shingle, record_id) VALUES ", s.table)
	args := make([]any, 0, len(pairs)*2)
	for i, p := range pairs {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "(%s, %s)", s.dialect.Placeholder(2*i+1), s.dialect.Placeholder(2*i+2))
		args = append(args, p.Shingle, p.RecordID)
	}
	b.WriteString(" ON CONFLICT DO NOTHING")

	res, err := q.ExecContext(ctx, b.String(), args...)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrWrite, err, "inserting %d postings", len(pairs))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}

// DeleteRecords removes every posting of the given records.
func (s *Store) DeleteRecords(ctx context.Context, q database.Querier, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE record_id IN (%s)",
		s.table, database.Placeholders(s.dialect, 0, len(ids)))
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return apperrors.Wrap(apperrors.ErrWrite, err, "deleting postings for %d records", len(ids))
	}
	return nil
}

// DeleteRecord removes every posting of one record. Records without postings
// are a no-op.
func (s *Store) DeleteRecord(ctx context.Context, q database.Querier, id int64) error {
	return s.DeleteRecords(ctx, q, []int64{id})
}

// LookupShingle returns the ids of records containing shingle.
func (s *Store) LookupShingle(ctx context.Context, shingle string) ([]int64, error) {
	query := fmt.Sprintf("SELECT record_id FROM %s WHERE shingle = %s ORDER BY record_id",
		s.table, s.dialect.Placeholder(1))
	return s.queryIDs(ctx, query, Fold(shingle))
}

// LookupPrefix returns the ids of records having a shingle that starts with
// prefix.
func (s *Store) LookupPrefix(ctx context.Context, prefix string) ([]int64, error) {
	query := fmt.Sprintf(`SELECT DISTINCT record_id FROM %s WHERE shingle LIKE %s ESCAPE '\' ORDER BY record_id`,
		s.table, s.dialect.Placeholder(1))
	return s.queryIDs(ctx, query, EscapeLike(Fold(prefix))+"%")
}

// CountRecord returns how many postings a record has.
func (s *Store) CountRecord(ctx context.Context, id int64) (int, error) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE record_id = %s", s.table, s.dialect.Placeholder(1))
	var n int
	if err := s.db.QueryRowContext(ctx, query, id).Scan(&n); err != nil {
		return 0, apperrors.Wrap(apperrors.ErrRead, err, "counting postings of record %d", id)
	}
	return n, nil
}

// Shingles returns the folded shingles stored for a record in ascending
// order.
func (s *Store) Shingles(ctx context.Context, id int64) ([]string, error) {
	query := fmt.Sprintf("SELECT shingle FROM %s WHERE record_id = %s ORDER BY shingle",
		s.table, s.dialect.Placeholder(1))
	rows, err := s.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrRead, err, "reading shingles of record %d", id)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var sh string
		if err := rows.Scan(&sh); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrRead, err, "scanning shingle")
		}
		out = append(out, sh)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrRead, err, "iterating shingles")
	}
	return out, nil
}

// QueryIDs runs an arbitrary record_id query against the store's database.
func (s *Store) QueryIDs(ctx context.Context, query string, args ...any) ([]int64, error) {
	return s.queryIDs(ctx, query, args...)
}

func (s *Store) queryIDs(ctx context.Context, query string, args ...any) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrRead, err, "querying postings")
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrRead, err, "scanning record id")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrRead, err, "iterating postings")
	}
	return ids, nil
}

// indexName derives an index name from a possibly schema-qualified table.
func indexName(table string) string {
	if i := strings.LastIndexByte(table, '.'); i >= 0 {
		return table[i+1:]
	}
	return table
}
