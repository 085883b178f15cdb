package diagnostics

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/textdex/pkg/database"
)

// SQLStore keeps the entries as one JSON array in a name/value table, the
// same table the checkpoint lives in.
type SQLStore struct {
	db      *sql.DB
	dialect database.Dialect
	table   string
	name    string
}

func NewSQLStore(db *sql.DB, dialect database.Dialect, table, name string) *SQLStore {
	return &SQLStore{db: db, dialect: dialect, table: table, name: name}
}

// Ensure creates the name/value table if needed.
func (s *SQLStore) Ensure(ctx context.Context) error {
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		name VARCHAR(191) PRIMARY KEY,
		value TEXT NOT NULL
	)`, s.table)
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("creating state table %s: %w", s.table, err)
	}
	return nil
}

// Push rewrites the row inside a transaction holding its lock, so writers in
// other processes queue behind each other.
func (s *SQLStore) Push(ctx context.Context, e Entry) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning diagnostics write: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	entries, err := s.read(ctx, tx, s.dialect.RowLock())
	if err != nil {
		return err
	}
	raw, err := json.Marshal(prepend(entries, e))
	if err != nil {
		return fmt.Errorf("encoding diagnostics: %w", err)
	}
	query := fmt.Sprintf(
		"INSERT INTO %s (name, value) VALUES (%s, %s) ON CONFLICT (name) DO UPDATE SET value = excluded.value",
		s.table, s.dialect.Placeholder(1), s.dialect.Placeholder(2))
	if _, err = tx.ExecContext(ctx, query, s.name, string(raw)); err != nil {
		return fmt.Errorf("saving diagnostics %s: %w", s.name, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing diagnostics: %w", err)
	}
	return nil
}

func (s *SQLStore) List(ctx context.Context) ([]Entry, error) {
	return s.read(ctx, s.db, "")
}

func (s *SQLStore) read(ctx context.Context, q database.Querier, lock string) ([]Entry, error) {
	query := fmt.Sprintf("SELECT value FROM %s WHERE name = %s%s", s.table, s.dialect.Placeholder(1), lock)
	var raw string
	err := q.QueryRowContext(ctx, query, s.name).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return []Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading diagnostics %s: %w", s.name, err)
	}
	var entries []Entry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, fmt.Errorf("decoding diagnostics: %w", err)
	}
	return entries, nil
}
