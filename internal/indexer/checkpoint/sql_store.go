package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/textdex/pkg/database"
	"github.com/juju/clock"
)

// SQLStore keeps the state as a JSON value in a name/value table.
type SQLStore struct {
	db      *sql.DB
	dialect database.Dialect
	table   string
	name    string
	clock   clock.Clock
}

func NewSQLStore(db *sql.DB, dialect database.Dialect, table, name string, clk clock.Clock) *SQLStore {
	if clk == nil {
		clk = clock.WallClock
	}
	return &SQLStore{db: db, dialect: dialect, table: table, name: name, clock: clk}
}

// Ensure creates the state table if needed.
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

func (s *SQLStore) Load(ctx context.Context) (State, bool, error) {
	query := fmt.Sprintf("SELECT value FROM %s WHERE name = %s", s.table, s.dialect.Placeholder(1))
	var raw string
	err := s.db.QueryRowContext(ctx, query, s.name).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return Default(), false, nil
	}
	if err != nil {
		return State{}, false, fmt.Errorf("loading checkpoint %s: %w", s.name, err)
	}
	st, err := decode([]byte(raw))
	if err != nil {
		return State{}, false, err
	}
	return st, true, nil
}

func (s *SQLStore) Save(ctx context.Context, st State) error {
	st.UpdatedAt = s.clock.Now().UTC()
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encoding checkpoint: %w", err)
	}
	query := fmt.Sprintf(
		"INSERT INTO %s (name, value) VALUES (%s, %s) ON CONFLICT (name) DO UPDATE SET value = excluded.value",
		s.table, s.dialect.Placeholder(1), s.dialect.Placeholder(2))
	if _, err := s.db.ExecContext(ctx, query, s.name, string(raw)); err != nil {
		return fmt.Errorf("saving checkpoint %s: %w", s.name, err)
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE name = %s", s.table, s.dialect.Placeholder(1))
	if _, err := s.db.ExecContext(ctx, query, s.name); err != nil {
		return fmt.Errorf("deleting checkpoint %s: %w", s.name, err)
	}
	return nil
}

func decode(raw []byte) (State, error) {
	st := Default()
	if err := json.Unmarshal(raw, &st); err != nil {
		return State{}, fmt.Errorf("decoding checkpoint: %w", err)
	}
	if st.BatchSize <= 0 {
		st.BatchSize = DefaultBatchSize
	}
	if st.ShingleBatchSize <= 0 {
		st.ShingleBatchSize = DefaultShingleBatchSize
	}
	return st, nil
}
