package database

import (
	"errors"
	"strconv"
	"strings"

	"github.com/lib/pq"
)

// Dialect captures the few places where the supported engines disagree.
type Dialect interface {
	Name() string
	// Placeholder returns the bind marker for the n-th (1-based) argument.
	Placeholder(n int) string
	// TruncateStmt empties table.
	TruncateStmt(table string) string
	// IsDuplicateObject reports whether err means a table or index already
	// exists.
	IsDuplicateObject(err error) bool
	// RowLock is appended to a SELECT inside a transaction to lock the rows
	// it reads until commit.
	RowLock() string
}

// Placeholders renders count markers starting after offset, comma separated.
func Placeholders(d Dialect, offset, count int) string {
	var b strings.Builder
	for i := 1; i <= count; i++ {
		if i > 1 {
			b.WriteString(", ")
		}
		b.WriteString(d.Placeholder(offset + i))
	}
	return b.String()
}

type Postgres struct{}

func (Postgres) Name() string { return "postgres" }

func (Postgres) Placeholder(n int) string { return "$" + strconv.Itoa(n) }

func (Postgres) TruncateStmt(table string) string { return "TRUNCATE TABLE " + table }

func (Postgres) RowLock() string { return " FOR UPDATE" }

// duplicate_table (42P07) covers relations and indexes; duplicate_object
// (42710) covers constraints.
func (Postgres) IsDuplicateObject(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "42P07" || pqErr.Code == "42710"
	}
	return false
}

type SQLite struct{}

func (SQLite) Name() string { return "sqlite" }

func (SQLite) Placeholder(int) string { return "?" }

func (SQLite) TruncateStmt(table string) string { return "DELETE FROM " + table }

// RowLock is empty: sqlite has a single writer per database.
func (SQLite) RowLock() string { return "" }

func (SQLite) IsDuplicateObject(err error) bool {
	return err != nil && strings.Contains(err.Error(), "already exists")
}
