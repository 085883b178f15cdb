// Package diagnostics keeps a short, newest-first log of build and update
// problems for operators. Entries go to a Store that every process sharing
// the index reads, and are also written to slog.
package diagnostics

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/juju/clock"
)

// Capacity is the number of entries kept.
const Capacity = 10

type Entry struct {
	Time     time.Time `json:"time"`
	Category string    `json:"category"`
	Message  string    `json:"message"`
}

// Store persists the Capacity newest entries.
type Store interface {
	Push(ctx context.Context, e Entry) error
	// List returns the stored entries, newest first.
	List(ctx context.Context) ([]Entry, error)
}

type Log struct {
	store  Store
	clock  clock.Clock
	logger *slog.Logger
}

// New returns a Log writing to store. A nil store keeps entries in this
// process only.
func New(store Store, clk clock.Clock) *Log {
	if store == nil {
		store = NewMemoryStore()
	}
	if clk == nil {
		clk = clock.WallClock
	}
	return &Log{
		store:  store,
		clock:  clk,
		logger: slog.Default().With("component", "diagnostics"),
	}
}

// Add records an entry. A store failure is logged and otherwise ignored.
func (l *Log) Add(ctx context.Context, category, message string) {
	l.logger.Warn(message, "category", category)
	e := Entry{Time: l.clock.Now().UTC(), Category: category, Message: message}
	if err := l.store.Push(ctx, e); err != nil {
		l.logger.Error("cannot store diagnostics entry", "category", category, "error", err)
	}
}

func (l *Log) Addf(ctx context.Context, category, format string, args ...any) {
	l.Add(ctx, category, fmt.Sprintf(format, args...))
}

// Entries returns the log, newest first.
func (l *Log) Entries(ctx context.Context) ([]Entry, error) {
	entries, err := l.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading diagnostics: %w", err)
	}
	return entries, nil
}

// MemoryStore is a ring held in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	entries []Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make([]Entry, 0, Capacity)}
}

func (m *MemoryStore) Push(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = prepend(m.entries, e)
	return nil
}

func (m *MemoryStore) List(context.Context) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out, nil
}

// prepend puts e in front of entries, dropping the oldest past Capacity.
func prepend(entries []Entry, e Entry) []Entry {
	if len(entries) >= Capacity {
		entries = entries[:Capacity-1]
	}
	return append([]Entry{e}, entries...)
}
