package diagnostics

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/textdex/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/textdex/pkg/database"
	"github.com/Adithya-Monish-Kumar-K/textdex/pkg/redis"
	"github.com/alicebob/miniredis/v2"
	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newSQLStore(t *testing.T) Store {
	t.Helper()
	client, err := database.NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	s := NewSQLStore(client.DB, client.Dialect, "textdex_state", "textdex_status:diagnostics")
	require.NoError(t, s.Ensure(context.Background()))
	return s
}

func newRedisStore(t *testing.T) Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := redis.NewClient(config.RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client, "textdex:status:diagnostics")
}

var stores = map[string]func(t *testing.T) Store{
	"memory": func(*testing.T) Store { return NewMemoryStore() },
	"sql":    newSQLStore,
	"redis":  newRedisStore,
}

func entries(t *testing.T, l *Log) []Entry {
	t.Helper()
	got, err := l.Entries(context.Background())
	require.NoError(t, err)
	return got
}

func TestNewestFirst(t *testing.T) {
	for name, mk := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			clk := testclock.NewClock(start)
			l := New(mk(t), clk)
			assert.Empty(t, entries(t, l))

			l.Add(ctx, "activate", "first")
			clk.Advance(time.Second)
			l.Addf(ctx, "batch", "slice %d failed", 3)

			got := entries(t, l)
			require.Len(t, got, 2)
			assert.Equal(t, "slice 3 failed", got[0].Message)
			assert.Equal(t, "batch", got[0].Category)
			assert.True(t, start.Add(time.Second).Equal(got[0].Time))
			assert.Equal(t, "first", got[1].Message)
		})
	}
}

func TestCapacity(t *testing.T) {
	for name, mk := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			l := New(mk(t), nil)
			for i := 0; i < Capacity+5; i++ {
				l.Addf(ctx, "batch", "entry %d", i)
			}
			got := entries(t, l)
			require.Len(t, got, Capacity)
			assert.Equal(t, fmt.Sprintf("entry %d", Capacity+4), got[0].Message)
			assert.Equal(t, "entry 5", got[Capacity-1].Message)
		})
	}
}

func TestLogsSharingAStoreSeeEachOther(t *testing.T) {
	for name, mk := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := mk(t)
			writer := New(store, nil)
			reader := New(store, nil)

			writer.Add(ctx, "batch", "slice [1, 3) failed: connection reset")
			got := entries(t, reader)
			require.Len(t, got, 1)
			assert.Equal(t, "batch", got[0].Category)

			reader.Add(ctx, "rebuild", "index rebuild started over [1, 6)")
			got = entries(t, writer)
			require.Len(t, got, 2)
			assert.Equal(t, "rebuild", got[0].Category)
		})
	}
}

func TestEntriesIsACopy(t *testing.T) {
	l := New(nil, nil)
	l.Add(context.Background(), "x", "one")
	got := entries(t, l)
	got[0].Message = "changed"
	assert.Equal(t, "one", entries(t, l)[0].Message)
}

func TestConcurrentAdd(t *testing.T) {
	l := New(nil, nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			l.Addf(context.Background(), "update", "record %d", i)
		}(i)
	}
	wg.Wait()
	assert.Len(t, entries(t, l), Capacity)
}

func TestStoreFailureIsNotFatal(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := redis.NewClient(config.RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	l := New(NewRedisStore(client, "diag"), nil)
	mr.Close()

	l.Add(context.Background(), "batch", "lost")
	_, err = l.Entries(context.Background())
	assert.Error(t, err)
}
