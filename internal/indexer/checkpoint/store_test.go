package checkpoint

import (
	"context"
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

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newSQLStore(t *testing.T) *SQLStore {
	t.Helper()
	client, err := database.NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	s := NewSQLStore(client.DB, client.Dialect, "textdex_state", "textdex_status", testclock.NewClock(epoch))
	require.NoError(t, s.Ensure(context.Background()))
	require.NoError(t, s.Ensure(context.Background()))
	return s
}

func newRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := redis.NewClient(config.RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client, "textdex:status", testclock.NewClock(epoch))
}

func TestStores(t *testing.T) {
	stores := map[string]func(t *testing.T) Store{
		"sql":   func(t *testing.T) Store { return newSQLStore(t) },
		"redis": func(t *testing.T) Store { return newRedisStore(t) },
	}
	for name, mk := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := mk(t)

			st, found, err := s.Load(ctx)
			require.NoError(t, err)
			assert.False(t, found)
			assert.Equal(t, Default(), st)

			want := State{
				Current:          7,
				First:            3,
				Last:             12,
				BatchSize:        10,
				ShingleBatchSize: 100,
				Version:          "1.2.0",
				Error:            "boom",
			}
			require.NoError(t, s.Save(ctx, want))

			got, found, err := s.Load(ctx)
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, epoch, got.UpdatedAt)
			got.UpdatedAt = time.Time{}
			assert.Equal(t, want, got)

			want.Current = 12
			want.Error = ""
			require.NoError(t, s.Save(ctx, want))
			got, _, err = s.Load(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(12), got.Current)
			assert.Empty(t, got.Error)

			require.NoError(t, s.Delete(ctx))
			_, found, err = s.Load(ctx)
			require.NoError(t, err)
			assert.False(t, found)
		})
	}
}

func TestDecodeFillsBatchDefaults(t *testing.T) {
	st, err := decode([]byte(`{"new":false,"current":4,"first":1,"last":9}`))
	require.NoError(t, err)
	assert.Equal(t, DefaultBatchSize, st.BatchSize)
	assert.Equal(t, DefaultShingleBatchSize, st.ShingleBatchSize)
	assert.False(t, st.New)

	_, err = decode([]byte(`not json`))
	assert.Error(t, err)
}
