package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/textdex/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/textdex/pkg/redis"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLock(t *testing.T) {
	ctx := context.Background()
	l := &LocalLock{}
	ok, err := l.TryAcquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _ = l.TryAcquire(ctx)
	assert.False(t, ok)
	require.NoError(t, l.Release(ctx))
	ok, _ = l.TryAcquire(ctx)
	assert.True(t, ok)
}

func TestRedisLock(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := redis.NewClient(config.RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	defer client.Close()
	ctx := context.Background()

	a := NewRedisLock(client, "textdex:job", time.Minute)
	b := NewRedisLock(client, "textdex:job", time.Minute)

	ok, err := a.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = b.TryAcquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	// b never held the token, so its release must not free it
	require.NoError(t, b.Release(ctx))
	assert.True(t, mr.Exists("textdex:job"))

	require.NoError(t, a.Release(ctx))
	ok, err = b.TryAcquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLockExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := redis.NewClient(config.RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	defer client.Close()
	ctx := context.Background()

	a := NewRedisLock(client, "textdex:job", time.Second)
	b := NewRedisLock(client, "textdex:job", time.Second)
	ok, _ := a.TryAcquire(ctx)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)
	ok, err = b.TryAcquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	// a's stale release leaves b's token in place
	require.NoError(t, a.Release(ctx))
	assert.True(t, mr.Exists("textdex:job"))
}
