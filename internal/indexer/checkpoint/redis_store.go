package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/textdex/pkg/redis"
	"github.com/juju/clock"
)

// RedisStore keeps the state as a JSON string under one key.
type RedisStore struct {
	client *redis.Client
	key    string
	clock  clock.Clock
}

func NewRedisStore(client *redis.Client, key string, clk clock.Clock) *RedisStore {
	if clk == nil {
		clk = clock.WallClock
	}
	return &RedisStore{client: client, key: key, clock: clk}
}

func (s *RedisStore) Load(ctx context.Context) (State, bool, error) {
	raw, err := s.client.Get(ctx, s.key)
	if redis.IsNilError(err) {
		return Default(), false, nil
	}
	if err != nil {
		return State{}, false, fmt.Errorf("loading checkpoint %s: %w", s.key, err)
	}
	st, err := decode([]byte(raw))
	if err != nil {
		return State{}, false, err
	}
	return st, true, nil
}

func (s *RedisStore) Save(ctx context.Context, st State) error {
	st.UpdatedAt = s.clock.Now().UTC()
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encoding checkpoint: %w", err)
	}
	if err := s.client.Set(ctx, s.key, string(raw), 0); err != nil {
		return fmt.Errorf("saving checkpoint %s: %w", s.key, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key); err != nil {
		return fmt.Errorf("deleting checkpoint %s: %w", s.key, err)
	}
	return nil
}
