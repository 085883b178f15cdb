package diagnostics

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/textdex/pkg/redis"
)

// RedisStore keeps the entries as a capped list of JSON values under one key.
type RedisStore struct {
	client *redis.Client
	key    string
}

func NewRedisStore(client *redis.Client, key string) *RedisStore {
	return &RedisStore{client: client, key: key}
}

func (s *RedisStore) Push(ctx context.Context, e Entry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding diagnostics entry: %w", err)
	}
	return s.client.PushCapped(ctx, s.key, string(raw), Capacity)
}

func (s *RedisStore) List(ctx context.Context) ([]Entry, error) {
	items, err := s.client.Head(ctx, s.key, Capacity)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(items))
	for _, item := range items {
		var e Entry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			return nil, fmt.Errorf("decoding diagnostics entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
