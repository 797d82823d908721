package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is the Store backed by Redis, the same key/value-with-TTL
// protocol the rest of the house uses for its own dedup and rate-limit
// state. Membership checks are pipelined so a pick's dedup + opposite-market
// lookup is a single round-trip.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing Redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// ExistsAny implements Store.
func (s *RedisStore) ExistsAny(ctx context.Context, keys ...string) (bool, error) {
	results, err := s.ExistsEach(ctx, keys...)
	if err != nil {
		return false, err
	}
	for _, present := range results {
		if present {
			return true, nil
		}
	}
	return false, nil
}

// ExistsEach implements Store.
func (s *RedisStore) ExistsEach(ctx context.Context, keys ...string) ([]bool, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.IntCmd, len(keys))
	for i, key := range keys {
		cmds[i] = pipe.Exists(ctx, key)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("dedup: batched exists query failed: %w", err)
	}

	results := make([]bool, len(keys))
	for i, cmd := range cmds {
		results[i] = cmd.Val() > 0
	}
	return results, nil
}

// Record implements Store.
func (s *RedisStore) Record(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, "1", ttl).Err(); err != nil {
		return fmt.Errorf("dedup: failed to record key %s: %w", key, err)
	}
	return nil
}

// SaveCursor implements Store.
func (s *RedisStore) SaveCursor(ctx context.Context, cursor string) error {
	if err := s.client.Set(ctx, cursorKey, cursor, 0).Err(); err != nil {
		return fmt.Errorf("dedup: failed to save cursor: %w", err)
	}
	return nil
}

// LoadCursor implements Store.
func (s *RedisStore) LoadCursor(ctx context.Context) (string, bool, error) {
	cursor, err := s.client.Get(ctx, cursorKey).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("dedup: failed to load cursor: %w", err)
	}
	return cursor, true, nil
}
