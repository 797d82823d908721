// Package dedup provides the short-TTL memory of delivered picks, their
// opposite-market keys, and the feed's pagination cursor. It is the only
// component with externally shared mutable state in the pipeline.
package dedup

import (
	"context"
	"time"
)

// cursorKey is the fixed key the feed cursor is persisted under.
const cursorKey = "fortuna:cursor"

// Store is the contract the pipeline needs from the backing dedup memory.
// Implementations must guarantee read-then-write ordering from the caller's
// perspective; fire-and-forget writes are forbidden because they create
// duplicates under concurrent bursts.
type Store interface {
	// ExistsAny returns true if any of the given keys is currently present.
	// It is a single batched round-trip, not one call per key.
	ExistsAny(ctx context.Context, keys ...string) (bool, error)

	// ExistsEach returns, for each given key in order, whether it is
	// currently present, in a single batched round-trip. Used where a
	// caller needs to know *which* key matched, not just whether any did.
	ExistsEach(ctx context.Context, keys ...string) ([]bool, error)

	// Record writes key with the given TTL. Callers await the result before
	// considering the pick "sent".
	Record(ctx context.Context, key string, ttl time.Duration) error

	// SaveCursor persists the feed's pagination cursor.
	SaveCursor(ctx context.Context, cursor string) error

	// LoadCursor returns the last persisted cursor, or ok=false if none has
	// ever been saved.
	LoadCursor(ctx context.Context) (cursor string, ok bool, err error)
}

// MinTTL is the floor applied to a dedup entry's TTL: max(1s, event_time-now).
const MinTTL = time.Second

// TTLForEvent computes the dedup TTL for a pick whose event starts at
// eventTime, relative to now.
func TTLForEvent(eventTime, now time.Time) time.Duration {
	ttl := eventTime.Sub(now)
	if ttl < MinTTL {
		return MinTTL
	}
	return ttl
}
