package dedup

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// localCapacity bounds the process-local membership cache. It is a soft cap:
// once exceeded, the oldest entry is evicted on insert, the same inline
// eviction-on-insert discipline the message cache uses.
const localCapacity = 4000

// TwoLevelStore checks a process-local membership cache before falling
// through to a backing Store. The local level never suppresses a write to
// the backing store for a fresh key: Record always writes through.
type TwoLevelStore struct {
	backing Store

	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // front = most recently touched
}

type localEntry struct {
	key       string
	expiresAt time.Time
}

// NewTwoLevelStore wraps backing with a process-local membership cache.
func NewTwoLevelStore(backing Store) *TwoLevelStore {
	return &TwoLevelStore{
		backing: backing,
		entries: make(map[string]*list.Element),
		order:   list.New(),
	}
}

// ExistsAny implements Store. Keys hit locally are not sent to the backing
// store, and the backing query is skipped only when every key hits locally;
// a local miss still queries the backing store so the two levels can never
// disagree on a true membership.
func (s *TwoLevelStore) ExistsAny(ctx context.Context, keys ...string) (bool, error) {
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

// ExistsEach implements Store. Keys found in the local cache are resolved
// without touching the backing store; the rest are resolved in a single
// batched backing-store round-trip and merged back into position.
func (s *TwoLevelStore) ExistsEach(ctx context.Context, keys ...string) ([]bool, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	results := make([]bool, len(keys))
	var missingKeys []string
	var missingIdx []int
	now := time.Now()

	for i, key := range keys {
		if s.localHas(key, now) {
			results[i] = true
			continue
		}
		missingKeys = append(missingKeys, key)
		missingIdx = append(missingIdx, i)
	}

	if len(missingKeys) == 0 {
		return results, nil
	}

	backingResults, err := s.backing.ExistsEach(ctx, missingKeys...)
	if err != nil {
		return nil, err
	}
	for j, idx := range missingIdx {
		results[idx] = backingResults[j]
	}
	return results, nil
}

// Record implements Store: always writes through to the backing store, and
// also populates the local cache so a subsequent read in this process
// short-circuits.
func (s *TwoLevelStore) Record(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.backing.Record(ctx, key, ttl); err != nil {
		return err
	}
	s.localPut(key, time.Now().Add(ttl))
	return nil
}

// SaveCursor implements Store by delegating to the backing store; the
// cursor has no local-cache benefit since it's read once at startup.
func (s *TwoLevelStore) SaveCursor(ctx context.Context, cursor string) error {
	return s.backing.SaveCursor(ctx, cursor)
}

// LoadCursor implements Store by delegating to the backing store.
func (s *TwoLevelStore) LoadCursor(ctx context.Context) (string, bool, error) {
	return s.backing.LoadCursor(ctx)
}

func (s *TwoLevelStore) localHas(key string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.entries[key]
	if !ok {
		return false
	}
	entry := elem.Value.(*localEntry)
	if now.After(entry.expiresAt) {
		s.order.Remove(elem)
		delete(s.entries, key)
		return false
	}
	s.order.MoveToFront(elem)
	return true
}

func (s *TwoLevelStore) localPut(key string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.entries[key]; ok {
		elem.Value.(*localEntry).expiresAt = expiresAt
		s.order.MoveToFront(elem)
		return
	}

	elem := s.order.PushFront(&localEntry{key: key, expiresAt: expiresAt})
	s.entries[key] = elem

	for s.order.Len() > localCapacity {
		oldest := s.order.Back()
		if oldest == nil {
			break
		}
		s.order.Remove(oldest)
		delete(s.entries, oldest.Value.(*localEntry).key)
	}
}
