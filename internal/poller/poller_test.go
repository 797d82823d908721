package poller_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/XavierBriggs/fortuna/internal/entities"
	"github.com/XavierBriggs/fortuna/internal/feed"
	"github.com/XavierBriggs/fortuna/internal/poller"
)

// scriptedClient replays a fixed sequence of outcomes, one per Fetch call,
// and returns an empty page for every call after the script is exhausted.
type scriptedClient struct {
	mu       sync.Mutex
	outcomes []scriptedResult
	calls    int
	done     chan struct{}
}

type scriptedResult struct {
	outcome poller.Outcome
	err     error
}

func newScriptedClient(results ...scriptedResult) *scriptedClient {
	return &scriptedClient{outcomes: results, done: make(chan struct{})}
}

func (c *scriptedClient) Fetch(ctx context.Context, cursor string) (poller.Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls >= len(c.outcomes) {
		select {
		case <-c.done:
		default:
			close(c.done)
		}
		return poller.Outcome{}, nil
	}
	r := c.outcomes[c.calls]
	c.calls++
	if c.calls == len(c.outcomes) {
		close(c.done)
	}
	return r.outcome, r.err
}

type memCursorStore struct {
	mu     sync.Mutex
	cursor string
	saved  bool
}

func (s *memCursorStore) ExistsAny(ctx context.Context, keys ...string) (bool, error) { return false, nil }
func (s *memCursorStore) ExistsEach(ctx context.Context, keys ...string) ([]bool, error) {
	return make([]bool, len(keys)), nil
}
func (s *memCursorStore) Record(ctx context.Context, key string, ttl time.Duration) error { return nil }
func (s *memCursorStore) SaveCursor(ctx context.Context, cursor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursor = cursor
	s.saved = true
	return nil
}
func (s *memCursorStore) LoadCursor(ctx context.Context) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor, s.saved, nil
}

func sampleRecord(id, sortBy string) feed.RawRecord {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	event := now.Add(time.Hour)
	prong := func(bk string, value float64) feed.RawProng {
		return feed.RawProng{
			BK:         bk,
			Value:      value,
			Time:       event.UnixMilli(),
			Teams:      []string{"Team A", "Team B"},
			Tournament: "League",
			Type:       feed.RawMarketType{Kind: "over", Variety: "2.5"},
		}
	}
	return feed.RawRecord{
		ID:     id,
		SortBy: sortBy,
		Time:   event.UnixMilli(),
		Profit: 2.0,
		Prongs: []feed.RawProng{prong("pinnacle", 2.00), prong("bet365", 2.10)},
	}
}

func TestInterval_ScalesWithConsecutiveRateLimits(t *testing.T) {
	base := 500 * time.Millisecond
	max := 5 * time.Second

	cases := []struct {
		k    int
		want time.Duration
	}{
		{0, 500 * time.Millisecond},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 5 * time.Second}, // would be 8s uncapped; clamped to max
	}
	for _, c := range cases {
		if got := poller.Interval(base, max, c.k); got != c.want {
			t.Errorf("Interval(k=%d) = %v, want %v", c.k, got, c.want)
		}
	}
}

func TestPoller_ParsesBatchAndAdvancesCursor(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	client := newScriptedClient(scriptedResult{
		outcome: poller.Outcome{Records: []feed.RawRecord{sampleRecord("r1", "100"), sampleRecord("r2", "200")}},
	})
	parser := feed.NewParser([]string{"pinnacle"}, map[string]string{"bet365": "chan1"})
	store := &memCursorStore{}

	var mu sync.Mutex
	var received []entities.Surebet
	onBatch := func(ctx context.Context, surebets []entities.Surebet, discarded int) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, surebets...)
	}

	p := poller.New(client, parser, store, onBatch, zap.NewNop(), poller.Config{BaseInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}, func() time.Time { return now })

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-client.done
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()
	p.Run(ctx)

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 2 {
		t.Fatalf("received %d surebets, want 2", len(received))
	}
	gotCursor, ok, _ := store.LoadCursor(context.Background())
	if !ok || gotCursor != "200:r2" {
		t.Errorf("cursor = %q (ok=%v), want 200:r2", gotCursor, ok)
	}
}

func TestPoller_RecoversFromTransportErrorWithinCycle(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	client := newScriptedClient(
		scriptedResult{err: errors.New("connection reset")},
		scriptedResult{outcome: poller.Outcome{Records: []feed.RawRecord{sampleRecord("r1", "100")}}},
	)
	parser := feed.NewParser([]string{"pinnacle"}, map[string]string{"bet365": "chan1"})
	store := &memCursorStore{}

	var mu sync.Mutex
	var received []entities.Surebet
	onBatch := func(ctx context.Context, surebets []entities.Surebet, discarded int) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, surebets...)
	}

	p := poller.New(client, parser, store, onBatch, zap.NewNop(), poller.Config{BaseInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}, func() time.Time { return now })

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-client.done
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()
	p.Run(ctx)

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Fatalf("received %d surebets, want 1 (should recover within the same retry policy)", len(received))
	}
}

func TestPoller_RateLimitedResponseDoesNotAdvanceCursor(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	client := newScriptedClient(scriptedResult{outcome: poller.Outcome{RateLimited: true}})
	parser := feed.NewParser([]string{"pinnacle"}, map[string]string{"bet365": "chan1"})
	store := &memCursorStore{}

	p := poller.New(client, parser, store, nil, zap.NewNop(), poller.Config{BaseInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}, func() time.Time { return now })

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-client.done
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()
	p.Run(ctx)

	if _, ok, _ := store.LoadCursor(context.Background()); ok {
		t.Error("expected no cursor to be saved after a rate-limited response")
	}
}

func TestPoller_AdvancesCursorPastMalformedTrailingRecord(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	malformed := sampleRecord("r2", "200")
	malformed.Prongs = malformed.Prongs[:1] // fails Parse: wrong prong count, discarded not raised

	client := newScriptedClient(scriptedResult{
		outcome: poller.Outcome{Records: []feed.RawRecord{sampleRecord("r1", "100"), malformed}},
	})
	parser := feed.NewParser([]string{"pinnacle"}, map[string]string{"bet365": "chan1"})
	store := &memCursorStore{}

	var mu sync.Mutex
	var received []entities.Surebet
	var discardedCount int
	onBatch := func(ctx context.Context, surebets []entities.Surebet, discarded int) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, surebets...)
		discardedCount += discarded
	}

	p := poller.New(client, parser, store, onBatch, zap.NewNop(), poller.Config{BaseInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}, func() time.Time { return now })

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-client.done
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()
	p.Run(ctx)

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Fatalf("received %d surebets, want 1", len(received))
	}
	if discardedCount != 1 {
		t.Fatalf("discarded = %d, want 1", discardedCount)
	}
	gotCursor, ok, _ := store.LoadCursor(context.Background())
	if !ok || gotCursor != "200:r2" {
		t.Errorf("cursor = %q (ok=%v), want 200:r2 (the malformed record's own cursor, since it was the literal last record of the page)", gotCursor, ok)
	}
}
