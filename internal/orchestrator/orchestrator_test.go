package orchestrator_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/XavierBriggs/fortuna/internal/calculator"
	"github.com/XavierBriggs/fortuna/internal/dispatcher"
	"github.com/XavierBriggs/fortuna/internal/entities"
	"github.com/XavierBriggs/fortuna/internal/message"
	"github.com/XavierBriggs/fortuna/internal/orchestrator"
	"github.com/XavierBriggs/fortuna/internal/validate"
	"github.com/XavierBriggs/fortuna/internal/values"
)

type memStore struct {
	mu   sync.Mutex
	keys map[string]time.Time
}

func newMemStore() *memStore { return &memStore{keys: make(map[string]time.Time)} }

func (m *memStore) ExistsAny(ctx context.Context, keys ...string) (bool, error) {
	ok, err := m.ExistsEach(ctx, keys...)
	if err != nil {
		return false, err
	}
	for _, v := range ok {
		if v {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) ExistsEach(ctx context.Context, keys ...string) ([]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	results := make([]bool, len(keys))
	for i, k := range keys {
		if exp, ok := m.keys[k]; ok && now.Before(exp) {
			results[i] = true
		}
	}
	return results, nil
}

func (m *memStore) Record(ctx context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[key] = time.Now().Add(ttl)
	return nil
}

func (m *memStore) SaveCursor(ctx context.Context, cursor string) error { return nil }
func (m *memStore) LoadCursor(ctx context.Context) (string, bool, error) {
	return "", false, nil
}

func (m *memStore) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	exp, ok := m.keys[key]
	return ok && time.Now().Before(exp)
}

type fakeSender struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeSender) Send(ctx context.Context, bot dispatcher.Identity, channelID, body string) (dispatcher.Outcome, error) {
	f.mu.Lock()
	f.sent = append(f.sent, channelID)
	f.mu.Unlock()
	return dispatcher.Outcome{Status: dispatcher.SendSuccess}, nil
}

func buildSurebet(t *testing.T, now time.Time, sharpOdds, softOdds, profit float64, kind values.MarketKind) entities.Surebet {
	t.Helper()

	sharpBk, err := entities.NewBookmaker("pinnacle", entities.RoleSharp, "")
	if err != nil {
		t.Fatalf("sharp bookmaker: %v", err)
	}
	softBk, err := entities.NewBookmaker("bookA", entities.RoleSoft, "-1001")
	if err != nil {
		t.Fatalf("soft bookmaker: %v", err)
	}

	eventTime, err := values.NewEventTime(now.Add(time.Hour), now)
	if err != nil {
		t.Fatalf("event time: %v", err)
	}
	market, err := values.NewMarket(kind, nil, "", "", "", "", false)
	if err != nil {
		t.Fatalf("market: %v", err)
	}

	sOdds, err := values.NewOdds(sharpOdds)
	if err != nil {
		t.Fatalf("sharp odds: %v", err)
	}
	fOdds, err := values.NewOdds(softOdds)
	if err != nil {
		t.Fatalf("soft odds: %v", err)
	}

	sharpPick, err := entities.NewPick("A", "B", "Test League", eventTime, market, sOdds, sharpBk, "")
	if err != nil {
		t.Fatalf("sharp pick: %v", err)
	}
	softPick, err := entities.NewPick("A", "B", "Test League", eventTime, market, fOdds, softBk, "")
	if err != nil {
		t.Fatalf("soft pick: %v", err)
	}

	p, err := values.NewProfit(profit)
	if err != nil {
		t.Fatalf("profit: %v", err)
	}

	sb, err := entities.NewSurebet(sharpPick, softPick, p, "rec-1")
	if err != nil {
		t.Fatalf("surebet: %v", err)
	}
	return sb
}

func TestOrchestrator_S1_DeliversAndDedups(t *testing.T) {
	now := time.Now()
	sb := buildSurebet(t, now, 2.00, 2.10, 2.38, values.KindOver)

	store := newMemStore()
	chain := validate.Default(1.10, 9.99, -1.0, 25.0, func() time.Time { return now })
	calcRegistry := calculator.NewRegistry()
	builder := message.New(0, 0, func() time.Time { return now })
	sender := &fakeSender{}
	dispatch := dispatcher.New([]dispatcher.Identity{{ID: "bot1", Token: "t"}}, 1000, 10, sender, zap.NewNop())

	orch := orchestrator.New(chain, store, calcRegistry, builder, dispatch, zap.NewNop(), 10, func() time.Time { return now })
	orch.HandleBatch(context.Background(), []entities.Surebet{sb}, 0)

	stats := orch.Snapshot()
	if stats.Sent != 1 {
		t.Fatalf("Sent = %d, want 1", stats.Sent)
	}
	if dispatch.Len() != 1 {
		t.Fatalf("dispatcher queue len = %d, want 1 (not yet delivered)", dispatch.Len())
	}
	if !store.has(sb.SoftProng.DedupKey()) {
		t.Fatal("expected soft prong's dedup key to be recorded after successful enqueue")
	}
	for _, oppKey := range sb.SoftProng.OppositeDedupKeys() {
		if !store.has(oppKey) {
			t.Fatalf("expected opposite dedup key %q to be recorded", oppKey)
		}
	}
}

func TestOrchestrator_S2_DuplicateIsDropped(t *testing.T) {
	now := time.Now()
	sb1 := buildSurebet(t, now, 2.00, 2.10, 2.38, values.KindOver)
	sb2 := buildSurebet(t, now, 2.00, 2.10, 2.38, values.KindOver)

	store := newMemStore()
	chain := validate.Default(1.10, 9.99, -1.0, 25.0, func() time.Time { return now })
	calcRegistry := calculator.NewRegistry()
	builder := message.New(0, 0, func() time.Time { return now })
	sender := &fakeSender{}
	dispatch := dispatcher.New([]dispatcher.Identity{{ID: "bot1", Token: "t"}}, 1000, 10, sender, zap.NewNop())

	orch := orchestrator.New(chain, store, calcRegistry, builder, dispatch, zap.NewNop(), 10, func() time.Time { return now })
	orch.HandleBatch(context.Background(), []entities.Surebet{sb1}, 0)
	orch.HandleBatch(context.Background(), []entities.Surebet{sb2}, 0)

	stats := orch.Snapshot()
	if stats.Sent != 1 {
		t.Fatalf("Sent = %d, want 1", stats.Sent)
	}
	if stats.DroppedByReason["duplicate"] != 1 {
		t.Fatalf("DroppedByReason[duplicate] = %d, want 1", stats.DroppedByReason["duplicate"])
	}
}

func TestOrchestrator_S3_OppositeMarketIsDropped(t *testing.T) {
	now := time.Now()
	over := buildSurebet(t, now, 2.00, 2.10, 2.38, values.KindOver)
	under := buildSurebet(t, now, 2.00, 2.10, 2.38, values.KindUnder)

	store := newMemStore()
	chain := validate.Default(1.10, 9.99, -1.0, 25.0, func() time.Time { return now })
	calcRegistry := calculator.NewRegistry()
	builder := message.New(0, 0, func() time.Time { return now })
	sender := &fakeSender{}
	dispatch := dispatcher.New([]dispatcher.Identity{{ID: "bot1", Token: "t"}}, 1000, 10, sender, zap.NewNop())

	orch := orchestrator.New(chain, store, calcRegistry, builder, dispatch, zap.NewNop(), 10, func() time.Time { return now })
	orch.HandleBatch(context.Background(), []entities.Surebet{over}, 0)
	orch.HandleBatch(context.Background(), []entities.Surebet{under}, 0)

	stats := orch.Snapshot()
	if stats.Sent != 1 {
		t.Fatalf("Sent = %d, want 1", stats.Sent)
	}
	if stats.DroppedByReason["opposite"] != 1 {
		t.Fatalf("DroppedByReason[opposite] = %d, want 1", stats.DroppedByReason["opposite"])
	}
}

func TestOrchestrator_BelowMinOddsIsDropped(t *testing.T) {
	now := time.Now()
	// sharp=2.00 -> min_odds ~= 1.9608; soft below that must be dropped.
	sb := buildSurebet(t, now, 2.00, 1.50, 2.38, values.KindOver)

	store := newMemStore()
	chain := validate.Default(1.10, 9.99, -1.0, 25.0, func() time.Time { return now })
	calcRegistry := calculator.NewRegistry()
	builder := message.New(0, 0, func() time.Time { return now })
	sender := &fakeSender{}
	dispatch := dispatcher.New([]dispatcher.Identity{{ID: "bot1", Token: "t"}}, 1000, 10, sender, zap.NewNop())

	orch := orchestrator.New(chain, store, calcRegistry, builder, dispatch, zap.NewNop(), 10, func() time.Time { return now })
	orch.HandleBatch(context.Background(), []entities.Surebet{sb}, 0)

	stats := orch.Snapshot()
	if stats.Sent != 0 {
		t.Fatalf("Sent = %d, want 0", stats.Sent)
	}
	if stats.DroppedByReason["below_min_odds"] != 1 {
		t.Fatalf("DroppedByReason[below_min_odds] = %d, want 1", stats.DroppedByReason["below_min_odds"])
	}
}
