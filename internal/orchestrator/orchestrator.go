// Package orchestrator coordinates the ingest-to-delivery pipeline: the
// poller hands it batches of parsed surebets, it runs each one through
// validation, pricing, rendering, and dispatch with bounded fan-out, and it
// writes the dedup entry only after a successful enqueue.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/XavierBriggs/fortuna/internal/calculator"
	"github.com/XavierBriggs/fortuna/internal/dedup"
	"github.com/XavierBriggs/fortuna/internal/dispatcher"
	"github.com/XavierBriggs/fortuna/internal/entities"
	"github.com/XavierBriggs/fortuna/internal/message"
	"github.com/XavierBriggs/fortuna/internal/validate"
)

// DefaultConcurrency bounds the number of picks in flight at once.
const DefaultConcurrency = 250

// Stats are the orchestrator's observability counters. Read via
// Snapshot; all increments happen under mu.
type Stats struct {
	Received        int64
	Parsed          int64
	DiscardedParse  int64
	Validated       int64
	DroppedByReason map[string]int64
	Sent            int64
}

// Orchestrator wires the validation chain, calculator registry, message
// builder, and dispatcher together, bounding in-flight work with a
// semaphore.
type Orchestrator struct {
	chain      *validate.Chain
	store      dedup.Store
	calculator *calculator.Registry
	builder    *message.Builder
	dispatch   *dispatcher.Dispatcher
	logger     *zap.Logger
	now        func() time.Time

	sem chan struct{}

	mu    sync.Mutex
	stats Stats
}

// New constructs an Orchestrator. concurrency <= 0 uses DefaultConcurrency.
func New(chain *validate.Chain, store dedup.Store, calcRegistry *calculator.Registry, builder *message.Builder, dispatch *dispatcher.Dispatcher, logger *zap.Logger, concurrency int, now func() time.Time) *Orchestrator {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{
		chain:      chain,
		store:      store,
		calculator: calcRegistry,
		builder:    builder,
		dispatch:   dispatch,
		logger:     logger,
		now:        now,
		sem:        make(chan struct{}, concurrency),
		stats:      Stats{DroppedByReason: make(map[string]int64)},
	}
}

// Snapshot returns a copy of the current counters.
func (o *Orchestrator) Snapshot() Stats {
	o.mu.Lock()
	defer o.mu.Unlock()
	cp := o.stats
	cp.DroppedByReason = make(map[string]int64, len(o.stats.DroppedByReason))
	for k, v := range o.stats.DroppedByReason {
		cp.DroppedByReason[k] = v
	}
	return cp
}

func (o *Orchestrator) count(field *int64) {
	o.mu.Lock()
	*field++
	o.mu.Unlock()
}

func (o *Orchestrator) countDrop(reason string) {
	o.mu.Lock()
	o.stats.DroppedByReason[reason]++
	o.mu.Unlock()
}

// HandleBatch is the poller's BatchFunc: it records received/discarded
// counts and fans each surebet out to its own goroutine, bounded by the
// semaphore. It returns once every surebet in the batch has finished
// processing (if ctx is cancelled while waiting for a semaphore slot, it
// returns at once, without starting the rest or waiting for those already
// started), which keeps the poller from racing ahead of an overloaded
// pipeline within a single cycle (cross-cycle overlap is still possible
// and intended; each pick's pipeline is independent).
func (o *Orchestrator) HandleBatch(ctx context.Context, surebets []entities.Surebet, discarded int) {
	o.mu.Lock()
	o.stats.Received += int64(len(surebets) + discarded)
	o.stats.Parsed += int64(len(surebets))
	o.stats.DiscardedParse += int64(discarded)
	o.mu.Unlock()

	var wg sync.WaitGroup
	for _, sb := range surebets {
		sb := sb
		select {
		case o.sem <- struct{}{}:
		case <-ctx.Done():
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-o.sem }()
			o.processOne(ctx, sb)
		}()
	}
	wg.Wait()
}

// processOne runs a single surebet candidate through validation, pricing,
// rendering, and dispatch, writing the dedup entry only after a successful
// enqueue. A pick is never marked sent before it is actually queued.
func (o *Orchestrator) processOne(ctx context.Context, sb entities.Surebet) {
	linkName, result, err := o.chain.Run(ctx, sb, o.store)
	if err != nil {
		o.logger.Warn("orchestrator: validation chain error, dropping", zap.String("record_id", sb.RecordID), zap.String("link", linkName), zap.Error(err))
		o.countDrop("validation_error")
		return
	}
	if !result.Pass {
		o.countDrop(result.Reason)
		return
	}
	o.count(&o.stats.Validated)

	calc := o.calculator.For(sb.SharpProng.Bookmaker.ID)
	minOdds, err := calc.MinAcceptableOdds(sb.SharpProng.Odds.Value())
	if err != nil {
		o.countDrop("sharp_too_skewed")
		return
	}
	if sb.SoftProng.Odds.Value() < minOdds {
		o.countDrop("below_min_odds")
		return
	}
	tier, err := calc.StakeTier(sb.Profit.Percent())
	if err != nil {
		// The validation chain's profit-range link already enforces
		// [-1, 25], so this is unreachable in practice; treat as a drop
		// rather than a panic if the calculator disagrees.
		o.countDrop("tier_rejected")
		return
	}

	body := o.builder.Render(sb, tier, calculator.RoundToCents(minOdds))

	entry := dispatcher.NewEntry(sb.RecordID, sb.SoftProng.Bookmaker.ChannelID, body, sb.Profit.Percent(), o.now())
	if !o.dispatch.Enqueue(entry) {
		o.countDrop("overflow")
		return
	}
	o.count(&o.stats.Sent)

	o.writeDedup(ctx, sb)
}

// writeDedup writes the soft prong's dedup key and every opposite-market
// key after a successful enqueue. A write failure is logged and the pipeline
// continues; future duplicates within the pre-event window are the
// accepted cost.
func (o *Orchestrator) writeDedup(ctx context.Context, sb entities.Surebet) {
	ttl := dedup.TTLForEvent(sb.SoftProng.EventTime.At(), o.now())
	keys := append([]string{sb.SoftProng.DedupKey()}, sb.SoftProng.OppositeDedupKeys()...)
	for _, key := range keys {
		if err := o.store.Record(ctx, key, ttl); err != nil {
			o.logger.Warn("orchestrator: dedup write failed, continuing", zap.String("record_id", sb.RecordID), zap.String("key", key), zap.Error(err))
		}
	}
}
