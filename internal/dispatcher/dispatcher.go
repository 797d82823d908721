package dispatcher

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/XavierBriggs/fortuna/internal/retry"
)

// DefaultCapacity is the heap's bounded capacity.
const DefaultCapacity = 1000

// retryDelays is the fixed backoff schedule: 100ms, 400ms, 1600ms. Only
// the first two are ever slept, since maxAttempts (3 total tries) leaves
// just two gaps between attempts.
var retryDelays = []time.Duration{100 * time.Millisecond, 400 * time.Millisecond, 1600 * time.Millisecond}

// maxAttempts is the total number of delivery attempts per entry, counting
// the first try. A 429 does not consume an attempt; it only pauses the bot
// that reported it.
const maxAttempts = 3

// pollInterval is the fallback wakeup so a consumer never waits forever on
// a missed signal (e.g. a wake sent while every consumer was mid-delivery).
const pollInterval = 50 * time.Millisecond

// Stats are the dispatcher's delivery counters, read under no lock (all
// fields are accessed via atomic operations).
type Stats struct {
	Sent             int64
	DroppedOverflow  int64
	DroppedPermanent int64
	DroppedExhausted int64
}

// Dispatcher is the max-heap priority queue plus its pool of bot consumers.
// The heap is the dispatcher's only mutable shared structure; it is guarded
// by mu. Producers enqueue without blocking consumers.
type Dispatcher struct {
	mu       sync.Mutex
	entries  entryHeap
	capacity int

	bots   []*botState
	rrIdx  atomic.Uint64
	sender BotSender
	logger *zap.Logger

	signal chan struct{}
	wg     sync.WaitGroup

	sent             atomic.Int64
	droppedOverflow  atomic.Int64
	droppedPermanent atomic.Int64
	droppedExhausted atomic.Int64
}

// New constructs a Dispatcher. bots must be non-empty; perBotRate <= 0 uses
// DefaultBotRate; capacity <= 0 uses DefaultCapacity.
func New(bots []Identity, perBotRate, capacity int, sender BotSender, logger *zap.Logger) *Dispatcher {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	states := make([]*botState, len(bots))
	for i, id := range bots {
		states[i] = newBotState(id, perBotRate)
	}
	return &Dispatcher{
		capacity: capacity,
		bots:     states,
		sender:   sender,
		logger:   logger,
		signal:   make(chan struct{}, 1),
	}
}

// Enqueue admits entry under the overflow policy: if the heap has spare
// capacity it is inserted outright; otherwise it is inserted only if its
// profit strictly exceeds the heap's current minimum, which is evicted.
// Returns false if the entry was rejected. Both the rejected incoming and
// the evicted minimum count toward the overflow drop counter.
func (d *Dispatcher) Enqueue(entry *Entry) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.entries) < d.capacity {
		heap.Push(&d.entries, entry)
		d.wake()
		return true
	}

	min := d.entries.min()
	if min == nil || entry.Profit <= min.Profit {
		d.droppedOverflow.Add(1)
		return false
	}
	heap.Remove(&d.entries, min.index)
	d.droppedOverflow.Add(1)
	heap.Push(&d.entries, entry)
	d.wake()
	return true
}

// wake signals a waiting consumer without blocking if one is already
// pending. Must be called with mu held.
func (d *Dispatcher) wake() {
	select {
	case d.signal <- struct{}{}:
	default:
	}
}

func (d *Dispatcher) pop() (*Entry, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.entries) == 0 {
		return nil, false
	}
	return heap.Pop(&d.entries).(*Entry), true
}

// Len reports the current queue depth.
func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

// Stats returns a point-in-time snapshot of the delivery counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Sent:             d.sent.Load(),
		DroppedOverflow:  d.droppedOverflow.Load(),
		DroppedPermanent: d.droppedPermanent.Load(),
		DroppedExhausted: d.droppedExhausted.Load(),
	}
}

// Run starts one consumer goroutine per bot identity, each independently
// draining the shared heap under mutual exclusion, and blocks until ctx is
// cancelled and every consumer has returned.
func (d *Dispatcher) Run(ctx context.Context) {
	d.wg.Add(len(d.bots))
	for range d.bots {
		go d.consume(ctx)
	}
	d.wg.Wait()
}

// Drain waits up to timeout for the heap to empty, then returns. It is the
// orchestrator's bounded shutdown grace period; entries still queued after
// the deadline are abandoned.
func (d *Dispatcher) Drain(ctx context.Context, timeout time.Duration) {
	deadline := time.After(timeout)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		if d.Len() == 0 {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-deadline:
			return
		case <-ticker.C:
		}
	}
}

func (d *Dispatcher) consume(ctx context.Context) {
	defer d.wg.Done()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.signal:
		case <-ticker.C:
		}

		for {
			if ctx.Err() != nil {
				return
			}
			entry, ok := d.pop()
			if !ok {
				break
			}
			d.deliver(ctx, entry)
		}
	}
}

// nextBot returns the next bot identity in round-robin rotation. Rotation
// is global, not per-consumer, so a retry for one entry lands on a
// different bot than its previous attempt regardless of which consumer
// goroutine is driving it.
func (d *Dispatcher) nextBot() *botState {
	idx := d.rrIdx.Add(1) - 1
	return d.bots[int(idx%uint64(len(d.bots)))]
}

// deliver drives one entry through its retry budget via retry.Schedule,
// which owns the fixed 100ms/400ms backoff and the 3-total-attempts count.
// Within a single Schedule attempt, a 429 rotates to a different bot and
// retries immediately without consuming any of that budget; only a
// transient failure reports back to Schedule as retryable.
func (d *Dispatcher) deliver(ctx context.Context, entry *Entry) {
	var handled bool

	err := retry.Schedule(ctx, retryDelays[:maxAttempts-1], func(attempt int) error {
		for {
			bot := d.nextBot()
			if err := bot.wait(ctx); err != nil {
				return err
			}

			outcome, err := d.sender.Send(ctx, bot.identity, entry.ChannelID, entry.Body)
			if err != nil {
				d.logger.Warn("dispatcher: send error, dropping",
					zap.String("delivery_id", entry.DeliveryID), zap.String("surebet_id", entry.SurebetID), zap.Error(err))
				d.droppedExhausted.Add(1)
				handled = true
				return nil
			}

			switch outcome.Status {
			case SendSuccess:
				d.sent.Add(1)
				handled = true
				return nil

			case SendPermanent:
				d.logger.Info("dispatcher: permanent failure, dropping",
					zap.String("delivery_id", entry.DeliveryID), zap.String("surebet_id", entry.SurebetID), zap.String("bot", bot.identity.ID))
				d.droppedPermanent.Add(1)
				handled = true
				return nil

			case SendRateLimited:
				bot.pause(outcome.RetryAfter)
				// Not counted against the attempt budget: this bot simply
				// wasn't available yet, so the loop retries immediately
				// with a different bot, within the same Schedule attempt.
				continue

			case SendTransient:
				return fmt.Errorf("dispatcher: transient failure from bot %s", bot.identity.ID)

			default:
				return nil
			}
		}
	})

	if !handled && err != nil && ctx.Err() == nil {
		d.logger.Warn("dispatcher: transient failures exhausted retries, dropping",
			zap.String("delivery_id", entry.DeliveryID), zap.String("surebet_id", entry.SurebetID))
		d.droppedExhausted.Add(1)
	}
}
