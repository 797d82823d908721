package poller

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/XavierBriggs/fortuna/internal/dedup"
	"github.com/XavierBriggs/fortuna/internal/entities"
	"github.com/XavierBriggs/fortuna/internal/feed"
	"github.com/XavierBriggs/fortuna/internal/retry"
)

// maxConsecutiveRateLimits caps how far the adaptive interval can back off.
const maxConsecutiveRateLimits = 4

// BatchFunc receives the surebets parsed from one successful poll cycle,
// along with the count of records discarded by the parser in that cycle.
type BatchFunc func(ctx context.Context, surebets []entities.Surebet, discarded int)

// Poller runs the adaptive fetch loop: it paces requests, widens its sleep
// interval under sustained rate-limiting, and narrows it again on success.
type Poller struct {
	client  FeedClient
	parser  *feed.Parser
	store   dedup.Store
	onBatch BatchFunc
	logger  *zap.Logger
	now     func() time.Time

	baseInterval time.Duration
	maxInterval  time.Duration
	retryPolicy  *retry.Policy
}

// Config carries the tunables for a Poller.
type Config struct {
	BaseInterval time.Duration
	MaxInterval  time.Duration
}

// New constructs a Poller. now defaults to time.Now when nil; tests can
// inject a fixed clock.
func New(client FeedClient, parser *feed.Parser, store dedup.Store, onBatch BatchFunc, logger *zap.Logger, cfg Config, now func() time.Time) *Poller {
	if now == nil {
		now = time.Now
	}
	if cfg.BaseInterval <= 0 {
		cfg.BaseInterval = 500 * time.Millisecond
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 5 * time.Second
	}
	return &Poller{
		client:       client,
		parser:       parser,
		store:        store,
		onBatch:      onBatch,
		logger:       logger,
		now:          now,
		baseInterval: cfg.BaseInterval,
		maxInterval:  cfg.MaxInterval,
		retryPolicy:  retry.NewPolicy(3, 200*time.Millisecond, 2*time.Second, 2.0),
	}
}

// Interval returns the adaptive sleep interval for the given number of
// consecutive rate-limit responses since the last success.
func Interval(base, max time.Duration, consecutiveRateLimits int) time.Duration {
	scaled := float64(base) * math.Pow(2, float64(consecutiveRateLimits))
	if scaled > float64(max) {
		return max
	}
	return time.Duration(scaled)
}

// Run drives the loop until ctx is cancelled. Cancellation is checked
// between cycles and between retry attempts inside fetchCycle.
func (p *Poller) Run(ctx context.Context) {
	cursor, ok, err := p.store.LoadCursor(ctx)
	if err != nil {
		p.logger.Warn("poller: failed to load cursor, starting fresh", zap.Error(err))
		cursor = ""
	} else if !ok {
		cursor = ""
	}

	consecutiveRateLimits := 0

	for {
		if ctx.Err() != nil {
			return
		}

		outcome, err := p.fetchCycle(ctx, cursor)
		if err != nil {
			p.logger.Warn("poller: cycle failed, yielding empty batch", zap.Error(err))
			p.sleep(ctx, Interval(p.baseInterval, p.maxInterval, consecutiveRateLimits))
			continue
		}

		if outcome.RateLimited {
			if consecutiveRateLimits < maxConsecutiveRateLimits {
				consecutiveRateLimits++
			}
			p.sleep(ctx, Interval(p.baseInterval, p.maxInterval, consecutiveRateLimits))
			continue
		}

		if consecutiveRateLimits > 0 {
			consecutiveRateLimits--
		}

		surebets, discarded, newCursor := p.processBatch(outcome.Records, cursor)
		if newCursor != "" {
			cursor = newCursor
			if err := p.store.SaveCursor(ctx, cursor); err != nil {
				p.logger.Warn("poller: failed to persist cursor", zap.Error(err))
			}
		}
		if p.onBatch != nil {
			p.onBatch(ctx, surebets, discarded)
		}

		p.sleep(ctx, Interval(p.baseInterval, p.maxInterval, consecutiveRateLimits))
	}
}

// processBatch parses every record in the batch, returning the surebets that
// parsed cleanly, the count dropped, and the cursor of the literal last
// record in feed order, whether or not that record parsed, so a
// persistently malformed trailing record can never stall cursor progress.
func (p *Poller) processBatch(records []feed.RawRecord, currentCursor string) ([]entities.Surebet, int, string) {
	surebets := make([]entities.Surebet, 0, len(records))
	discarded := 0
	cursor := currentCursor

	for _, record := range records {
		sb, err := p.parser.Parse(record, p.now())
		if err != nil {
			discarded++
			p.logger.Debug("poller: discarding record", zap.String("record_id", record.ID), zap.Error(err))
			continue
		}
		surebets = append(surebets, sb)
	}

	if len(records) > 0 {
		cursor = records[len(records)-1].Cursor()
	}
	return surebets, discarded, cursor
}

// fetchCycle retries transport failures up to the policy's attempt cap;
// a rate-limited response is returned immediately without consuming a
// retry attempt, since it is a distinct, expected outcome.
func (p *Poller) fetchCycle(ctx context.Context, cursor string) (Outcome, error) {
	var outcome Outcome
	err := p.retryPolicy.Execute(ctx, func() error {
		o, ferr := p.client.Fetch(ctx, cursor)
		if ferr != nil {
			return ferr
		}
		outcome = o
		return nil
	})
	return outcome, err
}

func (p *Poller) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
