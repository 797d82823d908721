package validate

import (
	"context"
	"time"

	"github.com/XavierBriggs/fortuna/internal/dedup"
	"github.com/XavierBriggs/fortuna/internal/entities"
)

// OddsRangeLink checks the soft prong's odds fall within [min, max].
type OddsRangeLink struct {
	Min, Max float64
}

// NewOddsRangeLink constructs an OddsRangeLink.
func NewOddsRangeLink(min, max float64) *OddsRangeLink {
	return &OddsRangeLink{Min: min, Max: max}
}

func (l *OddsRangeLink) Name() string { return "odds_range" }

func (l *OddsRangeLink) Check(ctx context.Context, sb entities.Surebet, store dedup.Store) (Result, error) {
	v := sb.SoftProng.Odds.Value()
	if v < l.Min || v > l.Max {
		return Result{Pass: false, Reason: "odds_out_of_range"}, nil
	}
	return Result{Pass: true}, nil
}

// ProfitRangeLink checks the surebet's profit falls within [min, max].
type ProfitRangeLink struct {
	Min, Max float64
}

// NewProfitRangeLink constructs a ProfitRangeLink.
func NewProfitRangeLink(min, max float64) *ProfitRangeLink {
	return &ProfitRangeLink{Min: min, Max: max}
}

func (l *ProfitRangeLink) Name() string { return "profit_range" }

func (l *ProfitRangeLink) Check(ctx context.Context, sb entities.Surebet, store dedup.Store) (Result, error) {
	p := sb.Profit.Percent()
	if p < l.Min || p > l.Max {
		return Result{Pass: false, Reason: "profit_out_of_range"}, nil
	}
	return Result{Pass: true}, nil
}

// FutureEventLink checks the event is still strictly in the future at
// validation time. Now is injected so tests control the reference clock.
type FutureEventLink struct {
	Now func() time.Time
}

// NewFutureEventLink constructs a FutureEventLink.
func NewFutureEventLink(now func() time.Time) *FutureEventLink {
	if now == nil {
		now = time.Now
	}
	return &FutureEventLink{Now: now}
}

func (l *FutureEventLink) Name() string { return "future_event" }

func (l *FutureEventLink) Check(ctx context.Context, sb entities.Surebet, store dedup.Store) (Result, error) {
	if !sb.SoftProng.EventTime.At().After(l.Now()) {
		return Result{Pass: false, Reason: "event_not_future"}, nil
	}
	return Result{Pass: true}, nil
}

// DistinctRolesLink re-asserts what the parser already enforced: exactly
// one prong is sharp and the other is soft.
type DistinctRolesLink struct{}

// NewDistinctRolesLink constructs a DistinctRolesLink.
func NewDistinctRolesLink() *DistinctRolesLink {
	return &DistinctRolesLink{}
}

func (l *DistinctRolesLink) Name() string { return "distinct_roles" }

func (l *DistinctRolesLink) Check(ctx context.Context, sb entities.Surebet, store dedup.Store) (Result, error) {
	if !sb.SharpProng.Bookmaker.IsSharp() || sb.SoftProng.Bookmaker.IsSharp() {
		return Result{Pass: false, Reason: "roles_not_distinct"}, nil
	}
	return Result{Pass: true}, nil
}

// DedupAndOppositeLink covers both the dedup check and the opposite-market
// check in a single batched store query: the soft prong's own dedup key and
// all of its opposite-market keys are checked together, in one round trip,
// and the two failure reasons are told apart by which position matched.
type DedupAndOppositeLink struct{}

// NewDedupAndOppositeLink constructs a DedupAndOppositeLink.
func NewDedupAndOppositeLink() *DedupAndOppositeLink {
	return &DedupAndOppositeLink{}
}

func (l *DedupAndOppositeLink) Name() string { return "dedup_and_opposite" }

func (l *DedupAndOppositeLink) Check(ctx context.Context, sb entities.Surebet, store dedup.Store) (Result, error) {
	dedupKey := sb.SoftProng.DedupKey()
	oppositeKeys := sb.SoftProng.OppositeDedupKeys()

	keys := make([]string, 0, 1+len(oppositeKeys))
	keys = append(keys, dedupKey)
	keys = append(keys, oppositeKeys...)

	results, err := store.ExistsEach(ctx, keys...)
	if err != nil {
		return Result{}, err
	}

	if results[0] {
		return Result{Pass: false, Reason: "duplicate"}, nil
	}
	for _, present := range results[1:] {
		if present {
			return Result{Pass: false, Reason: "opposite"}, nil
		}
	}
	return Result{Pass: true}, nil
}
