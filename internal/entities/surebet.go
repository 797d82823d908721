package entities

import (
	"fmt"
	"time"

	"github.com/XavierBriggs/fortuna/internal/values"
)

// sameEventTolerance names the event-time tolerance in error messages. The
// check itself is EventTime.SameMinute: both prongs must fall in the same
// clock minute, so two times a few seconds apart across a minute boundary
// are rejected.
const sameEventTolerance = time.Minute

// Surebet is a pair of Picks on opposing outcomes of the same event, one at
// a sharp bookmaker and one at a soft bookmaker, plus the profit percentage
// and record id reported by the feed.
type Surebet struct {
	SharpProng Pick
	SoftProng  Pick
	Profit     values.Profit
	RecordID   string
}

// NewSurebet validates that the two prongs have distinct bookmaker roles
// and agree on event time within tolerance, then constructs a Surebet.
func NewSurebet(sharpProng, softProng Pick, profit values.Profit, recordID string) (Surebet, error) {
	if sharpProng.Bookmaker.Role == softProng.Bookmaker.Role {
		return Surebet{}, fmt.Errorf("surebet %s: both prongs have role %q, expected one sharp and one soft", recordID, sharpProng.Bookmaker.Role)
	}
	if !sharpProng.Bookmaker.IsSharp() {
		sharpProng, softProng = softProng, sharpProng
	}
	if !sharpProng.EventTime.SameMinute(softProng.EventTime) {
		return Surebet{}, fmt.Errorf("surebet %s: prongs disagree on event time beyond %s tolerance", recordID, sameEventTolerance)
	}
	return Surebet{
		SharpProng: sharpProng,
		SoftProng:  softProng,
		Profit:     profit,
		RecordID:   recordID,
	}, nil
}
