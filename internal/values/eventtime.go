package values

import "time"

// EventTime is a UTC instant that was strictly in the future at the moment
// it was validated. Validity is checked once, at construction; nothing
// re-validates it later, so a pick can still be delivered for an event that
// has since started (see the "stale event" error policy).
type EventTime struct {
	at time.Time
}

// NewEventTime validates that at is strictly after now and constructs an
// EventTime. now is passed explicitly so callers (and tests) control the
// reference clock instead of reaching for time.Now() themselves.
func NewEventTime(at, now time.Time) (EventTime, error) {
	at = at.UTC()
	if !at.After(now.UTC()) {
		return EventTime{}, newConstructionError("event_time", "not strictly in the future")
	}
	return EventTime{at: at}, nil
}

// At returns the validated UTC instant.
func (e EventTime) At() time.Time {
	return e.at
}

// SameMinute reports whether two event times fall within the same minute,
// the tolerance a Surebet's two prongs are required to agree within.
func (e EventTime) SameMinute(other EventTime) bool {
	return e.at.Truncate(time.Minute).Equal(other.at.Truncate(time.Minute))
}
