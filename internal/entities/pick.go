package entities

import (
	"fmt"
	"strings"

	"github.com/XavierBriggs/fortuna/internal/values"
)

// Pick is a concrete bet at one bookmaker on one event. It is immutable
// after construction; any "change" downstream is a new Pick value.
type Pick struct {
	HomeTeam   string
	AwayTeam   string
	Tournament string
	EventTime  values.EventTime
	Market     values.Market
	Odds       values.Odds
	Bookmaker  Bookmaker
	DeepLink   string
}

// NewPick validates the required fields and constructs a Pick.
func NewPick(homeTeam, awayTeam, tournament string, eventTime values.EventTime, market values.Market, odds values.Odds, bookmaker Bookmaker, deepLink string) (Pick, error) {
	if strings.TrimSpace(homeTeam) == "" || strings.TrimSpace(awayTeam) == "" {
		return Pick{}, fmt.Errorf("pick: team names are required")
	}
	return Pick{
		HomeTeam:   homeTeam,
		AwayTeam:   awayTeam,
		Tournament: tournament,
		EventTime:  eventTime,
		Market:     market,
		Odds:       odds,
		Bookmaker:  bookmaker,
		DeepLink:   deepLink,
	}, nil
}

// ImpliedProbability derives the pick's implied probability from its odds.
func (p Pick) ImpliedProbability() float64 {
	return p.Odds.ImpliedProbability()
}

// normalizedTeams canonicalizes team order and casing so that "A vs B" and
// "b VS a" collapse to the same dedup identity.
func (p Pick) normalizedTeams() string {
	a := strings.ToLower(strings.TrimSpace(p.HomeTeam))
	b := strings.ToLower(strings.TrimSpace(p.AwayTeam))
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

// DedupKey returns the canonical dedup identity for this pick:
// teams ∥ event_time ∥ market_kind ∥ variety ∥ bookmaker_id.
func (p Pick) DedupKey() string {
	return dedupKeyFor(p.normalizedTeams(), p.EventTime, p.Market.Kind, p.Market.Variety, p.Bookmaker.ID)
}

// OppositeDedupKeys returns the dedup keys of every market that would
// rebound this pick's position, for the same teams/time/bookmaker/variety.
func (p Pick) OppositeDedupKeys() []string {
	kinds := values.Opposites(p.Market.Kind)
	keys := make([]string, len(kinds))
	teams := p.normalizedTeams()
	for i, k := range kinds {
		keys[i] = dedupKeyFor(teams, p.EventTime, k, p.Market.Variety, p.Bookmaker.ID)
	}
	return keys
}

func dedupKeyFor(normalizedTeams string, eventTime values.EventTime, kind values.MarketKind, variety, bookmakerID string) string {
	return fmt.Sprintf("%s|%d|%s|%s|%s",
		normalizedTeams,
		eventTime.At().Unix(),
		kind,
		variety,
		bookmakerID,
	)
}
