// Package message renders the chat-ready body for a delivered pick. It
// splits rendering into static parts (teams, tournament, event time, deep
// link), which are cached, and dynamic parts (stake indicator, odds),
// which are recomputed on every render.
package message

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/XavierBriggs/fortuna/internal/calculator"
	"github.com/XavierBriggs/fortuna/internal/entities"
)

// StaticParts is the portion of a rendered message that depends only on
// the event and bookmaker, not on the current odds or profit.
type StaticParts struct {
	TeamsLine      string
	TournamentLine string
	EventLine      string
	DeepLink       string
}

// DynamicParts is the portion of a rendered message that reflects the
// candidate's current numbers; it is never cached.
type DynamicParts struct {
	TierIndicator string
	SoftOdds      string
	MinOdds       string
}

// Builder composes a chat-ready message body from a Surebet's soft prong,
// caching static parts and recomputing dynamic parts on every call.
type Builder struct {
	cache *staticCache
}

// DefaultTTL and DefaultMaxEntries are the cache parameters used when a
// zero value is supplied to New.
const (
	DefaultTTL        = 60 * time.Second
	DefaultMaxEntries = 10000
)

// New constructs a Builder. now defaults to time.Now when nil.
func New(ttl time.Duration, maxEntries int, now func() time.Time) *Builder {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Builder{cache: newStaticCache(ttl, maxEntries, now)}
}

// staticKey returns the cache key for a pick: team1∥team2∥event_time∥bookmaker.
func staticKey(pick entities.Pick) string {
	return fmt.Sprintf("%s∥%s∥%d∥%s", pick.HomeTeam, pick.AwayTeam, pick.EventTime.At().Unix(), pick.Bookmaker.ID)
}

func (b *Builder) staticParts(pick entities.Pick) StaticParts {
	key := staticKey(pick)
	if parts, ok := b.cache.get(key); ok {
		return parts
	}
	parts := StaticParts{
		TeamsLine:      fmt.Sprintf("%s vs %s", html.EscapeString(pick.HomeTeam), html.EscapeString(pick.AwayTeam)),
		TournamentLine: html.EscapeString(pick.Tournament),
		EventLine:      html.EscapeString(pick.EventTime.At().Format("2006-01-02 15:04 MST")),
		DeepLink:       adjustURL(pick.Bookmaker.ID, pick.DeepLink),
	}
	b.cache.put(key, parts)
	return parts
}

// Render composes the final chat body for sb's soft prong, given the stake
// tier and minimum acceptable odds already computed by the calculator
// stage. It is pure given sb, tier, and minOdds, and the builder's current
// cache state. The result is Telegram-flavored HTML (the subset the chat
// API's "HTML" parse mode accepts: b/i/a), so every field sourced from
// upstream feed data (team names, tournament, deep link) is escaped
// before being interpolated; a `<`, `>`, or `&` in a team name must never
// produce invalid markup that gets the whole message rejected.
func (b *Builder) Render(sb entities.Surebet, tier calculator.Tier, minOdds float64) string {
	static := b.staticParts(sb.SoftProng)
	dynamic := DynamicParts{
		TierIndicator: html.EscapeString(tier.Indicator()),
		SoftOdds:      fmt.Sprintf("%.2f", calculator.RoundToCents(sb.SoftProng.Odds.Value())),
		MinOdds:       fmt.Sprintf("%.2f", minOdds),
	}
	bookmaker := html.EscapeString(sb.SoftProng.Bookmaker.ID)

	var b2 strings.Builder
	fmt.Fprintf(&b2, "<b>%s %s @ %s</b> (min %s)\n", dynamic.TierIndicator, dynamic.SoftOdds, bookmaker, dynamic.MinOdds)
	fmt.Fprintf(&b2, "%s\n", static.TeamsLine)
	if static.TournamentLine != "" {
		fmt.Fprintf(&b2, "<i>%s</i>\n", static.TournamentLine)
	}
	fmt.Fprintf(&b2, "%s\n", static.EventLine)
	if static.DeepLink != "" {
		fmt.Fprintf(&b2, "<a href=\"%s\">Bet now</a>\n", html.EscapeString(static.DeepLink))
	}
	return b2.String()
}
