package feed

import (
	"fmt"
	"time"

	"github.com/XavierBriggs/fortuna/internal/entities"
	"github.com/XavierBriggs/fortuna/internal/values"
)

// Parser maps raw feed records into Surebets, assigning sharp/soft roles
// from a configured set of sharp bookmaker ids.
type Parser struct {
	sharpBookmakers map[string]bool
	channelsBySoft  map[string]string
}

// NewParser constructs a Parser. channelsBySoft maps a soft bookmaker id to
// its output chat channel id.
func NewParser(sharpBookmakers []string, channelsBySoft map[string]string) *Parser {
	sharps := make(map[string]bool, len(sharpBookmakers))
	for _, bk := range sharpBookmakers {
		sharps[bk] = true
	}
	return &Parser{sharpBookmakers: sharps, channelsBySoft: channelsBySoft}
}

// Parse converts one raw record into a Surebet. It never panics: any
// malformed or ambiguous record is returned as an error describing the
// discard reason, never a zero-value Surebet mistaken for success.
func (p *Parser) Parse(record RawRecord, now time.Time) (entities.Surebet, error) {
	if len(record.Prongs) != 2 {
		return entities.Surebet{}, fmt.Errorf("feed: record %s has %d prongs, want 2", record.ID, len(record.Prongs))
	}

	sharpCount := 0
	for _, prong := range record.Prongs {
		if p.sharpBookmakers[prong.BK] {
			sharpCount++
		}
	}
	if sharpCount != 1 {
		return entities.Surebet{}, fmt.Errorf("feed: record %s has %d sharp prongs, want exactly 1", record.ID, sharpCount)
	}

	picks := make([]entities.Pick, 2)
	for i, prong := range record.Prongs {
		pick, err := p.parseProng(prong, now)
		if err != nil {
			return entities.Surebet{}, fmt.Errorf("feed: record %s: %w", record.ID, err)
		}
		picks[i] = pick
	}

	profit, err := values.NewProfit(record.Profit)
	if err != nil {
		return entities.Surebet{}, fmt.Errorf("feed: record %s: %w", record.ID, err)
	}

	sb, err := entities.NewSurebet(picks[0], picks[1], profit, record.ID)
	if err != nil {
		return entities.Surebet{}, fmt.Errorf("feed: record %s: %w", record.ID, err)
	}
	return sb, nil
}

func (p *Parser) parseProng(prong RawProng, now time.Time) (entities.Pick, error) {
	role := entities.RoleSoft
	channel := ""
	if p.sharpBookmakers[prong.BK] {
		role = entities.RoleSharp
	} else {
		ch, ok := p.channelsBySoft[prong.BK]
		if !ok {
			return entities.Pick{}, fmt.Errorf("bookmaker %s has no configured channel", prong.BK)
		}
		channel = ch
	}

	bookmaker, err := entities.NewBookmaker(prong.BK, role, channel)
	if err != nil {
		return entities.Pick{}, err
	}

	odds, err := values.NewOdds(prong.Value)
	if err != nil {
		return entities.Pick{}, err
	}

	eventTime, err := values.NewEventTime(msToTime(prong.Time), now)
	if err != nil {
		return entities.Pick{}, err
	}

	market, err := values.NewMarket(
		values.MarketKind(prong.Type.Kind),
		prong.Type.Condition,
		prong.Type.Period,
		prong.Type.Base,
		prong.Type.Game,
		prong.Type.Variety,
		prong.Type.No,
	)
	if err != nil {
		return entities.Pick{}, err
	}

	if len(prong.Teams) != 2 || prong.Teams[0] == "" || prong.Teams[1] == "" {
		return entities.Pick{}, fmt.Errorf("bookmaker %s: missing team names", prong.BK)
	}

	return entities.NewPick(prong.Teams[0], prong.Teams[1], prong.Tournament, eventTime, market, odds, bookmaker, prong.EventNav)
}

func msToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
