package values

import "fmt"

// MarketKind is the closed enumeration of bet kinds the upstream feed can
// report. Some kinds have a single symmetric opposite; 1x has two.
type MarketKind string

const (
	KindWin1  MarketKind = "win1"
	KindWin2  MarketKind = "win2"
	KindOver  MarketKind = "over"
	KindUnder MarketKind = "under"
	KindAH1   MarketKind = "ah1"
	KindAH2   MarketKind = "ah2"
	KindOdd   MarketKind = "odd"
	KindEven  MarketKind = "even"
	KindYes   MarketKind = "yes"
	KindNo    MarketKind = "no"
	Kind1X    MarketKind = "1x"
	KindX2    MarketKind = "x2"
	Kind12    MarketKind = "12"
)

// opposites is the closed opposite-market relation from the feed contract.
// Callers go through Opposites(), which copies, so the table itself is
// never handed out for mutation.
var opposites = map[MarketKind][]MarketKind{
	KindWin1:  {KindWin2},
	KindWin2:  {KindWin1},
	KindOver:  {KindUnder},
	KindUnder: {KindOver},
	KindAH1:   {KindAH2},
	KindAH2:   {KindAH1},
	KindOdd:   {KindEven},
	KindEven:  {KindOdd},
	KindYes:   {KindNo},
	KindNo:    {KindYes},
	Kind1X:    {KindX2, Kind12},
	KindX2:    {Kind1X, Kind12},
	Kind12:    {Kind1X, KindX2},
}

// IsKnownKind reports whether kind appears in the opposite-market table.
func IsKnownKind(kind MarketKind) bool {
	_, ok := opposites[kind]
	return ok
}

// Opposites returns the market kinds that would rebound a position in kind.
func Opposites(kind MarketKind) []MarketKind {
	found := opposites[kind]
	out := make([]MarketKind, len(found))
	copy(out, found)
	return out
}

// Market identifies one specific bet line within an event: the kind, an
// optional numeric condition (e.g. the total line for over/under), the
// period and game phase the line applies to, the side it's anchored to for
// asian-handicap-style markets, a variety discriminator used in dedup keys,
// and whether the feed negated the line.
type Market struct {
	Kind      MarketKind
	Condition *float64
	Period    string
	Base      string
	Game      string
	Variety   string
	Negated   bool
}

// NewMarket validates kind against the closed enumeration.
func NewMarket(kind MarketKind, condition *float64, period, base, game, variety string, negated bool) (Market, error) {
	if !IsKnownKind(kind) {
		return Market{}, newConstructionError("market", fmt.Sprintf("unknown kind %q", kind))
	}
	return Market{
		Kind:      kind,
		Condition: condition,
		Period:    period,
		Base:      base,
		Game:      game,
		Variety:   variety,
		Negated:   negated,
	}, nil
}
