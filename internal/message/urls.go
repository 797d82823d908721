package message

import "strings"

// urlAdjustment rewrites a bookmaker's deep link, e.g. collapsing a
// regional subpath onto the bookmaker's canonical domain.
type urlAdjustment struct {
	match       string
	replacement string
}

// defaultURLTable is the per-bookmaker adjustment table. Bookmakers absent
// from this table are passed through unchanged.
var defaultURLTable = map[string][]urlAdjustment{
	"bet365": {
		{match: "/en-gb/", replacement: "/en/"},
		{match: "/en-au/", replacement: "/en/"},
	},
	"pinnacle": {
		{match: "www.pinnacle.bet", replacement: "www.pinnacle.com"},
	},
}

// adjustURL applies bookmaker's adjustment table to link, in order. A
// bookmaker with no table entry, or a link with no matching substring, is
// returned unchanged.
func adjustURL(bookmakerID, link string) string {
	if link == "" {
		return link
	}
	adjustments, ok := defaultURLTable[bookmakerID]
	if !ok {
		return link
	}
	for _, adj := range adjustments {
		link = strings.ReplaceAll(link, adj.match, adj.replacement)
	}
	return link
}
