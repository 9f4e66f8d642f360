// Package pairing joins bookmaker fixtures to prediction-market events by
// canonical team identity. The two feeds list the same fixture with no shared
// key and sometimes with home and away swapped, so the join is on the
// unordered pair of canonical names.
package pairing

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// BookEvent is one fixture from the bookmaker feed, with team names already
// resolved to canonical form and prices already de-vigged.
type BookEvent struct {
	ID        string    `json:"id"`
	Home      string    `json:"home"` // canonical
	Away      string    `json:"away"` // canonical
	StartTime time.Time `json:"start_time"`

	// Fair probabilities keyed book-side: Home is the book's home team.
	HomeProb float64 `json:"home_prob"`
	DrawProb float64 `json:"draw_prob"` // zero for two-way markets
	AwayProb float64 `json:"away_prob"`
}

// MarketEvent is one fixture from the prediction-market feed.
type MarketEvent struct {
	ID        string    `json:"id"`
	Home      string    `json:"home"` // canonical
	Away      string    `json:"away"` // canonical
	EndTime   time.Time `json:"end_time"`
	Liquidity float64   `json:"liquidity"`

	// Market prices keyed market-side: HomePrice is the price of the
	// market's own home team, which may be the book's away team.
	HomePrice float64 `json:"home_price"`
	DrawPrice float64 `json:"draw_price"`
	AwayPrice float64 `json:"away_price"`
}

// MatchedPair joins one book fixture to one market fixture.
type MatchedPair struct {
	ID     string      `json:"id"`
	Book   BookEvent   `json:"book"`
	Market MarketEvent `json:"market"`

	// Swapped is set when the market listed the teams in the opposite
	// orientation to the book.
	Swapped bool `json:"swapped"`

	// Market prices re-oriented into the book's frame: HomePrice always
	// refers to Book.Home regardless of how the market listed the teams.
	HomePrice float64 `json:"home_price"`
	DrawPrice float64 `json:"draw_price"`
	AwayPrice float64 `json:"away_price"`
}

// Result is the outcome of one pairing pass. Orphans are fixtures one feed
// carried and the other did not; they are reported, never dropped, because
// a missing pair usually means an identity-table gap worth fixing.
type Result struct {
	Pairs         []MatchedPair `json:"pairs"`
	BookOrphans   []BookEvent   `json:"book_orphans"`
	MarketOrphans []MarketEvent `json:"market_orphans"`
}

// Pairer matches the two feeds.
type Pairer struct{}

// NewPairer creates a pairer.
func NewPairer() *Pairer {
	return &Pairer{}
}

// Pair joins book fixtures to market fixtures on unordered canonical team
// pairs. Each market event is consumed by at most one book event. When
// several market events carry the same team pair, the book fixture takes
// the one with the latest end time, then the highest liquidity, then the
// one that appeared first in the input.
func (p *Pairer) Pair(books []BookEvent, markets []MarketEvent) *Result {
	res := &Result{}

	byTeams := make(map[string][]int)
	for i, m := range markets {
		key := pairKey(m.Home, m.Away)
		byTeams[key] = append(byTeams[key], i)
	}
	consumed := make([]bool, len(markets))

	for _, b := range books {
		idx, ok := pickMarket(markets, byTeams[pairKey(b.Home, b.Away)], consumed)
		if !ok {
			res.BookOrphans = append(res.BookOrphans, b)
			continue
		}
		consumed[idx] = true
		res.Pairs = append(res.Pairs, newPair(b, markets[idx]))
	}

	for i, m := range markets {
		if !consumed[i] {
			res.MarketOrphans = append(res.MarketOrphans, m)
		}
	}
	return res
}

// pickMarket applies the tie-break over the candidate indices, skipping
// markets already consumed by an earlier book fixture.
func pickMarket(markets []MarketEvent, candidates []int, consumed []bool) (int, bool) {
	best := -1
	for _, idx := range candidates {
		if consumed[idx] {
			continue
		}
		if best == -1 || betterMarket(markets[idx], markets[best]) {
			best = idx
		}
	}
	return best, best != -1
}

// betterMarket reports whether a beats b: later end time first, then higher
// liquidity. Input order wins remaining ties because candidates are visited
// in input order and a must strictly beat the incumbent.
func betterMarket(a, b MarketEvent) bool {
	if !a.EndTime.Equal(b.EndTime) {
		return a.EndTime.After(b.EndTime)
	}
	return a.Liquidity > b.Liquidity
}

func newPair(b BookEvent, m MarketEvent) MatchedPair {
	pair := MatchedPair{
		ID:     uuid.NewString(),
		Book:   b,
		Market: m,
	}

	if m.Home == b.Home {
		pair.HomePrice = m.HomePrice
		pair.AwayPrice = m.AwayPrice
	} else {
		pair.Swapped = true
		pair.HomePrice = m.AwayPrice
		pair.AwayPrice = m.HomePrice
	}
	pair.DrawPrice = m.DrawPrice
	return pair
}

// pairKey builds an orientation-independent key for a team pair.
func pairKey(a, b string) string {
	teams := []string{a, b}
	sort.Strings(teams)
	return teams[0] + "\x00" + teams[1]
}
