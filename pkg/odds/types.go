// Package odds converts bookmaker quotes into fair probabilities. Quotes
// arrive as decimal odds carrying a bookmaker margin (the vig); the de-vig
// step strips that margin so downstream pricing compares like with like.
package odds

import (
	"fmt"
	"strings"
)

// OutcomeKind labels one side of a market.
type OutcomeKind string

const (
	OutcomeHome     OutcomeKind = "home"
	OutcomeAway     OutcomeKind = "away"
	OutcomeDraw     OutcomeKind = "draw"
	OutcomeOutright OutcomeKind = "outright" // futures: one entrant to win a competition
)

// Quote is a single price from one bookmaker for one outcome.
type Quote struct {
	// RawName is the bookmaker's spelling of the team or entrant, exactly
	// as it came off the feed. Identity resolution happens elsewhere;
	// this package never interprets names.
	RawName string `json:"raw_name"`

	Bookmaker   string      `json:"bookmaker"`
	Kind        OutcomeKind `json:"kind"`
	DecimalOdds float64     `json:"decimal_odds"`
}

// CanonicalDraw keys the draw leg of a three-way market. A draw carries no
// team identity, so resolution assigns this fixed name instead.
const CanonicalDraw = "Draw"

// ResolvedQuote is a quote whose raw outcome name has passed identity
// resolution. De-vig groups quotes by Canonical, so two books spelling the
// same team differently still average into a single outcome.
type ResolvedQuote struct {
	Quote
	Canonical  string `json:"canonical"`
	Confidence int    `json:"confidence"`
}

// key is the de-vig grouping key: the canonical identity when resolution
// supplied one, the raw spelling otherwise.
func (q ResolvedQuote) key() string {
	if q.Canonical != "" {
		return q.Canonical
	}
	return q.RawName
}

// ImpliedProbability returns the quote's implied probability, 1/odds.
func (q Quote) ImpliedProbability() (float64, error) {
	return ImpliedProbability(q.DecimalOdds)
}

// ImpliedProbability converts decimal odds to an implied probability.
// Decimal odds below 1.0 would imply a probability above certainty; odds of
// exactly 1.0 are a void price. Both are rejected.
func ImpliedProbability(decimalOdds float64) (float64, error) {
	if decimalOdds <= 1.0 {
		return 0, fmt.Errorf("decimal odds must exceed 1.0, got %v", decimalOdds)
	}
	return 1.0 / decimalOdds, nil
}

// VigPercentage returns the bookmaker overround as a percentage: how far
// the implied probabilities sum above 1.0. A fair market returns 0.
func VigPercentage(probabilities []float64) float64 {
	total := 0.0
	for _, p := range probabilities {
		total += p
	}
	if total <= 1.0 {
		return 0
	}
	return (total - 1.0) * 100.0
}

// normalizeBookmaker lowercases and trims a bookmaker key so config lists
// and feed payloads agree on spelling.
func normalizeBookmaker(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
