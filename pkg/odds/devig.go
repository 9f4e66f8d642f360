package odds

import (
	"fmt"
	"math"
	"sort"
)

// DeVigConfig configures vig removal.
type DeVigConfig struct {
	// PreferredBookmakers are averaged, in lowercase feed spelling, when a
	// market carries quotes from several books. Quotes from other books
	// are used only when no preferred book priced the outcome.
	PreferredBookmakers []string

	// MaxOutrightProb drops outright (futures) entrants whose averaged
	// implied probability exceeds it. A 72% title favorite prices the
	// rest of the field so thin that fair-value comparison stops being
	// meaningful. Default: 0.60.
	MaxOutrightProb float64

	// Tolerance bounds how far de-vigged probabilities may sum from 1.0.
	// Default: 1e-6.
	Tolerance float64
}

// DefaultDeVigConfig returns default configuration.
func DefaultDeVigConfig() *DeVigConfig {
	return &DeVigConfig{
		PreferredBookmakers: []string{"draftkings", "fanduel", "betmgm", "pinnacle", "caesars", "bovada"},
		MaxOutrightProb:     0.60,
		Tolerance:           1e-6,
	}
}

// DeVigger strips bookmaker margin from markets using multiplicative
// normalization: each implied probability is divided by the market total, so
// the fair probabilities keep their relative proportions and sum to 1.0.
// The same formula covers two-way and three-way markets.
type DeVigger struct {
	preferred map[string]bool
	maxProb   float64
	tolerance float64
}

// NewDeVigger creates a de-vigger.
func NewDeVigger(config *DeVigConfig) *DeVigger {
	if config == nil {
		config = DefaultDeVigConfig()
	}
	defaults := DefaultDeVigConfig()
	if config.PreferredBookmakers == nil {
		config.PreferredBookmakers = defaults.PreferredBookmakers
	}
	if config.MaxOutrightProb == 0 {
		config.MaxOutrightProb = defaults.MaxOutrightProb
	}
	if config.Tolerance == 0 {
		config.Tolerance = defaults.Tolerance
	}

	preferred := make(map[string]bool, len(config.PreferredBookmakers))
	for _, b := range config.PreferredBookmakers {
		preferred[normalizeBookmaker(b)] = true
	}
	return &DeVigger{
		preferred: preferred,
		maxProb:   config.MaxOutrightProb,
		tolerance: config.Tolerance,
	}
}

// Devig normalizes a map of implied probabilities so they sum to 1.0.
// The operation is idempotent: running it on an already-fair market is a
// division by 1. An empty or all-zero input returns an empty map rather
// than dividing by zero.
func (d *DeVigger) Devig(implied map[string]float64) map[string]float64 {
	total := 0.0
	for _, p := range implied {
		if p > 0 {
			total += p
		}
	}

	fair := make(map[string]float64, len(implied))
	if total <= 0 {
		return fair
	}
	for outcome, p := range implied {
		if p > 0 {
			fair[outcome] = p / total
		}
	}
	return fair
}

// SumsToFair reports whether probabilities sum to 1.0 within tolerance.
func (d *DeVigger) SumsToFair(probs map[string]float64) bool {
	if len(probs) == 0 {
		return false
	}
	total := 0.0
	for _, p := range probs {
		total += p
	}
	return math.Abs(total-1.0) <= d.tolerance
}

// OutcomePrice is the fair price for one outcome after averaging and vig
// removal.
type OutcomePrice struct {
	Probability float64 `json:"probability"`

	// Bookmaker is the representative source: the book whose implied
	// probability sat closest to the pre-devig outcome mean.
	Bookmaker string `json:"bookmaker"`

	// Quotes is how many book quotes fed the average.
	Quotes int `json:"quotes"`
}

// SkippedOutcome records an outcome excluded before vig removal, with the
// reason it was dropped. Skips are surfaced, never silent.
type SkippedOutcome struct {
	RawName     string  `json:"raw_name"`
	Probability float64 `json:"probability"`
	Reason      string  `json:"reason"`
}

// DiscardedQuote records a single quote dropped before averaging, with the
// bookmaker that sent it. The rest of its outcome group still prices.
type DiscardedQuote struct {
	RawName   string `json:"raw_name"`
	Bookmaker string `json:"bookmaker"`
	Reason    string `json:"reason"`
}

// Market is a fully de-vigged market.
type Market struct {
	// Outcomes maps each outcome's canonical name (raw spelling when no
	// resolution was supplied) to its fair price. Values sum to 1.0
	// within the configured tolerance.
	Outcomes map[string]OutcomePrice `json:"outcomes"`

	// Vig is the overround percentage the bookmakers carried before
	// normalization.
	Vig float64 `json:"vig"`

	Skipped   []SkippedOutcome `json:"skipped,omitempty"`
	Discarded []DiscardedQuote `json:"discarded,omitempty"`
}

// DevigQuotes averages quotes per outcome across preferred bookmakers and
// strips the vig from the result. Quotes sharing a canonical identity form
// one outcome group even when the books spell the name differently.
//
// For each outcome the implied probabilities of the preferred books are
// averaged; when no preferred book priced an outcome, all of its quotes are
// used instead so a market is never lost to bookmaker coverage. A quote
// with void or impossible odds is discarded on its own, reported in
// Market.Discarded, and the rest of its group still prices. Outright
// entrants above the configured probability cap are skipped before
// normalization and reported in Market.Skipped.
func (d *DeVigger) DevigQuotes(quotes []ResolvedQuote) *Market {
	market := &Market{Outcomes: map[string]OutcomePrice{}}

	byOutcome := make(map[string][]ResolvedQuote)
	for _, q := range quotes {
		if _, err := q.ImpliedProbability(); err != nil {
			market.Discarded = append(market.Discarded, DiscardedQuote{
				RawName:   q.RawName,
				Bookmaker: q.Bookmaker,
				Reason:    err.Error(),
			})
			continue
		}
		byOutcome[q.key()] = append(byOutcome[q.key()], q)
	}

	implied := make(map[string]float64, len(byOutcome))
	reps := make(map[string]OutcomePrice, len(byOutcome))
	var rawProbs []float64

	// Deterministic outcome order so representative selection never
	// depends on map iteration.
	names := make([]string, 0, len(byOutcome))
	for name := range byOutcome {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		group := d.selectQuotes(byOutcome[name])
		mean := meanImplied(group)

		if group[0].Kind == OutcomeOutright && mean > d.maxProb {
			market.Skipped = append(market.Skipped, SkippedOutcome{
				RawName:     name,
				Probability: mean,
				Reason:      fmt.Sprintf("implied probability %.4f above outright cap %.2f", mean, d.maxProb),
			})
			continue
		}

		implied[name] = mean
		reps[name] = OutcomePrice{
			Bookmaker: closestBookmaker(group, mean),
			Quotes:    len(group),
		}
		rawProbs = append(rawProbs, mean)
	}

	market.Vig = VigPercentage(rawProbs)

	for name, fair := range d.Devig(implied) {
		price := reps[name]
		price.Probability = fair
		market.Outcomes[name] = price
	}
	return market
}

// selectQuotes keeps only preferred-book quotes, falling back to the full
// group when no preferred book is present.
func (d *DeVigger) selectQuotes(group []ResolvedQuote) []ResolvedQuote {
	var kept []ResolvedQuote
	for _, q := range group {
		if d.preferred[normalizeBookmaker(q.Bookmaker)] {
			kept = append(kept, q)
		}
	}
	if len(kept) == 0 {
		return group
	}
	return kept
}

func meanImplied(group []ResolvedQuote) float64 {
	total := 0.0
	for _, q := range group {
		total += 1.0 / q.DecimalOdds
	}
	return total / float64(len(group))
}

// closestBookmaker returns the book whose implied probability is nearest
// the group mean. Quote order breaks exact ties, which is stable because
// callers pass groups built in input order.
func closestBookmaker(group []ResolvedQuote, mean float64) string {
	best := group[0].Bookmaker
	bestDist := math.Abs(1.0/group[0].DecimalOdds - mean)
	for _, q := range group[1:] {
		if dist := math.Abs(1.0/q.DecimalOdds - mean); dist < bestDist {
			best = q.Bookmaker
			bestDist = dist
		}
	}
	return best
}
