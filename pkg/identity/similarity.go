package identity

import (
	"github.com/agnivade/levenshtein"
)

// SimilarityScorer rates how alike two folded names are on a 0-100 scale.
// Implementations must be deterministic and stateless so the resolver's
// priority logic can be tested independently of the string metric.
type SimilarityScorer interface {
	Score(a, b string) int
}

// LevenshteinScorer scores names by normalized edit distance:
// 100 * (1 - distance/maxLen), rounded down. Identical strings score 100,
// fully disjoint strings score 0.
type LevenshteinScorer struct{}

// Score implements SimilarityScorer.
func (LevenshteinScorer) Score(a, b string) int {
	if a == b {
		return 100
	}

	maxLen := len([]rune(a))
	if l := len([]rune(b)); l > maxLen {
		maxLen = l
	}
	if maxLen == 0 {
		return 100
	}

	dist := levenshtein.ComputeDistance(a, b)
	if dist >= maxLen {
		return 0
	}
	return (maxLen - dist) * 100 / maxLen
}
