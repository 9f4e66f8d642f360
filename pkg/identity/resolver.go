package identity

import "strings"

// Method records which layer of the resolver produced a resolution.
type Method string

const (
	MethodNone       Method = ""
	MethodDictionary Method = "dictionary"
	MethodReverse    Method = "reverse"
	MethodAlias      Method = "alias"
	MethodFuzzy      Method = "fuzzy"
)

// Resolution is the outcome of resolving one raw name. The zero value means
// unresolved: callers must treat it as a first-class orphan outcome, not an
// error.
type Resolution struct {
	Canonical  string `json:"canonical"`
	Confidence int    `json:"confidence"` // 0-100; 100 only for exact hits
	Method     Method `json:"method"`

	// Ambiguous is set when two or more entities tied at the best fuzzy
	// score and the tie-break picked one. Logged for audit: a tie is a
	// correctness risk, not a crash risk.
	Ambiguous bool `json:"ambiguous,omitempty"`
}

// Resolved reports whether the name mapped to a canonical entity.
func (r Resolution) Resolved() bool {
	return r.Canonical != ""
}

// substringScore is awarded when one compared string contains the other.
// Short names ("PSG" inside "PSG Paris") are strong signals that plain edit
// distance underrates.
const substringScore = 90

// ResolverConfig tunes the resolver.
type ResolverConfig struct {
	// Threshold is the minimum fuzzy score that resolves; a score exactly
	// at the threshold passes, one below does not. Default: 75.
	Threshold int

	// Scorer is the fuzzy similarity strategy. Default: LevenshteinScorer.
	Scorer SimilarityScorer
}

// DefaultResolverConfig returns the default configuration.
func DefaultResolverConfig() *ResolverConfig {
	return &ResolverConfig{
		Threshold: 75,
		Scorer:    LevenshteinScorer{},
	}
}

// Resolver maps raw provider names to canonical entities. It is stateless
// given its table and safe for concurrent use.
type Resolver struct {
	table     *Table
	scorer    SimilarityScorer
	threshold int
}

// NewResolver creates a resolver over a validated table.
func NewResolver(table *Table, cfg *ResolverConfig) *Resolver {
	if cfg == nil {
		cfg = DefaultResolverConfig()
	}
	defaults := DefaultResolverConfig()
	if cfg.Threshold == 0 {
		cfg.Threshold = defaults.Threshold
	}
	if cfg.Scorer == nil {
		cfg.Scorer = defaults.Scorer
	}

	return &Resolver{
		table:     table,
		scorer:    cfg.Scorer,
		threshold: cfg.Threshold,
	}
}

// Threshold returns the configured minimum fuzzy score.
func (r *Resolver) Threshold() int {
	return r.threshold
}

// Resolve maps a raw name from the given source to a canonical entity.
// Layers are tried in strict priority order, first hit wins:
//
//  1. strict source dictionary, over all normalization variants
//  2. reverse lookup: the name is already in canonical form
//  3. exact alias match, case- and accent-insensitive
//  4. fuzzy similarity against every canonical name and alias, with a
//     fixed substring floor, gated by the confidence threshold
//
// An unresolved name yields the zero Resolution. Ties at the best fuzzy
// score break to the lexicographically smallest canonical name and are
// flagged Ambiguous.
func (r *Resolver) Resolve(raw string, src Source) Resolution {
	if Fold(raw) == "" {
		return Resolution{}
	}

	vars := variants(raw)

	if dict := r.table.dictionary(src); dict != nil {
		for _, v := range vars {
			canonical, ok := dict[v]
			if !ok {
				canonical, ok = dictLookupFold(dict, v)
			}
			if ok {
				if e, found := r.table.entity(canonical); found {
					return Resolution{Canonical: e.Canonical, Confidence: 100, Method: MethodDictionary}
				}
			}
		}
	}

	for _, v := range vars {
		if e, ok := r.table.byCanonical[Fold(v)]; ok {
			return Resolution{Canonical: e.Canonical, Confidence: 100, Method: MethodReverse}
		}
	}

	for _, v := range vars {
		if e, ok := r.table.byAlias[Fold(v)]; ok {
			return Resolution{Canonical: e.Canonical, Confidence: 100, Method: MethodAlias}
		}
	}

	return r.fuzzy(Fold(Normalize(raw)))
}

// fuzzy scores the folded name against every entity's canonical name and
// aliases, keeping the best candidate. Entities are visited in sorted
// canonical order so that equal scores always break the same way.
func (r *Resolver) fuzzy(name string) Resolution {
	bestScore := 0
	bestCanonical := ""
	ambiguous := false

	for _, canonical := range r.table.canonicals {
		e := r.table.byCanonical[Fold(canonical)]

		score := r.score(name, Fold(e.Canonical))
		for _, alias := range e.Aliases {
			if s := r.score(name, Fold(alias)); s > score {
				score = s
			}
		}

		switch {
		case score > bestScore:
			bestScore = score
			bestCanonical = e.Canonical
			ambiguous = false
		case score == bestScore && bestScore > 0 && e.Canonical != bestCanonical:
			ambiguous = true
		}
	}

	if bestScore < r.threshold {
		return Resolution{}
	}
	return Resolution{
		Canonical:  bestCanonical,
		Confidence: bestScore,
		Method:     MethodFuzzy,
		Ambiguous:  ambiguous,
	}
}

// score combines the configured similarity metric with the substring floor.
func (r *Resolver) score(name, candidate string) int {
	s := r.scorer.Score(name, candidate)
	if s < substringScore && containsEither(name, candidate) {
		s = substringScore
	}
	return s
}

func containsEither(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

// dictLookupFold retries a dictionary lookup with folded keys, so that
// accent or case differences in config files do not break strict matches.
func dictLookupFold(dict map[string]string, name string) (string, bool) {
	folded := Fold(name)
	for raw, canonical := range dict {
		if Fold(raw) == folded {
			return canonical, true
		}
	}
	return "", false
}
