// Package trigger decides when a fixture deserves a fresh pricing pass.
// Re-pricing every fixture on every scan wastes feed quota on markets that
// have not moved; the gate fires only near kickoff or on real price motion,
// under a global rate cap.
package trigger

import (
	"math"
	"sort"
	"time"

	"golang.org/x/time/rate"
)

// GateConfig configures the analysis gate.
type GateConfig struct {
	// CrunchWindow is the span before kickoff in which every scan
	// re-prices the fixture regardless of movement. Default: 2h.
	CrunchWindow time.Duration

	// VolatilityPct is the relative price move, as a percentage of the
	// previous price, that triggers a re-price outside the crunch
	// window. Default: 5.0.
	VolatilityPct float64

	// AnalysesPerMinute caps how many re-prices the gate admits across
	// all fixtures. Default: 30.
	AnalysesPerMinute float64

	// Burst is the rate limiter burst size. Default: 5.
	Burst int
}

// DefaultGateConfig returns default configuration.
func DefaultGateConfig() *GateConfig {
	return &GateConfig{
		CrunchWindow:      2 * time.Hour,
		VolatilityPct:     5.0,
		AnalysesPerMinute: 30,
		Burst:             5,
	}
}

// Decision is the gate's verdict for one fixture.
type Decision struct {
	Fire   bool   `json:"fire"`
	Reason string `json:"reason"`
}

// Gate applies the throttling policy. Safe for concurrent use; the rate
// limiter is internally synchronized.
type Gate struct {
	crunchWindow  time.Duration
	volatilityPct float64
	limiter       *rate.Limiter
}

// NewGate creates a gate.
func NewGate(config *GateConfig) *Gate {
	if config == nil {
		config = DefaultGateConfig()
	}
	defaults := DefaultGateConfig()
	if config.CrunchWindow == 0 {
		config.CrunchWindow = defaults.CrunchWindow
	}
	if config.VolatilityPct == 0 {
		config.VolatilityPct = defaults.VolatilityPct
	}
	if config.AnalysesPerMinute == 0 {
		config.AnalysesPerMinute = defaults.AnalysesPerMinute
	}
	if config.Burst == 0 {
		config.Burst = defaults.Burst
	}

	return &Gate{
		crunchWindow:  config.CrunchWindow,
		volatilityPct: config.VolatilityPct,
		limiter:       rate.NewLimiter(rate.Limit(config.AnalysesPerMinute/60.0), config.Burst),
	}
}

// ShouldAnalyze decides whether to re-price a fixture. prev maps each
// outcome leg to its price at the last analysis (a missing or zero entry
// means the leg has never been priced); curr carries the latest observed
// price per leg.
//
// The gate fires when the fixture is inside the crunch window, when any leg
// has no baseline yet, or when any leg moved more than the volatility
// threshold. A firing decision still consumes a rate limiter token; when
// the cap is exhausted the fixture is deferred to a later scan rather than
// analyzed late.
func (g *Gate) ShouldAnalyze(now, kickoff time.Time, prev, curr map[string]float64) Decision {
	reason, fire := g.evaluate(now, kickoff, prev, curr)
	if !fire {
		return Decision{Reason: reason}
	}
	if !g.limiter.Allow() {
		return Decision{Reason: "rate cap reached"}
	}
	return Decision{Fire: true, Reason: reason}
}

func (g *Gate) evaluate(now, kickoff time.Time, prev, curr map[string]float64) (string, bool) {
	if !kickoff.IsZero() {
		until := kickoff.Sub(now)
		if until >= 0 && until <= g.crunchWindow {
			return "inside crunch window", true
		}
	}

	// Sorted legs keep the reported reason stable across scans.
	legs := make([]string, 0, len(curr))
	for leg := range curr {
		legs = append(legs, leg)
	}
	sort.Strings(legs)

	for _, leg := range legs {
		prevPrice := prev[leg]
		if prevPrice == 0 {
			return "no baseline price", true
		}
		movePct := math.Abs(curr[leg]-prevPrice) / prevPrice * 100.0
		if movePct >= g.volatilityPct {
			return "price moved", true
		}
	}
	return "no significant movement", false
}
