// Package ev prices matched pairs: given a fair probability from the
// bookmaker side and a market price from the prediction-market side, it
// computes the expected value of buying at that price.
package ev

import "github.com/shopspring/decimal"

// MarketClass selects which actionability threshold applies.
type MarketClass string

const (
	// ClassFutures covers outright competition winners, where prices are
	// noisier and a larger edge is demanded.
	ClassFutures MarketClass = "futures"

	// ClassMatch covers single-fixture markets.
	ClassMatch MarketClass = "match"
)

// Config configures the calculator.
type Config struct {
	// FuturesThreshold is the minimum EV for an actionable futures
	// signal. Default: 0.05 (5%).
	FuturesThreshold float64

	// MatchThreshold is the minimum EV for an actionable single-match
	// signal. Default: 0.02 (2%).
	MatchThreshold float64
}

// DefaultConfig returns default configuration.
func DefaultConfig() *Config {
	return &Config{
		FuturesThreshold: 0.05,
		MatchThreshold:   0.02,
	}
}

// Result is one EV computation.
type Result struct {
	TrueProb    decimal.Decimal `json:"true_prob"`
	MarketPrice decimal.Decimal `json:"market_price"`

	// EV is the fractional expected value of buying at MarketPrice:
	// (trueProb - price) / price. Positive means the market underprices
	// the outcome.
	EV    decimal.Decimal `json:"ev"`
	EVBps decimal.Decimal `json:"ev_bps"`

	Class      MarketClass `json:"class"`
	Actionable bool        `json:"actionable"`
	Reason     string      `json:"reason,omitempty"`
}

// Calculator computes expected value for matched pairs. Money math runs on
// decimals so that threshold comparisons never wobble on float rounding.
type Calculator struct {
	futuresThreshold decimal.Decimal
	matchThreshold   decimal.Decimal
}

// NewCalculator creates a calculator.
func NewCalculator(config *Config) *Calculator {
	if config == nil {
		config = DefaultConfig()
	}
	defaults := DefaultConfig()
	if config.FuturesThreshold == 0 {
		config.FuturesThreshold = defaults.FuturesThreshold
	}
	if config.MatchThreshold == 0 {
		config.MatchThreshold = defaults.MatchThreshold
	}

	return &Calculator{
		futuresThreshold: decimal.NewFromFloat(config.FuturesThreshold),
		matchThreshold:   decimal.NewFromFloat(config.MatchThreshold),
	}
}

// Threshold returns the actionability threshold for a market class.
func (c *Calculator) Threshold(class MarketClass) decimal.Decimal {
	if class == ClassFutures {
		return c.futuresThreshold
	}
	return c.matchThreshold
}

// Compute calculates EV for one outcome.
//
// A non-positive market price means the market has no real offer on this
// outcome. That is a data condition, not an error: the result carries EV 0
// with a reason, so callers can log it and move on.
func (c *Calculator) Compute(trueProb, marketPrice float64, class MarketClass) *Result {
	q := decimal.NewFromFloat(trueProb)
	p := decimal.NewFromFloat(marketPrice)

	result := &Result{
		TrueProb:    q,
		MarketPrice: p,
		Class:       class,
	}

	if p.LessThanOrEqual(decimal.Zero) {
		result.Reason = "no market price"
		return result
	}

	// EV = (q - p) / p
	result.EV = q.Sub(p).Div(p)
	result.EVBps = result.EV.Mul(decimal.NewFromInt(10000))

	threshold := c.Threshold(class)
	if result.EV.LessThan(threshold) {
		result.Reason = "EV below threshold"
		return result
	}

	result.Actionable = true
	return result
}

// Actionable reports whether a raw EV clears the class threshold. Used by
// callers that already hold an EV and only need the gate.
func (c *Calculator) Actionable(ev float64, class MarketClass) bool {
	return !decimal.NewFromFloat(ev).LessThan(c.Threshold(class))
}
