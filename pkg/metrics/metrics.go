// Package metrics provides Prometheus metrics for the pricing engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

// EngineMetrics collects and exposes pricing-engine Prometheus metrics.
// It owns a private registry so tests can run several instances without
// default-registry collisions.
type EngineMetrics struct {
	registry *prometheus.Registry

	// Identity resolution
	ResolutionsTotal     *prometheus.CounterVec
	UnresolvedTotal      *prometheus.CounterVec
	AmbiguousTotal       prometheus.Counter
	ResolutionConfidence *prometheus.HistogramVec

	// Pairing
	PairsTotal   prometheus.Counter
	OrphansTotal *prometheus.CounterVec
	SwappedTotal prometheus.Counter
	ActivePairs  prometheus.Gauge

	// Pricing
	VigPct           prometheus.Histogram
	SkippedOutrights prometheus.Counter
	EVBps            *prometheus.HistogramVec
	SignalsTotal     *prometheus.CounterVec

	// Throttling and history
	TriggerDecisions *prometheus.CounterVec
	PriceChanges     prometheus.Counter

	// Scan cycle
	CycleRuns     *prometheus.CounterVec
	CycleDuration prometheus.Histogram
}

// NewEngineMetrics creates a new engine metrics collector.
func NewEngineMetrics() *EngineMetrics {
	registry := prometheus.NewRegistry()

	em := &EngineMetrics{
		registry: registry,

		ResolutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "polydelta_resolutions_total",
				Help: "Names resolved to a canonical entity",
			},
			[]string{"source", "method"},
		),
		UnresolvedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "polydelta_unresolved_total",
				Help: "Names that failed identity resolution",
			},
			[]string{"source"},
		),
		AmbiguousTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "polydelta_ambiguous_resolutions_total",
				Help: "Fuzzy resolutions that tied and were tie-broken",
			},
		),
		ResolutionConfidence: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "polydelta_resolution_confidence",
				Help:    "Confidence score of successful resolutions",
				Buckets: []float64{75, 80, 85, 90, 95, 100},
			},
			[]string{"method"},
		),

		PairsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "polydelta_pairs_total",
				Help: "Book fixtures matched to market fixtures",
			},
		),
		OrphansTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "polydelta_orphans_total",
				Help: "Fixtures present in one feed and missing from the other",
			},
			[]string{"feed"},
		),
		SwappedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "polydelta_swapped_pairs_total",
				Help: "Pairs where the market listed teams in opposite orientation",
			},
		),
		ActivePairs: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "polydelta_active_pairs",
				Help: "Matched pairs in the most recent scan",
			},
		),

		VigPct: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "polydelta_market_vig_pct",
				Help:    "Bookmaker overround percentage before normalization",
				Buckets: []float64{0, 1, 2, 3, 4, 5, 7.5, 10, 15, 25},
			},
		),
		SkippedOutrights: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "polydelta_skipped_outrights_total",
				Help: "Outright entrants dropped by the probability cap",
			},
		),
		EVBps: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "polydelta_ev_bps",
				Help:    "Computed expected value in basis points",
				Buckets: []float64{-1000, -500, -200, -100, 0, 100, 200, 500, 1000, 2000},
			},
			[]string{"class"},
		),
		SignalsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "polydelta_signals_total",
				Help: "Actionable value signals emitted",
			},
			[]string{"class", "outcome"},
		),

		TriggerDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "polydelta_trigger_decisions_total",
				Help: "Gate decisions on whether to re-price a fixture",
			},
			[]string{"fired", "reason"},
		),
		PriceChanges: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "polydelta_price_changes_total",
				Help: "Observations that moved past the change threshold",
			},
		),

		CycleRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "polydelta_cycle_runs_total",
				Help: "Scan cycles by completion status",
			},
			[]string{"status"},
		),
		CycleDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "polydelta_cycle_duration_seconds",
				Help:    "Wall time of one full scan cycle",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
			},
		),
	}

	em.registerAll()
	return em
}

func (em *EngineMetrics) registerAll() {
	em.registry.MustRegister(
		em.ResolutionsTotal,
		em.UnresolvedTotal,
		em.AmbiguousTotal,
		em.ResolutionConfidence,
		em.PairsTotal,
		em.OrphansTotal,
		em.SwappedTotal,
		em.ActivePairs,
		em.VigPct,
		em.SkippedOutrights,
		em.EVBps,
		em.SignalsTotal,
		em.TriggerDecisions,
		em.PriceChanges,
		em.CycleRuns,
		em.CycleDuration,
	)
}

// Registry returns the underlying Prometheus registry.
func (em *EngineMetrics) Registry() *prometheus.Registry {
	return em.registry
}

// Handler returns an HTTP handler serving the /metrics endpoint.
func (em *EngineMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(em.registry, promhttp.HandlerOpts{})
}

// RecordResolution records one identity resolution outcome.
func (em *EngineMetrics) RecordResolution(source, method string, confidence int, ambiguous bool) {
	em.ResolutionsTotal.WithLabelValues(source, method).Inc()
	em.ResolutionConfidence.WithLabelValues(method).Observe(float64(confidence))
	if ambiguous {
		em.AmbiguousTotal.Inc()
	}
}

// RecordUnresolved records a name that failed resolution.
func (em *EngineMetrics) RecordUnresolved(source string) {
	em.UnresolvedTotal.WithLabelValues(source).Inc()
}

// RecordPairing records the outcome of one pairing pass.
func (em *EngineMetrics) RecordPairing(pairs, swapped, bookOrphans, marketOrphans int) {
	em.PairsTotal.Add(float64(pairs))
	em.SwappedTotal.Add(float64(swapped))
	em.OrphansTotal.WithLabelValues("book").Add(float64(bookOrphans))
	em.OrphansTotal.WithLabelValues("market").Add(float64(marketOrphans))
	em.ActivePairs.Set(float64(pairs))
}

// RecordVig records the overround of one de-vigged market.
func (em *EngineMetrics) RecordVig(vigPct float64) {
	em.VigPct.Observe(vigPct)
}

// RecordSkippedOutright records an entrant dropped by the probability cap.
func (em *EngineMetrics) RecordSkippedOutright() {
	em.SkippedOutrights.Inc()
}

// RecordEV records a computed EV; actionable results also count as signals.
func (em *EngineMetrics) RecordEV(class, outcome string, evBps decimal.Decimal, actionable bool) {
	bps, _ := evBps.Float64()
	em.EVBps.WithLabelValues(class).Observe(bps)
	if actionable {
		em.SignalsTotal.WithLabelValues(class, outcome).Inc()
	}
}

// RecordTrigger records one gate decision.
func (em *EngineMetrics) RecordTrigger(fired bool, reason string) {
	label := "false"
	if fired {
		label = "true"
	}
	em.TriggerDecisions.WithLabelValues(label, reason).Inc()
}

// RecordPriceChange records an observation that moved past the change
// threshold.
func (em *EngineMetrics) RecordPriceChange() {
	em.PriceChanges.Inc()
}

// RecordCycle records one completed scan cycle.
func (em *EngineMetrics) RecordCycle(status string, durationSec float64) {
	em.CycleRuns.WithLabelValues(status).Inc()
	em.CycleDuration.Observe(durationSec)
}
