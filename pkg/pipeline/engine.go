// Package pipeline wires the engine stages together: raw feed events go in,
// identity-resolved, de-vigged, paired, and EV-priced signals come out.
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/polydelta/polydelta/pkg/ev"
	"github.com/polydelta/polydelta/pkg/history"
	"github.com/polydelta/polydelta/pkg/identity"
	"github.com/polydelta/polydelta/pkg/metrics"
	"github.com/polydelta/polydelta/pkg/odds"
	"github.com/polydelta/polydelta/pkg/pairing"
	"github.com/polydelta/polydelta/pkg/trigger"
)

// RawBookEvent is one fixture as the bookmaker feed delivers it: raw team
// names and vigged quotes.
type RawBookEvent struct {
	ID        string       `json:"id"`
	Home      string       `json:"home"`
	Away      string       `json:"away"`
	StartTime time.Time    `json:"start_time"`
	Quotes    []odds.Quote `json:"quotes"`
}

// RawMarketEvent is one fixture as the prediction-market feed delivers it.
// Market prices are already probabilities, so no de-vig applies.
type RawMarketEvent struct {
	ID        string    `json:"id"`
	Home      string    `json:"home"`
	Away      string    `json:"away"`
	EndTime   time.Time `json:"end_time"`
	Liquidity float64   `json:"liquidity"`
	HomePrice float64   `json:"home_price"`
	DrawPrice float64   `json:"draw_price"`
	AwayPrice float64   `json:"away_price"`

	// Futures marks outright competition-winner markets, which are held
	// to the larger EV threshold.
	Futures bool `json:"futures"`
}

// BookFeed supplies bookmaker fixtures.
type BookFeed interface {
	FetchBookEvents(ctx context.Context) ([]RawBookEvent, error)
}

// MarketFeed supplies prediction-market fixtures.
type MarketFeed interface {
	FetchMarketEvents(ctx context.Context) ([]RawMarketEvent, error)
}

// RawOutrightEvent is one competition-winner field as the bookmaker feed
// delivers it: a quote per entrant, odds still carrying vig across the
// whole field.
type RawOutrightEvent struct {
	ID          string       `json:"id"`
	Competition string       `json:"competition"`
	Quotes      []odds.Quote `json:"quotes"`
}

// RawOutrightMarket is a single-entrant winner market on the prediction
// exchange. Price is the market's probability that the entrant wins.
type RawOutrightMarket struct {
	ID        string    `json:"id"`
	Entrant   string    `json:"entrant"`
	Price     float64   `json:"price"`
	EndTime   time.Time `json:"end_time"`
	Liquidity float64   `json:"liquidity"`
}

// OutrightBookFeed is implemented by book feeds that also carry
// competition-winner odds.
type OutrightBookFeed interface {
	FetchOutrightEvents(ctx context.Context) ([]RawOutrightEvent, error)
}

// OutrightMarketFeed is implemented by market feeds that also carry
// single-entrant winner markets.
type OutrightMarketFeed interface {
	FetchOutrightMarkets(ctx context.Context) ([]RawOutrightMarket, error)
}

// Signal is one actionable value opportunity. For outright signals Home
// carries the competition name, Away is empty, and Outcome is "outright".
type Signal struct {
	PairID    string          `json:"pair_id"`
	Home      string          `json:"home"`
	Away      string          `json:"away"`
	Outcome   string          `json:"outcome"` // home, draw, away, outright
	Team      string          `json:"team"`    // canonical, empty for draw
	Class     ev.MarketClass  `json:"class"`
	Result    *ev.Result      `json:"result"`
	Kickoff   time.Time       `json:"kickoff"`
	Liquidity float64         `json:"liquidity"`
}

// Unresolved is a raw name that failed identity resolution, surfaced so
// table gaps get fixed instead of silently shrinking coverage.
type Unresolved struct {
	Raw    string          `json:"raw"`
	Source identity.Source `json:"source"`
}

// Report summarizes one scan cycle.
type Report struct {
	BookEvents      int           `json:"book_events"`
	MarketEvents    int           `json:"market_events"`
	OutrightEvents  int           `json:"outright_events,omitempty"`
	OutrightMarkets int           `json:"outright_markets,omitempty"`
	Pairs           int           `json:"pairs"`
	BookOrphans     int           `json:"book_orphans"`
	MarketOrphans   int           `json:"market_orphans"`
	Deferred        int           `json:"deferred"` // pairs the trigger gate held back
	Signals         []Signal      `json:"signals"`
	Unresolved      []Unresolved  `json:"unresolved,omitempty"`
	Duration        time.Duration `json:"duration"`
}

// EngineConfig configures the pipeline engine.
type EngineConfig struct {
	Resolver *identity.ResolverConfig
	DeVig    *odds.DeVigConfig
	EV       *ev.Config
	Gate     *trigger.GateConfig

	// History receives a snapshot per priced outcome; nil keeps the
	// snapshots in process memory only.
	History history.Store
}

// Engine runs the pricing pipeline over a pair of feeds.
type Engine struct {
	resolver *identity.Resolver
	devigger *odds.DeVigger
	pairer   *pairing.Pairer
	calc     *ev.Calculator
	gate     *trigger.Gate
	recorder *history.Recorder
	metrics  *metrics.EngineMetrics

	bookFeed   BookFeed
	marketFeed MarketFeed

	mu         sync.RWMutex
	lastReport *Report

	// Callbacks
	onSignal func(Signal)
	onOrphan func(feed string, fixture interface{})
	onPair   func(pairing.MatchedPair)
	onPrice  func(key string, snap history.Snapshot)
	onCycle  func(*Report)
	onError  func(error)
}

// NewEngine creates a pipeline engine. A nil config field falls back to
// that component's defaults; metrics may be nil when nothing scrapes them.
func NewEngine(
	table *identity.Table,
	bookFeed BookFeed,
	marketFeed MarketFeed,
	config *EngineConfig,
	em *metrics.EngineMetrics,
) *Engine {
	if config == nil {
		config = &EngineConfig{}
	}

	return &Engine{
		resolver:   identity.NewResolver(table, config.Resolver),
		devigger:   odds.NewDeVigger(config.DeVig),
		pairer:     pairing.NewPairer(),
		calc:       ev.NewCalculator(config.EV),
		gate:       trigger.NewGate(config.Gate),
		recorder:   history.NewRecorder(config.History, nil),
		metrics:    em,
		bookFeed:   bookFeed,
		marketFeed: marketFeed,
	}
}

// OnSignal sets a callback invoked for each actionable signal.
func (e *Engine) OnSignal(fn func(Signal)) {
	e.onSignal = fn
}

// OnOrphan sets a callback invoked for each orphaned fixture.
func (e *Engine) OnOrphan(fn func(feed string, fixture interface{})) {
	e.onOrphan = fn
}

// OnPair sets a callback invoked for each matched pair.
func (e *Engine) OnPair(fn func(pairing.MatchedPair)) {
	e.onPair = fn
}

// OnPriceChange sets a callback invoked when a priced outcome moved
// materially since its last observation.
func (e *Engine) OnPriceChange(fn func(key string, snap history.Snapshot)) {
	e.onPrice = fn
}

// OnCycle sets a callback invoked with each completed cycle's report.
func (e *Engine) OnCycle(fn func(*Report)) {
	e.onCycle = fn
}

// OnError sets a callback for non-fatal errors.
func (e *Engine) OnError(fn func(error)) {
	e.onError = fn
}

// LastReport returns the most recent cycle report, if any.
func (e *Engine) LastReport() *Report {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastReport
}

// Run scans on a fixed interval until the context is cancelled. The first
// cycle runs immediately.
func (e *Engine) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := e.RunCycle(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			e.handleError(err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunCycle executes one full scan: fetch both feeds, resolve identities,
// de-vig the book side, pair the feeds, and price every pair the trigger
// gate admits.
func (e *Engine) RunCycle(ctx context.Context) (*Report, error) {
	start := time.Now()
	report := &Report{}

	rawBooks, err := e.bookFeed.FetchBookEvents(ctx)
	if err != nil {
		e.recordCycle("error", start)
		return nil, fmt.Errorf("fetching book events: %w", err)
	}
	rawMarkets, err := e.marketFeed.FetchMarketEvents(ctx)
	if err != nil {
		e.recordCycle("error", start)
		return nil, fmt.Errorf("fetching market events: %w", err)
	}
	report.BookEvents = len(rawBooks)
	report.MarketEvents = len(rawMarkets)

	books := e.resolveBooks(rawBooks, report)
	markets, futures := e.resolveMarkets(rawMarkets, report)

	res := e.pairer.Pair(books, markets)
	e.recordPairing(res, report)

	now := time.Now()
	for _, pair := range res.Pairs {
		e.pricePair(pair, futures[pair.Market.ID], now, report)
	}

	e.runOutrights(ctx, report)

	report.Duration = time.Since(start)
	e.recordCycle("ok", start)

	e.mu.Lock()
	e.lastReport = report
	e.mu.Unlock()

	if e.onCycle != nil {
		e.onCycle(report)
	}
	return report, nil
}

// resolveBooks resolves raw book fixtures to canonical teams and de-vigs
// their quotes. Fixtures with an unresolvable team are dropped from pairing
// but surfaced in the report.
func (e *Engine) resolveBooks(raw []RawBookEvent, report *Report) []pairing.BookEvent {
	books := make([]pairing.BookEvent, 0, len(raw))

	for _, rb := range raw {
		home, okHome := e.resolveName(rb.Home, identity.SourceBookmaker, report)
		away, okAway := e.resolveName(rb.Away, identity.SourceBookmaker, report)
		if !okHome || !okAway {
			continue
		}

		market := e.devigger.DevigQuotes(e.resolveQuotes(rb.Quotes, home, away))
		e.recordMarket(market, fmt.Sprintf("%s vs %s", rb.Home, rb.Away))

		books = append(books, pairing.BookEvent{
			ID:        rb.ID,
			Home:      home,
			Away:      away,
			StartTime: rb.StartTime,
			HomeProb:  market.Outcomes[home].Probability,
			DrawProb:  market.Outcomes[odds.CanonicalDraw].Probability,
			AwayProb:  market.Outcomes[away].Probability,
		})
	}
	return books
}

// resolveQuotes resolves each quote's outcome name so de-vig groups by
// canonical identity across bookmakers. A draw leg gets the fixed draw
// name; a team quote whose spelling the resolver cannot place falls back to
// the fixture's own resolved team for its side.
func (e *Engine) resolveQuotes(quotes []odds.Quote, home, away string) []odds.ResolvedQuote {
	out := make([]odds.ResolvedQuote, 0, len(quotes))
	for _, q := range quotes {
		rq := odds.ResolvedQuote{Quote: q}
		if q.Kind == odds.OutcomeDraw {
			rq.Canonical = odds.CanonicalDraw
			rq.Confidence = 100
			out = append(out, rq)
			continue
		}

		if r := e.resolver.Resolve(q.RawName, identity.SourceBookmaker); r.Resolved() {
			rq.Canonical = r.Canonical
			rq.Confidence = r.Confidence
		} else {
			switch q.Kind {
			case odds.OutcomeHome:
				rq.Canonical = home
			case odds.OutcomeAway:
				rq.Canonical = away
			}
		}
		out = append(out, rq)
	}
	return out
}

// recordMarket surfaces a de-vigged market's vig, outright skips, and
// discarded quotes.
func (e *Engine) recordMarket(market *odds.Market, desc string) {
	if e.metrics != nil {
		e.metrics.RecordVig(market.Vig)
		for range market.Skipped {
			e.metrics.RecordSkippedOutright()
		}
	}
	for _, dq := range market.Discarded {
		e.handleError(fmt.Errorf("%s: discarded quote %q from %s: %s", desc, dq.RawName, dq.Bookmaker, dq.Reason))
	}
}

// resolveMarkets resolves raw market fixtures and remembers which of them
// are futures, keyed by event ID.
func (e *Engine) resolveMarkets(raw []RawMarketEvent, report *Report) ([]pairing.MarketEvent, map[string]bool) {
	markets := make([]pairing.MarketEvent, 0, len(raw))
	futures := make(map[string]bool, len(raw))

	for _, rm := range raw {
		home, okHome := e.resolveName(rm.Home, identity.SourceMarket, report)
		away, okAway := e.resolveName(rm.Away, identity.SourceMarket, report)
		if !okHome || !okAway {
			continue
		}

		fixture := rm.Home + " vs " + rm.Away
		futures[rm.ID] = rm.Futures
		markets = append(markets, pairing.MarketEvent{
			ID:        rm.ID,
			Home:      home,
			Away:      away,
			EndTime:   rm.EndTime,
			Liquidity: rm.Liquidity,
			HomePrice: e.sanePrice(rm.HomePrice, fixture+" home"),
			DrawPrice: e.sanePrice(rm.DrawPrice, fixture+" draw"),
			AwayPrice: e.sanePrice(rm.AwayPrice, fixture+" away"),
		})
	}
	return markets, futures
}

// sanePrice discards market prices outside [0, 1]. Market prices are
// probabilities; anything else is feed corruption and must not reach EV as
// a plausible edge. Discards surface through OnError.
func (e *Engine) sanePrice(p float64, desc string) float64 {
	if p < 0 || p > 1 {
		e.handleError(fmt.Errorf("%s: price %v outside [0,1], discarded", desc, p))
		return 0
	}
	return p
}

func (e *Engine) resolveName(raw string, src identity.Source, report *Report) (string, bool) {
	r := e.resolver.Resolve(raw, src)
	if !r.Resolved() {
		report.Unresolved = append(report.Unresolved, Unresolved{Raw: raw, Source: src})
		if e.metrics != nil {
			e.metrics.RecordUnresolved(string(src))
		}
		return "", false
	}
	if e.metrics != nil {
		e.metrics.RecordResolution(string(src), string(r.Method), r.Confidence, r.Ambiguous)
	}
	return r.Canonical, true
}

// pricePair runs the trigger gate and, when it fires, computes EV for each
// outcome of one matched pair.
func (e *Engine) pricePair(pair pairing.MatchedPair, isFutures bool, now time.Time, report *Report) {
	class := ev.ClassMatch
	if isFutures {
		class = ev.ClassFutures
	}

	baseKey := pair.Book.Home + "|" + pair.Book.Away

	outcomes := []struct {
		name     string
		team     string
		trueProb float64
		price    float64
	}{
		{"home", pair.Book.Home, pair.Book.HomeProb, pair.HomePrice},
		{"draw", "", pair.Book.DrawProb, pair.DrawPrice},
		{"away", pair.Book.Away, pair.Book.AwayProb, pair.AwayPrice},
	}

	// The gate sees every priced leg: a move on any of them re-prices the
	// whole fixture.
	prev := make(map[string]float64, len(outcomes))
	curr := make(map[string]float64, len(outcomes))
	for _, o := range outcomes {
		if o.trueProb == 0 && o.price == 0 {
			continue
		}
		curr[o.name] = o.price
		if snap, ok := e.recorder.Last(baseKey + "|" + o.name); ok {
			prev[o.name] = snap.MarketPrice
		}
	}

	decision := e.gate.ShouldAnalyze(now, pair.Book.StartTime, prev, curr)
	if e.metrics != nil {
		e.metrics.RecordTrigger(decision.Fire, decision.Reason)
	}
	if !decision.Fire {
		report.Deferred++
		return
	}

	for _, o := range outcomes {
		if o.trueProb == 0 && o.price == 0 {
			continue // two-way market has no draw leg
		}

		result := e.calc.Compute(o.trueProb, o.price, class)
		if e.metrics != nil {
			e.metrics.RecordEV(string(class), o.name, result.EVBps, result.Actionable)
		}

		snap := history.Snapshot{
			PairKey:     baseKey + "|" + o.name,
			TrueProb:    o.trueProb,
			MarketPrice: o.price,
			EV:          evFloat(result),
			Taken:       now,
		}
		if e.recorder.Observe(snap) {
			if e.metrics != nil {
				e.metrics.RecordPriceChange()
			}
			if e.onPrice != nil {
				e.onPrice(snap.PairKey, snap)
			}
		}

		if !result.Actionable {
			continue
		}
		signal := Signal{
			PairID:    pair.ID,
			Home:      pair.Book.Home,
			Away:      pair.Book.Away,
			Outcome:   o.name,
			Team:      o.team,
			Class:     class,
			Result:    result,
			Kickoff:   pair.Book.StartTime,
			Liquidity: pair.Market.Liquidity,
		}
		report.Signals = append(report.Signals, signal)
		if e.onSignal != nil {
			e.onSignal(signal)
		}
	}
}

func (e *Engine) recordPairing(res *pairing.Result, report *Report) {
	report.Pairs = len(res.Pairs)
	report.BookOrphans = len(res.BookOrphans)
	report.MarketOrphans = len(res.MarketOrphans)

	swapped := 0
	for _, p := range res.Pairs {
		if p.Swapped {
			swapped++
		}
	}
	if e.metrics != nil {
		e.metrics.RecordPairing(len(res.Pairs), swapped, len(res.BookOrphans), len(res.MarketOrphans))
	}

	if e.onPair != nil {
		for _, p := range res.Pairs {
			e.onPair(p)
		}
	}
	if e.onOrphan != nil {
		for _, b := range res.BookOrphans {
			e.onOrphan("book", b)
		}
		for _, m := range res.MarketOrphans {
			e.onOrphan("market", m)
		}
	}
}

// runOutrights prices competition-winner fields when both feeds carry
// them. The lane is optional: feeds that serve only fixtures skip it, and a
// fetch failure here surfaces through OnError without aborting the fixture
// cycle.
func (e *Engine) runOutrights(ctx context.Context, report *Report) {
	ob, okBook := e.bookFeed.(OutrightBookFeed)
	om, okMarket := e.marketFeed.(OutrightMarketFeed)
	if !okBook || !okMarket {
		return
	}

	books, err := ob.FetchOutrightEvents(ctx)
	if err != nil {
		e.handleError(fmt.Errorf("fetching outright events: %w", err))
		return
	}
	markets, err := om.FetchOutrightMarkets(ctx)
	if err != nil {
		e.handleError(fmt.Errorf("fetching outright markets: %w", err))
		return
	}
	if len(books) == 0 || len(markets) == 0 {
		return
	}
	report.OutrightEvents = len(books)
	report.OutrightMarkets = len(markets)

	byEntrant := make(map[string]RawOutrightMarket, len(markets))
	for _, m := range markets {
		canonical, ok := e.resolveName(m.Entrant, identity.SourceMarket, report)
		if !ok {
			continue
		}
		byEntrant[canonical] = m
	}

	now := time.Now()
	for _, book := range books {
		e.priceOutrights(book, byEntrant, now, report)
	}
}

// priceOutrights de-vigs one winner field and compares each entrant's fair
// probability against its listed market, under the futures EV threshold.
// Entrants the exchange does not list are left unpriced.
func (e *Engine) priceOutrights(book RawOutrightEvent, byEntrant map[string]RawOutrightMarket, now time.Time, report *Report) {
	quotes := make([]odds.ResolvedQuote, 0, len(book.Quotes))
	for _, q := range book.Quotes {
		canonical, ok := e.resolveName(q.RawName, identity.SourceBookmaker, report)
		if !ok {
			continue
		}
		quotes = append(quotes, odds.ResolvedQuote{Quote: q, Canonical: canonical})
	}

	market := e.devigger.DevigQuotes(quotes)
	e.recordMarket(market, book.Competition)

	entrants := make([]string, 0, len(market.Outcomes))
	for canonical := range market.Outcomes {
		entrants = append(entrants, canonical)
	}
	sort.Strings(entrants)

	for _, canonical := range entrants {
		listing, ok := byEntrant[canonical]
		if !ok {
			continue
		}
		price := e.sanePrice(listing.Price, book.Competition+" "+canonical)
		key := book.Competition + "|" + canonical

		prev := map[string]float64{}
		if snap, ok := e.recorder.Last(key); ok {
			prev["winner"] = snap.MarketPrice
		}
		decision := e.gate.ShouldAnalyze(now, time.Time{}, prev, map[string]float64{"winner": price})
		if e.metrics != nil {
			e.metrics.RecordTrigger(decision.Fire, decision.Reason)
		}
		if !decision.Fire {
			report.Deferred++
			continue
		}

		result := e.calc.Compute(market.Outcomes[canonical].Probability, price, ev.ClassFutures)
		if e.metrics != nil {
			e.metrics.RecordEV(string(ev.ClassFutures), "outright", result.EVBps, result.Actionable)
		}

		snap := history.Snapshot{
			PairKey:     key,
			TrueProb:    market.Outcomes[canonical].Probability,
			MarketPrice: price,
			EV:          evFloat(result),
			Taken:       now,
		}
		if e.recorder.Observe(snap) {
			if e.metrics != nil {
				e.metrics.RecordPriceChange()
			}
			if e.onPrice != nil {
				e.onPrice(key, snap)
			}
		}

		if !result.Actionable {
			continue
		}
		signal := Signal{
			PairID:    listing.ID,
			Home:      book.Competition,
			Outcome:   "outright",
			Team:      canonical,
			Class:     ev.ClassFutures,
			Result:    result,
			Liquidity: listing.Liquidity,
		}
		report.Signals = append(report.Signals, signal)
		if e.onSignal != nil {
			e.onSignal(signal)
		}
	}
}

func (e *Engine) recordCycle(status string, start time.Time) {
	if e.metrics != nil {
		e.metrics.RecordCycle(status, time.Since(start).Seconds())
	}
}

func (e *Engine) handleError(err error) {
	if e.onError != nil {
		e.onError(err)
	}
}

func evFloat(r *ev.Result) float64 {
	f, _ := r.EV.Float64()
	return f
}
