package odds

import (
	"math"
	"testing"
)

func approx(t *testing.T, got, want, eps float64, label string) {
	t.Helper()
	if math.Abs(got-want) > eps {
		t.Errorf("%s = %v, want %v (±%v)", label, got, want, eps)
	}
}

// resolved wraps quotes without a canonical identity, so grouping falls
// back to the raw spelling.
func resolved(quotes ...Quote) []ResolvedQuote {
	out := make([]ResolvedQuote, len(quotes))
	for i, q := range quotes {
		out[i] = ResolvedQuote{Quote: q}
	}
	return out
}

func TestImpliedProbability(t *testing.T) {
	tests := []struct {
		odds    float64
		want    float64
		wantErr bool
	}{
		{2.0, 0.5, false},
		{1.25, 0.8, false},
		{10.0, 0.1, false},
		{1.0, 0, true},  // void price
		{0.5, 0, true},  // below certainty
		{-2.0, 0, true}, // nonsense
		{0, 0, true},
	}

	for _, tt := range tests {
		got, err := ImpliedProbability(tt.odds)
		if (err != nil) != tt.wantErr {
			t.Errorf("ImpliedProbability(%v) error = %v, wantErr %v", tt.odds, err, tt.wantErr)
			continue
		}
		if !tt.wantErr {
			approx(t, got, tt.want, 1e-9, "ImpliedProbability")
		}
	}
}

func TestDevig_TwoWay(t *testing.T) {
	d := NewDeVigger(nil)

	// 1.91 / 1.91 is the classic -110/-110 market: 4.7% overround,
	// fair 50/50 after normalization.
	fair := d.Devig(map[string]float64{
		"over":  1 / 1.91,
		"under": 1 / 1.91,
	})

	approx(t, fair["over"], 0.5, 1e-9, "over")
	approx(t, fair["under"], 0.5, 1e-9, "under")
	if !d.SumsToFair(fair) {
		t.Error("fair probabilities should sum to 1.0")
	}
}

func TestDevig_ThreeWay(t *testing.T) {
	d := NewDeVigger(nil)

	implied := map[string]float64{
		"home": 1 / 2.10,
		"draw": 1 / 3.40,
		"away": 1 / 3.60,
	}
	fair := d.Devig(implied)

	if !d.SumsToFair(fair) {
		total := fair["home"] + fair["draw"] + fair["away"]
		t.Fatalf("three-way fair probabilities sum to %v, want 1.0", total)
	}

	// Proportions are preserved: home/draw ratio unchanged by devig.
	wantRatio := implied["home"] / implied["draw"]
	approx(t, fair["home"]/fair["draw"], wantRatio, 1e-9, "home/draw ratio")
}

func TestDevig_Idempotent(t *testing.T) {
	d := NewDeVigger(nil)

	once := d.Devig(map[string]float64{
		"home": 1 / 2.50,
		"away": 1 / 1.80,
	})
	twice := d.Devig(once)

	for outcome := range once {
		approx(t, twice[outcome], once[outcome], 1e-12, "devig(devig) "+outcome)
	}
}

func TestDevig_EdgeCases(t *testing.T) {
	d := NewDeVigger(nil)

	if fair := d.Devig(nil); len(fair) != 0 {
		t.Errorf("Devig(nil) = %v, want empty", fair)
	}
	if fair := d.Devig(map[string]float64{}); len(fair) != 0 {
		t.Errorf("Devig(empty) = %v, want empty", fair)
	}
	if fair := d.Devig(map[string]float64{"a": 0, "b": 0}); len(fair) != 0 {
		t.Errorf("Devig(all zero) = %v, want empty", fair)
	}
	if d.SumsToFair(map[string]float64{}) {
		t.Error("empty market should not be fair")
	}
}

func TestDevigQuotes_PreferredAveraging(t *testing.T) {
	d := NewDeVigger(nil)

	market := d.DevigQuotes(resolved(
		Quote{RawName: "Wolves", Bookmaker: "DraftKings", Kind: OutcomeHome, DecimalOdds: 2.50},
		Quote{RawName: "Wolves", Bookmaker: "FanDuel", Kind: OutcomeHome, DecimalOdds: 2.60},
		Quote{RawName: "Wolves", Bookmaker: "ShadyBook", Kind: OutcomeHome, DecimalOdds: 5.00},
		Quote{RawName: "Newcastle", Bookmaker: "DraftKings", Kind: OutcomeAway, DecimalOdds: 1.80},
	))

	wolves, ok := market.Outcomes["Wolves"]
	if !ok {
		t.Fatal("missing Wolves outcome")
	}
	// Only the two preferred books are averaged: ShadyBook's outlier price
	// never enters the mean.
	if wolves.Quotes != 2 {
		t.Errorf("Wolves quote count = %d, want 2 (preferred only)", wolves.Quotes)
	}

	meanWolves := (1/2.50 + 1/2.60) / 2
	meanNewcastle := 1 / 1.80
	total := meanWolves + meanNewcastle
	approx(t, wolves.Probability, meanWolves/total, 1e-9, "Wolves fair probability")
	approx(t, market.Outcomes["Newcastle"].Probability, meanNewcastle/total, 1e-9, "Newcastle fair probability")

	sum := wolves.Probability + market.Outcomes["Newcastle"].Probability
	approx(t, sum, 1.0, 1e-6, "market probability sum")
}

func TestDevigQuotes_FallbackWhenNoPreferredBook(t *testing.T) {
	d := NewDeVigger(nil)

	market := d.DevigQuotes(resolved(
		Quote{RawName: "Wolves", Bookmaker: "LocalBook", Kind: OutcomeHome, DecimalOdds: 2.00},
		Quote{RawName: "Newcastle", Bookmaker: "LocalBook", Kind: OutcomeAway, DecimalOdds: 2.00},
	))
	if len(market.Outcomes) != 2 {
		t.Fatalf("Outcomes = %d, want 2 (non-preferred books still price the market)", len(market.Outcomes))
	}
	approx(t, market.Outcomes["Wolves"].Probability, 0.5, 1e-9, "Wolves fair probability")
}

func TestDevigQuotes_RepresentativeBookmaker(t *testing.T) {
	d := NewDeVigger(nil)

	market := d.DevigQuotes(resolved(
		Quote{RawName: "PSG", Bookmaker: "DraftKings", Kind: OutcomeOutright, DecimalOdds: 4.00}, // 0.250
		Quote{RawName: "PSG", Bookmaker: "FanDuel", Kind: OutcomeOutright, DecimalOdds: 5.00},    // 0.200
		Quote{RawName: "PSG", Bookmaker: "BetMGM", Kind: OutcomeOutright, DecimalOdds: 4.40},     // 0.227, closest to the 0.226 mean
	))
	if got := market.Outcomes["PSG"].Bookmaker; got != "BetMGM" {
		t.Errorf("representative bookmaker = %q, want BetMGM", got)
	}
}

func TestDevigQuotes_OutrightCap(t *testing.T) {
	d := NewDeVigger(nil)

	market := d.DevigQuotes(resolved(
		Quote{RawName: "PSG", Bookmaker: "DraftKings", Kind: OutcomeOutright, DecimalOdds: 1.0 / 0.72}, // 72% favorite
		Quote{RawName: "Atletico", Bookmaker: "DraftKings", Kind: OutcomeOutright, DecimalOdds: 8.00},
		Quote{RawName: "Wolves", Bookmaker: "DraftKings", Kind: OutcomeOutright, DecimalOdds: 12.00},
	))

	if _, ok := market.Outcomes["PSG"]; ok {
		t.Error("72% outright favorite should be dropped by the probability cap")
	}
	if len(market.Skipped) != 1 || market.Skipped[0].RawName != "PSG" {
		t.Fatalf("Skipped = %+v, want single PSG entry", market.Skipped)
	}
	approx(t, market.Skipped[0].Probability, 0.72, 1e-9, "skipped probability")

	// The survivors are still normalized among themselves.
	sum := market.Outcomes["Atletico"].Probability + market.Outcomes["Wolves"].Probability
	approx(t, sum, 1.0, 1e-6, "post-skip probability sum")
}

func TestDevigQuotes_GroupsByCanonical(t *testing.T) {
	d := NewDeVigger(nil)

	// Two books spell the same two-way market differently. The canonical
	// identity merges each side into one group before averaging.
	market := d.DevigQuotes([]ResolvedQuote{
		{Quote: Quote{RawName: "Wolves", Bookmaker: "DraftKings", Kind: OutcomeHome, DecimalOdds: 2.00}, Canonical: "Wolves"},
		{Quote: Quote{RawName: "Newcastle", Bookmaker: "DraftKings", Kind: OutcomeAway, DecimalOdds: 2.00}, Canonical: "Newcastle"},
		{Quote: Quote{RawName: "Wolverhampton Wanderers", Bookmaker: "FanDuel", Kind: OutcomeHome, DecimalOdds: 2.50}, Canonical: "Wolves"},
		{Quote: Quote{RawName: "Newcastle United", Bookmaker: "FanDuel", Kind: OutcomeAway, DecimalOdds: 1.60}, Canonical: "Newcastle"},
	})

	if len(market.Outcomes) != 2 {
		t.Fatalf("Outcomes = %v, want the two canonical teams", market.Outcomes)
	}
	wolves := market.Outcomes["Wolves"]
	newcastle := market.Outcomes["Newcastle"]
	if wolves.Quotes != 2 || newcastle.Quotes != 2 {
		t.Errorf("quote counts = (%d, %d), want both spellings merged into 2 each",
			wolves.Quotes, newcastle.Quotes)
	}

	// Means: Wolves (0.5+0.4)/2 = 0.45, Newcastle (0.5+0.625)/2 = 0.5625.
	meanWolves := (1/2.00 + 1/2.50) / 2
	meanNewcastle := (1/2.00 + 1/1.60) / 2
	total := meanWolves + meanNewcastle
	approx(t, wolves.Probability, meanWolves/total, 1e-9, "Wolves fair probability")
	approx(t, newcastle.Probability, meanNewcastle/total, 1e-9, "Newcastle fair probability")
	approx(t, wolves.Probability+newcastle.Probability, 1.0, 1e-6, "probability sum")
}

func TestDevigQuotes_DiscardsVoidQuote(t *testing.T) {
	d := NewDeVigger(nil)

	// One stale quote at impossible odds. Only that quote is dropped; the
	// rest of the market still prices.
	market := d.DevigQuotes(resolved(
		Quote{RawName: "Wolves", Bookmaker: "StaleBook", Kind: OutcomeHome, DecimalOdds: 0.90},
		Quote{RawName: "Wolves", Bookmaker: "DraftKings", Kind: OutcomeHome, DecimalOdds: 2.50},
		Quote{RawName: "Newcastle", Bookmaker: "DraftKings", Kind: OutcomeAway, DecimalOdds: 1.80},
	))

	if len(market.Outcomes) != 2 {
		t.Fatalf("Outcomes = %v, want a priced 2-way market", market.Outcomes)
	}
	if market.Outcomes["Wolves"].Quotes != 1 {
		t.Errorf("Wolves quote count = %d, want 1 (void quote excluded)", market.Outcomes["Wolves"].Quotes)
	}
	if len(market.Discarded) != 1 {
		t.Fatalf("Discarded = %+v, want the single stale quote", market.Discarded)
	}
	if dq := market.Discarded[0]; dq.Bookmaker != "StaleBook" || dq.RawName != "Wolves" {
		t.Errorf("discarded quote = %+v, want Wolves from StaleBook", dq)
	}

	sum := market.Outcomes["Wolves"].Probability + market.Outcomes["Newcastle"].Probability
	approx(t, sum, 1.0, 1e-6, "probability sum after discard")

	// A market where every quote is void prices nothing but still reports
	// the discards.
	empty := d.DevigQuotes(resolved(
		Quote{RawName: "Wolves", Bookmaker: "StaleBook", Kind: OutcomeHome, DecimalOdds: 1.0},
	))
	if len(empty.Outcomes) != 0 || len(empty.Discarded) != 1 {
		t.Errorf("all-void market = %+v, want no outcomes and one discard", empty)
	}
}

func TestVigPercentage(t *testing.T) {
	// -110/-110: each side implies 52.36%, overround 4.71%.
	vig := VigPercentage([]float64{1 / 1.91, 1 / 1.91})
	approx(t, vig, 4.712, 0.01, "two-way vig")

	if got := VigPercentage([]float64{0.5, 0.5}); got != 0 {
		t.Errorf("fair market vig = %v, want 0", got)
	}
	if got := VigPercentage(nil); got != 0 {
		t.Errorf("empty market vig = %v, want 0", got)
	}
}
