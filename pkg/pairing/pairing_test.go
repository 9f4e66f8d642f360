package pairing

import (
	"testing"
	"time"
)

var kickoff = time.Date(2026, 3, 14, 20, 0, 0, 0, time.UTC)

func TestPair_SameOrientation(t *testing.T) {
	p := NewPairer()

	res := p.Pair(
		[]BookEvent{{ID: "b1", Home: "Wolves", Away: "Newcastle", StartTime: kickoff, HomeProb: 0.42, AwayProb: 0.58}},
		[]MarketEvent{{ID: "m1", Home: "Wolves", Away: "Newcastle", EndTime: kickoff, HomePrice: 0.40, AwayPrice: 0.60}},
	)

	if len(res.Pairs) != 1 {
		t.Fatalf("Pairs = %d, want 1", len(res.Pairs))
	}
	pair := res.Pairs[0]
	if pair.Swapped {
		t.Error("same orientation should not be flagged swapped")
	}
	if pair.HomePrice != 0.40 || pair.AwayPrice != 0.60 {
		t.Errorf("prices = (%v, %v), want (0.40, 0.60)", pair.HomePrice, pair.AwayPrice)
	}
	if pair.ID == "" {
		t.Error("pair should carry an ID")
	}
	if len(res.BookOrphans) != 0 || len(res.MarketOrphans) != 0 {
		t.Errorf("orphans = (%d, %d), want none", len(res.BookOrphans), len(res.MarketOrphans))
	}
}

func TestPair_SwappedOrientation(t *testing.T) {
	p := NewPairer()

	res := p.Pair(
		[]BookEvent{{ID: "b1", Home: "Wolves", Away: "Newcastle"}},
		[]MarketEvent{{ID: "m1", Home: "Newcastle", Away: "Wolves", HomePrice: 0.60, DrawPrice: 0.25, AwayPrice: 0.15}},
	)

	if len(res.Pairs) != 1 {
		t.Fatalf("Pairs = %d, want 1", len(res.Pairs))
	}
	pair := res.Pairs[0]
	if !pair.Swapped {
		t.Error("opposite orientation should be flagged swapped")
	}
	// Re-oriented into the book's frame: the market's away price belongs
	// to the book's home team.
	if pair.HomePrice != 0.15 || pair.AwayPrice != 0.60 {
		t.Errorf("prices = (%v, %v), want (0.15, 0.60)", pair.HomePrice, pair.AwayPrice)
	}
	if pair.DrawPrice != 0.25 {
		t.Errorf("DrawPrice = %v, want 0.25 (orientation-independent)", pair.DrawPrice)
	}
}

func TestPair_OrphansSurfaced(t *testing.T) {
	p := NewPairer()

	res := p.Pair(
		[]BookEvent{
			{ID: "b1", Home: "Wolves", Away: "Newcastle"},
			{ID: "b2", Home: "PSG", Away: "Atletico"},
		},
		[]MarketEvent{
			{ID: "m1", Home: "Wolves", Away: "Newcastle"},
			{ID: "m2", Home: "Kairat Almaty", Away: "Real Madrid"},
		},
	)

	if len(res.Pairs) != 1 {
		t.Fatalf("Pairs = %d, want 1", len(res.Pairs))
	}
	if len(res.BookOrphans) != 1 || res.BookOrphans[0].ID != "b2" {
		t.Errorf("BookOrphans = %+v, want b2", res.BookOrphans)
	}
	if len(res.MarketOrphans) != 1 || res.MarketOrphans[0].ID != "m2" {
		t.Errorf("MarketOrphans = %+v, want m2", res.MarketOrphans)
	}
}

func TestPair_NoDoubleConsumption(t *testing.T) {
	p := NewPairer()

	// Two book fixtures with the same team pair compete for one market.
	res := p.Pair(
		[]BookEvent{
			{ID: "b1", Home: "Wolves", Away: "Newcastle"},
			{ID: "b2", Home: "Wolves", Away: "Newcastle"},
		},
		[]MarketEvent{{ID: "m1", Home: "Wolves", Away: "Newcastle"}},
	)

	if len(res.Pairs) != 1 {
		t.Fatalf("Pairs = %d, want 1 (market consumed once)", len(res.Pairs))
	}
	if res.Pairs[0].Book.ID != "b1" {
		t.Errorf("paired book = %q, want b1 (first encountered)", res.Pairs[0].Book.ID)
	}
	if len(res.BookOrphans) != 1 || res.BookOrphans[0].ID != "b2" {
		t.Errorf("BookOrphans = %+v, want b2", res.BookOrphans)
	}
}

func TestPair_TieBreak(t *testing.T) {
	p := NewPairer()
	book := []BookEvent{{ID: "b1", Home: "Wolves", Away: "Newcastle"}}

	t.Run("latest end time wins", func(t *testing.T) {
		res := p.Pair(book, []MarketEvent{
			{ID: "early", Home: "Wolves", Away: "Newcastle", EndTime: kickoff, Liquidity: 9000},
			{ID: "late", Home: "Wolves", Away: "Newcastle", EndTime: kickoff.Add(time.Hour), Liquidity: 100},
		})
		if res.Pairs[0].Market.ID != "late" {
			t.Errorf("paired market = %q, want late", res.Pairs[0].Market.ID)
		}
	})

	t.Run("liquidity breaks equal end times", func(t *testing.T) {
		res := p.Pair(book, []MarketEvent{
			{ID: "thin", Home: "Wolves", Away: "Newcastle", EndTime: kickoff, Liquidity: 100},
			{ID: "deep", Home: "Wolves", Away: "Newcastle", EndTime: kickoff, Liquidity: 9000},
		})
		if res.Pairs[0].Market.ID != "deep" {
			t.Errorf("paired market = %q, want deep", res.Pairs[0].Market.ID)
		}
	})

	t.Run("input order breaks full ties", func(t *testing.T) {
		res := p.Pair(book, []MarketEvent{
			{ID: "first", Home: "Wolves", Away: "Newcastle", EndTime: kickoff, Liquidity: 100},
			{ID: "second", Home: "Wolves", Away: "Newcastle", EndTime: kickoff, Liquidity: 100},
		})
		if res.Pairs[0].Market.ID != "first" {
			t.Errorf("paired market = %q, want first", res.Pairs[0].Market.ID)
		}
	})
}

func TestPair_EmptyInputs(t *testing.T) {
	p := NewPairer()

	res := p.Pair(nil, nil)
	if len(res.Pairs) != 0 || len(res.BookOrphans) != 0 || len(res.MarketOrphans) != 0 {
		t.Errorf("empty inputs produced %+v", res)
	}

	res = p.Pair(nil, []MarketEvent{{ID: "m1", Home: "Wolves", Away: "Newcastle"}})
	if len(res.MarketOrphans) != 1 {
		t.Errorf("market with no books should orphan, got %+v", res)
	}
}
