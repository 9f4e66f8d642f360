package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/polydelta/polydelta/pkg/odds"
)

func TestBookClient_FetchBookEvents(t *testing.T) {
	const payload = `[
	  {
	    "id": "evt1",
	    "home_team": "Wolverhampton Wanderers",
	    "away_team": "Newcastle United",
	    "commence_time": "2026-03-14T20:00:00Z",
	    "bookmakers": [
	      {
	        "key": "draftkings",
	        "markets": [
	          {
	            "key": "h2h",
	            "outcomes": [
	              {"name": "Wolverhampton Wanderers", "price": 2.50},
	              {"name": "Newcastle United", "price": 1.80},
	              {"name": "Draw", "price": 3.40}
	            ]
	          },
	          {
	            "key": "totals",
	            "outcomes": [{"name": "Over", "price": 1.90}]
	          }
	        ]
	      }
	    ]
	  }
	]`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("markets"); got != "h2h" {
			t.Errorf("markets param = %q, want h2h", got)
		}
		if got := r.URL.Query().Get("apiKey"); got != "test-key" {
			t.Errorf("apiKey param = %q, want test-key", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(payload))
	}))
	defer srv.Close()

	c := NewBookClient("test-key", WithBookBaseURL(srv.URL))
	events, err := c.FetchBookEvents(context.Background())
	if err != nil {
		t.Fatalf("FetchBookEvents: %v", err)
	}

	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	e := events[0]
	if e.Home != "Wolverhampton Wanderers" || e.Away != "Newcastle United" {
		t.Errorf("teams = %q / %q", e.Home, e.Away)
	}
	if !e.StartTime.Equal(time.Date(2026, 3, 14, 20, 0, 0, 0, time.UTC)) {
		t.Errorf("StartTime = %v", e.StartTime)
	}

	// Only h2h outcomes become quotes; the totals market is ignored.
	if len(e.Quotes) != 3 {
		t.Fatalf("quotes = %d, want 3", len(e.Quotes))
	}
	kinds := map[odds.OutcomeKind]float64{}
	for _, q := range e.Quotes {
		kinds[q.Kind] = q.DecimalOdds
		if q.Bookmaker != "draftkings" {
			t.Errorf("bookmaker = %q, want draftkings", q.Bookmaker)
		}
	}
	if kinds[odds.OutcomeHome] != 2.50 || kinds[odds.OutcomeAway] != 1.80 || kinds[odds.OutcomeDraw] != 3.40 {
		t.Errorf("quote kinds = %v", kinds)
	}
}

func TestBookClient_FetchOutrightEvents(t *testing.T) {
	const payload = `[
	  {
	    "id": "out1",
	    "sport_title": "Premier League",
	    "bookmakers": [
	      {
	        "key": "draftkings",
	        "markets": [
	          {
	            "key": "outrights",
	            "outcomes": [
	              {"name": "Wolverhampton Wanderers", "price": 9.00},
	              {"name": "Newcastle United", "price": 4.50}
	            ]
	          }
	        ]
	      }
	    ]
	  }
	]`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("markets"); got != "outrights" {
			t.Errorf("markets param = %q, want outrights", got)
		}
		if got := r.URL.Path; got != "/v4/sports/soccer_epl_winner/odds" {
			t.Errorf("path = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(payload))
	}))
	defer srv.Close()

	c := NewBookClient("test-key",
		WithBookBaseURL(srv.URL),
		WithBookOutrights("soccer_epl_winner"))
	events, err := c.FetchOutrightEvents(context.Background())
	if err != nil {
		t.Fatalf("FetchOutrightEvents: %v", err)
	}

	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	e := events[0]
	if e.Competition != "Premier League" {
		t.Errorf("Competition = %q", e.Competition)
	}
	if len(e.Quotes) != 2 {
		t.Fatalf("quotes = %d, want 2", len(e.Quotes))
	}
	for _, q := range e.Quotes {
		if q.Kind != odds.OutcomeOutright {
			t.Errorf("quote %q kind = %v, want outright", q.RawName, q.Kind)
		}
	}
}

func TestBookClient_OutrightsOffByDefault(t *testing.T) {
	c := NewBookClient("test-key", WithBookBaseURL("http://unreachable.invalid"))
	events, err := c.FetchOutrightEvents(context.Background())
	if err != nil {
		t.Fatalf("FetchOutrightEvents: %v", err)
	}
	if events != nil {
		t.Errorf("events = %v, want nil with no outright sport", events)
	}
}

func TestBookClient_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewBookClient("bad-key", WithBookBaseURL(srv.URL))
	if _, err := c.FetchBookEvents(context.Background()); err == nil {
		t.Error("want error on non-200 response")
	}
}

func TestMarketClient_FetchMarketEvents(t *testing.T) {
	// Outcome names and prices arrive as JSON arrays encoded inside
	// strings, and liquidity as a stringified number.
	const payload = `[
	  {
	    "id": "mkt1",
	    "title": "Wolves vs. Newcastle",
	    "endDate": "2026-03-14T22:00:00Z",
	    "liquidity": "5000.5",
	    "markets": [
	      {
	        "id": "m1",
	        "question": "Who will win?",
	        "outcomes": "[\"Wolves\", \"Draw\", \"Newcastle\"]",
	        "outcomePrices": "[\"0.38\", \"0.25\", \"0.37\"]"
	      }
	    ]
	  },
	  {
	    "id": "mkt2",
	    "title": "Premier League Top Scorer",
	    "markets": []
	  }
	]`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("tag"); got != "Soccer" {
			t.Errorf("tag param = %q, want Soccer", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(payload))
	}))
	defer srv.Close()

	c := NewMarketClient(WithMarketBaseURL(srv.URL))
	events, err := c.FetchMarketEvents(context.Background())
	if err != nil {
		t.Fatalf("FetchMarketEvents: %v", err)
	}

	// The top-scorer event has no "A vs B" title and is skipped.
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	e := events[0]
	if e.Home != "Wolves" || e.Away != "Newcastle" {
		t.Errorf("teams = %q / %q", e.Home, e.Away)
	}
	if e.HomePrice != 0.38 || e.DrawPrice != 0.25 || e.AwayPrice != 0.37 {
		t.Errorf("prices = (%v, %v, %v)", e.HomePrice, e.DrawPrice, e.AwayPrice)
	}
	if e.Liquidity != 5000.5 {
		t.Errorf("Liquidity = %v, want 5000.5", e.Liquidity)
	}
	if e.Futures {
		t.Error("Futures should default to false")
	}
}

func TestMarketClient_DiscardsOutOfRangePrices(t *testing.T) {
	// A corrupt home price outside [0,1] must not reach the pipeline; the
	// remaining legs still price normally.
	const payload = `[
	  {
	    "id": "mkt1",
	    "title": "Wolves vs. Newcastle",
	    "endDate": "2026-03-14T22:00:00Z",
	    "liquidity": "5000.5",
	    "markets": [
	      {
	        "id": "m1",
	        "question": "Who will win?",
	        "outcomes": "[\"Wolves\", \"Draw\", \"Newcastle\"]",
	        "outcomePrices": "[\"1.7\", \"0.25\", \"0.37\"]"
	      }
	    ]
	  }
	]`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(payload))
	}))
	defer srv.Close()

	c := NewMarketClient(WithMarketBaseURL(srv.URL))
	events, err := c.FetchMarketEvents(context.Background())
	if err != nil {
		t.Fatalf("FetchMarketEvents: %v", err)
	}

	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	e := events[0]
	if e.HomePrice != 0 {
		t.Errorf("HomePrice = %v, want 0 for out-of-range price", e.HomePrice)
	}
	if e.DrawPrice != 0.25 || e.AwayPrice != 0.37 {
		t.Errorf("prices = (%v, %v)", e.DrawPrice, e.AwayPrice)
	}
}

func TestMarketClient_FetchOutrightMarkets(t *testing.T) {
	const payload = `[
	  {
	    "id": "out1",
	    "title": "Premier League Winner",
	    "endDate": "2026-05-24T17:00:00Z",
	    "liquidity": "12000",
	    "markets": [
	      {
	        "id": "m10",
	        "question": "Will Wolves win the Premier League?",
	        "groupItemTitle": "Wolves",
	        "outcomes": "[\"Yes\", \"No\"]",
	        "outcomePrices": "[\"0.12\", \"0.88\"]"
	      },
	      {
	        "id": "m11",
	        "question": "Will Newcastle win the Premier League?",
	        "groupItemTitle": "Newcastle",
	        "outcomes": "[\"Yes\", \"No\"]",
	        "outcomePrices": "[\"0.22\", \"0.78\"]"
	      },
	      {
	        "id": "m12",
	        "question": "Another market format",
	        "outcomes": "[\"Yes\", \"No\"]",
	        "outcomePrices": "[\"0.50\", \"0.50\"]"
	      }
	    ]
	  }
	]`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("tag"); got != "EPL Winner" {
			t.Errorf("tag param = %q, want EPL Winner", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(payload))
	}))
	defer srv.Close()

	c := NewMarketClient(
		WithMarketBaseURL(srv.URL),
		WithMarketOutrightTag("EPL Winner"))
	listings, err := c.FetchOutrightMarkets(context.Background())
	if err != nil {
		t.Fatalf("FetchOutrightMarkets: %v", err)
	}

	// The sub-market without a groupItemTitle has no entrant and is
	// skipped.
	if len(listings) != 2 {
		t.Fatalf("listings = %d, want 2", len(listings))
	}
	byEntrant := map[string]float64{}
	for _, l := range listings {
		byEntrant[l.Entrant] = l.Price
		if l.Liquidity != 12000 {
			t.Errorf("%s Liquidity = %v, want 12000", l.Entrant, l.Liquidity)
		}
	}
	if byEntrant["Wolves"] != 0.12 || byEntrant["Newcastle"] != 0.22 {
		t.Errorf("prices = %v", byEntrant)
	}
}

func TestSplitFixtureTitle(t *testing.T) {
	tests := []struct {
		title      string
		home, away string
		ok         bool
	}{
		{"Wolves vs. Newcastle", "Wolves", "Newcastle", true},
		{"Wolves vs Newcastle", "Wolves", "Newcastle", true},
		{"Wolves v Newcastle", "Wolves", "Newcastle", true},
		{"Premier League Winner", "", "", false},
		{"vs. Newcastle", "", "", false},
		{"", "", "", false},
	}

	for _, tt := range tests {
		home, away, ok := splitFixtureTitle(tt.title)
		if home != tt.home || away != tt.away || ok != tt.ok {
			t.Errorf("splitFixtureTitle(%q) = (%q, %q, %v), want (%q, %q, %v)",
				tt.title, home, away, ok, tt.home, tt.away, tt.ok)
		}
	}
}
