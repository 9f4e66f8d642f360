package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/polydelta/polydelta/pkg/pipeline"
)

const (
	// DefaultMarketBaseURL is the prediction-market metadata API base URL.
	DefaultMarketBaseURL = "https://gamma-api.polymarket.com"

	marketRateLimit = 10.0 // requests per second
	marketBurst     = 5
)

// MarketClient fetches prediction-market fixtures. It implements
// pipeline.MarketFeed and, when an outright tag is configured,
// pipeline.OutrightMarketFeed.
type MarketClient struct {
	rest        restClient
	tag         string
	outrightTag string
	futures     bool
}

// MarketOption configures the client.
type MarketOption func(*MarketClient)

// WithMarketBaseURL sets a custom base URL.
func WithMarketBaseURL(u string) MarketOption {
	return func(c *MarketClient) {
		c.rest.baseURL = u
	}
}

// WithMarketHTTPClient sets a custom HTTP client.
func WithMarketHTTPClient(client *http.Client) MarketOption {
	return func(c *MarketClient) {
		c.rest.httpClient = client
	}
}

// WithMarketTag filters events by tag. Default: Soccer.
func WithMarketTag(tag string) MarketOption {
	return func(c *MarketClient) {
		c.tag = tag
	}
}

// WithMarketOutrightTag enables competition-winner fetching for the given
// tag (e.g. EPL Winner). Empty leaves the outright lane off.
func WithMarketOutrightTag(tag string) MarketOption {
	return func(c *MarketClient) {
		c.outrightTag = tag
	}
}

// WithMarketFutures marks every fetched event as a futures market, for
// competition-winner tags where the stricter EV threshold applies.
func WithMarketFutures(futures bool) MarketOption {
	return func(c *MarketClient) {
		c.futures = futures
	}
}

// NewMarketClient creates a prediction-market client.
func NewMarketClient(opts ...MarketOption) *MarketClient {
	c := &MarketClient{
		rest: restClient{
			baseURL: DefaultMarketBaseURL,
			httpClient: &http.Client{
				Timeout: 30 * time.Second,
			},
			limiter: rate.NewLimiter(rate.Limit(marketRateLimit), marketBurst),
		},
		tag: "Soccer",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Wire types. The exchange encodes outcome names and prices as
// JSON-encoded arrays inside strings, and numeric fields as either numbers
// or strings depending on endpoint version.
type marketEvent struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	EndDate   time.Time      `json:"endDate"`
	Liquidity jsonFloat      `json:"liquidity"`
	Markets   []marketMarket `json:"markets"`
}

type marketMarket struct {
	ID               string `json:"id"`
	Question         string `json:"question"`
	GroupItemTitle   string `json:"groupItemTitle"`
	OutcomesRaw      string `json:"outcomes"`
	OutcomePricesRaw string `json:"outcomePrices"`
}

// jsonFloat decodes a float that the API may serialize as a string.
type jsonFloat float64

func (j *jsonFloat) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*j = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("parsing float %q: %w", s, err)
	}
	*j = jsonFloat(f)
	return nil
}

// FetchMarketEvents fetches open fixtures for the configured tag. Events
// whose title does not name two teams (futures fields, specials) are
// skipped; the pipeline only pairs head-to-head fixtures.
func (c *MarketClient) FetchMarketEvents(ctx context.Context) ([]pipeline.RawMarketEvent, error) {
	params := url.Values{}
	params.Set("active", "true")
	params.Set("closed", "false")
	params.Set("tag", c.tag)

	var wire []marketEvent
	if err := c.rest.get(ctx, "/events", params, &wire); err != nil {
		return nil, fmt.Errorf("fetching market events: %w", err)
	}

	events := make([]pipeline.RawMarketEvent, 0, len(wire))
	for _, we := range wire {
		home, away, ok := splitFixtureTitle(we.Title)
		if !ok {
			continue
		}

		ev := pipeline.RawMarketEvent{
			ID:        we.ID,
			Home:      home,
			Away:      away,
			EndTime:   we.EndDate,
			Liquidity: float64(we.Liquidity),
			Futures:   c.futures,
		}
		if !assignPrices(&ev, we.Markets) {
			continue // no priced winner market yet
		}
		events = append(events, ev)
	}
	return events, nil
}

// FetchOutrightMarkets fetches competition-winner listings for the
// configured outright tag. Each sub-market is a single entrant priced with
// a Yes/No outcome pair; only the Yes price matters. With no outright tag
// set it reports no listings.
func (c *MarketClient) FetchOutrightMarkets(ctx context.Context) ([]pipeline.RawOutrightMarket, error) {
	if c.outrightTag == "" {
		return nil, nil
	}

	params := url.Values{}
	params.Set("active", "true")
	params.Set("closed", "false")
	params.Set("tag", c.outrightTag)

	var wire []marketEvent
	if err := c.rest.get(ctx, "/events", params, &wire); err != nil {
		return nil, fmt.Errorf("fetching outright markets: %w", err)
	}

	var listings []pipeline.RawOutrightMarket
	for _, we := range wire {
		for _, m := range we.Markets {
			if m.GroupItemTitle == "" {
				continue
			}
			price, ok := yesPrice(m)
			if !ok {
				continue
			}
			listings = append(listings, pipeline.RawOutrightMarket{
				ID:        m.ID,
				Entrant:   m.GroupItemTitle,
				Price:     price,
				EndTime:   we.EndDate,
				Liquidity: float64(we.Liquidity),
			})
		}
	}
	return listings, nil
}

// yesPrice extracts the Yes outcome's price from a binary sub-market.
func yesPrice(m marketMarket) (float64, bool) {
	outcomes := decodeStringArray(m.OutcomesRaw)
	prices := decodeStringArray(m.OutcomePricesRaw)
	if len(outcomes) == 0 || len(outcomes) != len(prices) {
		return 0, false
	}
	for i, name := range outcomes {
		if !strings.EqualFold(name, "yes") {
			continue
		}
		price, err := strconv.ParseFloat(prices[i], 64)
		if err != nil || price < 0 || price > 1 {
			return 0, false
		}
		return price, true
	}
	return 0, false
}

// splitFixtureTitle extracts the two team names from an event title like
// "Wolves vs. Newcastle".
func splitFixtureTitle(title string) (home, away string, ok bool) {
	for _, sep := range []string{" vs. ", " vs ", " v "} {
		parts := strings.SplitN(title, sep, 2)
		if len(parts) != 2 {
			continue
		}
		home = strings.TrimSpace(parts[0])
		away = strings.TrimSpace(parts[1])
		if home != "" && away != "" {
			return home, away, true
		}
	}
	return "", "", false
}

// assignPrices parses the winner market's outcome arrays and maps each
// outcome price onto the event by name: the home team's price, the away
// team's, and any draw leg.
func assignPrices(ev *pipeline.RawMarketEvent, markets []marketMarket) bool {
	for _, m := range markets {
		outcomes := decodeStringArray(m.OutcomesRaw)
		prices := decodeStringArray(m.OutcomePricesRaw)
		if len(outcomes) == 0 || len(outcomes) != len(prices) {
			continue
		}

		matched := false
		for i, name := range outcomes {
			price, err := strconv.ParseFloat(prices[i], 64)
			if err != nil || price < 0 || price > 1 {
				continue
			}
			switch {
			case strings.EqualFold(name, ev.Home):
				ev.HomePrice = price
				matched = true
			case strings.EqualFold(name, ev.Away):
				ev.AwayPrice = price
				matched = true
			case strings.EqualFold(name, "draw"):
				ev.DrawPrice = price
			}
		}
		if matched {
			return true
		}
	}
	return false
}

// decodeStringArray parses the API's JSON-encoded-array-in-a-string shape.
func decodeStringArray(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}
