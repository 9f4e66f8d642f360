// Package feed fetches fixtures from the two upstream APIs: a bookmaker
// odds service and a prediction-market exchange. Both clients translate
// their wire formats into the pipeline's raw event types and never resolve
// names themselves.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/polydelta/polydelta/pkg/odds"
	"github.com/polydelta/polydelta/pkg/pipeline"
)

const (
	// DefaultBookBaseURL is the odds API base URL.
	DefaultBookBaseURL = "https://api.the-odds-api.com"

	bookRateLimit = 5.0 // requests per second
	bookBurst     = 3
)

// restClient is the GET-with-rate-limit plumbing shared by both feed
// clients.
type restClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// BookClient fetches bookmaker odds. It implements pipeline.BookFeed and,
// when an outright sport is configured, pipeline.OutrightBookFeed.
type BookClient struct {
	rest          restClient
	apiKey        string
	sport         string
	regions       string
	outrightSport string
}

// BookOption configures the client.
type BookOption func(*BookClient)

// WithBookBaseURL sets a custom base URL.
func WithBookBaseURL(u string) BookOption {
	return func(c *BookClient) {
		c.rest.baseURL = u
	}
}

// WithBookHTTPClient sets a custom HTTP client.
func WithBookHTTPClient(client *http.Client) BookOption {
	return func(c *BookClient) {
		c.rest.httpClient = client
	}
}

// WithBookSport sets the sport key to query. Default: soccer_epl.
func WithBookSport(sport string) BookOption {
	return func(c *BookClient) {
		c.sport = sport
	}
}

// WithBookOutrights enables competition-winner fetching for the given
// sport key (e.g. soccer_epl_winner). Empty leaves the outright lane off.
func WithBookOutrights(sport string) BookOption {
	return func(c *BookClient) {
		c.outrightSport = sport
	}
}

// WithBookRateLimit sets custom rate limiting.
func WithBookRateLimit(rps float64, burst int) BookOption {
	return func(c *BookClient) {
		c.rest.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// NewBookClient creates a bookmaker odds client.
func NewBookClient(apiKey string, opts ...BookOption) *BookClient {
	c := &BookClient{
		rest: restClient{
			baseURL: DefaultBookBaseURL,
			httpClient: &http.Client{
				Timeout: 30 * time.Second,
			},
			limiter: rate.NewLimiter(rate.Limit(bookRateLimit), bookBurst),
		},
		apiKey:  apiKey,
		sport:   "soccer_epl",
		regions: "us",
	}

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Wire types for the odds API.
type bookEvent struct {
	ID           string          `json:"id"`
	SportTitle   string          `json:"sport_title"`
	HomeTeam     string          `json:"home_team"`
	AwayTeam     string          `json:"away_team"`
	CommenceTime time.Time       `json:"commence_time"`
	Bookmakers   []bookBookmaker `json:"bookmakers"`
}

type bookBookmaker struct {
	Key     string       `json:"key"`
	Markets []bookMarket `json:"markets"`
}

type bookMarket struct {
	Key      string        `json:"key"`
	Outcomes []bookOutcome `json:"outcomes"`
}

type bookOutcome struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

// FetchBookEvents fetches upcoming fixtures with head-to-head odds.
func (c *BookClient) FetchBookEvents(ctx context.Context) ([]pipeline.RawBookEvent, error) {
	params := url.Values{}
	params.Set("apiKey", c.apiKey)
	params.Set("regions", c.regions)
	params.Set("markets", "h2h")
	params.Set("oddsFormat", "decimal")

	var wire []bookEvent
	path := fmt.Sprintf("/v4/sports/%s/odds", c.sport)
	if err := c.rest.get(ctx, path, params, &wire); err != nil {
		return nil, fmt.Errorf("fetching odds: %w", err)
	}

	events := make([]pipeline.RawBookEvent, 0, len(wire))
	for _, we := range wire {
		events = append(events, pipeline.RawBookEvent{
			ID:        we.ID,
			Home:      we.HomeTeam,
			Away:      we.AwayTeam,
			StartTime: we.CommenceTime,
			Quotes:    flattenQuotes(we),
		})
	}
	return events, nil
}

// FetchOutrightEvents fetches competition-winner odds for the configured
// outright sport. With no outright sport set it reports no events.
func (c *BookClient) FetchOutrightEvents(ctx context.Context) ([]pipeline.RawOutrightEvent, error) {
	if c.outrightSport == "" {
		return nil, nil
	}

	params := url.Values{}
	params.Set("apiKey", c.apiKey)
	params.Set("regions", c.regions)
	params.Set("markets", "outrights")
	params.Set("oddsFormat", "decimal")

	var wire []bookEvent
	path := fmt.Sprintf("/v4/sports/%s/odds", c.outrightSport)
	if err := c.rest.get(ctx, path, params, &wire); err != nil {
		return nil, fmt.Errorf("fetching outrights: %w", err)
	}

	events := make([]pipeline.RawOutrightEvent, 0, len(wire))
	for _, we := range wire {
		quotes := flattenOutrightQuotes(we)
		if len(quotes) == 0 {
			continue
		}
		events = append(events, pipeline.RawOutrightEvent{
			ID:          we.ID,
			Competition: we.SportTitle,
			Quotes:      quotes,
		})
	}
	return events, nil
}

// flattenQuotes turns the nested bookmaker/market/outcome wire shape into a
// flat quote list. Outcome kind is inferred by matching the outcome name
// against the event's own team fields; anything else is the draw.
func flattenQuotes(we bookEvent) []odds.Quote {
	var quotes []odds.Quote
	for _, bm := range we.Bookmakers {
		for _, m := range bm.Markets {
			if m.Key != "h2h" {
				continue
			}
			for _, o := range m.Outcomes {
				quotes = append(quotes, odds.Quote{
					RawName:     o.Name,
					Bookmaker:   bm.Key,
					Kind:        outcomeKind(o.Name, we),
					DecimalOdds: o.Price,
				})
			}
		}
	}
	return quotes
}

// flattenOutrightQuotes flattens outrights markets: every outcome is one
// entrant to win the competition.
func flattenOutrightQuotes(we bookEvent) []odds.Quote {
	var quotes []odds.Quote
	for _, bm := range we.Bookmakers {
		for _, m := range bm.Markets {
			if m.Key != "outrights" {
				continue
			}
			for _, o := range m.Outcomes {
				quotes = append(quotes, odds.Quote{
					RawName:     o.Name,
					Bookmaker:   bm.Key,
					Kind:        odds.OutcomeOutright,
					DecimalOdds: o.Price,
				})
			}
		}
	}
	return quotes
}

func outcomeKind(name string, we bookEvent) odds.OutcomeKind {
	switch name {
	case we.HomeTeam:
		return odds.OutcomeHome
	case we.AwayTeam:
		return odds.OutcomeAway
	default:
		return odds.OutcomeDraw
	}
}

func (c *restClient) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("api error %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
