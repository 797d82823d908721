// Package poller drives the adaptive, cursor-driven fetch loop against the
// upstream surebet feed: it paces outbound requests under a rate limiter,
// backs off on rate-limit responses, and hands successfully parsed batches
// to the rest of the pipeline.
package poller

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/XavierBriggs/fortuna/internal/feed"
)

// Outcome is the result of one feed request attempt.
type Outcome struct {
	RateLimited bool
	Records     []feed.RawRecord
}

// FeedClient fetches one page of the surebet feed starting from cursor (the
// empty string on a fresh run).
type FeedClient interface {
	Fetch(ctx context.Context, cursor string) (Outcome, error)
}

// HTTPClient is the production FeedClient: it issues GET requests against
// the feed's HTTP endpoint under a single rate.Limiter tuned to the feed's
// contractual request ceiling.
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
	token      string
	source     string
	sport      string
	limiter    *rate.Limiter

	minOdds, maxOdds     float64
	minProfit, maxProfit float64
}

// NewHTTPClient constructs an HTTPClient. bookmakers is the superset of
// sharp and soft bookmaker ids used for the feed's `source` parameter;
// sports scope the feed's `sport` parameter the same pipe-joined way.
func NewHTTPClient(baseURL, token string, bookmakers, sports []string, minOdds, maxOdds, minProfit, maxProfit float64, limiter *rate.Limiter) *HTTPClient {
	return &HTTPClient{
		httpClient: &http.Client{Timeout: 3 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		source:     strings.Join(bookmakers, "|"),
		sport:      strings.Join(sports, "|"),
		limiter:    limiter,
		minOdds:    minOdds,
		maxOdds:    maxOdds,
		minProfit:  minProfit,
		maxProfit:  maxProfit,
	}
}

// Fetch waits on the rate limiter, then issues one GET request. A non-nil
// error indicates a transport failure; a 429 response is reported through
// Outcome.RateLimited rather than as an error, since it is not a retryable
// fault but an expected backpressure signal.
func (c *HTTPClient) Fetch(ctx context.Context, cursor string) (Outcome, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Outcome{}, fmt.Errorf("poller: rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/request?"+c.query(cursor).Encode(), nil)
	if err != nil {
		return Outcome{}, fmt.Errorf("poller: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Outcome{}, fmt.Errorf("poller: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return Outcome{RateLimited: true}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return Outcome{}, fmt.Errorf("poller: unexpected status %d", resp.StatusCode)
	}

	var decoded feed.RawResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Outcome{}, fmt.Errorf("poller: decode response: %w", err)
	}
	return Outcome{Records: decoded.Records}, nil
}

func (c *HTTPClient) query(cursor string) url.Values {
	v := url.Values{}
	v.Set("product", "surebets")
	v.Set("outcomes", "2")
	v.Set("order", "created_at_desc")
	v.Set("min-profit", fmt.Sprintf("%g", c.minProfit))
	v.Set("max-profit", fmt.Sprintf("%g", c.maxProfit))
	v.Set("min-odds", fmt.Sprintf("%g", c.minOdds))
	v.Set("max-odds", fmt.Sprintf("%g", c.maxOdds))
	v.Set("hide-different-rules", "true")
	v.Set("startAge", "PT10M")
	v.Set("limit", "5000")
	v.Set("oddsFormat", "eu")
	v.Set("source", c.source)
	if c.sport != "" {
		v.Set("sport", c.sport)
	}
	if cursor != "" {
		v.Set("cursor", cursor)
	}
	return v
}
