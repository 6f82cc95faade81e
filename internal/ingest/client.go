package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultTimeout = 60 * time.Second
	rateLimit      = 2 // requests per second
	maxAttempts    = 3
)

// Client is a rate-limited client for a datatable query API: the query is
// POSTed as JSON and the result comes back column-oriented, one cursor page
// at a time.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rateLimiter
	backoff    func(attempt int) time.Duration
	logger     zerolog.Logger
}

// rateLimiter implements a simple token bucket rate limiter.
type rateLimiter struct {
	mu       sync.Mutex
	lastCall time.Time
	interval time.Duration
}

func newRateLimiter(requestsPerSecond int) *rateLimiter {
	return &rateLimiter{
		interval: time.Second / time.Duration(requestsPerSecond),
	}
}

func (r *rateLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if wait := r.interval - time.Since(r.lastCall); wait > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	r.lastCall = time.Now()
	return nil
}

// ClientOption customises a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithBackoff replaces the exponential retry delay.
func WithBackoff(fn func(attempt int) time.Duration) ClientOption {
	return func(c *Client) { c.backoff = fn }
}

// WithRateLimit sets the maximum requests per second.
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) { c.limiter = newRateLimiter(requestsPerSecond) }
}

// NewClient creates a client for the API rooted at baseURL.
func NewClient(baseURL, apiKey string, logger zerolog.Logger, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		limiter: newRateLimiter(rateLimit),
		backoff: func(attempt int) time.Duration { return time.Duration(1<<attempt) * time.Second },
		logger:  logger.With().Str("component", "datatable_client").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type queryRequest struct {
	Query    string        `json:"query"`
	Args     []interface{} `json:"args,omitempty"`
	CursorID string        `json:"cursor_id,omitempty"`
}

// Fetch runs q and returns all rows, following cursors until exhausted.
func (c *Client) Fetch(ctx context.Context, q Query) (*Table, error) {
	all := &Table{}
	var cursorID string

	for page := 1; ; page++ {
		resp, err := c.fetchPage(ctx, q, cursorID)
		if err != nil {
			return nil, fmt.Errorf("query %s page %d: %w", q.Name, page, err)
		}

		// Merge columns (only needed on first page)
		if len(all.Columns) == 0 {
			all.Columns = resp.Datatable.Columns
		}
		all.Data = append(all.Data, resp.Datatable.Data...)

		if resp.Meta.NextCursorID == nil || *resp.Meta.NextCursorID == "" {
			break
		}
		cursorID = *resp.Meta.NextCursorID
		c.logger.Debug().Str("query", q.Name).Int("page", page+1).Msg("fetching next page")
	}

	return all, nil
}

// fetchPage fetches a single page of data.
func (c *Client) fetchPage(ctx context.Context, q Query, cursorID string) (*Response, error) {
	body, err := json.Marshal(queryRequest{Query: q.SQL, Args: q.Args, CursorID: cursorID})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := c.backoff(attempt)
			c.logger.Warn().Err(lastErr).Int("attempt", attempt).Dur("backoff", backoff).Msg("retrying query page")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		resp, err := c.doRequest(ctx, body)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		// Don't retry on context cancellation
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("all retries failed: %w", lastErr)
}

func (c *Client) doRequest(ctx context.Context, body []byte) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/query.json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if httpResp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("rate limited (429)")
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s", httpResp.StatusCode, string(raw))
	}

	// UseNumber keeps 16-digit VMPP ids and prices exact.
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var resp Response
	if err := dec.Decode(&resp); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}

	return &resp, nil
}
