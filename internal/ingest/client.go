package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/mauv0809/forecast-accuracy/internal/reconcile"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL  = "https://data.nasdaq.com/api/v3/datatables"
	defaultTimeout  = 60 * time.Second
	rateLimit       = 2 // requests per second (conservative for authenticated users)
	maxRetryElapsed = 30 * time.Second
	dailyTable      = "SHARADAR/DAILY"
	dateLayout      = "2006-01-02"

	// closeLookback covers weekends and market holidays before a target date.
	closeLookback = 7
)

// Client is a rate-limited client for Nasdaq Data Link Tables API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxElapsed time.Duration
	logger     zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another Tables API endpoint.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithMaxRetryElapsed bounds the total time spent retrying one page.
func WithMaxRetryElapsed(d time.Duration) Option {
	return func(c *Client) { c.maxElapsed = d }
}

// NewClient creates a new Sharadar API client.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		limiter:    rate.NewLimiter(rate.Every(time.Second/rateLimit), 1),
		maxElapsed: maxRetryElapsed,
		logger:     log.With().Str("component", "nasdaq_client").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StatusError is a non-200 response from the API.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// retryable reports whether a status is worth another attempt.
func (e *StatusError) retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// FetchTable fetches data from a table with the given parameters.
// Handles pagination automatically and returns all rows.
func (c *Client) FetchTable(ctx context.Context, table string, params map[string]string) (*Response, error) {
	allData := &Response{}
	var cursorID *string

	for {
		resp, err := c.fetchPage(ctx, table, params, cursorID)
		if err != nil {
			return nil, err
		}

		if len(allData.Datatable.Columns) == 0 {
			allData.Datatable.Columns = resp.Datatable.Columns
		}
		allData.Datatable.Data = append(allData.Datatable.Data, resp.Datatable.Data...)

		if resp.Meta.NextCursorID == nil || *resp.Meta.NextCursorID == "" {
			break
		}
		cursorID = resp.Meta.NextCursorID
		c.logger.Debug().Str("table", table).Str("cursor", (*cursorID)[:min(20, len(*cursorID))]).Msg("Fetching next page")
	}

	return allData, nil
}

// fetchPage fetches a single page of data.
func (c *Client) fetchPage(ctx context.Context, table string, params map[string]string, cursorID *string) (*Response, error) {
	u, err := url.Parse(fmt.Sprintf("%s/%s.json", c.baseURL, table))
	if err != nil {
		return nil, fmt.Errorf("invalid table name: %w", err)
	}

	q := u.Query()
	q.Set("api_key", c.apiKey)
	for k, v := range params {
		q.Set(k, v)
	}
	if cursorID != nil {
		q.Set("qopts.cursor_id", *cursorID)
	}
	u.RawQuery = q.Encode()

	var resp *Response
	attempt := 0
	operation := func() error {
		attempt++
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		var err error
		resp, err = c.doRequest(ctx, u.String())
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		if se, ok := err.(*StatusError); ok && !se.retryable() {
			return backoff.Permanent(err)
		}
		c.logger.Warn().Err(err).Int("attempt", attempt).Str("table", table).Msg("Request failed")
		return err
	}

	strategy := backoff.NewExponentialBackOff()
	strategy.MaxElapsedTime = c.maxElapsed
	if err := backoff.Retry(operation, backoff.WithContext(strategy, ctx)); err != nil {
		return nil, fmt.Errorf("fetching %s: %w", table, err)
	}
	return resp, nil
}

func (c *Client) doRequest(ctx context.Context, urlStr string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: httpResp.StatusCode, Body: string(body)}
	}

	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}

	return &resp, nil
}

// FetchDaily fetches daily prices from SHARADAR/DAILY between from and to
// inclusive. tickers is required (at least one ticker).
func (c *Client) FetchDaily(ctx context.Context, tickers []string, from, to time.Time) ([]DailyRow, error) {
	if len(tickers) == 0 {
		return nil, fmt.Errorf("at least one ticker required for daily fetch")
	}

	params := map[string]string{
		"ticker": strings.Join(tickers, ","),
	}
	if !from.IsZero() {
		params["date.gte"] = from.Format(dateLayout)
	}
	if !to.IsZero() {
		params["date.lte"] = to.Format(dateLayout)
	}

	resp, err := c.FetchTable(ctx, dailyTable, params)
	if err != nil {
		return nil, fmt.Errorf("fetching daily: %w", err)
	}

	return ParseDaily(resp)
}

// CloseOn returns the last close of symbol on or before date. A symbol with
// no trading day in the lookback window yields reconcile.ErrNoPrice.
func (c *Client) CloseOn(ctx context.Context, symbol string, date time.Time) (decimal.Decimal, error) {
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	rows, err := c.FetchDaily(ctx, []string{symbol}, day.AddDate(0, 0, -closeLookback), day)
	if err != nil {
		return decimal.Zero, err
	}

	var best *DailyRow
	for i := range rows {
		r := &rows[i]
		if r.Close == nil || !r.Close.IsPositive() || r.Date.After(day) {
			continue
		}
		if best == nil || r.Date.After(best.Date) {
			best = r
		}
	}
	if best == nil {
		return decimal.Zero, fmt.Errorf("%s on %s: %w", symbol, day.Format(dateLayout), reconcile.ErrNoPrice)
	}
	return *best.Close, nil
}

var _ reconcile.PriceSource = (*Client)(nil)
