// Package polymarket is the venue adapter: expiring events from the Gamma API and
// recent trades from the Data API.
package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultGammaURL = "https://gamma-api.polymarket.com"
	DefaultDataURL  = "https://data-api.polymarket.com"

	maxRetries = 3
)

// Client provides access to the Polymarket Gamma and Data APIs.
type Client struct {
	gammaAPIURL string
	dataAPIURL  string
	httpClient  *http.Client
	limiter     *rate.Limiter
	categories  Categories
	retryWait   time.Duration
	now         func() time.Time
}

// Options configures a Client. Zero values fall back to production defaults.
type Options struct {
	GammaAPIURL string
	DataAPIURL  string
	Timeout     time.Duration
	// RatePerSecond caps requests across both APIs.
	RatePerSecond float64
	Categories    Categories
}

// NewClient creates a new Polymarket client.
func NewClient(opts Options) *Client {
	if opts.GammaAPIURL == "" {
		opts.GammaAPIURL = DefaultGammaURL
	}
	if opts.DataAPIURL == "" {
		opts.DataAPIURL = DefaultDataURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.RatePerSecond <= 0 {
		opts.RatePerSecond = 5
	}
	burst := int(opts.RatePerSecond)
	if burst < 1 {
		burst = 1
	}
	return &Client{
		gammaAPIURL: opts.GammaAPIURL,
		dataAPIURL:  opts.DataAPIURL,
		httpClient:  &http.Client{Timeout: opts.Timeout},
		limiter:     rate.NewLimiter(rate.Limit(opts.RatePerSecond), burst),
		categories:  opts.Categories,
		retryWait:   time.Second,
		now:         time.Now,
	}
}

// getJSON performs a GET with rate limiting and retries, decoding the body into out.
func (c *Client) getJSON(ctx context.Context, urlStr string, out any) error {
	resp, err := c.doRequest(ctx, urlStr)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("client error %d: %s", resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// doRequest performs HTTP request with retry logic
func (c *Client) doRequest(ctx context.Context, urlStr string) (*http.Response, error) {
	var lastErr error

	for i := 0; i < maxRetries; i++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
		} else if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
		} else {
			return resp, nil
		}

		if err := c.backoff(ctx, i); err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *Client) backoff(ctx context.Context, attempt int) error {
	timer := time.NewTimer(time.Duration(attempt+1) * c.retryWait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
