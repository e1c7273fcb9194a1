package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ClientConfig configures remote fetches. Zero values get defaults: 30s
// timeout, 3 retries, 200ms initial backoff capped at 5s.
type ClientConfig struct {
	Timeout        time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// Transport replaces http.DefaultTransport, mainly for tests.
	Transport http.RoundTripper
}

// Client GETs payloads, retrying transport errors, 429 and 5xx with
// exponential backoff.
type Client struct {
	http           *http.Client
	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 200 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 5 * time.Second
	}
	return &Client{
		http:           &http.Client{Timeout: cfg.Timeout, Transport: cfg.Transport},
		maxRetries:     cfg.MaxRetries,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
	}
}

// Get fetches url. A non-2xx final status is an error; on success the caller
// closes the body.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := wait(ctx, backoff(c.initialBackoff, attempt-1, c.maxBackoff)); err != nil {
				return nil, err
			}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("source: build request: %w", err)
		}
		resp, err := c.http.Do(req)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
		case retryable(resp.StatusCode):
			_ = resp.Body.Close()
			lastErr = fmt.Errorf("source: GET %s: status %d", url, resp.StatusCode)
		case resp.StatusCode < 200 || resp.StatusCode > 299:
			_ = resp.Body.Close()
			return nil, fmt.Errorf("source: GET %s: status %d", url, resp.StatusCode)
		default:
			return resp, nil
		}
	}
	return nil, lastErr
}

// Remote returns a Source for url.
func (c *Client) Remote(url string) Source { return &remote{c: c, url: url} }

type remote struct {
	c   *Client
	url string
}

func (r *remote) Open(ctx context.Context) (io.ReadCloser, error) {
	resp, err := r.c.Get(ctx, r.url)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func retryable(code int) bool {
	return code == http.StatusTooManyRequests || (code >= 500 && code <= 599)
}

// backoff is initial*2^retry, capped at max.
func backoff(initial time.Duration, retry int, max time.Duration) time.Duration {
	d := initial << retry
	if d <= 0 || d > max {
		return max
	}
	return d
}

func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
