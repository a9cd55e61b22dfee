// Package httpds is the HTTP transport used to fetch query results and
// classification trees from the statistical data service. It retries
// transient failures with exponential backoff and can skip TLS verification
// for endpoints with broken certificates.
package httpds

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Config configures the HTTP client.
//
// Zero values are given defaults:
//   - Timeout:        30s
//   - MaxRetries:     0
//   - InitialBackoff: 200ms
//   - MaxBackoff:     5s
type Config struct {
	// Timeout is the per-request timeout applied at the http.Client level.
	Timeout time.Duration

	// MaxRetries is the number of retry attempts after the initial request.
	MaxRetries int

	// InitialBackoff is the wait before the first retry. Each later retry
	// doubles it, up to MaxBackoff.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool

	// BaseHeaders are added to every request; per-request headers win.
	BaseHeaders http.Header

	// Transport overrides the default *http.Transport.
	Transport http.RoundTripper
}

// Client wraps an http.Client with retry and backoff behavior.
type Client struct {
	httpClient     *http.Client
	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	baseHeaders    http.Header

	// sleep is injectable to make tests fast and deterministic.
	sleep func(time.Duration)
}

// StatusError is returned by GetBytes for non-2xx responses that are not
// retried (or that are still failing after the last retry).
type StatusError struct {
	URL  string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("httpds: GET %s: status %d: %s", e.URL, e.Code, e.Body)
}

// NewClient constructs a Client from Config, applying defaults for zero values.
func NewClient(cfg Config) *Client {
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

	transport := cfg.Transport
	if transport == nil {
		transport = &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // explicitly configurable
			},
		}
	}

	hdr := http.Header{}
	for k, vs := range cfg.BaseHeaders {
		for _, v := range vs {
			hdr.Add(k, v)
		}
	}
	if hdr.Get("Accept") == "" {
		hdr.Set("Accept", "application/json")
	}

	return &Client{
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		maxRetries:     cfg.MaxRetries,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		baseHeaders:    hdr,
		sleep:          time.Sleep,
	}
}

// Do sends a request, retrying network errors, 429 and 5xx responses.
//
// The returned response has a non-nil Body which the caller must close.
// When every attempt fails, the last error is returned and no response.
func (c *Client) Do(
	ctx context.Context,
	method, url string,
	body []byte,
	headers http.Header,
) (*http.Response, error) {
	if method == "" {
		return nil, fmt.Errorf("httpds: method must not be empty")
	}
	if url == "" {
		return nil, fmt.Errorf("httpds: url must not be empty")
	}

	attempts := c.maxRetries + 1
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("httpds: build request: %w", err)
		}
		for k, vs := range c.baseHeaders {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
		for k, vs := range headers {
			for _, v := range vs {
				req.Header.Set(k, v)
			}
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
		} else {
			if !isRetryableStatus(resp.StatusCode) {
				return resp, nil
			}
			_ = resp.Body.Close()
			lastErr = fmt.Errorf("httpds: retryable status %d from %s %s", resp.StatusCode, method, url)
		}

		if attempt+1 >= attempts {
			return nil, lastErr
		}
		if err := sleepWithContext(ctx, c.sleep, backoffDuration(c.initialBackoff, attempt, c.maxBackoff)); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

// Get is a convenience wrapper over Do for HTTP GET. The caller must close
// the response body.
func (c *Client) Get(ctx context.Context, url string, headers http.Header) (*http.Response, error) {
	return c.Do(ctx, http.MethodGet, url, nil, headers)
}

// GetBytes fetches url and returns the whole body. Non-2xx responses become
// a *StatusError carrying the first bytes of the body. maxBytes <= 0 means
// no limit.
func (c *Client) GetBytes(ctx context.Context, url string, maxBytes int64) ([]byte, error) {
	resp, err := c.Get(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var r io.Reader = resp.Body
	if maxBytes > 0 {
		r = io.LimitReader(resp.Body, maxBytes)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{URL: url, Code: resp.StatusCode, Body: string(bytes.TrimSpace(snippet))}
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("httpds: read body of %s: %w", url, err)
	}
	return b, nil
}

// isRetryableStatus treats 429 and 5xx as transient.
func isRetryableStatus(code int) bool {
	if code == http.StatusTooManyRequests {
		return true
	}
	return code >= 500 && code <= 599
}

// backoffDuration returns initial * 2^attempt clamped to max.
func backoffDuration(initial time.Duration, attempt int, max time.Duration) time.Duration {
	if attempt <= 0 {
		if initial > max {
			return max
		}
		return initial
	}
	d := initial << attempt
	if d > max || d <= 0 {
		return max
	}
	return d
}

// sleepWithContext waits d, or less if ctx is canceled first.
func sleepWithContext(ctx context.Context, sleep func(time.Duration), d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		sleep(0)
		return nil
	}
}
