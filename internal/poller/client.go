package poller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// MaxBodySize caps how much of a response is read. Larger bodies are
// rejected rather than truncated, since a cut-off document would extract
// garbage.
const MaxBodySize = 1 << 20

const (
	userAgent    = "bifrost-poller/1"
	acceptHeader = "application/json, text/plain;q=0.9, */*;q=0.1"
)

// ErrBodyTooLarge is reported for responses larger than [MaxBodySize].
var ErrBodyTooLarge = errors.New("response body too large")

// Response holds the outcome of one [Client.Fetch].
type Response struct {
	Body []byte

	// StatusCode is zero if the request failed before a response arrived.
	StatusCode int

	Latency time.Duration

	// Error is set when no usable response was obtained. A non-2xx status
	// is not an error at this level; extractors decide what it means.
	Error error
}

// Client fetches poll targets over HTTP with a shared connection pool.
//
// Timeouts come from each [Target] through the request context, so one slow
// device cannot stretch the deadline of another.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a [Client] whose per-host connection limit matches the
// scheduler's worker count, so workers never queue behind each other for a
// connection to the same device.
func NewClient(maxConcurrency int) *Client {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	return &Client{
		httpClient: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        4 * maxConcurrency,
				MaxIdleConnsPerHost: maxConcurrency,
				MaxConnsPerHost:     maxConcurrency,
				IdleConnTimeout:     90 * time.Second,
			},
			// devices behind redirects are polled at their final location
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return errors.New("stopped after 3 redirects")
				}
				return nil
			},
		},
	}
}

// Fetch polls t once and always returns a [Response]; failures are reported
// in Response.Error.
func (c *Client) Fetch(ctx context.Context, t Target) Response {
	start := time.Now()
	body, status, err := c.do(ctx, t)
	return Response{
		Body:       body,
		StatusCode: status,
		Latency:    time.Since(start),
		Error:      err,
	}
}

func (c *Client) do(ctx context.Context, t Target) ([]byte, int, error) {
	if t.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}

	method := t.Method
	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequestWithContext(ctx, method, t.URL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", acceptHeader)
	for key, value := range t.Headers {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	// one extra byte tells an exact-limit body from an oversized one
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodySize+1))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read body: %w", err)
	}
	if len(body) > MaxBodySize {
		return nil, resp.StatusCode, fmt.Errorf("%w: more than %d bytes", ErrBodyTooLarge, MaxBodySize)
	}
	return body, resp.StatusCode, nil
}

// Close releases idle pooled connections. The client stays usable.
func (c *Client) Close() {
	if c == nil || c.httpClient == nil {
		return
	}
	c.httpClient.CloseIdleConnections()
}
