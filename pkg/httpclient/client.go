// Package httpclient provides an HTTP client with exponential-backoff
// retry for transient failures. Transient means network errors,
// timeouts, HTTP 408/429 and 5xx. Everything else is returned as-is.
package httpclient

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

type Client struct {
	client     *http.Client
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.client = client
	}
}

func WithMaxRetries(max int) Option {
	return func(c *Client) {
		c.maxRetries = max
	}
}

func WithBaseDelay(delay time.Duration) Option {
	return func(c *Client) {
		c.baseDelay = delay
	}
}

func WithMaxDelay(delay time.Duration) Option {
	return func(c *Client) {
		c.maxDelay = delay
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.client.Timeout = timeout
	}
}

func New(opts ...Option) *Client {
	client := &Client{
		client:     &http.Client{Timeout: 60 * time.Second},
		maxRetries: 3,
		baseDelay:  time.Second,
		maxDelay:   60 * time.Second,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	}
	return code >= 500
}

// Do performs the request, retrying transient failures with delays
// baseDelay, 2·baseDelay, 4·baseDelay and so on, capped at maxDelay.
// A Retry-After header on 429 responses overrides the computed delay.
// The request body must be re-creatable via GetBody for retries to
// work; requests built with http.NewRequest from a bytes.Reader
// satisfy this.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	var lastErr error
	var lastStatus int

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, fmt.Errorf("recreate request body for retry: %w", err)
				}
				req.Body = body
			}
			delay := c.delayFor(attempt - 1)
			if lastStatus == http.StatusTooManyRequests {
				if ra := retryAfter(lastErr); ra > 0 {
					delay = ra
				}
			}
			slog.Debug("retrying request",
				"attempt", attempt,
				"max", c.maxRetries,
				"delay", delay,
				"last_status", lastStatus)
			if err := sleepCtx(req.Context(), delay); err != nil {
				return nil, err
			}
		}

		resp, err := c.client.Do(req)
		if err != nil {
			// Network failure or client timeout. Retry unless the
			// caller's context is done.
			if req.Context().Err() != nil {
				return nil, req.Context().Err()
			}
			lastErr = err
			lastStatus = 0
			continue
		}

		if !retryableStatus(resp.StatusCode) {
			return resp, nil
		}

		lastStatus = resp.StatusCode
		lastErr = &RetryableError{
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
			RetryAfter: parseRetryAfter(resp.Header),
		}
		_ = resp.Body.Close()
	}

	return nil, &RetryableError{
		StatusCode: lastStatus,
		Message:    fmt.Sprintf("max retries (%d) exceeded", c.maxRetries),
		Err:        lastErr,
	}
}

func (c *Client) delayFor(attempt int) time.Duration {
	delay := c.baseDelay << uint(attempt)
	if delay > c.maxDelay || delay <= 0 {
		return c.maxDelay
	}
	return delay
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func parseRetryAfter(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

func retryAfter(err error) time.Duration {
	if re, ok := err.(*RetryableError); ok {
		return re.RetryAfter
	}
	return 0
}
