package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

const maxBodyBytes = 10 << 20

// ErrRateLimited is returned once the backoff policy gives up on a host.
var ErrRateLimited = errors.New("rate limited")

// StatusError reports an unexpected HTTP status.
type StatusError struct {
	URL    string
	Status string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned %s", e.URL, e.Status)
}

// BackoffPolicy bounds how a rate-limited call is retried: at most Retries
// extra attempts, each delayed by Retry-After (or an exponential default)
// capped at MaxWait.
type BackoffPolicy struct {
	MaxWait time.Duration
	Retries int
}

// Delay returns the wait before retry number attempt (0-based).
func (p BackoffPolicy) Delay(attempt int, retryAfter time.Duration) time.Duration {
	d := retryAfter
	if d <= 0 {
		d = time.Second << attempt
	}
	if p.MaxWait > 0 && d > p.MaxWait {
		d = p.MaxWait
	}
	return d
}

// Options configures a Client.
type Options struct {
	Timeout    time.Duration
	UserAgent  string
	Spacing    time.Duration
	Backoff    BackoffPolicy
	HTTPClient *http.Client
}

// Client performs GET requests with a per-call timeout, a minimum spacing
// between calls to the same host and a rate-limit backoff policy.
type Client struct {
	http      *http.Client
	userAgent string
	spacing   time.Duration
	backoff   BackoffPolicy

	mu       sync.Mutex
	nextSlot map[string]time.Time
}

// New builds a Client; a 10s timeout is used when none is given.
func New(opts Options) *Client {
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Client{
		http:      client,
		userAgent: opts.UserAgent,
		spacing:   opts.Spacing,
		backoff:   opts.Backoff,
		nextSlot:  map[string]time.Time{},
	}
}

// Get fetches rawURL and returns the response body.
func (c *Client) Get(ctx context.Context, rawURL string, header http.Header) ([]byte, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url %s: %w", rawURL, err)
	}

	for attempt := 0; ; attempt++ {
		if err := c.waitForHost(ctx, parsed.Host); err != nil {
			return nil, err
		}

		body, retryAfter, err := c.do(ctx, rawURL, header)
		if err == nil {
			return body, nil
		}

		var statusErr *StatusError
		if !errors.As(err, &statusErr) || !retryable(statusErr.Code) {
			return nil, err
		}
		if attempt >= c.backoff.Retries {
			return nil, fmt.Errorf("%w: %v", ErrRateLimited, err)
		}
		if err := sleep(ctx, c.backoff.Delay(attempt, retryAfter)); err != nil {
			return nil, err
		}
	}
}

func (c *Client) do(ctx context.Context, rawURL string, header http.Header) ([]byte, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	for k, values := range header {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	if c.userAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, parseRetryAfter(resp.Header.Get("Retry-After")), &StatusError{
			URL:    rawURL,
			Status: resp.Status,
			Code:   resp.StatusCode,
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, 0, fmt.Errorf("read body %s: %w", rawURL, err)
	}
	return body, 0, nil
}

// waitForHost reserves the next free slot for host and sleeps until it.
func (c *Client) waitForHost(ctx context.Context, host string) error {
	if c.spacing <= 0 {
		return ctx.Err()
	}

	c.mu.Lock()
	now := time.Now()
	slot := c.nextSlot[host]
	if slot.Before(now) {
		slot = now
	}
	c.nextSlot[host] = slot.Add(c.spacing)
	c.mu.Unlock()

	return sleep(ctx, time.Until(slot))
}

func retryable(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusServiceUnavailable
}

func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		return time.Until(at)
	}
	return 0
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
