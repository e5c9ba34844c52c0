package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Options control the fetcher's rate limit, retry and timeout behaviour
type Options struct {
	RateLimitMs   int
	MaxRetries    int
	BackoffBaseMs int
	BackoffMaxMs  int
	TimeoutMs     int
}

// StatusError reports a non-2xx response status
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d", e.Code)
}

// retryableStatus lists the statuses worth retrying; every other
// non-2xx fails fast
func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusForbidden, http.StatusServiceUnavailable:
		return true
	}
	return false
}

// Fetcher performs HTTP requests under a single shared rate gate.
// All calls through one instance are serialized against the same
// last-request timestamp, so true request concurrency is bounded by
// the rate limit regardless of how many goroutines fetch pages. The
// gate exists to avoid hammering one target site.
type Fetcher struct {
	opts   Options
	client *http.Client

	mu          sync.Mutex
	lastRequest time.Time
}

// New creates a fetcher with its own cookie jar
func New(opts Options) *Fetcher {
	jar, _ := cookiejar.New(nil)
	return &Fetcher{
		opts:   opts,
		client: &http.Client{Jar: jar},
	}
}

// Fetch retrieves a page as raw bytes, retrying retryable failures
// per the backoff policy. A returned error means this URL should be
// skipped and recorded, never that the whole job failed.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	build := func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", browserUserAgent)
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		req.Header.Set("Accept-Language", "en-US,en;q=0.9")
		return req, nil
	}

	body, _, err := f.do(ctx, url, build)
	return body, err
}

// do runs the attempt loop shared by the HTML and API fetch paths
func (f *Fetcher) do(ctx context.Context, url string, build func() (*http.Request, error)) ([]byte, http.Header, error) {
	attempts := f.opts.MaxRetries + 1
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := f.sleepBackoff(ctx, attempt-1); err != nil {
				return nil, nil, err
			}
		}
		if err := f.waitRate(ctx); err != nil {
			return nil, nil, err
		}

		body, header, err := f.attempt(ctx, build)
		if err == nil {
			return body, header, nil
		}
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}

		if statusErr, ok := err.(*StatusError); ok && !retryableStatus(statusErr.Code) {
			// Fail fast, no retry
			return nil, nil, statusErr
		}
		lastErr = err
		logrus.Debugf("fetch attempt %d/%d for %s failed: %v", attempt+1, attempts, url, err)
	}

	return nil, nil, fmt.Errorf("all %d attempts failed for %s: %w", attempts, url, lastErr)
}

// attempt performs one request bounded by the per-attempt timeout
func (f *Fetcher) attempt(ctx context.Context, build func() (*http.Request, error)) ([]byte, http.Header, error) {
	req, err := build()
	if err != nil {
		return nil, nil, err
	}

	attemptCtx, cancel := context.WithTimeout(ctx, time.Duration(f.opts.TimeoutMs)*time.Millisecond)
	defer cancel()

	resp, err := f.client.Do(req.WithContext(attemptCtx))
	if err != nil {
		// Timeouts and network errors are both retryable
		return nil, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return nil, nil, &StatusError{Code: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}
	return body, resp.Header, nil
}

// waitRate sleeps out the remainder of the rate-limit window. The
// shared last-request timestamp serializes every attempt through one
// fetcher instance.
func (f *Fetcher) waitRate(ctx context.Context) error {
	interval := time.Duration(f.opts.RateLimitMs) * time.Millisecond
	if interval <= 0 {
		return nil
	}

	f.mu.Lock()
	now := time.Now()
	next := f.lastRequest.Add(interval)
	if next.Before(now) {
		next = now
	}
	f.lastRequest = next
	wait := next.Sub(now)
	f.mu.Unlock()

	if wait <= 0 {
		return nil
	}
	select {
	case <-time.After(wait):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// sleepBackoff waits min(base * 2^i, max) after failed attempt i
func (f *Fetcher) sleepBackoff(ctx context.Context, failedAttempt int) error {
	delay := time.Duration(f.opts.BackoffBaseMs) * time.Millisecond << uint(failedAttempt)
	maxDelay := time.Duration(f.opts.BackoffMaxMs) * time.Millisecond
	if maxDelay > 0 && delay > maxDelay {
		delay = maxDelay
	}
	if delay <= 0 {
		return nil
	}
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
