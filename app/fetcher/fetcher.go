package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

const (
	// DefaultTimeout bounds a single fetch attempt.
	DefaultTimeout = 15 * time.Second
	// DefaultMaxRetries bounds the number of additional attempts after the first.
	DefaultMaxRetries = 3
	// maxBodyBytes caps response bodies to bound memory on misbehaving servers.
	maxBodyBytes = 10 << 20
)

// Result carries the outcome of a successful fetch.
type Result struct {
	Body       []byte
	StatusCode int
	Header     http.Header
	Attempts   int
}

// Fetcher performs HTTP GETs with bounded retries and Retry-After aware
// backoff. All failures are returned as errors; it never panics past its
// boundary.
type Fetcher struct {
	client     *http.Client
	userAgent  string
	maxRetries int
	timeout    time.Duration

	// sleep is swappable in tests
	sleep func(ctx context.Context, d time.Duration) error
}

type Option func(*Fetcher)

func WithMaxRetries(n int) Option {
	return func(f *Fetcher) { f.maxRetries = n }
}

func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) { f.timeout = d }
}

func WithClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

func New(userAgent string, opts ...Option) *Fetcher {
	f := &Fetcher{
		client:     &http.Client{},
		userAgent:  userAgent,
		maxRetries: DefaultMaxRetries,
		timeout:    DefaultTimeout,
		sleep:      sleepCtx,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch performs one GET with up to maxRetries additional attempts. On 429 it
// honors a Retry-After header (integer seconds or HTTP date) before retrying;
// on other 4xx it fails immediately because client errors are not transient;
// on 5xx and network-level failures it backs off exponentially (1s, 2s, 4s).
func (f *Fetcher) Fetch(ctx context.Context, url string, headers map[string]string) (*Result, error) {
	var lastErr error
	attempts := 0

	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		attempts++

		result, retryAfter, err := f.attempt(ctx, url, headers)
		if err == nil {
			result.Attempts = attempts
			return result, nil
		}
		lastErr = err

		var permanent *PermanentError
		if errors.As(err, &permanent) {
			return nil, fmt.Errorf("fetch %s: %w (attempts: %d)", url, err, attempts)
		}

		if attempt == f.maxRetries {
			break
		}

		delay := backoffDelay(attempt, retryAfter)
		if sleepErr := f.sleep(ctx, delay); sleepErr != nil {
			return nil, fmt.Errorf("fetch %s: %w (attempts: %d)", url, sleepErr, attempts)
		}
	}

	return nil, fmt.Errorf("fetch %s: %w (attempts: %d)", url, lastErr, attempts)
}

func (f *Fetcher) attempt(ctx context.Context, url string, headers map[string]string) (*Result, time.Duration, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, &PermanentError{Err: fmt.Errorf("failed to create request: %w", err)}
	}

	req.Header.Set("User-Agent", f.userAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, &PermanentError{Err: ctx.Err()}
		}
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, parseRetryAfter(resp.Header.Get("Retry-After")), fmt.Errorf("HTTP error: 429 Too Many Requests")
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, 0, &PermanentError{Err: fmt.Errorf("HTTP error: %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))}
	case resp.StatusCode >= 500:
		return nil, 0, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read response body: %w", err)
	}

	return &Result{
		Body:       body,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
	}, 0, nil
}

// PermanentError marks a failure that must not be retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// backoffDelay returns the wait before the next attempt. A server-provided
// Retry-After wins over exponential backoff.
func backoffDelay(attempt int, retryAfter time.Duration) time.Duration {
	if retryAfter > 0 {
		return retryAfter
	}
	return time.Duration(1<<uint(attempt)) * time.Second
}

// parseRetryAfter supports both forms the header allows: an integer number of
// seconds or an HTTP date. Unparseable values yield zero, falling back to
// exponential backoff.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(value); err == nil {
		d := time.Until(t)
		if d < 0 {
			return 0
		}
		return d
	}
	return 0
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
