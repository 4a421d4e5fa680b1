package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/semaphore"

	"autoria-scraper/internal/ratelimit"
)

// ErrorKind classifies why a fetch ultimately failed.
type ErrorKind string

const (
	KindNetwork    ErrorKind = "network"
	KindTimeout    ErrorKind = "timeout"
	KindHTTPStatus ErrorKind = "http_status"
)

// FetchError is returned after all retry attempts are exhausted. Status is
// set only for KindHTTPStatus.
type FetchError struct {
	Kind   ErrorKind
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	switch e.Kind {
	case KindHTTPStatus:
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.Status)
	case KindTimeout:
		return fmt.Sprintf("fetch %s: timed out: %v", e.URL, e.Err)
	default:
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

type Options struct {
	Concurrency int
	Timeout     time.Duration
	RetryDelay  time.Duration
	MaxRetries  int
	UserAgent   string
}

const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Fetcher issues HTTP GETs with a per-attempt timeout and retries transient
// failures. A single weighted semaphore bounds in-flight requests across all
// callers, listing and detail pages alike.
type Fetcher struct {
	client     *http.Client
	limiter    ratelimit.Limiter
	sem        *semaphore.Weighted
	timeout    time.Duration
	retryDelay time.Duration
	maxRetries int
	userAgent  string
	logger     *slog.Logger
}

func New(opts Options, limiter ratelimit.Limiter, logger *slog.Logger) *Fetcher {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}

	return &Fetcher{
		client:     &http.Client{},
		limiter:    limiter,
		sem:        semaphore.NewWeighted(int64(opts.Concurrency)),
		timeout:    opts.Timeout,
		retryDelay: opts.RetryDelay,
		maxRetries: opts.MaxRetries,
		userAgent:  opts.UserAgent,
		logger:     logger.With("component", "fetcher"),
	}
}

// Fetch downloads url and returns the response body. It makes up to
// MaxRetries+1 attempts, sleeping RetryDelay between them, and holds one
// concurrency slot for the whole call so success and failure release alike.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if err := f.sem.Acquire(ctx, 1); err != nil {
		return nil, &FetchError{Kind: KindNetwork, URL: url, Err: err}
	}
	defer f.sem.Release(1)

	var lastErr *FetchError

	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		if attempt > 0 {
			f.logger.Warn("retrying fetch",
				"url", url,
				"attempt", attempt,
				"max_retries", f.maxRetries,
				"error", lastErr)

			select {
			case <-ctx.Done():
				return nil, &FetchError{Kind: KindNetwork, URL: url, Err: ctx.Err()}
			case <-time.After(f.retryDelay):
			}
		}

		if err := f.limiter.Wait(ctx); err != nil {
			return nil, &FetchError{Kind: KindNetwork, URL: url, Err: err}
		}

		body, ferr := f.attempt(ctx, url)
		if ferr == nil {
			return body, nil
		}
		lastErr = ferr

		// The caller gave up, no point in further attempts.
		if ctx.Err() != nil {
			break
		}
	}

	return nil, lastErr
}

func (f *Fetcher) attempt(ctx context.Context, url string) ([]byte, *FetchError) {
	attemptCtx := ctx
	if f.timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{Kind: KindNetwork, URL: url, Err: err}
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, classify(url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return nil, &FetchError{Kind: KindHTTPStatus, URL: url, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classify(url, err)
	}

	return body, nil
}

func classify(url string, err error) *FetchError {
	if errors.Is(err, context.DeadlineExceeded) {
		return &FetchError{Kind: KindTimeout, URL: url, Err: err}
	}

	var timeoutErr interface{ Timeout() bool }
	if errors.As(err, &timeoutErr) && timeoutErr.Timeout() {
		return &FetchError{Kind: KindTimeout, URL: url, Err: err}
	}

	return &FetchError{Kind: KindNetwork, URL: url, Err: err}
}
