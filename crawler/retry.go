package crawler

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"
)

// RetryPolicy configures retry behavior for failed requests.
type RetryPolicy struct {
	MaxRetries int           // Maximum number of retries (0 = a single GET)
	BaseDelay  time.Duration // Initial backoff delay (1s)
	MaxDelay   time.Duration // Maximum backoff cap (30s)
}

// DefaultRetryPolicy returns a RetryPolicy that makes a single attempt, with
// a 1s base delay and 30s max delay ready for when retries are enabled.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 0,
		BaseDelay:  1 * time.Second,
		MaxDelay:   30 * time.Second,
	}
}

// FetchWithRetry wraps Fetcher.Fetch with exponential backoff retry logic.
// It retries on transient failures (network errors, 5xx, 429) but not on
// permanent failures (other 4xx, oversized bodies, redirect loops).
//
// Each attempt runs on fetchCtx. ctx only cuts the backoff between attempts
// short, so a cancelled session finishes the attempt in flight and stops.
func FetchWithRetry(ctx, fetchCtx context.Context, f *Fetcher, rawURL string, policy RetryPolicy) FetchResult {
	backoff := policy.BaseDelay
	var last FetchResult

	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				last.Attempts = attempt
				return last
			case <-timer.C:
				backoff = min(backoff*2, policy.MaxDelay)
			}
		}

		last = f.Fetch(fetchCtx, rawURL)
		last.Attempts = attempt + 1

		if last.Err == nil || !shouldRetry(last) {
			return last
		}
	}

	return last
}

// shouldRetry determines if a failed fetch should be retried.
// Returns true for:
// - Network errors (timeout, connection refused, DNS failure)
// - HTTP 429 (rate limited)
// - HTTP 5xx (server errors)
func shouldRetry(res FetchResult) bool {
	var fetchErr *FetchError
	if !errors.As(res.Err, &fetchErr) {
		return false
	}
	if errors.Is(fetchErr, ErrBodyTooLarge) || errors.Is(fetchErr, ErrRedirectLoop) {
		return false
	}

	switch status := fetchErr.StatusCode; {
	case status == http.StatusTooManyRequests:
		return true
	case status >= 500:
		return true
	case status != 0:
		return false
	}

	return isRetryableError(fetchErr.Err)
}

// isRetryableError checks if a transport error is transient.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	// Network operation errors (covers connection refused and reset)
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}
