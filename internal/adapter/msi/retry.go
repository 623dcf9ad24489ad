package msi

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// retry calls fn up to attempts times. It stops early on success, on a
// non-retryable error, or when ctx is done. The delay starts at base and
// doubles up to maxDelay.
func retry(ctx context.Context, attempts int, base, maxDelay time.Duration, fn func(attempt int) error) error {
	var err error
	delay := base
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err = fn(attempt)
		if err == nil || !isRetryable(err) || attempt == attempts {
			return err
		}

		if !sleepWithContext(ctx, delay) {
			return ctx.Err()
		}
		delay = nextBackoff(delay, maxDelay)
	}
	return err
}

func isRetryable(err error) bool {
	if errors.Is(err, ErrPermanent) || errors.Is(err, context.Canceled) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return retryableStatus(se.Code)
	}
	return true
}

func retryableStatus(code int) bool {
	return code >= 500 || code == http.StatusRequestTimeout || code == http.StatusTooManyRequests
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
