package relay

import (
	"context"
	"time"
)

// Backoff returns base doubled attempt times, capped at limit.
func Backoff(attempt int, base, limit time.Duration) time.Duration {
	d := base
	for i := 0; i < attempt && d < limit; i++ {
		d *= 2
	}
	if d > limit {
		return limit
	}
	return d
}

// RetryPolicy decides whether a failed call is retried and after how long.
// attempt counts from 0.
type RetryPolicy func(err error, attempt int) (wait time.Duration, retry bool)

// Retry calls fn until it succeeds, the policy declines, retries run out or
// ctx is done. fn runs at most retries+1 times. The last error is returned,
// or ctx.Err() if ctx ends while waiting.
func Retry(ctx context.Context, retries int, policy RetryPolicy, fn func() error) error {
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if attempt >= retries {
			return err
		}
		wait, ok := policy(err, attempt)
		if !ok {
			return err
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}
