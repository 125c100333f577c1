// Package retry re-runs idempotent calls that failed for transient reasons.
package retry

import (
	"context"
	"math/rand"
	"net/http"
	"time"
)

const (
	defaultMaxAttempts = 3
	defaultBackoff     = 200 * time.Millisecond
	defaultJitter      = 100 * time.Millisecond
)

// Policy is a zero-value-safe retry policy: MaxAttempts below 2 disables
// retries.
type Policy struct {
	MaxAttempts   int
	Backoff       time.Duration
	Jitter        time.Duration
	RetryOnStatus map[int]bool
	OnRetry       func(attempt int, reason string)
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: defaultMaxAttempts,
		Backoff:     defaultBackoff,
		Jitter:      defaultJitter,
		RetryOnStatus: map[int]bool{
			http.StatusBadGateway:         true,
			http.StatusServiceUnavailable: true,
			http.StatusGatewayTimeout:     true,
		},
	}
}

// Attempt performs one call and returns its HTTP status when it got one.
type Attempt func(ctx context.Context) (status int, err error)

// Do runs attempt until it succeeds, fails permanently, runs out of attempts,
// or ctx ends. It returns the number of attempts made and the last error.
// A non-retryable status is not an error here; callers inspect it.
func Do(ctx context.Context, policy Policy, attempt Attempt) (int, error) {
	maxAttempts := policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	attempts := 0
	for {
		attempts++
		status, err := attempt(ctx)

		var reason string
		retryable := false
		if err != nil {
			if ctx.Err() != nil {
				return attempts, err
			}
			reason, retryable = ClassifyError(err)
		} else {
			reason, retryable = ClassifyStatus(status, policy)
		}
		if !retryable || attempts >= maxAttempts {
			return attempts, err
		}
		if policy.OnRetry != nil {
			policy.OnRetry(attempts, reason)
		}
		if !sleepWithBackoff(ctx, policy.Backoff, policy.Jitter) {
			if err == nil {
				err = ctx.Err()
			}
			return attempts, err
		}
	}
}

func sleepWithBackoff(ctx context.Context, backoff time.Duration, jitter time.Duration) bool {
	delay := backoff
	if jitter > 0 {
		delay += time.Duration(rand.Int63n(int64(jitter) + 1))
	}
	if delay <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
