package engine

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// defaultGuardedRetries caps retries for RetryClassMaybe errors when the
// policy leaves GuardedRetries unset.
const defaultGuardedRetries = 2

// RetryPolicy controls how a completion request is retried.
type RetryPolicy struct {
	MaxRetries     int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	Multiplier     float64
	Jitter         bool
	GuardedRetries int // limit for "maybe" errors; 0 means defaultGuardedRetries
}

// DefaultRetryPolicy is used by the providers unless the config overrides it.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:   3,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2,
		Jitter:       true,
	}
}

func (p RetryPolicy) guardedLimit() int {
	if p.GuardedRetries > 0 {
		return p.GuardedRetries
	}
	return defaultGuardedRetries
}

// RetryableFunc is one attempt of a retried operation.
type RetryableFunc[T any] func(ctx context.Context) (T, error)

// RetryWithPolicy runs fn until it succeeds, classifyError rejects the
// failure, or the policy runs out. onRetry, when set, sees every scheduled
// retry with its 1-based attempt number.
func RetryWithPolicy[T any](
	ctx context.Context,
	policy RetryPolicy,
	fn RetryableFunc[T],
	classifyError func(error) RetryClass,
	onRetry func(attempt int, delay time.Duration, err error),
) (T, error) {
	var zero T

	for retries := 0; ; retries++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}

		if stop := giveUp(policy, classifyError(err), retries, err); stop != nil {
			return zero, stop
		}

		delay := calculateDelay(policy, retries, err)
		if onRetry != nil {
			onRetry(retries+1, delay, err)
		}

		if err := sleepCtx(ctx, delay); err != nil {
			return zero, fmt.Errorf("context cancelled during retry: %w", err)
		}
	}
}

// giveUp returns the error to surface when no further retry is allowed,
// or nil when the caller should wait and try again.
func giveUp(policy RetryPolicy, class RetryClass, retries int, err error) error {
	switch {
	case class == RetryClassNonRetryable:
		return err
	case retries >= policy.MaxRetries && retries == 0:
		return err
	case retries >= policy.MaxRetries:
		return &RetryExhaustedError{Err: err, Attempts: retries + 1}
	case class == RetryClassMaybe && retries >= policy.guardedLimit():
		return &RetryExhaustedError{Err: err, Attempts: retries + 1, IsGuarded: true}
	}
	return nil
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

// calculateDelay prefers a server supplied Retry-After, then falls back to
// exponential backoff. Both are capped at MaxDelay before jitter is added.
func calculateDelay(policy RetryPolicy, retries int, err error) time.Duration {
	if hint := ExtractRetryAfter(err); hint > 0 {
		return min(hint, policy.MaxDelay)
	}

	backoff := float64(policy.InitialDelay) * math.Pow(policy.Multiplier, float64(retries))
	backoff = math.Min(backoff, float64(policy.MaxDelay))
	if policy.Jitter {
		backoff *= 1 + 0.2*rand.Float64()
	}
	return time.Duration(backoff)
}
