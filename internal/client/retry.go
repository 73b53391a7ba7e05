package client

import (
	"context"
	"fmt"
	"time"

	"newsbench/internal/logging"
)

// RetryPolicy pauses once after a failed call and tries again.
type RetryPolicy struct {
	Delay time.Duration // pause before the single retry

	// sleep is replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryPolicy returns the policy used by hosted providers.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Delay: 120 * time.Second}
}

func (p RetryPolicy) wait(ctx context.Context) error {
	if p.sleep != nil {
		return p.sleep(ctx, p.Delay)
	}
	return sleepContext(ctx, p.Delay)
}

// retryOnce runs fn, and after a failure waits the policy delay and runs it
// exactly once more. A second failure is wrapped in ErrProviderFailed.
func retryOnce[T any](ctx context.Context, p RetryPolicy, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	res, err := fn(ctx)
	if err == nil {
		return res, nil
	}
	var zero T
	if ctx.Err() != nil {
		return zero, ctx.Err()
	}

	logging.Warn("completion request failed, will retry",
		"provider", name,
		"delay", p.Delay,
		"status", StatusCode(err),
		"error", err)

	if werr := p.wait(ctx); werr != nil {
		return zero, werr
	}

	res, err = fn(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		return zero, fmt.Errorf("%w: %s: %w", ErrProviderFailed, name, err)
	}
	return res, nil
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
