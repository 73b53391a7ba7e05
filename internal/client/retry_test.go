package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// noWait is a retry policy that records pauses instead of sleeping.
func noWait(pauses *int) RetryPolicy {
	return RetryPolicy{
		Delay: 120 * time.Second,
		sleep: func(ctx context.Context, d time.Duration) error {
			*pauses++
			return ctx.Err()
		},
	}
}

func TestRetryOnceSucceedsFirstTime(t *testing.T) {
	pauses, calls := 0, 0
	got, err := retryOnce(context.Background(), noWait(&pauses), "test", func(context.Context) (int, error) {
		calls++
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, got)
	assert.Equal(t, 1, calls)
	assert.Zero(t, pauses)
}

func TestRetryOnceRecovers(t *testing.T) {
	pauses, calls := 0, 0
	got, err := retryOnce(context.Background(), noWait(&pauses), "test", func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", &HTTPError{StatusCode: 529, Message: "overloaded"}
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, pauses)
}

func TestRetryOnceGivesUpAfterSecondFailure(t *testing.T) {
	pauses, calls := 0, 0
	cause := &HTTPError{StatusCode: 500, Message: "boom"}
	_, err := retryOnce(context.Background(), noWait(&pauses), "test", func(context.Context) (string, error) {
		calls++
		return "", cause
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProviderFailed)
	assert.Equal(t, 500, StatusCode(err))
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, pauses)
}

func TestRetryOnceStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pauses, calls := 0, 0
	_, err := retryOnce(ctx, noWait(&pauses), "test", func(context.Context) (string, error) {
		calls++
		cancel()
		return "", errors.New("interrupted")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
	assert.Zero(t, pauses)
}

func TestSleepContext(t *testing.T) {
	require.NoError(t, sleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}
