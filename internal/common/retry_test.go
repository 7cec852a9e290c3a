package common

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoffFunctions(t *testing.T) {
	linear := LinearBackoff(time.Second)
	assert.Equal(t, time.Second, linear(1))
	assert.Equal(t, 2*time.Second, linear(2))
	assert.Equal(t, 3*time.Second, linear(3))

	exp := ExponentialBackoff(2*time.Second, 0)
	assert.Equal(t, 2*time.Second, exp(1))
	assert.Equal(t, 4*time.Second, exp(2))
	assert.Equal(t, 8*time.Second, exp(3))

	capped := ExponentialBackoff(5*time.Second, 12*time.Second)
	assert.Equal(t, 10*time.Second, capped(2))
	assert.Equal(t, 12*time.Second, capped(3))
}

func TestRetryPolicy_SucceedsAfterFailures(t *testing.T) {
	unit := 20 * time.Millisecond
	policy := RetryPolicy{MaxAttempts: 3, Backoff: LinearBackoff(unit)}

	calls := 0
	start := time.Now()
	err := policy.Do(context.Background(), func(ctx context.Context, attempt int) error {
		calls++
		assert.Equal(t, calls, attempt)
		if attempt < 3 {
			return errors.New("transient")
		}
		return nil
	})
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	// waits of 1x and 2x the unit precede the third attempt
	assert.GreaterOrEqual(t, elapsed, 3*unit)
}

func TestRetryPolicy_ReturnsLastError(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, Backoff: LinearBackoff(time.Millisecond)}

	var last error
	err := policy.Do(context.Background(), func(ctx context.Context, attempt int) error {
		last = errors.New("attempt failed")
		return last
	})

	require.Error(t, err)
	assert.Same(t, last, err)
}

func TestRetryPolicy_NonRetryableStops(t *testing.T) {
	permanent := errors.New("bad address")
	policy := RetryPolicy{
		MaxAttempts: 5,
		Backoff:     LinearBackoff(time.Millisecond),
		Retryable:   func(err error) bool { return !errors.Is(err, permanent) },
	}

	calls := 0
	err := policy.Do(context.Background(), func(ctx context.Context, attempt int) error {
		calls++
		return permanent
	})

	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestRetryPolicy_ShouldRetry(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3}
	boom := errors.New("boom")

	assert.True(t, policy.ShouldRetry(1, boom))
	assert.True(t, policy.ShouldRetry(2, boom))
	assert.False(t, policy.ShouldRetry(3, boom))
	assert.False(t, policy.ShouldRetry(1, nil))
}

func TestRetryPolicy_OnRetryReportsWaits(t *testing.T) {
	var waits []time.Duration
	policy := RetryPolicy{
		MaxAttempts: 3,
		Backoff:     LinearBackoff(5 * time.Millisecond),
		OnRetry: func(attempt int, err error, wait time.Duration) {
			waits = append(waits, wait)
		},
	}

	_ = policy.Do(context.Background(), func(ctx context.Context, attempt int) error {
		return errors.New("nope")
	})

	assert.Equal(t, []time.Duration{5 * time.Millisecond, 10 * time.Millisecond}, waits)
}
