package common

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// BackoffFunc returns the wait after the given failed attempt (1-based)
type BackoffFunc func(attempt int) time.Duration

// LinearBackoff waits unit*attempt: 1x, 2x, 3x ...
func LinearBackoff(unit time.Duration) BackoffFunc {
	return func(attempt int) time.Duration {
		if attempt < 1 {
			attempt = 1
		}
		return unit * time.Duration(attempt)
	}
}

// ExponentialBackoff waits base*2^(attempt-1), capped at max when max > 0
func ExponentialBackoff(base, max time.Duration) BackoffFunc {
	return func(attempt int) time.Duration {
		if attempt < 1 {
			attempt = 1
		}
		delay := base
		for i := 1; i < attempt; i++ {
			delay *= 2
			if max > 0 && delay >= max {
				return max
			}
		}
		if max > 0 && delay > max {
			return max
		}
		return delay
	}
}

// RetryPolicy describes a bounded retry strategy shared by the delivery
// worker (synchronous retries) and the job queue (scheduled retries).
type RetryPolicy struct {
	MaxAttempts int
	Backoff     BackoffFunc
	// Retryable reports whether an error may be retried; nil retries everything
	Retryable func(error) bool
	// OnRetry is called before each wait with the failed attempt number
	OnRetry func(attempt int, err error, wait time.Duration)
}

// Delay returns the wait scheduled after the given failed attempt
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if p.Backoff == nil {
		return 0
	}
	return p.Backoff(attempt)
}

// ShouldRetry reports whether another attempt follows the given failed attempt
func (p RetryPolicy) ShouldRetry(attempt int, err error) bool {
	if err == nil || attempt >= p.MaxAttempts {
		return false
	}
	if p.Retryable != nil && !p.Retryable(err) {
		return false
	}
	return true
}

// Do runs fn until it succeeds, the attempts are exhausted, a non-retryable
// error occurs or ctx is done. The last error from fn is returned unchanged.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	attempt := 0
	operation := func() (struct{}, error) {
		attempt++
		err := fn(ctx, attempt)
		if err != nil && p.Retryable != nil && !p.Retryable(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}

	sched := &policySchedule{backoff: p.Backoff}
	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(sched),
		backoff.WithMaxTries(uint(maxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, wait time.Duration) {
			if p.OnRetry != nil {
				p.OnRetry(attempt, err, wait)
			}
		}),
	)
	return err
}

// policySchedule adapts a BackoffFunc to backoff.BackOff
type policySchedule struct {
	backoff BackoffFunc
	failed  int
}

func (s *policySchedule) NextBackOff() time.Duration {
	s.failed++
	if s.backoff == nil {
		return 0
	}
	return s.backoff(s.failed)
}

func (s *policySchedule) Reset() {
	s.failed = 0
}
