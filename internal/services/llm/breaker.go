package llm

import (
	"time"

	"github.com/sony/gobreaker"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/sicknote/internal/common"
)

// newBreaker creates the circuit breaker guarding provider calls.
// It trips once the failure ratio over the interval reaches the threshold.
func newBreaker(name string, cfg common.BreakerConfig, logger arbor.ILogger) *gobreaker.CircuitBreaker {
	minRequests := cfg.MinRequests
	if minRequests == 0 {
		minRequests = 5
	}
	threshold := cfg.FailureThreshold
	if threshold <= 0 {
		threshold = 0.8
	}

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    cfg.Interval.Or(30 * time.Second),
		Timeout:     cfg.Timeout.Or(60 * time.Second),
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Only trip if we have enough requests to make a decision
			if counts.Requests < minRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	})
}
