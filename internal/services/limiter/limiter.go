// Package limiter bounds concurrent use of named resources such as the PDF renderer.
package limiter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/sicknote/internal/interfaces"
	"github.com/ternarybob/sicknote/internal/metrics"
)

const (
	DefaultMaxConcurrent = 5
	DefaultWaitTimeout   = 30 * time.Second

	// ResourcePDFGeneration is the renderer's resource name
	ResourcePDFGeneration = "pdf_generation"
)

// ErrRateLimitExceeded is returned when no slot frees up within the wait timeout
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// resourceSlot tracks usage for a single resource
type resourceSlot struct {
	mu    sync.Mutex
	count int
	max   int
	// wake is closed and replaced on every release
	wake chan struct{}
}

// Limiter admits at most max concurrent holders per resource name
type Limiter struct {
	slots       map[string]*resourceSlot
	mu          sync.RWMutex
	defaultMax  int
	waitTimeout time.Duration
	logger      arbor.ILogger
	metrics     *metrics.Collector
}

var _ interfaces.ResourceLimiter = (*Limiter)(nil)

// NewLimiter creates a limiter; zero values select the defaults
func NewLimiter(maxConcurrent int, waitTimeout time.Duration, collector *metrics.Collector, logger arbor.ILogger) *Limiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	if waitTimeout <= 0 {
		waitTimeout = DefaultWaitTimeout
	}
	return &Limiter{
		slots:       make(map[string]*resourceSlot),
		defaultMax:  maxConcurrent,
		waitTimeout: waitTimeout,
		logger:      logger,
		metrics:     collector,
	}
}

// SetCapacity overrides the slot count for one resource
func (l *Limiter) SetCapacity(resource string, capacity int) {
	if capacity <= 0 {
		capacity = l.defaultMax
	}
	slot := l.slot(resource)
	slot.mu.Lock()
	slot.max = capacity
	// capacity may have grown, let waiters re-check
	close(slot.wake)
	slot.wake = make(chan struct{})
	slot.mu.Unlock()
}

// Acquire takes a slot for resource, waiting up to the wait timeout
func (l *Limiter) Acquire(ctx context.Context, resource string) error {
	slot := l.slot(resource)
	timer := time.NewTimer(l.waitTimeout)
	defer timer.Stop()

	start := time.Now()
	waited := false

	for {
		slot.mu.Lock()
		if slot.count < slot.max {
			slot.count++
			inUse := slot.count
			slot.mu.Unlock()

			l.metrics.SlotsInUse(resource, inUse)
			if waited {
				l.logger.Debug().
					Str("resource", resource).
					Dur("waited", time.Since(start)).
					Int("in_use", inUse).
					Msg("Acquired resource slot after waiting")
			}
			return nil
		}
		wake := slot.wake
		capacity := slot.max
		slot.mu.Unlock()

		if !waited {
			waited = true
			l.logger.Debug().
				Str("resource", resource).
				Int("max", capacity).
				Msg("Resource at capacity, waiting for a slot")
		}

		select {
		case <-wake:
		case <-timer.C:
			l.logger.Warn().
				Str("resource", resource).
				Dur("timeout", l.waitTimeout).
				Msg("Timed out waiting for resource slot")
			return fmt.Errorf("%w: %s busy for %s", ErrRateLimitExceeded, resource, l.waitTimeout)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Release frees one slot; it never blocks and never drops below zero
func (l *Limiter) Release(resource string) {
	slot := l.slot(resource)

	slot.mu.Lock()
	if slot.count > 0 {
		slot.count--
	}
	inUse := slot.count
	close(slot.wake)
	slot.wake = make(chan struct{})
	slot.mu.Unlock()

	l.metrics.SlotsInUse(resource, inUse)
}

// WithSlot runs fn while holding a slot for resource
func (l *Limiter) WithSlot(ctx context.Context, resource string, fn func(ctx context.Context) error) error {
	if err := l.Acquire(ctx, resource); err != nil {
		return err
	}
	defer l.Release(resource)
	return fn(ctx)
}

// InUse returns the number of held slots for resource
func (l *Limiter) InUse(resource string) int {
	slot := l.slot(resource)
	slot.mu.Lock()
	defer slot.mu.Unlock()
	return slot.count
}

// slot returns the tracker for resource, creating it on first use
func (l *Limiter) slot(resource string) *resourceSlot {
	l.mu.RLock()
	slot, exists := l.slots[resource]
	l.mu.RUnlock()
	if exists {
		return slot
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if slot, exists = l.slots[resource]; exists {
		return slot
	}
	slot = &resourceSlot{
		max:  l.defaultMax,
		wake: make(chan struct{}),
	}
	l.slots[resource] = slot
	return slot
}
