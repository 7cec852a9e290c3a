package interfaces

import (
	"context"
)

// ResourceLimiter bounds concurrent use of named resources
type ResourceLimiter interface {
	// Acquire blocks until a slot is free, the wait timeout passes or ctx is done
	Acquire(ctx context.Context, resource string) error

	// Release frees a slot; releasing an idle resource is a no-op
	Release(resource string)

	// WithSlot runs fn while holding a slot and always releases it
	WithSlot(ctx context.Context, resource string, fn func(ctx context.Context) error) error

	InUse(resource string) int
}
