package limiter

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func TestLimiter_AcquireUpToCapacity(t *testing.T) {
	l := NewLimiter(2, time.Second, nil, arbor.NewLogger())
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx, "r"))
	require.NoError(t, l.Acquire(ctx, "r"))
	assert.Equal(t, 2, l.InUse("r"))

	// other resources are independent
	require.NoError(t, l.Acquire(ctx, "other"))
	assert.Equal(t, 1, l.InUse("other"))
}

func TestLimiter_WaiterProceedsAfterRelease(t *testing.T) {
	l := NewLimiter(1, 2*time.Second, nil, arbor.NewLogger())
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx, "r"))

	acquired := make(chan error, 1)
	go func() {
		acquired <- l.Acquire(ctx, "r")
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire should wait while the slot is held")
	case <-time.After(50 * time.Millisecond):
	}

	l.Release("r")

	select {
	case err := <-acquired:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("waiter did not proceed after release")
	}
	assert.Equal(t, 1, l.InUse("r"))
}

func TestLimiter_TimeoutReturnsRateLimitExceeded(t *testing.T) {
	l := NewLimiter(1, 30*time.Millisecond, nil, arbor.NewLogger())
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx, "r"))

	start := time.Now()
	err := l.Acquire(ctx, "r")
	assert.ErrorIs(t, err, ErrRateLimitExceeded)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	assert.Equal(t, 1, l.InUse("r"))
}

func TestLimiter_ContextCancelAbortsWait(t *testing.T) {
	l := NewLimiter(1, time.Minute, nil, arbor.NewLogger())
	require.NoError(t, l.Acquire(context.Background(), "r"))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := l.Acquire(ctx, "r")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLimiter_ReleaseClampsAtZero(t *testing.T) {
	l := NewLimiter(1, time.Second, nil, arbor.NewLogger())

	l.Release("r")
	l.Release("r")
	assert.Equal(t, 0, l.InUse("r"))

	require.NoError(t, l.Acquire(context.Background(), "r"))
	assert.Equal(t, 1, l.InUse("r"))
}

func TestLimiter_NeverExceedsCapacity(t *testing.T) {
	const capacity = 3
	l := NewLimiter(capacity, 5*time.Second, nil, arbor.NewLogger())

	var current, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.WithSlot(context.Background(), "r", func(ctx context.Context) error {
				n := atomic.AddInt32(&current, 1)
				for {
					p := atomic.LoadInt32(&peak)
					if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&current, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(capacity))
	assert.Equal(t, 0, l.InUse("r"))
}

func TestLimiter_WithSlotReleasesOnError(t *testing.T) {
	l := NewLimiter(1, time.Second, nil, arbor.NewLogger())

	err := l.WithSlot(context.Background(), "r", func(ctx context.Context) error {
		assert.Equal(t, 1, l.InUse("r"))
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 0, l.InUse("r"))
}

func TestLimiter_SetCapacity(t *testing.T) {
	l := NewLimiter(5, 30*time.Millisecond, nil, arbor.NewLogger())
	l.SetCapacity(ResourcePDFGeneration, 1)

	require.NoError(t, l.Acquire(context.Background(), ResourcePDFGeneration))
	err := l.Acquire(context.Background(), ResourcePDFGeneration)
	assert.ErrorIs(t, err, ErrRateLimitExceeded)
}
