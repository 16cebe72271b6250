package memory_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/applyflow/applyflow/internal/lease/memory"
	"github.com/applyflow/applyflow/internal/model"
)

func TestLeaserAcquireRelease(t *testing.T) {
	ctx := context.Background()
	l := memory.NewLeaser()

	ls, err := l.Acquire(ctx, "app-1")
	require.NoError(t, err)
	assert.Equal(t, "app-1", ls.Key())

	_, err = l.Acquire(ctx, "app-1")
	assert.ErrorIs(t, err, model.ErrLeaseHeld)

	// Other keys are independent.
	other, err := l.Acquire(ctx, "app-2")
	require.NoError(t, err)
	defer other.Release(ctx)

	require.NoError(t, ls.Release(ctx))
	require.NoError(t, ls.Release(ctx))

	ls2, err := l.Acquire(ctx, "app-1")
	require.NoError(t, err)

	// A stale release must not free the new owner.
	require.NoError(t, ls.Release(ctx))
	_, err = l.Acquire(ctx, "app-1")
	assert.ErrorIs(t, err, model.ErrLeaseHeld)
	require.NoError(t, ls2.Release(ctx))

	select {
	case <-ls2.Lost():
		t.Fatal("released lease must not be reported as lost")
	default:
	}
}

func TestLeaserCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := memory.NewLeaser().Acquire(ctx, "app-1")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLeaserConcurrentAcquireHasSingleOwner(t *testing.T) {
	ctx := context.Background()
	l := memory.NewLeaser()

	var owners, rejected atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Acquire(ctx, "app-1")
			switch {
			case err == nil:
				owners.Add(1)
			case errors.Is(err, model.ErrLeaseHeld):
				rejected.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), owners.Load())
	assert.Equal(t, int32(49), rejected.Load())
}
