package concurrency

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSemaphoreBoundsConcurrency(t *testing.T) {
	sem := NewSemaphore(2)
	var inFlight int32
	var maxObserved int32
	done := make(chan struct{})

	for i := 0; i < 8; i++ {
		go func() {
			require.NoError(t, sem.Acquire(context.Background()))
			defer sem.Release()
			n := atomic.AddInt32(&inFlight, 1)
			for {
				old := atomic.LoadInt32(&maxObserved)
				if n <= old || atomic.CompareAndSwapInt32(&maxObserved, old, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&inFlight, -1)
			done <- struct{}{}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}
	require.LessOrEqual(t, atomic.LoadInt32(&maxObserved), int32(2))
}

func TestSemaphoreAcquireRespectsCancellation(t *testing.T) {
	sem := NewSemaphore(1)
	require.NoError(t, sem.Acquire(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := sem.Acquire(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
