package daemon

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kadena-io/chainweb-indexer/internal/logging"
)

func TestRunTicksImmediatelyThenOnInterval(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int32

	done := make(chan struct{})
	go func() {
		Run(ctx, logging.Discard, 5*time.Millisecond, func(ctx context.Context) error {
			n := atomic.AddInt32(&calls, 1)
			if n >= 3 {
				cancel()
			}
			return nil
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("daemon did not shut down after cancellation")
	}
	require.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(3))
}

func TestRunSwallowsTickErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int32

	done := make(chan struct{})
	go func() {
		Run(ctx, logging.Discard, 5*time.Millisecond, func(ctx context.Context) error {
			atomic.AddInt32(&calls, 1)
			cancel()
			return errors.New("tick failed")
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("daemon did not shut down after a failing tick")
	}
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestRunRecoversFromPanic(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int32

	done := make(chan struct{})
	go func() {
		Run(ctx, logging.Discard, 5*time.Millisecond, func(ctx context.Context) error {
			n := atomic.AddInt32(&calls, 1)
			if n == 1 {
				panic("boom")
			}
			cancel()
			return nil
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("daemon did not recover from a panicking tick")
	}
	require.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(2))
}
