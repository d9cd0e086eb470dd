package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDoSucceedsWithoutRetry(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(), func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, calls)
}

func TestDoRetriesThenSucceeds(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestDoExhaustsAttempts(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	err := Do(context.Background(), fastPolicy(), func(ctx context.Context) error {
		calls++
		return boom
	})
	require.Error(t, err)
	var exhausted *ErrExhausted
	require.ErrorAs(t, err, &exhausted)
	require.Equal(t, fastPolicy().MaxAttempts, calls)
	require.ErrorIs(t, err, boom)
}

func TestDoStopsOnContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, fastPolicy(), func(ctx context.Context) error {
		calls++
		cancel()
		return errors.New("transient")
	})
	require.Error(t, err)
	require.LessOrEqual(t, calls, fastPolicy().MaxAttempts)
}

// fastPolicy mirrors Default()'s shape but with millisecond-scale delays so
// the exhaustion tests above don't take the real policy's ~1 minute.
func fastPolicy() Policy {
	return Policy{
		BaseDelay:   time.Millisecond,
		Factor:      2,
		MaxDelay:    10 * time.Millisecond,
		MaxAttempts: 4,
	}
}

func TestDefaultPolicyMatchesSpec(t *testing.T) {
	p := Default()
	require.Equal(t, 500*time.Millisecond, p.BaseDelay)
	require.Equal(t, 2.0, p.Factor)
	require.Equal(t, 30*time.Second, p.MaxDelay)
	require.Equal(t, 8, p.MaxAttempts)
}
