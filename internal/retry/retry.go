// Package retry implements the bounded exponential backoff policy of spec
// §4.3, §4.4: base 500ms, factor 2, max 30s, max 8 attempts. No pipeline
// calls Do: the Gap Filler retries through chainweb.Client's retryablehttp
// client, and the Tip Streamer reconnects with its own backoff loop.
package retry

import (
	"context"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy is the bounded exponential backoff schedule required by spec §4.4.
type Policy struct {
	BaseDelay   time.Duration
	Factor      float64
	MaxDelay    time.Duration
	MaxAttempts int
}

// Default returns the exact policy spec §4.4 prescribes.
func Default() Policy {
	return Policy{
		BaseDelay:   500 * time.Millisecond,
		Factor:      2,
		MaxDelay:    30 * time.Second,
		MaxAttempts: 8,
	}
}

// newBackOff builds a cenkalti/backoff ExponentialBackOff matching p, capped
// at p.MaxAttempts tries via backoff.WithMaxRetries.
func (p Policy) newBackOff() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.BaseDelay
	eb.Multiplier = p.Factor
	eb.MaxInterval = p.MaxDelay
	eb.MaxElapsedTime = 0 // bounded by attempt count instead, below
	eb.RandomizationFactor = 0
	return backoff.WithMaxRetries(eb, uint64(p.MaxAttempts-1))
}

// ErrExhausted is returned by Do when every attempt failed.
type ErrExhausted struct {
	Attempts int
	Last     error
}

func (e *ErrExhausted) Error() string {
	return "retry exhausted after " + strconv.Itoa(e.Attempts) + " attempts: " + e.Last.Error()
}

func (e *ErrExhausted) Unwrap() error { return e.Last }

// Do runs fn, retrying on any non-nil error according to p, and returns
// *ErrExhausted wrapping the last error once attempts are exhausted. fn is
// expected to respect ctx cancellation itself; Do also stops retrying
// immediately if ctx is cancelled between attempts.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	attempts := 0
	var lastErr error

	op := func() error {
		attempts++
		err := fn(ctx)
		lastErr = err
		return err
	}

	err := backoff.Retry(op, backoff.WithContext(p.newBackOff(), ctx))
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return &ErrExhausted{Attempts: attempts, Last: lastErr}
}
