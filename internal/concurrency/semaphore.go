// Package concurrency holds small shared concurrency primitives used to
// bound fan-out across the pipelines (spec §5): per-page fetch/decode
// fan-out in the Archive Backfiller, the Gap Filler's node-API calls, and
// in-flight guard lookups in the Guards Reconciler.
package concurrency

import "context"

// Semaphore is a bounded concurrency gate implemented with a buffered
// channel token pool — the teacher's own idiom for capping fan-out (see the
// worker-pool shape of its daemon-style subsystems) rather than pulling in
// golang.org/x/sync/semaphore for a capability this small.
type Semaphore struct {
	tokens chan struct{}
}

// NewSemaphore returns a Semaphore that allows up to n concurrent holders.
func NewSemaphore(n int) *Semaphore {
	return &Semaphore{tokens: make(chan struct{}, n)}
}

// Acquire blocks until a slot is free or ctx is cancelled.
func (s *Semaphore) Acquire(ctx context.Context) error {
	select {
	case s.tokens <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a slot acquired with Acquire.
func (s *Semaphore) Release() { <-s.tokens }
