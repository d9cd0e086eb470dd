// Package daemon is the common run-loop shape used by the Archive
// Backfiller and Gap Filler commands (spec §5): a task that selects between a ticker and
// context cancellation, exactly the teacher's "task with cooperative
// suspension points" idiom, with process-wide shutdown modelled as a
// cancelled context rather than a bespoke shared flag.
package daemon

import (
	"context"
	"time"

	"github.com/kadena-io/chainweb-indexer/internal/logging"
)

// Tick is one unit of a daemon's periodic work. A non-nil error is logged
// and swallowed — per spec §7, "daemon wrappers never propagate to process
// exit except on explicit shutdown" — so a single bad tick never takes the
// whole process down.
type Tick func(ctx context.Context) error

// Run executes tick once immediately and then every interval, until ctx is
// cancelled. In-flight ticks are allowed to finish; the loop only checks
// for cancellation at a tick boundary, matching spec §4.4's "the loop exits
// at the next tick boundary. In-flight fetches are allowed to complete."
func Run(ctx context.Context, log logging.Logger, interval time.Duration, tick Tick) {
	runOnce(ctx, log, tick)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("daemon shutting down")
			return
		case <-ticker.C:
			runOnce(ctx, log, tick)
		}
	}
}

func runOnce(ctx context.Context, log logging.Logger, tick Tick) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("daemon tick panicked", "kind", "panic", "recovered", r)
		}
	}()
	if err := tick(ctx); err != nil {
		log.Error("daemon tick failed", "err", err)
	}
}
