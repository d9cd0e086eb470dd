// Package streamer implements the Tip Streamer (spec §4.3): an SSE client
// against the node's block-updates feed, with in-memory dedup, per-block
// materialisation, and StreamingError recording on persistence failure.
package streamer

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"

	"github.com/kadena-io/chainweb-indexer/internal/chainweb"
	"github.com/kadena-io/chainweb-indexer/internal/ledger"
	"github.com/kadena-io/chainweb-indexer/internal/logging"
	"github.com/kadena-io/chainweb-indexer/internal/materialise"
	"github.com/kadena-io/chainweb-indexer/internal/pubsub"
	"github.com/kadena-io/chainweb-indexer/internal/storage"
	"github.com/kadena-io/chainweb-indexer/internal/tracing"
)

const (
	dedupFlushInterval   = 10 * time.Minute
	guardsReconcileEvery = time.Hour
)

// Config parameterises one Streamer instance.
type Config struct {
	Network string
}

// Streamer consumes the node's SSE block-updates feed and materialises
// each delivered block.
type Streamer struct {
	cfg   Config
	store *storage.Store
	sse   *chainweb.SSEReader
	bus   *pubsub.Bus
	log   logging.Logger

	// ReconcileGuards is invoked once at startup and then every hour, per
	// spec §4.3's "the streamer also schedules the Guards Reconciler".
	// Left nil in tests that don't exercise guards scheduling.
	ReconcileGuards func(ctx context.Context) error

	mu   sync.Mutex
	seen map[string]struct{}
}

// New builds a Streamer. sse should be built over the shared node HTTP
// client (spec §5's "one node HTTP client, shared").
func New(cfg Config, store *storage.Store, sse *chainweb.SSEReader, bus *pubsub.Bus, log logging.Logger) *Streamer {
	return &Streamer{cfg: cfg, store: store, sse: sse, bus: bus, log: log, seen: make(map[string]struct{})}
}

// Run connects to the SSE stream and processes events until ctx is
// cancelled, reconnecting with exponential backoff on connection errors per
// spec §4.3's "the SSE client is expected to auto-reconnect". It also
// starts the dedup-set flush loop and the Guards Reconciler schedule.
func (s *Streamer) Run(ctx context.Context) error {
	go s.flushDedupLoop(ctx)
	go s.scheduleGuards(ctx)

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 500 * time.Millisecond
	eb.MaxInterval = 30 * time.Second
	eb.MaxElapsedTime = 0 // reconnect forever until ctx is cancelled

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		err := s.sse.Subscribe(ctx, s.handleEvent)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			s.log.Warn("sse connection lost, reconnecting", "err", err)
		}

		wait := eb.NextBackOff()
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

func (s *Streamer) flushDedupLoop(ctx context.Context) {
	ticker := time.NewTicker(dedupFlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			s.seen = make(map[string]struct{})
			s.mu.Unlock()
		}
	}
}

func (s *Streamer) scheduleGuards(ctx context.Context) {
	if s.ReconcileGuards == nil {
		return
	}
	run := func() {
		if err := s.ReconcileGuards(ctx); err != nil {
			s.log.Error("guards reconciliation failed", "err", err)
		}
	}
	run()

	ticker := time.NewTicker(guardsReconcileEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run()
		}
	}
}

func (s *Streamer) handleEvent(ev chainweb.SSEEvent) error {
	if ev.Type != "BlockHeader" {
		return nil
	}

	var env chainweb.Envelope
	if err := json.Unmarshal([]byte(ev.Data), &env); err != nil {
		s.log.Error("malformed block envelope, skipping", "kind", "schema-validation", "err", err)
		return nil
	}

	if s.isDuplicate(env.Header.Hash) {
		return nil
	}

	payload, err := chainweb.DecodePayload(env.PayloadWithOutputs)
	if err != nil {
		s.log.Error("malformed payload, skipping", "kind", "schema-validation", "hash", env.Header.Hash, "err", err)
		return nil
	}

	ctx := context.Background()
	info, err := s.materialiseOne(ctx, env.Header, payload)
	if err != nil {
		s.log.Error("persisting streamed block failed", "hash", env.Header.Hash, "chainId", env.Header.ChainID, "err", err)
		if recErr := s.recordStreamingError(ctx, env.Header.Hash, env.Header.ChainID); recErr != nil {
			s.log.Error("recording streaming error failed", "err", recErr)
		}
		return nil
	}
	if info != nil {
		batch := &pubsub.Batch{}
		batch.Append(*info)
		s.bus.Commit(batch)
	}
	return nil
}

// isDuplicate reports whether hash has already been observed since the
// last dedup-set flush, recording it if not (spec §4.3's "maintain an
// in-memory set of observed block hashes").
func (s *Streamer) isDuplicate(hash string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[hash]; ok {
		return true
	}
	s.seen[hash] = struct{}{}
	return false
}

func (s *Streamer) materialiseOne(ctx context.Context, hdr chainweb.RawHeader, payload chainweb.DecodedPayload) (info *chainweb.DispatchInfo, err error) {
	ctx, span := tracing.Start(ctx, "streamer", "materialiseOne", tracing.ChainID(hdr.ChainID), tracing.Height(hdr.Height))
	defer tracing.End(span, &err)

	err = s.store.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		m := materialise.New(tx, s.cfg.Network)
		out, err := m.Materialise(ctx, chainweb.SourceStreaming, hdr, payload)
		if err != nil {
			return err
		}
		info = out
		return nil
	})
	return info, err
}

func (s *Streamer) recordStreamingError(ctx context.Context, hash string, chainID int) error {
	l := ledger.New(s.store.Pool)
	return l.RecordStreamingError(ctx, chainweb.StreamingError{Hash: hash, ChainID: chainID})
}
