// Package gapfill implements the Gap Filler (spec §4.4): periodic
// per-chain detection of missing height ranges, fetched and materialised
// via the node's HTTP API under bounded retry.
package gapfill

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/kadena-io/chainweb-indexer/internal/chainweb"
	"github.com/kadena-io/chainweb-indexer/internal/concurrency"
	"github.com/kadena-io/chainweb-indexer/internal/ledger"
	"github.com/kadena-io/chainweb-indexer/internal/logging"
	"github.com/kadena-io/chainweb-indexer/internal/materialise"
	"github.com/kadena-io/chainweb-indexer/internal/pubsub"
	"github.com/kadena-io/chainweb-indexer/internal/storage"
	"github.com/kadena-io/chainweb-indexer/internal/tracing"
)

// Config parameterises one GapFiller instance.
type Config struct {
	Network               string
	ChainCount            int
	MinHeight             uint64
	FetchIntervalInBlocks uint64
	RangesPerChainPerTick int // limit passed to NextMissingRange
}

// GapFiller runs the gap-detection-and-repair algorithm of spec §4.4.
type GapFiller struct {
	cfg    Config
	store  *storage.Store
	client *chainweb.Client
	sem    *concurrency.Semaphore // shares the node HTTP client's global 50-wide cap (spec §5)
	bus    *pubsub.Bus
	log    logging.Logger
}

// New builds a GapFiller. sem is the shared node-HTTP-client concurrency
// gate (spec §5: "one node HTTP client, shared, with a global concurrency
// cap of 50"), typically shared with the Guards Reconciler.
func New(cfg Config, store *storage.Store, client *chainweb.Client, sem *concurrency.Semaphore, bus *pubsub.Bus, log logging.Logger) *GapFiller {
	if cfg.RangesPerChainPerTick <= 0 {
		cfg.RangesPerChainPerTick = 1
	}
	if cfg.FetchIntervalInBlocks == 0 {
		cfg.FetchIntervalInBlocks = 200
	}
	return &GapFiller{cfg: cfg, store: store, client: client, sem: sem, bus: bus, log: log}
}

// Tick runs one detection-and-repair pass across every chain. Errors from
// individual chains are logged and do not abort the pass for other chains.
func (g *GapFiller) Tick(ctx context.Context) error {
	cut, err := g.client.Cut(ctx)
	if err != nil {
		return fmt.Errorf("fetching cut: %w", err)
	}

	for chainID := 0; chainID < g.cfg.ChainCount; chainID++ {
		tip, ok := cut.Hashes[fmt.Sprintf("%d", chainID)]
		if !ok {
			continue
		}
		if err := g.fillChain(ctx, chainID, tip.Height); err != nil {
			g.log.Error("gap fill failed for chain", "chainId", chainID, "err", err)
		}
	}
	return nil
}

func (g *GapFiller) fillChain(ctx context.Context, chainID int, tipHeight uint64) error {
	l := ledger.New(g.store.Pool)
	gaps, err := l.NextMissingRange(ctx, g.cfg.Network, chainID, g.cfg.MinHeight, tipHeight, g.cfg.RangesPerChainPerTick)
	if err != nil {
		return fmt.Errorf("detecting gaps: %w", err)
	}
	if len(gaps) == 0 {
		// No missing height below the tip: clear this chain's streaming errors.
		if err := l.DeleteStreamingErrorsForChain(ctx, chainID); err != nil {
			return fmt.Errorf("clearing streaming errors: %w", err)
		}
		return nil
	}
	for _, gap := range gaps {
		if err := g.fillRange(ctx, chainID, gap); err != nil {
			g.log.Error("gap range fill failed", "chainId", chainID, "from", gap.FromHeight, "to", gap.ToHeight, "err", err)
		}
	}
	return nil
}

// fillRange splits gap into chunks of cfg.FetchIntervalInBlocks heights and
// fetches/materialises each chunk under the bounded retry policy of spec
// §4.4, recording a SyncError on exhaustion.
func (g *GapFiller) fillRange(ctx context.Context, chainID int, gap chainweb.HeightRange) error {
	for from := gap.FromHeight; from <= gap.ToHeight; {
		to := from + g.cfg.FetchIntervalInBlocks - 1
		if to > gap.ToHeight {
			to = gap.ToHeight
		}
		if err := g.fillChunk(ctx, chainID, from, to); err != nil {
			return err
		}
		from = to + 1
	}
	return nil
}

func (g *GapFiller) fillChunk(ctx context.Context, chainID int, from, to uint64) (err error) {
	ctx, span := tracing.Start(ctx, "gapfill", "fillChunk", tracing.ChainID(chainID), tracing.Height(from))
	defer tracing.End(span, &err)

	headers, err := g.fetchHeaders(ctx, chainID, from, to)
	if err != nil {
		l := ledger.New(g.store.Pool)
		if recErr := l.RecordSyncError(ctx, chainweb.SyncError{
			Network: g.cfg.Network, ChainID: chainID, FromHeight: from, ToHeight: to, Source: chainweb.SourceAPI,
		}); recErr != nil {
			return fmt.Errorf("fetching headers failed (%w) and recording sync error failed: %v", err, recErr)
		}
		return fmt.Errorf("fetching headers [%d,%d] on chain %d exhausted retries: %w", from, to, chainID, err)
	}

	batch := &pubsub.Batch{}
	err = g.store.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		m := materialise.New(tx, g.cfg.Network)
		for _, hdr := range headers {
			payload, err := g.fetchPayload(ctx, hdr)
			if err != nil {
				return fmt.Errorf("fetching payload for %s: %w", hdr.Hash, err)
			}
			info, err := m.Materialise(ctx, chainweb.SourceAPI, hdr, payload)
			if err != nil {
				return fmt.Errorf("materialising %s: %w", hdr.Hash, err)
			}
			if info != nil {
				batch.Append(*info)
			}
		}
		return nil
	})
	if err != nil {
		batch.Discard()
		return err
	}
	g.bus.Commit(batch)
	return nil
}

// fetchHeaders fetches one chunk of headers, bounded by the shared node-API
// concurrency gate. The bounded-exponential-backoff policy of spec §4.4
// (base 500ms, factor 2, max 30s, max 8 attempts) lives in the retryablehttp
// client shared by every Gap Filler call (see chainweb.NewClient) rather
// than being re-applied here, so a chunk is attempted at most eight times
// in all, not eight times per semaphore acquisition.
func (g *GapFiller) fetchHeaders(ctx context.Context, chainID int, from, to uint64) ([]chainweb.RawHeader, error) {
	if err := g.sem.Acquire(ctx); err != nil {
		return nil, err
	}
	defer g.sem.Release()
	return g.client.HeaderBranch(ctx, chainID, from, to)
}

func (g *GapFiller) fetchPayload(ctx context.Context, hdr chainweb.RawHeader) (chainweb.DecodedPayload, error) {
	if err := g.sem.Acquire(ctx); err != nil {
		return chainweb.DecodedPayload{}, err
	}
	defer g.sem.Release()

	raw, err := g.client.PayloadWithOutputs(ctx, hdr.ChainID, hdr.PayloadHash)
	if err != nil {
		return chainweb.DecodedPayload{}, err
	}
	return chainweb.DecodePayload(*raw)
}

// StartRetryErrors re-attempts every recorded SyncError for the network,
// deleting it on success and leaving it in place on renewed failure (spec
// §4.4's "startRetryErrors sweep").
func (g *GapFiller) StartRetryErrors(ctx context.Context) error {
	l := ledger.New(g.store.Pool)
	errsList, err := l.ListSyncErrors(ctx, g.cfg.Network)
	if err != nil {
		return fmt.Errorf("listing sync errors: %w", err)
	}
	for _, e := range errsList {
		if err := g.fillChunk(ctx, e.ChainID, e.FromHeight, e.ToHeight); err != nil {
			g.log.Warn("sync error retry still failing", "chainId", e.ChainID, "from", e.FromHeight, "to", e.ToHeight, "err", err)
			continue
		}
		if err := l.DeleteSyncError(ctx, e.ID); err != nil {
			g.log.Error("deleting resolved sync error failed", "id", e.ID, "err", err)
		}
	}
	return nil
}
