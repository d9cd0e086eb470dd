package backfill

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

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

const defaultMaxKeys = 20

// Config parameterises one Backfiller instance over a single
// (network, chainID, prefix).
type Config struct {
	Network            string
	ChainID            int
	Prefix             string
	MaxKeys            int
	MaxIterations       int
	MaxConcurrentFetch int
}

// Backfiller runs the Archive Backfiller algorithm of spec §4.2 against one
// (network, chainId, prefix) triple.
type Backfiller struct {
	cfg   Config
	store *storage.Store
	os    ObjectStore
	bus   *pubsub.Bus
	log   logging.Logger
}

// New builds a Backfiller. store.Pool is used only to open the page
// transaction; the Materialiser and Ledger inside the loop are bound to
// that transaction, never to the pool directly (spec §4.2's "single
// surrounding transaction" contract).
func New(cfg Config, store *storage.Store, os ObjectStore, bus *pubsub.Bus, log logging.Logger) *Backfiller {
	if cfg.MaxKeys <= 0 {
		cfg.MaxKeys = defaultMaxKeys
	}
	if cfg.MaxConcurrentFetch <= 0 {
		cfg.MaxConcurrentFetch = 20
	}
	return &Backfiller{cfg: cfg, store: store, os: os, bus: bus, log: log}
}

// Run executes pages until the object-store listing is exhausted or
// cfg.MaxIterations is reached (0 means unbounded).
func (b *Backfiller) Run(ctx context.Context) error {
	for iter := 0; b.cfg.MaxIterations <= 0 || iter < b.cfg.MaxIterations; iter++ {
		more, err := b.runPage(ctx)
		if err != nil {
			return fmt.Errorf("backfill page: %w", err)
		}
		if !more {
			return nil
		}
	}
	return nil
}

// runPage runs one page of the algorithm and reports whether the listing
// had more keys to offer (i.e. whether another page should be attempted).
func (b *Backfiller) runPage(ctx context.Context) (gotPage bool, err error) {
	ctx, span := tracing.Start(ctx, "backfill", "runPage",
		tracing.ChainID(b.cfg.ChainID), tracing.Network(b.cfg.Network))
	defer tracing.End(span, &err)

	batch := &pubsub.Batch{}

	err = b.store.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		l := ledger.New(tx)
		cursor, err := l.FindLastCursor(ctx, b.cfg.Network, b.cfg.ChainID, b.cfg.Prefix, chainweb.SourceArchive)
		if err != nil {
			return fmt.Errorf("finding last cursor: %w", err)
		}
		var startAfter string
		if cursor != nil {
			startAfter = cursor.Key
		}

		keys, err := b.os.List(ctx, b.cfg.Prefix, b.cfg.MaxKeys, startAfter)
		if err != nil {
			return fmt.Errorf("listing keys: %w", err)
		}
		if len(keys) == 0 {
			return nil
		}
		gotPage = true

		if err := b.materialiseKeys(ctx, tx, keys, batch); err != nil {
			return err
		}

		return l.SaveCursor(ctx, chainweb.SyncStatus{
			Network: b.cfg.Network,
			ChainID: b.cfg.ChainID,
			Prefix:  b.cfg.Prefix,
			Source:  chainweb.SourceArchive,
			Key:     keys[len(keys)-1],
		})
	})
	if err != nil {
		batch.Discard()
		b.log.Error("archive page failed, rolled back", "network", b.cfg.Network, "chainId", b.cfg.ChainID, "prefix", b.cfg.Prefix, "err", err)
		return false, err
	}

	b.bus.Commit(batch)
	return gotPage, nil
}

// materialiseKeys fans out key fetch+decode work bounded by a semaphore,
// then materialises every envelope sequentially against tx — the DB writes
// themselves are not parallelised, only the object-store fetch/decode that
// precedes them (spec §4.2 step 4, §5's bounded fan-out).
func (b *Backfiller) materialiseKeys(ctx context.Context, tx pgx.Tx, keys []string, batch *pubsub.Batch) error {
	type fetched struct {
		hdr     chainweb.RawHeader
		payload chainweb.DecodedPayload
		key     string
		err     error
	}

	sem := concurrency.NewSemaphore(b.cfg.MaxConcurrentFetch)
	results := make([]fetched, len(keys))
	var wg sync.WaitGroup

	for i, key := range keys {
		i, key := i, key
		if err := sem.Acquire(ctx); err != nil {
			return fmt.Errorf("acquiring fetch slot: %w", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release()
			hdr, payload, err := b.fetchAndDecode(ctx, key)
			results[i] = fetched{hdr: hdr, payload: payload, key: key, err: err}
		}()
	}
	wg.Wait()

	m := materialise.New(tx, b.cfg.Network)
	for _, r := range results {
		if r.err != nil {
			return fmt.Errorf("fetching/decoding %s: %w", r.key, r.err)
		}
		info, err := m.Materialise(ctx, chainweb.SourceArchive, r.hdr, r.payload)
		if err != nil {
			return fmt.Errorf("materialising %s: %w", r.key, err)
		}
		if info != nil {
			batch.Append(*info)
		}
	}
	return nil
}

func (b *Backfiller) fetchAndDecode(ctx context.Context, key string) (chainweb.RawHeader, chainweb.DecodedPayload, error) {
	raw, err := b.os.Get(ctx, key)
	if err != nil {
		return chainweb.RawHeader{}, chainweb.DecodedPayload{}, fmt.Errorf("fetching object: %w", err)
	}
	var env chainweb.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return chainweb.RawHeader{}, chainweb.DecodedPayload{}, fmt.Errorf("unmarshalling envelope: %w", err)
	}
	payload, err := chainweb.DecodePayload(env.PayloadWithOutputs)
	if err != nil {
		return chainweb.RawHeader{}, chainweb.DecodedPayload{}, fmt.Errorf("decoding payload: %w", err)
	}
	return env.Header, payload, nil
}
