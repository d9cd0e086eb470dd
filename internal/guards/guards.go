// Package guards implements the Guards Reconciler (spec §4.6): a periodic
// wholesale rebuild of the Guards table from the node's current view of
// each balance-holding account, run in id-ascending batches of 1000 under a
// bounded-concurrency fan-out of Pact local calls.
package guards

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"

	"github.com/kadena-io/chainweb-indexer/internal/chainweb"
	"github.com/kadena-io/chainweb-indexer/internal/concurrency"
	"github.com/kadena-io/chainweb-indexer/internal/logging"
	"github.com/kadena-io/chainweb-indexer/internal/materialise"
	"github.com/kadena-io/chainweb-indexer/internal/storage"
	"github.com/kadena-io/chainweb-indexer/internal/tracing"
)

const (
	batchSize          = 1000
	defaultConcurrency = 50
)

// Reconciler rebuilds the Guards table from the node's current account
// guards. It is the Guards table's sole writer (spec §3's "Ownership").
type Reconciler struct {
	store  *storage.Store
	client *chainweb.Client
	sem    *concurrency.Semaphore
	log    logging.Logger
}

// New builds a Reconciler. sem is the shared node-HTTP-client concurrency
// gate of spec §5; passing the same semaphore the Gap Filler uses keeps the
// global 50-in-flight cap honest across both pipelines. A nil sem gets a
// private 50-wide one, matching spec §4.6's own concurrency figure.
func New(store *storage.Store, client *chainweb.Client, sem *concurrency.Semaphore, log logging.Logger) *Reconciler {
	if sem == nil {
		sem = concurrency.NewSemaphore(defaultConcurrency)
	}
	return &Reconciler{store: store, client: client, sem: sem, log: log}
}

// Run truncates the Guards table and repopulates it wholesale. On a batch
// failure, that batch is rolled back and reconciliation stops, leaving
// Guards partially populated until the next scheduled run (spec §4.6's "on
// batch failure, rollback that batch and abort the reconciliation").
func (r *Reconciler) Run(ctx context.Context) (err error) {
	ctx, span := tracing.Start(ctx, "guards", "Run")
	defer tracing.End(span, &err)

	if err := r.truncate(ctx); err != nil {
		return fmt.Errorf("truncating guards: %w", err)
	}

	var afterID int64
	total := 0
	for {
		rows, err := materialise.ListBalancesBatch(ctx, r.store.Pool, afterID, batchSize)
		if err != nil {
			return fmt.Errorf("listing balances batch after %d: %w", afterID, err)
		}
		if len(rows) == 0 {
			break
		}
		afterID = rows[len(rows)-1].ID

		if err := r.reconcileBatch(ctx, rows); err != nil {
			return fmt.Errorf("reconciling batch after id %d: %w", afterID, err)
		}
		total += len(rows)
		r.log.Info("guards batch reconciled", "count", len(rows), "throughAccountID", afterID)

		if len(rows) < batchSize {
			break
		}
	}
	r.log.Info("guards reconciliation complete", "totalAccounts", total)
	return nil
}

func (r *Reconciler) truncate(ctx context.Context) error {
	_, err := r.store.Pool.Exec(ctx, `TRUNCATE TABLE guards`)
	return err
}

// reconcileBatch fetches every row's current guard, bounded by r.sem, then
// bulk-inserts the successfully resolved ones inside a single transaction
// that is committed for this batch only (spec §4.6's "commit per batch").
func (r *Reconciler) reconcileBatch(ctx context.Context, rows []materialise.BalanceRow) error {
	type resolved struct {
		guard chainweb.Guard
		err   error
	}
	results := make([]resolved, len(rows))
	var wg sync.WaitGroup

	for i, row := range rows {
		i, row := i, row
		if err := r.sem.Acquire(ctx); err != nil {
			return fmt.Errorf("acquiring guard-lookup slot: %w", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer r.sem.Release()
			g, err := r.fetchGuard(ctx, row)
			results[i] = resolved{guard: g, err: err}
		}()
	}
	wg.Wait()

	var guards []chainweb.Guard
	for i, res := range results {
		if res.err != nil {
			r.log.Warn("skipping account with unresolvable guard", "account", rows[i].Account, "chainId", rows[i].ChainID, "err", res.err)
			continue
		}
		guards = append(guards, res.guard)
	}

	return r.store.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		for _, g := range guards {
			keys, err := json.Marshal(g.Keys)
			if err != nil {
				return fmt.Errorf("marshalling guard keys for %s: %w", g.Account, err)
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO guards (account, chain_id, module, keys, predicate)
				VALUES ($1,$2,$3,$4,$5)
			`, g.Account, g.ChainID, g.Module, keys, g.Predicate); err != nil {
				return fmt.Errorf("inserting guard for %s: %w", g.Account, err)
			}
		}
		return nil
	})
}

// fetchGuard issues one Pact local call asking the node for row's account
// details and extracts the guard it carries.
func (r *Reconciler) fetchGuard(ctx context.Context, row materialise.BalanceRow) (_ chainweb.Guard, err error) {
	ctx, span := tracing.Start(ctx, "guards", "fetchGuard", tracing.ChainID(row.ChainID))
	defer tracing.End(span, &err)

	body, err := buildDetailsQuery(row.Module, row.Account)
	if err != nil {
		return chainweb.Guard{}, fmt.Errorf("building details query: %w", err)
	}
	raw, err := r.client.PactLocal(ctx, row.ChainID, body)
	if err != nil {
		return chainweb.Guard{}, fmt.Errorf("pact local call: %w", err)
	}
	keys, predicate, err := parseGuard(raw)
	if err != nil {
		return chainweb.Guard{}, fmt.Errorf("parsing guard response: %w", err)
	}
	return chainweb.Guard{
		Account:   row.Account,
		ChainID:   row.ChainID,
		Module:    row.Module,
		Keys:      keys,
		Predicate: predicate,
	}, nil
}

// buildDetailsQuery builds the unsigned Pact local-call body that reads
// account's current details (balance + guard) from module, e.g.
// `(coin.details "k:abc...")`. The call is unsigned and non-transactional,
// so it needs neither signers nor a real nonce.
func buildDetailsQuery(module, account string) ([]byte, error) {
	code := fmt.Sprintf("(%s.details %q)", module, account)
	cmd := map[string]any{
		"payload": map[string]any{
			"exec": map[string]any{
				"code": code,
				"data": map[string]any{},
			},
		},
		"signers": []any{},
		"meta": map[string]any{
			"chainId":    "",
			"gasLimit":   150000,
			"gasPrice":   0,
			"sender":     "",
			"ttl":        600,
			"creationTime": 0,
		},
		"nonce": "guards-reconciler",
	}
	cmdJSON, err := json.Marshal(cmd)
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]any{
		"hash": "",
		"sigs": []any{},
		"cmd":  string(cmdJSON),
	})
}

// detailsResult is the {"guard": {...}} shape nested in a successful
// `(module.details account)` Pact local response.
type detailsResult struct {
	Result struct {
		Status string `json:"status"`
		Data   struct {
			Guard struct {
				Keys []string `json:"keys"`
				Pred string   `json:"pred"`
			} `json:"guard"`
		} `json:"data"`
		Error json.RawMessage `json:"error"`
	} `json:"result"`
}

func parseGuard(raw json.RawMessage) ([]string, string, error) {
	var out detailsResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, "", fmt.Errorf("unmarshalling pact local response: %w", err)
	}
	if out.Result.Status != "success" {
		return nil, "", fmt.Errorf("pact local call failed: %s", string(out.Result.Error))
	}
	return out.Result.Data.Guard.Keys, out.Result.Data.Guard.Pred, nil
}
