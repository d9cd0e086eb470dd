package materialise

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/kadena-io/chainweb-indexer/internal/storage"
)

// Reconciler flips the canonical flag on transactions and transfers when a
// reorg is detected: two blocks sharing (chainId, height) (spec §4.5's
// "Canonicalisation").
type Reconciler struct {
	q storage.Querier
}

// NewReconciler builds a Reconciler bound to q, ordinarily a pgx.Tx shared
// with the Materialiser call that just observed the competing block.
func NewReconciler(q storage.Querier) *Reconciler {
	return &Reconciler{q: q}
}

type blockIdentity struct {
	ID         int64
	Hash       string
	ParentHash string
	Weight     string
}

// ReconcileHeight inspects every block at (chainID, height) and, if more
// than one exists, recomputes the canonical branch: the heaviest tip (ties
// broken lexicographically by hash) wins, and canonical is flipped on its
// transactions and transfers while every other branch at that height is
// marked non-canonical, walking forward along parent links until the
// branches reconverge or the indexed tip is reached.
func (r *Reconciler) ReconcileHeight(ctx context.Context, chainID int, height uint64) error {
	rows, err := r.q.Query(ctx, `
		SELECT id, hash, parent_hash, weight FROM blocks WHERE chain_id = $1 AND height = $2
	`, chainID, height)
	if err != nil {
		return fmt.Errorf("listing blocks at height: %w", err)
	}
	var candidates []blockIdentity
	for rows.Next() {
		var b blockIdentity
		if err := rows.Scan(&b.ID, &b.Hash, &b.ParentHash, &b.Weight); err != nil {
			rows.Close()
			return fmt.Errorf("scanning block identity: %w", err)
		}
		candidates = append(candidates, b)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	if len(candidates) < 2 {
		return nil
	}

	winner := heaviestTip(candidates)

	for _, b := range candidates {
		if err := r.setCanonicalFrom(ctx, chainID, b.Hash, b.Hash == winner.Hash); err != nil {
			return fmt.Errorf("reconciling branch from %s: %w", b.Hash, err)
		}
	}
	return nil
}

// heaviestTip returns the candidate with greatest Weight, breaking ties by
// lexicographically greatest Hash (spec §4.5: "heaviest tip is the one with
// greatest weight; ties broken by hash lexicographically").
func heaviestTip(candidates []blockIdentity) blockIdentity {
	best := candidates[0]
	for _, c := range candidates[1:] {
		if compareWeight(c.Weight, best.Weight) > 0 {
			best = c
			continue
		}
		if compareWeight(c.Weight, best.Weight) == 0 && c.Hash > best.Hash {
			best = c
		}
	}
	return best
}

// compareWeight compares two arbitrary-precision decimal-string weights by
// numeric value, not lexicographically — weight is stored as the wire's raw
// decimal string precisely because it can exceed any fixed-width integer.
func compareWeight(a, b string) int {
	na, nb := normalizeWeight(a), normalizeWeight(b)
	if len(na) != len(nb) {
		if len(na) < len(nb) {
			return -1
		}
		return 1
	}
	switch {
	case na < nb:
		return -1
	case na > nb:
		return 1
	default:
		return 0
	}
}

func normalizeWeight(s string) string {
	i := 0
	for i < len(s)-1 && s[i] == '0' {
		i++
	}
	return s[i:]
}

// setCanonicalFrom marks every transaction and transfer reachable by
// following parent links forward from startHash on chainID as canonical (or
// not), stopping once a height has no more descendants recorded.
func (r *Reconciler) setCanonicalFrom(ctx context.Context, chainID int, startHash string, canonical bool) error {
	hash := startHash
	for hash != "" {
		var blockID int64
		row := r.q.QueryRow(ctx, `SELECT id FROM blocks WHERE hash = $1 AND chain_id = $2`, hash, chainID)
		if err := row.Scan(&blockID); err != nil {
			if err == pgx.ErrNoRows {
				return nil
			}
			return fmt.Errorf("looking up block %s: %w", hash, err)
		}

		if _, err := r.q.Exec(ctx, `UPDATE transactions SET canonical = $1 WHERE block_id = $2`, canonical, blockID); err != nil {
			return fmt.Errorf("updating transaction canonical flag: %w", err)
		}
		if _, err := r.q.Exec(ctx, `
			UPDATE transfers SET canonical = $1
			WHERE transaction_id IN (SELECT id FROM transactions WHERE block_id = $2)
		`, canonical, blockID); err != nil {
			return fmt.Errorf("updating transfer canonical flag: %w", err)
		}

		childRow := r.q.QueryRow(ctx, `SELECT hash FROM blocks WHERE parent_hash = $1 AND chain_id = $2 LIMIT 1`, hash, chainID)
		var next string
		if err := childRow.Scan(&next); err != nil {
			if err == pgx.ErrNoRows {
				return nil
			}
			return fmt.Errorf("looking up child block: %w", err)
		}
		hash = next
	}
	return nil
}
