// Package ledger implements the Sync-Status Ledger (spec §4.1): durable
// per-(network, chain, prefix, source) progress cursors, plus gap detection
// over the Blocks table.
package ledger

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/kadena-io/chainweb-indexer/internal/chainweb"
	"github.com/kadena-io/chainweb-indexer/internal/storage"
)

// Ledger is a repository over sync_statuses / sync_errors / streaming_errors.
type Ledger struct {
	q storage.Querier
}

// New wraps q (a *pgxpool.Pool or a pgx.Tx) in a Ledger.
func New(q storage.Querier) *Ledger { return &Ledger{q: q} }

// FindLastCursor returns the current SyncStatus for the given identity, or
// nil if none has been recorded yet.
func (l *Ledger) FindLastCursor(ctx context.Context, network string, chainID int, prefix string, source chainweb.Source) (*chainweb.SyncStatus, error) {
	row := l.q.QueryRow(ctx, `
		SELECT id, network, chain_id, prefix, source, key, from_height, to_height, updated_at
		FROM sync_statuses
		WHERE network = $1 AND chain_id = $2 AND prefix = $3 AND source = $4
	`, network, chainID, prefix, source)

	var s chainweb.SyncStatus
	var src string
	if err := row.Scan(&s.ID, &s.Network, &s.ChainID, &s.Prefix, &src, &s.Key, &s.FromHeight, &s.ToHeight, &s.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("finding last cursor: %w", err)
	}
	s.Source = chainweb.Source(src)
	return &s, nil
}

// SaveCursor upserts s within the caller's transaction. The invariant that a
// cursor advance is persisted in the same transaction as the blocks it
// describes (spec §4.1) is enforced by the caller choosing l's underlying
// Querier to be that transaction, not by this method.
func (l *Ledger) SaveCursor(ctx context.Context, s chainweb.SyncStatus) error {
	_, err := l.q.Exec(ctx, `
		INSERT INTO sync_statuses (network, chain_id, prefix, source, key, from_height, to_height, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (network, chain_id, prefix, source)
		DO UPDATE SET key = EXCLUDED.key, from_height = EXCLUDED.from_height,
			to_height = EXCLUDED.to_height, updated_at = now()
	`, s.Network, s.ChainID, s.Prefix, string(s.Source), s.Key, s.FromHeight, s.ToHeight)
	if err != nil {
		return fmt.Errorf("saving cursor: %w", err)
	}
	return nil
}

// LastSyncForAllChains returns, for each chain, the SyncStatus with the
// highest ToHeight among the given sources.
func (l *Ledger) LastSyncForAllChains(ctx context.Context, network string, sources []chainweb.Source) ([]chainweb.SyncStatus, error) {
	srcStrings := make([]string, len(sources))
	for i, s := range sources {
		srcStrings[i] = string(s)
	}
	rows, err := l.q.Query(ctx, `
		SELECT DISTINCT ON (chain_id) id, network, chain_id, prefix, source, key, from_height, to_height, updated_at
		FROM sync_statuses
		WHERE network = $1 AND source = ANY($2)
		ORDER BY chain_id, to_height DESC
	`, network, srcStrings)
	if err != nil {
		return nil, fmt.Errorf("listing last sync for all chains: %w", err)
	}
	defer rows.Close()

	var out []chainweb.SyncStatus
	for rows.Next() {
		var s chainweb.SyncStatus
		var src string
		if err := rows.Scan(&s.ID, &s.Network, &s.ChainID, &s.Prefix, &src, &s.Key, &s.FromHeight, &s.ToHeight, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning sync status: %w", err)
		}
		s.Source = chainweb.Source(src)
		out = append(out, s)
	}
	return out, rows.Err()
}

// NextMissingRange returns up to limit contiguous height ranges on chainID
// that have no Block row, bounded below by minHeight and above by tip-1
// (spec §4.4's gap-detection contract). Ranges are returned lowest-height
// first.
func (l *Ledger) NextMissingRange(ctx context.Context, network string, chainID int, minHeight, tip uint64, limit int) ([]chainweb.HeightRange, error) {
	if tip == 0 || minHeight >= tip {
		return nil, nil
	}
	// present is the set of heights in [minHeight, tip) that already have a
	// block; missing heights are whatever generate_series leaves unmatched.
	// Consecutive missing heights are then grouped into ranges in Go, since
	// that grouping is awkward to express portably in SQL and the candidate
	// height count per chain is bounded by tip - minHeight, not unbounded.
	rows, err := l.q.Query(ctx, `
		SELECT g.height
		FROM generate_series($1::bigint, $2::bigint - 1) AS g(height)
		WHERE NOT EXISTS (
			SELECT 1 FROM blocks b WHERE b.chain_id = $3 AND b.height = g.height
		)
		ORDER BY g.height
	`, minHeight, tip, chainID)
	if err != nil {
		return nil, fmt.Errorf("querying missing heights: %w", err)
	}
	defer rows.Close()

	var missing []uint64
	for rows.Next() {
		var h uint64
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("scanning missing height: %w", err)
		}
		missing = append(missing, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return groupContiguous(missing, limit), nil
}

// RecordSyncError persists a retry-exhaustion record for a height range
// (spec §4.4's "record a SyncError and move on" contract).
func (l *Ledger) RecordSyncError(ctx context.Context, e chainweb.SyncError) error {
	_, err := l.q.Exec(ctx, `
		INSERT INTO sync_errors (network, chain_id, from_height, to_height, source, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
	`, e.Network, e.ChainID, e.FromHeight, e.ToHeight, string(e.Source))
	if err != nil {
		return fmt.Errorf("recording sync error: %w", err)
	}
	return nil
}

// ListSyncErrors returns every recorded SyncError for network, oldest first;
// read by GapFiller.StartRetryErrors.
func (l *Ledger) ListSyncErrors(ctx context.Context, network string) ([]chainweb.SyncError, error) {
	rows, err := l.q.Query(ctx, `
		SELECT id, network, chain_id, from_height, to_height, source, created_at
		FROM sync_errors
		WHERE network = $1
		ORDER BY created_at
	`, network)
	if err != nil {
		return nil, fmt.Errorf("listing sync errors: %w", err)
	}
	defer rows.Close()

	var out []chainweb.SyncError
	for rows.Next() {
		var e chainweb.SyncError
		var src string
		if err := rows.Scan(&e.ID, &e.Network, &e.ChainID, &e.FromHeight, &e.ToHeight, &src, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning sync error: %w", err)
		}
		e.Source = chainweb.Source(src)
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteSyncError removes a SyncError once a later retry succeeds.
func (l *Ledger) DeleteSyncError(ctx context.Context, id int64) error {
	if _, err := l.q.Exec(ctx, `DELETE FROM sync_errors WHERE id = $1`, id); err != nil {
		return fmt.Errorf("deleting sync error: %w", err)
	}
	return nil
}

// RecordStreamingError persists a block the Tip Streamer received but could
// not materialise, for later repair by the Gap Filler (spec §4.3).
func (l *Ledger) RecordStreamingError(ctx context.Context, e chainweb.StreamingError) error {
	_, err := l.q.Exec(ctx, `INSERT INTO streaming_errors (hash, chain_id) VALUES ($1, $2)`, e.Hash, e.ChainID)
	if err != nil {
		return fmt.Errorf("recording streaming error: %w", err)
	}
	return nil
}

// DeleteStreamingErrorsForChain clears every streaming error on chainID once
// the Gap Filler has repaired that chain's gaps.
func (l *Ledger) DeleteStreamingErrorsForChain(ctx context.Context, chainID int) error {
	if _, err := l.q.Exec(ctx, `DELETE FROM streaming_errors WHERE chain_id = $1`, chainID); err != nil {
		return fmt.Errorf("deleting streaming errors: %w", err)
	}
	return nil
}

func groupContiguous(heights []uint64, limit int) []chainweb.HeightRange {
	var ranges []chainweb.HeightRange
	for i := 0; i < len(heights); {
		start := heights[i]
		end := start
		j := i + 1
		for j < len(heights) && heights[j] == end+1 {
			end = heights[j]
			j++
		}
		ranges = append(ranges, chainweb.HeightRange{FromHeight: start, ToHeight: end})
		i = j
		if limit > 0 && len(ranges) >= limit {
			break
		}
	}
	return ranges
}
