package ledger

import (
	"context"
	"fmt"
)

// EventRow is a cursor-friendly projection over the events table, returned
// by ListEventsAfter and ListEventsBefore to page history around a
// client-supplied cursor.
type EventRow struct {
	ID            int64
	TransactionID int64
	RequestKey    string
	ChainID       int
	OrderIndex    int
	Module        string
	Name          string
}

// ListEventsAfter returns up to limit events with id strictly greater than
// cursor, ordered by id ascending.
//
// Resolves spec §9 Open Question (a): the source's getBlockEvents defined
// its cursor condition inverted relative to the rest of the codebase
// (`after` compared with `<` and `before` with `>`). Per the spec's own
// instruction we fix the natural direction here: `after` means "strictly
// greater than", `before` means "strictly less than".
func (l *Ledger) ListEventsAfter(ctx context.Context, cursor int64, limit int) ([]EventRow, error) {
	return l.queryEventCursor(ctx, `id > $1`, cursor, limit, "ASC")
}

// ListEventsBefore returns up to limit events with id strictly less than
// cursor, ordered by id descending (most recent first). See
// ListEventsAfter's doc comment for the cursor-direction resolution.
func (l *Ledger) ListEventsBefore(ctx context.Context, cursor int64, limit int) ([]EventRow, error) {
	return l.queryEventCursor(ctx, `id < $1`, cursor, limit, "DESC")
}

func (l *Ledger) queryEventCursor(ctx context.Context, cond string, cursor int64, limit int, order string) ([]EventRow, error) {
	rows, err := l.q.Query(ctx, `
		SELECT id, transaction_id, request_key, chain_id, order_index, module, name
		FROM events
		WHERE `+cond+`
		ORDER BY id `+order+`
		LIMIT $2
	`, cursor, limit)
	if err != nil {
		return nil, fmt.Errorf("listing events by cursor: %w", err)
	}
	defer rows.Close()

	var out []EventRow
	for rows.Next() {
		var e EventRow
		if err := rows.Scan(&e.ID, &e.TransactionID, &e.RequestKey, &e.ChainID, &e.OrderIndex, &e.Module, &e.Name); err != nil {
			return nil, fmt.Errorf("scanning event row: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
