// Package storage is the relational persistence layer: a pgx connection
// pool, a Querier abstraction usable both inside and outside an explicit
// transaction, and the schema migrator. The teacher has no relational
// driver of its own (it persists to an embedded KV store), so this package
// is grounded instead on the pgx-based indexer storage layers retrieved
// alongside it (see DESIGN.md: gallery-so-go-gallery, 0xkanth-polymarket-indexer).
package storage

import (
	"context"
	"errors"
	"fmt"

	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kadena-io/chainweb-indexer/internal/errs"
)

// Querier is satisfied by both *pgxpool.Pool and pgx.Tx, letting repository
// methods run either standalone or inside a caller-managed transaction — the
// standard pgx idiom, and the shape spec §4.1's "upsert within a
// caller-provided transaction" requires throughout the Sync-Status Ledger
// and Materialiser.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store owns the connection pool and begins transactions for callers that
// need one (the Archive Backfiller's one-transaction-per-page contract, the
// Materialiser's one-transaction-per-block-or-page contract, the Guards
// Reconciler's one-transaction-per-batch contract).
type Store struct {
	Pool *pgxpool.Pool
}

// Open connects to dsn and returns a ready Store. Every pooled connection
// registers the shopspring/decimal codec for NUMERIC columns, so Transfer
// and Balance amounts round-trip as decimal.Decimal without an intermediate
// string conversion at every call site.
func Open(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing database url: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("opening database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return &Store{Pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() { s.Pool.Close() }

// WithTx runs fn inside a new transaction, committing on a nil return and
// rolling back otherwise. This is the single place transaction lifecycle is
// decided, used by every pipeline that needs the "commit the whole page or
// none" contract of spec §4.2 and the "all writes commit as a unit" contract
// of spec §4.5.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op if already committed

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// TranslateError maps a pgx/pgconn error to the package's error-kind
// taxonomy, in particular recognising Postgres's unique_violation SQLSTATE
// (23505) as errs.ErrUniqueViolation so the Materialiser can treat a
// duplicate Block.hash insert as idempotent success without importing pgx
// itself (spec §4.5 step 2, §7 "persistence conflict").
func TranslateError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", errs.ErrUniqueViolation, pgErr.ConstraintName)
	}
	return err
}
