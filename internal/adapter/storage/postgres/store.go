package postgres

import (
	"context"
	"errors"

	"webcash-wallet/internal/core/ports"
	"webcash-wallet/internal/core/sqlvalue"

	"github.com/jackc/pgx/v5"
)

// Store implements ports.Store on a PostgreSQL pool.
type Store struct {
	pool Pool
}

// NewStore wraps pool. The caller keeps ownership of the pool: a wallet's
// advisory lock pins one of its connections, so the pool can only be closed
// after the lock is released.
func NewStore(pool Pool) *Store {
	return &Store{pool: pool}
}

// Begin starts a new database transaction.
func (s *Store) Begin(ctx context.Context) (ports.Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	return &Tx{tx: tx}, nil
}

// Dialect reports sqlvalue.Postgres.
func (s *Store) Dialect() sqlvalue.Dialect {
	return sqlvalue.Postgres
}

// Close is a no-op; see NewStore.
func (s *Store) Close() error {
	return nil
}

// Tx implements ports.Tx over pgx.Tx.
type Tx struct {
	tx pgx.Tx
}

func (t *Tx) Exec(ctx context.Context, stmt string, params sqlvalue.Params) (int64, error) {
	query, args, err := sqlvalue.Bind(sqlvalue.Postgres, stmt, params)
	if err != nil {
		return 0, err
	}
	tag, err := t.tx.Exec(ctx, query, args...)
	if err != nil {
		return 0, mapError(err)
	}
	return tag.RowsAffected(), nil
}

func (t *Tx) QueryRow(ctx context.Context, stmt string, params sqlvalue.Params) ports.Row {
	query, args, err := sqlvalue.Bind(sqlvalue.Postgres, stmt, params)
	if err != nil {
		return errRow{err: err}
	}
	return row{row: t.tx.QueryRow(ctx, query, args...)}
}

func (t *Tx) Query(ctx context.Context, stmt string, params sqlvalue.Params) (ports.Rows, error) {
	query, args, err := sqlvalue.Bind(sqlvalue.Postgres, stmt, params)
	if err != nil {
		return nil, err
	}
	rs, err := t.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	return &rows{rows: rs}, nil
}

func (t *Tx) Commit(ctx context.Context) error {
	return mapError(t.tx.Commit(ctx))
}

func (t *Tx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return mapError(err)
}

type row struct {
	row pgx.Row
}

func (r row) Scan(dest ...any) error {
	err := r.row.Scan(dest...)
	if errors.Is(err, pgx.ErrNoRows) {
		return ports.ErrNoRows
	}
	return mapError(err)
}

type errRow struct {
	err error
}

func (r errRow) Scan(...any) error {
	return r.err
}

type rows struct {
	rows pgx.Rows
}

func (r *rows) Next() bool             { return r.rows.Next() }
func (r *rows) Scan(dest ...any) error { return mapError(r.rows.Scan(dest...)) }
func (r *rows) Err() error             { return mapError(r.rows.Err()) }

func (r *rows) Close() error {
	r.rows.Close()
	return nil
}
