package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"webcash-wallet/internal/core/ports"
	"webcash-wallet/internal/core/sqlvalue"
)

// Tx implements ports.Tx over database/sql.
type Tx struct {
	tx *sql.Tx
}

func (t *Tx) Exec(ctx context.Context, stmt string, params sqlvalue.Params) (int64, error) {
	query, args, err := sqlvalue.Bind(sqlvalue.SQLite, stmt, params)
	if err != nil {
		return 0, err
	}
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, mapError(err)
	}
	return n, nil
}

func (t *Tx) QueryRow(ctx context.Context, stmt string, params sqlvalue.Params) ports.Row {
	query, args, err := sqlvalue.Bind(sqlvalue.SQLite, stmt, params)
	if err != nil {
		return errRow{err: err}
	}
	return row{row: t.tx.QueryRowContext(ctx, query, args...)}
}

func (t *Tx) Query(ctx context.Context, stmt string, params sqlvalue.Params) (ports.Rows, error) {
	query, args, err := sqlvalue.Bind(sqlvalue.SQLite, stmt, params)
	if err != nil {
		return nil, err
	}
	rs, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	return rows{rows: rs}, nil
}

func (t *Tx) Commit(_ context.Context) error {
	return mapError(t.tx.Commit())
}

func (t *Tx) Rollback(_ context.Context) error {
	err := t.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return mapError(err)
}

type row struct {
	row *sql.Row
}

func (r row) Scan(dest ...any) error {
	err := r.row.Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
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
	rows *sql.Rows
}

func (r rows) Next() bool             { return r.rows.Next() }
func (r rows) Scan(dest ...any) error { return mapError(r.rows.Scan(dest...)) }
func (r rows) Err() error             { return mapError(r.rows.Err()) }
func (r rows) Close() error           { return r.rows.Close() }
