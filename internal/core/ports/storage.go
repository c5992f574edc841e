package ports

//go:generate mockgen -source=storage.go -destination=mocks/mock_storage.go -package=mocks

import (
	"context"
	"errors"

	"webcash-wallet/internal/core/sqlvalue"
)

// Driver-independent storage errors. Adapters wrap driver errors so that
// errors.Is matches these.
var (
	ErrNoRows          = errors.New("no rows in result set")
	ErrUniqueViolation = errors.New("unique constraint violation")
	ErrBusy            = errors.New("storage busy")
)

// Store opens transactions against the wallet database.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
	// Dialect is the SQL flavour statements are bound and written in.
	Dialect() sqlvalue.Dialect
	Close() error
}

// Tx is an open transaction. Statements use :name placeholders bound from
// params; no value is ever spliced into the text.
type Tx interface {
	// Exec runs a statement and returns the number of affected rows.
	Exec(ctx context.Context, stmt string, params sqlvalue.Params) (int64, error)
	QueryRow(ctx context.Context, stmt string, params sqlvalue.Params) Row
	Query(ctx context.Context, stmt string, params sqlvalue.Params) (Rows, error)
	Commit(ctx context.Context) error
	// Rollback is a no-op after Commit.
	Rollback(ctx context.Context) error
}

// Row is a single-row result. Scan returns ErrNoRows when empty.
type Row interface {
	Scan(dest ...any) error
}

// Rows iterates a multi-row result.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// Locker is the inter-process exclusive lock on a wallet.
type Locker interface {
	// TryLock acquires the lock without waiting. It returns false when
	// another process holds it.
	TryLock(ctx context.Context) (bool, error)
	Unlock() error
}
