package postgres

import (
	"errors"
	"fmt"

	"webcash-wallet/internal/core/ports"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

// mapError wraps driver errors so that errors.Is matches the ports
// sentinels. Unclassified errors are returned unchanged.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		return fmt.Errorf("%w: %w", ports.ErrUniqueViolation, err)
	case pgerrcode.SerializationFailure,
		pgerrcode.DeadlockDetected,
		pgerrcode.LockNotAvailable,
		pgerrcode.InFailedSQLTransaction:
		return fmt.Errorf("%w: %w", ports.ErrBusy, err)
	default:
		return err
	}
}
