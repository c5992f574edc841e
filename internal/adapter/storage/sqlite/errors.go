package sqlite

import (
	"errors"
	"fmt"
	"strings"

	"webcash-wallet/internal/core/ports"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// mapError wraps driver errors so that errors.Is matches the ports
// sentinels. Unclassified errors are returned unchanged.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		switch code {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return fmt.Errorf("%w: %w", ports.ErrUniqueViolation, err)
		}
		// Primary result code in the low byte.
		switch code & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return fmt.Errorf("%w: %w", ports.ErrBusy, err)
		}
		return err
	}

	// Busy errors raised while opening a connection are not always wrapped.
	if strings.Contains(err.Error(), "SQLITE_BUSY") {
		return fmt.Errorf("%w: %w", ports.ErrBusy, err)
	}
	return err
}
