package postgres

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Conn is a single session. Advisory locks belong to the session that took
// them, so the lock must not go through a pool.
type Conn interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// AdvisoryLock implements ports.Locker with a session-level advisory lock.
type AdvisoryLock struct {
	conn    Conn
	key     int64
	release func()
	held    bool
}

// LockKey maps a wallet name to its advisory lock key.
func LockKey(name string) int64 {
	sum := sha256.Sum256([]byte("webcash-wallet:" + name + ".lock"))
	return int64(binary.BigEndian.Uint64(sum[:8]))
}

// NewAdvisoryLock locks name on conn. release, if set, is called after
// Unlock to return the connection.
func NewAdvisoryLock(conn Conn, name string, release func()) *AdvisoryLock {
	return &AdvisoryLock{conn: conn, key: LockKey(name), release: release}
}

// TryLock takes the lock without waiting.
func (l *AdvisoryLock) TryLock(ctx context.Context) (bool, error) {
	var ok bool
	if err := l.conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", l.key).Scan(&ok); err != nil {
		return false, fmt.Errorf("try advisory lock: %w", err)
	}
	l.held = ok
	return ok, nil
}

// Unlock releases the lock and the session.
func (l *AdvisoryLock) Unlock() error {
	defer func() {
		if l.release != nil {
			l.release()
			l.release = nil
		}
	}()
	if !l.held {
		return nil
	}
	l.held = false

	var ok bool
	if err := l.conn.QueryRow(context.Background(), "SELECT pg_advisory_unlock($1)", l.key).Scan(&ok); err != nil {
		return fmt.Errorf("advisory unlock: %w", err)
	}
	if !ok {
		return fmt.Errorf("advisory lock %d was not held", l.key)
	}
	return nil
}
