// Package filelock implements the inter-process wallet lock with an
// exclusive lock on a sidecar file.
package filelock

import (
	"context"
	"fmt"

	"github.com/gofrs/flock"
)

// Suffix is appended to the wallet path to name its lock file.
const Suffix = ".lock"

// PathFor derives the lock file path for a wallet file. Two handles on the
// same wallet path always contend on the same lock.
func PathFor(walletPath string) string {
	return walletPath + Suffix
}

// Lock implements ports.Locker.
type Lock struct {
	fl *flock.Flock
}

// New prepares a lock on path without acquiring it.
func New(path string) *Lock {
	return &Lock{fl: flock.New(path)}
}

// TryLock takes the exclusive lock without waiting. It returns false when
// another process holds it.
func (l *Lock) TryLock(_ context.Context) (bool, error) {
	ok, err := l.fl.TryLock()
	if err != nil {
		return false, fmt.Errorf("lock %s: %w", l.fl.Path(), err)
	}
	return ok, nil
}

// Unlock releases the lock. The lock file is left in place.
func (l *Lock) Unlock() error {
	if err := l.fl.Unlock(); err != nil {
		return fmt.Errorf("unlock %s: %w", l.fl.Path(), err)
	}
	return nil
}

// Path is the lock file.
func (l *Lock) Path() string {
	return l.fl.Path()
}
