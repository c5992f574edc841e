// Package app opens and closes wallets: it takes the inter-process lock,
// opens the configured store and prepares the engine on it.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"webcash-wallet/config"
	"webcash-wallet/internal/adapter/storage/filelock"
	"webcash-wallet/internal/adapter/storage/postgres"
	"webcash-wallet/internal/adapter/storage/sqlite"
	"webcash-wallet/internal/core/ports"
	"webcash-wallet/internal/service"
	"webcash-wallet/pkg/apperror"
	"webcash-wallet/pkg/logger"

	"github.com/rs/zerolog"
)

// Wallet is an open wallet handle. The lock is held until Close.
type Wallet struct {
	mu     sync.Mutex
	closed bool

	engine *service.WalletServiceImpl
	root   service.HDRoot
	lock   ports.Locker
	health ports.HealthChecker
	// after runs once the lock is released.
	after []func()
	log   zerolog.Logger
}

// OpenWallet locks and opens the wallet described by cfg, migrates it and
// loads its HD root. Another open handle on the same wallet fails the call
// with LOCK_001. On any failure everything acquired so far is released.
func OpenWallet(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Wallet, error) {
	log = logger.Component(log, "wallet")

	switch cfg.Wallet.Backend {
	case config.BackendSQLite:
		return openSQLite(ctx, cfg.Wallet, log)
	case config.BackendPostgres:
		return openPostgres(ctx, cfg.Wallet, cfg.Database, log)
	default:
		return nil, apperror.Validation(fmt.Sprintf("unknown wallet backend %q", cfg.Wallet.Backend))
	}
}

func openSQLite(ctx context.Context, wc config.WalletConfig, log zerolog.Logger) (*Wallet, error) {
	if wc.Path == "" {
		return nil, apperror.Validation("wallet path must not be empty")
	}

	lockPath := filelock.PathFor(wc.Path)
	lock := filelock.New(lockPath)
	if err := acquire(ctx, lock, lockPath, log); err != nil {
		return nil, err
	}

	store, err := sqlite.Open(ctx, sqlite.Config{
		Path:        wc.Path,
		BusyTimeout: wc.BusyTimeout,
		MaxConns:    wc.MaxConns,
	}, log)
	if err != nil {
		unlockQuietly(lock, log)
		return nil, apperror.ErrStorage(err)
	}

	w := &Wallet{lock: lock, health: sqlite.NewHealthCheck(store), log: log}
	return w.start(ctx, store)
}

func openPostgres(ctx context.Context, wc config.WalletConfig, db config.DatabaseConfig, log zerolog.Logger) (*Wallet, error) {
	pool, err := postgres.NewPool(ctx, db, log)
	if err != nil {
		return nil, apperror.ErrStorage(err)
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		pool.Close()
		return nil, apperror.ErrStorage(fmt.Errorf("acquire lock session: %w", err))
	}
	lock := postgres.NewAdvisoryLock(conn, wc.Name, conn.Release)
	if err := acquire(ctx, lock, "advisory:"+wc.Name, log); err != nil {
		unlockQuietly(lock, log)
		pool.Close()
		return nil, err
	}

	w := &Wallet{
		lock:   lock,
		health: postgres.NewHealthCheck(pool),
		after:  []func(){pool.Close},
		log:    log,
	}
	return w.start(ctx, postgres.NewStore(pool))
}

func acquire(ctx context.Context, lock ports.Locker, name string, log zerolog.Logger) error {
	ok, err := lock.TryLock(ctx)
	if err != nil {
		return apperror.ErrStorage(err)
	}
	if !ok {
		return apperror.ErrWalletInUse(fmt.Errorf("%s is held by another process", name))
	}
	log.Info().Str("lock", name).Msg("wallet lock acquired")
	return nil
}

func unlockQuietly(lock ports.Locker, log zerolog.Logger) {
	if err := lock.Unlock(); err != nil {
		log.Error().Err(err).Msg("release wallet lock")
	}
}

// start prepares the engine on store. On failure the handle is closed.
func (w *Wallet) start(ctx context.Context, store ports.Store) (*Wallet, error) {
	w.engine = service.NewWalletService(store, logger.Component(w.log, "engine"))

	if err := w.engine.UpgradeDatabase(ctx); err != nil {
		return nil, w.abort(err)
	}
	root, err := w.engine.GetOrCreateHDRoot(ctx)
	if err != nil {
		return nil, w.abort(err)
	}
	w.root = root

	w.log.Info().
		Str("dialect", store.Dialect().String()).
		Int64("root_secret_id", root.SecretID).
		Msg("wallet opened")
	return w, nil
}

func (w *Wallet) abort(err error) error {
	if cerr := w.Close(); cerr != nil {
		w.log.Error().Err(cerr).Msg("close after failed open")
	}
	return err
}

// Engine is the wallet engine. It fails with LOCK_002 after Close.
func (w *Wallet) Engine() *service.WalletServiceImpl {
	return w.engine
}

// Root identifies the wallet's HD root secret.
func (w *Wallet) Root() service.HDRoot {
	return w.root
}

// HealthCheck pings the wallet's store.
func (w *Wallet) HealthCheck() ports.HealthChecker {
	return w.health
}

// Close closes the engine and its store, then releases the lock. Safe to
// call more than once.
func (w *Wallet) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	var errs []error
	if w.engine != nil {
		errs = append(errs, w.engine.Close())
	}
	if err := w.lock.Unlock(); err != nil {
		errs = append(errs, apperror.ErrStorage(err))
	}
	for _, f := range w.after {
		f()
	}

	w.log.Info().Msg("wallet closed")
	return errors.Join(errs...)
}
