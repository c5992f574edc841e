package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"webcash-wallet/internal/core/ports"
	"webcash-wallet/internal/core/securemem"
	"webcash-wallet/internal/core/sqlvalue"
	"webcash-wallet/pkg/apperror"

	"github.com/rs/zerolog"
)

// WalletServiceImpl implements ports.WalletService over a ports.Store.
// All store access is serialised by mu; the inter-process lock is held by
// whoever opened the store.
type WalletServiceImpl struct {
	mu     sync.Mutex
	store  ports.Store
	log    zerolog.Logger
	now    func() time.Time
	rand   io.Reader
	root   *hdRoot
	closed bool
}

// Option configures a WalletServiceImpl.
type Option func(*WalletServiceImpl)

// WithClock overrides time.Now for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *WalletServiceImpl) { s.now = now }
}

// WithRandom overrides crypto/rand as the source of root secrets.
func WithRandom(r io.Reader) Option {
	return func(s *WalletServiceImpl) { s.rand = r }
}

// NewWalletService creates a wallet engine. The store must already be open;
// call UpgradeDatabase and GetOrCreateHDRoot before anything else.
func NewWalletService(store ports.Store, log zerolog.Logger, opts ...Option) *WalletServiceImpl {
	s := &WalletServiceImpl{
		store: store,
		log:   log,
		now:   time.Now,
		rand:  rand.Reader,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close releases the cached root secret and closes the store. Safe to call
// more than once.
func (s *WalletServiceImpl) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.root != nil {
		s.root.secret.Destroy()
		s.root = nil
	}
	if err := s.store.Close(); err != nil {
		return apperror.ErrStorage(fmt.Errorf("close store: %w", err))
	}
	return nil
}

// lock acquires mu and fails if the wallet was closed. The caller must
// unlock on success.
func (s *WalletServiceImpl) lock() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return apperror.ErrWalletClosed()
	}
	return nil
}

func (s *WalletServiceImpl) dialect() sqlvalue.Dialect {
	return s.store.Dialect()
}

// withTx runs fn in a transaction that is committed only if fn succeeds.
func (s *WalletServiceImpl) withTx(ctx context.Context, fn func(tx ports.Tx) error) error {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return storageErr(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(tx); err != nil {
		return storageErr(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return storageErr(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

// storageErr passes AppErrors through and classifies everything else as a
// storage failure.
func storageErr(err error) error {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, ports.ErrBusy) {
		return apperror.ErrStorageBusy(err)
	}
	return apperror.ErrStorage(err)
}

func unixSeconds(t time.Time) sqlvalue.Value {
	return sqlvalue.Integer(t.Unix())
}

func fromUnix(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

// loadSecret copies a stored secret into locked memory.
func loadSecret(stored string) (*securemem.Secret, error) {
	sec, err := securemem.FromString(stored)
	if err != nil {
		return nil, fmt.Errorf("load secret: %w", err)
	}
	return sec, nil
}

// revealForStore produces the text bound into an INSERT. Drivers copy
// parameters into their own buffers, so the secret leaves locked memory here.
func revealForStore(sec *securemem.Secret) (sqlvalue.Value, error) {
	text, err := sec.Reveal()
	if err != nil {
		return sqlvalue.Value{}, err
	}
	return sqlvalue.Text(text), nil
}
