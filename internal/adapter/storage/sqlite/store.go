package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"webcash-wallet/internal/core/ports"
	"webcash-wallet/internal/core/sqlvalue"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

const (
	driverName    = "sqlite"
	pragmaPrefix  = "_pragma"
	txLockOption  = "_txlock=immediate"
	defaultBusyMS = 5000

	// dsnReserved would end the file name early and drop the pragmas.
	dsnReserved = "?#"
)

// Config selects the database file and connection behaviour.
type Config struct {
	Path        string
	BusyTimeout time.Duration
	MaxConns    int
}

// Store implements ports.Store on a single SQLite file.
type Store struct {
	db   *sql.DB
	path string
}

// DSN builds the modernc.org/sqlite connection string: foreign keys on, WAL
// journal, full sync, and write locks taken at BEGIN.
func (c Config) DSN() string {
	busy := int64(defaultBusyMS)
	if c.BusyTimeout > 0 {
		busy = c.BusyTimeout.Milliseconds()
	}

	pragmas := []struct{ name, value string }{
		{"foreign_keys", "on"},
		{"journal_mode", "WAL"},
		{"busy_timeout", fmt.Sprint(busy)},
		{"synchronous", "full"},
		{"fullfsync", "true"},
	}
	opts := make(url.Values)
	for _, p := range pragmas {
		opts.Add(pragmaPrefix, p.name+"="+p.value)
	}
	return fmt.Sprintf("%s?%s&%s", c.Path, opts.Encode(), txLockOption)
}

// Open opens or creates the database file and verifies it is usable.
func Open(ctx context.Context, cfg Config, log zerolog.Logger) (*Store, error) {
	if cfg.Path == "" {
		return nil, errors.New("sqlite path is empty")
	}
	if strings.ContainsAny(cfg.Path, dsnReserved) {
		return nil, fmt.Errorf("sqlite path %q must not contain any of %q", cfg.Path, dsnReserved)
	}

	db, err := sql.Open(driverName, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}

	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = 1
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging sqlite database: %w", mapError(err))
	}

	log.Info().
		Str("path", cfg.Path).
		Int("max_conns", maxConns).
		Msg("SQLite database opened")

	return &Store{db: db, path: cfg.Path}, nil
}

// Begin starts an immediate (write-locking) transaction.
func (s *Store) Begin(ctx context.Context) (ports.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, mapError(err)
	}
	return &Tx{tx: tx}, nil
}

// Dialect reports sqlvalue.SQLite.
func (s *Store) Dialect() sqlvalue.Dialect {
	return sqlvalue.SQLite
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path is the database file.
func (s *Store) Path() string {
	return s.path
}
