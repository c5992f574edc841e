package service

import (
	"context"
	"fmt"

	"webcash-wallet/internal/core/ports"
	"webcash-wallet/internal/core/sqlvalue"
	"webcash-wallet/pkg/apperror"
)

// Version is one forward-only schema step. Migration runs inside the same
// transaction that records Number as the stored version.
type Version struct {
	Number    uint32
	Name      string
	Migration func(ctx context.Context, tx ports.Tx, d sqlvalue.Dialect) error
}

// Versions lists every schema step in increasing order.
var Versions = []Version{
	{Number: 1, Name: "initial schema", Migration: execSchema(schemaV1)},
	{Number: 2, Name: "hd chain depths", Migration: execSchema(schemaV2)},
}

// LatestSchemaVersion is the newest schema this build understands.
var LatestSchemaVersion = latestVersion(Versions)

func latestVersion(versions []Version) uint32 {
	if len(versions) == 0 {
		return 0
	}
	return versions[len(versions)-1].Number
}

const createSchemaVersion = `CREATE TABLE IF NOT EXISTS schema_version (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	version BIGINT NOT NULL
)`

var schemaV1 = []string{
	`CREATE TABLE secrets (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		created_at BIGINT NOT NULL,
		secret TEXT NOT NULL UNIQUE,
		mine BOOLEAN NOT NULL,
		sweep BOOLEAN NOT NULL
	)`,
	`CREATE TABLE outputs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		created_at BIGINT NOT NULL,
		commitment TEXT NOT NULL UNIQUE,
		secret_id BIGINT REFERENCES secrets (id),
		amount BIGINT NOT NULL CHECK (amount > 0),
		spent BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE INDEX outputs_spent_idx ON outputs (spent)`,
	`CREATE TABLE hd_root (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		secret_id BIGINT NOT NULL UNIQUE REFERENCES secrets (id)
	)`,
	`CREATE TABLE terms_accepted (
		terms_key TEXT PRIMARY KEY,
		accepted_at BIGINT NOT NULL
	)`,
}

var schemaV2 = []string{
	`CREATE TABLE hd_chains (
		chain_code BIGINT PRIMARY KEY,
		next_depth BIGINT NOT NULL CHECK (next_depth >= 0)
	)`,
}

func execSchema(stmts []string) func(context.Context, ports.Tx, sqlvalue.Dialect) error {
	return func(ctx context.Context, tx ports.Tx, d sqlvalue.Dialect) error {
		for _, stmt := range stmts {
			if _, err := tx.Exec(ctx, d.Schema(stmt), nil); err != nil {
				return err
			}
		}
		return nil
	}
}

// UpgradeDatabase brings the schema to LatestSchemaVersion, one transaction
// per step. A stored version newer than this build fails with STORE_002.
func (s *WalletServiceImpl) UpgradeDatabase(ctx context.Context) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()

	return s.upgrade(ctx, Versions)
}

func (s *WalletServiceImpl) upgrade(ctx context.Context, versions []Version) error {
	current, err := s.schemaVersion(ctx)
	if err != nil {
		return err
	}

	latest := latestVersion(versions)
	if current > latest {
		return apperror.ErrSchemaTooNew(current, latest)
	}

	for _, v := range versions {
		if v.Number <= current {
			continue
		}
		prev := current
		err := s.withTx(ctx, func(tx ports.Tx) error {
			if err := v.Migration(ctx, tx, s.dialect()); err != nil {
				return fmt.Errorf("migration %d (%s): %w", v.Number, v.Name, err)
			}
			n, err := tx.Exec(ctx,
				`UPDATE schema_version SET version = :next WHERE id = 1 AND version = :prev`,
				sqlvalue.Params{
					"next": sqlvalue.Integer(int64(v.Number)),
					"prev": sqlvalue.Integer(int64(prev)),
				})
			if err != nil {
				return fmt.Errorf("record schema version %d: %w", v.Number, err)
			}
			if n != 1 {
				return fmt.Errorf("schema version changed during migration %d", v.Number)
			}
			return nil
		})
		if err != nil {
			return err
		}
		current = v.Number

		s.log.Info().
			Uint32("version", v.Number).
			Str("name", v.Name).
			Str("dialect", s.dialect().String()).
			Msg("schema migration applied")
	}
	return nil
}

// schemaVersion creates the version row if needed and returns its value.
func (s *WalletServiceImpl) schemaVersion(ctx context.Context) (uint32, error) {
	var version int64
	err := s.withTx(ctx, func(tx ports.Tx) error {
		if _, err := tx.Exec(ctx, createSchemaVersion, nil); err != nil {
			return fmt.Errorf("create schema_version: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO schema_version (id, version) VALUES (1, 0) ON CONFLICT (id) DO NOTHING`, nil); err != nil {
			return fmt.Errorf("seed schema_version: %w", err)
		}
		if err := tx.QueryRow(ctx, `SELECT version FROM schema_version WHERE id = 1`, nil).Scan(&version); err != nil {
			return fmt.Errorf("read schema_version: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if version < 0 || version > int64(^uint32(0)) {
		return 0, apperror.ErrCorruptRecord(fmt.Errorf("schema version %d out of range", version))
	}
	return uint32(version), nil
}
