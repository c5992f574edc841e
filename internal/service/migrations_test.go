package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"webcash-wallet/internal/core/ports"
	"webcash-wallet/internal/core/sqlvalue"
	"webcash-wallet/pkg/apperror"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpgradeDatabase_FreshStore(t *testing.T) {
	w := newEngine(t, filepath.Join(t.TempDir(), "wallet.db"))
	ctx := context.Background()

	require.NoError(t, w.UpgradeDatabase(ctx))

	v, err := w.schemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, LatestSchemaVersion, v)

	for _, table := range []string{"secrets", "outputs", "hd_root", "terms_accepted", "hd_chains"} {
		assert.Equal(t, int64(1),
			count(t, w, `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = '`+table+`'`),
			"table %s", table)
	}
}

func TestUpgradeDatabase_Idempotent(t *testing.T) {
	w := newEngine(t, filepath.Join(t.TempDir(), "wallet.db"))
	ctx := context.Background()

	require.NoError(t, w.UpgradeDatabase(ctx))
	require.NoError(t, w.UpgradeDatabase(ctx))

	v, err := w.schemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, LatestSchemaVersion, v)
}

func TestUpgradeDatabase_ResumesFromStoredVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallet.db")
	ctx := context.Background()

	w := newEngine(t, path)
	require.NoError(t, w.upgrade(ctx, Versions[:1]))
	v, err := w.schemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), v)
	assert.Equal(t, int64(0), count(t, w, `SELECT COUNT(*) FROM sqlite_master WHERE name = 'hd_chains'`))

	require.NoError(t, w.UpgradeDatabase(ctx))
	v, err = w.schemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, LatestSchemaVersion, v)
}

func TestUpgradeDatabase_FailedStepRollsBack(t *testing.T) {
	w := newEngine(t, filepath.Join(t.TempDir(), "wallet.db"))
	ctx := context.Background()

	versions := []Version{
		Versions[0],
		{Number: 2, Name: "broken", Migration: func(ctx context.Context, tx ports.Tx, d sqlvalue.Dialect) error {
			if _, err := tx.Exec(ctx, `CREATE TABLE half_done (id INTEGER)`, nil); err != nil {
				return err
			}
			return errors.New("boom")
		}},
	}

	err := w.upgrade(ctx, versions)
	require.Error(t, err)
	assert.Equal(t, apperror.KindStorage, apperror.KindOf(err))

	v, err := w.schemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), v, "version stays at the last completed step")
	assert.Equal(t, int64(0), count(t, w, `SELECT COUNT(*) FROM sqlite_master WHERE name = 'half_done'`))
}

func TestUpgradeDatabase_RefusesNewerSchema(t *testing.T) {
	w := newEngine(t, filepath.Join(t.TempDir(), "wallet.db"))
	ctx := context.Background()
	require.NoError(t, w.UpgradeDatabase(ctx))

	require.NoError(t, w.withTx(ctx, func(tx ports.Tx) error {
		_, err := tx.Exec(ctx, `UPDATE schema_version SET version = :v WHERE id = 1`,
			sqlvalue.Params{"v": sqlvalue.Integer(int64(LatestSchemaVersion) + 1)})
		return err
	}))

	err := w.UpgradeDatabase(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperror.ErrSchemaTooNew(0, 0))

	v, err := w.schemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, LatestSchemaVersion+1, v, "stored version is left untouched")
}

func TestUpgradeDatabase_CorruptVersion(t *testing.T) {
	w := newEngine(t, filepath.Join(t.TempDir(), "wallet.db"))
	ctx := context.Background()
	require.NoError(t, w.UpgradeDatabase(ctx))

	require.NoError(t, w.withTx(ctx, func(tx ports.Tx) error {
		_, err := tx.Exec(ctx, `UPDATE schema_version SET version = -1 WHERE id = 1`, nil)
		return err
	}))

	assert.ErrorIs(t, w.UpgradeDatabase(ctx), apperror.ErrCorruptRecord(nil))
}

func TestLatestVersion(t *testing.T) {
	assert.Equal(t, uint32(0), latestVersion(nil))
	assert.Equal(t, uint32(2), latestVersion(Versions))
	for i := 1; i < len(Versions); i++ {
		assert.Greater(t, Versions[i].Number, Versions[i-1].Number, "versions must increase")
	}
}
