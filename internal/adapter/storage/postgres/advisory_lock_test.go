package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockKey_Stable(t *testing.T) {
	assert.Equal(t, LockKey("main"), LockKey("main"))
	assert.NotEqual(t, LockKey("main"), LockKey("other"))
}

func TestAdvisoryLock_LockUnlock(t *testing.T) {
	mock, err := pgxmock.NewConn()
	require.NoError(t, err)
	defer mock.Close(context.Background())

	key := LockKey("main")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT pg_try_advisory_lock($1)")).
		WithArgs(key).
		WillReturnRows(pgxmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(true))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT pg_advisory_unlock($1)")).
		WithArgs(key).
		WillReturnRows(pgxmock.NewRows([]string{"pg_advisory_unlock"}).AddRow(true))

	released := 0
	lock := NewAdvisoryLock(mock, "main", func() { released++ })

	ok, err := lock.TryLock(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, lock.Unlock())
	require.NoError(t, lock.Unlock())
	assert.Equal(t, 1, released)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdvisoryLock_HeldElsewhere(t *testing.T) {
	mock, err := pgxmock.NewConn()
	require.NoError(t, err)
	defer mock.Close(context.Background())

	mock.ExpectQuery(regexp.QuoteMeta("SELECT pg_try_advisory_lock($1)")).
		WithArgs(LockKey("main")).
		WillReturnRows(pgxmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(false))

	lock := NewAdvisoryLock(mock, "main", nil)
	ok, err := lock.TryLock(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	// Not held, so no unlock query is sent.
	require.NoError(t, lock.Unlock())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdvisoryLock_QueryError(t *testing.T) {
	mock, err := pgxmock.NewConn()
	require.NoError(t, err)
	defer mock.Close(context.Background())

	mock.ExpectQuery(regexp.QuoteMeta("SELECT pg_try_advisory_lock($1)")).
		WithArgs(LockKey("main")).
		WillReturnError(errors.New("connection reset"))

	lock := NewAdvisoryLock(mock, "main", nil)
	_, err = lock.TryLock(context.Background())
	assert.ErrorContains(t, err, "connection reset")
	assert.NoError(t, mock.ExpectationsWereMet())
}
