package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func sqliteDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	return db
}

func mockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = raw.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{
		Conn:                 raw,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	return db, mock
}

func TestNewPoolManager_AppliesLimits(t *testing.T) {
	pm, err := NewPoolManager(sqliteDB(t), PoolConfig{
		MaxOpenConns:    7,
		MaxIdleConns:    3,
		ConnMaxLifetime: time.Minute,
	}, zap.NewNop())
	require.NoError(t, err)
	defer pm.Close()

	assert.Equal(t, 7, pm.Stats().MaxOpenConnections)
}

func TestPing_FailsAfterClose(t *testing.T) {
	pm, err := NewPoolManager(sqliteDB(t), PoolConfig{}, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, pm.Ping(context.Background()))
	require.NoError(t, pm.Close())
	assert.Error(t, pm.Ping(context.Background()))

	// Close is idempotent.
	assert.NoError(t, pm.Close())
}

func TestWithTransactionRetry_RetriesRetryableConflicts(t *testing.T) {
	db, mock := mockDB(t)
	pm, err := NewPoolManager(db, PoolConfig{}, zap.NewNop())
	require.NoError(t, err)

	// Two failed attempts roll back, the third commits.
	mock.ExpectBegin()
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectCommit()

	calls := 0
	err = pm.WithTransactionRetry(context.Background(), 3, time.Millisecond, func(tx *gorm.DB) error {
		calls++
		if calls < 3 {
			return errors.New("deadlock detected")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTransactionRetry_NonRetryableFailsFast(t *testing.T) {
	db, mock := mockDB(t)
	pm, err := NewPoolManager(db, PoolConfig{}, zap.NewNop())
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectRollback()

	calls := 0
	err = pm.WithTransactionRetry(context.Background(), 3, time.Millisecond, func(tx *gorm.DB) error {
		calls++
		return errors.New("unique constraint violated")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestWithTransactionRetry_ExhaustionSurfacesLastError(t *testing.T) {
	db, mock := mockDB(t)
	pm, err := NewPoolManager(db, PoolConfig{}, zap.NewNop())
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		mock.ExpectBegin()
		mock.ExpectRollback()
	}

	err = pm.WithTransactionRetry(context.Background(), 2, time.Millisecond, func(tx *gorm.DB) error {
		return errors.New("database is locked")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 retries")
	assert.Contains(t, err.Error(), "database is locked")
}

func TestIsRetryableError(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("Deadlock found when trying to get lock"), true},
		{errors.New("ERROR: could not serialize access (SQLSTATE 40001)"), true},
		{errors.New("database is locked"), true},
		{errors.New("Lock wait timeout exceeded"), true},
		{errors.New("driver: bad connection"), true},
		{errors.New("connection reset by peer"), true},
		{errors.New("UNIQUE constraint failed: tasks.id"), false},
		{errors.New("syntax error"), false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, isRetryableError(c.err), "%v", c.err)
	}
}
