package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"

	"github.com/beadswarm/beads/config"
	"github.com/beadswarm/beads/types"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "beads.db")
	cfg := config.DefaultStorageConfig()
	cfg.DSN = dbPath
	e, err := Open(cfg, types.SystemClock{}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestOpen_RunsMigrations(t *testing.T) {
	e := testEngine(t)

	var count int64
	err := e.DB().Table("tasks").Count(&count).Error
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestEngine_Transaction_Commit(t *testing.T) {
	e := testEngine(t)

	now := time.Now().UTC()
	err := e.Transaction(context.Background(), func(tx *gorm.DB) error {
		return tx.Create(&TaskModel{
			ID: "bd-00000001", Title: "t1", Priority: "medium", Status: "pending",
			RequiredSkills: "[]", Files: "[]", PreviousAgents: "[]",
			Dependencies: "[]", Blockers: "[]", CreatedAt: now, UpdatedAt: now,
		}).Error
	})
	require.NoError(t, err)

	var count int64
	require.NoError(t, e.DB().Table("tasks").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestEngine_TransactionRetryExhaustion(t *testing.T) {
	e := testEngine(t)
	e.cfg.MaxTxRetries = 2

	attempts := 0
	err := e.Transaction(context.Background(), func(tx *gorm.DB) error {
		attempts++
		return errors.New("deadlock detected")
	})

	require.Error(t, err)
	assert.Equal(t, types.ErrTransaction, types.KindOf(err))
	assert.Equal(t, 2, attempts)
}

func TestEngine_TransactionNonRetryableFailsFast(t *testing.T) {
	e := testEngine(t)
	e.cfg.MaxTxRetries = 5

	attempts := 0
	err := e.Transaction(context.Background(), func(tx *gorm.DB) error {
		attempts++
		return errors.New("constraint violation")
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestEngine_Ping(t *testing.T) {
	e := testEngine(t)
	err := e.Ping(context.Background())
	assert.NoError(t, err)
}

func TestEngine_Batch_Atomic(t *testing.T) {
	e := testEngine(t)

	now := time.Now().UTC()
	err := e.Batch(context.Background(), []BatchStatement{
		{SQL: "INSERT INTO tasks (id, title, priority, status, required_skills, files, previous_agents, dependencies, blockers, created_at, updated_at) VALUES (?,?,?,?,?,?,?,?,?,?,?)",
			Args: []any{"bd-00000001", "t1", "medium", "pending", "[]", "[]", "[]", "[]", "[]", now, now}},
		{SQL: "INSERT INTO tasks (id, title, priority, status, required_skills, files, previous_agents, dependencies, blockers, created_at, updated_at) VALUES (?,?,?,?,?,?,?,?,?,?,?)",
			Args: []any{"bd-00000002", "t2", "medium", "pending", "[]", "[]", "[]", "[]", "[]", now, now}},
	})
	require.NoError(t, err)

	var count int64
	require.NoError(t, e.DB().Table("tasks").Count(&count).Error)
	assert.Equal(t, int64(2), count)
}
