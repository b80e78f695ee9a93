package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	_ "modernc.org/sqlite"

	"github.com/beadswarm/beads/config"
	"github.com/beadswarm/beads/internal/database"
	"github.com/beadswarm/beads/internal/migration"
	"github.com/beadswarm/beads/types"
)

// Engine owns the GORM connection, the connection pool, and the
// transaction-retry policy shared by every store in this module.
type Engine struct {
	db     *gorm.DB
	pool   *database.PoolManager
	cfg    config.StorageConfig
	clock  types.Clock
	logger *zap.Logger
}

// Open connects to the configured database, runs pending migrations, and
// returns a ready Engine. driver is one of "sqlite", "postgres", "mysql".
func Open(cfg config.StorageConfig, clock types.Clock, logger *zap.Logger) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "storage"))

	dialector, err := newDialector(cfg)
	if err != nil {
		return nil, types.NewError(types.ErrConnection, "unsupported storage driver").WithCause(err)
	}

	gormLogLevel := gormlogger.Silent
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormLogLevel),
	})
	if err != nil {
		return nil, types.NewError(types.ErrConnection, "failed to open database").WithCause(err)
	}

	if cfg.Driver == "sqlite" {
		db.Exec("PRAGMA journal_mode=WAL;")
		db.Exec("PRAGMA foreign_keys=ON;")
	}

	poolCfg := database.PoolConfig{
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxOpenConns:        cfg.MaxOpenConns,
		ConnMaxLifetime:     cfg.ConnMaxLifetime,
		ConnMaxIdleTime:     cfg.ConnMaxLifetime,
		HealthCheckInterval: 30 * time.Second,
	}
	pool, err := database.NewPoolManager(db, poolCfg, logger)
	if err != nil {
		return nil, types.NewError(types.ErrConnection, "failed to initialize connection pool").WithCause(err)
	}

	if clock == nil {
		clock = types.SystemClock{}
	}

	e := &Engine{db: db, pool: pool, cfg: cfg, clock: clock, logger: logger}

	if err := e.migrate(); err != nil {
		return nil, err
	}

	return e, nil
}

func newDialector(cfg config.StorageConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "", "sqlite":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = "beads.db"
		}
		return sqlite.Open(dsn), nil
	case "postgres", "postgresql":
		return postgres.Open(cfg.DSN), nil
	case "mysql":
		return mysql.Open(cfg.DSN), nil
	default:
		return nil, fmt.Errorf("unknown driver %q", cfg.Driver)
	}
}

func (e *Engine) migrate() error {
	m, err := migration.NewMigratorFromStorageConfig(e.cfg)
	if err != nil {
		return types.NewError(types.ErrConnection, "failed to initialize migrator").WithCause(err)
	}
	defer m.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := m.Up(ctx); err != nil {
		return types.NewError(types.ErrConnection, "failed to apply migrations").WithCause(err)
	}
	return nil
}

// DB returns the underlying *gorm.DB for package-internal store
// implementations.
func (e *Engine) DB() *gorm.DB {
	return e.db
}

// Clock returns the engine's injected clock.
func (e *Engine) Clock() types.Clock {
	return e.clock
}

// Close releases the underlying connection pool.
func (e *Engine) Close() error {
	return e.pool.Close()
}

// Ping verifies connectivity.
func (e *Engine) Ping(ctx context.Context) error {
	if err := e.pool.Ping(ctx); err != nil {
		return types.NewError(types.ErrConnection, "database unreachable").WithCause(err)
	}
	return nil
}

// Stats exposes raw sql.DBStats for metrics collection.
func (e *Engine) Stats() sql.DBStats {
	return e.pool.Stats()
}

// TxFunc is a unit of work run inside a single transaction.
type TxFunc func(tx *gorm.DB) error

// Transaction runs fn inside a transaction, retrying on conflict and
// making at most cfg.MaxTxRetries attempts in total, with exponential
// backoff starting at cfg.TxRetryBaseDelay. On retry exhaustion it
// surfaces TRANSACTION_ERROR.
func (e *Engine) Transaction(ctx context.Context, fn TxFunc) error {
	maxRetries := e.cfg.MaxTxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}
	err := e.pool.WithTransactionRetry(ctx, maxRetries, e.cfg.TxRetryBaseDelay, database.TransactionFunc(fn))
	if err == nil {
		return nil
	}
	if existing, ok := err.(*types.Error); ok {
		return existing
	}
	return types.NewError(types.ErrTransaction, "transaction retries exhausted").WithCause(err)
}

// Execute runs a single non-transactional write against the underlying
// *sql.DB, returning rows affected. Most callers should prefer typed
// GORM calls through DB(); Execute exists for raw-statement batch work.
func (e *Engine) Execute(ctx context.Context, stmt string, args ...any) (rowsAffected int64, err error) {
	result := e.db.WithContext(ctx).Exec(stmt, args...)
	if result.Error != nil {
		return 0, types.NewError(types.ErrConnection, "execute failed").WithCause(result.Error)
	}
	return result.RowsAffected, nil
}

// Batch applies every statement atomically: all succeed or none do.
func (e *Engine) Batch(ctx context.Context, stmts []BatchStatement) error {
	return e.Transaction(ctx, func(tx *gorm.DB) error {
		for _, s := range stmts {
			if res := tx.Exec(s.SQL, s.Args...); res.Error != nil {
				return res.Error
			}
		}
		return nil
	})
}

// BatchStatement is a single statement within a Batch call.
type BatchStatement struct {
	SQL  string
	Args []any
}
