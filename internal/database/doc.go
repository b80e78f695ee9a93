// Copyright 2026 Beads Authors. All rights reserved.
// Use of this source code is governed by an MIT license, found in the
// LICENSE file.

/*
Package database provides GORM-backed connection pool management with
health checking and transaction retry.

# Overview

PoolManager wraps a gorm.DB, applying connection-pool limits to the
underlying sql.DB and owning the connection lifecycle: tuning, periodic
background health checks, and shutdown. The storage engine builds its
execute/batch/transaction contract on top of this package.

# Core types

  - PoolManager: the pool manager, exposing DB(), Ping(), Stats(),
    Close(), and transactional execution.
  - PoolConfig: pool limits — max idle/open connections, connection
    lifetime, idle timeout, health check interval.
  - TransactionFunc: the unit-of-work callback type.

# Capabilities

  - Pool tuning via MaxIdleConns/MaxOpenConns/ConnMaxLifetime.
  - Health checking: periodic background PingContext, zap-logged on
    failure.
  - Transactions: WithTransaction for a single attempt,
    WithTransactionRetry with exponential backoff for conflicts the
    engine classifies as retryable (deadlock, serialization failure,
    lock timeout, dropped connection).
*/
package database
