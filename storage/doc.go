// Copyright 2026 Beads Authors. All rights reserved.
// Use of this source code is governed by an MIT license, found in the
// LICENSE file.

/*
Package storage is the storage engine underlying every other package in
this module: connection management over GORM, schema migration on open,
and the execute/batch/transaction primitives that the task store, lease
manager, message bus, memory store, and quality engine build their
guarantees on.

# Overview

Engine wraps a *gorm.DB plus an internal/database.PoolManager, selecting
sqlite (default, pure-Go modernc.org/sqlite), postgres, or mysql based on
config.StorageConfig.Driver. Opening an Engine runs pending migrations
via internal/migration before returning, so callers always see the
current schema.

# Core types

  - Engine: connection + transaction-retry policy.
  - TaskModel, AgentModel, LeaseModel, MessageModel, MemoryModel,
    QualitySnapshotModel, QualityBaselineModel: GORM row shapes for the
    seven tables this module persists.

# Capabilities

  - Transaction: runs a unit of work inside a transaction, retrying on
    conflict (deadlock, serialization failure, connection reset), making
    at most StorageConfig.MaxTxRetries attempts in total with exponential
    backoff starting at TxRetryBaseDelay. Exhausted retries surface
    TRANSACTION_ERROR.
  - Execute/Batch: raw-statement helpers for call sites that need atomic
    multi-statement writes outside the typed GORM model API.
*/
package storage
