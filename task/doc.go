// Copyright 2026 Beads Authors. All rights reserved.
// Use of this source code is governed by an MIT license, found in the
// LICENSE file.

/*
Package task implements the task store ("Beads"): the dependency-aware
task graph every agent claims work from.

# Overview

GormStore persists tasks as storage.TaskModel rows and exposes the full
lifecycle — create, claim, release, complete, fail, retry — behind the
Store interface. The claim algorithm is a guarded update inside a
retried transaction: select the highest-priority, oldest, skill-matching
ready row, then attempt `UPDATE ... WHERE status='ready'`; a zero
rows-affected result means a concurrent agent won the race, so the
select+update repeats up to ClaimRetries times.

# Core types

  - Task: the domain model (status, priority, dependencies, retry
    bookkeeping).
  - Store / GormStore: the persistence contract and its GORM-backed
    implementation.
  - Executor: the external collaborator that performs a claimed task's
    actual work; the store is agnostic to its process model.

# Capabilities

  - Dependency-gated status: blocked tasks become ready only once every
    dependency has completed (UpdateBlockedToReady).
  - Cycle rejection: Create/Update run a DFS over the dependency graph
    and reject a would-be cycle with VALIDATION; non-existent dependency
    ids are accepted and simply filtered out at claim time.
  - Fixed exponential retry backoff: 30s * 2^retry_count, via Fail and
    the FindRetryEligible/ResetForRetry pair.
*/
package task
