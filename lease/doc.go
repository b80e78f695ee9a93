// Copyright 2026 Beads Authors. All rights reserved.
// Use of this source code is governed by an MIT license, found in the
// LICENSE file.

/*
Package lease implements the file lease manager.

Agents working the same task graph can touch overlapping files; the
lease manager hands out short-lived, single-writer locks on file paths
so two agents never edit the same file at once.

# Core types

  - Lease: the domain model (holder, task, acquired/expiry timestamps,
    renewal count).
  - Manager / SQLManager: the contract and its GORM-backed
    implementation.

# Atomicity

Acquire must never read then write across a transaction boundary: two
agents racing for the same path could both observe "unheld" and both
write. SQLManager instead issues a single INSERT ... ON CONFLICT
statement whose DO UPDATE clause is itself conditional (owned by the
same agent, or expired) — the database resolves the race, not the
caller.
*/
package lease
