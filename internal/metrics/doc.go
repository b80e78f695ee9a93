// Copyright 2026 Beads Authors. All rights reserved.
// Use of this source code is governed by an MIT license, found in the
// LICENSE file.

/*
Package metrics provides Prometheus instrumentation for the task store,
lease manager, message bus, memory store, quality engine, and the
underlying database connection pool.

# Overview

Collector registers and records Prometheus metrics via promauto, so
series are added to the default registry automatically without manual
bookkeeping. Every metric is namespaced so multiple collectors (e.g. in
tests) can coexist without collision, and label dimensions keep the
series queryable by agent, status, message type, or regression
severity.

# Core types

  - Collector: holds the CounterVec/HistogramVec/GaugeVec instances for
    every instrumented subsystem.

# Capabilities

  - Task store: claim outcome counts, claim duration, retry counts,
    status transition counts.
  - Lease manager: acquisition outcome counts, expired-lease counts.
  - Message bus: sent/delivered/acknowledged counts, by message type.
  - Memory store: compaction run counts and evicted-entry counts,
    semantic search duration.
  - Quality engine: detected regressions by type and severity, gate
    failure counts.
  - Database: open/idle connection gauges, query duration histogram.
*/
package metrics
