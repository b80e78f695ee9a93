// Copyright 2026 Beads Authors. All rights reserved.
// Use of this source code is governed by an MIT license, found in the
// LICENSE file.

/*
Package scheduler drives the agent work loop and the coordinator's
background maintenance sweeps.

# Overview

Scheduler owns the long-running loops of a beads coordinator: the
stale-agent reaper, the retry-eligibility sweep, the message-expiry
sweep, and the expired-lease sweep, all coordinated on a single
errgroup. Worker is the per-agent state machine

	IDLE -> CLAIMING -> WORKING -> REPORTING -> IDLE
	                       |
	                    FAILED -> IDLE

composed from the primitives in the task, lease, bus, and registry
packages. Workers run on a bounded worker pool; multiple agents drain
the task graph in parallel, with the task store's atomic claim
guaranteeing no duplicate assignment.

# Shutdown

Shutdown is cooperative. Cancelling the context passed to Run stops
every loop; a worker holding an in-flight task releases it back to
ready and drops its leases before exiting. A hard kill is recovered by
the stale reaper once the agent's heartbeats lapse.
*/
package scheduler
