// Copyright 2026 Beads Authors. All rights reserved.
// Use of this source code is governed by an MIT license, found in the
// LICENSE file.

/*
Package bus implements the message bus: point-to-point and broadcast
agent-to-agent communication with delivery and acknowledgement tracking.

# Overview

GormBus persists messages as storage.MessageModel rows behind the Bus
interface. Receive resolves both addressed messages (to_agent = agent)
and broadcasts (to_agent IS NULL) in one query, ordered by created_at so
delivery order matches send order. MarkDelivered and Acknowledge are
guarded updates scoped to the calling agent, so a message already
claimed by another recipient (or already acknowledged) is left alone
rather than double-processed.

# Broadcast acknowledgement

Any one recipient's Acknowledge satisfies a broadcast: acknowledged_by
records whichever agent got there first, and a second recipient's ack
attempt is a no-op that returns the original acker rather than an
error — this is the resolved behavior for an otherwise ambiguous
"who acks a broadcast" question.

# At-least-once delivery

A consumer that crashes between MarkDelivered and Acknowledge will
re-observe the message on a subsequent Receive with UnackedOnly set,
since delivered_at alone does not remove a message from the unacked
set.

# Redis backend

RedisBus offers the same contract over a sorted-set-per-recipient plus
an all-index set, for deployments that want the bus decoupled from the
relational store.
*/
package bus
