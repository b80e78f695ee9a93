package bus

import (
	"context"
	"time"
)

// Bus is the message bus contract: point-to-point and broadcast
// delivery with acknowledgement tracking and expiry.
type Bus interface {
	// Send persists a point-to-point message. ToAgent must be non-empty;
	// use Broadcast for the to-everyone case.
	Send(ctx context.Context, m *Message) (*Message, error)

	// Broadcast persists a message with no specific recipient; any one
	// recipient's Acknowledge satisfies it.
	Broadcast(ctx context.Context, m *Message) (*Message, error)

	// Get fetches a single message by id.
	Get(ctx context.Context, id string) (*Message, error)

	// Receive returns messages addressed to agent (ToAgent == agent) or
	// broadcast (ToAgent empty), ordered by created_at ascending, newest
	// expiry-filtered, matching filter.
	Receive(ctx context.Context, agent string, f Filter) ([]*Message, error)

	// MarkDelivered stamps delivered_at on every id in ids whose
	// recipient matches agent, atomically. Already-delivered ids and ids
	// addressed to someone else are silently skipped.
	MarkDelivered(ctx context.Context, agent string, ids []string) error

	// Acknowledge stamps acknowledged_at/acknowledged_by on id if agent is
	// a valid recipient (exact match, or any recipient of a broadcast)
	// and the message is not already acknowledged. Acking an
	// already-acked broadcast is a no-op that returns the original
	// acker's id, not an error.
	Acknowledge(ctx context.Context, id, agent string) (ackedBy string, err error)

	// GetUnacknowledged returns ack_required messages with no
	// acknowledged_at, optionally limited to ones created before
	// olderThan (zero value disables the bound).
	GetUnacknowledged(ctx context.Context, olderThan time.Time) ([]*Message, error)

	// DeleteExpired removes every message whose expires_at has passed,
	// returning the count removed.
	DeleteExpired(ctx context.Context) (int64, error)
}
