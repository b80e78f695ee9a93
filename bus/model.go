package bus

import "time"

// Message is the domain model for a unit of agent communication.
type Message struct {
	ID             string
	Type           string
	FromAgent      string
	ToAgent        string // empty means broadcast
	Payload        string
	AckRequired    bool
	DeliveredAt    *time.Time
	AcknowledgedAt *time.Time
	AcknowledgedBy string
	ExpiresAt      *time.Time
	CreatedAt      time.Time
}

// Broadcast reports whether the message has no specific recipient.
func (m *Message) Broadcast() bool { return m.ToAgent == "" }

// Expired reports whether the message's expiry has passed as of now.
func (m *Message) Expired(now time.Time) bool {
	return m.ExpiresAt != nil && !m.ExpiresAt.After(now)
}

// Acknowledged reports whether the message has been acked by anyone.
func (m *Message) Acknowledged() bool { return m.AcknowledgedAt != nil }

// Filter narrows a receive() call.
type Filter struct {
	Type        string
	UnreadOnly  bool // DeliveredAt IS NULL
	UnackedOnly bool // AcknowledgedAt IS NULL
	Limit       int
}
