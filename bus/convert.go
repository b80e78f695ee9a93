package bus

import (
	"github.com/beadswarm/beads/storage"
)

func toModel(m *Message) *storage.MessageModel {
	var toAgent *string
	if m.ToAgent != "" {
		v := m.ToAgent
		toAgent = &v
	}
	return &storage.MessageModel{
		ID:             m.ID,
		Type:           m.Type,
		FromAgent:      m.FromAgent,
		ToAgent:        toAgent,
		Payload:        m.Payload,
		AckRequired:    m.AckRequired,
		DeliveredAt:    m.DeliveredAt,
		AcknowledgedAt: m.AcknowledgedAt,
		AcknowledgedBy: m.AcknowledgedBy,
		ExpiresAt:      m.ExpiresAt,
		CreatedAt:      m.CreatedAt,
	}
}

func fromModel(row *storage.MessageModel) *Message {
	var toAgent string
	if row.ToAgent != nil {
		toAgent = *row.ToAgent
	}
	return &Message{
		ID:             row.ID,
		Type:           row.Type,
		FromAgent:      row.FromAgent,
		ToAgent:        toAgent,
		Payload:        row.Payload,
		AckRequired:    row.AckRequired,
		DeliveredAt:    row.DeliveredAt,
		AcknowledgedAt: row.AcknowledgedAt,
		AcknowledgedBy: row.AcknowledgedBy,
		ExpiresAt:      row.ExpiresAt,
		CreatedAt:      row.CreatedAt,
	}
}

func fromModels(rows []storage.MessageModel) []*Message {
	out := make([]*Message, len(rows))
	for i := range rows {
		out[i] = fromModel(&rows[i])
	}
	return out
}
