package memory

import (
	"encoding/json"

	"github.com/beadswarm/beads/storage"
)

func marshalFloats(v []float64) string {
	if v == nil {
		return ""
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func unmarshalFloats(s string) []float64 {
	if s == "" {
		return nil
	}
	var v []float64
	_ = json.Unmarshal([]byte(s), &v)
	return v
}

func marshalStrings(v []string) string {
	if v == nil {
		v = []string{}
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func unmarshalStrings(s string) []string {
	if s == "" {
		return nil
	}
	var v []string
	_ = json.Unmarshal([]byte(s), &v)
	return v
}

func marshalMetadata(m map[string]any) string {
	if m == nil {
		return ""
	}
	b, _ := json.Marshal(m)
	return string(b)
}

func unmarshalMetadata(s string) map[string]any {
	if s == "" {
		return nil
	}
	var m map[string]any
	_ = json.Unmarshal([]byte(s), &m)
	return m
}

func toModel(m *Memory) *storage.MemoryModel {
	return &storage.MemoryModel{
		ID:           m.ID,
		Type:         string(m.Type),
		Content:      m.Content,
		Embedding:    marshalFloats(m.Embedding),
		Metadata:     marshalMetadata(m.Metadata),
		Importance:   m.Importance,
		CreatedAt:    m.CreatedAt,
		LastAccessed: m.LastAccessed,
		AccessCount:  m.AccessCount,
		ExpiresAt:    m.ExpiresAt,
		AgentID:      m.AgentID,
		TaskID:       m.TaskID,
		WorkspaceID:  m.WorkspaceID,
		Tags:         marshalStrings(m.Tags),
	}
}

func fromModel(row *storage.MemoryModel) *Memory {
	return &Memory{
		ID:           row.ID,
		Type:         Type(row.Type),
		Content:      row.Content,
		Embedding:    unmarshalFloats(row.Embedding),
		Metadata:     unmarshalMetadata(row.Metadata),
		Importance:   row.Importance,
		CreatedAt:    row.CreatedAt,
		LastAccessed: row.LastAccessed,
		AccessCount:  row.AccessCount,
		ExpiresAt:    row.ExpiresAt,
		AgentID:      row.AgentID,
		TaskID:       row.TaskID,
		WorkspaceID:  row.WorkspaceID,
		Tags:         unmarshalStrings(row.Tags),
	}
}

func fromModels(rows []storage.MemoryModel) []*Memory {
	out := make([]*Memory, len(rows))
	for i := range rows {
		out[i] = fromModel(&rows[i])
	}
	return out
}
