package registry

import (
	"encoding/json"

	"github.com/beadswarm/beads/storage"
)

func marshalSkills(v []string) string {
	if v == nil {
		v = []string{}
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func unmarshalSkills(s string) []string {
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

func toModel(a *Agent) *storage.AgentModel {
	return &storage.AgentModel{
		ID:                  a.ID,
		Name:                a.Name,
		Type:                a.Type,
		Skills:              marshalSkills(a.Capabilities.Skills),
		MaxTaskMinutes:      a.Capabilities.MaxTaskMinutes,
		CanRunTests:         a.Capabilities.CanRunTests,
		CanRunBuild:         a.Capabilities.CanRunBuild,
		CanAccessBrowser:    a.Capabilities.CanAccessBrowser,
		Status:              string(a.Status),
		CurrentTaskID:       a.CurrentTaskID,
		CurrentTaskProgress: a.CurrentTaskProgress,
		CurrentPhase:        a.CurrentPhase,
		LastHeartbeatAt:     a.LastHeartbeatAt,
		HeartbeatCount:      a.HeartbeatCount,
		TasksCompleted:      a.TasksCompleted,
		TasksFailed:         a.TasksFailed,
		TotalRuntimeMinutes: a.TotalRuntimeMinutes,
		MachineMetadata:     marshalMetadata(a.MachineMetadata),
		CreatedAt:           a.CreatedAt,
		UpdatedAt:           a.UpdatedAt,
	}
}

func fromModel(row *storage.AgentModel) *Agent {
	return &Agent{
		ID:   row.ID,
		Name: row.Name,
		Type: row.Type,
		Capabilities: Capabilities{
			Skills:           unmarshalSkills(row.Skills),
			MaxTaskMinutes:   row.MaxTaskMinutes,
			CanRunTests:      row.CanRunTests,
			CanRunBuild:      row.CanRunBuild,
			CanAccessBrowser: row.CanAccessBrowser,
		},
		Status:              Status(row.Status),
		CurrentTaskID:       row.CurrentTaskID,
		CurrentTaskProgress: row.CurrentTaskProgress,
		CurrentPhase:        row.CurrentPhase,
		LastHeartbeatAt:     row.LastHeartbeatAt,
		HeartbeatCount:      row.HeartbeatCount,
		TasksCompleted:      row.TasksCompleted,
		TasksFailed:         row.TasksFailed,
		TotalRuntimeMinutes: row.TotalRuntimeMinutes,
		MachineMetadata:     unmarshalMetadata(row.MachineMetadata),
		CreatedAt:           row.CreatedAt,
		UpdatedAt:           row.UpdatedAt,
	}
}

func fromModels(rows []storage.AgentModel) []*Agent {
	out := make([]*Agent, len(rows))
	for i := range rows {
		out[i] = fromModel(&rows[i])
	}
	return out
}
