package task

import (
	"encoding/json"

	"github.com/beadswarm/beads/storage"
)

func marshalStrings(ss []string) string {
	if ss == nil {
		ss = []string{}
	}
	b, _ := json.Marshal(ss)
	return string(b)
}

func unmarshalStrings(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	_ = json.Unmarshal([]byte(s), &out)
	return out
}

func toModel(t *Task) *storage.TaskModel {
	return &storage.TaskModel{
		ID:                t.ID,
		Title:             t.Title,
		Description:       t.Description,
		Priority:          string(t.Priority),
		Type:              t.Type,
		Status:            string(t.Status),
		RequiredSkills:    marshalStrings(t.RequiredSkills),
		Files:             marshalStrings(t.Files),
		EstimatedMinutes:  t.EstimatedMinutes,
		RetryCount:        t.RetryCount,
		MaxRetries:        t.MaxRetries,
		LastError:         t.LastError,
		FailureType:       t.FailureType,
		NextRetryAt:       t.NextRetryAt,
		PreviousAgents:    marshalStrings(t.PreviousAgents),
		Result:            t.Result,
		BranchID:          t.BranchID,
		QualitySnapshotID: t.QualitySnapshotID,
		AssignedAgent:     t.AssignedAgent,
		ClaimedAt:         t.ClaimedAt,
		CompletedAt:       t.CompletedAt,
		Dependencies:      marshalStrings(t.Dependencies),
		Blockers:          marshalStrings(t.Blockers),
		CreatedAt:         t.CreatedAt,
		UpdatedAt:         t.UpdatedAt,
	}
}

func fromModel(m *storage.TaskModel) *Task {
	return &Task{
		ID:                m.ID,
		Title:             m.Title,
		Description:       m.Description,
		Priority:          Priority(m.Priority),
		Type:              m.Type,
		Status:            Status(m.Status),
		RequiredSkills:    unmarshalStrings(m.RequiredSkills),
		Files:             unmarshalStrings(m.Files),
		EstimatedMinutes:  m.EstimatedMinutes,
		RetryCount:        m.RetryCount,
		MaxRetries:        m.MaxRetries,
		LastError:         m.LastError,
		FailureType:       m.FailureType,
		NextRetryAt:       m.NextRetryAt,
		PreviousAgents:    unmarshalStrings(m.PreviousAgents),
		Result:            m.Result,
		BranchID:          m.BranchID,
		QualitySnapshotID: m.QualitySnapshotID,
		AssignedAgent:     m.AssignedAgent,
		ClaimedAt:         m.ClaimedAt,
		CompletedAt:       m.CompletedAt,
		Dependencies:      unmarshalStrings(m.Dependencies),
		Blockers:          unmarshalStrings(m.Blockers),
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}
