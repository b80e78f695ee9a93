package quality

import (
	"encoding/json"

	"github.com/beadswarm/beads/storage"
)

func marshalTags(v []string) string {
	if v == nil {
		v = []string{}
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func unmarshalTags(s string) []string {
	if s == "" {
		return nil
	}
	var v []string
	_ = json.Unmarshal([]byte(s), &v)
	return v
}

func toModel(s *Snapshot) *storage.QualitySnapshotModel {
	return &storage.QualitySnapshotModel{
		ID:              s.ID,
		TaskID:          s.TaskID,
		AgentID:         s.AgentID,
		LintErrors:      s.Metrics.LintErrors,
		LintWarnings:    s.Metrics.LintWarnings,
		TypeErrors:      s.Metrics.TypeErrors,
		TestsPassing:    s.Metrics.TestsPassing,
		TestsFailing:    s.Metrics.TestsFailing,
		TestCoverage:    s.Metrics.TestCoverage,
		BuildSuccess:    s.Metrics.BuildSuccess,
		BuildDurationMs: s.Metrics.BuildDurationMs,
		TestDurationMs:  s.Metrics.TestDurationMs,
		Timestamp:       s.Timestamp,
		IsBaseline:      s.IsBaseline,
		Tags:            marshalTags(s.Tags),
	}
}

func fromModel(row *storage.QualitySnapshotModel) *Snapshot {
	return &Snapshot{
		ID:      row.ID,
		TaskID:  row.TaskID,
		AgentID: row.AgentID,
		Metrics: Metrics{
			LintErrors:      row.LintErrors,
			LintWarnings:    row.LintWarnings,
			TypeErrors:      row.TypeErrors,
			TestsPassing:    row.TestsPassing,
			TestsFailing:    row.TestsFailing,
			TestCoverage:    row.TestCoverage,
			BuildSuccess:    row.BuildSuccess,
			BuildDurationMs: row.BuildDurationMs,
			TestDurationMs:  row.TestDurationMs,
		},
		Timestamp:  row.Timestamp,
		IsBaseline: row.IsBaseline,
		Tags:       unmarshalTags(row.Tags),
	}
}

func fromModels(rows []storage.QualitySnapshotModel) []*Snapshot {
	out := make([]*Snapshot, len(rows))
	for i := range rows {
		out[i] = fromModel(&rows[i])
	}
	return out
}
