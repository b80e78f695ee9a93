package task

// Filter narrows List/Claim queries. A zero-value Filter matches everything.
type Filter struct {
	Status        []Status
	Priority      []Priority
	AssignedAgent string
	Skills        []string // Claim: RequiredSkills ⊆ Skills; List/Count: any overlap
	BranchID      string
	ExcludeIDs    []string
	Limit         int
	Offset        int
}

func (f Filter) hasStatus(s Status) bool {
	if len(f.Status) == 0 {
		return true
	}
	for _, st := range f.Status {
		if st == s {
			return true
		}
	}
	return false
}

// skillsSatisfied is the claim predicate: every required skill must be
// present in the agent's skill set. Empty required matches any agent.
func skillsSatisfied(required, available []string) bool {
	if len(required) == 0 {
		return true
	}
	have := make(map[string]struct{}, len(available))
	for _, s := range available {
		have[s] = struct{}{}
	}
	for _, r := range required {
		if _, ok := have[r]; !ok {
			return false
		}
	}
	return true
}

// skillsOverlap is the List/Count predicate: OR-match, true when any of
// the wanted skills appears in the task's required set. A task with no
// required skills matches no skill query.
func skillsOverlap(required, wanted []string) bool {
	want := make(map[string]struct{}, len(wanted))
	for _, s := range wanted {
		want[s] = struct{}{}
	}
	for _, r := range required {
		if _, ok := want[r]; ok {
			return true
		}
	}
	return false
}
