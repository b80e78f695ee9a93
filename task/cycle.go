package task

// detectCycle reports whether adding/updating node with the given
// dependencies would introduce a cycle in the dependency graph, where
// edges (excluding the node under test) are supplied by existingDeps.
// Non-existent dependency ids are not cycle participants by construction
// (they simply have no outgoing edges), matching the resolved Open
// Question that non-existent ids are accepted at create and only
// filtered out at claim time.
func detectCycle(nodeID string, deps []string, existingDeps map[string][]string) bool {
	graph := make(map[string][]string, len(existingDeps)+1)
	for k, v := range existingDeps {
		graph[k] = v
	}
	graph[nodeID] = deps

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int)

	var visit func(string) bool
	visit = func(n string) bool {
		switch color[n] {
		case gray:
			return true // back edge: cycle
		case black:
			return false
		}
		color[n] = gray
		for _, d := range graph[n] {
			if visit(d) {
				return true
			}
		}
		color[n] = black
		return false
	}

	return visit(nodeID)
}
