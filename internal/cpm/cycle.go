package cpm

// DetectCycle returns a dependency cycle in the graph, or nil when the graph
// is acyclic. edges maps an id to the ids it depends on; order fixes the
// traversal order so the reported cycle is deterministic. The returned path
// starts and ends with the same id.
func DetectCycle(order []string, edges map[string][]string) []string {
	visited := make(map[string]bool)
	recStack := make(map[string]bool)
	parent := make(map[string]string)

	var dfs func(id string) []string
	dfs = func(id string) []string {
		visited[id] = true
		recStack[id] = true

		for _, depID := range edges[id] {
			if !visited[depID] {
				parent[depID] = id
				if cycle := dfs(depID); cycle != nil {
					return cycle
				}
			} else if recStack[depID] {
				cycle := []string{depID}
				for current := id; current != depID; current = parent[current] {
					cycle = append([]string{current}, cycle...)
				}
				return append([]string{depID}, cycle...)
			}
		}

		recStack[id] = false
		return nil
	}

	for _, id := range order {
		if !visited[id] {
			if cycle := dfs(id); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}
