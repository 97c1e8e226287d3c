package graph

import (
	"errors"
	"fmt"
	"strings"
)

// ErrCycle is returned when a batch contains a dependency cycle.
var ErrCycle = errors.New("circular dependency detected")

// topoSort orders ids so every dependency precedes its dependents (Kahn's
// algorithm). Edges pointing outside ids are ignored; those refer to tasks
// already in the graph and cannot close a cycle. On a cycle the error names
// one offending path found by DFS.
func topoSort(ids []string, deps map[string][]string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	inBatch := make(map[string]bool, len(ids))
	for _, id := range ids {
		inBatch[id] = true
	}

	inDegree := make(map[string]int, len(ids))
	forward := make(map[string][]string)

	for _, id := range ids {
		for _, dep := range deps[id] {
			if !inBatch[dep] {
				continue
			}

			inDegree[id]++
			forward[dep] = append(forward[dep], id)
		}
	}

	var queue []string

	for _, id := range ids {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	sorted := make([]string, 0, len(ids))

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		sorted = append(sorted, id)

		for _, dependent := range forward[id] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(sorted) == len(ids) {
		return sorted, nil
	}

	path := cyclePath(ids, deps, inDegree, inBatch)

	return nil, fmt.Errorf("%w: %s", ErrCycle, strings.Join(path, " -> "))
}

func cyclePath(ids []string, deps map[string][]string, inDegree map[string]int, inBatch map[string]bool) []string {
	const (
		white = iota
		gray
		black
	)

	color := make(map[string]int, len(ids))
	parent := make(map[string]string, len(ids))

	var path []string

	var dfs func(id string) bool
	dfs = func(id string) bool {
		color[id] = gray

		for _, dep := range deps[id] {
			if !inBatch[dep] {
				continue
			}

			switch color[dep] {
			case gray:
				path = []string{dep}
				for cur := id; cur != dep; cur = parent[cur] {
					path = append(path, cur)
				}

				path = append(path, dep)

				for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
					path[i], path[j] = path[j], path[i]
				}

				return true
			case white:
				parent[dep] = id
				if dfs(dep) {
					return true
				}
			}
		}

		color[id] = black

		return false
	}

	for _, id := range ids {
		if inDegree[id] > 0 && color[id] == white && dfs(id) {
			return path
		}
	}

	return []string{"(cycle)"}
}
