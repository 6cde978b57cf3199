package graph

import (
	"fmt"
	"strings"

	"github.com/voxop/voxop/internal/errors"
)

// Validate checks the structural invariants of a built graph: at least
// one task, unique IDs, closed dependency references, and acyclicity.
// The builder never hands out a graph that fails validation.
func (g *Graph) Validate() error {
	if len(g.Order) == 0 {
		return errors.New(errors.ErrCodeGraphEmpty, "graph has no tasks")
	}

	seen := make(map[string]bool, len(g.Order))
	for _, id := range g.Order {
		t, ok := g.Tasks[id]
		if !ok || t == nil {
			return errors.New(errors.ErrCodeGraphUnknownDep,
				fmt.Sprintf("order references missing task %q", id))
		}
		if seen[id] {
			return errors.New(errors.ErrCodeGraphUnknownDep,
				fmt.Sprintf("duplicate task ID %q", id))
		}
		seen[id] = true
	}

	for _, id := range g.Order {
		for _, d := range g.Tasks[id].Deps {
			if _, ok := g.Tasks[d.TaskID]; !ok {
				return errors.New(errors.ErrCodeGraphUnknownDep,
					fmt.Sprintf("task %s depends on %q which is not in the graph", id, d.TaskID))
			}
			if d.TaskID == id {
				return errors.NewCyclicDependencyError(id, id)
			}
		}
	}

	return g.checkCycles()
}

// checkCycles runs a depth-first search with a recursion stack to
// reject any dependency cycle, reporting the offending path.
func (g *Graph) checkCycles() error {
	visited := make(map[string]bool)
	recStack := make(map[string]bool)

	var visit func(id string, path []string) error
	visit = func(id string, path []string) error {
		visited[id] = true
		recStack[id] = true
		path = append(path, id)

		for _, d := range g.Tasks[id].Deps {
			if !visited[d.TaskID] {
				if err := visit(d.TaskID, path); err != nil {
					return err
				}
			} else if recStack[d.TaskID] {
				cycle := append(path, d.TaskID)
				return errors.New(errors.ErrCodeGraphCyclicDep,
					fmt.Sprintf("circular dependency detected: %s", strings.Join(cycle, " -> "))).
					WithSuggestion("Reorder the sequencing cues in the instruction")
			}
		}

		recStack[id] = false
		return nil
	}

	for _, id := range g.Order {
		if !visited[id] {
			if err := visit(id, nil); err != nil {
				return err
			}
		}
	}
	return nil
}
