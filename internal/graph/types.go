// Package graph defines the task graph: the dependency-aware set of
// actions derived from one utterance, and the per-task state machine
// the scheduler drives. A graph is built once, lives until every task
// reaches a terminal state, and is then discarded.
package graph

import (
	"time"
)

// Path selects the execution strategy for a task.
type Path string

const (
	// PathDeterministic runs a literal command sequence from the library.
	PathDeterministic Path = "deterministic"
	// PathGenerated delegates command generation to the language model.
	PathGenerated Path = "generated"
	// PathGUI drives the on-screen verification loop.
	PathGUI Path = "gui"
	// PathInjection types already-corrected text into the focused field.
	PathInjection Path = "injection"
)

// State is the lifecycle state of a task.
type State string

const (
	StatePending              State = "pending"
	StateReady                State = "ready"
	StateRunning              State = "running"
	StateVerifying            State = "verifying"
	StateAwaitingConfirmation State = "awaiting_confirmation"
	StateSucceeded            State = "succeeded"
	StateFailed               State = "failed"
	StateAborted              State = "aborted"
)

// Terminal reports whether a task in this state is finished for good.
func (s State) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateAborted:
		return true
	}
	return false
}

// validTransitions is the authoritative transition table. Aborted is
// reachable from every non-terminal state; the entries below list the
// rest. AwaitingConfirmation -> Ready is the approval resume edge.
// Running -> AwaitingConfirmation covers generated command sequences,
// which cannot be gated until the model has produced them.
var validTransitions = map[State][]State{
	StatePending:              {StateReady},
	StateReady:                {StateRunning, StateAwaitingConfirmation, StateFailed},
	StateRunning:              {StateVerifying, StateAwaitingConfirmation, StateSucceeded, StateFailed},
	StateVerifying:            {StateSucceeded, StateFailed},
	StateAwaitingConfirmation: {StateReady, StateFailed},
}

// CanTransition reports whether moving from s to next is legal.
func (s State) CanTransition(next State) bool {
	if s.Terminal() {
		return false
	}
	if next == StateAborted {
		return true
	}
	for _, candidate := range validTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// Dep is a dependency edge. A critical edge requires the predecessor to
// succeed; a best-effort edge only requires it to finish.
type Dep struct {
	TaskID     string
	BestEffort bool
}

// Task is one unit of work in the graph.
type Task struct {
	ID          string
	Description string
	Deps        []Dep
	Path        Path
	ResourceKey string

	// Commands holds literal argv sequences for the deterministic
	// path; the generated path fills it at execution time.
	Commands [][]string

	// Text carries the injection payload or the GUI instruction.
	Text string

	State   State
	Retries int
	Output  string
	Err     error

	// Seq is the creation index, the FIFO key for dispatch order.
	Seq int

	// Approved is set when a confirmation for this task was granted,
	// so the resumed dispatch skips the safety gate.
	Approved bool

	StartedAt  time.Time
	FinishedAt time.Time
}

// DependsOn reports whether the task has an edge to the given id.
func (t *Task) DependsOn(id string) bool {
	for _, d := range t.Deps {
		if d.TaskID == id {
			return true
		}
	}
	return false
}

// Graph is the task set for one utterance.
type Graph struct {
	ID        string
	Utterance string
	Tasks     map[string]*Task
	Order     []string // task IDs in creation order
	CreatedAt time.Time
}

// Task returns the task with the given id.
func (g *Graph) Task(id string) (*Task, bool) {
	t, ok := g.Tasks[id]
	return t, ok
}

// Done reports whether every task reached a terminal state.
func (g *Graph) Done() bool {
	for _, id := range g.Order {
		if !g.Tasks[id].State.Terminal() {
			return false
		}
	}
	return true
}

// InState returns tasks currently in the given state, in creation order.
func (g *Graph) InState(st State) []*Task {
	var out []*Task
	for _, id := range g.Order {
		if t := g.Tasks[id]; t.State == st {
			out = append(out, t)
		}
	}
	return out
}

// Counts tallies tasks per state.
func (g *Graph) Counts() map[State]int {
	counts := make(map[State]int)
	for _, id := range g.Order {
		counts[g.Tasks[id].State]++
	}
	return counts
}

// depsSatisfied applies the readiness rule: critical dependencies must
// have succeeded, best-effort dependencies only need to be terminal.
func (g *Graph) depsSatisfied(t *Task) bool {
	for _, d := range t.Deps {
		dep, ok := g.Tasks[d.TaskID]
		if !ok {
			return false
		}
		if d.BestEffort {
			if !dep.State.Terminal() {
				return false
			}
			continue
		}
		if dep.State != StateSucceeded {
			return false
		}
	}
	return true
}

// DueTasks returns pending tasks whose dependency rule holds, in
// creation order. Pure: callers apply the transition themselves.
func (g *Graph) DueTasks() []*Task {
	var due []*Task
	for _, id := range g.Order {
		t := g.Tasks[id]
		if t.State == StatePending && g.depsSatisfied(t) {
			due = append(due, t)
		}
	}
	return due
}

// CriticalDependents returns every task reachable from id over critical
// edges, in creation order. Used to propagate a failure to the tasks
// that can no longer run.
func (g *Graph) CriticalDependents(id string) []*Task {
	doomed := map[string]bool{}
	frontier := []string{id}
	for len(frontier) > 0 {
		next := frontier[0]
		frontier = frontier[1:]
		for _, candID := range g.Order {
			cand := g.Tasks[candID]
			if doomed[candID] || candID == id {
				continue
			}
			for _, d := range cand.Deps {
				if d.TaskID == next && !d.BestEffort {
					doomed[candID] = true
					frontier = append(frontier, candID)
					break
				}
			}
		}
	}

	var out []*Task
	for _, candID := range g.Order {
		if doomed[candID] {
			out = append(out, g.Tasks[candID])
		}
	}
	return out
}
