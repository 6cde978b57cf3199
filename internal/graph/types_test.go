package graph

import (
	"testing"
)

func TestStateTerminal(t *testing.T) {
	terminal := []State{StateSucceeded, StateFailed, StateAborted}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}

	live := []State{StatePending, StateReady, StateRunning, StateVerifying, StateAwaitingConfirmation}
	for _, s := range live {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from State
		to   State
		want bool
	}{
		{StatePending, StateReady, true},
		{StatePending, StateRunning, false},
		{StateReady, StateRunning, true},
		{StateReady, StateAwaitingConfirmation, true},
		{StateReady, StateFailed, true},
		{StateReady, StateSucceeded, false},
		{StateRunning, StateVerifying, true},
		{StateRunning, StateSucceeded, true},
		{StateRunning, StateFailed, true},
		{StateRunning, StateAwaitingConfirmation, true},
		{StateRunning, StateReady, false},
		{StateVerifying, StateSucceeded, true},
		{StateVerifying, StateRunning, false},
		{StateAwaitingConfirmation, StateReady, true},
		{StateAwaitingConfirmation, StateFailed, true},
		{StateAwaitingConfirmation, StateSucceeded, false},
		{StateSucceeded, StateFailed, false},
		{StateFailed, StateReady, false},
		{StateAborted, StateReady, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.want {
			t.Errorf("CanTransition(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestAbortedReachableFromAnyNonTerminal(t *testing.T) {
	for _, s := range []State{StatePending, StateReady, StateRunning, StateVerifying, StateAwaitingConfirmation} {
		if !s.CanTransition(StateAborted) {
			t.Errorf("%s should allow transition to aborted", s)
		}
	}
	for _, s := range []State{StateSucceeded, StateFailed, StateAborted} {
		if s.CanTransition(StateAborted) {
			t.Errorf("terminal state %s should not transition again", s)
		}
	}
}

// chain builds a linear graph a <- b <- c with the given edge kinds.
func chain(bestEffort ...bool) *Graph {
	g := &Graph{Tasks: make(map[string]*Task)}
	ids := []string{"task_0", "task_1", "task_2"}
	for i, id := range ids {
		t := &Task{ID: id, State: StatePending, Seq: i}
		if i > 0 {
			be := false
			if len(bestEffort) >= i {
				be = bestEffort[i-1]
			}
			t.Deps = []Dep{{TaskID: ids[i-1], BestEffort: be}}
		}
		g.Tasks[id] = t
		g.Order = append(g.Order, id)
	}
	return g
}

func TestDueTasks(t *testing.T) {
	g := chain(false, false)

	due := g.DueTasks()
	if len(due) != 1 || due[0].ID != "task_0" {
		t.Fatalf("expected only the root due, got %v", ids(due))
	}

	// A critical dependency requires success, not just termination.
	g.Tasks["task_0"].State = StateFailed
	if due := g.DueTasks(); len(due) != 0 {
		t.Errorf("critical dep failed, nothing should be due, got %v", ids(due))
	}

	g.Tasks["task_0"].State = StateSucceeded
	due = g.DueTasks()
	if len(due) != 1 || due[0].ID != "task_1" {
		t.Errorf("expected task_1 due after predecessor succeeded, got %v", ids(due))
	}
}

func TestDueTasksBestEffort(t *testing.T) {
	g := chain(true, false)

	// A best-effort dependency is satisfied by any terminal state.
	g.Tasks["task_0"].State = StateFailed
	due := g.DueTasks()
	if len(due) != 1 || due[0].ID != "task_1" {
		t.Fatalf("best-effort dep should be satisfied by failure, got %v", ids(due))
	}

	// But a still-running best-effort dependency is not satisfied.
	g.Tasks["task_0"].State = StateRunning
	if due := g.DueTasks(); len(due) != 0 {
		t.Errorf("running best-effort dep should block, got %v", ids(due))
	}
}

func TestCriticalDependents(t *testing.T) {
	g := chain(false, false)

	doomed := g.CriticalDependents("task_0")
	if len(doomed) != 2 {
		t.Fatalf("expected both downstream tasks doomed, got %v", ids(doomed))
	}
	if doomed[0].ID != "task_1" || doomed[1].ID != "task_2" {
		t.Errorf("expected creation order, got %v", ids(doomed))
	}
}

func TestCriticalDependentsStopAtBestEffort(t *testing.T) {
	// task_1 depends best-effort on task_0; task_2 critically on task_1.
	g := chain(true, false)

	if doomed := g.CriticalDependents("task_0"); len(doomed) != 0 {
		t.Errorf("best-effort dependent should survive, got %v", ids(doomed))
	}

	// Failing task_1 still dooms task_2.
	if doomed := g.CriticalDependents("task_1"); len(doomed) != 1 || doomed[0].ID != "task_2" {
		t.Errorf("expected task_2 doomed, got %v", ids(doomed))
	}
}

func TestCriticalDependentsDiamond(t *testing.T) {
	// d depends on b and c, both of which depend on a.
	g := &Graph{Tasks: make(map[string]*Task)}
	add := func(id string, deps ...Dep) {
		g.Tasks[id] = &Task{ID: id, State: StatePending, Seq: len(g.Order), Deps: deps}
		g.Order = append(g.Order, id)
	}
	add("a")
	add("b", Dep{TaskID: "a"})
	add("c", Dep{TaskID: "a", BestEffort: true})
	add("d", Dep{TaskID: "b"}, Dep{TaskID: "c"})

	doomed := ids(g.CriticalDependents("a"))
	if len(doomed) != 2 || doomed[0] != "b" || doomed[1] != "d" {
		t.Errorf("expected b and d doomed (c is best-effort), got %v", doomed)
	}
}

func TestGraphDoneAndCounts(t *testing.T) {
	g := chain(false, false)
	if g.Done() {
		t.Error("fresh graph should not be done")
	}

	for _, id := range g.Order {
		g.Tasks[id].State = StateSucceeded
	}
	if !g.Done() {
		t.Error("graph with all tasks terminal should be done")
	}

	counts := g.Counts()
	if counts[StateSucceeded] != 3 {
		t.Errorf("expected 3 succeeded, got %v", counts)
	}
}

func ids(tasks []*Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}
