package exec

import (
	"context"
	"fmt"
	"time"

	"github.com/voxop/voxop/internal/config"
	"github.com/voxop/voxop/internal/errors"
	"github.com/voxop/voxop/internal/graph"
	"github.com/voxop/voxop/internal/library"
	"github.com/voxop/voxop/internal/log"
	"github.com/voxop/voxop/internal/policy"
	"github.com/voxop/voxop/internal/router"
	"github.com/voxop/voxop/internal/telemetry"
)

// Executor prechecks and runs a single task. *router.Router implements
// it.
type Executor interface {
	Precheck(task *graph.Task) policy.Decision
	Execute(ctx context.Context, task *graph.Task, snap *library.Snapshot) router.Outcome
}

// TaskReport is one task's line in the final report.
type TaskReport struct {
	ID          string
	Description string
	Path        graph.Path
	State       graph.State
	Output      string
	Err         error
	Duration    time.Duration
}

// Report summarizes a finished graph run. A report is produced even
// when the run was aborted or partially failed.
type Report struct {
	GraphID   string
	Utterance string
	Tasks     []TaskReport
	Succeeded int
	Failed    int
	Aborted   int
	StartedAt time.Time
	EndedAt   time.Time
}

type taskDone struct {
	id  string
	out router.Outcome
}

// Scheduler drives a task graph to completion over a bounded slot
// pool. All task state is written from the Run loop only; workers and
// the broker communicate through channels.
type Scheduler struct {
	exec   Executor
	locks  *LockTable
	broker *Broker
	slots  int
	logger *log.Logger
	events telemetry.Sink
}

// NewScheduler creates a scheduler with the given slot count.
func NewScheduler(exec Executor, locks *LockTable, broker *Broker, cfg config.SchedulerConfig, logger *log.Logger, events telemetry.Sink) *Scheduler {
	slots := cfg.Concurrency
	if slots < 1 {
		slots = 1
	}
	return &Scheduler{
		exec:   exec,
		locks:  locks,
		broker: broker,
		slots:  slots,
		logger: logger.With("component", "scheduler"),
		events: events,
	}
}

// Run executes the graph and returns its report. Cancelling ctx aborts
// every non-terminal task; in-flight collaborator calls notice at
// their next suspension point.
func (s *Scheduler) Run(ctx context.Context, g *graph.Graph, snap *library.Snapshot) *Report {
	start := time.Now()
	ctx, span := telemetry.StartGraphSpan(ctx, g.ID, len(g.Order))
	defer span.End()
	defer s.broker.Reset()

	// Buffered so late workers and timers never block after the loop
	// has moved on. A task can run and park at most twice.
	results := make(chan taskDone, 2*len(g.Order)+1)
	resolutions := make(chan Resolution, 2*len(g.Order)+1)

	running := 0
	ctxDone := ctx.Done()
	if ctx.Err() != nil {
		ctxDone = nil
		s.abortAll(g)
	}

	for {
		if ctxDone != nil {
			for {
				promoted := s.promoteDue(g)
				var dispatched bool
				running, dispatched = s.dispatch(ctx, g, snap, running, results, resolutions)
				if !promoted && !dispatched {
					break
				}
			}
		}
		if g.Done() && running == 0 {
			break
		}

		select {
		case done := <-results:
			running--
			s.applyOutcome(g, done, resolutions)
		case res := <-resolutions:
			s.applyResolution(g, res)
		case <-ctxDone:
			ctxDone = nil
			s.abortAll(g)
		}
	}

	rep := s.report(g, start)
	s.logger.Info("graph run finished",
		"graph_id", g.ID,
		"succeeded", rep.Succeeded,
		"failed", rep.Failed,
		"aborted", rep.Aborted,
		"duration", rep.EndedAt.Sub(rep.StartedAt).String(),
	)
	s.emitGraphDone(rep)
	if rep.Failed > 0 || rep.Aborted > 0 {
		telemetry.RecordError(span, fmt.Errorf("%d failed, %d aborted", rep.Failed, rep.Aborted))
	} else {
		telemetry.RecordSuccess(span)
	}
	return rep
}

// promoteDue moves pending tasks whose dependency rule holds to Ready.
// Returns whether anything was promoted.
func (s *Scheduler) promoteDue(g *graph.Graph) bool {
	promoted := false
	for _, task := range g.DueTasks() {
		if s.transition(g, task, graph.StateReady, "") {
			promoted = true
		}
	}
	return promoted
}

// dispatch fills free slots with Ready tasks in creation order. A task
// whose resource key is held stays Ready behind the holder. The safety
// gate runs before a slot is consumed; approved resumes skip it.
func (s *Scheduler) dispatch(ctx context.Context, g *graph.Graph, snap *library.Snapshot, running int, results chan<- taskDone, resolutions chan<- Resolution) (int, bool) {
	changed := false
	for _, task := range g.InState(graph.StateReady) {
		if running >= s.slots {
			break
		}
		if !s.locks.TryAcquire(task.ResourceKey, task.ID) {
			holder, _ := s.locks.Holder(task.ResourceKey)
			s.logger.Debug("task queued behind resource holder",
				"task_id", task.ID,
				"resource", task.ResourceKey,
				"holder", holder,
			)
			continue
		}

		if !task.Approved {
			decision := s.exec.Precheck(task)
			s.emitDecision(g, task, decision)
			payload := policy.RenderPayload(task.Commands, task.Text)

			switch decision.Action {
			case policy.ActionDeny:
				s.finish(g, task, graph.StateFailed,
					errors.NewCapabilityDeniedError(string(decision.Capability), payload), "")
				changed = true
				continue
			case policy.ActionConfirm:
				s.park(g, task, ConfirmationRequest{
					TaskID:     task.ID,
					Capability: decision.Capability,
					Reason:     decision.Reason,
					Payload:    payload,
				}, resolutions)
				changed = true
				continue
			}
		}

		s.startTask(ctx, g, task, snap, results)
		running++
		changed = true
	}
	return running, changed
}

func (s *Scheduler) startTask(ctx context.Context, g *graph.Graph, task *graph.Task, snap *library.Snapshot, results chan<- taskDone) {
	s.transition(g, task, graph.StateRunning, "")
	if task.StartedAt.IsZero() {
		task.StartedAt = time.Now()
	}
	// GUI tasks spend their whole run inside the verification loop.
	if task.Path == graph.PathGUI {
		s.transition(g, task, graph.StateVerifying, "")
	}

	go func(task *graph.Task) {
		results <- taskDone{id: task.ID, out: s.exec.Execute(ctx, task, snap)}
	}(task)
}

// park moves a task to AwaitingConfirmation and registers it with the
// broker. The task keeps its resource lock but occupies no slot.
func (s *Scheduler) park(g *graph.Graph, task *graph.Task, req ConfirmationRequest, resolutions chan<- Resolution) {
	if !s.transition(g, task, graph.StateAwaitingConfirmation, req.Reason) {
		return
	}
	s.broker.Request(req, func(res Resolution) {
		resolutions <- res
	})
}

func (s *Scheduler) applyOutcome(g *graph.Graph, done taskDone, resolutions chan<- Resolution) {
	task, ok := g.Task(done.id)
	if !ok {
		return
	}
	// Aborted while the worker was in flight.
	if task.State.Terminal() {
		return
	}

	out := done.out
	switch out.Status {
	case router.StatusSucceeded:
		s.finish(g, task, graph.StateSucceeded, nil, out.Output)
	case router.StatusNeedsConfirmation:
		task.Commands = out.Commands
		s.park(g, task, ConfirmationRequest{
			TaskID:     task.ID,
			Capability: out.Capability,
			Reason:     out.Reason,
			Payload:    policy.RenderPayload(out.Commands, ""),
		}, resolutions)
	case router.StatusAborted:
		s.finish(g, task, graph.StateAborted, errors.NewCancelledError(task.ID), out.Output)
	default:
		s.finish(g, task, graph.StateFailed, out.Err, out.Output)
	}
}

func (s *Scheduler) applyResolution(g *graph.Graph, res Resolution) {
	task, ok := g.Task(res.TaskID)
	if !ok || task.State != graph.StateAwaitingConfirmation {
		return
	}

	switch {
	case res.TimedOut:
		s.finish(g, task, graph.StateFailed, errors.NewConfirmationTimeoutError(task.ID), "")
	case res.Approved:
		task.Approved = true
		s.transition(g, task, graph.StateReady, "approved")
	default:
		s.finish(g, task, graph.StateFailed, errors.NewConfirmationDeniedError(task.ID), "")
	}
}

// finish applies a terminal state, releases the task's lock, and aborts
// critical dependents of a failure.
func (s *Scheduler) finish(g *graph.Graph, task *graph.Task, next graph.State, err error, output string) {
	if task.State.Terminal() {
		return
	}
	if err != nil {
		task.Err = err
	}
	if output != "" {
		task.Output = output
	}
	if !s.transition(g, task, next, "") {
		return
	}
	task.FinishedAt = time.Now()
	s.locks.Release(task.ResourceKey, task.ID)

	if next != graph.StateFailed && next != graph.StateAborted {
		return
	}
	for _, dep := range g.CriticalDependents(task.ID) {
		if dep.State.Terminal() {
			continue
		}
		dep.Err = errors.NewDependencyAbortedError(dep.ID, task.ID)
		if s.transition(g, dep, graph.StateAborted, "dependency did not succeed") {
			dep.FinishedAt = time.Now()
			s.locks.Release(dep.ResourceKey, dep.ID)
		}
	}
}

// abortAll moves every non-terminal task to Aborted. Workers still in
// flight are cancelled through their context; their late outcomes are
// ignored.
func (s *Scheduler) abortAll(g *graph.Graph) {
	s.logger.Info("aborting graph run", "graph_id", g.ID)
	for _, id := range g.Order {
		task := g.Tasks[id]
		if task.State.Terminal() {
			continue
		}
		task.Err = errors.NewCancelledError(task.ID)
		if s.transition(g, task, graph.StateAborted, "cancelled") {
			task.FinishedAt = time.Now()
		}
		s.locks.Release(task.ResourceKey, task.ID)
	}
	s.broker.Reset()
	s.emitAbort(g)
}

func (s *Scheduler) report(g *graph.Graph, start time.Time) *Report {
	rep := &Report{
		GraphID:   g.ID,
		Utterance: g.Utterance,
		StartedAt: start,
		EndedAt:   time.Now(),
	}
	for _, id := range g.Order {
		t := g.Tasks[id]
		var dur time.Duration
		if !t.StartedAt.IsZero() && !t.FinishedAt.IsZero() {
			dur = t.FinishedAt.Sub(t.StartedAt)
		}
		rep.Tasks = append(rep.Tasks, TaskReport{
			ID:          t.ID,
			Description: t.Description,
			Path:        t.Path,
			State:       t.State,
			Output:      t.Output,
			Err:         t.Err,
			Duration:    dur,
		})
		switch t.State {
		case graph.StateSucceeded:
			rep.Succeeded++
		case graph.StateFailed:
			rep.Failed++
		case graph.StateAborted:
			rep.Aborted++
		}
	}
	return rep
}

func (s *Scheduler) transition(g *graph.Graph, task *graph.Task, next graph.State, detail string) bool {
	if !task.State.CanTransition(next) {
		err := errors.NewInvalidTransitionError(task.ID, string(task.State), string(next))
		s.logger.Warn("transition rejected", "error", err.Error())
		return false
	}
	task.State = next
	s.emitState(g, task, detail)
	return true
}

func (s *Scheduler) emitState(g *graph.Graph, task *graph.Task, detail string) {
	if s.events == nil {
		return
	}
	ev := telemetry.NewEvent(telemetry.KindTaskState).
		WithGraph(g.ID).
		WithTask(task.ID, string(task.State))
	if detail != "" {
		ev = ev.WithDetail(detail)
	}
	if task.State.Terminal() && task.Err != nil {
		ev = ev.WithError(task.Err)
	}
	s.events.Emit(ev)
}

func (s *Scheduler) emitDecision(g *graph.Graph, task *graph.Task, decision policy.Decision) {
	if s.events == nil {
		return
	}
	s.events.Emit(telemetry.NewEvent(telemetry.KindPolicyDecision).
		WithGraph(g.ID).
		WithTask(task.ID, "").
		WithDetail(fmt.Sprintf("%s: %s", decision.Action, decision.Reason)))
}

func (s *Scheduler) emitGraphDone(rep *Report) {
	if s.events == nil {
		return
	}
	s.events.Emit(telemetry.NewEvent(telemetry.KindGraphDone).
		WithGraph(rep.GraphID).
		WithDetail(fmt.Sprintf("%d succeeded, %d failed, %d aborted", rep.Succeeded, rep.Failed, rep.Aborted)))
}

func (s *Scheduler) emitAbort(g *graph.Graph) {
	if s.events == nil {
		return
	}
	s.events.Emit(telemetry.NewEvent(telemetry.KindAbortRequested).WithGraph(g.ID))
}
