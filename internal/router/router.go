// Package router selects and drives the execution strategy for a task:
// literal commands, model-generated commands, the GUI verification
// loop, or direct text injection. The safety gate is consulted before
// any dispatch and again for generated sequences, whose content is
// unknown until the model produces it.
package router

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/voxop/voxop/internal/automation"
	"github.com/voxop/voxop/internal/config"
	"github.com/voxop/voxop/internal/errors"
	"github.com/voxop/voxop/internal/graph"
	"github.com/voxop/voxop/internal/gui"
	"github.com/voxop/voxop/internal/library"
	"github.com/voxop/voxop/internal/log"
	"github.com/voxop/voxop/internal/policy"
	"github.com/voxop/voxop/internal/telemetry"
)

// maxRetryBackoff caps the doubling delay between collaborator retries.
const maxRetryBackoff = 8 * time.Second

// Status classifies the result of one execution attempt.
type Status string

const (
	StatusSucceeded         Status = "succeeded"
	StatusFailed            Status = "failed"
	StatusNeedsConfirmation Status = "needs_confirmation"
	StatusAborted           Status = "aborted"
)

// Outcome is what a strategy returns to the scheduler. Strategies never
// touch task state; the scheduler applies outcomes under its
// single-writer rule.
type Outcome struct {
	Status Status
	Output string
	Err    error

	// Capability and Reason explain a NeedsConfirmation status.
	Capability policy.Capability
	Reason     string

	// Commands carries a generated sequence that paused for
	// confirmation, so approval can resume without re-generating.
	Commands [][]string
}

// CommandGenerator produces an argv sequence for an uncovered intent.
// *provider.LanguageModel implements it.
type CommandGenerator interface {
	GenerateCommands(ctx context.Context, intent string, vocabulary []string) ([][]string, error)
}

// GUIRunner drives the on-screen verification loop. *gui.Loop
// implements it.
type GUIRunner interface {
	Run(ctx context.Context, req gui.Request) (*gui.Result, error)
}

// Deps wires the router's collaborators.
type Deps struct {
	Shell     automation.Shell
	Input     automation.Input
	GUI       GUIRunner
	Generator CommandGenerator
	Gate      *policy.Gate
	Retry     config.RetryConfig
	Logger    *log.Logger
	Events    telemetry.Sink
}

// Router dispatches tasks to their execution strategy.
type Router struct {
	shell     automation.Shell
	input     automation.Input
	gui       GUIRunner
	generator CommandGenerator
	gate      *policy.Gate
	retry     config.RetryConfig
	logger    *log.Logger
	events    telemetry.Sink
}

// New creates a router.
func New(deps Deps) *Router {
	return &Router{
		shell:     deps.Shell,
		input:     deps.Input,
		gui:       deps.GUI,
		generator: deps.Generator,
		gate:      deps.Gate,
		retry:     deps.Retry,
		logger:    deps.Logger.With("component", "router"),
		events:    deps.Events,
	}
}

// Precheck evaluates the safety gate for a task before dispatch. For
// generated tasks the payload is the utterance fragment; the produced
// command sequence is checked again inside Execute.
func (r *Router) Precheck(task *graph.Task) policy.Decision {
	caps := Derive(task)
	payload := policy.RenderPayload(task.Commands, task.Text)
	return r.gate.Evaluate(caps, payload)
}

// Execute runs the strategy for the task's path and returns its
// outcome. The caller owns all task state; Execute only reads.
func (r *Router) Execute(ctx context.Context, task *graph.Task, snap *library.Snapshot) Outcome {
	ctx, span := telemetry.StartTaskSpan(ctx, task.ID, string(task.Path))
	defer span.End()

	var out Outcome
	switch task.Path {
	case graph.PathDeterministic:
		out = r.runCommands(ctx, task.Commands)
	case graph.PathGenerated:
		out = r.runGenerated(ctx, task, snap)
	case graph.PathGUI:
		out = r.runGUI(ctx, task, snap)
	case graph.PathInjection:
		out = r.runInjection(ctx, task)
	default:
		out = Outcome{
			Status: StatusFailed,
			Err: errors.New(errors.ErrCodeExecutionFailure,
				fmt.Sprintf("no execution strategy for path %q", task.Path)),
		}
	}

	switch out.Status {
	case StatusFailed, StatusAborted:
		telemetry.RecordError(span, out.Err)
	default:
		telemetry.RecordSuccess(span)
	}
	return out
}

func (r *Router) runCommands(ctx context.Context, commands [][]string) Outcome {
	results, err := r.shell.Run(ctx, commands)
	output := joinOutput(results)
	if err != nil {
		return outcomeFromErr(err, output)
	}
	return Outcome{Status: StatusSucceeded, Output: output}
}

// runGenerated asks the model for a command sequence and gates it
// before running. Approved resumes skip both: the confirmed sequence
// rides back in on the task.
func (r *Router) runGenerated(ctx context.Context, task *graph.Task, snap *library.Snapshot) Outcome {
	if task.Approved && len(task.Commands) > 0 {
		return r.runCommands(ctx, task.Commands)
	}

	var vocabulary []string
	if snap != nil {
		vocabulary = snap.Vocabulary()
	}

	var commands [][]string
	err := r.withRetry(ctx, func(ctx context.Context) error {
		var genErr error
		commands, genErr = r.generator.GenerateCommands(ctx, task.Text, vocabulary)
		return genErr
	})
	if err != nil {
		return outcomeFromErr(err, "")
	}
	if len(commands) == 0 {
		return Outcome{
			Status: StatusFailed,
			Err: errors.New(errors.ErrCodeMalformedModelOutput,
				"model produced an empty command sequence"),
		}
	}

	// The generated sequence can be more dangerous than the utterance
	// that asked for it. Gate the literal commands before running.
	payload := policy.RenderPayload(commands, "")
	decision := r.gate.Evaluate(CategorizeCommands(commands), payload)
	r.emitDecision(task.ID, decision, payload)

	switch decision.Action {
	case policy.ActionDeny:
		return Outcome{
			Status: StatusFailed,
			Err:    errors.NewCapabilityDeniedError(string(decision.Capability), payload),
		}
	case policy.ActionConfirm:
		return Outcome{
			Status:     StatusNeedsConfirmation,
			Capability: decision.Capability,
			Reason:     decision.Reason,
			Commands:   commands,
		}
	}
	return r.runCommands(ctx, commands)
}

func (r *Router) runGUI(ctx context.Context, task *graph.Task, snap *library.Snapshot) Outcome {
	req := gui.Request{
		TaskID:      task.ID,
		Instruction: task.Text,
		Shortcuts:   snap,
	}

	var res *gui.Result
	err := r.withRetry(ctx, func(ctx context.Context) error {
		var runErr error
		res, runErr = r.gui.Run(ctx, req)
		return runErr
	})
	if err != nil {
		return outcomeFromErr(err, "")
	}

	output := fmt.Sprintf("clicked %q at (%d,%d) on attempt %d", res.Label, res.X, res.Y, res.Attempts)
	if res.Fallback != "" {
		output = fmt.Sprintf("keyboard shortcut %s after %d visual attempts", res.Fallback, res.Attempts)
	}
	return Outcome{Status: StatusSucceeded, Output: output}
}

func (r *Router) runInjection(ctx context.Context, task *graph.Task) Outcome {
	if task.Text == "" {
		return Outcome{Status: StatusSucceeded, Output: "nothing to type"}
	}

	// The trailing space keeps consecutive dictation segments from
	// running into each other.
	payload := task.Text + " "
	err := r.withRetry(ctx, func(ctx context.Context) error {
		return r.input.Type(ctx, payload)
	})
	if err != nil {
		return outcomeFromErr(err, "")
	}
	return Outcome{
		Status: StatusSucceeded,
		Output: fmt.Sprintf("typed %d characters", utf8.RuneCountInString(payload)),
	}
}

// withRetry re-runs op while it reports an unreachable collaborator,
// doubling the delay between attempts.
func (r *Router) withRetry(ctx context.Context, op func(context.Context) error) error {
	attempts := r.retry.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := r.retry.Backoff.Std()
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			r.logger.Debug("collaborator unavailable, backing off",
				"attempt", attempt,
				"backoff", backoff.String(),
			)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff *= 2
			if backoff > maxRetryBackoff {
				backoff = maxRetryBackoff
			}
		}
		err = op(ctx)
		if err == nil || !errors.HasCode(err, errors.ErrCodeCollaboratorUnavailable) {
			return err
		}
	}
	return err
}

func (r *Router) emitDecision(taskID string, decision policy.Decision, payload string) {
	if r.events == nil {
		return
	}
	detail := fmt.Sprintf("%s: %s", decision.Action, decision.Reason)
	r.events.Emit(telemetry.NewEvent(telemetry.KindPolicyDecision).
		WithTask(taskID, "").
		WithDetail(detail))
	r.logger.Debug("generated sequence gated",
		"task_id", taskID,
		"action", string(decision.Action),
		"payload", payload,
	)
}

func joinOutput(results []automation.CommandResult) string {
	var parts []string
	for _, res := range results {
		if out := strings.TrimSpace(res.Stdout); out != "" {
			parts = append(parts, out)
		}
	}
	return strings.Join(parts, "\n")
}

func outcomeFromErr(err error, output string) Outcome {
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return Outcome{Status: StatusAborted, Output: output, Err: err}
	}
	return Outcome{Status: StatusFailed, Output: output, Err: err}
}
