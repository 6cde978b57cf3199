package router

import (
	"context"
	stderrors "errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/voxop/voxop/internal/automation"
	"github.com/voxop/voxop/internal/config"
	"github.com/voxop/voxop/internal/errors"
	"github.com/voxop/voxop/internal/graph"
	"github.com/voxop/voxop/internal/gui"
	"github.com/voxop/voxop/internal/library"
	"github.com/voxop/voxop/internal/log"
	"github.com/voxop/voxop/internal/policy"
)

func testLogger() *log.Logger {
	return log.New(log.Config{
		Level:  log.LevelError,
		Format: log.FormatText,
		Output: log.OutputStderr(),
	})
}

// stubGenerator fails a fixed number of times, then serves its
// commands.
type stubGenerator struct {
	mu       sync.Mutex
	commands [][]string
	err      error
	failures int
	calls    int
	vocab    []string
}

func (s *stubGenerator) GenerateCommands(ctx context.Context, intent string, vocabulary []string) ([][]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.vocab = vocabulary
	if s.failures > 0 {
		s.failures--
		return nil, s.err
	}
	return s.commands, nil
}

type stubGUI struct {
	mu       sync.Mutex
	res      *gui.Result
	err      error
	failures int
	calls    int
}

func (s *stubGUI) Run(ctx context.Context, req gui.Request) (*gui.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failures > 0 {
		s.failures--
		return nil, s.err
	}
	return s.res, nil
}

func testRouter(t *testing.T, deps Deps) *Router {
	t.Helper()
	if deps.Logger == nil {
		deps.Logger = testLogger()
	}
	if deps.Gate == nil {
		gate, err := policy.NewGate(nil)
		if err != nil {
			t.Fatalf("NewGate: %v", err)
		}
		deps.Gate = gate
	}
	if deps.Retry.MaxAttempts == 0 {
		deps.Retry = config.RetryConfig{
			MaxAttempts: 3,
			Backoff:     config.Duration(time.Millisecond),
		}
	}
	return New(deps)
}

func TestPrecheck(t *testing.T) {
	r := testRouter(t, Deps{})

	tests := []struct {
		name string
		task *graph.Task
		want policy.Action
	}{
		{
			name: "injection is allowed by default",
			task: &graph.Task{Path: graph.PathInjection, Text: "hello"},
			want: policy.ActionAllow,
		},
		{
			name: "filesystem writes need confirmation",
			task: &graph.Task{Path: graph.PathDeterministic, Commands: [][]string{{"rm", "-rf", "build"}}},
			want: policy.ActionConfirm,
		},
		{
			name: "wiping root is blocked outright",
			task: &graph.Task{Path: graph.PathDeterministic, Commands: [][]string{{"rm", "-rf", "/"}}},
			want: policy.ActionDeny,
		},
		{
			name: "generated prompt with no commands falls to default",
			task: &graph.Task{Path: graph.PathGenerated, Text: "tidy my downloads"},
			want: policy.ActionAllow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.Precheck(tt.task); got.Action != tt.want {
				t.Errorf("Precheck() = %s (%s), want %s", got.Action, got.Reason, tt.want)
			}
		})
	}
}

func TestExecuteDeterministic(t *testing.T) {
	shell := &automation.FakeShell{
		Results: []automation.CommandResult{{Argv: []string{"echo", "hello"}, Stdout: "hello\n"}},
	}
	r := testRouter(t, Deps{Shell: shell})
	task := &graph.Task{ID: "t1", Path: graph.PathDeterministic, Commands: [][]string{{"echo", "hello"}}}

	out := r.Execute(context.Background(), task, nil)
	if out.Status != StatusSucceeded {
		t.Fatalf("status = %s, err = %v", out.Status, out.Err)
	}
	if out.Output != "hello" {
		t.Errorf("output = %q, want %q", out.Output, "hello")
	}
	if len(shell.Runs()) != 1 {
		t.Errorf("shell runs = %d, want 1", len(shell.Runs()))
	}
}

func TestExecuteDeterministicFailure(t *testing.T) {
	shell := &automation.FakeShell{
		Err: errors.NewExecutionFailureError("false", 1, ""),
	}
	r := testRouter(t, Deps{Shell: shell})
	task := &graph.Task{ID: "t1", Path: graph.PathDeterministic, Commands: [][]string{{"false"}}}

	out := r.Execute(context.Background(), task, nil)
	if out.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", out.Status)
	}
	if !errors.HasCode(out.Err, errors.ErrCodeExecutionFailure) {
		t.Errorf("err = %v, want %s", out.Err, errors.ErrCodeExecutionFailure)
	}
}

func TestExecuteAbortsOnCancellation(t *testing.T) {
	shell := &automation.FakeShell{}
	r := testRouter(t, Deps{Shell: shell})
	task := &graph.Task{ID: "t1", Path: graph.PathDeterministic, Commands: [][]string{{"sleep", "10"}}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := r.Execute(ctx, task, nil)
	if out.Status != StatusAborted {
		t.Fatalf("status = %s, want aborted", out.Status)
	}
	if !stderrors.Is(out.Err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", out.Err)
	}
}

func TestExecuteGeneratedPausesForConfirmation(t *testing.T) {
	shell := &automation.FakeShell{}
	gen := &stubGenerator{commands: [][]string{{"rm", "-rf", "build"}}}
	r := testRouter(t, Deps{Shell: shell, Generator: gen})
	task := &graph.Task{ID: "t1", Path: graph.PathGenerated, Text: "clean the build directory"}

	out := r.Execute(context.Background(), task, nil)
	if out.Status != StatusNeedsConfirmation {
		t.Fatalf("status = %s (err %v), want needs_confirmation", out.Status, out.Err)
	}
	if out.Capability != policy.CapabilityFilesystemWrite {
		t.Errorf("capability = %s, want filesystem-write", out.Capability)
	}
	if len(out.Commands) != 1 || out.Commands[0][0] != "rm" {
		t.Errorf("outcome should carry the generated sequence, got %v", out.Commands)
	}
	if len(shell.Runs()) != 0 {
		t.Error("a sequence pending confirmation must not run")
	}
}

func TestExecuteGeneratedDenied(t *testing.T) {
	shell := &automation.FakeShell{}
	gen := &stubGenerator{commands: [][]string{{"cat", "/etc/shadow"}}}
	r := testRouter(t, Deps{Shell: shell, Generator: gen})
	task := &graph.Task{ID: "t1", Path: graph.PathGenerated, Text: "show me the password file"}

	out := r.Execute(context.Background(), task, nil)
	if out.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", out.Status)
	}
	if !errors.HasCode(out.Err, errors.ErrCodeCapabilityDenied) {
		t.Errorf("err = %v, want %s", out.Err, errors.ErrCodeCapabilityDenied)
	}
	if len(shell.Runs()) != 0 {
		t.Error("a denied sequence must not run")
	}
}

func TestExecuteGeneratedAllowedRuns(t *testing.T) {
	shell := &automation.FakeShell{
		Results: []automation.CommandResult{{Stdout: "done"}},
	}
	gen := &stubGenerator{commands: [][]string{{"xdg-open", "https://github.com"}}}
	r := testRouter(t, Deps{Shell: shell, Generator: gen})
	task := &graph.Task{ID: "t1", Path: graph.PathGenerated, Text: "open github"}

	out := r.Execute(context.Background(), task, nil)
	if out.Status != StatusSucceeded {
		t.Fatalf("status = %s (err %v), want succeeded", out.Status, out.Err)
	}
	runs := shell.Runs()
	if len(runs) != 1 || runs[0][0][0] != "xdg-open" {
		t.Errorf("shell runs = %v, want the generated sequence", runs)
	}
}

func TestExecuteGeneratedApprovedResume(t *testing.T) {
	shell := &automation.FakeShell{}
	gen := &stubGenerator{}
	r := testRouter(t, Deps{Shell: shell, Generator: gen})
	task := &graph.Task{
		ID:       "t1",
		Path:     graph.PathGenerated,
		Text:     "clean the build directory",
		Commands: [][]string{{"rm", "-rf", "build"}},
		Approved: true,
	}

	out := r.Execute(context.Background(), task, nil)
	if out.Status != StatusSucceeded {
		t.Fatalf("status = %s (err %v), want succeeded", out.Status, out.Err)
	}
	if gen.calls != 0 {
		t.Errorf("approved resume must not regenerate, got %d calls", gen.calls)
	}
	if len(shell.Runs()) != 1 {
		t.Errorf("shell runs = %d, want 1", len(shell.Runs()))
	}
}

func TestExecuteGeneratedCarriesVocabulary(t *testing.T) {
	snap, err := library.Parse([]byte(`
version: "1"
aliases:
  open chrome:
    commands: [["google-chrome"]]
`))
	if err != nil {
		t.Fatalf("parse library: %v", err)
	}
	gen := &stubGenerator{commands: [][]string{{"ls"}}}
	r := testRouter(t, Deps{Shell: &automation.FakeShell{}, Generator: gen})
	task := &graph.Task{ID: "t1", Path: graph.PathGenerated, Text: "list files"}

	if out := r.Execute(context.Background(), task, snap); out.Status != StatusSucceeded {
		t.Fatalf("status = %s (err %v)", out.Status, out.Err)
	}
	found := false
	for _, phrase := range gen.vocab {
		if phrase == "open chrome" {
			found = true
		}
	}
	if !found {
		t.Errorf("generator vocabulary = %v, want the library phrases", gen.vocab)
	}
}

func TestExecuteGeneratedRetriesUnavailable(t *testing.T) {
	gen := &stubGenerator{
		commands: [][]string{{"ls"}},
		err:      errors.NewCollaboratorUnavailableError("language", stderrors.New("connection refused")),
		failures: 2,
	}
	r := testRouter(t, Deps{Shell: &automation.FakeShell{}, Generator: gen})
	task := &graph.Task{ID: "t1", Path: graph.PathGenerated, Text: "list files"}

	out := r.Execute(context.Background(), task, nil)
	if out.Status != StatusSucceeded {
		t.Fatalf("status = %s (err %v), want succeeded after retries", out.Status, out.Err)
	}
	if gen.calls != 3 {
		t.Errorf("generator calls = %d, want 3", gen.calls)
	}
}

func TestExecuteGeneratedExhaustsRetries(t *testing.T) {
	gen := &stubGenerator{
		err:      errors.NewCollaboratorUnavailableError("language", stderrors.New("connection refused")),
		failures: 5,
	}
	r := testRouter(t, Deps{Shell: &automation.FakeShell{}, Generator: gen})
	task := &graph.Task{ID: "t1", Path: graph.PathGenerated, Text: "list files"}

	out := r.Execute(context.Background(), task, nil)
	if out.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", out.Status)
	}
	if !errors.HasCode(out.Err, errors.ErrCodeCollaboratorUnavailable) {
		t.Errorf("err = %v, want %s", out.Err, errors.ErrCodeCollaboratorUnavailable)
	}
	if gen.calls != 3 {
		t.Errorf("generator calls = %d, want the full retry budget", gen.calls)
	}
}

func TestExecuteGeneratedMalformedIsNotRetried(t *testing.T) {
	gen := &stubGenerator{
		err:      errors.NewMalformedModelOutputError("language", stderrors.New("not json")),
		failures: 5,
	}
	r := testRouter(t, Deps{Shell: &automation.FakeShell{}, Generator: gen})
	task := &graph.Task{ID: "t1", Path: graph.PathGenerated, Text: "list files"}

	out := r.Execute(context.Background(), task, nil)
	if out.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", out.Status)
	}
	if gen.calls != 1 {
		t.Errorf("generator calls = %d, want 1 (malformed output is final)", gen.calls)
	}
}

func TestExecuteGUI(t *testing.T) {
	runner := &stubGUI{res: &gui.Result{X: 10, Y: 20, Label: "compose", Attempts: 1}}
	r := testRouter(t, Deps{GUI: runner})
	task := &graph.Task{ID: "t1", Path: graph.PathGUI, Text: "click compose"}

	out := r.Execute(context.Background(), task, nil)
	if out.Status != StatusSucceeded {
		t.Fatalf("status = %s (err %v), want succeeded", out.Status, out.Err)
	}
	if !strings.Contains(out.Output, "compose") {
		t.Errorf("output = %q, want the target label", out.Output)
	}
}

func TestExecuteGUIFallbackOutput(t *testing.T) {
	runner := &stubGUI{res: &gui.Result{Attempts: 3, Fallback: "ctrl+n"}}
	r := testRouter(t, Deps{GUI: runner})
	task := &graph.Task{ID: "t1", Path: graph.PathGUI, Text: "click compose"}

	out := r.Execute(context.Background(), task, nil)
	if out.Status != StatusSucceeded {
		t.Fatalf("status = %s (err %v), want succeeded", out.Status, out.Err)
	}
	if !strings.Contains(out.Output, "ctrl+n") {
		t.Errorf("output = %q, want the fallback chord", out.Output)
	}
}

func TestExecuteGUIRetriesUnavailable(t *testing.T) {
	runner := &stubGUI{
		res:      &gui.Result{X: 1, Y: 2, Label: "ok", Attempts: 1},
		err:      errors.NewCollaboratorUnavailableError("vision", stderrors.New("connection refused")),
		failures: 1,
	}
	r := testRouter(t, Deps{GUI: runner})
	task := &graph.Task{ID: "t1", Path: graph.PathGUI, Text: "click ok"}

	out := r.Execute(context.Background(), task, nil)
	if out.Status != StatusSucceeded {
		t.Fatalf("status = %s (err %v), want succeeded after retry", out.Status, out.Err)
	}
	if runner.calls != 2 {
		t.Errorf("gui calls = %d, want 2", runner.calls)
	}
}

func TestExecuteGUIVerificationFailureIsFinal(t *testing.T) {
	runner := &stubGUI{
		err:      errors.NewVerificationMismatchError("compose", 3),
		failures: 5,
	}
	r := testRouter(t, Deps{GUI: runner})
	task := &graph.Task{ID: "t1", Path: graph.PathGUI, Text: "click compose"}

	out := r.Execute(context.Background(), task, nil)
	if out.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", out.Status)
	}
	if runner.calls != 1 {
		t.Errorf("gui calls = %d, want 1 (verification mismatch is final)", runner.calls)
	}
	if !errors.HasCode(out.Err, errors.ErrCodeVerificationMismatch) {
		t.Errorf("err = %v, want %s", out.Err, errors.ErrCodeVerificationMismatch)
	}
}

func TestExecuteInjectionAddsTrailingSpace(t *testing.T) {
	input := &automation.FakeInput{}
	r := testRouter(t, Deps{Input: input})
	task := &graph.Task{ID: "t1", Path: graph.PathInjection, Text: "hello world"}

	out := r.Execute(context.Background(), task, nil)
	if out.Status != StatusSucceeded {
		t.Fatalf("status = %s (err %v), want succeeded", out.Status, out.Err)
	}

	actions := input.Actions()
	if len(actions) != 1 || actions[0].Kind != "type" {
		t.Fatalf("actions = %+v, want a single type", actions)
	}
	if actions[0].Text != "hello world " {
		t.Errorf("typed %q, want trailing space for clean joins", actions[0].Text)
	}
}

func TestExecuteInjectionEmptyTextIsNoop(t *testing.T) {
	input := &automation.FakeInput{}
	r := testRouter(t, Deps{Input: input})
	task := &graph.Task{ID: "t1", Path: graph.PathInjection}

	out := r.Execute(context.Background(), task, nil)
	if out.Status != StatusSucceeded {
		t.Fatalf("status = %s, want succeeded", out.Status)
	}
	if len(input.Actions()) != 0 {
		t.Errorf("empty dictation should not touch input, got %+v", input.Actions())
	}
}

func TestExecuteUnknownPath(t *testing.T) {
	r := testRouter(t, Deps{})
	task := &graph.Task{ID: "t1", Path: graph.Path("teleport")}

	out := r.Execute(context.Background(), task, nil)
	if out.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", out.Status)
	}
}
