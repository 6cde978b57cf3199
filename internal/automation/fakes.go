package automation

import (
	"context"
	"sync"
)

// FakeScreen serves queued frames in order, repeating the last frame once
// the queue is exhausted. Safe for concurrent use.
type FakeScreen struct {
	mu     sync.Mutex
	Frames [][]byte
	Err    error
	calls  int
}

// Capture implements Screen.
func (f *FakeScreen) Capture(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	idx := f.calls
	f.calls++
	if len(f.Frames) == 0 {
		return []byte{0}, nil
	}
	if idx >= len(f.Frames) {
		idx = len(f.Frames) - 1
	}
	return f.Frames[idx], nil
}

// Calls reports how many captures were requested.
func (f *FakeScreen) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// InputAction records one call against a FakeInput.
type InputAction struct {
	Kind string // "move", "click", "type", "key"
	X, Y int
	Text string // typed text or key combo
}

// FakeInput records pointer and keyboard actions instead of performing
// them.
type FakeInput struct {
	mu      sync.Mutex
	Err     error
	actions []InputAction
}

// Move implements Input.
func (f *FakeInput) Move(ctx context.Context, x, y int) error {
	return f.record(ctx, InputAction{Kind: "move", X: x, Y: y})
}

// Click implements Input.
func (f *FakeInput) Click(ctx context.Context, x, y int) error {
	return f.record(ctx, InputAction{Kind: "click", X: x, Y: y})
}

// Type implements Input.
func (f *FakeInput) Type(ctx context.Context, text string) error {
	return f.record(ctx, InputAction{Kind: "type", Text: text})
}

// Key implements Input.
func (f *FakeInput) Key(ctx context.Context, combo string) error {
	return f.record(ctx, InputAction{Kind: "key", Text: combo})
}

func (f *FakeInput) record(ctx context.Context, a InputAction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.actions = append(f.actions, a)
	return nil
}

// Actions returns a copy of the recorded actions.
func (f *FakeInput) Actions() []InputAction {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]InputAction, len(f.actions))
	copy(out, f.actions)
	return out
}

// FakeShell records the sequences it is asked to run. When RunFunc is set
// it decides the outcome; otherwise Results and Err are returned as-is.
type FakeShell struct {
	mu      sync.Mutex
	Results []CommandResult
	Err     error
	RunFunc func(ctx context.Context, commands [][]string) ([]CommandResult, error)
	runs    [][][]string
}

// Run implements Shell.
func (f *FakeShell) Run(ctx context.Context, commands [][]string) ([]CommandResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.runs = append(f.runs, commands)
	fn := f.RunFunc
	results, err := f.Results, f.Err
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, commands)
	}
	return results, err
}

// Runs returns every command sequence passed to Run.
func (f *FakeShell) Runs() [][][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][][]string, len(f.runs))
	copy(out, f.runs)
	return out
}
