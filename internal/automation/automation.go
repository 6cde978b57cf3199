// Package automation defines the local desktop collaborators: screen
// capture, pointer/keyboard input, and shell command execution. The
// interfaces are small on purpose so the scheduler and router can be
// exercised against in-memory fakes, and so an adapter for another
// display server only has to swap one implementation.
package automation

import (
	"context"
	"time"
)

// Screen captures the desktop for the verification loop.
type Screen interface {
	// Capture returns a full-desktop screenshot as PNG bytes.
	Capture(ctx context.Context) ([]byte, error)
}

// Input drives the pointer and keyboard.
type Input interface {
	// Move positions the pointer at absolute screen coordinates without
	// clicking.
	Move(ctx context.Context, x, y int) error

	// Click moves to absolute screen coordinates and presses the left
	// button once.
	Click(ctx context.Context, x, y int) error

	// Type injects literal text at the current focus.
	Type(ctx context.Context, text string) error

	// Key presses a key chord such as "ctrl+n".
	Key(ctx context.Context, combo string) error
}

// Shell runs argv command sequences on the local machine.
type Shell interface {
	// Run executes the commands in order and returns a result per command
	// that ran. The first non-zero exit stops the sequence; the returned
	// error carries the failing command's detail and the slice still
	// includes its result.
	Run(ctx context.Context, commands [][]string) ([]CommandResult, error)
}

// CommandResult records one command from an executed sequence.
type CommandResult struct {
	Argv     []string
	Dir      string
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}
