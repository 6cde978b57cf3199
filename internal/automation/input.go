package automation

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/voxop/voxop/internal/errors"
	"github.com/voxop/voxop/internal/log"
)

// XdotoolInput drives the pointer and keyboard through xdotool. Text is
// injected instantly rather than keystroke by keystroke; xdotool handles
// the X11 details.
type XdotoolInput struct {
	binary string
	logger *log.Logger
}

// NewXdotoolInput creates the input collaborator.
func NewXdotoolInput(logger *log.Logger) *XdotoolInput {
	return &XdotoolInput{
		binary: "xdotool",
		logger: logger.With("component", "input"),
	}
}

// Move implements Input.
func (in *XdotoolInput) Move(ctx context.Context, x, y int) error {
	return in.run(ctx, "mousemove", "--sync", strconv.Itoa(x), strconv.Itoa(y))
}

// Click implements Input.
func (in *XdotoolInput) Click(ctx context.Context, x, y int) error {
	return in.run(ctx, "mousemove", "--sync", strconv.Itoa(x), strconv.Itoa(y), "click", "1")
}

// Type implements Input.
func (in *XdotoolInput) Type(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}
	return in.run(ctx, "type", "--clearmodifiers", "--", text)
}

// Key implements Input.
func (in *XdotoolInput) Key(ctx context.Context, combo string) error {
	return in.run(ctx, "key", "--clearmodifiers", combo)
}

// ActiveWindow returns the title of the focused window. The session
// uses it as the screen context hint when an utterance points at the
// screen with "this" or "that".
func (in *XdotoolInput) ActiveWindow(ctx context.Context) (string, error) {
	cmd := exec.CommandContext(ctx, in.binary, "getactivewindow", "getwindowname")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return "", errors.NewCollaboratorUnavailableError("input",
			fmt.Errorf("%s getactivewindow: %s", in.binary, detail))
	}
	return strings.TrimSpace(stdout.String()), nil
}

func (in *XdotoolInput) run(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, in.binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return errors.NewCollaboratorUnavailableError("input",
			fmt.Errorf("%s %s: %s", in.binary, args[0], detail))
	}
	in.logger.Debug("input action", "action", args[0])
	return nil
}
