package automation

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/voxop/voxop/internal/errors"
	"github.com/voxop/voxop/internal/log"
)

// defaultCaptureArgv is used when the config leaves the capture command
// empty. scrot is the lightest X11 option; Wayland setups configure grim
// or an equivalent instead.
var defaultCaptureArgv = []string{"scrot", "-z"}

// LocalScreen shells out to a screenshot tool that writes a PNG to the
// path appended as its final argument.
type LocalScreen struct {
	argv   []string
	logger *log.Logger
}

// NewLocalScreen creates a screen collaborator running the given argv.
func NewLocalScreen(argv []string, logger *log.Logger) *LocalScreen {
	if len(argv) == 0 {
		argv = defaultCaptureArgv
	}
	return &LocalScreen{
		argv:   append([]string(nil), argv...),
		logger: logger.With("component", "screen"),
	}
}

// Capture implements Screen.
func (s *LocalScreen) Capture(ctx context.Context) ([]byte, error) {
	f, err := os.CreateTemp("", "voxop-screen-*.png")
	if err != nil {
		return nil, errors.NewCollaboratorUnavailableError("screen", err)
	}
	path := f.Name()
	f.Close()
	// Capture tools refuse to overwrite an existing file.
	os.Remove(path)
	defer os.Remove(path)

	argv := append(append([]string(nil), s.argv...), path)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return nil, errors.NewCollaboratorUnavailableError("screen",
			fmt.Errorf("%s: %s", strings.Join(s.argv, " "), detail))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewCollaboratorUnavailableError("screen",
			fmt.Errorf("capture produced no file: %w", err))
	}
	s.logger.Debug("screen captured", "bytes", len(data))
	return data, nil
}
