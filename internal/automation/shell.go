package automation

import (
	"bytes"
	"context"
	stderrors "errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/voxop/voxop/internal/config"
	"github.com/voxop/voxop/internal/errors"
	"github.com/voxop/voxop/internal/log"
)

// LocalShell executes argv sequences directly, without a shell. A leading
// "cd" updates the working directory for the commands that follow instead
// of spawning a process; relative targets resolve against the tracked
// directory.
type LocalShell struct {
	timeout time.Duration
	baseDir string
	logger  *log.Logger
}

// NewLocalShell creates a shell runner from the shell config section.
func NewLocalShell(cfg config.ShellConfig, logger *log.Logger) *LocalShell {
	return &LocalShell{
		timeout: cfg.CommandTimeout.Std(),
		baseDir: cfg.WorkingDir,
		logger:  logger.With("component", "shell"),
	}
}

// Run implements Shell.
func (s *LocalShell) Run(ctx context.Context, commands [][]string) ([]CommandResult, error) {
	cwd := s.baseDir
	if cwd == "" {
		if wd, err := os.Getwd(); err == nil {
			cwd = wd
		} else {
			cwd = "."
		}
	}

	results := make([]CommandResult, 0, len(commands))
	for _, argv := range commands {
		if len(argv) == 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return results, err
		}
		if argv[0] == "cd" {
			cwd = changeDir(cwd, argv)
			results = append(results, CommandResult{Argv: argv, Dir: cwd})
			s.logger.Debug("working directory changed", "dir", cwd)
			continue
		}

		res, err := s.runOne(ctx, cwd, argv)
		results = append(results, res)
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

func (s *LocalShell) runOne(ctx context.Context, dir string, argv []string) (CommandResult, error) {
	cmdCtx := ctx
	cancel := func() {}
	if s.timeout > 0 {
		cmdCtx, cancel = context.WithTimeout(ctx, s.timeout)
	}
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(cmdCtx, argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	res := CommandResult{
		Argv:     argv,
		Dir:      dir,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	line := strings.Join(argv, " ")
	switch {
	case runErr == nil:
		s.logger.Debug("command succeeded", "command", line, "dir", dir, "duration", res.Duration)
		return res, nil
	case ctx.Err() != nil:
		// The surrounding graph or process context went away, not the
		// per-command budget.
		res.ExitCode = -1
		return res, ctx.Err()
	case cmdCtx.Err() == context.DeadlineExceeded:
		res.ExitCode = -1
		s.logger.Warn("command timed out", "command", line, "timeout", s.timeout)
		return res, errors.NewExecutionTimeoutError(line, s.timeout.String())
	default:
		var exitErr *exec.ExitError
		if stderrors.As(runErr, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		} else {
			// Could not start at all: missing binary, bad directory.
			res.ExitCode = -1
			if res.Stderr == "" {
				res.Stderr = runErr.Error()
			}
		}
		s.logger.Warn("command failed", "command", line, "exit_code", res.ExitCode)
		return res, errors.NewExecutionFailureError(line, res.ExitCode, res.Stderr)
	}
}

// changeDir resolves the target of a "cd" command against the current
// directory. A bare "cd" or "cd ." keeps the directory; "~" expands to the
// user's home. The target is not checked for existence, matching shell
// behavior where the next command surfaces the failure.
func changeDir(cwd string, argv []string) string {
	target := "."
	if len(argv) > 1 && argv[1] != "" {
		target = argv[1]
	}
	if target == "~" || strings.HasPrefix(target, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			target = filepath.Join(home, strings.TrimPrefix(target, "~"))
		}
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(cwd, target)
	}
	return target
}
