package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/voxop/voxop/internal/errors"
	"github.com/voxop/voxop/internal/exec"
	"github.com/voxop/voxop/internal/graph"
	"github.com/voxop/voxop/internal/session"
	"github.com/voxop/voxop/internal/tui"
)

var runYes bool

var runCmd = &cobra.Command{
	Use:   "run [utterance]",
	Short: "Run one request and print the result",
	Long: `Run a single natural-language request to completion.

The request is resolved against the command library, built into a task
graph, and executed. Actions the safety policy wants confirmed are
prompted on the terminal; pass --yes to approve them all up front.

Examples:
  voxop run "open the terminal"
  voxop run "clean the workspace and then rebuild" --yes
  voxop run                     # prompts for the request`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVarP(&runYes, "yes", "y", false, "approve every confirmation without prompting")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	utterance := strings.TrimSpace(strings.Join(args, " "))
	if utterance == "" {
		var err error
		utterance, err = tui.PromptForUtterance()
		if err != nil {
			return err
		}
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx := cmd.Context()
	core, err := buildCore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer core.Close()

	done := make(chan runResult, 1)
	go func() {
		rep, err := core.StartUtterance(ctx, utterance)
		done <- runResult{report: rep, err: err}
	}()

	rep, err := superviseRun(core, done)
	if err != nil {
		return err
	}
	printReport(rep)
	return reportError(rep)
}

type runResult struct {
	report *exec.Report
	err    error
}

// superviseRun answers confirmation prompts while the graph runs. A
// task can park more than once, so requests are answered as they
// appear rather than remembered.
func superviseRun(core *session.Core, done <-chan runResult) (*exec.Report, error) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case res := <-done:
			return res.report, res.err
		case <-ticker.C:
			for _, req := range core.PendingConfirmations() {
				if runYes {
					core.ApproveConfirmation(req.TaskID)
					continue
				}
				approved, err := tui.ConfirmRequest(req)
				if err != nil {
					// Prompt abandoned counts as a denial.
					core.DenyConfirmation(req.TaskID)
					continue
				}
				if approved {
					core.ApproveConfirmation(req.TaskID)
				} else {
					core.DenyConfirmation(req.TaskID)
				}
			}
		}
	}
}

func printReport(rep *exec.Report) {
	if rep == nil {
		return
	}
	fmt.Println()
	for _, task := range rep.Tasks {
		line := fmt.Sprintf("  %s %s  %s", stateGlyph(task.State), task.ID, task.Description)
		if task.Err != nil {
			line += fmt.Sprintf("  (%v)", task.Err)
		} else if task.Duration > 0 {
			line += fmt.Sprintf("  (%s)", task.Duration.Round(time.Millisecond))
		}
		fmt.Println(line)
	}
	fmt.Printf("\n%d succeeded, %d failed, %d aborted in %s\n",
		rep.Succeeded, rep.Failed, rep.Aborted,
		rep.EndedAt.Sub(rep.StartedAt).Round(time.Millisecond))
}

func stateGlyph(state graph.State) string {
	switch state {
	case graph.StateSucceeded:
		return "✓"
	case graph.StateFailed:
		return "✗"
	case graph.StateAborted:
		return "⊘"
	default:
		return "○"
	}
}

// reportError maps a partial or aborted run onto a coded error so the
// process exit code reflects the outcome.
func reportError(rep *exec.Report) error {
	if rep == nil {
		return nil
	}
	switch {
	case rep.Failed > 0:
		return errors.New(errors.ErrCodeExecutionFailure,
			fmt.Sprintf("%d of %d tasks failed", rep.Failed, len(rep.Tasks)))
	case rep.Aborted > 0:
		return errors.New(errors.ErrCodeCancelled,
			fmt.Sprintf("%d of %d tasks aborted", rep.Aborted, len(rep.Tasks)))
	}
	return nil
}
