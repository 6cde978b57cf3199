package cmd

import (
	"github.com/spf13/cobra"

	"github.com/voxop/voxop/internal/tui"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Open the interactive session board",
	Long: `Open the full-screen terminal session.

Type requests at the prompt, watch the task board and event transcript
update live, and answer confirmation prompts inline. Esc aborts the
active run; q quits when idle.`,
	RunE: runTUI,
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}

func runTUI(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	core, err := buildCore(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer core.Close()

	return tui.Run(core)
}
