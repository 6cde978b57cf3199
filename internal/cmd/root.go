package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var (
	cfgFile   string
	logLevel  string
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:   "voxop",
	Short: "Voice-driven desktop orchestrator",
	Long: `voxop turns natural-language requests into executable task graphs.

An utterance like "open the terminal and then check my email" becomes a
dependency graph of tasks. Each task is routed to shell execution, GUI
automation, or model-generated commands, gated by a safety policy, and
run with bounded concurrency. Events stream to the configured sinks
while the run is live.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// ExecuteContext runs the root command under the given context.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is <user config dir>/voxop/voxop.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: json or text")
}
