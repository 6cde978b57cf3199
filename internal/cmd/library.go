package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/voxop/voxop/internal/library"
)

var libraryCmd = &cobra.Command{
	Use:   "library",
	Short: "Manage the command library",
	Long: `Inspect and create the command library: the phrase-to-action mapping
consulted before any model is asked to generate commands.

Subcommands:
  init      Write a starter library file
  list      List every known phrase
  validate  Check a library file for errors

Examples:
  voxop library init
  voxop library list
  voxop library validate commands.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var libraryInitForce bool

var libraryInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter library file",
	Long: `Write a commented starter library to the configured library path.

The starter shows each section: aliases (phrase to literal commands),
apps (launchable programs), workflows (named multi-step sequences), and
shortcuts (key chords the GUI path can press by label).`,
	RunE: runLibraryInit,
}

var libraryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every known phrase",
	RunE:  runLibraryList,
}

var libraryValidateCmd = &cobra.Command{
	Use:   "validate [path]",
	Short: "Check a library file for errors",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runLibraryValidate,
}

func init() {
	libraryInitCmd.Flags().BoolVar(&libraryInitForce, "force", false, "overwrite an existing file")

	libraryCmd.AddCommand(libraryInitCmd)
	libraryCmd.AddCommand(libraryListCmd)
	libraryCmd.AddCommand(libraryValidateCmd)
	rootCmd.AddCommand(libraryCmd)
}

// starterLibrary is the document written by library init.
const starterLibrary = `version: "1"

# Aliases map a spoken phrase to literal commands. Phrases are matched
# whole, case-insensitively, after punctuation is stripped.
aliases:
  open the terminal:
    commands:
      - [wezterm]
  lock the screen:
    commands:
      - [loginctl, lock-session]

# Apps are launchable programs. "open firefox" or just "firefox" works.
# A resource serializes tasks that share it.
apps:
  firefox:
    launch: [firefox, --new-window]
    resource: browser
  files:
    launch: [nautilus]

# Workflows are named multi-step sequences. Steps run in order.
workflows:
  start my day:
    resource: browser
    steps:
      - name: open email
        command: [firefox, --new-window, "https://mail.example.com"]
      - name: open calendar
        command: [firefox, --new-tab, "https://calendar.example.com"]

# Shortcuts are key chords the GUI path can press by label.
shortcuts:
  compose: [ctrl, n]
  save: [ctrl, s]
`

func runLibraryInit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	path := cfg.Library.Path

	if _, err := os.Stat(path); err == nil && !libraryInitForce {
		return fmt.Errorf("library file already exists: %s (use --force to overwrite)", path)
	}

	// Refuse to write something the loader would reject.
	if _, err := library.Parse([]byte(starterLibrary)); err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(starterLibrary), 0o644); err != nil {
		return fmt.Errorf("write library file: %w", err)
	}

	fmt.Printf("✅ Created library file: %s\n", path)
	return nil
}

func runLibraryList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	snap, err := library.LoadFile(cfg.Library.Path)
	if err != nil {
		return err
	}

	entries := snap.Entries()
	if len(entries) == 0 {
		fmt.Println("The library is empty. Run 'voxop library init' for a starter.")
		return nil
	}

	kind := ""
	for _, e := range entries {
		if e.Kind != kind {
			if kind != "" {
				fmt.Println()
			}
			kind = e.Kind
			fmt.Printf("%s:\n", kind)
		}
		fmt.Printf("  %-32s %s\n", e.Phrase, e.Detail)
	}
	fmt.Printf("\n%d entries in %s\n", snap.Size(), cfg.Library.Path)
	return nil
}

func runLibraryValidate(cmd *cobra.Command, args []string) error {
	path := ""
	if len(args) == 1 {
		path = args[0]
	} else {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		path = cfg.Library.Path
	}

	snap, err := library.LoadFile(path)
	if err != nil {
		return err
	}

	fmt.Printf("✅ %s is valid (%d entries)\n", path, snap.Size())
	return nil
}
