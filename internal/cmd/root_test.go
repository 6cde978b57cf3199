package cmd

import (
	"testing"

	"github.com/spf13/cobra"
)

// TestRootSubcommands tests that all top-level commands are registered
func TestRootSubcommands(t *testing.T) {
	subcommands := map[string]bool{
		"run":     false,
		"tui":     false,
		"policy":  false,
		"library": false,
		"doctor":  false,
		"version": false,
	}

	for _, cmd := range rootCmd.Commands() {
		if _, exists := subcommands[cmd.Name()]; exists {
			subcommands[cmd.Name()] = true
		}
	}

	for name, found := range subcommands {
		if !found {
			t.Errorf("subcommand '%s' not found in root command", name)
		}
	}
}

// TestRootPersistentFlags tests that the global flags exist
func TestRootPersistentFlags(t *testing.T) {
	for _, name := range []string{"config", "log-level", "log-format"} {
		if rootCmd.PersistentFlags().Lookup(name) == nil {
			t.Errorf("persistent flag '%s' not found on root command", name)
		}
	}
}

func findSubcommand(t *testing.T, parent *cobra.Command, name string) *cobra.Command {
	t.Helper()
	for _, cmd := range parent.Commands() {
		if cmd.Name() == name {
			return cmd
		}
	}
	t.Fatalf("subcommand '%s' not found under '%s'", name, parent.Name())
	return nil
}

// TestPolicySubcommands tests that policy init and show are registered
func TestPolicySubcommands(t *testing.T) {
	initCmd := findSubcommand(t, policyCmd, "init")
	if initCmd.Flags().Lookup("output") == nil {
		t.Error("flag 'output' not found on policy init command")
	}
	if initCmd.Flags().Lookup("force") == nil {
		t.Error("flag 'force' not found on policy init command")
	}

	showCmd := findSubcommand(t, policyCmd, "show")
	if showCmd.Flags().Lookup("json") == nil {
		t.Error("flag 'json' not found on policy show command")
	}
}

// TestLibrarySubcommands tests that library init, list, and validate are registered
func TestLibrarySubcommands(t *testing.T) {
	findSubcommand(t, libraryCmd, "init")
	findSubcommand(t, libraryCmd, "list")
	findSubcommand(t, libraryCmd, "validate")
}

// TestRunFlags tests that run has the approval flag
func TestRunFlags(t *testing.T) {
	if runCmd.Flags().Lookup("yes") == nil {
		t.Error("flag 'yes' not found on run command")
	}
	if runCmd.Flags().ShorthandLookup("y") == nil {
		t.Error("shorthand 'y' not found on run command")
	}
}

// TestDoctorFlags tests that doctor can emit JSON
func TestDoctorFlags(t *testing.T) {
	if doctorCmd.Flags().Lookup("json") == nil {
		t.Error("flag 'json' not found on doctor command")
	}
}
