package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/voxop/voxop/internal/config"
	"github.com/voxop/voxop/internal/library"
)

func TestCheckBinary(t *testing.T) {
	check := checkBinary("shell", "sh")
	if check.Status != "ok" {
		t.Errorf("Expected sh to be found, got %s: %s", check.Status, check.Message)
	}

	check = checkBinary("missing", "voxop-no-such-binary")
	if check.Status != "error" {
		t.Errorf("Expected missing binary to error, got %s", check.Status)
	}
	if !strings.Contains(check.Message, "not found") {
		t.Errorf("Expected a not-found message, got %q", check.Message)
	}
}

func TestCheckLibraryMissingIsWarning(t *testing.T) {
	cfg := config.Default()
	cfg.Library.Path = filepath.Join(t.TempDir(), "commands.yaml")

	check := checkLibrary(cfg)

	if check.Status != "warning" {
		t.Errorf("Expected a missing library to warn, got %s", check.Status)
	}
	if !strings.Contains(check.Message, "library init") {
		t.Errorf("Expected the message to point at library init, got %q", check.Message)
	}
}

func TestCheckLibraryCountsEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "commands.yaml")
	if err := os.WriteFile(path, []byte(starterLibrary), 0o644); err != nil {
		t.Fatal(err)
	}
	snap, err := library.LoadFile(path)
	if err != nil {
		t.Fatalf("starter library should load: %v", err)
	}

	cfg := config.Default()
	cfg.Library.Path = path
	check := checkLibrary(cfg)

	if check.Status != "ok" {
		t.Errorf("Expected ok, got %s: %s", check.Status, check.Message)
	}
	if !strings.Contains(check.Message, "entries") {
		t.Errorf("Expected an entry count, got %q", check.Message)
	}
	if snap.Size() == 0 {
		t.Error("Expected the starter library to have entries")
	}
}

func TestCheckPolicyBuiltIn(t *testing.T) {
	cfg := config.Default()
	cfg.PolicyPath = ""

	check := checkPolicy(cfg)

	if check.Status != "ok" {
		t.Errorf("Expected built-in policy to be ok, got %s: %s", check.Status, check.Message)
	}
	if !strings.Contains(check.Message, "built-in") {
		t.Errorf("Expected the message to name the built-in policy, got %q", check.Message)
	}
}

func TestCheckPolicyBrokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte("default: frobnicate\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := config.Default()
	cfg.PolicyPath = path

	check := checkPolicy(cfg)

	if check.Status != "error" {
		t.Errorf("Expected an invalid policy to error, got %s", check.Status)
	}
}
