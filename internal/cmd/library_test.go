package cmd

import (
	"testing"

	"github.com/voxop/voxop/internal/library"
)

func TestStarterLibraryParses(t *testing.T) {
	snap, err := library.Parse([]byte(starterLibrary))
	if err != nil {
		t.Fatalf("starter library must parse: %v", err)
	}

	if snap.Size() == 0 {
		t.Fatal("Expected the starter library to have entries")
	}

	vocab := snap.Vocabulary()
	found := false
	for _, phrase := range vocab {
		if phrase == "open the terminal" {
			found = true
			break
		}
	}
	if !found {
		t.Errorf("Expected vocabulary to include 'open the terminal', got %v", vocab)
	}

	if _, ok := snap.Shortcut("compose"); !ok {
		t.Error("Expected the compose shortcut to survive parsing")
	}
	if _, _, _, ok := snap.MatchApp("firefox"); !ok {
		t.Error("Expected firefox to resolve as an app")
	}
}

func TestStarterLibraryEntriesGrouped(t *testing.T) {
	snap, err := library.Parse([]byte(starterLibrary))
	if err != nil {
		t.Fatal(err)
	}

	kinds := map[string]int{}
	for _, e := range snap.Entries() {
		kinds[e.Kind]++
	}

	for _, kind := range []string{"alias", "app", "workflow", "shortcut"} {
		if kinds[kind] == 0 {
			t.Errorf("Expected at least one %s entry in the starter library", kind)
		}
	}
}
