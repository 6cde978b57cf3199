package automation

import (
	"bytes"
	"context"
	"testing"
)

func TestFakeScreenRepeatsLastFrame(t *testing.T) {
	screen := &FakeScreen{Frames: [][]byte{{1}, {2}}}
	ctx := context.Background()

	first, _ := screen.Capture(ctx)
	second, _ := screen.Capture(ctx)
	third, _ := screen.Capture(ctx)

	if !bytes.Equal(first, []byte{1}) || !bytes.Equal(second, []byte{2}) {
		t.Errorf("frames served out of order: %v %v", first, second)
	}
	if !bytes.Equal(third, []byte{2}) {
		t.Errorf("exhausted queue should repeat the last frame, got %v", third)
	}
	if screen.Calls() != 3 {
		t.Errorf("Calls() = %d, want 3", screen.Calls())
	}
}

func TestFakeInputRecordsActions(t *testing.T) {
	in := &FakeInput{}
	ctx := context.Background()

	_ = in.Move(ctx, 5, 6)
	_ = in.Click(ctx, 7, 8)
	_ = in.Type(ctx, "dictated text ")
	_ = in.Key(ctx, "ctrl+s")

	actions := in.Actions()
	if len(actions) != 4 {
		t.Fatalf("len(actions) = %d, want 4", len(actions))
	}
	if actions[0].Kind != "move" || actions[0].X != 5 {
		t.Errorf("actions[0] = %+v", actions[0])
	}
	if actions[1].Kind != "click" || actions[1].Y != 8 {
		t.Errorf("actions[1] = %+v", actions[1])
	}
	if actions[2].Kind != "type" || actions[2].Text != "dictated text " {
		t.Errorf("actions[2] = %+v", actions[2])
	}
	if actions[3].Kind != "key" || actions[3].Text != "ctrl+s" {
		t.Errorf("actions[3] = %+v", actions[3])
	}
}

func TestFakeShellRecordsRuns(t *testing.T) {
	shell := &FakeShell{
		Results: []CommandResult{{Argv: []string{"echo", "hi"}, ExitCode: 0}},
	}

	cmds := [][]string{{"echo", "hi"}}
	results, err := shell.Run(context.Background(), cmds)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(results) != 1 || results[0].ExitCode != 0 {
		t.Errorf("results = %+v", results)
	}
	runs := shell.Runs()
	if len(runs) != 1 || len(runs[0]) != 1 || runs[0][0][0] != "echo" {
		t.Errorf("Runs() = %+v", runs)
	}
}
