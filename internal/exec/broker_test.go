package exec

import (
	"testing"
	"time"

	"github.com/voxop/voxop/internal/log"
	"github.com/voxop/voxop/internal/telemetry"
)

func testLogger() *log.Logger {
	return log.New(log.Config{
		Level:  log.LevelError,
		Format: log.FormatText,
		Output: log.OutputStderr(),
	})
}

func collectResolution(t *testing.T, ch <-chan Resolution) Resolution {
	t.Helper()
	select {
	case res := <-ch:
		return res
	case <-time.After(2 * time.Second):
		t.Fatal("resolution never arrived")
		return Resolution{}
	}
}

func TestBrokerApprove(t *testing.T) {
	b := NewBroker(0, testLogger(), nil)
	resolved := make(chan Resolution, 1)

	b.Request(ConfirmationRequest{TaskID: "task_0", Reason: "destructive"}, func(res Resolution) {
		resolved <- res
	})

	if !b.Approve("task_0") {
		t.Fatal("Approve returned false for a pending confirmation")
	}
	res := collectResolution(t, resolved)
	if !res.Approved || res.TimedOut {
		t.Errorf("resolution = %+v, want approved", res)
	}
	if res.TaskID != "task_0" {
		t.Errorf("TaskID = %q, want task_0", res.TaskID)
	}
}

func TestBrokerDeny(t *testing.T) {
	b := NewBroker(0, testLogger(), nil)
	resolved := make(chan Resolution, 1)

	b.Request(ConfirmationRequest{TaskID: "task_0"}, func(res Resolution) {
		resolved <- res
	})

	if !b.Deny("task_0") {
		t.Fatal("Deny returned false for a pending confirmation")
	}
	res := collectResolution(t, resolved)
	if res.Approved || res.TimedOut {
		t.Errorf("resolution = %+v, want denied", res)
	}
}

func TestBrokerTimeout(t *testing.T) {
	b := NewBroker(20*time.Millisecond, testLogger(), nil)
	resolved := make(chan Resolution, 1)

	b.Request(ConfirmationRequest{TaskID: "task_0"}, func(res Resolution) {
		resolved <- res
	})

	res := collectResolution(t, resolved)
	if !res.TimedOut || res.Approved {
		t.Errorf("resolution = %+v, want timed out", res)
	}
	if b.Approve("task_0") {
		t.Error("Approve succeeded after the confirmation timed out")
	}
}

func TestBrokerZeroTimeoutNeverExpires(t *testing.T) {
	b := NewBroker(0, testLogger(), nil)
	b.Request(ConfirmationRequest{TaskID: "task_0"}, func(Resolution) {})

	time.Sleep(30 * time.Millisecond)

	if got := len(b.Pending()); got != 1 {
		t.Errorf("Pending after wait = %d requests, want 1", got)
	}
}

func TestBrokerSettleUnknownTask(t *testing.T) {
	b := NewBroker(0, testLogger(), nil)

	if b.Approve("missing") {
		t.Error("Approve returned true for an unknown task")
	}
	if b.Deny("missing") {
		t.Error("Deny returned true for an unknown task")
	}
}

func TestBrokerSettlesOnce(t *testing.T) {
	b := NewBroker(0, testLogger(), nil)
	calls := 0

	b.Request(ConfirmationRequest{TaskID: "task_0"}, func(Resolution) {
		calls++
	})

	if !b.Approve("task_0") {
		t.Fatal("first Approve failed")
	}
	if b.Approve("task_0") {
		t.Error("second Approve returned true")
	}
	if b.Deny("task_0") {
		t.Error("Deny returned true after Approve settled the request")
	}
	if calls != 1 {
		t.Errorf("resolve called %d times, want 1", calls)
	}
}

func TestBrokerPending(t *testing.T) {
	b := NewBroker(0, testLogger(), nil)
	b.Request(ConfirmationRequest{TaskID: "task_0", Payload: "rm -rf build"}, func(Resolution) {})
	b.Request(ConfirmationRequest{TaskID: "task_1", Payload: "sudo systemctl restart nginx"}, func(Resolution) {})

	pending := b.Pending()
	if len(pending) != 2 {
		t.Fatalf("Pending = %d requests, want 2", len(pending))
	}
	seen := map[string]string{}
	for _, req := range pending {
		seen[req.TaskID] = req.Payload
	}
	if seen["task_0"] != "rm -rf build" {
		t.Errorf("task_0 payload = %q", seen["task_0"])
	}
	if seen["task_1"] != "sudo systemctl restart nginx" {
		t.Errorf("task_1 payload = %q", seen["task_1"])
	}
}

func TestBrokerResetDropsPendingUnresolved(t *testing.T) {
	b := NewBroker(0, testLogger(), nil)
	calls := 0
	b.Request(ConfirmationRequest{TaskID: "task_0"}, func(Resolution) {
		calls++
	})

	b.Reset()

	if got := len(b.Pending()); got != 0 {
		t.Errorf("Pending after reset = %d requests, want 0", got)
	}
	if b.Approve("task_0") {
		t.Error("Approve succeeded after reset")
	}
	if calls != 0 {
		t.Errorf("resolve called %d times, want 0", calls)
	}
}

func TestBrokerEmitsLifecycleEvents(t *testing.T) {
	ring := telemetry.NewRing(10)
	b := NewBroker(0, testLogger(), ring)

	b.Request(ConfirmationRequest{TaskID: "task_0", Reason: "destructive command"}, func(Resolution) {})
	b.Approve("task_0")

	events := ring.Snapshot()
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Kind != telemetry.KindConfirmationRequested {
		t.Errorf("events[0].Kind = %q, want %q", events[0].Kind, telemetry.KindConfirmationRequested)
	}
	if events[0].Detail != "destructive command" {
		t.Errorf("events[0].Detail = %q", events[0].Detail)
	}
	if events[1].Kind != telemetry.KindConfirmationResolved {
		t.Errorf("events[1].Kind = %q, want %q", events[1].Kind, telemetry.KindConfirmationResolved)
	}
	if events[1].Detail != "approved" {
		t.Errorf("events[1].Detail = %q, want approved", events[1].Detail)
	}
}
