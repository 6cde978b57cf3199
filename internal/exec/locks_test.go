package exec

import "testing"

func TestTryAcquire(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(l *LockTable)
		key    string
		taskID string
		want   bool
	}{
		{
			name:   "empty key always succeeds",
			key:    "",
			taskID: "task_0",
			want:   true,
		},
		{
			name:   "free key",
			key:    "browser",
			taskID: "task_0",
			want:   true,
		},
		{
			name: "key held by another task",
			setup: func(l *LockTable) {
				l.TryAcquire("browser", "task_0")
			},
			key:    "browser",
			taskID: "task_1",
			want:   false,
		},
		{
			name: "reacquire own key",
			setup: func(l *LockTable) {
				l.TryAcquire("browser", "task_0")
			},
			key:    "browser",
			taskID: "task_0",
			want:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLockTable()
			if tt.setup != nil {
				tt.setup(l)
			}
			if got := l.TryAcquire(tt.key, tt.taskID); got != tt.want {
				t.Errorf("TryAcquire(%q, %q) = %v, want %v", tt.key, tt.taskID, got, tt.want)
			}
		})
	}
}

func TestReleaseFreesKey(t *testing.T) {
	l := NewLockTable()
	l.TryAcquire("browser", "task_0")

	l.Release("browser", "task_0")

	if got := l.TryAcquire("browser", "task_1"); !got {
		t.Error("TryAcquire after release = false, want true")
	}
}

func TestReleaseByNonHolderIsNoop(t *testing.T) {
	l := NewLockTable()
	l.TryAcquire("browser", "task_0")

	l.Release("browser", "task_1")

	holder, held := l.Holder("browser")
	if !held || holder != "task_0" {
		t.Errorf("Holder = %q, %v, want task_0 held", holder, held)
	}
}

func TestHolder(t *testing.T) {
	l := NewLockTable()

	if _, held := l.Holder("browser"); held {
		t.Error("Holder on empty table reported a holder")
	}

	l.TryAcquire("browser", "task_0")
	holder, held := l.Holder("browser")
	if !held || holder != "task_0" {
		t.Errorf("Holder = %q, %v, want task_0 held", holder, held)
	}
}
