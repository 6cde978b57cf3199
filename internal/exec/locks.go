// Package exec runs a task graph to completion: a single-writer
// scheduling loop over a bounded slot pool, a resource lock table, and
// the confirmation broker that parks tasks awaiting approval without
// occupying a slot.
package exec

import "sync"

// LockTable maps resource keys to their holding task. At most one
// holder per key; tasks without a resource key never touch the table.
type LockTable struct {
	mu    sync.Mutex
	holds map[string]string
}

// NewLockTable creates an empty lock table.
func NewLockTable() *LockTable {
	return &LockTable{holds: make(map[string]string)}
}

// TryAcquire claims key for taskID. An empty key always succeeds.
// Re-acquiring a key the task already holds succeeds, so a task resumed
// after confirmation keeps its claim.
func (l *LockTable) TryAcquire(key, taskID string) bool {
	if key == "" {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	holder, held := l.holds[key]
	if held {
		return holder == taskID
	}
	l.holds[key] = taskID
	return true
}

// Release drops taskID's claim on key. Releasing a key held by another
// task, or not held at all, is a no-op.
func (l *LockTable) Release(key, taskID string) {
	if key == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.holds[key] == taskID {
		delete(l.holds, key)
	}
}

// Holder returns the task currently holding key.
func (l *LockTable) Holder(key string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	holder, held := l.holds[key]
	return holder, held
}
