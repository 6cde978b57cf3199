package telemetry

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "events.db"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	store := testStore(t)

	store.Emit(NewEvent(KindGraphBuilt).WithGraph("g1").WithDetail("2 tasks"))
	store.Emit(NewEvent(KindTaskState).WithGraph("g1").WithTask("task_0", "running"))
	store.Emit(NewEvent(KindTaskState).WithGraph("g1").WithTask("task_0", "succeeded"))

	events, err := store.ListEvents(10)
	require.NoError(t, err)
	require.Len(t, events, 3)

	// Newest first.
	assert.Equal(t, "succeeded", events[0].State)
	assert.Equal(t, "g1", events[0].GraphID)
	assert.Equal(t, "task_0", events[0].TaskID)
}

func TestSQLiteStoreListLimit(t *testing.T) {
	store := testStore(t)
	for i := 0; i < 5; i++ {
		store.Emit(NewEvent(KindGUIStep))
	}

	events, err := store.ListEvents(2)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestSQLiteStoreRunSummaries(t *testing.T) {
	store := testStore(t)

	require.NoError(t, store.RecordRunStart("g1", "open chrome and check email", 2))
	require.NoError(t, store.RecordRunEnd("g1", 1, 1, 0))

	runs, err := store.ListRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	run := runs[0]
	assert.Equal(t, "open chrome and check email", run.Utterance)
	assert.Equal(t, 2, run.Tasks)
	assert.Equal(t, 1, run.Succeeded)
	assert.Equal(t, 1, run.Failed)
	assert.Equal(t, 0, run.Aborted)
	assert.False(t, run.StartedAt.IsZero(), "run start should be recorded")
	assert.False(t, run.EndedAt.IsZero(), "run end should be recorded")
}

func TestSQLiteStoreRunStartIdempotent(t *testing.T) {
	store := testStore(t)

	require.NoError(t, store.RecordRunStart("g1", "first", 1))
	require.NoError(t, store.RecordRunStart("g1", "second", 9))

	runs, err := store.ListRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "first", runs[0].Utterance, "duplicate start should be ignored")
}
