package telemetry

import (
	"database/sql"
	"time"

	_ "modernc.org/sqlite"

	"github.com/voxop/voxop/internal/log"
)

// SQLiteStore persists events and graph-run summaries using a pure-Go
// SQLite driver. It doubles as a Sink for the fanout.
type SQLiteStore struct {
	db     *sql.DB
	logger *log.Logger
}

// RunSummary is one recorded graph run.
type RunSummary struct {
	GraphID   string
	Utterance string
	Tasks     int
	Succeeded int
	Failed    int
	Aborted   int
	StartedAt time.Time
	EndedAt   time.Time
}

// NewSQLiteStore opens or creates the database at path and ensures the
// schema exists.
func NewSQLiteStore(path string, logger *log.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// WAL keeps readers from blocking the event writer.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id        TEXT PRIMARY KEY,
		kind      TEXT NOT NULL,
		graph_id  TEXT NOT NULL DEFAULT '',
		task_id   TEXT NOT NULL DEFAULT '',
		state     TEXT NOT NULL DEFAULT '',
		detail    TEXT NOT NULL DEFAULT '',
		error     TEXT NOT NULL DEFAULT '',
		timestamp DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS graph_runs (
		graph_id   TEXT PRIMARY KEY,
		utterance  TEXT NOT NULL DEFAULT '',
		tasks      INTEGER NOT NULL DEFAULT 0,
		succeeded  INTEGER NOT NULL DEFAULT 0,
		failed     INTEGER NOT NULL DEFAULT 0,
		aborted    INTEGER NOT NULL DEFAULT 0,
		started_at DATETIME,
		ended_at   DATETIME
	);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db, logger: logger.With("component", "event_store")}, nil
}

// Emit implements Sink.
func (s *SQLiteStore) Emit(ev Event) {
	_, err := s.db.Exec(
		`INSERT INTO events (id, kind, graph_id, task_id, state, detail, error, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, string(ev.Kind), ev.GraphID, ev.TaskID, ev.State, ev.Detail, ev.Err, ev.Time,
	)
	if err != nil {
		s.logger.Warn("event insert failed", "error", err)
	}
}

// RecordRunStart records a graph run beginning.
func (s *SQLiteStore) RecordRunStart(graphID, utterance string, tasks int) error {
	_, err := s.db.Exec(
		`INSERT INTO graph_runs (graph_id, utterance, tasks, started_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(graph_id) DO NOTHING`,
		graphID, utterance, tasks, time.Now().UTC(),
	)
	return err
}

// RecordRunEnd fills in the outcome counts for a finished run.
func (s *SQLiteStore) RecordRunEnd(graphID string, succeeded, failed, aborted int) error {
	_, err := s.db.Exec(
		`UPDATE graph_runs SET succeeded = ?, failed = ?, aborted = ?, ended_at = ?
		 WHERE graph_id = ?`,
		succeeded, failed, aborted, time.Now().UTC(), graphID,
	)
	return err
}

// ListEvents returns recent events, newest first.
func (s *SQLiteStore) ListEvents(limit int) ([]Event, error) {
	rows, err := s.db.Query(
		`SELECT id, kind, graph_id, task_id, state, detail, error, timestamp
		 FROM events ORDER BY timestamp DESC, id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		var kind string
		if err := rows.Scan(&ev.ID, &kind, &ev.GraphID, &ev.TaskID, &ev.State, &ev.Detail, &ev.Err, &ev.Time); err != nil {
			return nil, err
		}
		ev.Kind = Kind(kind)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// ListRuns returns recent graph runs, newest first.
func (s *SQLiteStore) ListRuns(limit int) ([]RunSummary, error) {
	rows, err := s.db.Query(
		`SELECT graph_id, utterance, tasks, succeeded, failed, aborted, started_at, ended_at
		 FROM graph_runs ORDER BY started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var r RunSummary
		var started, ended sql.NullTime
		if err := rows.Scan(&r.GraphID, &r.Utterance, &r.Tasks, &r.Succeeded, &r.Failed, &r.Aborted, &started, &ended); err != nil {
			return nil, err
		}
		if started.Valid {
			r.StartedAt = started.Time
		}
		if ended.Valid {
			r.EndedAt = ended.Time
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
