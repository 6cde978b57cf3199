package telemetry

import (
	"encoding/json"
	stderrors "errors"
	"os"
	"sync"

	"github.com/voxop/voxop/internal/log"
)

// Sink consumes lifecycle events. Emit must not block the caller for long
// and must swallow its own failures; a broken sink never stops the
// orchestrator.
type Sink interface {
	Emit(ev Event)
	Close() error
}

// Fanout delivers every event to all registered sinks in order.
type Fanout struct {
	mu    sync.RWMutex
	sinks []Sink
}

// NewFanout creates a fanout over the given sinks.
func NewFanout(sinks ...Sink) *Fanout {
	return &Fanout{sinks: sinks}
}

// Add registers another sink.
func (f *Fanout) Add(s Sink) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinks = append(f.sinks, s)
}

// Emit implements Sink.
func (f *Fanout) Emit(ev Event) {
	f.mu.RLock()
	sinks := f.sinks
	f.mu.RUnlock()
	for _, s := range sinks {
		s.Emit(ev)
	}
}

// Close closes every sink and returns the joined errors.
func (f *Fanout) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var errs []error
	for _, s := range f.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	f.sinks = nil
	return stderrors.Join(errs...)
}

// LogSink writes events to the structured logger.
type LogSink struct {
	logger *log.Logger
}

// NewLogSink creates a sink logging at info level.
func NewLogSink(logger *log.Logger) *LogSink {
	return &LogSink{logger: logger.With("component", "events")}
}

// Emit implements Sink.
func (s *LogSink) Emit(ev Event) {
	args := []any{"kind", string(ev.Kind)}
	if ev.GraphID != "" {
		args = append(args, "graph_id", ev.GraphID)
	}
	if ev.TaskID != "" {
		args = append(args, "task_id", ev.TaskID)
	}
	if ev.State != "" {
		args = append(args, "state", ev.State)
	}
	if ev.Detail != "" {
		args = append(args, "detail", ev.Detail)
	}
	if ev.Err != "" {
		args = append(args, "error", ev.Err)
	}
	s.logger.Info("event", args...)
}

// Close implements Sink.
func (s *LogSink) Close() error { return nil }

// JSONLSink appends one JSON object per line to a file.
type JSONLSink struct {
	mu     sync.Mutex
	file   *os.File
	logger *log.Logger
}

// NewJSONLSink opens or creates the file in append mode.
func NewJSONLSink(path string, logger *log.Logger) (*JSONLSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &JSONLSink{file: f, logger: logger.With("component", "events")}, nil
}

// Emit implements Sink.
func (s *JSONLSink) Emit(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return
	}
	if _, err := s.file.Write(append(data, '\n')); err != nil {
		s.logger.Warn("event log write failed", "error", err)
	}
}

// Close implements Sink.
func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// Ring keeps the most recent events in memory for the front end.
type Ring struct {
	mu     sync.Mutex
	events []Event
	cap    int
}

// NewRing creates a ring buffer holding up to capacity events.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 100
	}
	return &Ring{cap: capacity}
}

// Emit implements Sink.
func (r *Ring) Emit(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	if len(r.events) > r.cap {
		r.events = r.events[len(r.events)-r.cap:]
	}
}

// Close implements Sink.
func (r *Ring) Close() error { return nil }

// Snapshot returns the buffered events, oldest first.
func (r *Ring) Snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}
