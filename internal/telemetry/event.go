// Package telemetry records the orchestration lifecycle. Every state
// change, policy decision, and collaborator call becomes an Event that
// fans out to the configured sinks; tracing runs alongside through an
// OpenTelemetry provider.
package telemetry

import (
	"time"

	"github.com/google/uuid"
)

// Kind classifies a lifecycle event.
type Kind string

const (
	KindUtteranceReceived     Kind = "utterance.received"
	KindUtteranceCorrected    Kind = "utterance.corrected"
	KindGraphBuilt            Kind = "graph.built"
	KindGraphDone             Kind = "graph.done"
	KindTaskState             Kind = "task.state"
	KindPolicyDecision        Kind = "policy.decision"
	KindConfirmationRequested Kind = "confirmation.requested"
	KindConfirmationResolved  Kind = "confirmation.resolved"
	KindGUIStep               Kind = "gui.step"
	KindProviderCall          Kind = "provider.call"
	KindLibraryReloaded       Kind = "library.reloaded"
	KindAbortRequested        Kind = "abort.requested"
)

// Event is one lifecycle record. Everything past ID, Time and Kind is
// optional and depends on the kind. Events carry plain strings so sinks
// never need the graph types.
type Event struct {
	ID      string    `json:"id"`
	Time    time.Time `json:"time"`
	Kind    Kind      `json:"kind"`
	GraphID string    `json:"graph_id,omitempty"`
	TaskID  string    `json:"task_id,omitempty"`
	State   string    `json:"state,omitempty"`
	Detail  string    `json:"detail,omitempty"`
	Err     string    `json:"error,omitempty"`
}

// NewEvent creates an event stamped with a fresh ID and the current time.
func NewEvent(kind Kind) Event {
	return Event{
		ID:   uuid.NewString(),
		Time: time.Now().UTC(),
		Kind: kind,
	}
}

// WithGraph returns a copy tagged with the graph ID.
func (e Event) WithGraph(graphID string) Event {
	e.GraphID = graphID
	return e
}

// WithTask returns a copy tagged with a task ID and its current state.
func (e Event) WithTask(taskID, state string) Event {
	e.TaskID = taskID
	e.State = state
	return e
}

// WithDetail returns a copy carrying a human-readable detail line.
func (e Event) WithDetail(detail string) Event {
	e.Detail = detail
	return e
}

// WithError returns a copy carrying the error text, or the same event for
// a nil error.
func (e Event) WithError(err error) Event {
	if err != nil {
		e.Err = err.Error()
	}
	return e
}
