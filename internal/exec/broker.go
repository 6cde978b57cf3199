package exec

import (
	"sync"
	"time"

	"github.com/voxop/voxop/internal/log"
	"github.com/voxop/voxop/internal/policy"
	"github.com/voxop/voxop/internal/telemetry"
)

// ConfirmationRequest describes a pending approval.
type ConfirmationRequest struct {
	TaskID     string
	Capability policy.Capability
	Reason     string

	// Payload is the literal action text shown to the user.
	Payload string
}

// Resolution is the answer to a confirmation request.
type Resolution struct {
	TaskID   string
	Approved bool
	TimedOut bool
}

type pendingConfirmation struct {
	req     ConfirmationRequest
	timer   *time.Timer
	resolve func(Resolution)
}

// Broker registers confirmation requests and resolves them on approval,
// denial, or timeout. A waiting task costs a map entry and a timer, not
// an execution slot; the resolve callback carries the answer back to
// the scheduling loop.
type Broker struct {
	mu      sync.Mutex
	pending map[string]*pendingConfirmation
	timeout time.Duration
	logger  *log.Logger
	events  telemetry.Sink
}

// NewBroker creates a broker. timeout <= 0 disables expiry.
func NewBroker(timeout time.Duration, logger *log.Logger, events telemetry.Sink) *Broker {
	return &Broker{
		pending: make(map[string]*pendingConfirmation),
		timeout: timeout,
		logger:  logger.With("component", "confirmations"),
		events:  events,
	}
}

// Request registers a confirmation. resolve is called at most once,
// from whichever of Approve, Deny, or the timeout settles it first; a
// Reset drops the request unresolved.
func (b *Broker) Request(req ConfirmationRequest, resolve func(Resolution)) {
	b.mu.Lock()
	p := &pendingConfirmation{req: req, resolve: resolve}
	b.pending[req.TaskID] = p
	if b.timeout > 0 {
		p.timer = time.AfterFunc(b.timeout, func() {
			b.settle(req.TaskID, Resolution{TaskID: req.TaskID, TimedOut: true})
		})
	}
	b.mu.Unlock()

	b.logger.Info("confirmation requested",
		"task_id", req.TaskID,
		"capability", string(req.Capability),
		"reason", req.Reason,
	)
	b.emit(telemetry.KindConfirmationRequested, req.TaskID, req.Reason)
}

// Approve settles the task's confirmation positively. Returns false
// when no such confirmation is pending.
func (b *Broker) Approve(taskID string) bool {
	return b.settle(taskID, Resolution{TaskID: taskID, Approved: true})
}

// Deny settles the task's confirmation negatively.
func (b *Broker) Deny(taskID string) bool {
	return b.settle(taskID, Resolution{TaskID: taskID})
}

// Pending lists unresolved requests, oldest registration order not
// guaranteed.
func (b *Broker) Pending() []ConfirmationRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]ConfirmationRequest, 0, len(b.pending))
	for _, p := range b.pending {
		out = append(out, p.req)
	}
	return out
}

// Reset drops every pending confirmation without resolving it. The
// scheduler resets the broker when a run ends so stale prompts cannot
// leak into the next utterance.
func (b *Broker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, p := range b.pending {
		if p.timer != nil {
			p.timer.Stop()
		}
		delete(b.pending, id)
	}
}

func (b *Broker) settle(taskID string, res Resolution) bool {
	b.mu.Lock()
	p, ok := b.pending[taskID]
	if ok {
		delete(b.pending, taskID)
		if p.timer != nil {
			p.timer.Stop()
		}
	}
	b.mu.Unlock()
	if !ok {
		return false
	}

	switch {
	case res.TimedOut:
		b.emit(telemetry.KindConfirmationResolved, taskID, "timed out")
	case res.Approved:
		b.emit(telemetry.KindConfirmationResolved, taskID, "approved")
	default:
		b.emit(telemetry.KindConfirmationResolved, taskID, "denied")
	}
	p.resolve(res)
	return true
}

func (b *Broker) emit(kind telemetry.Kind, taskID, detail string) {
	if b.events == nil {
		return
	}
	b.events.Emit(telemetry.NewEvent(kind).WithTask(taskID, "").WithDetail(detail))
}
