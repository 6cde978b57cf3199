// Package session assembles the orchestration pipeline behind a small
// facade. One Core serves a whole desktop session: utterances run one
// at a time, while confirmations and aborts may arrive from any
// goroutine.
package session

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/voxop/voxop/internal/automation"
	"github.com/voxop/voxop/internal/config"
	"github.com/voxop/voxop/internal/errors"
	"github.com/voxop/voxop/internal/exec"
	"github.com/voxop/voxop/internal/graph"
	"github.com/voxop/voxop/internal/gui"
	"github.com/voxop/voxop/internal/library"
	"github.com/voxop/voxop/internal/log"
	"github.com/voxop/voxop/internal/policy"
	"github.com/voxop/voxop/internal/provider"
	"github.com/voxop/voxop/internal/router"
	"github.com/voxop/voxop/internal/telemetry"
	"github.com/voxop/voxop/internal/version"
)

// historyCap bounds the in-memory event pane shown by the front ends.
const historyCap = 100

// LanguageService is the language model surface the session uses.
// *provider.LanguageModel implements it.
type LanguageService interface {
	Correct(ctx context.Context, transcript string, vocabulary []string) string
	GenerateCommands(ctx context.Context, intent string, vocabulary []string) ([][]string, error)
	Health(ctx context.Context) error
}

// VisionService is the locator surface of the vision model.
// *provider.VisionModel implements it.
type VisionService interface {
	Locate(ctx context.Context, screenshot []byte, instruction string, temperature float64) ([]provider.Target, error)
	Health(ctx context.Context) error
}

// Deps carries the session's collaborators. ScreenContext and Sinks are
// optional; everything else is required.
type Deps struct {
	Shell    automation.Shell
	Input    automation.Input
	Screen   automation.Screen
	Language LanguageService
	Vision   VisionService
	Library  *library.Store
	Gate     *policy.Gate
	Logger   *log.Logger

	// ScreenContext, when set, supplies a hint about what is visible
	// so demonstrative phrases can resolve to the GUI path.
	ScreenContext func(ctx context.Context) string

	// Sinks receive lifecycle events in addition to the sinks built
	// from the telemetry configuration.
	Sinks []telemetry.Sink
}

// Core is the front-end facade over the orchestration pipeline.
type Core struct {
	cfg     *config.Config
	deps    Deps
	logger  *log.Logger
	builder *graph.Builder
	sched   *exec.Scheduler
	broker  *exec.Broker
	events  *telemetry.Fanout
	history *telemetry.Ring
	store   *telemetry.SQLiteStore

	traceShutdown func(context.Context) error
	watchCancel   context.CancelFunc

	// runMu serializes utterances; mu guards the active run's cancel.
	runMu  sync.Mutex
	mu     sync.Mutex
	cancel context.CancelFunc
}

// New wires the pipeline and checks that both model collaborators
// answer. An unreachable collaborator fails startup rather than the
// first utterance.
func New(ctx context.Context, cfg *config.Config, deps Deps) (*Core, error) {
	logger := deps.Logger.With("component", "session")

	if err := deps.Language.Health(ctx); err != nil {
		return nil, err
	}
	if err := deps.Vision.Health(ctx); err != nil {
		return nil, err
	}

	history := telemetry.NewRing(historyCap)
	events := telemetry.NewFanout(history, telemetry.NewLogSink(deps.Logger))
	for _, s := range deps.Sinks {
		events.Add(s)
	}

	var store *telemetry.SQLiteStore
	if cfg.Telemetry.SQLitePath != "" {
		st, err := telemetry.NewSQLiteStore(cfg.Telemetry.SQLitePath, deps.Logger)
		if err != nil {
			events.Close()
			return nil, err
		}
		store = st
		events.Add(st)
	}
	if cfg.Telemetry.JSONLPath != "" {
		js, err := telemetry.NewJSONLSink(cfg.Telemetry.JSONLPath, deps.Logger)
		if err != nil {
			events.Close()
			return nil, err
		}
		events.Add(js)
	}
	if cfg.Telemetry.NATS.URL != "" {
		ns, err := telemetry.NewNATSSink(cfg.Telemetry.NATS.URL, cfg.Telemetry.NATS.Subject, deps.Logger)
		if err != nil {
			events.Close()
			return nil, err
		}
		events.Add(ns)
	}

	traceShutdown, err := telemetry.InitProvider(ctx, telemetry.Config{
		ServiceName:    "voxop",
		ServiceVersion: version.GetInfo().Short(),
		Enabled:        cfg.Telemetry.Enabled,
		Endpoint:       cfg.Telemetry.OTLPEndpoint,
	})
	if err != nil {
		events.Close()
		return nil, err
	}

	guiLoop := gui.New(deps.Screen, deps.Input, deps.Vision, cfg.GUI, deps.Logger, events)
	rt := router.New(router.Deps{
		Shell:     deps.Shell,
		Input:     deps.Input,
		GUI:       guiLoop,
		Generator: deps.Language,
		Gate:      deps.Gate,
		Retry:     cfg.Retry,
		Logger:    deps.Logger,
		Events:    events,
	})
	broker := exec.NewBroker(cfg.Confirmation.Timeout.Std(), deps.Logger, events)

	core := &Core{
		cfg:           cfg,
		deps:          deps,
		logger:        logger,
		builder:       graph.NewBuilder(deps.Logger),
		sched:         exec.NewScheduler(rt, exec.NewLockTable(), broker, cfg.Scheduler, deps.Logger, events),
		broker:        broker,
		events:        events,
		history:       history,
		store:         store,
		traceShutdown: traceShutdown,
	}

	if cfg.Library.Watch {
		watchCtx, cancel := context.WithCancel(context.Background())
		if err := deps.Library.Watch(watchCtx, func() {
			events.Emit(telemetry.NewEvent(telemetry.KindLibraryReloaded).WithDetail(deps.Library.Path()))
		}); err != nil {
			logger.WithError(err).Warn("command library watcher unavailable", "path", deps.Library.Path())
			cancel()
		} else {
			core.watchCancel = cancel
		}
	}

	logger.Info("session ready",
		"library", deps.Library.Path(),
		"concurrency", cfg.Scheduler.Concurrency,
	)
	return core, nil
}

// StartUtterance corrects, parses, and runs one utterance to
// completion. It returns the run report, or an error when the
// utterance never reached execution. Utterances are serialized; a
// second caller blocks until the first run ends.
func (c *Core) StartUtterance(ctx context.Context, text string) (*exec.Report, error) {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	raw := strings.TrimSpace(text)
	if raw == "" {
		return nil, errors.New(errors.ErrCodeEmptyUtterance, "utterance is empty")
	}
	c.events.Emit(telemetry.NewEvent(telemetry.KindUtteranceReceived).WithDetail(raw))

	snap := c.deps.Library.Snapshot()
	corrected := c.deps.Language.Correct(ctx, raw, snap.Vocabulary())
	if corrected != raw {
		c.events.Emit(telemetry.NewEvent(telemetry.KindUtteranceCorrected).WithDetail(corrected))
	}

	screenContext := ""
	if c.deps.ScreenContext != nil {
		screenContext = c.deps.ScreenContext(ctx)
	}

	g, err := c.builder.Build(corrected, snap, screenContext)
	if err != nil {
		c.logger.WithError(err).Warn("utterance rejected", "utterance", corrected)
		return nil, err
	}
	c.events.Emit(telemetry.NewEvent(telemetry.KindGraphBuilt).
		WithGraph(g.ID).
		WithDetail(fmt.Sprintf("%d tasks", len(g.Order))))

	if c.store != nil {
		if err := c.store.RecordRunStart(g.ID, corrected, len(g.Order)); err != nil {
			c.logger.WithError(err).Warn("run record failed", "graph_id", g.ID)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.cancel = nil
		c.mu.Unlock()
		cancel()
	}()

	rep := c.sched.Run(runCtx, g, snap)

	if c.store != nil {
		if err := c.store.RecordRunEnd(g.ID, rep.Succeeded, rep.Failed, rep.Aborted); err != nil {
			c.logger.WithError(err).Warn("run record failed", "graph_id", g.ID)
		}
	}
	return rep, nil
}

// ApproveConfirmation resumes the task awaiting the given approval.
// Returns false when nothing is pending under that ID.
func (c *Core) ApproveConfirmation(taskID string) bool {
	return c.broker.Approve(taskID)
}

// DenyConfirmation fails the task awaiting the given approval.
func (c *Core) DenyConfirmation(taskID string) bool {
	return c.broker.Deny(taskID)
}

// PendingConfirmations lists the approvals the active run is waiting
// on.
func (c *Core) PendingConfirmations() []exec.ConfirmationRequest {
	return c.broker.Pending()
}

// AbortAll cancels the active run. Safe to call with no run in flight.
func (c *Core) AbortAll() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// History returns the recent lifecycle events, oldest first.
func (c *Core) History() []telemetry.Event {
	return c.history.Snapshot()
}

// Library returns the current command library snapshot.
func (c *Core) Library() *library.Snapshot {
	return c.deps.Library.Snapshot()
}

// Close aborts any active run, waits for it to drain, and releases the
// event sinks and tracer.
func (c *Core) Close() error {
	c.AbortAll()
	c.runMu.Lock()
	defer c.runMu.Unlock()

	if c.watchCancel != nil {
		c.watchCancel()
		c.watchCancel = nil
	}

	var errs []error
	if c.traceShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.traceShutdown(ctx); err != nil {
			errs = append(errs, err)
		}
		c.traceShutdown = nil
	}
	if err := c.events.Close(); err != nil {
		errs = append(errs, err)
	}
	return stderrors.Join(errs...)
}
