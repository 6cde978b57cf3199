package gui

import (
	"context"
	"fmt"
	"image"
	"math"
	"strings"
	"time"

	"github.com/voxop/voxop/internal/automation"
	"github.com/voxop/voxop/internal/config"
	"github.com/voxop/voxop/internal/errors"
	"github.com/voxop/voxop/internal/library"
	"github.com/voxop/voxop/internal/log"
	"github.com/voxop/voxop/internal/provider"
	"github.com/voxop/voxop/internal/telemetry"
)

// approachOffset is how far from the target the pointer parks during
// the approach step. Close enough to commit fast, far enough not to
// trigger hover effects inside the target.
const approachOffset = 12

// inferCropFactor scales the verify radius into the crop window used
// when a retry re-infers around the previous best guess.
const inferCropFactor = 6

// reverifyCropFactor scales the verify radius into the crop sent for
// re-verification, giving the model some context around the target.
const reverifyCropFactor = 2

// Locator finds click targets in a screenshot. *provider.VisionModel
// implements it.
type Locator interface {
	Locate(ctx context.Context, screenshot []byte, instruction string, temperature float64) ([]provider.Target, error)
}

// Request describes one GUI task for the loop.
type Request struct {
	TaskID      string
	Instruction string

	// Shortcuts resolves deterministic keyboard fallbacks, usually the
	// library snapshot the task graph was built from. Optional.
	Shortcuts *library.Snapshot
}

// Result reports how a GUI task was completed.
type Result struct {
	// X, Y is where the click landed. Zero for the fallback path.
	X, Y int

	// Label is the acted target's model-reported label.
	Label string

	// Attempts is how many capture-infer rounds ran.
	Attempts int

	// Fallback is the keyboard chord used when visual verification
	// never converged, empty for the click path.
	Fallback string
}

// Loop is the verification loop runner. One Loop serves all GUI tasks;
// per-task state stays on the stack.
type Loop struct {
	screen automation.Screen
	input  automation.Input
	vision Locator
	cfg    config.GUIConfig
	logger *log.Logger
	events telemetry.Sink
}

// New creates a verification loop.
func New(screen automation.Screen, input automation.Input, vision Locator, cfg config.GUIConfig, logger *log.Logger, events telemetry.Sink) *Loop {
	return &Loop{
		screen: screen,
		input:  input,
		vision: vision,
		cfg:    cfg,
		logger: logger.With("component", "gui"),
		events: events,
	}
}

// Run drives the loop for one task: capture, infer, approach, reverify,
// act, confirm. Below-confidence answers, a shifted screen, and a
// missing post-action change all burn one retry; when the budget is
// gone the library's keyboard shortcut is the last resort.
func (l *Loop) Run(ctx context.Context, req Request) (*Result, error) {
	attempts := l.cfg.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}

	var guide *provider.Target
	for attempt := 0; attempt < attempts; attempt++ {
		res, nextGuide, err := l.attempt(ctx, req, attempt, attempts, guide)
		if err != nil {
			return nil, err
		}
		if res != nil {
			res.Attempts = attempt + 1
			return res, nil
		}
		guide = nextGuide
	}

	if res, err := l.fallback(ctx, req, attempts); res != nil || err != nil {
		return res, err
	}
	return nil, errors.NewVerificationMismatchError(req.Instruction, attempts)
}

// attempt runs one capture-to-confirm cycle. A nil Result with a nil
// error means the attempt burned a retry; the returned guide target, if
// any, focuses the next attempt's inference crop.
func (l *Loop) attempt(ctx context.Context, req Request, attempt, attempts int, guide *provider.Target) (*Result, *provider.Target, error) {
	// Capture
	pre, err := l.capture(ctx, req.TaskID, "capture", attempt)
	if err != nil {
		return nil, nil, err
	}

	// Infer
	shot, offset := pre.raw, image.Point{}
	if guide != nil {
		margin := l.cfg.VerifyRadius * inferCropFactor
		region := image.Rect(guide.X-margin, guide.Y-margin, guide.X+margin, guide.Y+margin)
		if cropped, origin, cerr := cropPNG(pre.img, region); cerr == nil {
			shot, offset = cropped, origin
		}
	}
	targets, err := l.locate(ctx, req.TaskID, "infer", shot, req.Instruction, inferTemperature(attempt))
	if err != nil {
		return nil, nil, err
	}
	if len(targets) == 0 {
		l.emit(req.TaskID, fmt.Sprintf("infer: no targets (attempt %d/%d)", attempt+1, attempts))
		return nil, nil, nil
	}
	best, _ := provider.Best(targets)
	best.X += offset.X
	best.Y += offset.Y
	if best.Confidence < l.cfg.Confidence {
		l.emit(req.TaskID, fmt.Sprintf("infer: %q below confidence threshold (%.2f < %.2f)", best.Label, best.Confidence, l.cfg.Confidence))
		return nil, &best, nil
	}

	// Approach
	if err := l.approach(ctx, req.TaskID, best); err != nil {
		return nil, nil, err
	}

	// ReVerify
	point, fresh, ok, err := l.reverify(ctx, req, attempt, attempts, pre, best)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, &best, nil
	}

	// Act
	if err := l.act(ctx, req.TaskID, point); err != nil {
		return nil, nil, err
	}

	// Confirm
	confirmed, err := l.confirm(ctx, req.TaskID, fresh, point)
	if err != nil {
		return nil, nil, err
	}
	if !confirmed {
		l.emit(req.TaskID, fmt.Sprintf("confirm: no screen change at target (attempt %d/%d)", attempt+1, attempts))
		return nil, &best, nil
	}

	return &Result{X: point.X, Y: point.Y, Label: best.Label}, nil, nil
}

func (l *Loop) capture(ctx context.Context, taskID, step string, attempt int) (*frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ctx, span := telemetry.StartStepSpan(ctx, step)
	defer span.End()

	raw, err := l.screen.Capture(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	fr, err := newFrame(raw)
	if err != nil {
		err = errors.NewCollaboratorUnavailableError("screen", err)
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.RecordSuccess(span)
	l.emit(taskID, fmt.Sprintf("%s: %dx%d frame (attempt %d)", step, fr.fp.Bounds.Dx(), fr.fp.Bounds.Dy(), attempt+1))
	return fr, nil
}

func (l *Loop) locate(ctx context.Context, taskID, step string, shot []byte, instruction string, temperature float64) ([]provider.Target, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ctx, span := telemetry.StartStepSpan(ctx, step)
	defer span.End()

	targets, err := l.vision.Locate(ctx, shot, instruction, temperature)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.RecordSuccess(span)
	l.emit(taskID, fmt.Sprintf("%s: %d target(s)", step, len(targets)))
	return targets, nil
}

func (l *Loop) approach(ctx context.Context, taskID string, target provider.Target) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ctx, span := telemetry.StartStepSpan(ctx, "approach")
	defer span.End()

	x, y := target.X-approachOffset, target.Y-approachOffset
	if x < 0 {
		x = 0
	}
	if y < 0 {
		y = 0
	}
	if err := l.input.Move(ctx, x, y); err != nil {
		telemetry.RecordError(span, err)
		return err
	}
	telemetry.RecordSuccess(span)
	l.emit(taskID, fmt.Sprintf("approach: pointer near (%d,%d)", target.X, target.Y))
	return nil
}

// reverify re-captures and checks the candidate is still where the
// model said. It returns the click point, possibly snapped to the
// re-located target, plus the fresh frame for the confirm diff.
func (l *Loop) reverify(ctx context.Context, req Request, attempt, attempts int, pre *frame, best provider.Target) (image.Point, *frame, bool, error) {
	if err := ctx.Err(); err != nil {
		return image.Point{}, nil, false, err
	}
	ctx, span := telemetry.StartStepSpan(ctx, "reverify")
	defer span.End()

	fresh, err := l.capture(ctx, req.TaskID, "reverify-capture", attempt)
	if err != nil {
		telemetry.RecordError(span, err)
		return image.Point{}, nil, false, err
	}

	radius := l.cfg.VerifyRadius
	region := image.Rect(best.X-radius, best.Y-radius, best.X+radius, best.Y+radius)
	if diff := pre.fp.DiffRegion(fresh.fp, region); diff > l.cfg.DiffTolerance {
		l.emit(req.TaskID, fmt.Sprintf("reverify: screen changed near target (diff %.2f)", diff))
		telemetry.RecordSuccess(span)
		return image.Point{}, nil, false, nil
	}

	cropMargin := radius * reverifyCropFactor
	cropRect := image.Rect(best.X-cropMargin, best.Y-cropMargin, best.X+cropMargin, best.Y+cropMargin)
	shot, offset := fresh.raw, image.Point{}
	if cropped, origin, cerr := cropPNG(fresh.img, cropRect); cerr == nil {
		shot, offset = cropped, origin
	}
	targets, err := l.locate(ctx, req.TaskID, "reverify-infer", shot, req.Instruction, 0.3)
	if err != nil {
		telemetry.RecordError(span, err)
		return image.Point{}, nil, false, err
	}

	point := image.Pt(best.X, best.Y)
	if len(targets) == 0 {
		// A conservative empty answer does not veto an already
		// verified region.
		telemetry.RecordSuccess(span)
		return point, fresh, true, nil
	}

	nearest, dist := nearestTarget(targets, offset, point)
	switch {
	case dist <= float64(radius):
		telemetry.RecordSuccess(span)
		return nearest, fresh, true, nil
	case attempt < attempts-1:
		l.emit(req.TaskID, fmt.Sprintf("reverify: target moved %.0fpx, retrying", dist))
		telemetry.RecordSuccess(span)
		return image.Point{}, nil, false, nil
	default:
		// Last attempt: trust the freshest answer.
		l.emit(req.TaskID, fmt.Sprintf("reverify: snapping %.0fpx to relocated target", dist))
		telemetry.RecordSuccess(span)
		return nearest, fresh, true, nil
	}
}

func (l *Loop) act(ctx context.Context, taskID string, point image.Point) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ctx, span := telemetry.StartStepSpan(ctx, "act")
	defer span.End()

	if err := l.input.Click(ctx, point.X, point.Y); err != nil {
		telemetry.RecordError(span, err)
		return err
	}
	telemetry.RecordSuccess(span)
	l.emit(taskID, fmt.Sprintf("act: clicked (%d,%d)", point.X, point.Y))
	return nil
}

// confirm waits for the UI to settle and checks the target region
// actually changed.
func (l *Loop) confirm(ctx context.Context, taskID string, pre *frame, point image.Point) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	ctx, span := telemetry.StartStepSpan(ctx, "confirm")
	defer span.End()

	if delay := l.cfg.SettleDelay.Std(); delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			telemetry.RecordError(span, ctx.Err())
			return false, ctx.Err()
		}
	}

	post, err := l.capture(ctx, taskID, "confirm-capture", 0)
	if err != nil {
		telemetry.RecordError(span, err)
		return false, err
	}

	radius := l.cfg.VerifyRadius
	region := image.Rect(point.X-radius, point.Y-radius, point.X+radius, point.Y+radius)
	diff := pre.fp.DiffRegion(post.fp, region)
	telemetry.RecordSuccess(span)
	l.emit(taskID, fmt.Sprintf("confirm: region diff %.2f", diff))
	return diff > l.cfg.DiffTolerance, nil
}

// fallback tries the library's deterministic keyboard chord for the
// instruction. A nil, nil return means no chord is registered.
func (l *Loop) fallback(ctx context.Context, req Request, attempts int) (*Result, error) {
	if req.Shortcuts == nil {
		return nil, nil
	}
	chord, ok := matchShortcut(req.Shortcuts, req.Instruction)
	if !ok {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ctx, span := telemetry.StartStepSpan(ctx, "fallback")
	defer span.End()

	combo := strings.Join(chord, "+")
	if err := l.input.Key(ctx, combo); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.RecordSuccess(span)
	l.emit(req.TaskID, "fallback: keyboard shortcut "+combo)
	l.logger.Info("visual verification exhausted, used keyboard fallback",
		"task_id", req.TaskID,
		"chord", combo,
	)
	return &Result{Attempts: attempts, Fallback: combo}, nil
}

// matchShortcut resolves a chord for the instruction: the exact phrase
// first, then each word, so "click the compose button" can use a
// shortcut registered under "compose".
func matchShortcut(snap *library.Snapshot, instruction string) ([]string, bool) {
	if chord, ok := snap.Shortcut(instruction); ok {
		return chord, true
	}
	for _, word := range strings.Fields(library.Normalize(instruction)) {
		if chord, ok := snap.Shortcut(word); ok {
			return chord, true
		}
	}
	return nil, false
}

// nearestTarget translates crop-relative targets into frame coordinates
// and returns the closest to want.
func nearestTarget(targets []provider.Target, offset image.Point, want image.Point) (image.Point, float64) {
	bestPoint := want
	bestDist := math.Inf(1)
	for _, t := range targets {
		p := image.Pt(t.X+offset.X, t.Y+offset.Y)
		d := math.Hypot(float64(p.X-want.X), float64(p.Y-want.Y))
		if d < bestDist {
			bestPoint, bestDist = p, d
		}
	}
	return bestPoint, bestDist
}

// inferTemperature ramps sampling heat across attempts so a stuck model
// stops repeating the same wrong answer.
func inferTemperature(attempt int) float64 {
	t := 0.3 + 0.1*float64(attempt)
	if t > 0.7 {
		t = 0.7
	}
	return t
}

func (l *Loop) emit(taskID, detail string) {
	if l.events == nil {
		return
	}
	l.events.Emit(telemetry.NewEvent(telemetry.KindGUIStep).WithTask(taskID, "").WithDetail(detail))
}
