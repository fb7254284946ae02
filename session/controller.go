package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/aperturerobotics/go-jsdos/bundle"
	"github.com/aperturerobotics/go-jsdos/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/aperturerobotics/go-jsdos/session"

// ErrNilBundle is returned when the toolkit resolves a locator to nothing.
var ErrNilBundle = errors.New("toolkit resolved no bundle")

// Phase is the lifecycle phase of a Controller.
type Phase int

const (
	// PhaseIdle means no instance is stored.
	PhaseIdle Phase = iota
	// PhaseStarting means an instance start is in flight or being attached.
	PhaseStarting
	// PhaseRunning means an instance is attached to the surface.
	PhaseRunning
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseStarting:
		return "starting"
	case PhaseRunning:
		return "running"
	}
	return "unknown"
}

// slot is the controller's instance handle. The zero value is Idle.
type slot struct {
	phase   Phase
	pending *pending
	bundle  *bundle.Bundle
}

// Controller owns at most one emulator instance bound to a surface.
type Controller struct {
	root    string
	engine  EngineFactory
	toolkit Toolkit
	surface Surface

	// turn serializes Run and Stop.
	turn chan struct{}

	mu   sync.Mutex
	slot slot

	logger *slog.Logger
	tracer trace.Tracer
	hooks  Hooks
}

// Option configures the Controller.
type Option func(*Controller)

// WithLogger configures a logger for the Controller.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithTracer sets the tracer used for Run and Stop spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *Controller) {
		c.tracer = tracer
	}
}

// WithHooks registers lifecycle hooks. Multiple calls are merged.
func WithHooks(hooks Hooks) Option {
	return func(c *Controller) {
		c.hooks = c.hooks.Merge(hooks)
	}
}

// New creates a controller for the page region root. The surface is
// created immediately and its loading overlay shown.
func New(root string, engine EngineFactory, toolkit Toolkit, opts ...Option) *Controller {
	c := &Controller{
		root:    root,
		engine:  engine,
		toolkit: toolkit,
		turn:    make(chan struct{}, 1),
		logger:  logging.NewNop(),
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.surface = toolkit.CreateSurface(root)
	c.surface.ShowLoadingOverlay()
	return c
}

// Root returns the page region the controller is bound to.
func (c *Controller) Root() string {
	return c.root
}

// Surface returns the controller's presentation surface.
func (c *Controller) Surface() Surface {
	return c.surface
}

// State returns the current phase.
func (c *Controller) State() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slot.phase
}

func (c *Controller) acquireTurn(ctx context.Context) error {
	select {
	case c.turn <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) releaseTurn() {
	<-c.turn
}

func (c *Controller) setSlot(s slot) {
	c.mu.Lock()
	c.slot = s
	c.mu.Unlock()
}

func (c *Controller) currentSlot() slot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slot
}

// Run stops any current instance, then resolves locator into a bundle,
// starts it and attaches it to the surface. Collaborator errors are
// returned unchanged; on failure the controller is left Idle with the
// overlay shown.
func (c *Controller) Run(ctx context.Context, locator string) (Instance, error) {
	ctx, span := c.tracer.Start(ctx, "session.Run", trace.WithAttributes(
		attribute.String("jsdos.root", c.root),
		attribute.String("jsdos.locator", locator),
	))
	defer span.End()

	if err := c.acquireTurn(ctx); err != nil {
		return nil, err
	}
	defer c.releaseTurn()

	if err := c.stop(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	ev := &RunEvent{Root: c.root, Locator: locator}
	c.hooks.runStart(ctx, ev)
	started := time.Now()

	c.surface.ShowLoadingOverlay()
	ci, err := c.start(ctx, ev)
	ev.Duration = time.Since(started)
	if err != nil {
		ev.Err = err
		c.fail(ctx, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.hooks.runFailed(ctx, ev)
		return nil, err
	}

	span.SetAttributes(attribute.String("jsdos.bundle", ev.BundleID))
	c.hooks.runReady(ctx, ev)
	return ci, nil
}

func (c *Controller) start(ctx context.Context, ev *RunEvent) (Instance, error) {
	b, err := c.toolkit.ResolveBundle(ctx, ev.Locator)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, ErrNilBundle
	}
	ev.BundleID = b.ID

	// The start outlives ctx so an abandoned start can still be awaited
	// and terminated by a later Stop.
	p := startPending(context.WithoutCancel(ctx), c.engine, b)
	c.setSlot(slot{phase: PhaseStarting, pending: p, bundle: b})

	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	ci, err := p.result()
	if err != nil {
		return nil, err
	}

	cfg, err := ci.Config(ctx)
	if err != nil {
		return nil, err
	}

	c.toolkit.AttachVideo(c.surface, ci)
	c.toolkit.AttachAudio(ci)
	c.toolkit.AttachKeyboard(c.surface, ci)
	c.toolkit.AttachGestureControls(c.surface, ci, cfg.Gestures())

	c.mu.Lock()
	c.slot.phase = PhaseRunning
	c.mu.Unlock()

	c.surface.HideLoadingOverlay()
	c.logger.Info("session running", "root", c.root, "locator", ev.Locator, "bundle", b.ID)
	return ci, nil
}

// fail resets the controller to Idle after a failed Run. A start that has
// not settled yet stays in the slot for the next Stop or Run.
func (c *Controller) fail(ctx context.Context, cause error) {
	c.logger.Warn("session run failed", "root", c.root, "err", cause)
	if n, ok := c.surface.(ErrorNotifier); ok {
		n.NotifyError(cause)
	}

	c.mu.Lock()
	s := c.slot
	if s.pending == nil || !s.pending.settled() {
		c.mu.Unlock()
		return
	}
	c.slot = slot{}
	c.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	terminated, err := c.teardown(ctx, s)
	if err != nil {
		c.logger.Warn("exit after failed run", "root", c.root, "err", err)
	}
	c.hooks.stop(ctx, &StopEvent{Root: c.root, Terminated: terminated, Err: err})
}

// Stop shows the loading overlay and terminates the current instance,
// waiting for it to finish starting if necessary. Stop on an idle
// controller only shows the overlay.
func (c *Controller) Stop(ctx context.Context) error {
	ctx, span := c.tracer.Start(ctx, "session.Stop", trace.WithAttributes(
		attribute.String("jsdos.root", c.root),
	))
	defer span.End()

	if err := c.acquireTurn(ctx); err != nil {
		return err
	}
	defer c.releaseTurn()

	if err := c.stop(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// stop is Stop without the turn. The caller holds the turn.
func (c *Controller) stop(ctx context.Context) error {
	c.surface.ShowLoadingOverlay()

	s := c.currentSlot()
	if s.pending == nil {
		return nil
	}

	if err := s.pending.wait(ctx); err != nil {
		return err
	}
	c.setSlot(slot{})

	terminated, err := c.teardown(ctx, s)
	c.hooks.stop(ctx, &StopEvent{Root: c.root, Terminated: terminated, Err: err})
	if terminated {
		c.logger.Info("session stopped", "root", c.root, "err", err)
	}
	return err
}

// teardown exits the instance of a settled slot and releases its bundle.
func (c *Controller) teardown(ctx context.Context, s slot) (bool, error) {
	ci, startErr := s.pending.result()

	var err error
	if startErr == nil {
		err = ci.Exit(ctx)
	} else {
		c.logger.Debug("discarding failed start", "root", c.root, "err", startErr)
	}

	if s.bundle != nil {
		if cerr := s.bundle.Close(); cerr != nil {
			c.logger.Warn("release bundle", "root", c.root, "bundle", s.bundle.ID, "err", cerr)
		}
	}
	return startErr == nil, err
}
