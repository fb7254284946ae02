package session

import (
	"context"
	"time"
)

// RunEvent describes one Run call.
type RunEvent struct {
	Root     string
	Locator  string
	BundleID string
	// Duration is set for OnRunReady and OnRunFailed.
	Duration time.Duration
	// Err is set for OnRunFailed.
	Err error
}

// StopEvent describes a teardown of the current instance.
type StopEvent struct {
	Root string
	// Terminated is false when the discarded start had failed.
	Terminated bool
	Err        error
}

// Hooks are optional callbacks invoked on session lifecycle events.
// They run synchronously on the calling goroutine.
type Hooks struct {
	OnRunStart  func(context.Context, *RunEvent)
	OnRunReady  func(context.Context, *RunEvent)
	OnRunFailed func(context.Context, *RunEvent)
	OnStop      func(context.Context, *StopEvent)
}

// Merge returns hooks that call h first and then other.
func (h Hooks) Merge(other Hooks) Hooks {
	return Hooks{
		OnRunStart:  chainRun(h.OnRunStart, other.OnRunStart),
		OnRunReady:  chainRun(h.OnRunReady, other.OnRunReady),
		OnRunFailed: chainRun(h.OnRunFailed, other.OnRunFailed),
		OnStop:      chainStop(h.OnStop, other.OnStop),
	}
}

func chainRun(a, b func(context.Context, *RunEvent)) func(context.Context, *RunEvent) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx context.Context, e *RunEvent) {
		a(ctx, e)
		b(ctx, e)
	}
}

func chainStop(a, b func(context.Context, *StopEvent)) func(context.Context, *StopEvent) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx context.Context, e *StopEvent) {
		a(ctx, e)
		b(ctx, e)
	}
}

func (h Hooks) runStart(ctx context.Context, e *RunEvent) {
	if h.OnRunStart != nil {
		h.OnRunStart(ctx, e)
	}
}

func (h Hooks) runReady(ctx context.Context, e *RunEvent) {
	if h.OnRunReady != nil {
		h.OnRunReady(ctx, e)
	}
}

func (h Hooks) runFailed(ctx context.Context, e *RunEvent) {
	if h.OnRunFailed != nil {
		h.OnRunFailed(ctx, e)
	}
}

func (h Hooks) stop(ctx context.Context, e *StopEvent) {
	if h.OnStop != nil {
		h.OnStop(ctx, e)
	}
}
