package session

import (
	"context"

	"github.com/aperturerobotics/go-jsdos/bundle"
)

// Surface is the on-page region a session renders into.
type Surface interface {
	ShowLoadingOverlay()
	HideLoadingOverlay()
}

// ErrorNotifier is implemented by surfaces that can display a failed run.
type ErrorNotifier interface {
	NotifyError(err error)
}

// Instance is the command interface of a running emulator.
type Instance interface {
	// Config returns the configuration the instance was started with.
	Config(ctx context.Context) (bundle.Config, error)
	// Exit terminates the instance and waits for it to finish.
	Exit(ctx context.Context) error
}

// EngineFactory starts emulator instances.
type EngineFactory interface {
	Start(ctx context.Context, b *bundle.Bundle) (Instance, error)
}

// EngineFunc adapts a function to EngineFactory.
type EngineFunc func(ctx context.Context, b *bundle.Bundle) (Instance, error)

// Start calls f.
func (f EngineFunc) Start(ctx context.Context, b *bundle.Bundle) (Instance, error) {
	return f(ctx, b)
}

// Toolkit provides surfaces, bundle resolution and the presentation
// subsystems attached to a running instance. Attach calls are
// fire-and-forget.
type Toolkit interface {
	CreateSurface(root string) Surface
	ResolveBundle(ctx context.Context, locator string) (*bundle.Bundle, error)
	AttachVideo(s Surface, ci Instance)
	AttachAudio(ci Instance)
	AttachKeyboard(s Surface, ci Instance)
	AttachGestureControls(s Surface, ci Instance, gestures any)
}
