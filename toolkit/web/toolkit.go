// Package web is a presentation toolkit whose surfaces are browser pages.
// Pages connect over a websocket to receive the loading overlay state,
// video frames, sound and gesture settings, and to send key and gesture
// input back. NewHandler serves the page, the websocket and a small JSON
// API for creating sessions and calling run and stop.
package web

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aperturerobotics/go-jsdos/bundle"
	"github.com/aperturerobotics/go-jsdos/engine"
	"github.com/aperturerobotics/go-jsdos/internal/logging"
	"github.com/aperturerobotics/go-jsdos/session"
	"github.com/gorilla/websocket"
)

// Toolkit implements session.Toolkit for browser surfaces.
type Toolkit struct {
	resolver *bundle.Resolver
	logger   *slog.Logger

	mu       sync.Mutex
	surfaces map[string]*Surface
	// bound holds surfaces by instance from AttachVideo until AttachAudio.
	bound map[session.Instance]*Surface
}

var _ session.Toolkit = (*Toolkit)(nil)

// ToolkitOption configures the Toolkit.
type ToolkitOption func(*Toolkit)

// WithLogger configures a logger for the Toolkit and its surfaces.
func WithLogger(logger *slog.Logger) ToolkitOption {
	return func(t *Toolkit) {
		t.logger = logger
	}
}

// NewToolkit creates a Toolkit resolving bundles with resolver.
func NewToolkit(resolver *bundle.Resolver, opts ...ToolkitOption) *Toolkit {
	t := &Toolkit{
		resolver: resolver,
		logger:   logging.NewNop(),
		surfaces: make(map[string]*Surface),
		bound:    make(map[session.Instance]*Surface),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// CreateSurface implements session.Toolkit.
func (t *Toolkit) CreateSurface(root string) session.Surface {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.surfaces[root]
	if !ok {
		s = newSurface(root, t.logger)
		t.surfaces[root] = s
	}
	return s
}

// Surface returns the surface for root if it was created.
func (t *Toolkit) Surface(root string) (*Surface, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.surfaces[root]
	return s, ok
}

// ResolveBundle implements session.Toolkit.
func (t *Toolkit) ResolveBundle(ctx context.Context, locator string) (*bundle.Bundle, error) {
	return t.resolver.Resolve(ctx, locator)
}

func (t *Toolkit) surfaceOf(s session.Surface) *Surface {
	surf, ok := s.(*Surface)
	if !ok {
		t.logger.Warn("foreign surface", "type", fmt.Sprintf("%T", s))
		return nil
	}
	return surf
}

// AttachVideo streams the instance frames to the surface clients and
// binds the instance to the surface for AttachAudio.
func (t *Toolkit) AttachVideo(s session.Surface, ci session.Instance) {
	surf := t.surfaceOf(s)
	if surf == nil {
		return
	}
	surf.bind(ci)
	t.mu.Lock()
	t.bound[ci] = surf
	t.mu.Unlock()

	src, ok := ci.(engine.VideoSource)
	if !ok {
		surf.logger.Warn("instance has no video output")
		return
	}

	go func() {
		for f := range src.Frames() {
			msg, err := encodeFrame(f)
			if err != nil {
				surf.logger.Warn("dropping frame", "err", err)
				continue
			}
			surf.broadcast(websocket.BinaryMessage, msg)
		}
		surf.release(ci)
	}()
}

// AttachAudio streams the instance sound to the surface its video is
// attached to.
func (t *Toolkit) AttachAudio(ci session.Instance) {
	t.mu.Lock()
	surf := t.bound[ci]
	delete(t.bound, ci)
	t.mu.Unlock()
	if surf == nil {
		t.logger.Warn("audio attached before video, sound dropped")
		return
	}
	src, ok := ci.(engine.AudioSource)
	if !ok {
		surf.logger.Warn("instance has no audio output")
		return
	}

	go func() {
		for chunk := range src.Sound() {
			surf.broadcast(websocket.BinaryMessage, encodeSound(chunk))
		}
	}()
}

// AttachKeyboard routes page key events to the instance. It has no effect
// once the instance's frame stream has ended.
func (t *Toolkit) AttachKeyboard(s session.Surface, ci session.Instance) {
	surf := t.surfaceOf(s)
	if surf == nil {
		return
	}
	keys, ok := ci.(engine.KeySink)
	if !ok {
		surf.logger.Warn("instance accepts no keyboard input")
		return
	}
	surf.setKeySink(ci, keys)
}

// AttachGestureControls publishes the gestures setting to the page and
// maps gesture events to keys.
func (t *Toolkit) AttachGestureControls(s session.Surface, ci session.Instance, gestures any) {
	surf := t.surfaceOf(s)
	if surf == nil {
		return
	}
	bindings, err := gestureBindings(gestures)
	if err != nil {
		surf.logger.Warn("ignoring gestures setting", "err", err)
	}
	surf.setGestures(ci, gestures, bindings)
}
