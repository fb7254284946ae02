// Package headless is a presentation toolkit without a display. Surfaces
// log overlay changes, video is composed into an image written as PNG and
// sound is buffered and written as WAV once the instance exits. It serves
// command line runs and tests.
package headless

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/aperturerobotics/go-jsdos/bundle"
	"github.com/aperturerobotics/go-jsdos/engine"
	"github.com/aperturerobotics/go-jsdos/internal/logging"
	"github.com/aperturerobotics/go-jsdos/session"
)

// Toolkit implements session.Toolkit without a display.
type Toolkit struct {
	resolver *bundle.Resolver
	logger   *slog.Logger
	outDir   string

	mu       sync.Mutex
	surfaces map[string]*Surface
	bound    map[session.Instance]*Surface
	errs     []error

	wg sync.WaitGroup
}

var _ session.Toolkit = (*Toolkit)(nil)

// Option configures the Toolkit.
type Option func(*Toolkit)

// WithLogger configures a logger for the Toolkit and its surfaces.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Toolkit) {
		t.logger = logger
	}
}

// WithOutputDir writes <root>.png and <root>.wav into dir when an
// instance exits. Without it nothing is written.
func WithOutputDir(dir string) Option {
	return func(t *Toolkit) {
		t.outDir = dir
	}
}

// NewToolkit creates a Toolkit resolving bundles with resolver.
func NewToolkit(resolver *bundle.Resolver, opts ...Option) *Toolkit {
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

func (t *Toolkit) outPath(root, ext string) string {
	if t.outDir == "" {
		return ""
	}
	return filepath.Join(t.outDir, root+ext)
}

func (t *Toolkit) record(err error) {
	if err == nil {
		return
	}
	t.mu.Lock()
	t.errs = append(t.errs, err)
	t.mu.Unlock()
}

// AttachVideo composes the instance frames into the surface screen.
func (t *Toolkit) AttachVideo(s session.Surface, ci session.Instance) {
	surf := t.surfaceOf(s)
	if surf == nil {
		return
	}
	t.mu.Lock()
	t.bound[ci] = surf
	t.mu.Unlock()

	src, ok := ci.(engine.VideoSource)
	if !ok {
		surf.logger.Warn("instance has no video output")
		return
	}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		for f := range src.Frames() {
			surf.screen.draw(f)
		}

		if path := t.outPath(surf.root, ".png"); path != "" {
			if err := surf.screen.writePNG(path); err != nil {
				t.record(err)
			} else {
				surf.logger.Info("wrote screen", "path", path)
			}
		}
	}()
}

// AttachAudio records the instance sound for the surface its video is
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

	rec := &soundRecorder{}
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		for chunk := range src.Sound() {
			rec.push(chunk)
		}
		if path := t.outPath(surf.root, ".wav"); path != "" && rec.len() > 0 {
			if err := rec.writeWAV(path); err != nil {
				t.record(err)
			} else {
				surf.logger.Info("wrote sound", "path", path, "samples", rec.len())
			}
		}
	}()
}

// AttachKeyboard lets Surface.SendKey reach the instance.
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
	surf.setKeySink(keys)
}

// AttachGestureControls records the gestures setting on the surface.
func (t *Toolkit) AttachGestureControls(s session.Surface, ci session.Instance, gestures any) {
	surf := t.surfaceOf(s)
	if surf == nil {
		return
	}
	surf.setGestures(gestures)
}

// Wait blocks until every attached instance has exited and its output
// has been written, and returns any write errors.
func (t *Toolkit) Wait() error {
	t.wg.Wait()
	t.mu.Lock()
	defer t.mu.Unlock()
	err := errors.Join(t.errs...)
	t.errs = nil
	return err
}
