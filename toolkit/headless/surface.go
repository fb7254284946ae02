package headless

import (
	"image"
	"log/slog"
	"sync"

	"github.com/aperturerobotics/go-jsdos/engine"
)

// Surface is a display-less page region.
type Surface struct {
	root   string
	logger *slog.Logger
	screen *screen

	mu       sync.Mutex
	overlay  bool
	keys     engine.KeySink
	gestures any
	lastErr  error
}

func newSurface(root string, logger *slog.Logger) *Surface {
	return &Surface{
		root:   root,
		logger: logger.With("root", root),
		screen: &screen{},
	}
}

// Root returns the region name.
func (s *Surface) Root() string {
	return s.root
}

// ShowLoadingOverlay implements session.Surface.
func (s *Surface) ShowLoadingOverlay() {
	s.setOverlay(true)
}

// HideLoadingOverlay implements session.Surface.
func (s *Surface) HideLoadingOverlay() {
	s.setOverlay(false)
}

func (s *Surface) setOverlay(visible bool) {
	s.mu.Lock()
	changed := s.overlay != visible
	s.overlay = visible
	s.mu.Unlock()
	if changed {
		s.logger.Debug("loading overlay", "visible", visible)
	}
}

// OverlayVisible reports the overlay state.
func (s *Surface) OverlayVisible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overlay
}

// NotifyError implements session.ErrorNotifier.
func (s *Surface) NotifyError(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
	s.logger.Error("run failed", "err", err)
}

// LastError returns the most recent run failure.
func (s *Surface) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Surface) setKeySink(keys engine.KeySink) {
	s.mu.Lock()
	s.keys = keys
	s.mu.Unlock()
}

// SendKey forwards a key to the attached instance. It reports false when
// no keyboard is attached.
func (s *Surface) SendKey(code int, pressed bool) bool {
	s.mu.Lock()
	keys := s.keys
	s.mu.Unlock()
	if keys == nil {
		return false
	}
	keys.SendKey(code, pressed)
	return true
}

func (s *Surface) setGestures(settings any) {
	s.mu.Lock()
	s.gestures = settings
	s.mu.Unlock()
	if settings != nil {
		s.logger.Debug("gestures ignored without touch input", "gestures", settings)
	}
}

// Gestures returns the gestures setting of the attached instance.
func (s *Surface) Gestures() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gestures
}

// Screen returns a copy of the composed screen, or nil before the first
// frame.
func (s *Surface) Screen() *image.RGBA {
	return s.screen.snapshot()
}

// FrameCount returns the number of frames drawn so far.
func (s *Surface) FrameCount() int {
	return s.screen.count()
}
