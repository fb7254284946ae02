package wasm

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/aperturerobotics/go-jsdos/engine"
)

type keyEvent struct {
	code    int
	pressed bool
}

// instanceState is the host-side view of one running engine. Frame and
// sound producers are called only from the guest goroutine.
type instanceState struct {
	logger *slog.Logger

	mu      sync.Mutex
	width   int
	height  int
	rate    int
	dropped int

	fb       []byte
	dirtyMin int
	dirtyMax int

	frames chan engine.Frame
	sound  chan engine.Sound
	keys   chan keyEvent
}

func newInstanceState(logger *slog.Logger, depth int) *instanceState {
	return &instanceState{
		logger:   logger,
		dirtyMin: -1,
		frames:   make(chan engine.Frame, depth),
		sound:    make(chan engine.Sound, depth),
		keys:     make(chan keyEvent, 64),
	}
}

// maxFrameDim bounds each framebuffer dimension requested by the guest.
const maxFrameDim = 4096

func (s *instanceState) setFrameSize(width, height int) {
	if width <= 0 || height <= 0 || width > maxFrameDim || height > maxFrameDim {
		s.logger.Warn("ignoring frame size", "width", width, "height", height)
		return
	}
	s.mu.Lock()
	s.width, s.height = width, height
	s.mu.Unlock()

	s.fb = make([]byte, width*height*4)
	s.dirtyMin = -1
	s.logger.Debug("frame size", "width", width, "height", height)
}

func (s *instanceState) frameSize() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width, s.height
}

func (s *instanceState) openFrame() {
	s.dirtyMin, s.dirtyMax = -1, -1
}

func (s *instanceState) updateLines(y, count int, rgba []byte) {
	width, height := s.frameSize()
	if y < 0 || count <= 0 || y+count > height {
		return
	}
	copy(s.fb[y*width*4:(y+count)*width*4], rgba)
	if s.dirtyMin < 0 || y < s.dirtyMin {
		s.dirtyMin = y
	}
	if end := y + count; end > s.dirtyMax {
		s.dirtyMax = end
	}
}

func (s *instanceState) closeFrame() {
	if s.dirtyMin < 0 {
		return
	}
	width, height := s.frameSize()
	pix := make([]byte, (s.dirtyMax-s.dirtyMin)*width*4)
	copy(pix, s.fb[s.dirtyMin*width*4:s.dirtyMax*width*4])

	f := engine.Frame{
		Width:  width,
		Height: height,
		Y:      s.dirtyMin,
		Rows:   s.dirtyMax - s.dirtyMin,
		Pix:    pix,
	}
	select {
	case s.frames <- f:
	default:
		s.drop()
	}
	s.dirtyMin, s.dirtyMax = -1, -1
}

func (s *instanceState) setSoundRate(rate int) {
	s.mu.Lock()
	s.rate = rate
	s.mu.Unlock()
}

func (s *instanceState) pushSound(samples []float32) {
	s.mu.Lock()
	rate := s.rate
	s.mu.Unlock()

	select {
	case s.sound <- engine.Sound{Rate: rate, Samples: samples}:
	default:
		s.drop()
	}
}

func (s *instanceState) drop() {
	s.mu.Lock()
	s.dropped++
	s.mu.Unlock()
}

func (s *instanceState) droppedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

func (s *instanceState) sendKey(code int, pressed bool) {
	select {
	case s.keys <- keyEvent{code: code, pressed: pressed}:
	default:
		s.logger.Warn("key queue full", "code", code)
	}
}

func (s *instanceState) popKey() (keyEvent, bool) {
	select {
	case ev := <-s.keys:
		return ev, true
	default:
		return keyEvent{}, false
	}
}

// close ends the frame and sound streams. Called once the guest returned.
func (s *instanceState) close() {
	close(s.frames)
	close(s.sound)
}

// logWriter forwards guest stdio to the logger line by line.
type logWriter struct {
	logger *slog.Logger
	stream string
}

func (w *logWriter) Write(p []byte) (int, error) {
	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		if line != "" {
			w.logger.Debug("engine "+w.stream, "line", line)
		}
	}
	return len(p), nil
}
