package headless

import (
	"fmt"
	"image"
	"image/png"
	"math"
	"os"
	"sync"

	"github.com/aperturerobotics/go-jsdos/engine"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const wavBitDepth = 16

// screen composes frame bands into a full framebuffer.
type screen struct {
	mu     sync.Mutex
	img    *image.RGBA
	frames int
}

func (s *screen) draw(f engine.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.img == nil || s.img.Rect.Dx() != f.Width || s.img.Rect.Dy() != f.Height {
		s.img = image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	}
	if f.Y < 0 || f.Y+f.Rows > f.Height {
		return
	}
	off := s.img.PixOffset(0, f.Y)
	n := copy(s.img.Pix[off:], f.Pix[:min(len(f.Pix), f.Rows*f.Width*4)])
	// The engine leaves alpha unset.
	for i := off + 3; i < off+n; i += 4 {
		s.img.Pix[i] = 0xff
	}
	s.frames++
}

func (s *screen) snapshot() *image.RGBA {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.img == nil {
		return nil
	}
	out := image.NewRGBA(s.img.Rect)
	copy(out.Pix, s.img.Pix)
	return out
}

func (s *screen) writePNG(path string) (rerr error) {
	img := s.snapshot()
	if img == nil {
		return nil
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("headless: %w", err)
	}
	defer func() {
		if err := f.Close(); err != nil && rerr == nil {
			rerr = fmt.Errorf("headless: %w", err)
		}
	}()
	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("headless: encode png: %w", err)
	}
	return nil
}

// soundRecorder buffers mono sound in memory until the instance exits.
type soundRecorder struct {
	mu      sync.Mutex
	rate    int
	samples []int
}

func (r *soundRecorder) push(chunk engine.Sound) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if chunk.Rate > 0 {
		r.rate = chunk.Rate
	}
	for _, v := range chunk.Samples {
		if math.IsNaN(float64(v)) {
			v = 0
		}
		v = max(-1, min(1, v))
		r.samples = append(r.samples, int(math.Round(float64(v)*math.MaxInt16)))
	}
}

func (r *soundRecorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.samples)
}

func (r *soundRecorder) writeWAV(path string) (rerr error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rate <= 0 {
		return fmt.Errorf("headless: sound without sample rate")
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("headless: %w", err)
	}
	defer func() {
		if err := f.Close(); err != nil && rerr == nil {
			rerr = fmt.Errorf("headless: %w", err)
		}
	}()

	enc := wav.NewEncoder(f, r.rate, wavBitDepth, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: r.rate},
		Data:           r.samples,
		SourceBitDepth: wavBitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("headless: encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("headless: encode wav: %w", err)
	}
	return nil
}

func (s *screen) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}
