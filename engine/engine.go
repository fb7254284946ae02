// Package engine defines what a running emulator instance can offer to a
// presentation toolkit beyond the session contract: video frames, sound
// and a keyboard sink. Toolkits discover these with type assertions so
// engines are free to implement any subset.
package engine

// Frame is a band of updated framebuffer rows.
type Frame struct {
	// Width and Height are the full framebuffer dimensions.
	Width, Height int
	// Y is the first updated row and Rows the number of rows in Pix.
	Y, Rows int
	// Pix holds Rows*Width RGBA pixels.
	Pix []byte
}

// Sound is a chunk of mono float32 samples.
type Sound struct {
	Rate    int
	Samples []float32
}

// VideoSource is implemented by instances that emit frames.
// The channel is closed when the instance exits.
type VideoSource interface {
	Frames() <-chan Frame
}

// AudioSource is implemented by instances that emit sound.
// The channel is closed when the instance exits.
type AudioSource interface {
	Sound() <-chan Sound
}

// KeySink is implemented by instances that accept keyboard input.
// Codes are engine key codes (see keys.go).
type KeySink interface {
	SendKey(code int, pressed bool)
}
