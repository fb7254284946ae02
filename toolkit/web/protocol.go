package web

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	"github.com/aperturerobotics/go-jsdos/engine"
)

// Binary message tags.
const (
	TagFrame byte = 1
	TagSound byte = 2
)

// Control message types.
const (
	TypeOverlay  = "overlay"
	TypeGestures = "gestures"
	TypeError    = "error"
	TypeKey      = "key"
	TypeGesture  = "gesture"
)

// controlMessage is a JSON message sent to the page.
type controlMessage struct {
	Type     string `json:"type"`
	Visible  *bool  `json:"visible,omitempty"`
	Settings any    `json:"settings,omitempty"`
	Message  string `json:"message,omitempty"`
}

// inputMessage is a JSON message received from the page.
type inputMessage struct {
	Type    string `json:"type"`
	Code    int    `json:"code"`
	Event   string `json:"event"`
	Pressed bool   `json:"pressed"`
}

func overlayMessage(visible bool) []byte {
	b, _ := json.Marshal(controlMessage{Type: TypeOverlay, Visible: &visible})
	return b
}

func gesturesMessage(settings any) []byte {
	b, err := json.Marshal(controlMessage{Type: TypeGestures, Settings: settings})
	if err != nil {
		b, _ = json.Marshal(controlMessage{Type: TypeGestures})
	}
	return b
}

func errorMessage(err error) []byte {
	b, _ := json.Marshal(controlMessage{Type: TypeError, Message: err.Error()})
	return b
}

// encodeFrame lays out a frame as tag, width, height, y, rows (u16 LE)
// followed by RGBA rows.
func encodeFrame(f engine.Frame) ([]byte, error) {
	for _, v := range []int{f.Width, f.Height, f.Y, f.Rows} {
		if v < 0 || v > math.MaxUint16 {
			return nil, fmt.Errorf("frame %dx%d rows %d+%d exceeds the wire format", f.Width, f.Height, f.Y, f.Rows)
		}
	}
	out := make([]byte, 9+len(f.Pix))
	out[0] = TagFrame
	binary.LittleEndian.PutUint16(out[1:], uint16(f.Width))
	binary.LittleEndian.PutUint16(out[3:], uint16(f.Height))
	binary.LittleEndian.PutUint16(out[5:], uint16(f.Y))
	binary.LittleEndian.PutUint16(out[7:], uint16(f.Rows))
	copy(out[9:], f.Pix)
	return out, nil
}

// encodeSound lays out sound as tag, rate (u32 LE), float32 LE samples.
func encodeSound(s engine.Sound) []byte {
	out := make([]byte, 5+4*len(s.Samples))
	out[0] = TagSound
	binary.LittleEndian.PutUint32(out[1:], uint32(s.Rate))
	for i, v := range s.Samples {
		binary.LittleEndian.PutUint32(out[5+4*i:], math.Float32bits(v))
	}
	return out
}
