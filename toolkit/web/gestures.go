package web

import (
	"fmt"
	"strconv"

	"github.com/aperturerobotics/go-jsdos/bundle"
	"github.com/aperturerobotics/go-jsdos/engine"
)

// GestureBinding maps a touch control event to a key.
// Key is a key name (see engine.NamedKeyCodes) or a numeric engine code.
type GestureBinding struct {
	Event string `json:"event"`
	Key   string `json:"key"`
}

// defaultBindings are used when the gestures setting is just true.
var defaultBindings = map[string]int{
	"up":    engine.KeyUp,
	"down":  engine.KeyDown,
	"left":  engine.KeyLeft,
	"right": engine.KeyRight,
}

// gestureBindings interprets the gestures setting. Absent or false
// disables gestures, true enables arrow bindings, and a list of
// GestureBinding sets explicit ones.
func gestureBindings(settings any) (map[string]int, error) {
	switch v := settings.(type) {
	case nil:
		return nil, nil
	case bool:
		if !v {
			return nil, nil
		}
		out := make(map[string]int, len(defaultBindings))
		for event, code := range defaultBindings {
			out[event] = code
		}
		return out, nil
	}

	var list []GestureBinding
	if err := bundle.DecodeValue(settings, &list); err != nil {
		return nil, fmt.Errorf("decode gestures: %w", err)
	}
	out := make(map[string]int, len(list))
	for _, b := range list {
		code, ok := engine.KeyByName(b.Key)
		if !ok {
			n, err := strconv.Atoi(b.Key)
			if err != nil {
				return nil, fmt.Errorf("gesture %q: unknown key %q", b.Event, b.Key)
			}
			code = n
		}
		out[b.Event] = code
	}
	return out, nil
}
