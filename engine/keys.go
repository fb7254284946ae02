package engine

import (
	"strconv"
	"strings"
)

// Engine key codes. The engine uses GLFW numbering.
const (
	KeyNone      = 0
	KeySpace     = 32
	KeyEsc       = 256
	KeyEnter     = 257
	KeyTab       = 258
	KeyBackspace = 259
	KeyInsert    = 260
	KeyDelete    = 261
	KeyRight     = 262
	KeyLeft      = 263
	KeyDown      = 264
	KeyUp        = 265
	KeyPageUp    = 266
	KeyPageDown  = 267
	KeyHome      = 268
	KeyEnd       = 269
	KeyF1        = 290
	KeyLeftShift = 340
	KeyLeftCtrl  = 341
	KeyLeftAlt   = 342
)

// NamedKeyCodes maps lower-case key names to engine key codes.
var NamedKeyCodes = map[string]int{
	"space":     KeySpace,
	"esc":       KeyEsc,
	"enter":     KeyEnter,
	"tab":       KeyTab,
	"backspace": KeyBackspace,
	"insert":    KeyInsert,
	"delete":    KeyDelete,
	"right":     KeyRight,
	"left":      KeyLeft,
	"down":      KeyDown,
	"up":        KeyUp,
	"pageup":    KeyPageUp,
	"pagedown":  KeyPageDown,
	"home":      KeyHome,
	"end":       KeyEnd,
	"shift":     KeyLeftShift,
	"ctrl":      KeyLeftCtrl,
	"alt":       KeyLeftAlt,
}

func init() {
	for c := 'a'; c <= 'z'; c++ {
		NamedKeyCodes[string(c)] = int(c - 'a' + 'A')
	}
	for c := '0'; c <= '9'; c++ {
		NamedKeyCodes[string(c)] = int(c)
	}
	for i := 0; i < 12; i++ {
		NamedKeyCodes["f"+strconv.Itoa(i+1)] = KeyF1 + i
	}
}

// domKeyCodes maps browser KeyboardEvent.keyCode values that differ from
// their engine code.
var domKeyCodes = map[int]int{
	8:  KeyBackspace,
	9:  KeyTab,
	13: KeyEnter,
	16: KeyLeftShift,
	17: KeyLeftCtrl,
	18: KeyLeftAlt,
	27: KeyEsc,
	33: KeyPageUp,
	34: KeyPageDown,
	35: KeyEnd,
	36: KeyHome,
	37: KeyLeft,
	38: KeyUp,
	39: KeyRight,
	40: KeyDown,
	45: KeyInsert,
	46: KeyDelete,
}

// KeyByName returns the engine code for a key name, case-insensitively.
func KeyByName(name string) (int, bool) {
	code, ok := NamedKeyCodes[strings.ToLower(name)]
	return code, ok
}

// DOMToKeyCode maps a browser keyCode to an engine key code.
// Returns KeyNone for unmapped keys.
func DOMToKeyCode(dom int) int {
	if code, ok := domKeyCodes[dom]; ok {
		return code
	}
	switch {
	case dom == 32, dom >= 48 && dom <= 57, dom >= 65 && dom <= 90:
		return dom
	case dom >= 112 && dom <= 123:
		return KeyF1 + dom - 112
	}
	return KeyNone
}

// KeyCodeToDOM is the inverse of DOMToKeyCode.
func KeyCodeToDOM(code int) int {
	for dom, c := range domKeyCodes {
		if c == code {
			return dom
		}
	}
	switch {
	case code == KeySpace, code >= 48 && code <= 57, code >= 65 && code <= 90:
		return code
	case code >= KeyF1 && code < KeyF1+12:
		return 112 + code - KeyF1
	}
	return 0
}
