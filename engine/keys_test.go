package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDOMToKeyCode(t *testing.T) {
	assert.Equal(t, KeyLeft, DOMToKeyCode(37))
	assert.Equal(t, KeyEnter, DOMToKeyCode(13))
	assert.Equal(t, 'A', rune(DOMToKeyCode(65)))
	assert.Equal(t, '7', rune(DOMToKeyCode(55)))
	assert.Equal(t, KeyF1+11, DOMToKeyCode(123))
	assert.Equal(t, KeyNone, DOMToKeyCode(250))
}

func TestKeyCodeToDOM_RoundTrip(t *testing.T) {
	for _, dom := range []int{8, 13, 27, 32, 37, 38, 39, 40, 48, 65, 90, 112, 123} {
		assert.Equal(t, dom, KeyCodeToDOM(DOMToKeyCode(dom)), "dom %d", dom)
	}
	assert.Equal(t, 0, KeyCodeToDOM(KeyNone))
}

func TestKeyByName(t *testing.T) {
	code, ok := KeyByName("Up")
	assert.True(t, ok)
	assert.Equal(t, KeyUp, code)

	code, ok = KeyByName("f10")
	assert.True(t, ok)
	assert.Equal(t, KeyF1+9, code)

	code, ok = KeyByName("q")
	assert.True(t, ok)
	assert.Equal(t, int('Q'), code)

	_, ok = KeyByName("hyper")
	assert.False(t, ok)
}
