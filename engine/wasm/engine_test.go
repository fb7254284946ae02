package wasm

import (
	"context"
	"errors"
	"testing"
	"testing/fstest"
	"time"

	"github.com/aperturerobotics/go-jsdos/bundle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var wasmHeader = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

// frameSizeEngine exports memory and a _start that calls
// client_set_frame_size(320, 200) and returns.
var frameSizeEngine = concat(
	wasmHeader,
	// type: (i32, i32) -> (), () -> ()
	[]byte{0x01, 0x09, 0x02, 0x60, 0x02, 0x7f, 0x7f, 0x00, 0x60, 0x00, 0x00},
	// import env.client_set_frame_size
	[]byte{0x02, 0x1d, 0x01, 0x03, 'e', 'n', 'v', 0x15},
	[]byte("client_set_frame_size"),
	[]byte{0x00, 0x00},
	// func 1: type 1
	[]byte{0x03, 0x02, 0x01, 0x01},
	// memory: min 1 page
	[]byte{0x05, 0x03, 0x01, 0x00, 0x01},
	// exports: memory, _start
	[]byte{0x07, 0x13, 0x02, 0x06, 'm', 'e', 'm', 'o', 'r', 'y', 0x02, 0x00, 0x06, '_', 's', 't', 'a', 'r', 't', 0x00, 0x01},
	// code: i32.const 320; i32.const 200; call 0
	[]byte{0x0a, 0x0c, 0x01, 0x0a, 0x00, 0x41, 0xc0, 0x02, 0x41, 0xc8, 0x01, 0x10, 0x00, 0x0b},
)

// loopEngine exports memory and a _start that never returns.
var loopEngine = concat(
	wasmHeader,
	[]byte{0x01, 0x04, 0x01, 0x60, 0x00, 0x00},
	[]byte{0x03, 0x02, 0x01, 0x00},
	[]byte{0x05, 0x03, 0x01, 0x00, 0x01},
	[]byte{0x07, 0x13, 0x02, 0x06, 'm', 'e', 'm', 'o', 'r', 'y', 0x02, 0x00, 0x06, '_', 's', 't', 'a', 'r', 't', 0x00, 0x00},
	// code: loop br 0 end
	[]byte{0x0a, 0x09, 0x01, 0x07, 0x00, 0x03, 0x40, 0x0c, 0x00, 0x0b, 0x0b},
)

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func testBundle(t *testing.T) *bundle.Bundle {
	t.Helper()
	b, err := bundle.New("mem", "test", fstest.MapFS{
		".jsdos/jsdos.json":  &fstest.MapFile{Data: []byte(`{"gestures":[{"event":"up","key":"up"}]}`)},
		".jsdos/dosbox.conf": &fstest.MapFile{Data: []byte("[autoexec]\n")},
	})
	require.NoError(t, err)
	return b
}

func waitDone(t *testing.T, ci *Instance) {
	t.Helper()
	select {
	case <-ci.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not finish")
	}
}

func TestFactory_StartReportsFrameSize(t *testing.T) {
	ctx := context.Background()
	r := NewRuntime(ctx)
	defer r.Close(ctx)

	f, err := NewFactory(ctx, r, frameSizeEngine)
	require.NoError(t, err)
	defer f.Close(ctx)

	ci, err := f.Start(ctx, testBundle(t))
	require.NoError(t, err)
	waitDone(t, ci)

	require.NoError(t, ci.Err())
	w, h := ci.FrameSize()
	assert.Equal(t, 320, w)
	assert.Equal(t, 200, h)

	cfg, err := ci.Config(ctx)
	require.NoError(t, err)
	assert.NotNil(t, cfg.Gestures())

	require.NoError(t, ci.Exit(ctx))
	_, open := <-ci.Frames()
	assert.False(t, open)
	_, open = <-ci.Sound()
	assert.False(t, open)

	// Keys after exit are dropped silently.
	ci.SendKey(65, true)
}

func TestFactory_ExitInterruptsRunningEngine(t *testing.T) {
	ctx := context.Background()
	r := NewRuntime(ctx)
	defer r.Close(ctx)

	f, err := NewFactory(ctx, r, loopEngine)
	require.NoError(t, err)

	ci, err := f.Start(ctx, testBundle(t))
	require.NoError(t, err)

	select {
	case <-ci.Done():
		t.Fatal("looping engine finished on its own")
	case <-time.After(20 * time.Millisecond):
	}

	exitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, ci.Exit(exitCtx))
	require.NoError(t, ci.Exit(exitCtx))
	waitDone(t, ci)
}

func TestFactory_SharedRuntime(t *testing.T) {
	ctx := context.Background()
	r := NewRuntime(ctx)
	defer r.Close(ctx)

	f1, err := NewFactory(ctx, r, frameSizeEngine)
	require.NoError(t, err)
	f2, err := NewFactory(ctx, r, loopEngine)
	require.NoError(t, err)

	a, err := f1.Start(ctx, testBundle(t))
	require.NoError(t, err)
	b, err := f2.Start(ctx, testBundle(t))
	require.NoError(t, err)
	assert.NotEqual(t, a.ID(), b.ID())

	require.NoError(t, a.Exit(ctx))
	require.NoError(t, b.Exit(ctx))
}

func TestFactory_EngineAdapter(t *testing.T) {
	ctx := context.Background()
	r := NewRuntime(ctx)
	defer r.Close(ctx)

	f, err := NewFactory(ctx, r, frameSizeEngine)
	require.NoError(t, err)

	ci, err := f.Engine().Start(ctx, testBundle(t))
	require.NoError(t, err)
	require.NoError(t, ci.Exit(ctx))
}

func TestNewFactory_Rejects(t *testing.T) {
	ctx := context.Background()
	r := NewRuntime(ctx)
	defer r.Close(ctx)

	_, err := NewFactory(ctx, r, []byte("MZ not wasm"))
	assert.True(t, errors.Is(err, ErrNotWASM))

	_, err = NewFactory(ctx, r, wasmHeader)
	assert.True(t, errors.Is(err, ErrMissingExport))
}

func TestExitError(t *testing.T) {
	assert.NoError(t, exitError(nil))
	boom := errors.New("trap")
	assert.Same(t, boom, exitError(boom))
}
