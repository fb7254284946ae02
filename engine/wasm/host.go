package wasm

import (
	"context"
	"encoding/binary"
	"math"

	jsdos "github.com/aperturerobotics/go-jsdos"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// instanceStateKey is the context key for the per-instance host state.
type instanceStateKey struct{}

// withInstanceState returns a context carrying state for host functions.
func withInstanceState(ctx context.Context, state *instanceState) context.Context {
	return context.WithValue(ctx, instanceStateKey{}, state)
}

func stateFrom(ctx context.Context) *instanceState {
	state, _ := ctx.Value(instanceStateKey{}).(*instanceState)
	return state
}

// instantiateHost installs the engine imports as the host module.
func instantiateHost(ctx context.Context, r wazero.Runtime) error {
	_, err := r.NewHostModuleBuilder(jsdos.HostModule).
		NewFunctionBuilder().
		WithFunc(setFrameSizeHost).
		Export(jsdos.ImportSetFrameSize).
		NewFunctionBuilder().
		WithFunc(openFrameHost).
		Export(jsdos.ImportOpenFrame).
		NewFunctionBuilder().
		WithFunc(updateFrameLinesHost).
		Export(jsdos.ImportUpdateFrameLines).
		NewFunctionBuilder().
		WithFunc(closeFrameHost).
		Export(jsdos.ImportCloseFrame).
		NewFunctionBuilder().
		WithFunc(soundInitHost).
		Export(jsdos.ImportSoundInit).
		NewFunctionBuilder().
		WithFunc(soundPushHost).
		Export(jsdos.ImportSoundPush).
		NewFunctionBuilder().
		WithFunc(stdoutHost).
		Export(jsdos.ImportStdout).
		NewFunctionBuilder().
		WithFunc(popKeyEventHost).
		Export(jsdos.ImportPopKeyEvent).
		Instantiate(ctx)
	return err
}

func setFrameSizeHost(ctx context.Context, mod api.Module, width, height uint32) {
	if s := stateFrom(ctx); s != nil {
		s.setFrameSize(int(width), int(height))
	}
}

func openFrameHost(ctx context.Context, mod api.Module) {
	if s := stateFrom(ctx); s != nil {
		s.openFrame()
	}
}

// updateFrameLinesHost copies count RGBA rows at rgbaPtr into line y.
func updateFrameLinesHost(ctx context.Context, mod api.Module, y, count, rgbaPtr uint32) {
	s := stateFrom(ctx)
	if s == nil {
		return
	}
	width, _ := s.frameSize()
	view, ok := mod.Memory().Read(rgbaPtr, count*uint32(width)*4)
	if !ok {
		s.logger.Warn("frame lines out of range", "y", y, "count", count)
		return
	}
	s.updateLines(int(y), int(count), view)
}

func closeFrameHost(ctx context.Context, mod api.Module) {
	if s := stateFrom(ctx); s != nil {
		s.closeFrame()
	}
}

func soundInitHost(ctx context.Context, mod api.Module, rate uint32) {
	if s := stateFrom(ctx); s != nil {
		s.setSoundRate(int(rate))
	}
}

// soundPushHost reads count little-endian float32 samples at ptr.
func soundPushHost(ctx context.Context, mod api.Module, ptr, count uint32) {
	s := stateFrom(ctx)
	if s == nil {
		return
	}
	view, ok := mod.Memory().Read(ptr, count*4)
	if !ok {
		s.logger.Warn("sound samples out of range", "count", count)
		return
	}
	samples := make([]float32, count)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(view[i*4:]))
	}
	s.pushSound(samples)
}

func stdoutHost(ctx context.Context, mod api.Module, ptr, length uint32) {
	s := stateFrom(ctx)
	if s == nil {
		return
	}
	if view, ok := mod.Memory().Read(ptr, length); ok {
		s.logger.Debug("engine output", "text", string(view))
	}
}

// popKeyEventHost writes the next key event (code, pressed) at ptr.
func popKeyEventHost(ctx context.Context, mod api.Module, ptr uint32) int32 {
	s := stateFrom(ctx)
	if s == nil {
		return 0
	}
	ev, ok := s.popKey()
	if !ok {
		return 0
	}
	var pressed uint32
	if ev.pressed {
		pressed = 1
	}
	mem := mod.Memory()
	if !mem.WriteUint32Le(ptr, uint32(ev.code)) || !mem.WriteUint32Le(ptr+4, pressed) {
		return 0
	}
	return 1
}
