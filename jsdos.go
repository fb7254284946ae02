// Package jsdos defines the ABI between the host and a DOS emulator engine
// compiled to WebAssembly.
//
// The engine is a command-model WASM: the host instantiates it and calls
// _start, which runs the emulator main loop until the host cancels it.
// Video, audio, console output and keyboard input cross the boundary
// through the host functions listed below, all imported from HostModule.
package jsdos

import "bytes"

// EngineWASMFilename is the conventional filename of the engine binary.
const EngineWASMFilename = "wdosbox.wasm"

// HostModule is the import module name the engine resolves host functions from.
const HostModule = "env"

// Engine exports.
const (
	// ExportStart runs the emulator main loop. Blocks until exit.
	// Signature: _start() -> void
	ExportStart = "_start"

	// ExportMemory is the engine linear memory.
	ExportMemory = "memory"
)

// Video imports.
const (
	// ImportSetFrameSize announces the framebuffer dimensions.
	// Signature: client_set_frame_size(width: i32, height: i32) -> void
	ImportSetFrameSize = "client_set_frame_size"

	// ImportOpenFrame starts a frame update.
	// Signature: client_open_frame() -> void
	ImportOpenFrame = "client_open_frame"

	// ImportUpdateFrameLines copies count RGBA rows starting at line y.
	// Signature: client_update_frame_lines(y: i32, count: i32, rgba: i32) -> void
	ImportUpdateFrameLines = "client_update_frame_lines"

	// ImportCloseFrame completes a frame update.
	// Signature: client_close_frame() -> void
	ImportCloseFrame = "client_close_frame"
)

// Audio imports.
const (
	// ImportSoundInit announces the mono sample rate.
	// Signature: client_sound_init(rate: i32) -> void
	ImportSoundInit = "client_sound_init"

	// ImportSoundPush delivers float32 samples.
	// Signature: client_sound_push(samples: i32, count: i32) -> void
	ImportSoundPush = "client_sound_push"
)

// Console and input imports.
const (
	// ImportStdout forwards emulator log output.
	// Signature: client_stdout(data: i32, len: i32) -> void
	ImportStdout = "client_stdout"

	// ImportPopKeyEvent dequeues one pending key event.
	// Writes keyCode (u32) and pressed (u32) at ptr.
	// Signature: client_pop_key_event(ptr: i32) -> i32
	// Returns: 1 if an event was written, 0 if the queue is empty.
	ImportPopKeyEvent = "client_pop_key_event"
)

// Bundle layout.
const (
	// BundleConfigDir holds the engine and presentation configuration.
	BundleConfigDir = ".jsdos"

	// BundleDosboxConf is the emulator configuration passed via -conf.
	BundleDosboxConf = ".jsdos/dosbox.conf"

	// BundleJSONConf is the presentation configuration (gestures, output).
	BundleJSONConf = ".jsdos/jsdos.json"
)

// wasmMagic is the WebAssembly binary preamble: \0asm.
var wasmMagic = []byte{0x00, 0x61, 0x73, 0x6d}

// IsWASM reports whether b starts with the WebAssembly magic number.
func IsWASM(b []byte) bool {
	return bytes.HasPrefix(b, wasmMagic)
}
