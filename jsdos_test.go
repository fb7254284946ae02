package jsdos

import "testing"

func TestIsWASM(t *testing.T) {
	if !IsWASM([]byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}) {
		t.Fatal("expected wasm preamble to be detected")
	}
	if IsWASM([]byte("PK\x03\x04")) {
		t.Fatal("zip header detected as wasm")
	}
	if IsWASM(nil) {
		t.Fatal("empty input detected as wasm")
	}
}

func TestImportNamesUnique(t *testing.T) {
	names := []string{
		ImportSetFrameSize,
		ImportOpenFrame,
		ImportUpdateFrameLines,
		ImportCloseFrame,
		ImportSoundInit,
		ImportSoundPush,
		ImportStdout,
		ImportPopKeyEvent,
	}
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if seen[n] {
			t.Fatalf("duplicate import name %q", n)
		}
		seen[n] = true
	}
}
