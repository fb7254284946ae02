package jsdos

// Version information.
const (
	// Version is the go-jsdos release.
	Version = "0.3.0"

	// ProtocolVersion is the engine ABI revision in jsdos.go.
	ProtocolVersion = 7

	// SourceURL is the repository URL.
	SourceURL = "https://github.com/aperturerobotics/go-jsdos"
)
