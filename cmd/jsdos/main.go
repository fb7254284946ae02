// Command jsdos runs DOS program bundles on a WebAssembly emulator engine.
//
// Usage:
//
//	jsdos serve                      # serve browser sessions
//	jsdos run game.jsdos -d 10s -o . # run headless, write screen and sound
//	jsdos version
package main

func main() {
	Execute()
}
