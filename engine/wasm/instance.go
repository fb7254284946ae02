package wasm

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aperturerobotics/go-jsdos/bundle"
	"github.com/aperturerobotics/go-jsdos/engine"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/sys"
)

// Instance is a running engine.
type Instance struct {
	id     string
	bundle *bundle.Bundle
	mod    api.Module
	state  *instanceState
	cancel context.CancelFunc
	logger *slog.Logger

	done chan struct{}
	// err is written before done is closed.
	err error
}

var (
	_ engine.VideoSource = (*Instance)(nil)
	_ engine.AudioSource = (*Instance)(nil)
	_ engine.KeySink     = (*Instance)(nil)
)

func (i *Instance) run(ctx context.Context, start api.Function) {
	defer close(i.done)

	_, err := start.Call(ctx)
	i.err = exitError(err)
	if i.err != nil {
		i.logger.Warn("engine exited", "err", i.err)
	} else {
		i.logger.Debug("engine exited")
	}

	_ = i.mod.Close(context.Background())
	i.state.close()
	if n := i.state.droppedCount(); n > 0 {
		i.logger.Debug("dropped output chunks", "count", n)
	}
}

// exitError maps a _start result to an error. Exit code 0 and
// cancellation by Exit are clean exits.
func exitError(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *sys.ExitError
	if errors.As(err, &exitErr) {
		switch exitErr.ExitCode() {
		case 0, sys.ExitCodeContextCanceled:
			return nil
		}
	}
	return err
}

// ID returns the instance identifier.
func (i *Instance) ID() string {
	return i.id
}

// Config returns the bundle configuration. It fails if the engine has
// already exited with an error.
func (i *Instance) Config(ctx context.Context) (bundle.Config, error) {
	select {
	case <-i.done:
		if i.err != nil {
			return nil, i.err
		}
	default:
	}
	return i.bundle.Config, nil
}

// Exit interrupts the engine and waits for it to stop. It is safe to
// call more than once.
func (i *Instance) Exit(ctx context.Context) error {
	i.cancel()
	select {
	case <-i.done:
		return i.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once the engine has stopped.
func (i *Instance) Done() <-chan struct{} {
	return i.done
}

// Err returns the exit error after Done is closed.
func (i *Instance) Err() error {
	select {
	case <-i.done:
		return i.err
	default:
		return nil
	}
}

// FrameSize returns the current framebuffer dimensions.
func (i *Instance) FrameSize() (width, height int) {
	return i.state.frameSize()
}

// Frames implements engine.VideoSource.
func (i *Instance) Frames() <-chan engine.Frame {
	return i.state.frames
}

// Sound implements engine.AudioSource.
func (i *Instance) Sound() <-chan engine.Sound {
	return i.state.sound
}

// SendKey implements engine.KeySink. Keys sent after exit are dropped.
func (i *Instance) SendKey(code int, pressed bool) {
	select {
	case <-i.done:
		return
	default:
	}
	i.state.sendKey(code, pressed)
}
