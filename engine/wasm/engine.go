// Package wasm provides an engine factory that runs a DOS emulator engine
// compiled to WebAssembly using wazero.
//
// The engine is a command-model module. Each instance runs _start on its
// own goroutine with the bundle mounted as the guest root filesystem.
// Host functions in the "env" module receive the per-instance state
// through the call context, so one compiled engine and one host module
// serve any number of instances.
package wasm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	jsdos "github.com/aperturerobotics/go-jsdos"
	"github.com/aperturerobotics/go-jsdos/bundle"
	"github.com/aperturerobotics/go-jsdos/internal/logging"
	"github.com/aperturerobotics/go-jsdos/session"
	"github.com/google/uuid"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// ErrMissingExport is returned when the engine lacks a required export.
var ErrMissingExport = errors.New("missing export")

// ErrNotWASM is returned when the engine binary is not a wasm module.
var ErrNotWASM = errors.New("engine binary is not a wasm module")

// defaultQueueDepth is the buffered frame and sound chunks per instance.
const defaultQueueDepth = 8

// NewRuntime creates a wazero runtime that interrupts running guests when
// their context is cancelled. Instances rely on this to exit.
func NewRuntime(ctx context.Context) wazero.Runtime {
	return wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfig().WithCloseOnContextDone(true))
}

// Factory compiles the engine once and starts instances of it.
type Factory struct {
	runtime    wazero.Runtime
	compiled   wazero.CompiledModule
	logger     *slog.Logger
	queueDepth int
}

// Option configures the Factory.
type Option func(*Factory)

// WithLogger configures a logger for the Factory and its instances.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Factory) {
		f.logger = logger
	}
}

// WithQueueDepth sets how many frames and sound chunks an instance
// buffers before dropping new ones.
func WithQueueDepth(n int) Option {
	return func(f *Factory) {
		if n > 0 {
			f.queueDepth = n
		}
	}
}

// NewFactory installs WASI and the host module into r (once per runtime)
// and compiles engineWASM. Call Close when done.
func NewFactory(ctx context.Context, r wazero.Runtime, engineWASM []byte, opts ...Option) (*Factory, error) {
	f := &Factory{
		runtime:    r,
		logger:     logging.NewNop(),
		queueDepth: defaultQueueDepth,
	}
	for _, opt := range opts {
		opt(f)
	}

	if !jsdos.IsWASM(engineWASM) {
		return nil, ErrNotWASM
	}

	if r.Module(wasi_snapshot_preview1.ModuleName) == nil {
		if _, err := wasi_snapshot_preview1.Instantiate(ctx, r); err != nil {
			return nil, err
		}
	}
	if r.Module(jsdos.HostModule) == nil {
		if err := instantiateHost(ctx, r); err != nil {
			return nil, err
		}
	}

	compiled, err := r.CompileModule(ctx, engineWASM)
	if err != nil {
		return nil, err
	}
	if _, ok := compiled.ExportedFunctions()[jsdos.ExportStart]; !ok {
		_ = compiled.Close(ctx)
		return nil, fmt.Errorf("%w: %s", ErrMissingExport, jsdos.ExportStart)
	}
	if _, ok := compiled.ExportedMemories()[jsdos.ExportMemory]; !ok {
		_ = compiled.Close(ctx)
		return nil, fmt.Errorf("%w: %s", ErrMissingExport, jsdos.ExportMemory)
	}

	f.compiled = compiled
	return f, nil
}

// Start instantiates the engine for b and runs it in the background.
// The instance lifetime is independent of ctx; use Instance.Exit.
func (f *Factory) Start(ctx context.Context, b *bundle.Bundle) (*Instance, error) {
	id := uuid.NewString()
	logger := f.logger.With("instance", id, "bundle", b.ID)
	state := newInstanceState(logger, f.queueDepth)

	args := []string{"dosbox"}
	if b.HasFile(jsdos.BundleDosboxConf) {
		args = append(args, "-conf", jsdos.BundleDosboxConf)
	}

	config := wazero.NewModuleConfig().
		WithName(jsdos.EngineWASMFilename + "-" + id).
		WithArgs(args...).
		WithFS(b.FS).
		WithStdout(&logWriter{logger: logger, stream: "stdout"}).
		WithStderr(&logWriter{logger: logger, stream: "stderr"}).
		WithSysWalltime().
		WithSysNanotime().
		WithSysNanosleep().
		WithStartFunctions()

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	runCtx = withInstanceState(runCtx, state)

	mod, err := f.runtime.InstantiateModule(runCtx, f.compiled, config)
	if err != nil {
		cancel()
		return nil, err
	}

	start := mod.ExportedFunction(jsdos.ExportStart)
	if start == nil {
		cancel()
		_ = mod.Close(ctx)
		return nil, fmt.Errorf("%w: %s", ErrMissingExport, jsdos.ExportStart)
	}

	i := &Instance{
		id:     id,
		bundle: b,
		mod:    mod,
		state:  state,
		cancel: cancel,
		done:   make(chan struct{}),
		logger: logger,
	}
	go i.run(runCtx, start)

	logger.Debug("engine started", "args", args)
	return i, nil
}

// Engine adapts the factory to session.EngineFactory.
func (f *Factory) Engine() session.EngineFactory {
	return session.EngineFunc(func(ctx context.Context, b *bundle.Bundle) (session.Instance, error) {
		ci, err := f.Start(ctx, b)
		if err != nil {
			return nil, err
		}
		return ci, nil
	})
}

// Close releases the compiled engine. Running instances are unaffected
// until the runtime itself is closed.
func (f *Factory) Close(ctx context.Context) error {
	return f.compiled.Close(ctx)
}
