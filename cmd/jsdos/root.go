package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aperturerobotics/go-jsdos/engine/wasm"
	"github.com/aperturerobotics/go-jsdos/internal/config"
	"github.com/aperturerobotics/go-jsdos/internal/logging"
	"github.com/spf13/cobra"
	"github.com/tetratelabs/wazero"
)

var rootCmd = &cobra.Command{
	Use:   "jsdos",
	Short: "Run DOS program bundles on a WebAssembly emulator",
	Long: `jsdos starts DOS program bundles (.jsdos/.zip/.7z archives, directories
or URLs) on a dosbox engine compiled to WebAssembly, either for browsers
connecting over websockets or headless.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "YAML config file")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("engine", "", "path to the engine wasm binary")
}

// setup loads the config, applies persistent flags and builds the logger.
func setup(cmd *cobra.Command) (config.Config, *slog.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, nil, err
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	if eng, _ := cmd.Flags().GetString("engine"); eng != "" {
		cfg.Engine = eng
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return cfg, nil, err
	}
	return cfg, logging.New(level), nil
}

// newEngine reads and compiles the engine binary into a fresh runtime.
// Closing the runtime stops every instance.
func newEngine(ctx context.Context, cfg config.Config, logger *slog.Logger) (wazero.Runtime, *wasm.Factory, error) {
	bin, err := os.ReadFile(cfg.Engine)
	if err != nil {
		return nil, nil, fmt.Errorf("read engine: %w", err)
	}

	rt := wasm.NewRuntime(ctx)
	f, err := wasm.NewFactory(ctx, rt, bin,
		wasm.WithLogger(logger),
		wasm.WithQueueDepth(cfg.QueueDepth),
	)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, nil, fmt.Errorf("load engine %s: %w", cfg.Engine, err)
	}
	logger.Debug("engine loaded", "path", cfg.Engine, "size", len(bin))
	return rt, f, nil
}
