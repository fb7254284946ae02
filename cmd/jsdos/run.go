package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aperturerobotics/go-jsdos/bundle"
	"github.com/aperturerobotics/go-jsdos/engine"
	"github.com/aperturerobotics/go-jsdos/session"
	"github.com/aperturerobotics/go-jsdos/toolkit/headless"
	"github.com/spf13/cobra"
)

// keyHold is how long a scripted key stays pressed.
const keyHold = 50 * time.Millisecond

var runCmd = &cobra.Command{
	Use:   "run <bundle>",
	Short: "Run a bundle headless",
	Long: `Runs a bundle without a display until the engine exits, the duration
elapses or the command is interrupted. With --out the last screen is
written as <root>.png and the sound as <root>.wav.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().DurationP("duration", "d", 0, "stop after this long (0 waits for the engine to exit)")
	runCmd.Flags().StringP("out", "o", "", "directory for screen and sound output")
	runCmd.Flags().StringSlice("keys", nil, "keys to type once running, e.g. enter,space,f1")
	rootCmd.AddCommand(runCmd)
}

func parseKeys(names []string) ([]int, error) {
	codes := make([]int, 0, len(names))
	for _, name := range names {
		code, ok := engine.KeyByName(strings.TrimSpace(name))
		if !ok {
			return nil, fmt.Errorf("unknown key %q", name)
		}
		codes = append(codes, code)
	}
	return codes, nil
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	duration, _ := cmd.Flags().GetDuration("duration")
	out, _ := cmd.Flags().GetString("out")
	keyNames, _ := cmd.Flags().GetStringSlice("keys")
	keys, err := parseKeys(keyNames)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, factory, err := newEngine(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close(context.Background()) }()
	defer func() { _ = factory.Close(context.Background()) }()

	resolver := bundle.NewResolver(
		bundle.WithLogger(logger),
		bundle.WithTempDir(cfg.TempDir),
	)
	toolkit := headless.NewToolkit(resolver,
		headless.WithLogger(logger),
		headless.WithOutputDir(out),
	)
	ctrl := session.New("main", factory.Engine(), toolkit, session.WithLogger(logger))

	ci, err := ctrl.Run(ctx, args[0])
	if err != nil {
		return err
	}

	surf := ctrl.Surface().(*headless.Surface)
	for _, code := range keys {
		surf.SendKey(code, true)
		time.Sleep(keyHold)
		surf.SendKey(code, false)
	}

	var exited <-chan struct{}
	if d, ok := ci.(interface{ Done() <-chan struct{} }); ok {
		exited = d.Done()
	}
	var timeout <-chan time.Time
	if duration > 0 {
		timer := time.NewTimer(duration)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-exited:
		logger.Info("engine exited")
	case <-timeout:
		logger.Info("duration elapsed", "duration", duration)
	case <-ctx.Done():
		logger.Info("interrupted")
	}

	sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := ctrl.Stop(sctx); err != nil {
		return err
	}
	return toolkit.Wait()
}
