package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aperturerobotics/go-jsdos/bundle"
	"github.com/aperturerobotics/go-jsdos/internal/metrics"
	jsdosotel "github.com/aperturerobotics/go-jsdos/internal/otel"
	"github.com/aperturerobotics/go-jsdos/session"
	"github.com/aperturerobotics/go-jsdos/toolkit/web"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve browser sessions",
	Long: `Starts an HTTP server with a page per session region. Pages connect over
a websocket to display the engine output and send input, and call the
run and stop API to start bundles. Prometheus metrics are served at /metrics.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("listen", "", "listen address (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		cfg.Listen = listen
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := jsdosotel.Setup(ctx, "jsdos", cfg.OTelEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracing shutdown", "err", err)
		}
	}()

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
	toolkit := web.NewToolkit(resolver, web.WithLogger(logger))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	registry := session.NewRegistry(func(root string) *session.Controller {
		return session.New(root, factory.Engine(), toolkit,
			session.WithLogger(logger),
			session.WithHooks(m.Hooks()),
		)
	})

	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	r.Mount("/", web.NewHandler(toolkit, registry,
		web.WithHandlerLogger(logger),
		web.WithLocatorPolicy(locatorPolicy(cfg)),
	))

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("serving", "addr", cfg.Listen, "engine", cfg.Engine)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return errors.Join(
			srv.Shutdown(sctx),
			registry.Close(sctx),
		)
	})
	return g.Wait()
}
