package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/KamdynS/weather-agents/app"
	"github.com/KamdynS/weather-agents/config"
	obs "github.com/KamdynS/weather-agents/observability"
	"github.com/KamdynS/weather-agents/observability/prom"
	httpserver "github.com/KamdynS/weather-agents/server/http"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP chat API",
		Long:  `Serve /v1/chat, session transcripts, /metrics and /debug/graph until interrupted.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			return runServe(cmd.Context(), cfg, cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config, traceOut io.Writer) error {
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Tracing.Exporter == config.TracingStdout {
		shutdown, err := obs.SetupStdoutTracing(cfg.Tracing.ServiceName, traceOut)
		if err != nil {
			return err
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := shutdown(sctx); err != nil {
				logger.Warn("failed to flush traces", zap.Error(err))
			}
		}()
	}

	exporter := prom.New()
	obs.SetMetrics(exporter)

	a, err := app.Build(ctx, cfg, app.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to build agents: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("failed to release resources", zap.Error(err))
		}
	}()

	srv := httpserver.NewServer(a.Chat, httpserver.Config{
		Addr:            cfg.Server.Addr,
		RequestTimeout:  cfg.Server.RequestTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		CORSOrigins:     cfg.Server.CORSOrigins,
		RateLimit:       cfg.Server.RateLimit,
		Burst:           cfg.Server.Burst,
		Metrics:         exporter.Handler(),
		Topology:        a.Topology,
		Logger:          logger.Named("http"),
	})

	logger.Info("weather agents ready",
		zap.String("mode", cfg.Router.Mode),
		zap.String("session_backend", cfg.Session.Backend),
		zap.String("tracing", cfg.Tracing.Exporter))
	return srv.ListenAndServe(ctx)
}
