package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/llmbridge/internal/mcp"
	"github.com/dshills/llmbridge/internal/metrics"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := flags.load()
			if err != nil {
				return err
			}
			logger.Info().Str("version", version).Msg("llmbridge starting")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			m := metrics.New(reg)

			a, err := buildApp(ctx, cfg, logger, m)
			if err != nil {
				return errors.Wrap(err, "build components")
			}
			defer a.Close()

			server, err := mcp.NewServer(mcp.Components{
				Invoker:  a.invoker,
				Embedder: a.embedder,
				Windower: a.windower,
			}, logger.With().Str("component", "mcp").Logger())
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(ctx)
			defer cancel()
			g, gctx := errgroup.WithContext(ctx)

			g.Go(func() error {
				// stdin closing ends the session and everything else with it
				defer cancel()
				logger.Info().Msg("MCP server ready, listening on stdio")
				return server.Serve(gctx, os.Stdin, os.Stdout)
			})

			if addr := cfg.Metrics.Address; addr != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
				httpServer := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

				g.Go(func() error {
					logger.Info().Str("address", addr).Msg("metrics endpoint listening")
					if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						return errors.Wrap(err, "metrics server")
					}
					return nil
				})
				g.Go(func() error {
					<-gctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
					defer cancel()
					return httpServer.Shutdown(shutdownCtx)
				})
			}

			err = g.Wait()
			logger.Info().Err(err).Msg("server stopped")
			return err
		},
	}
}
