package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/greenpath/greenpath/internal/api"
	"github.com/greenpath/greenpath/internal/api/middleware"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd(a *app) *cobra.Command {
	var (
		addr        string
		waitBackend time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local companion HTTP API",
		Long: `Serves preferences, city data and route comparison over HTTP for a
local frontend. City loads are streamed as server-sent events.

Preferences live in one session for the lifetime of the server, so
privacy mode stays on until it is turned off or the server stops.`,
		Args: cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if addr == "" {
				addr = a.cfg.ListenAddr
			}

			if waitBackend > 0 {
				a.log.Info().Str("api_url", a.cfg.APIURL).Dur("max_wait", waitBackend).Msg("waiting for backend")
				if err := a.backend.WaitHealthy(ctx, waitBackend); err != nil {
					return fmt.Errorf("backend not healthy: %w", err)
				}
			}

			metrics, err := middleware.NewMetrics(a.telemetry.Meter)
			if err != nil {
				return fmt.Errorf("init http metrics: %w", err)
			}

			router := api.NewRouter(api.RouterConfig{
				Version:     Version,
				Storage:     a.cfg.Storage,
				Logger:      a.log,
				Metrics:     metrics,
				Tracer:      a.telemetry.Tracer,
				RateLimit:   a.cfg.RateLimit,
				Registry:    a.registry,
				Preferences: a.prefs,
				Backend:     a.backend,
				Loader:      a.loader,
				Selector:    a.selector,
			})

			// No WriteTimeout: city loads stream for as long as the backend works.
			server := &http.Server{
				Addr:              addr,
				Handler:           router,
				ReadHeaderTimeout: 10 * time.Second,
				IdleTimeout:       60 * time.Second,
				BaseContext:       func(net.Listener) context.Context { return ctx },
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				a.log.Info().Str("addr", server.Addr).Msg("server listening")
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				a.log.Info().Msg("shutting down server")

				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					return fmt.Errorf("server forced to shutdown: %w", err)
				}
				a.log.Info().Msg("server stopped")
				return nil
			})
			return g.Wait()
		}),
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides GREENPATH_LISTEN_ADDR)")
	cmd.Flags().DurationVar(&waitBackend, "wait-backend", 0, "wait up to this long for the backend to become healthy")
	return cmd
}
