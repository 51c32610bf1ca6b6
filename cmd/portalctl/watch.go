package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/portal-client/internal/app"
	"github.com/phrazzld/portal-client/internal/session"
	"github.com/spf13/cobra"
)

func (c *cli) newWatchCmd() *cobra.Command {
	var metricsAddr string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the client running: sync, monitor connectivity and serve metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := c.open()
			if err != nil {
				return err
			}
			defer c.closeApp(cmd, a)

			out := cmd.OutOrStdout()
			unsubscribe := a.Session.Subscribe(func(st session.State) {
				if !st.Loading {
					printSession(out, st)
				}
			})
			defer unsubscribe()

			var srv *http.Server
			if metricsAddr != "" {
				srv = &http.Server{
					Addr:              metricsAddr,
					Handler:           newMetricsRouter(a),
					ReadHeaderTimeout: 5 * time.Second,
				}
				go func() {
					a.Logger.Info("serving metrics", "addr", metricsAddr)
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						a.Logger.Error("metrics server failed", "error", err)
						stop()
					}
				}()
			}

			runErr := a.Run(ctx)

			if srv != nil {
				shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					return fmt.Errorf("metrics server shutdown: %w", err)
				}
			}
			return runErr
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
	return cmd
}

// newMetricsRouter exposes the client's metrics and a liveness probe.
func newMetricsRouter(a *app.App) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", a.Metrics.Handler())
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(string(a.Monitor.Status()))); err != nil {
			a.Logger.Error("failed to write health response", "error", err)
		}
	})
	return r
}
