package main

import (
	"context"
	"fmt"
	"time"

	"github.com/phrazzld/portal-client/internal/app"
	"github.com/phrazzld/portal-client/internal/config"
	"github.com/spf13/cobra"
)

// cli carries state shared by every subcommand.
type cli struct {
	baseURL string
	timeout time.Duration
	cfg     *config.Config
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "portalctl",
		Short: "Drive the school portal client from the command line",
		Long: `portalctl runs the portal client data layer without a UI. It keeps the
local mirrors of the portal API in sync, logs in and out, and reports
connectivity.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if c.baseURL != "" {
				cfg.API.BaseURL = c.baseURL
				if err := config.Validate(cfg); err != nil {
					return err
				}
			}
			c.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().StringVar(&c.baseURL, "base-url", "", "API root, overrides api.base_url")
	root.PersistentFlags().DurationVar(&c.timeout, "timeout", 30*time.Second, "how long to wait for data to load")

	root.AddCommand(
		c.newSyncCmd(),
		c.newLoginCmd(),
		c.newLogoutCmd(),
		c.newStatusCmd(),
		c.newWatchCmd(),
	)
	return root
}

func (c *cli) open() (*app.App, error) {
	a, err := app.New(c.cfg, app.Options{})
	if err != nil {
		return nil, fmt.Errorf("initializing client: %w", err)
	}
	return a, nil
}

func (c *cli) closeApp(cmd *cobra.Command, a *app.App) {
	if err := a.Close(); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %v\n", err)
	}
}

// startSession loads what the session needs and settles it.
func (c *cli) startSession(ctx context.Context, a *app.App) error {
	a.Catalog.Grades.Start(ctx)
	a.Catalog.Classes.Start(ctx)
	a.Session.Start(ctx)
	if _, err := a.Session.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for session: %w", err)
	}
	return nil
}

func (c *cli) withTimeout(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), c.timeout)
}
