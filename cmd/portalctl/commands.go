package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/phrazzld/portal-client/internal/app"
	"github.com/phrazzld/portal-client/internal/connectivity"
	"github.com/phrazzld/portal-client/internal/session"
	"github.com/spf13/cobra"
)

func (c *cli) newSyncCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Load every model and print a summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open()
			if err != nil {
				return err
			}
			defer c.closeApp(cmd, a)

			ctx, cancel := c.withTimeout(cmd)
			defer cancel()

			a.Start(ctx)
			loadErr := a.Catalog.Wait(ctx)
			if force && loadErr == nil {
				loadErr = a.Catalog.Refresh(ctx)
			}
			st, err := a.Session.Wait(ctx)
			if err != nil {
				return fmt.Errorf("waiting for session: %w", err)
			}

			out := cmd.OutOrStdout()
			printModels(out, a)
			printSession(out, st)
			if loadErr != nil {
				return fmt.Errorf("sync incomplete: %w", loadErr)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "refetch everything after the initial load")
	return cmd
}

func (c *cli) newLoginCmd() *cobra.Command {
	var (
		tok     string
		expires string
	)
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store a bearer token and verify it with the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			var expiry time.Time
			if expires != "" {
				t, err := time.Parse(time.RFC3339, expires)
				if err != nil {
					return fmt.Errorf("parsing --expires: %w", err)
				}
				expiry = t
			}

			a, err := c.open()
			if err != nil {
				return err
			}
			defer c.closeApp(cmd, a)

			ctx, cancel := c.withTimeout(cmd)
			defer cancel()
			if err := c.startSession(ctx, a); err != nil {
				return err
			}

			st, err := a.Session.Login(ctx, tok, expiry)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (%s)\n", st.User.FullName(), st.User.Username)
			return nil
		},
	}
	cmd.Flags().StringVar(&tok, "token", "", "bearer token issued by the portal")
	cmd.Flags().StringVar(&expires, "expires", "", "token expiry (RFC 3339); defaults to the token's own")
	_ = cmd.MarkFlagRequired("token")
	return cmd
}

func (c *cli) newLogoutCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Invalidate the stored token",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open()
			if err != nil {
				return err
			}
			defer c.closeApp(cmd, a)

			ctx, cancel := c.withTimeout(cmd)
			defer cancel()
			if err := c.startSession(ctx, a); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !a.Session.LoggedIn() && !a.Tokens.Present() {
				fmt.Fprintln(out, "Not logged in")
				return nil
			}
			if all {
				err = a.Session.LogoutAllDevices(ctx)
			} else {
				err = a.Session.Logout(ctx)
			}
			if errors.Is(err, session.ErrLogoutFailed) {
				fmt.Fprintln(out, "Logged out locally; the server did not confirm")
				return err
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(out, "Logged out")
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "invalidate the tokens of every device")
	return cmd
}

func (c *cli) newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Probe the server once and print connectivity and token state",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open()
			if err != nil {
				return err
			}
			defer c.closeApp(cmd, a)

			ctx, cancel := c.withTimeout(cmd)
			defer cancel()
			a.Monitor.Check(ctx)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "api:\t%s\n", a.API.BaseURL())
			fmt.Fprintf(w, "connectivity:\t%s\n", describeStatus(a.Monitor.Status()))
			if expiry, ok := a.Tokens.Expiry(); ok {
				fmt.Fprintf(w, "token:\tpresent, expires %s\n", expiry.Format(time.RFC3339))
			} else {
				fmt.Fprintf(w, "token:\tabsent\n")
			}
			if last, ok := a.Monitor.Last(); ok {
				authenticated, known := last.Probe.IsAuthenticated()
				switch {
				case !known:
					fmt.Fprintf(w, "server auth:\tunknown\n")
				case authenticated:
					fmt.Fprintf(w, "server auth:\tauthenticated\n")
				default:
					fmt.Fprintf(w, "server auth:\tnot authenticated\n")
				}
			}
			return w.Flush()
		},
	}
}

var statusLabels = map[connectivity.Status]string{
	connectivity.StatusOnline:     "online",
	connectivity.StatusOffline:    "offline",
	connectivity.StatusServerDown: "server unreachable",
	connectivity.StatusAnomalous:  "server reachable, device offline",
}

func describeStatus(s connectivity.Status) string {
	if label, ok := statusLabels[s]; ok {
		return fmt.Sprintf("%s (%s)", label, s)
	}
	return string(s)
}

func printModels(out io.Writer, a *app.App) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MODEL\tSTATE\tENTRIES")
	for _, m := range a.Catalog.All() {
		fmt.Fprintf(w, "%s\t%s\t%d\n", m.Path(), m.State(), m.Len())
	}
	_ = w.Flush()
}

func printSession(out io.Writer, st session.State) {
	if !st.LoggedIn {
		fmt.Fprintln(out, "session: anonymous")
		return
	}
	fmt.Fprintf(out, "session: %s (%s)\n", st.User.FullName(), st.User.Username)
}
