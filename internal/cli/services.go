package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/runoshun/termux-tasker/internal/app"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// signalContext returns a context canceled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// newRelayCommand creates the relay command.
func newRelayCommand(c *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "relay",
		Short: "Relay execution results from the callback queue to callers",
		Long: `Consume the callback queue and return each execution result to the caller
that is waiting for it, in the host's variable format.

Pending callbacks older than relay.pending_ttl are pruned on the
relay.prune_schedule cron spec. Runs until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			stopPruner, err := c.StartPruner(ctx)
			if err != nil {
				return err
			}
			defer stopPruner()

			return c.RunRelay(ctx)
		},
	}
}

// newExecdCommand creates the execd command.
func newExecdCommand(c *app.Container) *cobra.Command {
	var withRelay bool

	cmd := &cobra.Command{
		Use:   "execd",
		Short: "Run the reference execution service",
		Long: `Consume the intent queue and run each execution intent, in the background
with captured output or in a tmux session, then deliver the result to the
callback address of the intent. Runs until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return c.RunExecd(ctx)
			})
			if withRelay {
				stopPruner, err := c.StartPruner(ctx)
				if err != nil {
					return err
				}
				defer stopPruner()
				g.Go(func() error {
					return c.RunRelay(ctx)
				})
			}
			return g.Wait()
		},
	}

	cmd.Flags().BoolVar(&withRelay, "relay", false, "Also run the result relay")

	return cmd
}

// newServeCommand creates the serve command.
func newServeCommand(c *app.Container) *cobra.Command {
	var opts app.ServeOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API together with the result relay",
		Long: `Serve the HTTP API and run the result relay and pruner.

Routes:
  POST /v1/fire               dispatch a bundle ({"bundle": {...}, "caller": {...}})
  POST /v1/callbacks/{code}   relay a callback payload
  GET  /v1/pending            list pending callbacks
  GET  /healthz               health check
  GET  /metrics               Prometheus metrics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			return c.Serve(ctx, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Addr, "listen", "l", "", "Listen address (default: relay.listen)")
	cmd.Flags().BoolVar(&opts.WithExecd, "execd", false, "Also run the reference execution service")

	return cmd
}
