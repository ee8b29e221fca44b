// Package cli provides the command-line interface for termux-tasker.
package cli

import (
	"fmt"

	"github.com/runoshun/termux-tasker/internal/app"
	"github.com/spf13/cobra"
)

// Command group IDs.
const (
	groupPlugin  = "plugin"
	groupService = "service"
	groupState   = "state"
	groupSetup   = "setup"
)

// NewRootCommand creates the root command for termux-tasker.
// It receives the container for dependency injection and version for display.
func NewRootCommand(c *app.Container, version string) *cobra.Command {
	var logStderr bool

	root := &cobra.Command{
		Use:   "termux-tasker",
		Short: "Run sandboxed scripts for an automation host and relay their results",
		Long: `termux-tasker validates plugin bundles from an automation host, dispatches
the script they name to an execution service and relays the script's
stdout, stderr and exit code back to the host as variables.

Scripts are resolved relative to the scripts directory (~/.termux/tasker by
default). Executables outside it are refused unless policy.allow_external_apps
is enabled.`,
		Version: version,
		// SilenceUsage prevents usage from being printed on errors
		SilenceUsage: true,
		// SilenceErrors prevents Cobra from printing errors (we handle it in main)
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Skip if container is nil (e.g. in tests)
			if c == nil {
				return nil
			}
			if logStderr {
				c.Logger.SetMirror(cmd.ErrOrStderr())
			}
			for _, w := range c.AppConfig.Warnings {
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %s\n", w)
			}
			return nil
		},
	}

	root.PersistentFlags().BoolVar(&logStderr, "log-stderr", false, "Mirror log entries to stderr")

	// Define command groups
	root.AddGroup(
		&cobra.Group{ID: groupPlugin, Title: "Plugin Commands:"},
		&cobra.Group{ID: groupService, Title: "Services:"},
		&cobra.Group{ID: groupState, Title: "State Commands:"},
		&cobra.Group{ID: groupSetup, Title: "Setup Commands:"},
	)

	// Plugin commands
	fireCmd := newFireCommand(c)
	fireCmd.GroupID = groupPlugin

	deliverCmd := newDeliverCommand(c)
	deliverCmd.GroupID = groupPlugin

	configureCmd := newConfigureCommand(c)
	configureCmd.GroupID = groupPlugin

	// Services
	relayCmd := newRelayCommand(c)
	relayCmd.GroupID = groupService

	execdCmd := newExecdCommand(c)
	execdCmd.GroupID = groupService

	serveCmd := newServeCommand(c)
	serveCmd.GroupID = groupService

	// State commands
	pendingCmd := newPendingCommand(c)
	pendingCmd.GroupID = groupState

	pruneCmd := newPruneCommand(c)
	pruneCmd.GroupID = groupState

	// Setup commands
	configCmd := newConfigCommand(c)
	configCmd.GroupID = groupSetup

	root.AddCommand(
		fireCmd,
		deliverCmd,
		configureCmd,
		relayCmd,
		execdCmd,
		serveCmd,
		pendingCmd,
		pruneCmd,
		configCmd,
	)

	return root
}
