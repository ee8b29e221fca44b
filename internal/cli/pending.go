package cli

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/runoshun/termux-tasker/internal/app"
	"github.com/runoshun/termux-tasker/internal/usecase"
	"github.com/spf13/cobra"
)

// newPendingCommand creates the pending command.
func newPendingCommand(c *app.Container) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List callbacks waiting for a result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, err := c.ListPendingUseCase().Execute(cmd.Context(), usecase.ListPendingInput{
				TTL: c.Config.PendingTTL,
			})
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), out.Callbacks)
			}
			printPending(cmd.OutOrStdout(), out.Callbacks)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")

	return cmd
}

func printPending(w io.Writer, callbacks []usecase.PendingSummary) {
	if len(callbacks) == 0 {
		_, _ = fmt.Fprintln(w, styles.Muted.Render("No pending callbacks."))
		return
	}

	headers := []string{"CODE", "CALLER", "AGE", "MODE", "EXECUTABLE"}
	rows := make([][]string, 0, len(callbacks))
	for _, cb := range callbacks {
		mode := "background"
		if cb.RunInTerminal {
			mode = "terminal"
		}
		age := cb.Age.Truncate(time.Second).String()
		if cb.Expired {
			age = styles.Warning.Render(age + " (expired)")
		}
		rows = append(rows, []string{strconv.Itoa(cb.RequestCode), cb.Caller.ID, age, mode, cb.Executable})
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}

	for i, h := range headers {
		_, _ = fmt.Fprint(w, styles.Header.Render(padRight(h, widths[i])))
		if i < len(headers)-1 {
			_, _ = fmt.Fprint(w, "  ")
		}
	}
	_, _ = fmt.Fprintln(w)
	for _, row := range rows {
		for i, cell := range row {
			if i < len(row)-1 {
				_, _ = fmt.Fprint(w, padRight(cell, widths[i])+"  ")
			} else {
				_, _ = fmt.Fprint(w, cell)
			}
		}
		_, _ = fmt.Fprintln(w)
	}
}

// newPruneCommand creates the prune command.
func newPruneCommand(c *app.Container) *cobra.Command {
	var ttl time.Duration
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove pending callbacks whose result never arrived",
		Long: `Remove pending callbacks older than the TTL (relay.pending_ttl by default).
Callers of pruned callbacks are not notified.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("ttl") {
				ttl = c.Config.PendingTTL
			}
			if ttl <= 0 {
				return errors.New("pruning is disabled: ttl must be positive")
			}

			out, err := c.PruneCallbacksUseCase().Execute(cmd.Context(), usecase.PruneCallbacksInput{
				TTL:    ttl,
				DryRun: dryRun,
			})
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			verb := "Pruned"
			if dryRun {
				verb = "Would prune"
			}
			for _, cb := range out.Pruned {
				_, _ = fmt.Fprintf(w, "%s request code %d (caller %s, created %s)\n",
					verb, cb.RequestCode, cb.Caller.ID, cb.CreatedAt.Format(time.RFC3339))
			}
			summary := fmt.Sprintf("%s %d, %d remaining", verb, len(out.Pruned), out.Remaining)
			if !dryRun && len(out.Pruned) > 0 {
				summary = styles.Success.Render(summary)
			}
			_, _ = fmt.Fprintln(w, summary)
			return nil
		},
	}

	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Prune entries older than this (default: relay.pending_ttl)")
	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would be pruned without removing")

	return cmd
}
