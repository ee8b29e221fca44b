package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/runoshun/termux-tasker/internal/app"
	"github.com/runoshun/termux-tasker/internal/domain"
	"github.com/runoshun/termux-tasker/internal/usecase"
	"github.com/spf13/cobra"
)

// configureOptions holds options for the configure command.
type configureOptions struct {
	From            string
	Output          string
	Form            domain.ActionForm
	VariableReplace bool
}

// newConfigureCommand creates the configure command.
func newConfigureCommand(c *app.Container) *cobra.Command {
	var opts configureOptions

	cmd := &cobra.Command{
		Use:   "configure",
		Short: "Build and check the bundle of a configured action",
		Long: `Build the plugin bundle for an action from its settings, check it and show
the summary and the variables the action returns.

Fields containing host variables (e.g. %script) are not checked, since the
host resolves them when the action fires. Filesystem problems are shown as
warnings; they do not prevent saving.`,
		Example: `  termux-tasker configure --executable backup.sh --arguments "--full" --wait -o backup.json
  termux-tasker configure --from backup.json --terminal`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			form := opts.Form
			if opts.From != "" {
				data, err := os.ReadFile(opts.From)
				if err != nil {
					return fmt.Errorf("read %s: %w", opts.From, err)
				}
				bundle, err := domain.DecodeBundle(data)
				if err != nil {
					return err
				}
				form = mergeForm(domain.FormFromBundle(bundle), opts.Form, cmd)
			}

			out, err := c.ConfigureActionUseCase().Execute(cmd.Context(), usecase.ConfigureActionInput{
				Form:            form,
				VariableReplace: opts.VariableReplace,
			})
			if err != nil {
				return err
			}

			printConfigureResult(cmd.ErrOrStderr(), out)
			if !out.Valid() {
				return errors.New("action is not valid")
			}

			if opts.Output == "" || opts.Output == "-" {
				return writeJSON(cmd.OutOrStdout(), out.Bundle)
			}
			f, err := os.OpenFile(opts.Output, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
			if err != nil {
				return fmt.Errorf("create %s: %w", opts.Output, err)
			}
			defer func() { _ = f.Close() }()
			return writeJSON(f, out.Bundle)
		},
	}

	cmd.Flags().StringVarP(&opts.Form.Executable, "executable", "e", "", "Executable, relative to the scripts directory")
	cmd.Flags().StringVarP(&opts.Form.Arguments, "arguments", "a", "", "Arguments string")
	cmd.Flags().StringVarP(&opts.Form.WorkingDirectory, "workdir", "d", "", "Working directory")
	cmd.Flags().StringVar(&opts.Form.Stdin, "stdin", "", "Stdin for background executions")
	cmd.Flags().StringVar(&opts.Form.SessionAction, "session-action", "", "Terminal session action [0-3]")
	cmd.Flags().StringVar(&opts.Form.BackgroundCustomLogLevel, "log-level", "", "Custom log level for background executions [0-3]")
	cmd.Flags().BoolVarP(&opts.Form.InTerminal, "terminal", "t", false, "Run in a terminal session")
	cmd.Flags().BoolVarP(&opts.Form.WaitForResult, "wait", "w", false, "Wait for the result and return it as variables")
	cmd.Flags().BoolVar(&opts.VariableReplace, "variable-replace", true, "Let the host resolve variables in string fields")
	cmd.Flags().StringVar(&opts.From, "from", "", "Start from an existing bundle file")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "Write the bundle to a file instead of stdout")

	return cmd
}

// mergeForm applies explicitly set flags over a form loaded from a bundle.
func mergeForm(base, flags domain.ActionForm, cmd *cobra.Command) domain.ActionForm {
	changed := cmd.Flags().Changed
	if changed("executable") {
		base.Executable = flags.Executable
	}
	if changed("arguments") {
		base.Arguments = flags.Arguments
	}
	if changed("workdir") {
		base.WorkingDirectory = flags.WorkingDirectory
	}
	if changed("stdin") {
		base.Stdin = flags.Stdin
	}
	if changed("session-action") {
		base.SessionAction = flags.SessionAction
	}
	if changed("log-level") {
		base.BackgroundCustomLogLevel = flags.BackgroundCustomLogLevel
	}
	if changed("terminal") {
		base.InTerminal = flags.InTerminal
	}
	if changed("wait") {
		base.WaitForResult = flags.WaitForResult
	}
	return base
}

func printConfigureResult(w io.Writer, out *usecase.ConfigureActionOutput) {
	_, _ = fmt.Fprintln(w, styles.Blurb.Render(out.Blurb))

	for _, e := range out.Errors {
		_, _ = fmt.Fprintln(w, styles.Error.Render("error: "+e.Error()))
	}
	for _, e := range out.Warnings {
		_, _ = fmt.Fprintln(w, styles.Warning.Render("warning: "+e.Error()))
	}

	if len(out.Variables) > 0 {
		_, _ = fmt.Fprintln(w, styles.Header.Render("Returned variables:"))
		for _, v := range out.Variables {
			_, _ = fmt.Fprintf(w, "  %s  %s\n", padRight(v.Name, 24), styles.Muted.Render(v.Description))
		}
		_, _ = fmt.Fprintf(w, "%s\n", styles.Muted.Render(fmt.Sprintf("Host timeout: %dms", out.TimeoutMS)))
	}
}
