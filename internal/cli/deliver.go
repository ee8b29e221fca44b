package cli

import (
	"errors"
	"fmt"

	"github.com/runoshun/termux-tasker/internal/app"
	"github.com/runoshun/termux-tasker/internal/domain"
	"github.com/runoshun/termux-tasker/internal/usecase"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// newDeliverCommand creates the deliver command.
func newDeliverCommand(c *app.Container) *cobra.Command {
	var requestCode int
	var queue, id string
	var result domain.ExecutionResult
	var exitCode, errCode int

	cmd := &cobra.Command{
		Use:   "deliver [result-file]",
		Short: "Deliver an execution result to the result relay",
		Long: `Deliver the result of an execution to a callback address, as an
execution service does when it finishes.

The result is read as JSON or YAML from the file argument ("-" for stdin):

  stdout: "..."
  stderr: "..."
  exitCode: 0
  err: 1          # plugin error code, omitted or 0 on success
  errmsg: "..."

Without a file argument the result is built from the flags.`,
		Example: `  termux-tasker deliver --request-code 12 --stdout "done" --exit-code 0
  termux-tasker deliver --request-code 12 --queue http://127.0.0.1:8765/v1/callbacks result.yaml`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("request-code") {
				return errors.New("--request-code is required")
			}

			if len(args) == 1 {
				data, err := readInput(cmd, args)
				if err != nil {
					return err
				}
				result = domain.ExecutionResult{}
				if err := yaml.Unmarshal(data, &result); err != nil {
					return fmt.Errorf("parse result: %w", err)
				}
			} else {
				if cmd.Flags().Changed("exit-code") {
					result.ExitCode = &exitCode
				}
				if cmd.Flags().Changed("err") {
					result.ErrorCode = &errCode
				}
			}

			if queue == "" {
				queue = c.Config.CallbacksDir
			}
			out, err := c.DeliverResultUseCase().Execute(cmd.Context(), usecase.DeliverResultInput{
				Result:  &result,
				Address: domain.CallbackAddress{Queue: queue, RequestCode: requestCode},
				ID:      id,
			})
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintln(cmd.OutOrStdout(), styles.Success.Render(
				fmt.Sprintf("Delivered result for request code %d", out.Payload.RequestCode)))
			return nil
		},
	}

	cmd.Flags().IntVarP(&requestCode, "request-code", "r", 0, "Request code of the pending callback")
	cmd.Flags().StringVarP(&queue, "queue", "q", "", "Callback queue directory or http(s) URL (default: local callback queue)")
	cmd.Flags().StringVar(&id, "id", "", "ID echoed in the callback payload")
	cmd.Flags().StringVar(&result.Stdout, "stdout", "", "Standard output")
	cmd.Flags().StringVar(&result.Stderr, "stderr", "", "Standard error")
	cmd.Flags().StringVar(&result.ErrorMessage, "errmsg", "", "Error message")
	cmd.Flags().IntVar(&exitCode, "exit-code", 0, "Exit code (omitted when not set)")
	cmd.Flags().IntVar(&errCode, "err", 0, "Plugin error code (omitted when not set)")

	return cmd
}
