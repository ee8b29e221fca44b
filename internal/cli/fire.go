package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/runoshun/termux-tasker/internal/app"
	"github.com/runoshun/termux-tasker/internal/domain"
	"github.com/runoshun/termux-tasker/internal/infra/ipc"
	"github.com/runoshun/termux-tasker/internal/usecase"
	"github.com/spf13/cobra"
)

// errActionFailed signals a failure reply that was already printed.
var errActionFailed = errors.New("action failed")

// fireOptions holds options for the fire command.
type fireOptions struct {
	CallerID       string
	ReplyTo        string
	Timeout        time.Duration
	Ordered        bool
	VariableReturn bool
	Wait           bool
}

// newFireCommand creates the fire command.
func newFireCommand(c *app.Container) *cobra.Command {
	var opts fireOptions

	cmd := &cobra.Command{
		Use:   "fire [bundle-file]",
		Short: "Validate a bundle and dispatch its execution",
		Long: `Validate a plugin bundle and hand the execution to the execution service.

The bundle is read as JSON or YAML from the file argument, or from stdin when
the argument is "-" or missing. The reply is printed as JSON.

When the bundle waits for its result and the caller is ordered, the reply is
pending and the finish signal is written to the reply queue later. With --wait
the command blocks until that finish signal arrives.`,
		Example: `  # Fire a bundle and wait for the script result
  termux-tasker fire --wait bundle.json

  # Fire without waiting (detached)
  echo '{"com.termux.tasker.extra.EXECUTABLE":"backup.sh",
         "com.termux.execute.arguments":"",
         "com.termux.tasker.extra.VERSION_CODE":7}' | termux-tasker fire --ordered=false`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			bundle, err := domain.DecodeBundle(data)
			if err != nil && !errors.Is(err, domain.ErrNullBundle) {
				return err
			}
			return runFire(cmd.Context(), c, cmd.OutOrStdout(), bundle, opts)
		},
	}

	cmd.Flags().StringVar(&opts.CallerID, "caller-id", "", "Caller ID (default: random)")
	cmd.Flags().StringVar(&opts.ReplyTo, "reply-to", "", "Reply queue directory or http(s) URL (default: per-caller queue)")
	cmd.Flags().BoolVar(&opts.Ordered, "ordered", true, "Caller waits for a finish signal")
	cmd.Flags().BoolVar(&opts.VariableReturn, "variable-return", true, "Caller accepts returned variables")
	cmd.Flags().BoolVarP(&opts.Wait, "wait", "w", false, "Block until the finish signal arrives")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", domain.DefaultActionTimeoutMS*time.Millisecond, "Maximum time to wait with --wait")

	return cmd
}

func runFire(ctx context.Context, c *app.Container, w io.Writer, bundle domain.Bundle, opts fireOptions) error {
	caller := domain.CallerContext{
		ID:             opts.CallerID,
		ReplyTo:        opts.ReplyTo,
		Ordered:        opts.Ordered,
		VariableReturn: opts.VariableReturn,
	}
	if caller.ID == "" {
		caller.ID = uuid.NewString()
	}

	out, dispatchErr := c.DispatchExecutionUseCase().Execute(ctx, usecase.DispatchExecutionInput{
		Bundle: bundle,
		Caller: caller,
	})
	if out == nil {
		return dispatchErr
	}
	reply := out.Reply
	reply.CallerID = caller.ID

	if reply.Pending && opts.Wait {
		if caller.ReplyIsHTTP() {
			return fmt.Errorf("--wait needs a reply queue directory, not %s", caller.ReplyTo)
		}
		dir := caller.ReplyTo
		if dir == "" {
			dir = domain.RepliesDir(c.Config.DataDir, caller.ID)
		}
		waitCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
		var err error
		reply, err = ipc.NewReplyQueue(dir).WaitFor(waitCtx, reply.RequestCode)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return fmt.Errorf("no result for request code %d within %s", out.Reply.RequestCode, opts.Timeout)
			}
			return err
		}
	}

	if err := writeJSON(w, reply); err != nil {
		return err
	}
	if !reply.Succeeded() && !reply.Pending {
		if dispatchErr != nil {
			return dispatchErr
		}
		return errActionFailed
	}
	return nil
}

// readInput reads the file named by args[0], or stdin for "-" or no argument.
func readInput(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", args[0], err)
	}
	return data, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
