// Package executor provides command execution functionality.
package executor

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/runoshun/termux-tasker/internal/domain"
)

const waitDelay = 2 * time.Second

// Client implements domain.CommandExecutor interface.
type Client struct{}

// NewClient creates a new command executor client.
func NewClient() *Client {
	return &Client{}
}

// Ensure Client implements domain.CommandExecutor interface.
var _ domain.CommandExecutor = (*Client)(nil)

// Capture runs the command to completion with separate stdout and stderr buffers.
// Only failures to start or wait for the process are returned as errors.
func (c *Client) Capture(ctx context.Context, cmd *domain.ExecCommand) (*domain.CommandOutput, error) {
	var stdout, stderr bytes.Buffer
	err := c.ExecuteWithContext(ctx, cmd, &stdout, &stderr)

	out := &domain.CommandOutput{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, err
		}
		out.ExitCode = exitErr.ExitCode()
	}
	return out, nil
}

// ExecuteWithContext runs a command with context and custom stdout/stderr writers.
func (c *Client) ExecuteWithContext(ctx context.Context, cmd *domain.ExecCommand, stdout, stderr io.Writer) error {
	// #nosec G204 - cmd.Program is a validated request executable
	execCmd := exec.CommandContext(ctx, cmd.Program, cmd.Args...)
	if cmd.Dir != "" {
		execCmd.Dir = cmd.Dir
	}
	if len(cmd.Env) > 0 {
		execCmd.Env = append(os.Environ(), cmd.Env...)
	}
	if cmd.Stdin != "" {
		execCmd.Stdin = strings.NewReader(cmd.Stdin)
	}
	execCmd.Stdout = stdout
	execCmd.Stderr = stderr
	// Children holding the output pipes must not outlive cancellation
	execCmd.WaitDelay = waitDelay
	return execCmd.Run()
}
