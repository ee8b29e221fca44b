// Package tmux provides tmux session management for terminal executions.
package tmux

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/runoshun/termux-tasker/internal/domain"
)

// DefaultPeekLines is the pane history captured when Peek is given no count.
const DefaultPeekLines = 2000

const defaultConfig = `# termux-tasker terminal sessions
set -g status off
set -g escape-time 0
set -g remain-on-exit off
`

// Client manages tmux sessions for terminal executions.
// Fields are ordered to minimize memory padding.
type Client struct {
	socketPath string // Path to the tmux socket
	configPath string // Path to tmux configuration
	shell      string // Interpreter running the session command
}

// NewClient creates a new tmux client.
// socketPath is the path to the tmux socket (typically <data>/tmux.sock).
func NewClient(socketPath, configPath, shell string) *Client {
	if shell == "" {
		shell = "sh"
	}
	return &Client{
		socketPath: socketPath,
		configPath: configPath,
		shell:      shell,
	}
}

// Ensure Client implements domain.SessionManager interface.
var _ domain.SessionManager = (*Client)(nil)

// Start creates and starts a new tmux session running opts.Command.
// When opts.Transcript is set, the combined output is appended to it.
func (c *Client) Start(ctx context.Context, opts domain.StartSessionOptions) error {
	if opts.Command == nil {
		return fmt.Errorf("start session: %w", domain.ErrEmptyExecutable)
	}

	// Check if session already exists
	running, err := c.IsRunning(opts.Name)
	if err != nil {
		return fmt.Errorf("check session: %w", err)
	}
	if running {
		return domain.ErrSessionRunning
	}

	if err := c.ensureConfig(); err != nil {
		return err
	}
	if opts.Transcript != "" {
		if err := os.MkdirAll(filepath.Dir(opts.Transcript), 0o750); err != nil {
			return fmt.Errorf("create transcript dir: %w", err)
		}
	}

	// tmux -S <socket> -f <config> new-session -d -s <name> [-c <dir>] <shell> -c <script>
	args := []string{
		"-S", c.socketPath,
		"-f", c.configPath,
		"new-session",
		"-d",            // Detached
		"-s", opts.Name, // Session name
	}
	if opts.Dir != "" {
		args = append(args, "-c", opts.Dir)
	}
	args = append(args, c.shell, "-c", SessionScript(opts.Command, opts.Transcript))

	cmd := exec.CommandContext(ctx, "tmux", args...)
	cmd.Dir = opts.Dir

	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("start session: %w: %s", err, string(out))
	}

	if opts.Switch {
		// No attached client is not an error
		_ = c.command("switch-client", "-t", opts.Name).Run()
	}

	return nil
}

// SessionScript returns the shell script a session runs for cmd.
func SessionScript(cmd *domain.ExecCommand, transcript string) string {
	parts := make([]string, 0, len(cmd.Args)+1)
	parts = append(parts, ShellQuote(cmd.Program))
	for _, a := range cmd.Args {
		parts = append(parts, ShellQuote(a))
	}
	script := strings.Join(parts, " ")
	if transcript != "" {
		script += " 2>&1 | tee -a " + ShellQuote(transcript)
	}
	return script
}

// ShellQuote quotes s for POSIX shells.
func ShellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n'\"\\$`!*?[]{}()<>|&;#~") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// Stop kills a session. tmux hangs up the pane processes when the session
// goes away. A session that has already ended is not an error.
func (c *Client) Stop(sessionName string) error {
	out, err := c.command("kill-session", "-t", sessionName).CombinedOutput()
	if err == nil {
		return nil
	}
	if running, checkErr := c.IsRunning(sessionName); checkErr == nil && !running {
		return nil
	}
	return fmt.Errorf("stop session %s: %w: %s", sessionName, err, strings.TrimSpace(string(out)))
}

// Peek returns up to lines lines of the session's pane history with wrapped
// lines joined. It fails with domain.ErrNoSession once the session has ended.
func (c *Client) Peek(sessionName string, lines int) (string, error) {
	if lines <= 0 {
		lines = DefaultPeekLines
	}
	out, err := c.command("capture-pane", "-p", "-J", "-t", sessionName, "-S", strconv.Itoa(-lines)).Output()
	if err != nil {
		if running, checkErr := c.IsRunning(sessionName); checkErr == nil && !running {
			return "", domain.ErrNoSession
		}
		return "", fmt.Errorf("capture session %s: %w", sessionName, err)
	}
	return strings.TrimRight(string(out), "\n"), nil
}

// IsRunning reports whether a session exists on the client's socket.
func (c *Client) IsRunning(sessionName string) (bool, error) {
	if err := c.command("has-session", "-t", sessionName).Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// Exit code 1 also covers a server that is not running
			return false, nil
		}
		return false, fmt.Errorf("run tmux: %w", err)
	}
	return true, nil
}

// command builds a tmux invocation against the client's socket.
func (c *Client) command(args ...string) *exec.Cmd {
	return exec.Command("tmux", append([]string{"-S", c.socketPath}, args...)...) //nolint:gosec // session names are sanitized
}

func (c *Client) ensureConfig() error {
	if err := os.MkdirAll(filepath.Dir(c.socketPath), 0o750); err != nil {
		return fmt.Errorf("create tmux socket dir: %w", err)
	}
	if _, err := os.Stat(c.configPath); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(c.configPath), 0o750); err != nil {
		return fmt.Errorf("create tmux config dir: %w", err)
	}
	if err := os.WriteFile(c.configPath, []byte(defaultConfig), 0o600); err != nil {
		return fmt.Errorf("write tmux config: %w", err)
	}
	return nil
}
