package tmux

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/runoshun/termux-tasker/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestEnv creates a temporary directory for tmux socket and config.
func setupTestEnv(t *testing.T) (client *Client, dir string) {
	t.Helper()

	if _, err := exec.LookPath("tmux"); err != nil {
		t.Skip("tmux not installed")
	}

	// Short path: unix socket paths are length-limited
	tmpDir, err := os.MkdirTemp("", "tmux-test-*")
	require.NoError(t, err)

	socketPath := filepath.Join(tmpDir, "tmux.sock")
	t.Cleanup(func() {
		// Kill any remaining sessions using this socket
		_ = exec.Command("tmux", "-S", socketPath, "kill-server").Run()
		_ = os.RemoveAll(tmpDir)
	})

	return NewClient(socketPath, filepath.Join(tmpDir, "tmux.conf"), "sh"), tmpDir
}

func sleepCommand() *domain.ExecCommand {
	return domain.NewCommand("sleep", []string{"60"}, "")
}

func TestNewClient(t *testing.T) {
	client := NewClient("/path/to/socket", "/path/to/tmux.conf", "")

	assert.Equal(t, "/path/to/socket", client.socketPath)
	assert.Equal(t, "/path/to/tmux.conf", client.configPath)
	assert.Equal(t, "sh", client.shell)
}

func TestShellQuote(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"", "''"},
		{"a b", "'a b'"},
		{"it's", `'it'\''s'`},
		{"$HOME", "'$HOME'"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ShellQuote(tt.in), tt.in)
	}
}

func TestSessionScript(t *testing.T) {
	cmd := domain.NewCommand("/scripts/run me.sh", []string{"a", "b c"}, "")

	assert.Equal(t, `'/scripts/run me.sh' a 'b c'`, SessionScript(cmd, ""))
	assert.Equal(t, `'/scripts/run me.sh' a 'b c' 2>&1 | tee -a /t/x.log`, SessionScript(cmd, "/t/x.log"))
}

func TestClient_Start_And_IsRunning(t *testing.T) {
	client, dir := setupTestEnv(t)
	sessionName := "test-session"

	// Initially not running
	running, err := client.IsRunning(sessionName)
	require.NoError(t, err)
	assert.False(t, running)

	err = client.Start(context.Background(), domain.StartSessionOptions{
		Name:    sessionName,
		Dir:     dir,
		Command: sleepCommand(),
	})
	require.NoError(t, err)

	running, err = client.IsRunning(sessionName)
	require.NoError(t, err)
	assert.True(t, running)

	// The default config is written on first start
	_, err = os.Stat(client.configPath)
	assert.NoError(t, err)
}

func TestClient_Start_AlreadyRunning(t *testing.T) {
	client, dir := setupTestEnv(t)
	opts := domain.StartSessionOptions{Name: "test-session", Dir: dir, Command: sleepCommand()}

	require.NoError(t, client.Start(context.Background(), opts))
	assert.ErrorIs(t, client.Start(context.Background(), opts), domain.ErrSessionRunning)
}

func TestClient_Start_NoCommand(t *testing.T) {
	client := NewClient("/nonexistent/sock", "/nonexistent/conf", "sh")
	err := client.Start(context.Background(), domain.StartSessionOptions{Name: "x"})
	assert.ErrorIs(t, err, domain.ErrEmptyExecutable)
}

func TestClient_Start_WritesTranscript(t *testing.T) {
	client, dir := setupTestEnv(t)
	transcript := filepath.Join(dir, "transcripts", "run.log")

	err := client.Start(context.Background(), domain.StartSessionOptions{
		Name:       "echo-session",
		Dir:        dir,
		Transcript: transcript,
		Command:    domain.NewCommand("sh", []string{"-c", "echo out; echo err >&2"}, ""),
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		running, err := client.IsRunning("echo-session")
		return err == nil && !running
	}, 5*time.Second, 50*time.Millisecond)

	content, err := os.ReadFile(transcript)
	require.NoError(t, err)
	assert.Contains(t, string(content), "out\n")
	assert.Contains(t, string(content), "err\n")
}

func TestClient_Stop(t *testing.T) {
	client, dir := setupTestEnv(t)
	sessionName := "test-session"

	require.NoError(t, client.Start(context.Background(), domain.StartSessionOptions{
		Name:    sessionName,
		Dir:     dir,
		Command: sleepCommand(),
	}))

	require.NoError(t, client.Stop(sessionName))

	running, err := client.IsRunning(sessionName)
	require.NoError(t, err)
	assert.False(t, running)

	// Stopping again is a no-op
	assert.NoError(t, client.Stop(sessionName))
}

func TestClient_Peek(t *testing.T) {
	client, dir := setupTestEnv(t)
	sessionName := "peek-session"

	_, err := client.Peek(sessionName, 10)
	assert.ErrorIs(t, err, domain.ErrNoSession)

	require.NoError(t, client.Start(context.Background(), domain.StartSessionOptions{
		Name:    sessionName,
		Dir:     dir,
		Command: domain.NewCommand("sh", []string{"-c", "echo peek-marker; sleep 60"}, ""),
	}))

	require.Eventually(t, func() bool {
		out, err := client.Peek(sessionName, 10)
		return err == nil && strings.Contains(out, "peek-marker")
	}, 5*time.Second, 50*time.Millisecond)

	// A non-positive count captures the default history
	out, err := client.Peek(sessionName, 0)
	require.NoError(t, err)
	assert.Contains(t, out, "peek-marker")

	require.NoError(t, client.Stop(sessionName))
	_, err = client.Peek(sessionName, 10)
	assert.ErrorIs(t, err, domain.ErrNoSession)
}
