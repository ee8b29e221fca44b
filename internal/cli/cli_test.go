package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/runoshun/termux-tasker/internal/app"
	"github.com/runoshun/termux-tasker/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	home    string
	scripts string
	c       *app.Container
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()
	home := filepath.Join(root, "home")
	require.NoError(t, os.MkdirAll(home, 0o750))

	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(root, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(root, "data"))
	t.Setenv("PREFIX", filepath.Join(root, "usr"))

	scripts := domain.DefaultScriptsDir(home)
	require.NoError(t, os.MkdirAll(scripts, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(scripts, "hello.sh"), []byte("#!/bin/sh\necho hello\n"), 0o700))

	c, err := app.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	return &testEnv{home: home, scripts: scripts, c: c}
}

func (e *testEnv) run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	root := NewRootCommand(e.c, "test")
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func bundleJSON(t *testing.T, extra map[string]any) string {
	t.Helper()
	b := map[string]any{
		domain.KeyExecutable:  "hello.sh",
		domain.KeyArguments:   "",
		domain.KeyVersionCode: domain.ProtocolVersion,
	}
	for k, v := range extra {
		b[k] = v
	}
	data, err := json.Marshal(b)
	require.NoError(t, err)
	return string(data)
}

func decodeReply(t *testing.T, s string) domain.Reply {
	t.Helper()
	var reply domain.Reply
	require.NoError(t, json.Unmarshal([]byte(s), &reply))
	return reply
}

func TestRootCommand_Help(t *testing.T) {
	root := NewRootCommand(nil, "1.2.3")
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"--help"})

	require.NoError(t, root.Execute())

	help := out.String()
	for _, want := range []string{"Plugin Commands:", "Services:", "State Commands:", "Setup Commands:", "fire", "serve", "prune"} {
		assert.Contains(t, help, want)
	}
}

func TestFireCommand(t *testing.T) {
	t.Run("immediate reply", func(t *testing.T) {
		env := setupEnv(t)

		stdout, _, err := env.run(t, bundleJSON(t, map[string]any{domain.KeyWaitForResult: false}), "fire")
		require.NoError(t, err)

		reply := decodeReply(t, stdout)
		assert.Equal(t, domain.ResultCodeOK, reply.ResultCode)
		assert.False(t, reply.Pending)
		assert.NotEmpty(t, reply.CallerID)
	})

	t.Run("pending reply registers callback", func(t *testing.T) {
		env := setupEnv(t)
		bundle := filepath.Join(t.TempDir(), "bundle.json")
		require.NoError(t, os.WriteFile(bundle, []byte(bundleJSON(t, map[string]any{domain.KeyWaitForResult: true})), 0o600))

		stdout, _, err := env.run(t, "", "fire", "--caller-id", "host-1", bundle)
		require.NoError(t, err)

		reply := decodeReply(t, stdout)
		assert.True(t, reply.Pending)
		assert.Equal(t, domain.ResultCodePending, reply.ResultCode)
		assert.Equal(t, "host-1", reply.CallerID)
		assert.Positive(t, reply.RequestCode)

		stdout, _, err = env.run(t, "", "pending", "--json")
		require.NoError(t, err)
		var pending []map[string]any
		require.NoError(t, json.Unmarshal([]byte(stdout), &pending))
		require.Len(t, pending, 1)
		assert.EqualValues(t, reply.RequestCode, pending[0]["requestCode"])
	})

	t.Run("malformed bundle", func(t *testing.T) {
		env := setupEnv(t)

		stdout, _, err := env.run(t, `{"com.termux.execute.arguments":""}`, "fire")
		require.Error(t, err)

		reply := decodeReply(t, stdout)
		assert.Equal(t, domain.ResultCodeMalformedRequest, reply.ResultCode)
		assert.NotEmpty(t, reply.Variables[domain.VarErrmsg])
	})

	t.Run("missing script", func(t *testing.T) {
		env := setupEnv(t)

		stdout, _, err := env.run(t, bundleJSON(t, map[string]any{domain.KeyExecutable: "missing.sh"}), "fire")
		require.Error(t, err)

		reply := decodeReply(t, stdout)
		assert.Equal(t, domain.ResultCodeFileState, reply.ResultCode)
	})
}

func TestDeliverCommand(t *testing.T) {
	t.Run("requires request code", func(t *testing.T) {
		env := setupEnv(t)

		_, _, err := env.run(t, "", "deliver", "--stdout", "x")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "--request-code")
	})

	t.Run("writes to callback queue", func(t *testing.T) {
		env := setupEnv(t)

		stdout, _, err := env.run(t, "", "deliver", "--request-code", "7", "--stdout", "done", "--exit-code", "0")
		require.NoError(t, err)
		assert.Contains(t, stdout, "Delivered result for request code 7")

		entries, err := os.ReadDir(env.c.Config.CallbacksDir)
		require.NoError(t, err)
		assert.NotEmpty(t, entries)
	})

	t.Run("reads yaml result file", func(t *testing.T) {
		env := setupEnv(t)
		file := filepath.Join(t.TempDir(), "result.yaml")
		require.NoError(t, os.WriteFile(file, []byte("stdout: ok\nstderr: \"\"\nexitCode: 3\n"), 0o600))

		stdout, _, err := env.run(t, "", "deliver", "-r", "12", file)
		require.NoError(t, err)
		assert.Contains(t, stdout, "request code 12")
	})
}

func TestPruneCommand(t *testing.T) {
	env := setupEnv(t)

	_, _, err := env.run(t, bundleJSON(t, map[string]any{domain.KeyWaitForResult: true}), "fire")
	require.NoError(t, err)

	stdout, _, err := env.run(t, "", "prune", "--ttl", "1ns", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Would prune 1, 0 remaining")

	stdout, _, err = env.run(t, "", "prune", "--ttl", "1ns")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Pruned 1, 0 remaining")

	stdout, _, err = env.run(t, "", "pending")
	require.NoError(t, err)
	assert.Contains(t, stdout, "No pending callbacks.")

	_, _, err = env.run(t, "", "prune", "--ttl", "0s")
	assert.Error(t, err)
}

func TestConfigureCommand(t *testing.T) {
	t.Run("valid action prints bundle", func(t *testing.T) {
		env := setupEnv(t)

		stdout, stderr, err := env.run(t, "", "configure", "--executable", "hello.sh", "--arguments", "a b", "--wait")
		require.NoError(t, err)

		var bundle map[string]any
		require.NoError(t, json.Unmarshal([]byte(stdout), &bundle))
		assert.Equal(t, "hello.sh", bundle[domain.KeyExecutable])
		assert.Equal(t, true, bundle[domain.KeyWaitForResult])
		assert.Contains(t, stderr, domain.VarStdout)
	})

	t.Run("invalid session action", func(t *testing.T) {
		env := setupEnv(t)

		_, stderr, err := env.run(t, "", "configure", "--executable", "hello.sh", "--terminal", "--session-action", "9")
		require.Error(t, err)
		assert.Contains(t, stderr, "error:")
	})

	t.Run("writes output file from existing bundle", func(t *testing.T) {
		env := setupEnv(t)
		dir := t.TempDir()
		from := filepath.Join(dir, "in.json")
		require.NoError(t, os.WriteFile(from, []byte(bundleJSON(t, nil)), 0o600))
		out := filepath.Join(dir, "out.json")

		_, _, err := env.run(t, "", "configure", "--from", from, "--arguments", "x", "-o", out)
		require.NoError(t, err)

		data, err := os.ReadFile(out)
		require.NoError(t, err)
		var bundle map[string]any
		require.NoError(t, json.Unmarshal(data, &bundle))
		assert.Equal(t, "hello.sh", bundle[domain.KeyExecutable])
		assert.Equal(t, "x", bundle[domain.KeyArguments])
	})
}

func TestConfigCommands(t *testing.T) {
	env := setupEnv(t)

	stdout, _, err := env.run(t, "", "config", "init")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Created config file:")

	_, _, err = env.run(t, "", "config", "init")
	assert.ErrorIs(t, err, domain.ErrConfigExists)

	stdout, _, err = env.run(t, "", "config", "show")
	require.NoError(t, err)
	assert.Contains(t, stdout, "[Loaded from]")
	assert.Contains(t, stdout, "(not found)")
	assert.Contains(t, stdout, "[Effective Config]")
	assert.Contains(t, stdout, "[policy]")

	stdout, _, err = env.run(t, "", "config", "template")
	require.NoError(t, err)
	assert.Contains(t, stdout, "allow_external_apps")
}
