package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/runoshun/termux-tasker/internal/domain"
	"github.com/runoshun/termux-tasker/internal/infra/ipc"
	"github.com/runoshun/termux-tasker/internal/testutil"
	"github.com/runoshun/termux-tasker/internal/usecase"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestContainer_RoundTrip(t *testing.T) {
	appConfig := testAppConfig(t)
	c, err := NewWithConfig(appConfig)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	scripts := c.Config.Paths.ScriptsDir
	require.NoError(t, os.MkdirAll(scripts, 0o700))
	// Not executable: the execution service repairs permissions inside the sandbox
	require.NoError(t, os.WriteFile(filepath.Join(scripts, "greet.sh"),
		[]byte("#!/bin/sh\necho \"hello $1\"\necho oops >&2\nexit 4\n"), 0o600))

	replyDir := filepath.Join(t.TempDir(), "replies")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	out, err := c.DispatchExecutionUseCase().Execute(ctx, usecase.DispatchExecutionInput{
		Bundle: domain.Bundle{
			domain.KeyExecutable:  "greet.sh",
			domain.KeyArguments:   "'tasker user'",
			domain.KeyVersionCode: domain.ProtocolVersion,
		},
		Caller: domain.CallerContext{ID: "host", ReplyTo: replyDir, Ordered: true, VariableReturn: true},
	})
	require.NoError(t, err)
	require.True(t, out.Reply.Pending)

	loopCtx, stopLoops := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(loopCtx)
	g.Go(func() error { return c.RunExecd(gctx) })
	g.Go(func() error { return c.RunRelay(gctx) })

	reply, err := ipc.NewReplyQueue(replyDir).WaitFor(ctx, out.Reply.RequestCode)
	stopLoops()
	require.NoError(t, g.Wait())
	require.NoError(t, err)

	assert.Equal(t, domain.ResultCodeOK, reply.ResultCode)
	assert.Equal(t, "hello tasker user\n", reply.Variables[domain.VarStdout])
	assert.Equal(t, "oops\n", reply.Variables[domain.VarStderr])
	assert.Equal(t, "4", reply.Variables[domain.VarResult])

	pending, err := c.Callbacks.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestContainer_RunExecd_OpenSessionDoesNotBlock(t *testing.T) {
	appConfig := testAppConfig(t)
	c, err := NewWithConfig(appConfig)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	// The terminal session never ends on its own
	sessions := testutil.NewMockSessionManager()
	sessions.RunningChecks = 1 << 30
	c.Sessions = sessions

	scripts := c.Config.Paths.ScriptsDir
	require.NoError(t, os.MkdirAll(scripts, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(scripts, "hi.sh"), []byte("#!/bin/sh\necho hi\n"), 0o700))

	replyDir := filepath.Join(t.TempDir(), "replies")
	caller := domain.CallerContext{ID: "host", ReplyTo: replyDir, Ordered: true, VariableReturn: true}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dispatch := c.DispatchExecutionUseCase()
	terminal, err := dispatch.Execute(ctx, usecase.DispatchExecutionInput{
		Bundle: domain.Bundle{
			domain.KeyExecutable:    "hi.sh",
			domain.KeyArguments:     "",
			domain.KeyTerminal:      true,
			domain.KeyWaitForResult: true,
			domain.KeyVersionCode:   domain.ProtocolVersion,
		},
		Caller: caller,
	})
	require.NoError(t, err)
	background, err := dispatch.Execute(ctx, usecase.DispatchExecutionInput{
		Bundle: domain.Bundle{
			domain.KeyExecutable:  "hi.sh",
			domain.KeyArguments:   "",
			domain.KeyVersionCode: domain.ProtocolVersion,
		},
		Caller: caller,
	})
	require.NoError(t, err)

	loopCtx, stopLoops := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(loopCtx)
	g.Go(func() error { return c.RunExecd(gctx) })
	g.Go(func() error { return c.RunRelay(gctx) })

	reply, err := ipc.NewReplyQueue(replyDir).WaitFor(ctx, background.Reply.RequestCode)
	require.NoError(t, err)
	assert.Equal(t, "hi\n", reply.Variables[domain.VarStdout])

	pending, err := c.Callbacks.List(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, terminal.Reply.RequestCode, pending[0].RequestCode)

	stopLoops()
	require.NoError(t, g.Wait())
	assert.True(t, sessions.StopCalled, "open session should be stopped on shutdown")
}

func TestContainer_StartPruner(t *testing.T) {
	t.Run("invalid schedule", func(t *testing.T) {
		appConfig := testAppConfig(t)
		appConfig.Relay.PruneSchedule = "every tuesday"
		c, err := NewWithConfig(appConfig)
		require.NoError(t, err)
		t.Cleanup(func() { _ = c.Close() })

		_, err = c.StartPruner(context.Background())
		assert.ErrorContains(t, err, "prune_schedule")
	})

	t.Run("disabled by zero ttl", func(t *testing.T) {
		appConfig := testAppConfig(t)
		appConfig.Relay.PendingTTL = "0"
		appConfig.Relay.PruneSchedule = "every tuesday"
		c, err := NewWithConfig(appConfig)
		require.NoError(t, err)
		t.Cleanup(func() { _ = c.Close() })

		stop, err := c.StartPruner(context.Background())
		require.NoError(t, err)
		stop()
	})

	t.Run("valid schedule", func(t *testing.T) {
		c, err := NewWithConfig(testAppConfig(t))
		require.NoError(t, err)
		t.Cleanup(func() { _ = c.Close() })

		stop, err := c.StartPruner(context.Background())
		require.NoError(t, err)
		stop()
	})
}
