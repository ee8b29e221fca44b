package ipc_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/runoshun/termux-tasker/internal/domain"
	"github.com/runoshun/termux-tasker/internal/infra/ipc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type message struct {
	Text string `json:"text"`
}

func TestQueue_SendNext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	q := ipc.NewQueue[message](t.TempDir(), nil)

	id1, err := q.Send(ctx, message{Text: "first"})
	require.NoError(t, err)
	id2, err := q.Send(ctx, message{Text: "second"})
	require.NoError(t, err)
	assert.Less(t, id1, id2)

	n, err := q.Len()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got1, err := q.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "first", got1.Text)

	got2, err := q.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "second", got2.Text)

	_, ok, err := q.TryNext()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestQueue_NextWaitsForSend(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	q := ipc.NewQueue[message](t.TempDir(), nil)

	go func() {
		time.Sleep(50 * time.Millisecond)
		_, _ = q.Send(context.Background(), message{Text: "late"})
	}()

	got, err := q.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "late", got.Text)
}

func TestQueue_NextCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	q := ipc.NewQueue[message](t.TempDir(), nil)
	_, err := q.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueue_BadFilesMovedToFailed(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	q := ipc.NewQueue[message](dir, func(m message) error {
		if m.Text == "" {
			return domain.ErrInvalidMessage
		}
		return nil
	})

	require.NoError(t, os.WriteFile(filepath.Join(dir, "00000000000000000001-a.json"), []byte("{broken"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "00000000000000000002-b.json"), []byte(`{"text":""}`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "00000000000000000003-c.json"), []byte(`{"text":"ok"}`), 0o600))

	got, ok, err := q.TryNext()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "ok", got.Text)

	failed, err := os.ReadDir(filepath.Join(dir, "failed"))
	require.NoError(t, err)
	assert.Len(t, failed, 2)
}

func TestQueue_SendValidates(t *testing.T) {
	t.Parallel()

	q := ipc.NewQueue[message](t.TempDir(), func(message) error { return domain.ErrInvalidMessage })
	_, err := q.Send(context.Background(), message{})
	assert.ErrorIs(t, err, domain.ErrInvalidMessage)
}

func TestIntentQueue_StartNext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	q := ipc.NewIntentQueue(t.TempDir())
	intent := domain.ExecutionIntent{
		ID:         "abc",
		Executable: "/scripts/run.sh",
		Args:       []string{"a", "b c"},
		Background: true,
		Callback:   &domain.CallbackAddress{Queue: "/q", RequestCode: 5},
	}
	require.NoError(t, q.Start(ctx, intent))

	got, err := q.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, intent, got)

	err = q.Start(ctx, domain.ExecutionIntent{})
	assert.ErrorIs(t, err, domain.ErrServiceStart)
	assert.ErrorIs(t, err, domain.ErrEmptyExecutable)
}

func TestCallbackQueue_SendNext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	q := ipc.NewCallbackQueue(t.TempDir())
	require.ErrorIs(t, q.Send(ctx, domain.CallbackPayload{RequestCode: 1}), domain.ErrMissingResult)

	require.NoError(t, q.Send(ctx, domain.CallbackPayload{
		RequestCode: 2,
		Result:      &domain.ExecutionResult{Stdout: "out"},
	}))

	got, err := q.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, got.RequestCode)
	assert.Equal(t, "out", got.Result.Stdout)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestReplyQueue_WaitFor(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	q := ipc.NewReplyQueue(t.TempDir())
	require.NoError(t, q.Send(ctx, domain.Reply{RequestCode: 1, ResultCode: domain.ResultCodeFailed}))
	require.NoError(t, q.Send(ctx, domain.Reply{RequestCode: 2, ResultCode: domain.ResultCodeOK}))

	got, err := q.WaitFor(ctx, 2)
	require.NoError(t, err)
	assert.True(t, got.Succeeded())
}
