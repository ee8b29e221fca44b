package domain

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewExecutionRequest(t *testing.T) {
	t.Run("reads all fields", func(t *testing.T) {
		b := Bundle{
			KeyExecutable:               "run.sh",
			KeyArguments:                "a 'b c'",
			KeyWorkingDirectory:         "~/work",
			KeyStdin:                    "input",
			KeySessionAction:            "2",
			KeyBackgroundCustomLogLevel: 3,
			KeyTerminal:                 true,
			KeyVersionCode:              7,
		}
		require.NoError(t, ValidateBundle(b))

		req, err := NewExecutionRequest(b)
		require.NoError(t, err)
		assert.Equal(t, "run.sh", req.Executable)
		assert.Equal(t, "a 'b c'", req.Arguments)
		assert.Equal(t, "~/work", req.WorkingDirectory)
		assert.Equal(t, "input", req.Stdin)
		require.NotNil(t, req.SessionAction)
		assert.Equal(t, SessionActionSwitchWithoutOpen, *req.SessionAction)
		require.NotNil(t, req.BackgroundCustomLogLevel)
		assert.Equal(t, LogLevelVerbose, *req.BackgroundCustomLogLevel)
		assert.True(t, req.RunInTerminal)
		assert.False(t, req.WaitForResult)
		assert.Equal(t, 7, req.ProtocolVersion)
	})

	t.Run("empty optional ints are unset", func(t *testing.T) {
		b := validBundle()
		b[KeySessionAction] = ""
		b[KeyBackgroundCustomLogLevel] = "null"
		req, err := NewExecutionRequest(b)
		require.NoError(t, err)
		assert.Nil(t, req.SessionAction)
		assert.Nil(t, req.BackgroundCustomLogLevel)
	})

	t.Run("invalid session action", func(t *testing.T) {
		b := validBundle()
		b[KeySessionAction] = "7"
		_, err := NewExecutionRequest(b)
		assert.ErrorIs(t, err, ErrInvalidSessionAction)
	})

	t.Run("invalid log level", func(t *testing.T) {
		b := validBundle()
		b[KeyBackgroundCustomLogLevel] = "loud"
		_, err := NewExecutionRequest(b)
		assert.ErrorIs(t, err, ErrInvalidLogLevel)
	})
}

func TestNextRequestCode(t *testing.T) {
	tests := []struct {
		name string
		last int
		want int
	}{
		{"first", DefaultRequestCode, 1},
		{"normal", 41, 42},
		{"before overflow", math.MaxInt32 - 2, math.MaxInt32 - 1},
		{"at overflow", math.MaxInt32 - 1, DefaultRequestCode},
		{"corrupt negative", -7, DefaultRequestCode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NextRequestCode(tt.last))
		})
	}
}

func TestPendingCallback_Expired(t *testing.T) {
	now := mustTime(t, "2026-01-02T00:00:00Z")
	cb := PendingCallback{CreatedAt: mustTime(t, "2026-01-01T00:00:00Z")}

	assert.True(t, cb.Expired(now, 1))
	assert.False(t, cb.Expired(now, 0))
	assert.False(t, cb.Expired(now, 48*time.Hour))
}

func TestCallerContext_ReplyIsHTTP(t *testing.T) {
	assert.True(t, CallerContext{ReplyTo: "http://localhost/x"}.ReplyIsHTTP())
	assert.True(t, CallerContext{ReplyTo: "https://h/x"}.ReplyIsHTTP())
	assert.False(t, CallerContext{ReplyTo: "/tmp/replies"}.ReplyIsHTTP())
}

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	v, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return v
}
