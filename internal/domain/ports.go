package domain

import (
	"context"
	"io"
	"time"
)

// StoreInitializer initializes the state store.
type StoreInitializer interface {
	// Initialize creates the store if it doesn't exist.
	Initialize() error
	// IsInitialized reports whether the store exists.
	IsInitialized() bool
}

// RequestCodeSequencer allocates correlation IDs for pending callbacks.
type RequestCodeSequencer interface {
	// NextRequestCode atomically increments and returns the persisted counter.
	// The counter restarts from zero when it would overflow.
	NextRequestCode(ctx context.Context) (int, error)
}

// CallbackRegistry is the correlation table for in-flight executions.
type CallbackRegistry interface {
	// Register stores a pending callback under its request code.
	Register(ctx context.Context, cb PendingCallback) error
	// Take removes and returns the pending callback for a request code.
	// Returns ErrCallbackNotFound if there is none.
	Take(ctx context.Context, requestCode int) (*PendingCallback, error)
	// List returns all pending callbacks ordered by request code.
	List(ctx context.Context) ([]PendingCallback, error)
}

// CallbackStore combines the sequencer and registry backed by one store.
type CallbackStore interface {
	RequestCodeSequencer
	CallbackRegistry
}

// ExecutionService starts executions for dispatched intents.
type ExecutionService interface {
	// Start hands the intent to the execution service.
	Start(ctx context.Context, intent ExecutionIntent) error
}

// IntentSource yields intents for the execution service to run.
type IntentSource interface {
	// Next blocks until an intent is available or ctx is canceled.
	Next(ctx context.Context) (ExecutionIntent, error)
}

// CallbackSink delivers execution results to the relay.
type CallbackSink interface {
	// Deliver sends the payload to the callback address.
	Deliver(ctx context.Context, addr CallbackAddress, payload CallbackPayload) error
}

// CallbackSource yields callback payloads for the relay.
type CallbackSource interface {
	// Next blocks until a payload is available or ctx is canceled.
	Next(ctx context.Context) (CallbackPayload, error)
}

// HostNotifier delivers finish signals to the automation host.
type HostNotifier interface {
	// Finish signals the caller that the action completed.
	Finish(ctx context.Context, caller CallerContext, reply Reply) error
}

// PathValidator checks request paths on the filesystem.
type PathValidator interface {
	// ValidateExecutable checks path is a regular readable, executable file.
	// Permission problems are ignored when path lies in relaxedDir.
	ValidateExecutable(path, relaxedDir string) error
	// ValidateWorkingDirectory checks path is a readable directory, and
	// writable when writable is set. A missing directory is accepted when
	// path lies in relaxedDir.
	ValidateWorkingDirectory(path, relaxedDir string, writable bool) error
}

// PathFixer repairs permissions and creates directories before execution.
type PathFixer interface {
	// EnsureExecutable adds owner read and execute permission to path.
	EnsureExecutable(path string) error
	// EnsureDirectory creates path and its parents.
	EnsureDirectory(path string) error
}

// CommandExecutor runs external commands.
type CommandExecutor interface {
	// Capture runs the command to completion and returns its separated output.
	// A non-zero exit is reported in CommandOutput, not as an error.
	Capture(ctx context.Context, cmd *ExecCommand) (*CommandOutput, error)
	// ExecuteWithContext runs a command with custom stdout/stderr writers.
	ExecuteWithContext(ctx context.Context, cmd *ExecCommand, stdout, stderr io.Writer) error
}

// SessionManager manages terminal sessions.
type SessionManager interface {
	// Start creates and starts a new session.
	Start(ctx context.Context, opts StartSessionOptions) error
	// Stop terminates a session.
	Stop(sessionName string) error
	// Peek captures the last lines of a session.
	Peek(sessionName string, lines int) (string, error)
	// IsRunning checks if a session is running.
	IsRunning(sessionName string) (bool, error)
}

// Metrics records relay and dispatch outcomes.
type Metrics interface {
	// Dispatched records a dispatch with its outcome label.
	Dispatched(outcome string)
	// Relayed records a relayed result with its outcome label.
	Relayed(outcome string)
	// Pruned records pruned pending callbacks.
	Pruned(n int)
}

// NopMetrics discards all measurements.
type NopMetrics struct{}

// Dispatched does nothing.
func (NopMetrics) Dispatched(string) {}

// Relayed does nothing.
func (NopMetrics) Relayed(string) {}

// Pruned does nothing.
func (NopMetrics) Pruned(int) {}

// Logger writes operational log entries. requestCode 0 logs globally only.
type Logger interface {
	Info(requestCode int, category, msg string)
	Debug(requestCode int, category, msg string)
	Warn(requestCode int, category, msg string)
	Error(requestCode int, category, msg string)
}

// NopLogger discards all log entries.
type NopLogger struct{}

// Info does nothing.
func (NopLogger) Info(int, string, string) {}

// Debug does nothing.
func (NopLogger) Debug(int, string, string) {}

// Warn does nothing.
func (NopLogger) Warn(int, string, string) {}

// Error does nothing.
func (NopLogger) Error(int, string, string) {}

// LoadConfigOptions selects which config sources to merge.
type LoadConfigOptions struct {
	IgnoreSystem bool
	IgnoreUser   bool
}

// ConfigLoader loads configuration.
type ConfigLoader interface {
	// Load returns the merged configuration (user over system over defaults).
	Load() (*Config, error)
	// LoadWithOptions returns the merged configuration skipping ignored sources.
	LoadWithOptions(opts LoadConfigOptions) (*Config, error)
}

// ConfigManager manages configuration files.
type ConfigManager interface {
	// GetUserConfigInfo returns information about the user config file.
	GetUserConfigInfo() ConfigInfo
	// GetSystemConfigInfo returns information about the system config file.
	GetSystemConfigInfo() ConfigInfo
	// InitUserConfig writes the user config file from the template.
	InitUserConfig(cfg *Config) error
}

// Clock provides time operations for testability.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
}

// RealClock implements Clock using the system clock.
type RealClock struct{}

// Now returns the current time.
func (RealClock) Now() time.Time {
	return time.Now()
}
