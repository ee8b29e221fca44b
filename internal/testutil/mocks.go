// Package testutil provides shared test utilities and mock implementations.
package testutil

import (
	"context"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/runoshun/termux-tasker/internal/domain"
)

// MockClock is a test double for domain.Clock.
type MockClock struct {
	NowTime time.Time
}

// Now returns the configured time.
func (m *MockClock) Now() time.Time {
	return m.NowTime
}

// MockCallbackStore is a test double for domain.CallbackStore.
// Fields are ordered to minimize memory padding.
type MockCallbackStore struct {
	Callbacks   map[int]domain.PendingCallback
	NextCodeErr error
	RegisterErr error
	TakeErr     error
	ListErr     error
	Taken       []int
	LastCode    int
	mu          sync.Mutex
}

// NewMockCallbackStore creates a new MockCallbackStore with initialized maps.
func NewMockCallbackStore() *MockCallbackStore {
	return &MockCallbackStore{
		Callbacks: make(map[int]domain.PendingCallback),
	}
}

// Ensure MockCallbackStore implements domain.CallbackStore interface.
var _ domain.CallbackStore = (*MockCallbackStore)(nil)

// NextRequestCode returns the next code after LastCode.
func (m *MockCallbackStore) NextRequestCode(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.NextCodeErr != nil {
		return 0, m.NextCodeErr
	}
	m.LastCode++
	return m.LastCode, nil
}

// Register stores the callback.
func (m *MockCallbackStore) Register(_ context.Context, cb domain.PendingCallback) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.RegisterErr != nil {
		return m.RegisterErr
	}
	m.Callbacks[cb.RequestCode] = cb
	return nil
}

// Take removes and returns the callback.
func (m *MockCallbackStore) Take(_ context.Context, requestCode int) (*domain.PendingCallback, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.TakeErr != nil {
		return nil, m.TakeErr
	}
	cb, ok := m.Callbacks[requestCode]
	if !ok {
		return nil, fmt.Errorf("%w: %d", domain.ErrCallbackNotFound, requestCode)
	}
	delete(m.Callbacks, requestCode)
	m.Taken = append(m.Taken, requestCode)
	return &cb, nil
}

// List returns all callbacks ordered by request code.
func (m *MockCallbackStore) List(_ context.Context) ([]domain.PendingCallback, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	list := make([]domain.PendingCallback, 0, len(m.Callbacks))
	for _, cb := range m.Callbacks {
		list = append(list, cb)
	}
	slices.SortFunc(list, func(a, b domain.PendingCallback) int {
		return a.RequestCode - b.RequestCode
	})
	return list, nil
}

// MockExecutionService is a test double for domain.ExecutionService.
type MockExecutionService struct {
	StartErr error
	Started  []domain.ExecutionIntent
}

// Ensure MockExecutionService implements domain.ExecutionService interface.
var _ domain.ExecutionService = (*MockExecutionService)(nil)

// Start records the intent and returns the configured error.
func (m *MockExecutionService) Start(_ context.Context, intent domain.ExecutionIntent) error {
	if m.StartErr != nil {
		return m.StartErr
	}
	m.Started = append(m.Started, intent)
	return nil
}

// MockPathValidator is a test double for domain.PathValidator.
// Fields are ordered to minimize memory padding.
type MockPathValidator struct {
	ExecutableErr      error
	WorkingDirErr      error
	ExecutablePath     string
	ExecutableRelaxed  string
	WorkingDirPath     string
	WorkingDirRelaxed  string
	WorkingDirWritable bool
	ExecutableCalled   bool
	WorkingDirCalled   bool
}

// Ensure MockPathValidator implements domain.PathValidator interface.
var _ domain.PathValidator = (*MockPathValidator)(nil)

// ValidateExecutable records the call and returns the configured error.
func (m *MockPathValidator) ValidateExecutable(path, relaxedDir string) error {
	m.ExecutableCalled = true
	m.ExecutablePath = path
	m.ExecutableRelaxed = relaxedDir
	return m.ExecutableErr
}

// ValidateWorkingDirectory records the call and returns the configured error.
func (m *MockPathValidator) ValidateWorkingDirectory(path, relaxedDir string, writable bool) error {
	m.WorkingDirCalled = true
	m.WorkingDirPath = path
	m.WorkingDirRelaxed = relaxedDir
	m.WorkingDirWritable = writable
	return m.WorkingDirErr
}

// MockPathFixer is a test double for domain.PathFixer.
type MockPathFixer struct {
	ExecutableErr error
	DirectoryErr  error
	Executables   []string
	Directories   []string
}

// Ensure MockPathFixer implements domain.PathFixer interface.
var _ domain.PathFixer = (*MockPathFixer)(nil)

// EnsureExecutable records the path.
func (m *MockPathFixer) EnsureExecutable(path string) error {
	m.Executables = append(m.Executables, path)
	return m.ExecutableErr
}

// EnsureDirectory records the path.
func (m *MockPathFixer) EnsureDirectory(path string) error {
	m.Directories = append(m.Directories, path)
	return m.DirectoryErr
}

// MockCommandExecutor is a test double for domain.CommandExecutor.
type MockCommandExecutor struct {
	Output     *domain.CommandOutput
	CaptureErr error
	ExecuteErr error
	Commands   []*domain.ExecCommand
}

// Ensure MockCommandExecutor implements domain.CommandExecutor interface.
var _ domain.CommandExecutor = (*MockCommandExecutor)(nil)

// Capture records the command and returns the configured output.
func (m *MockCommandExecutor) Capture(_ context.Context, cmd *domain.ExecCommand) (*domain.CommandOutput, error) {
	m.Commands = append(m.Commands, cmd)
	if m.CaptureErr != nil {
		return nil, m.CaptureErr
	}
	if m.Output == nil {
		return &domain.CommandOutput{}, nil
	}
	out := *m.Output
	return &out, nil
}

// ExecuteWithContext records the command and writes the configured output.
func (m *MockCommandExecutor) ExecuteWithContext(_ context.Context, cmd *domain.ExecCommand, stdout, stderr io.Writer) error {
	m.Commands = append(m.Commands, cmd)
	if m.Output != nil {
		_, _ = io.WriteString(stdout, m.Output.Stdout)
		_, _ = io.WriteString(stderr, m.Output.Stderr)
	}
	return m.ExecuteErr
}

// MockSessionManager is a test double for domain.SessionManager.
// IsRunning reports true for RunningChecks calls after Start, then false.
// Methods are safe for concurrent use.
// Fields are ordered to minimize memory padding.
type MockSessionManager struct {
	OnStart       func(opts domain.StartSessionOptions)
	IsRunningErr  error
	StartErr      error
	StopErr       error
	PeekErr       error
	PeekOutput    string
	StartOpts     domain.StartSessionOptions
	RunningChecks int
	PeekLines     int
	StartCalled   bool
	StopCalled    bool
	PeekCalled    bool
	mu            sync.Mutex
}

// NewMockSessionManager creates a new MockSessionManager.
func NewMockSessionManager() *MockSessionManager {
	return &MockSessionManager{}
}

// Ensure MockSessionManager implements domain.SessionManager interface.
var _ domain.SessionManager = (*MockSessionManager)(nil)

// Start records the call and returns configured error.
func (m *MockSessionManager) Start(_ context.Context, opts domain.StartSessionOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StartCalled = true
	m.StartOpts = opts
	if m.StartErr != nil {
		return m.StartErr
	}
	if m.OnStart != nil {
		m.OnStart(opts)
	}
	return nil
}

// Stop records the call and returns configured error.
func (m *MockSessionManager) Stop(_ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StopCalled = true
	return m.StopErr
}

// Peek records the call and returns configured output or error.
func (m *MockSessionManager) Peek(_ string, lines int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PeekCalled = true
	m.PeekLines = lines
	if m.PeekErr != nil {
		return "", m.PeekErr
	}
	return m.PeekOutput, nil
}

// IsRunning counts down RunningChecks.
func (m *MockSessionManager) IsRunning(_ string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.IsRunningErr != nil {
		return false, m.IsRunningErr
	}
	if m.RunningChecks > 0 {
		m.RunningChecks--
		return true, nil
	}
	return false, nil
}

// DeliveredCallback is one recorded CallbackSink delivery.
type DeliveredCallback struct {
	Address domain.CallbackAddress
	Payload domain.CallbackPayload
}

// MockCallbackSink is a test double for domain.CallbackSink.
type MockCallbackSink struct {
	DeliverErr error
	Delivered  []DeliveredCallback
}

// Ensure MockCallbackSink implements domain.CallbackSink interface.
var _ domain.CallbackSink = (*MockCallbackSink)(nil)

// Deliver records the payload.
func (m *MockCallbackSink) Deliver(_ context.Context, addr domain.CallbackAddress, payload domain.CallbackPayload) error {
	if m.DeliverErr != nil {
		return m.DeliverErr
	}
	payload.RequestCode = addr.RequestCode
	m.Delivered = append(m.Delivered, DeliveredCallback{Address: addr, Payload: payload})
	return nil
}

// FinishedReply is one recorded HostNotifier call.
type FinishedReply struct {
	Caller domain.CallerContext
	Reply  domain.Reply
}

// MockHostNotifier is a test double for domain.HostNotifier.
type MockHostNotifier struct {
	FinishErr error
	Finished  []FinishedReply
}

// Ensure MockHostNotifier implements domain.HostNotifier interface.
var _ domain.HostNotifier = (*MockHostNotifier)(nil)

// Finish records the reply.
func (m *MockHostNotifier) Finish(_ context.Context, caller domain.CallerContext, reply domain.Reply) error {
	if m.FinishErr != nil {
		return m.FinishErr
	}
	m.Finished = append(m.Finished, FinishedReply{Caller: caller, Reply: reply})
	return nil
}

// MockMetrics is a test double for domain.Metrics.
type MockMetrics struct {
	DispatchedOutcomes []string
	RelayedOutcomes    []string
	PrunedTotal        int
}

// Ensure MockMetrics implements domain.Metrics interface.
var _ domain.Metrics = (*MockMetrics)(nil)

// Dispatched records the outcome.
func (m *MockMetrics) Dispatched(outcome string) {
	m.DispatchedOutcomes = append(m.DispatchedOutcomes, outcome)
}

// Relayed records the outcome.
func (m *MockMetrics) Relayed(outcome string) {
	m.RelayedOutcomes = append(m.RelayedOutcomes, outcome)
}

// Pruned adds n to the total.
func (m *MockMetrics) Pruned(n int) {
	m.PrunedTotal += n
}

// LogEntry is one recorded log call.
type LogEntry struct {
	Level       string
	Category    string
	Msg         string
	RequestCode int
}

// MockLogger is a test double for domain.Logger.
type MockLogger struct {
	Entries []LogEntry
	mu      sync.Mutex
}

// Ensure MockLogger implements domain.Logger interface.
var _ domain.Logger = (*MockLogger)(nil)

func (m *MockLogger) record(level string, requestCode int, category, msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Entries = append(m.Entries, LogEntry{Level: level, RequestCode: requestCode, Category: category, Msg: msg})
}

// Info records an info entry.
func (m *MockLogger) Info(requestCode int, category, msg string) {
	m.record("INFO", requestCode, category, msg)
}

// Debug records a debug entry.
func (m *MockLogger) Debug(requestCode int, category, msg string) {
	m.record("DEBUG", requestCode, category, msg)
}

// Warn records a warning entry.
func (m *MockLogger) Warn(requestCode int, category, msg string) {
	m.record("WARN", requestCode, category, msg)
}

// Error records an error entry.
func (m *MockLogger) Error(requestCode int, category, msg string) {
	m.record("ERROR", requestCode, category, msg)
}

// ByLevel returns the recorded entries of one level.
func (m *MockLogger) ByLevel(level string) []LogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []LogEntry
	for _, e := range m.Entries {
		if e.Level == level {
			out = append(out, e)
		}
	}
	return out
}

// MockConfigManager is a test double for domain.ConfigManager.
type MockConfigManager struct {
	InitErr    error
	InitConfig *domain.Config
	UserInfo   domain.ConfigInfo
	SystemInfo domain.ConfigInfo
	InitCalled bool
}

// Ensure MockConfigManager implements domain.ConfigManager interface.
var _ domain.ConfigManager = (*MockConfigManager)(nil)

// GetUserConfigInfo returns the configured info.
func (m *MockConfigManager) GetUserConfigInfo() domain.ConfigInfo {
	return m.UserInfo
}

// GetSystemConfigInfo returns the configured info.
func (m *MockConfigManager) GetSystemConfigInfo() domain.ConfigInfo {
	return m.SystemInfo
}

// InitUserConfig records the call and returns the configured error.
func (m *MockConfigManager) InitUserConfig(cfg *domain.Config) error {
	m.InitCalled = true
	m.InitConfig = cfg
	return m.InitErr
}

// MockConfigLoader is a test double for domain.ConfigLoader.
type MockConfigLoader struct {
	Config   *domain.Config
	LoadErr  error
	LastOpts domain.LoadConfigOptions
}

// Ensure MockConfigLoader implements domain.ConfigLoader interface.
var _ domain.ConfigLoader = (*MockConfigLoader)(nil)

// Load returns the configured config.
func (m *MockConfigLoader) Load() (*domain.Config, error) {
	return m.LoadWithOptions(domain.LoadConfigOptions{})
}

// LoadWithOptions records opts and returns the configured config.
func (m *MockConfigLoader) LoadWithOptions(opts domain.LoadConfigOptions) (*domain.Config, error) {
	m.LastOpts = opts
	if m.LoadErr != nil {
		return nil, m.LoadErr
	}
	if m.Config == nil {
		return domain.NewDefaultConfig(), nil
	}
	return m.Config, nil
}
