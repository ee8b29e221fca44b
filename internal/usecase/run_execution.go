package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/runoshun/termux-tasker/internal/domain"
)

// DefaultSessionPollInterval is how often a terminal session is checked for exit.
const DefaultSessionPollInterval = 500 * time.Millisecond

// ExecutionSettings configures the execution service.
type ExecutionSettings struct {
	Paths          domain.Paths  // Roots used to decide which paths may be repaired
	DataDir        string        // Holds terminal transcripts
	MaxOutputBytes int           // Output kept per stream, 0 disables truncation
	PollInterval   time.Duration // Session exit polling (default: DefaultSessionPollInterval)
}

// RunExecutionInput contains the intent taken from the intent queue.
type RunExecutionInput struct {
	Intent domain.ExecutionIntent
}

// RunExecutionOutput contains the outcome of one execution.
type RunExecutionOutput struct {
	Result    domain.ExecutionResult
	Delivered bool // Result was sent to the callback address
}

// RunExecution is the reference execution service. It runs an intent in
// the background or in a terminal session and reports the result to the
// callback address attached by the dispatcher.
type RunExecution struct {
	fixer    domain.PathFixer
	executor domain.CommandExecutor
	sessions domain.SessionManager
	sink     domain.CallbackSink
	logger   domain.Logger
	clock    domain.Clock
	settings ExecutionSettings
}

// NewRunExecution creates a new RunExecution use case.
func NewRunExecution(
	fixer domain.PathFixer,
	executor domain.CommandExecutor,
	sessions domain.SessionManager,
	sink domain.CallbackSink,
	logger domain.Logger,
	clock domain.Clock,
	settings ExecutionSettings,
) *RunExecution {
	if settings.PollInterval <= 0 {
		settings.PollInterval = DefaultSessionPollInterval
	}
	return &RunExecution{
		fixer:    fixer,
		executor: executor,
		sessions: sessions,
		sink:     sink,
		logger:   logger,
		clock:    clock,
		settings: settings,
	}
}

// Execute runs the intent by:
// 1. Repairing executable permissions and creating the working directory
// 2. Running the command in the background or in a terminal session
// 3. Delivering the result when a callback address is attached
//
// Launch failures become a result with ErrCodeLaunchFailed. An error is
// returned only when the intent is invalid, the context ends, or delivery fails.
func (uc *RunExecution) Execute(ctx context.Context, in RunExecutionInput) (*RunExecutionOutput, error) {
	intent := in.Intent
	code := intent.RequestCode()
	if err := intent.Validate(); err != nil {
		return nil, err
	}
	if intent.BackgroundCustomLogLevel != nil {
		uc.logger.Debug(code, "execd", fmt.Sprintf("custom log level %d", *intent.BackgroundCustomLogLevel))
	}

	var result domain.ExecutionResult
	if err := uc.prepare(intent); err != nil {
		result = launchFailure(err)
	} else {
		cmd := domain.NewCommand(intent.Executable, intent.Args, intent.WorkingDirectory)
		var runErr error
		if intent.Background {
			result, runErr = uc.runBackground(ctx, intent, cmd)
		} else {
			result, runErr = uc.runTerminal(ctx, intent, cmd)
		}
		if runErr != nil {
			return nil, runErr
		}
	}

	if result.ErrorCode != nil {
		uc.logger.Error(code, "execd", fmt.Sprintf("%s: %s", intent.Executable, result.ErrorMessage))
	} else {
		uc.logger.Info(code, "execd", fmt.Sprintf("finished %s", intent.Executable))
	}

	out := &RunExecutionOutput{Result: result}
	if intent.Callback == nil {
		return out, nil
	}

	payload := domain.CallbackPayload{
		CreatedAt:   uc.clock.Now(),
		Result:      &result,
		ID:          intent.ID,
		RequestCode: code,
	}
	if err := uc.sink.Deliver(ctx, *intent.Callback, payload); err != nil {
		uc.logger.Error(code, "execd", fmt.Sprintf("deliver result: %v", err))
		return out, fmt.Errorf("deliver result: %w", err)
	}
	out.Delivered = true
	return out, nil
}

// prepare fixes what the dispatcher tolerated inside the sandbox and home.
func (uc *RunExecution) prepare(intent domain.ExecutionIntent) error {
	paths := uc.settings.Paths
	if paths.InScriptsDir(intent.Executable) {
		if err := uc.fixer.EnsureExecutable(intent.Executable); err != nil {
			return fmt.Errorf("fix permissions of %s: %w", intent.Executable, err)
		}
	}
	if wd := intent.WorkingDirectory; wd != "" && paths.InHome(wd) {
		if err := uc.fixer.EnsureDirectory(wd); err != nil {
			return fmt.Errorf("create working directory %s: %w", wd, err)
		}
	}
	return nil
}

func (uc *RunExecution) runBackground(ctx context.Context, intent domain.ExecutionIntent, cmd *domain.ExecCommand) (domain.ExecutionResult, error) {
	cmd.Stdin = intent.Stdin
	output, err := uc.executor.Capture(ctx, cmd)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.ExecutionResult{}, ctxErr
		}
		return launchFailure(err), nil
	}

	limit := uc.settings.MaxOutputBytes
	exitCode := output.ExitCode
	result := domain.ExecutionResult{ExitCode: &exitCode}
	result.Stdout, result.StdoutOriginalLength = domain.TruncateOutput(output.Stdout, limit)
	result.Stderr, result.StderrOriginalLength = domain.TruncateOutput(output.Stderr, limit)
	return result, nil
}

func (uc *RunExecution) runTerminal(ctx context.Context, intent domain.ExecutionIntent, cmd *domain.ExecCommand) (domain.ExecutionResult, error) {
	name := domain.SessionName(intent.ID)
	transcript := domain.TranscriptPath(uc.settings.DataDir, intent.ID)
	action := domain.SessionActionSwitchAndOpen
	if intent.SessionAction != nil {
		action = *intent.SessionAction
	}

	err := uc.sessions.Start(ctx, domain.StartSessionOptions{
		Name:       name,
		Dir:        intent.WorkingDirectory,
		Transcript: transcript,
		Command:    cmd,
		Switch:     action == domain.SessionActionSwitchAndOpen || action == domain.SessionActionSwitchWithoutOpen,
	})
	if err != nil {
		return launchFailure(err), nil
	}
	uc.logger.Info(intent.RequestCode(), "execd", fmt.Sprintf("started session %s", name))

	// Nobody waits for the result of a detached session
	if intent.Callback == nil {
		return domain.ExecutionResult{}, nil
	}

	snapshot, err := uc.waitForExit(ctx, name, transcript)
	if err != nil {
		if ctx.Err() != nil {
			// No one is left to report the session result
			if stopErr := uc.sessions.Stop(name); stopErr != nil {
				uc.logger.Warn(intent.RequestCode(), "execd", stopErr.Error())
			}
		}
		return domain.ExecutionResult{}, err
	}

	content, err := os.ReadFile(transcript)
	switch {
	case errors.Is(err, os.ErrNotExist):
		uc.logger.Warn(intent.RequestCode(), "execd", "transcript missing, using last pane capture")
		content = []byte(snapshot)
	case err != nil:
		return launchFailure(fmt.Errorf("read transcript: %w", err)), nil
	}
	_ = os.Remove(transcript)

	var result domain.ExecutionResult
	result.Stdout, result.StdoutOriginalLength = domain.TruncateOutput(string(content), uc.settings.MaxOutputBytes)
	return result, nil
}

// waitForExit polls the session until it ends. While the transcript file
// is missing the pane is captured on each poll, and the last capture is
// returned as a stand-in for the transcript.
func (uc *RunExecution) waitForExit(ctx context.Context, name, transcript string) (string, error) {
	ticker := time.NewTicker(uc.settings.PollInterval)
	defer ticker.Stop()

	var snapshot string
	for {
		running, err := uc.sessions.IsRunning(name)
		if err != nil {
			return snapshot, fmt.Errorf("check session %s: %w", name, err)
		}
		if !running {
			return snapshot, nil
		}
		if _, statErr := os.Stat(transcript); errors.Is(statErr, os.ErrNotExist) {
			if out, peekErr := uc.sessions.Peek(name, 0); peekErr == nil {
				snapshot = out
			}
		}
		select {
		case <-ctx.Done():
			return snapshot, ctx.Err()
		case <-ticker.C:
		}
	}
}

func launchFailure(err error) domain.ExecutionResult {
	code := domain.ErrCodeLaunchFailed
	return domain.ExecutionResult{ErrorCode: &code, ErrorMessage: err.Error()}
}
