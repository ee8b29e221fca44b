package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/runoshun/termux-tasker/internal/domain"
)

// Dispatch outcome labels for metrics.
const (
	OutcomeOK        = "ok"
	OutcomePending   = "pending"
	OutcomeMalformed = "malformed"
	OutcomePolicy    = "policy"
	OutcomeFileState = "file_state"
	OutcomeFailed    = "failed"
)

// DispatchPolicy holds the settings the dispatcher enforces.
type DispatchPolicy struct {
	CallbackQueue     string       // Callback address handed to the execution service
	Paths             domain.Paths // Roots for path resolution
	AllowExternalApps bool         // Allow executables outside the scripts directory
}

// DispatchExecutionInput contains the parameters for dispatching a request.
type DispatchExecutionInput struct {
	Bundle domain.Bundle        // Inbound bundle from the host
	Caller domain.CallerContext // Who to reply to
}

// DispatchExecutionOutput contains the result of a dispatch.
// On failure Reply still carries the result code for the host.
type DispatchExecutionOutput struct {
	Intent *domain.ExecutionIntent // Started intent, nil on failure
	Reply  domain.Reply            // Synchronous reply for the host
}

// DispatchExecution validates an inbound bundle and hands the resulting
// intent to the execution service.
type DispatchExecution struct {
	store     domain.CallbackStore
	service   domain.ExecutionService
	validator domain.PathValidator
	logger    domain.Logger
	metrics   domain.Metrics
	clock     domain.Clock
	policy    DispatchPolicy
}

// NewDispatchExecution creates a new DispatchExecution use case.
func NewDispatchExecution(
	store domain.CallbackStore,
	service domain.ExecutionService,
	validator domain.PathValidator,
	logger domain.Logger,
	metrics domain.Metrics,
	clock domain.Clock,
	policy DispatchPolicy,
) *DispatchExecution {
	return &DispatchExecution{
		store:     store,
		service:   service,
		validator: validator,
		logger:    logger,
		metrics:   metrics,
		clock:     clock,
		policy:    policy,
	}
}

// Execute dispatches the request by:
// 1. Validating the bundle
// 2. Resolving and checking the executable and working directory
// 3. Registering a pending callback when the caller waits for the result
// 4. Starting the execution service
//
// Every failure is logged and returned once, together with its failure reply.
func (uc *DispatchExecution) Execute(ctx context.Context, in DispatchExecutionInput) (*DispatchExecutionOutput, error) {
	intent, req, err := uc.buildIntent(in.Bundle)
	if err != nil {
		return uc.fail(in.Caller, 0, err)
	}

	requestCode := 0
	waiting := req.WaitForResult && in.Caller.Ordered
	if waiting {
		requestCode, err = uc.store.NextRequestCode(ctx)
		if err != nil {
			return uc.fail(in.Caller, 0, fmt.Errorf("allocate request code: %w", err))
		}
		pending := domain.PendingCallback{
			RequestCode:   requestCode,
			Caller:        in.Caller,
			Executable:    intent.Executable,
			RunInTerminal: req.RunInTerminal,
			CreatedAt:     uc.clock.Now(),
		}
		if err := uc.store.Register(ctx, pending); err != nil {
			return uc.fail(in.Caller, requestCode, fmt.Errorf("register pending callback: %w", err))
		}
		intent.Callback = &domain.CallbackAddress{
			Queue:       uc.policy.CallbackQueue,
			RequestCode: requestCode,
		}
	} else if req.WaitForResult {
		uc.logger.Debug(0, "dispatch", "caller is not ordered, result will not be returned")
	}

	if err := uc.service.Start(ctx, *intent); err != nil {
		if waiting {
			if _, takeErr := uc.store.Take(ctx, requestCode); takeErr != nil && !errors.Is(takeErr, domain.ErrCallbackNotFound) {
				uc.logger.Warn(requestCode, "dispatch", fmt.Sprintf("remove pending callback: %v", takeErr))
			}
		}
		if !errors.Is(err, domain.ErrServiceStart) {
			err = fmt.Errorf("%w: %w", domain.ErrServiceStart, err)
		}
		return uc.fail(in.Caller, requestCode, err)
	}

	uc.logger.Info(requestCode, "dispatch", fmt.Sprintf("started %s %q (background=%t)", intent.ID, intent.Executable, intent.Background))

	if waiting {
		uc.metrics.Dispatched(OutcomePending)
		return &DispatchExecutionOutput{
			Intent: intent,
			Reply: domain.Reply{
				RequestCode: requestCode,
				ResultCode:  domain.ResultCodePending,
				Pending:     true,
			},
		}, nil
	}

	uc.metrics.Dispatched(OutcomeOK)
	reply := domain.Reply{ResultCode: domain.ResultCodeOK}
	if in.Caller.VariableReturn {
		reply.Variables, _ = domain.ImmediateVariables(domain.ResultCodeOK, "")
	}
	return &DispatchExecutionOutput{Intent: intent, Reply: reply}, nil
}

// buildIntent validates the bundle and resolves it into an intent.
func (uc *DispatchExecution) buildIntent(b domain.Bundle) (*domain.ExecutionIntent, *domain.ExecutionRequest, error) {
	if err := domain.ValidateBundle(b); err != nil {
		return nil, nil, err
	}
	req, err := domain.NewExecutionRequest(b)
	if err != nil {
		return nil, nil, err
	}

	paths := uc.policy.Paths
	executable := paths.ResolveExecutable(req.Executable)
	if !uc.policy.AllowExternalApps && !paths.InScriptsDir(executable) {
		return nil, nil, fmt.Errorf("%w: %s is not in %s", domain.ErrExternalPathNotAllowed, executable, paths.ScriptsDir)
	}
	if err := uc.validator.ValidateExecutable(executable, paths.ScriptsDir); err != nil {
		return nil, nil, err
	}

	workDir := paths.ResolveWorkingDirectory(req.WorkingDirectory)
	if err := uc.validator.ValidateWorkingDirectory(workDir, paths.Home, !req.RunInTerminal); err != nil {
		return nil, nil, err
	}

	intent := &domain.ExecutionIntent{
		ID:                       uuid.NewString(),
		Executable:               executable,
		Args:                     domain.ParseArguments(req.Arguments),
		WorkingDirectory:         workDir,
		Background:               !req.RunInTerminal,
		SessionAction:            req.SessionAction,
		BackgroundCustomLogLevel: req.BackgroundCustomLogLevel,
	}
	// Terminal sessions have no stdin to feed
	if intent.Background {
		intent.Stdin = req.Stdin
	}
	return intent, req, nil
}

// fail logs and records err once and builds the failure reply. Variables
// are only attached for callers that accept returned variables.
func (uc *DispatchExecution) fail(caller domain.CallerContext, requestCode int, err error) (*DispatchExecutionOutput, error) {
	code := domain.ResultCodeFor(err)
	uc.logger.Error(requestCode, "dispatch", err.Error())
	uc.metrics.Dispatched(outcomeFor(code))

	reply := domain.Reply{RequestCode: requestCode, ResultCode: code}
	if caller.VariableReturn {
		vars, notes := domain.ImmediateVariables(code, err.Error())
		for _, n := range notes {
			uc.logger.Warn(requestCode, "dispatch", n)
		}
		reply.Variables = vars
	}
	return &DispatchExecutionOutput{Reply: reply}, err
}

func outcomeFor(resultCode int) string {
	switch resultCode {
	case domain.ResultCodeOK:
		return OutcomeOK
	case domain.ResultCodeMalformedRequest:
		return OutcomeMalformed
	case domain.ResultCodePolicyViolation:
		return OutcomePolicy
	case domain.ResultCodeFileState:
		return OutcomeFileState
	default:
		return OutcomeFailed
	}
}
