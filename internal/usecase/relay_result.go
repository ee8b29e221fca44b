package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/runoshun/termux-tasker/internal/domain"
)

// Relay outcome labels for metrics.
const (
	OutcomeOrphan      = "orphan"
	OutcomeInvalid     = "invalid"
	OutcomeUndelivered = "undelivered"
)

// RelayResultInput contains the callback received from the execution service.
type RelayResultInput struct {
	Payload domain.CallbackPayload
}

// RelayResultOutput contains the reply sent to the host.
type RelayResultOutput struct {
	Callback *domain.PendingCallback // Entry the payload was correlated with
	Reply    domain.Reply            // Finish signal delivered to the host
}

// RelayResult correlates an execution result with its pending callback
// and returns it to the original caller as host variables.
type RelayResult struct {
	store    domain.CallbackRegistry
	notifier domain.HostNotifier
	logger   domain.Logger
	metrics  domain.Metrics
}

// NewRelayResult creates a new RelayResult use case.
func NewRelayResult(
	store domain.CallbackRegistry,
	notifier domain.HostNotifier,
	logger domain.Logger,
	metrics domain.Metrics,
) *RelayResult {
	return &RelayResult{
		store:    store,
		notifier: notifier,
		logger:   logger,
		metrics:  metrics,
	}
}

// Execute relays the result by:
// 1. Checking the payload carries a result
// 2. Removing the pending callback for the request code
// 3. Mapping the error code and building the host variables
// 4. Sending the finish signal to the caller
func (uc *RelayResult) Execute(ctx context.Context, in RelayResultInput) (*RelayResultOutput, error) {
	p := in.Payload
	code := p.RequestCode

	if err := p.Validate(); err != nil {
		uc.logger.Error(code, "relay", fmt.Sprintf("callback %s: %v", p.ID, err))
		uc.metrics.Relayed(OutcomeInvalid)
		return nil, err
	}

	cb, err := uc.store.Take(ctx, code)
	if err != nil {
		uc.logger.Error(code, "relay", fmt.Sprintf("callback %s: %v", p.ID, err))
		if errors.Is(err, domain.ErrCallbackNotFound) {
			uc.metrics.Relayed(OutcomeOrphan)
		} else {
			uc.metrics.Relayed(OutcomeFailed)
		}
		return nil, err
	}

	resultCode, coerced := domain.HostResultCode(p.Result.ErrorCode)
	if coerced {
		uc.logger.Warn(code, "relay", fmt.Sprintf("negative error code %d treated as success", *p.Result.ErrorCode))
	}

	vars, notes := domain.BuildVariables(*p.Result, resultCode, cb.RunInTerminal)
	for _, n := range notes {
		uc.logger.Warn(code, "relay", n)
	}

	reply := domain.Reply{
		Variables:   vars,
		CallerID:    cb.Caller.ID,
		RequestCode: code,
		ResultCode:  resultCode,
	}
	if err := uc.notifier.Finish(ctx, cb.Caller, reply); err != nil {
		uc.logger.Error(code, "relay", fmt.Sprintf("notify caller %s: %v", cb.Caller.ID, err))
		uc.metrics.Relayed(OutcomeUndelivered)
		return nil, fmt.Errorf("notify caller %s: %w", cb.Caller.ID, err)
	}

	uc.logger.Info(code, "relay", fmt.Sprintf("relayed result %d to caller %s", resultCode, cb.Caller.ID))
	if reply.Succeeded() {
		uc.metrics.Relayed(OutcomeOK)
	} else {
		uc.metrics.Relayed(OutcomeFailed)
	}
	return &RelayResultOutput{Callback: cb, Reply: reply}, nil
}
