package usecase

import (
	"context"
	"fmt"

	"github.com/runoshun/termux-tasker/internal/domain"
)

// DeliverResultInput contains a result reported from outside the reference
// execution service.
type DeliverResultInput struct {
	Result  *domain.ExecutionResult
	Address domain.CallbackAddress
	ID      string // Optional ID echoed in the payload
}

// DeliverResultOutput contains the delivered payload.
type DeliverResultOutput struct {
	Payload domain.CallbackPayload
}

// DeliverResult sends an execution result to a callback address.
type DeliverResult struct {
	sink   domain.CallbackSink
	logger domain.Logger
	clock  domain.Clock
}

// NewDeliverResult creates a new DeliverResult use case.
func NewDeliverResult(sink domain.CallbackSink, logger domain.Logger, clock domain.Clock) *DeliverResult {
	return &DeliverResult{
		sink:   sink,
		logger: logger,
		clock:  clock,
	}
}

// Execute delivers the result to the callback address.
func (uc *DeliverResult) Execute(ctx context.Context, in DeliverResultInput) (*DeliverResultOutput, error) {
	code := in.Address.RequestCode
	if code < 0 {
		return nil, fmt.Errorf("%w: negative request code %d", domain.ErrInvalidMessage, code)
	}

	payload := domain.CallbackPayload{
		CreatedAt:   uc.clock.Now(),
		Result:      in.Result,
		ID:          in.ID,
		RequestCode: code,
	}
	if err := payload.Validate(); err != nil {
		return nil, err
	}

	if err := uc.sink.Deliver(ctx, in.Address, payload); err != nil {
		uc.logger.Error(code, "deliver", err.Error())
		return nil, fmt.Errorf("deliver result: %w", err)
	}

	uc.logger.Debug(code, "deliver", fmt.Sprintf("delivered result to %s", in.Address.Queue))
	return &DeliverResultOutput{Payload: payload}, nil
}
