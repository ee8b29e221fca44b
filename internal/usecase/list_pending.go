package usecase

import (
	"context"
	"time"

	"github.com/runoshun/termux-tasker/internal/domain"
)

// ListPendingInput contains the parameters for listing pending callbacks.
type ListPendingInput struct {
	TTL time.Duration // Used to flag expired entries, 0 flags none
}

// PendingSummary is a pending callback with its age.
type PendingSummary struct {
	domain.PendingCallback
	Age     time.Duration
	Expired bool
}

// ListPendingOutput contains the pending callbacks ordered by request code.
type ListPendingOutput struct {
	Callbacks []PendingSummary
}

// ListPending lists callbacks still waiting for a result.
type ListPending struct {
	store domain.CallbackRegistry
	clock domain.Clock
}

// NewListPending creates a new ListPending use case.
func NewListPending(store domain.CallbackRegistry, clock domain.Clock) *ListPending {
	return &ListPending{store: store, clock: clock}
}

// Execute returns the pending callbacks.
func (uc *ListPending) Execute(ctx context.Context, in ListPendingInput) (*ListPendingOutput, error) {
	callbacks, err := uc.store.List(ctx)
	if err != nil {
		return nil, err
	}

	now := uc.clock.Now()
	out := &ListPendingOutput{Callbacks: make([]PendingSummary, 0, len(callbacks))}
	for _, cb := range callbacks {
		out.Callbacks = append(out.Callbacks, PendingSummary{
			PendingCallback: cb,
			Age:             now.Sub(cb.CreatedAt),
			Expired:         cb.Expired(now, in.TTL),
		})
	}
	return out, nil
}
