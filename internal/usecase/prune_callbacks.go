package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/runoshun/termux-tasker/internal/domain"
)

// PruneCallbacksInput contains the parameters for pruning.
type PruneCallbacksInput struct {
	TTL    time.Duration // Entries older than this are pruned, 0 disables pruning
	DryRun bool          // Report without removing
}

// PruneCallbacksOutput contains the result of pruning.
type PruneCallbacksOutput struct {
	Pruned    []domain.PendingCallback
	Remaining int
}

// PruneCallbacks removes pending callbacks whose result never arrived.
// Pruned callers are not notified.
type PruneCallbacks struct {
	store   domain.CallbackRegistry
	logger  domain.Logger
	metrics domain.Metrics
	clock   domain.Clock
}

// NewPruneCallbacks creates a new PruneCallbacks use case.
func NewPruneCallbacks(
	store domain.CallbackRegistry,
	logger domain.Logger,
	metrics domain.Metrics,
	clock domain.Clock,
) *PruneCallbacks {
	return &PruneCallbacks{
		store:   store,
		logger:  logger,
		metrics: metrics,
		clock:   clock,
	}
}

// Execute prunes expired pending callbacks.
func (uc *PruneCallbacks) Execute(ctx context.Context, in PruneCallbacksInput) (*PruneCallbacksOutput, error) {
	callbacks, err := uc.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pending callbacks: %w", err)
	}

	now := uc.clock.Now()
	out := &PruneCallbacksOutput{Pruned: []domain.PendingCallback{}}
	for _, cb := range callbacks {
		if !cb.Expired(now, in.TTL) {
			out.Remaining++
			continue
		}
		if in.DryRun {
			out.Pruned = append(out.Pruned, cb)
			continue
		}
		// The result may have been relayed since List
		if _, err := uc.store.Take(ctx, cb.RequestCode); err != nil {
			if errors.Is(err, domain.ErrCallbackNotFound) {
				continue
			}
			return out, fmt.Errorf("remove pending callback %d: %w", cb.RequestCode, err)
		}
		uc.logger.Warn(cb.RequestCode, "prune", fmt.Sprintf("dropped callback for %s created %s",
			cb.Caller.ID, cb.CreatedAt.Format(time.RFC3339)))
		out.Pruned = append(out.Pruned, cb)
	}

	if !in.DryRun && len(out.Pruned) > 0 {
		uc.metrics.Pruned(len(out.Pruned))
		uc.logger.Info(0, "prune", fmt.Sprintf("pruned %d pending callbacks", len(out.Pruned)))
	}
	return out, nil
}
