package ipc

import (
	"context"
	"fmt"
	"time"

	"github.com/runoshun/termux-tasker/internal/domain"
)

// IntentQueue carries execution intents from the dispatcher to the execution service.
type IntentQueue struct {
	queue *Queue[domain.ExecutionIntent]
}

// Ensure IntentQueue implements the execution service ports.
var (
	_ domain.ExecutionService = (*IntentQueue)(nil)
	_ domain.IntentSource     = (*IntentQueue)(nil)
)

// NewIntentQueue creates an intent queue in dir.
func NewIntentQueue(dir string) *IntentQueue {
	return &IntentQueue{
		queue: NewQueue(dir, func(i domain.ExecutionIntent) error { return i.Validate() }),
	}
}

// Start enqueues the intent for the execution service.
func (q *IntentQueue) Start(ctx context.Context, intent domain.ExecutionIntent) error {
	if _, err := q.queue.Send(ctx, intent); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrServiceStart, err)
	}
	return nil
}

// Next blocks until an intent is available.
func (q *IntentQueue) Next(ctx context.Context) (domain.ExecutionIntent, error) {
	return q.queue.Next(ctx)
}

// CallbackQueue carries execution results to the result relay.
type CallbackQueue struct {
	queue *Queue[domain.CallbackPayload]
}

// Ensure CallbackQueue implements domain.CallbackSource.
var _ domain.CallbackSource = (*CallbackQueue)(nil)

// NewCallbackQueue creates a callback queue in dir.
func NewCallbackQueue(dir string) *CallbackQueue {
	return &CallbackQueue{
		queue: NewQueue(dir, func(p domain.CallbackPayload) error { return p.Validate() }),
	}
}

// Send enqueues a callback payload. CreatedAt is filled when empty.
func (q *CallbackQueue) Send(ctx context.Context, payload domain.CallbackPayload) error {
	if payload.CreatedAt.IsZero() {
		payload.CreatedAt = time.Now().UTC()
	}
	_, err := q.queue.Send(ctx, payload)
	return err
}

// Next blocks until a callback payload is available.
func (q *CallbackQueue) Next(ctx context.Context) (domain.CallbackPayload, error) {
	return q.queue.Next(ctx)
}

// Len returns the number of undelivered callbacks.
func (q *CallbackQueue) Len() (int, error) {
	return q.queue.Len()
}

// ReplyQueue carries finish signals to a host caller.
type ReplyQueue struct {
	queue *Queue[domain.Reply]
}

// NewReplyQueue creates a reply queue in dir.
func NewReplyQueue(dir string) *ReplyQueue {
	return &ReplyQueue{queue: NewQueue[domain.Reply](dir, nil)}
}

// Send enqueues a reply.
func (q *ReplyQueue) Send(ctx context.Context, reply domain.Reply) error {
	_, err := q.queue.Send(ctx, reply)
	return err
}

// WaitFor blocks until the reply for requestCode arrives or ctx is done.
// Replies for other request codes are discarded.
func (q *ReplyQueue) WaitFor(ctx context.Context, requestCode int) (domain.Reply, error) {
	for {
		reply, err := q.queue.Next(ctx)
		if err != nil {
			return domain.Reply{}, err
		}
		if reply.RequestCode == requestCode {
			return reply, nil
		}
	}
}
