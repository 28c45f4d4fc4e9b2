// Package producer is the client-side facade over the task store: enqueue a
// generation request, then poll for its terminal result. Producers never talk
// to the backend or the world directly; the store is the whole interface.
package producer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tavern/internal/config"
	"tavern/internal/logging"
	"tavern/internal/store"
	"tavern/internal/types"
)

// ErrTaskFailed wraps the stored error message of a failed task.
var ErrTaskFailed = errors.New("task failed")

// Producer enqueues tasks and awaits their results.
type Producer struct {
	store *store.TaskStore

	retries       int
	backoff       time.Duration
	awaitInterval time.Duration
}

// New builds a producer over the given store.
func New(ts *store.TaskStore, cfg config.QueueConfig) *Producer {
	retries := cfg.EnqueueRetries
	if retries <= 0 {
		retries = 3
	}
	return &Producer{
		store:         ts,
		retries:       retries,
		backoff:       cfg.EnqueueBackoffDuration(),
		awaitInterval: cfg.AwaitIntervalDuration(),
	}
}

// Request is one generation request to enqueue.
type Request struct {
	Avatar       string
	Model        string
	SystemPrompt string
	Messages     []types.Message
	Tools        []types.ToolDefinition
}

// Enqueue inserts a pending task and returns its ID. Storage errors are
// retried with exponential backoff up to the configured attempt budget; the
// last error is returned when the budget is spent.
func (p *Producer) Enqueue(ctx context.Context, req Request) (string, error) {
	var lastErr error
	for attempt := 0; attempt < p.retries; attempt++ {
		if attempt > 0 {
			delay := p.backoff * (1 << uint(attempt-1))
			logging.ProducerDebug("enqueue attempt %d after %v: %v", attempt+1, delay, lastErr)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		id, err := p.store.Create(ctx, req.Avatar, req.Model, req.SystemPrompt, req.Messages, req.Tools)
		if err == nil {
			logging.Producer("enqueued %s for %s", id, req.Avatar)
			return id, nil
		}
		lastErr = err
	}
	return "", fmt.Errorf("enqueue after %d attempts: %w", p.retries, lastErr)
}

// AwaitResult polls the store until the task reaches a terminal status and
// returns the response. A failed task returns ErrTaskFailed wrapping the
// stored error message. Cancellation of ctx is the only timeout.
func (p *Producer) AwaitResult(ctx context.Context, id string) (string, error) {
	for {
		task, err := p.store.Get(ctx, id)
		if err != nil {
			return "", err
		}
		switch task.Status {
		case store.StatusCompleted:
			return task.Response, nil
		case store.StatusFailed:
			return "", fmt.Errorf("%w: %s", ErrTaskFailed, task.Error)
		}

		select {
		case <-time.After(p.awaitInterval):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// Generate is the one-call convenience path: enqueue and await.
func (p *Producer) Generate(ctx context.Context, req Request) (string, error) {
	id, err := p.Enqueue(ctx, req)
	if err != nil {
		return "", err
	}
	return p.AwaitResult(ctx, id)
}
