// Package worker runs the claim-execute-finish loop over the task store.
// Each claimed task gets exactly one terminal write: Complete on pipeline
// success, Fail on backend or storage faults.
package worker

import (
	"context"
	"time"

	"tavern/internal/config"
	"tavern/internal/logging"
	"tavern/internal/store"
	"tavern/internal/tools"
	"tavern/internal/types"
)

// Worker polls the task store and processes one task at a time.
type Worker struct {
	store    *store.TaskStore
	chat     types.ChatClient
	registry *tools.Registry

	pollInterval time.Duration
	claimBackoff time.Duration
}

// New builds a worker over the given store, backend, and dispatch table.
func New(ts *store.TaskStore, chat types.ChatClient, registry *tools.Registry, cfg config.QueueConfig) *Worker {
	return &Worker{
		store:        ts,
		chat:         chat,
		registry:     registry,
		pollInterval: cfg.PollIntervalDuration(),
		claimBackoff: cfg.ClaimBackoffDuration(),
	}
}

// Run claims and processes tasks until ctx is cancelled. It returns ctx.Err()
// on shutdown; a task in flight at cancellation finishes its terminal write
// before Run returns.
func (w *Worker) Run(ctx context.Context) error {
	logging.Worker("worker loop started (poll=%v)", w.pollInterval)
	for {
		if err := ctx.Err(); err != nil {
			logging.Worker("worker loop stopped: %v", err)
			return err
		}

		task, err := w.store.ClaimNext(ctx)
		if err != nil {
			logging.Get(logging.CategoryWorker).Error("claim failed: %v", err)
			if !w.sleep(ctx, w.claimBackoff) {
				return ctx.Err()
			}
			continue
		}
		if task == nil {
			if !w.sleep(ctx, w.pollInterval) {
				return ctx.Err()
			}
			continue
		}

		w.process(ctx, task)
	}
}

// process runs one task through the pipeline and writes its terminal state.
// The terminal write deliberately does not use the loop context: a task that
// already produced a response should not be stranded in processing because
// shutdown began mid-generation.
func (w *Worker) process(ctx context.Context, task *store.Task) {
	timer := logging.StartTimer(logging.CategoryWorker, "process "+task.ID)
	defer timer.Stop()

	response, err := w.runPipeline(ctx, task)

	finishCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err != nil {
		logging.Worker("task %s failed: %v", task.ID, err)
		if ferr := w.store.Fail(finishCtx, task.ID, err.Error()); ferr != nil {
			logging.Get(logging.CategoryWorker).Error("fail write for %s: %v", task.ID, ferr)
		}
		return
	}

	if cerr := w.store.Complete(finishCtx, task.ID, response); cerr != nil {
		logging.Get(logging.CategoryWorker).Error("complete write for %s: %v", task.ID, cerr)
		return
	}
	logging.Worker("task %s completed", task.ID)
}

// sleep waits for d or until ctx is cancelled, reporting whether the full
// interval elapsed.
func (w *Worker) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
