package worker

import (
	"context"
	"fmt"

	"tavern/internal/logging"
	"tavern/internal/store"
	"tavern/internal/types"
)

// runPipeline executes one generation for a claimed task: a single backend
// call, at most one round of tool dispatch, and a follow-up call that folds
// the tool outcomes back into the conversation. The returned string is the
// final natural-language response.
//
// Tool precondition failures travel inside the conversation as error
// outcomes; only backend and storage faults surface as Go errors, which the
// caller converts into a failed task.
func (w *Worker) runPipeline(ctx context.Context, task *store.Task) (string, error) {
	req := types.ChatRequest{
		Model:        task.Model,
		SystemPrompt: task.SystemPrompt,
		Messages:     task.Messages,
		Tools:        task.Tools,
	}

	resp, err := w.chat.Generate(ctx, req)
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	if !resp.HasToolCalls() {
		return resp.Content, nil
	}

	history := append([]types.Message{}, task.Messages...)
	if resp.Content != "" {
		history = append(history, types.Message{
			Role:    types.RoleAssistant,
			Content: resp.Content,
		})
	}

	for _, call := range resp.ToolCalls {
		outcome, err := w.registry.Dispatch(ctx, task.Avatar, call)
		if err != nil {
			return "", fmt.Errorf("dispatch %s: %w", call.Name, err)
		}
		logging.WorkerDebug("task %s tool %s outcome error=%v",
			task.ID, call.Name, outcome.IsError())
		history = append(history, outcome.Message(call))
	}

	// Follow-up call carries no tool definitions: one round of tools per
	// task. A model that asks for more anyway gets its calls dropped.
	followUp, err := w.chat.Generate(ctx, types.ChatRequest{
		Model:        task.Model,
		SystemPrompt: task.SystemPrompt,
		Messages:     history,
	})
	if err != nil {
		return "", fmt.Errorf("follow-up generate: %w", err)
	}
	if followUp.HasToolCalls() {
		logging.Worker("task %s: ignoring %d tool calls in follow-up response",
			task.ID, len(followUp.ToolCalls))
	}
	return followUp.Content, nil
}
