// Package tools implements the dispatch table between model tool calls and
// world mutations. Each handler validates its preconditions against current
// world state and returns a structured outcome; precondition violations are
// outcomes, not errors. Only storage-layer faults surface as Go errors.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"tavern/internal/types"
	"tavern/internal/world"
)

// Outcome is what a tool hands back to the conversation: exactly one of
// Result or Error is set.
type Outcome struct {
	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// IsError reports whether the outcome is an error result.
func (o Outcome) IsError() bool {
	return o.Error != ""
}

// Message renders the outcome as a conversation message for the follow-up
// generation call.
func (o Outcome) Message(call types.ToolCall) types.Message {
	payload, err := json.Marshal(o)
	if err != nil {
		payload = []byte(fmt.Sprintf(`{"error":%q}`, err.Error()))
	}
	name := string(call.Name)
	if name == "" {
		name = call.RawName
	}
	return types.Message{
		Role:    types.RoleSystem,
		Content: fmt.Sprintf("[tool %s] %s", name, payload),
	}
}

// Resultf builds a success outcome.
func Resultf(format string, args ...any) Outcome {
	return Outcome{Result: fmt.Sprintf(format, args...)}
}

// Errorf builds an error outcome.
func Errorf(format string, args ...any) Outcome {
	return Outcome{Error: fmt.Sprintf(format, args...)}
}

// HandlerFunc executes one tool call for an avatar. The returned error is
// reserved for storage faults; everything expected is an Outcome.
type HandlerFunc func(ctx context.Context, avatar *world.Avatar, args map[string]any) (Outcome, error)

// Tool pairs a handler with the schema advertised to the model.
type Tool struct {
	Name        types.ToolName
	Description string
	InputSchema map[string]any
	Handler     HandlerFunc
}

// Definition converts the tool into the backend wire shape.
func (t *Tool) Definition() types.ToolDefinition {
	return types.ToolDefinition{
		Name:        string(t.Name),
		Description: t.Description,
		InputSchema: t.InputSchema,
	}
}

func stringArg(args map[string]any, key string) (string, bool) {
	v, ok := args[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}
