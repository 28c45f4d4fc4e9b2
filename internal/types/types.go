// Package types provides shared type definitions used across tavern packages.
// This package exists to break import cycles between the store, worker, and
// tools packages. Types here are foundational data structures with no complex
// dependencies.
package types

import "context"

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry in a task's conversation history.
// Histories are append-only during processing; tool round-trips append,
// never rewrite.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ToolDefinition describes a tool that the backend model can invoke.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"` // JSON Schema for parameters
}

// ToolName enumerates the known world operations. Tool calls are a closed
// set; anything the model invents maps to ToolUnknown and is answered with
// an error result rather than aborting the task.
type ToolName string

const (
	ToolMove    ToolName = "MOVE"
	ToolUse     ToolName = "USE"
	ToolSearch  ToolName = "SEARCH"
	ToolTake    ToolName = "TAKE"
	ToolDrop    ToolName = "DROP"
	ToolUnknown ToolName = ""
)

// ParseToolName maps a raw tool name from a model response onto the closed
// set. Returns ToolUnknown for anything unrecognized.
func ParseToolName(raw string) ToolName {
	switch raw {
	case "MOVE":
		return ToolMove
	case "USE":
		return ToolUse
	case "SEARCH":
		return ToolSearch
	case "TAKE":
		return ToolTake
	case "DROP":
		return ToolDrop
	default:
		return ToolUnknown
	}
}

// ToolCall represents a tool invocation requested by the model.
// RawName preserves whatever the model actually sent, for error messages
// when Name is ToolUnknown.
type ToolCall struct {
	ID      string         `json:"id"`
	Name    ToolName       `json:"name"`
	RawName string         `json:"raw_name,omitempty"`
	Args    map[string]any `json:"arguments"`
}

// ChatRequest carries one backend generation call.
type ChatRequest struct {
	Model        string           `json:"model"`
	SystemPrompt string           `json:"system_prompt"`
	Messages     []Message        `json:"messages"`
	Tools        []ToolDefinition `json:"tools,omitempty"`
}

// ChatResponse contains the text response and any tool calls from the model.
// Content may be empty when the model only requested tools.
type ChatResponse struct {
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// HasToolCalls reports whether the model requested any tool invocations.
func (r *ChatResponse) HasToolCalls() bool {
	return len(r.ToolCalls) > 0
}

// ChatClient is the interface the worker and tool handlers use to call the
// model backend.
type ChatClient interface {
	Generate(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}
