package tools

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"tavern/internal/logging"
	"tavern/internal/types"
	"tavern/internal/world"
)

// Registry holds the dispatch table. It is thread-safe; handlers for the
// five world operations are registered at construction and additional tools
// can be registered at runtime.
type Registry struct {
	mu    sync.RWMutex
	tools map[types.ToolName]*Tool
	world *world.Store
}

// NewRegistry builds a registry over the given world store. The chat client
// is needed by USE, whose side effect speaks through the backend with the
// item's narrower persona.
func NewRegistry(ws *world.Store, chat types.ChatClient) *Registry {
	r := &Registry{
		tools: make(map[types.ToolName]*Tool),
		world: ws,
	}
	for _, tool := range worldTools(ws, chat) {
		r.MustRegister(tool)
	}
	return r
}

// Register adds a tool to the registry.
func (r *Registry) Register(tool *Tool) error {
	if tool.Name == types.ToolUnknown {
		return fmt.Errorf("tool name required")
	}
	if tool.Handler == nil {
		return fmt.Errorf("tool %s has no handler", tool.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[tool.Name]; exists {
		return fmt.Errorf("tool already registered: %s", tool.Name)
	}
	r.tools[tool.Name] = tool
	logging.ToolsDebug("registered tool %s", tool.Name)
	return nil
}

// MustRegister registers a tool and panics on error. For static
// registration at construction time.
func (r *Registry) MustRegister(tool *Tool) {
	if err := r.Register(tool); err != nil {
		panic(fmt.Sprintf("failed to register tool %s: %v", tool.Name, err))
	}
}

// Get returns a tool by name, or nil if not found.
func (r *Registry) Get(name types.ToolName) *Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Definitions returns wire definitions for the named tools, skipping
// anything unregistered.
func (r *Registry) Definitions(names ...types.ToolName) []types.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]types.ToolDefinition, 0, len(names))
	for _, name := range names {
		if tool, ok := r.tools[name]; ok {
			defs = append(defs, tool.Definition())
		}
	}
	return defs
}

// Dispatch executes one tool call on behalf of the named avatar.
//
// An unknown tool name or a precondition violation comes back as an error
// outcome so the conversation can continue; only storage faults return a
// Go error.
func (r *Registry) Dispatch(ctx context.Context, avatarName string, call types.ToolCall) (Outcome, error) {
	start := time.Now()

	tool := r.Get(call.Name)
	if tool == nil {
		raw := call.RawName
		if raw == "" {
			raw = string(call.Name)
		}
		logging.Tools("unknown tool %q requested by %s", raw, avatarName)
		return Errorf("tool not found: %s", raw), nil
	}

	avatar, err := r.world.Avatar(ctx, avatarName)
	if errors.Is(err, world.ErrAvatarNotFound) {
		// An avatar that doesn't exist can't act; that is a precondition,
		// not a storage fault.
		return Errorf("unknown avatar: %s", avatarName), nil
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("resolve avatar %s: %w", avatarName, err)
	}

	outcome, err := tool.Handler(ctx, avatar, call.Args)
	if err != nil {
		return Outcome{}, fmt.Errorf("tool %s: %w", call.Name, err)
	}

	logging.ToolsDebug("tool %s for %s completed in %v (error=%v)",
		call.Name, avatarName, time.Since(start), outcome.IsError())
	return outcome, nil
}
