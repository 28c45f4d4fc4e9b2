// Package backend adapts the chat model API behind a single Generate call.
// The adapter is constructed explicitly and injected into the worker; there
// is no process-wide client state.
package backend

import (
	"fmt"

	"tavern/internal/config"
	"tavern/internal/types"
)

// New builds a chat client for the configured provider.
func New(cfg config.LLMConfig) (types.ChatClient, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIClient(cfg), nil
	case "gemini":
		return NewGeminiClient(cfg)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
