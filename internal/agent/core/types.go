package core

import (
	"context"

	"github.com/mohammad-safakhou/ava/internal/agent/chat"
	"github.com/mohammad-safakhou/ava/internal/agent/middleware"
)

// LLMProvider interface defines the contract for LLM providers
type LLMProvider interface {
	// Generate runs a single-prompt completion and returns the text.
	Generate(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, error)

	// Chat runs one conversational model call. The system prompt is passed
	// separately from the thread messages; tools declares what the model
	// may call this turn. The reply may carry tool-call requests.
	Chat(ctx context.Context, system string, msgs []chat.Message, tools []chat.ToolDeclaration, model string, options map[string]interface{}) (chat.Message, error)

	// GetAvailableModels returns the configured model names.
	GetAvailableModels() []string
}

// TurnResult is everything one agent turn hands back to the HTTP layer.
type TurnResult struct {
	// FinalText is the accepted assistant response.
	FinalText string
	// Trace is the full message log of the thread after the turn, in
	// chronological order.
	Trace []chat.Message
	// Events is the ordered middleware activity collected during the turn.
	Events []middleware.Event
}
