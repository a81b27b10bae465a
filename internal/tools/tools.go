package tools

import (
	"context"
	"fmt"
	"sync"

	"github.com/mohammad-safakhou/ava/internal/agent/chat"
)

// Handler executes one tool invocation. Transport-level failures are
// returned as errors so the retry policy can re-run the call; domain
// failures should be encoded in the payload instead.
type Handler func(ctx context.Context, args map[string]interface{}) (string, error)

// Tool pairs a declaration offered to the model with its handler.
type Tool struct {
	Declaration chat.ToolDeclaration
	Handler     Handler
}

// Registry is the static tool declaration source for one service instance.
// Declarations are immutable for the lifetime of a turn.
type Registry struct {
	mu    sync.RWMutex
	order []string
	tools map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

func (r *Registry) Register(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := t.Declaration.Name
	if name == "" {
		return fmt.Errorf("tool declaration missing name")
	}
	if _, ok := r.tools[name]; ok {
		return fmt.Errorf("tool %q already registered", name)
	}
	r.tools[name] = t
	r.order = append(r.order, name)
	return nil
}

// Declarations returns the declared tool set in registration order.
func (r *Registry) Declarations() []chat.ToolDeclaration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]chat.ToolDeclaration, len(r.order))
	for i, name := range r.order {
		out[i] = r.tools[name].Declaration
	}
	return out
}

// Invoke runs the named tool.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("unknown tool %q", name)
	}
	return t.Handler(ctx, args)
}
