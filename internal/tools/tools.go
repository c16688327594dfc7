// Package tools defines the shared [Tool] type and the Registry used to
// offer function-calling tools to the language model during a call. Each
// sub-package exports a constructor function that returns a slice of [Tool]
// values ready for registration.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/blacklotus-ai/lotusvoice/internal/observe"
	"github.com/blacklotus-ai/lotusvoice/pkg/provider/llm"
)

// Tool represents a callable tool ready for registration.
//
// Each Tool carries its LLM-facing schema ([llm.ToolDefinition]) together
// with the handler function that is invoked when the model calls the tool.
type Tool struct {
	// Definition is the tool's LLM-facing schema including its name,
	// description, and JSON Schema parameter specification.
	Definition llm.ToolDefinition

	// Handler executes the tool with JSON-encoded args and returns a
	// JSON-encoded result string on success, or a descriptive error.
	// Implementations must be safe for concurrent use and must respect
	// context cancellation.
	Handler func(ctx context.Context, args string) (string, error)
}

// Registry holds the tools offered to the model for a call. It is safe for
// concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds tools to the registry. A tool whose name is already
// registered replaces the previous entry.
func (r *Registry) Register(ts ...Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range ts {
		if _, exists := r.tools[t.Definition.Name]; !exists {
			r.order = append(r.order, t.Definition.Name)
		}
		r.tools[t.Definition.Name] = t
	}
}

// Definitions returns the schemas of all registered tools in registration
// order, ready to pass to the model.
func (r *Registry) Definitions() []llm.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]llm.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].Definition)
	}
	return defs
}

// Execute runs the named tool with the given JSON-encoded arguments and
// returns its JSON-encoded result. Failures never abort the call: an unknown
// tool or a handler error comes back as a JSON error object so the model can
// recover conversationally.
func (r *Registry) Execute(ctx context.Context, name, args string) string {
	r.mu.RLock()
	tool, ok := r.tools[name]
	r.mu.RUnlock()

	if !ok {
		observe.DefaultMetrics().RecordToolCall(ctx, name, "unknown", 0)
		return errorResult(fmt.Sprintf("tool %s not available", name))
	}

	start := time.Now()
	result, err := tool.Handler(ctx, args)
	if err != nil {
		observe.DefaultMetrics().RecordToolCall(ctx, name, "error", time.Since(start).Seconds())
		return errorResult(err.Error())
	}
	observe.DefaultMetrics().RecordToolCall(ctx, name, "ok", time.Since(start).Seconds())
	return result
}

// errorResult encodes a failure as a JSON object for the model.
func errorResult(msg string) string {
	out, err := json.Marshal(map[string]string{"error": msg})
	if err != nil {
		return `{"error":"internal error"}`
	}
	return string(out)
}
