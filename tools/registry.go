package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	obs "github.com/KamdynS/weather-agents/observability"
)

// Tool defines the function-tool surface offered to a language model.
type Tool interface {
	// Name returns the tool's name for identification
	Name() string

	// Description returns a human-readable description of what the tool does
	Description() string

	// Execute runs the tool with the given JSON input and returns the result
	Execute(ctx context.Context, input string) (string, error)

	// Schema returns the JSON schema for the tool's input
	Schema() map[string]interface{}
}

// Registry manages a collection of tools available to a tool-calling agent
type Registry interface {
	Register(tool Tool) error
	Get(name string) (Tool, bool)
	List() []string
	Execute(ctx context.Context, name string, input string) (string, error)
}

// DefaultRegistry is a simple in-memory tool registry
type DefaultRegistry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates a new DefaultRegistry, optionally pre-populated.
func NewRegistry(ts ...Tool) (*DefaultRegistry, error) {
	r := &DefaultRegistry{tools: make(map[string]Tool)}
	for _, t := range ts {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register implements Registry interface
func (r *DefaultRegistry) Register(tool Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := tool.Name()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %s already registered", name)
	}
	r.tools[name] = tool
	return nil
}

// Get implements Registry interface
func (r *DefaultRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, exists := r.tools[name]
	return tool, exists
}

// List returns tool names sorted alphabetically.
func (r *DefaultRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute implements Registry interface
func (r *DefaultRegistry) Execute(ctx context.Context, name string, input string) (string, error) {
	tool, exists := r.Get(name)
	if !exists {
		return "", fmt.Errorf("tool %s not found", name)
	}

	start := time.Now()
	span, ctx := obs.TracerImpl.StartSpan(ctx, "tool.execute")
	span.SetAttribute(obs.AttrToolName, name)
	defer span.End()

	result, err := tool.Execute(ctx, input)

	labels := map[string]string{"tool_name": name}
	obs.MetricsImpl.RecordLatency(time.Since(start), labels)
	if err != nil {
		obs.MetricsImpl.RecordError("tool_error", labels)
		span.SetStatus(obs.StatusCodeError, err.Error())
		return "", err
	}
	span.SetStatus(obs.StatusCodeOk, "")
	return result, nil
}
