// Package agent defines the task handler contract the workflow engine
// dispatches to, the registry binding agent ids to handlers, and the default
// LLM-backed handler.
package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/maestro-ai/maestro/pkg/models"
)

// ErrAgentNotFound is returned when no handler is registered for an agent id.
var ErrAgentNotFound = errors.New("agent not found")

// Task is one unit of work handed to an agent.
type Task struct {
	TaskID        string          `json:"task_id"`
	WorkflowID    string          `json:"workflow_id"`
	PlanID        string          `json:"plan_id"`
	Step          models.PlanStep `json:"step"`
	Attempt       int             `json:"attempt"`
	CostSensitive bool            `json:"cost_sensitive,omitempty"`
}

// Result is the outcome of one task execution.
type Result struct {
	Success       bool              `json:"success"`
	Output        string            `json:"output,omitempty"`
	Artifacts     map[string]string `json:"artifacts,omitempty"`
	MemoryUpdates []string          `json:"memory_updates,omitempty"`
}

// Handler executes one task. Implementations must honor ctx cancellation on
// every blocking call.
type Handler interface {
	Handle(ctx context.Context, task Task) (Result, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, task Task) (Result, error)

// Handle calls the wrapped function.
func (f HandlerFunc) Handle(ctx context.Context, task Task) (Result, error) {
	return f(ctx, task)
}

// Registry binds agent ids to handlers. The workflow engine resolves the
// handler at dispatch time, so bindings can change between workflows.
type Registry struct {
	mu       sync.RWMutex
	handlers map[models.AgentID]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[models.AgentID]Handler)}
}

// Register binds a handler to an agent id, replacing any previous binding.
func (r *Registry) Register(id models.AgentID, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[id] = handler
}

// Resolve returns the handler for an agent id.
func (r *Registry) Resolve(id models.AgentID) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handler, ok := r.handlers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, id)
	}
	return handler, nil
}

// Agents returns the registered agent ids.
func (r *Registry) Agents() []models.AgentID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.AgentID, 0, len(r.handlers))
	for id := range r.handlers {
		out = append(out, id)
	}
	return out
}
