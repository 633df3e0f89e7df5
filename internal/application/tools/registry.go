package tools

import (
	"context"
	"fmt"
	"sort"

	"github.com/longregen/counsel/internal/domain"
	"github.com/longregen/counsel/internal/domain/models"
	"github.com/longregen/counsel/internal/ports"
)

// Call is one function call requested by the assistant.
type Call struct {
	ID           string
	Name         string
	Args         map[string]any
	Conversation *models.Conversation
}

// Effect is what a handler did. Conversation, when set, is the stored state
// after the handler ran.
type Effect struct {
	Result       map[string]any
	Conversation *models.Conversation
	Transitioned bool
	Feedback     *models.FeedbackPrompt
}

// Handler executes one tool.
type Handler interface {
	Definition() ports.LLMTool
	Execute(ctx context.Context, call Call) (Effect, error)
}

// Registry maps tool names to handlers.
type Registry struct {
	handlers map[string]Handler
	names    []string
}

func NewRegistry(handlers ...Handler) *Registry {
	r := &Registry{handlers: make(map[string]Handler, len(handlers))}
	for _, h := range handlers {
		r.Register(h)
	}
	return r
}

// Register adds h, replacing any handler with the same name.
func (r *Registry) Register(h Handler) {
	name := h.Definition().Name
	if _, exists := r.handlers[name]; !exists {
		r.names = append(r.names, name)
		sort.Strings(r.names)
	}
	r.handlers[name] = h
}

// Definitions lists every tool, sorted by name.
func (r *Registry) Definitions() []ports.LLMTool {
	defs := make([]ports.LLMTool, 0, len(r.names))
	for _, name := range r.names {
		defs = append(defs, r.handlers[name].Definition())
	}
	return defs
}

func (r *Registry) Has(name string) bool {
	_, ok := r.handlers[name]
	return ok
}

// Dispatch runs the handler registered for call.Name.
func (r *Registry) Dispatch(ctx context.Context, call Call) (Effect, error) {
	h, ok := r.handlers[call.Name]
	if !ok {
		return Effect{}, domain.NewDomainError(domain.ErrToolNotFound, fmt.Sprintf("unknown tool %q", call.Name))
	}
	if call.Args == nil {
		call.Args = map[string]any{}
	}
	return h.Execute(ctx, call)
}
