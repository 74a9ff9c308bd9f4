package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/kdt-ai/neo-backend/internal/model"
)

// RunState accumulates what one agent run collects across tool calls.
type RunState struct {
	Insights []string
	Entities []model.Entity
}

// ToolHandler executes one tool. The returned value is marshaled to JSON for
// the model; an error becomes an {"error": ...} payload, never a request
// failure.
type ToolHandler func(ctx context.Context, input json.RawMessage, st *RunState) (any, error)

// ToolDef is one catalog entry. The catalog and the dispatcher are two views
// of the same data: Spec() feeds the model, Handler feeds the dispatcher.
type ToolDef struct {
	Name        string
	Description string
	InputSchema map[string]any
	StatusLabel string
	Handler     ToolHandler
}

func (d *ToolDef) Spec() ToolSpec {
	return ToolSpec{Name: d.Name, Description: d.Description, InputSchema: d.InputSchema}
}

// Registry is the fixed tool catalog keyed by name.
type Registry struct {
	order  []*ToolDef
	byName map[string]*ToolDef
}

// NewRegistry builds a Registry from an ordered catalog. Duplicate names are
// a programming error.
func NewRegistry(defs []*ToolDef) *Registry {
	r := &Registry{byName: make(map[string]*ToolDef, len(defs))}
	for _, def := range defs {
		if _, exists := r.byName[def.Name]; exists {
			panic(fmt.Sprintf("agent: duplicate tool %q", def.Name))
		}
		r.order = append(r.order, def)
		r.byName[def.Name] = def
	}
	return r
}

// Specs returns the catalog in declaration order for the model request.
func (r *Registry) Specs() []ToolSpec {
	specs := make([]ToolSpec, len(r.order))
	for i, def := range r.order {
		specs[i] = def.Spec()
	}
	return specs
}

// StatusLabel returns the human-readable label for a tool's streaming event.
func (r *Registry) StatusLabel(name string) string {
	if def, ok := r.byName[name]; ok && def.StatusLabel != "" {
		return def.StatusLabel
	}
	return "Running " + name + "..."
}

// Dispatch executes a tool by name and always returns a JSON string for the
// model. Unknown tools and handler failures become {"error": ...} payloads.
func (r *Registry) Dispatch(ctx context.Context, name string, input json.RawMessage, st *RunState) string {
	def, ok := r.byName[name]
	if !ok {
		return errorJSON(fmt.Sprintf("Unknown tool: %s", name))
	}

	result, err := def.Handler(ctx, input, st)
	if err != nil {
		slog.Warn("[AGENT] tool failed", "tool", name, "error", err)
		return errorJSON(err.Error())
	}

	payload, err := json.Marshal(result)
	if err != nil {
		slog.Warn("[AGENT] tool result not serializable", "tool", name, "error", err)
		return errorJSON("tool result could not be serialized")
	}
	return string(payload)
}

func errorJSON(msg string) string {
	payload, _ := json.Marshal(map[string]string{"error": msg})
	return string(payload)
}
