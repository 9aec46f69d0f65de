package tools

import (
	"context"
	"encoding/json"
	"time"
)

// Executor is the minimal shape a concrete tool must satisfy to be described
// and invoked through the tool plane. internal/agent.Tool already satisfies
// this shape.
type Executor interface {
	Name() string
	Description() string
	Schema() json.RawMessage
	Execute(ctx context.Context, params json.RawMessage) (output string, isError bool, err error)
}

// Registry is the wire-level view of the tool plane: it describes the tools
// an agent can call (for the provider adapters' tool-call payloads) and
// executes invocations into a ToolResultEnvelope regardless of outcome.
//
// internal/agent.ToolRegistry remains the runtime-facing registry used by
// the conversation loop; Registry wraps it (or any Executor-satisfying
// source) for callers that need the wire-format ToolDescriptor/
// ToolResultEnvelope shapes directly, such as the mock test harness and the
// normalize.go provider-schema conversion helpers.
type Registry struct {
	tools map[string]Executor
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Executor)}
}

// Register adds or replaces a tool under its own name.
func (r *Registry) Register(tool Executor) {
	r.tools[tool.Name()] = tool
}

// Describe returns the ToolDescriptor for every registered tool, sorted by
// name for deterministic provider payloads.
func (r *Registry) Describe() []ToolDescriptor {
	out := make([]ToolDescriptor, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, ToolDescriptor{
			Name:        t.Name(),
			Description: t.Description(),
			Schema:      t.Schema(),
		})
	}
	sortDescriptors(out)
	return out
}

// Execute runs the named tool and always returns a ToolResultEnvelope: a
// missing tool or malformed invocation yields a validation-kind envelope
// rather than an error, matching the three-error taxonomy.
func (r *Registry) Execute(ctx context.Context, inv ToolInvocation) ToolResultEnvelope {
	start := time.Now()
	tool, ok := r.tools[inv.Tool]
	if !ok {
		return NewError(inv.Tool, inv.Args, time.Since(start), ErrValidation, "tool not found: "+inv.Tool, "tool")
	}

	output, isError, err := tool.Execute(ctx, inv.Args)
	elapsed := time.Since(start)
	if err != nil {
		return NewError(inv.Tool, inv.Args, elapsed, ErrSystem, err.Error(), "")
	}
	if isError {
		return NewError(inv.Tool, inv.Args, elapsed, ErrExecution, output, "")
	}
	return NewSuccess(inv.Tool, inv.Args, elapsed, output)
}

func sortDescriptors(d []ToolDescriptor) {
	for i := 1; i < len(d); i++ {
		for j := i; j > 0 && d[j].Name < d[j-1].Name; j-- {
			d[j], d[j-1] = d[j-1], d[j]
		}
	}
}
