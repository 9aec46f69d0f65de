package tools

import "encoding/json"

// NormalizeDescriptor copies only the fields a ToolDescriptor knows about out
// of an arbitrary provider-shaped tool payload, dropping anything else. This
// is the "unknown provider fields are dropped" rule: a provider's tool-call
// wire format may carry extra vendor-specific keys (cache hints, strict-mode
// flags, provider-internal ids) that internal/agent/toolconv's converters
// read directly from provider responses; when a descriptor instead needs to
// round-trip through the tool plane's own wire format, only Name/Description/
// Schema survive.
func NormalizeDescriptor(raw json.RawMessage) (ToolDescriptor, error) {
	var wire struct {
		Name        string          `json:"name"`
		Description string          `json:"description"`
		Schema      json.RawMessage `json:"schema"`
		// InputSchema is accepted as an alias: some providers (Anthropic)
		// name the parameters field input_schema rather than schema.
		InputSchema json.RawMessage `json:"input_schema"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return ToolDescriptor{}, err
	}
	schema := wire.Schema
	if len(schema) == 0 {
		schema = wire.InputSchema
	}
	return ToolDescriptor{
		Name:        wire.Name,
		Description: wire.Description,
		Schema:      schema,
	}, nil
}

// NormalizeInvocation copies only Tool/Args out of an arbitrary
// provider-shaped tool-call payload (e.g. Anthropic's tool_use block or
// OpenAI's function-call arguments), dropping vendor-specific fields such as
// call ids or cache markers that the caller tracks separately.
func NormalizeInvocation(toolName string, rawArgs json.RawMessage) ToolInvocation {
	return ToolInvocation{Tool: toolName, Args: rawArgs}
}
