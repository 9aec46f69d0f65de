// Package tools defines the Tool Plane's data model: the descriptor a tool
// registers under, the transient invocation it receives per call, and the
// serializable result envelope every execution returns regardless of outcome.
package tools

import (
	"encoding/json"
	"time"
)

// ErrorKind is the three-way taxonomy every tool failure collapses into.
type ErrorKind string

const (
	// ErrValidation means the input shape was wrong. Never terminates the turn.
	ErrValidation ErrorKind = "validation"
	// ErrExecution means the tool ran but failed (non-zero exit, I/O error,
	// external service rejection). The model may retry.
	ErrExecution ErrorKind = "execution"
	// ErrSystem means an unexpected internal error. Logged at error level.
	ErrSystem ErrorKind = "system"
)

// unknownSentinel is substituted for Field/Tool on deserialize when the
// wire format dropped them (round-trip degradation rule, S3).
const unknownSentinel = "unknown"

// ResultError is the error branch of a ToolResultEnvelope. Field and Tool
// are local diagnostic context only; they are intentionally excluded from
// the wire format (see Deserialize) since downstream consumers of a
// serialized envelope only need Kind and Message to react correctly.
type ResultError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Field   string    `json:"-"`
	Tool    string    `json:"-"`
}

// ToolDescriptor is what a tool registers under: the name and description a
// provider's tool-call wire format needs, plus its JSON Schema parameters.
type ToolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Schema      json.RawMessage `json:"schema"`
}

// ToolInvocation is a single call into the tool plane: which tool, with what
// arguments, scoped to the caller's context.
type ToolInvocation struct {
	Tool string          `json:"tool"`
	Args json.RawMessage `json:"args"`
}

// ToolResultEnvelope is the serializable result of one tool invocation.
// Exactly one of Output/Error is meaningful, selected by Success.
type ToolResultEnvelope struct {
	Success    bool            `json:"success"`
	DurationMs int64           `json:"durationMs"`
	ToolName   string          `json:"toolName"`
	ToolArgs   json.RawMessage `json:"toolArgs,omitempty"`
	Output     string          `json:"output,omitempty"`
	Error      *ResultError    `json:"error,omitempty"`
}

// NewSuccess builds a successful envelope.
func NewSuccess(toolName string, args json.RawMessage, elapsed time.Duration, output string) ToolResultEnvelope {
	return ToolResultEnvelope{
		Success:    true,
		DurationMs: elapsed.Milliseconds(),
		ToolName:   toolName,
		ToolArgs:   args,
		Output:     output,
	}
}

// NewError builds a failed envelope for the given kind and message.
// A missing-required-parameter validation error with an empty field maps to
// the fixed message "Missing required parameter" per the tool-plane contract.
func NewError(toolName string, args json.RawMessage, elapsed time.Duration, kind ErrorKind, message, field string) ToolResultEnvelope {
	if kind == ErrValidation && field == "" && message == "" {
		message = "Missing required parameter"
	}
	return ToolResultEnvelope{
		Success:    false,
		DurationMs: elapsed.Milliseconds(),
		ToolName:   toolName,
		ToolArgs:   args,
		Error: &ResultError{
			Kind:    kind,
			Message: message,
			Field:   field,
			Tool:    toolName,
		},
	}
}

// Serialize marshals the envelope to JSON.
func (e ToolResultEnvelope) Serialize() ([]byte, error) {
	return json.Marshal(e)
}

// Deserialize unmarshals an envelope from JSON. Per the round-trip
// invariant (S3, property 2), any error whose Field or Tool was dropped by
// an intermediate encoding degrades those fields to "unknown" rather than
// leaving them empty, so a round trip through a lossy transport is still
// detectable as "some identity was lost" instead of silently empty.
func Deserialize(data []byte) (ToolResultEnvelope, error) {
	var e ToolResultEnvelope
	if err := json.Unmarshal(data, &e); err != nil {
		return ToolResultEnvelope{}, err
	}
	if e.Error != nil {
		if e.Error.Field == "" {
			e.Error.Field = unknownSentinel
		}
		if e.Error.Tool == "" {
			e.Error.Tool = unknownSentinel
		}
	}
	return e, nil
}
