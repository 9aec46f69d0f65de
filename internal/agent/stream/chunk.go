// Package stream defines the tagged-union Chunk emitted by the LLM Service
// for one inference call, and the channel plumbing that replaces the
// string-keyed event emitter pattern: callers range over a chan Chunk
// instead of registering handlers by event-type string.
package stream

import "encoding/json"

// Kind discriminates a Chunk's payload.
type Kind string

const (
	KindTextDelta          Kind = "text-delta"
	KindReasoningDelta     Kind = "reasoning-delta"
	KindReasoningStart     Kind = "reasoning-start"
	KindReasoningEnd       Kind = "reasoning-end"
	KindToolInputStart     Kind = "tool-input-start"
	KindToolInputDelta     Kind = "tool-input-delta"
	KindToolInputAvailable Kind = "tool-input-available"
	KindToolCall           Kind = "tool-call"
	KindToolResult         Kind = "tool-result"
	KindUsage              Kind = "usage"
	KindError              Kind = "error"
	KindFinish             Kind = "finish"

	// kindChunkTypeChange is synthetic: the Service inserts it whenever a
	// chunk's Kind differs from the previous chunk's Kind, strictly before
	// the first typed chunk of the new run. It is not itself a "type" that
	// can recur consecutively.
	kindChunkTypeChange Kind = "chunk-type-change"
)

// Chunk is one fragment of a streaming model response. Only the fields
// relevant to Kind are populated.
type Chunk struct {
	Kind Kind

	// text-delta / reasoning-delta
	Delta string

	// tool-input-start / tool-input-delta / tool-input-available / tool-call
	CallID       string
	ToolName     string
	InputPartial json.RawMessage // accumulated-so-far for tool-input-delta
	Input        json.RawMessage // final, for tool-call / tool-input-available

	// tool-result
	Result json.RawMessage

	// usage
	Usage Usage

	// error
	Err error

	// finish
	FinishReason string

	// chunk-type-change (populated only when Kind == kindChunkTypeChange)
	From, To Kind
}

// Usage is aggregated LanguageModelUsage across all steps of one inference.
type Usage struct {
	InputTokens       int
	OutputTokens      int
	TotalTokens       int
	CachedInputTokens int
	ReasoningTokens   int
	CostUsd           float64
	ContextWindow     int
}

// Emitter sends Chunks on a channel, inserting the synthetic
// chunk-type-change boundary event whenever the emitted Kind differs from
// the previous one. It is the sole writer of its channel and closes it when
// done; the channel is unbuffered-safe (the caller ranges over it).
type Emitter struct {
	out  chan Chunk
	prev Kind
	have bool
}

// NewEmitter creates an Emitter and returns it along with the receive-only
// channel the caller should range over.
func NewEmitter(buf int) (*Emitter, <-chan Chunk) {
	ch := make(chan Chunk, buf)
	return &Emitter{out: ch}, ch
}

// Emit sends c, first sending a chunk-type-change boundary if c.Kind differs
// from the previously emitted Kind (or this is the first chunk).
func (e *Emitter) Emit(c Chunk) {
	if !e.have || e.prev != c.Kind {
		from := e.prev
		if !e.have {
			from = ""
		}
		e.out <- Chunk{Kind: kindChunkTypeChange, From: from, To: c.Kind}
		e.prev = c.Kind
		e.have = true
	}
	e.out <- c
}

// Close closes the underlying channel. The caller must not Emit after Close.
func (e *Emitter) Close() {
	close(e.out)
}
