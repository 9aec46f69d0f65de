package agent

import (
	"context"

	"github.com/nexus-ral/nexus/internal/agent/stream"
	"github.com/nexus-ral/nexus/pkg/models"
)

// StreamChunks runs Process and translates its internal ResponseChunk feed
// into the tagged-union stream.Chunk channel named in the data model: a
// chan-of-Kind instead of the field-grab-bag ResponseChunk a caller would
// otherwise have to switch on by hand. ResponseChunk remains the type the
// run loop itself produces and consumes; this is the public-facing view of
// it.
func (r *Runtime) StreamChunks(ctx context.Context, session *models.Session, msg *models.Message) (<-chan stream.Chunk, error) {
	chunks, err := r.Process(ctx, session, msg)
	if err != nil {
		return nil, err
	}

	emitter, out := stream.NewEmitter(processBufferSize)
	go func() {
		defer emitter.Close()
		for rc := range chunks {
			for _, c := range responseChunkToStream(rc) {
				emitter.Emit(c)
			}
		}
	}()
	return out, nil
}

// responseChunkToStream converts one ResponseChunk into zero or more
// stream.Chunk values: a ResponseChunk can carry more than one concern at
// once (e.g. a tool result alongside an artifact), which the tagged union
// represents as separate chunks.
func responseChunkToStream(rc *ResponseChunk) []stream.Chunk {
	if rc == nil {
		return nil
	}

	var out []stream.Chunk

	switch {
	case rc.ThinkingStart:
		out = append(out, stream.Chunk{Kind: stream.KindReasoningStart})
	case rc.ThinkingEnd:
		out = append(out, stream.Chunk{Kind: stream.KindReasoningEnd})
	case rc.Thinking != "":
		out = append(out, stream.Chunk{Kind: stream.KindReasoningDelta, Delta: rc.Thinking})
	}

	if rc.Text != "" {
		out = append(out, stream.Chunk{Kind: stream.KindTextDelta, Delta: rc.Text})
	}

	if rc.ToolResult != nil {
		out = append(out, stream.Chunk{
			Kind:     stream.KindToolResult,
			CallID:   rc.ToolResult.ToolCallID,
			Result:   toolResultPayload(rc.ToolResult),
			ToolName: toolNameFromEvent(rc.ToolEvent),
		})
	}

	if rc.Event != nil {
		if k, ok := eventKind(rc.Event.Type); ok {
			out = append(out, stream.Chunk{
				Kind:     k,
				CallID:   rc.Event.ToolCallID,
				ToolName: rc.Event.ToolName,
			})
		}
	}

	if rc.Error != nil {
		out = append(out, stream.Chunk{Kind: stream.KindError, Err: rc.Error})
	}

	return out
}

func eventKind(t models.RuntimeEventType) (stream.Kind, bool) {
	switch t {
	case models.EventThinkingStart:
		return stream.KindReasoningStart, true
	case models.EventThinkingEnd:
		return stream.KindReasoningEnd, true
	case models.EventToolQueued, models.EventToolStarted:
		return stream.KindToolInputStart, true
	case models.EventToolCompleted, models.EventToolFailed:
		return stream.KindToolResult, true
	default:
		return "", false
	}
}

func toolNameFromEvent(ev *models.ToolEvent) string {
	if ev == nil {
		return ""
	}
	return ev.ToolName
}

func toolResultPayload(tr *models.ToolResult) []byte {
	if tr == nil {
		return nil
	}
	return []byte(tr.Content)
}
