package agent

import (
	"errors"
	"testing"

	"github.com/nexus-ral/nexus/internal/agent/stream"
	"github.com/nexus-ral/nexus/pkg/models"
)

func TestResponseChunkToStream_TextDelta(t *testing.T) {
	chunks := responseChunkToStream(&ResponseChunk{Text: "hello"})
	if len(chunks) != 1 || chunks[0].Kind != stream.KindTextDelta || chunks[0].Delta != "hello" {
		t.Fatalf("unexpected chunks: %+v", chunks)
	}
}

func TestResponseChunkToStream_ThinkingLifecycle(t *testing.T) {
	start := responseChunkToStream(&ResponseChunk{ThinkingStart: true})
	if len(start) != 1 || start[0].Kind != stream.KindReasoningStart {
		t.Fatalf("expected reasoning-start, got %+v", start)
	}

	delta := responseChunkToStream(&ResponseChunk{Thinking: "because..."})
	if len(delta) != 1 || delta[0].Kind != stream.KindReasoningDelta || delta[0].Delta != "because..." {
		t.Fatalf("expected reasoning-delta, got %+v", delta)
	}

	end := responseChunkToStream(&ResponseChunk{ThinkingEnd: true})
	if len(end) != 1 || end[0].Kind != stream.KindReasoningEnd {
		t.Fatalf("expected reasoning-end, got %+v", end)
	}
}

func TestResponseChunkToStream_ToolResultAndError(t *testing.T) {
	rc := &ResponseChunk{
		ToolResult: &models.ToolResult{ToolCallID: "call-1", Content: "ok"},
		ToolEvent:  &models.ToolEvent{ToolName: "grep"},
		Error:      errors.New("boom"),
	}
	chunks := responseChunkToStream(rc)

	var sawResult, sawError bool
	for _, c := range chunks {
		switch c.Kind {
		case stream.KindToolResult:
			sawResult = true
			if c.CallID != "call-1" || c.ToolName != "grep" || string(c.Result) != "ok" {
				t.Fatalf("unexpected tool-result chunk: %+v", c)
			}
		case stream.KindError:
			sawError = true
			if c.Err == nil || c.Err.Error() != "boom" {
				t.Fatalf("unexpected error chunk: %+v", c)
			}
		}
	}
	if !sawResult || !sawError {
		t.Fatalf("expected both a tool-result and an error chunk, got %+v", chunks)
	}
}

func TestResponseChunkToStream_Nil(t *testing.T) {
	if chunks := responseChunkToStream(nil); chunks != nil {
		t.Fatalf("expected nil for nil input, got %+v", chunks)
	}
}

func TestEventKind_MapsRuntimeEventTypes(t *testing.T) {
	cases := map[models.RuntimeEventType]stream.Kind{
		models.EventThinkingStart: stream.KindReasoningStart,
		models.EventThinkingEnd:   stream.KindReasoningEnd,
		models.EventToolQueued:    stream.KindToolInputStart,
		models.EventToolStarted:   stream.KindToolInputStart,
		models.EventToolCompleted: stream.KindToolResult,
		models.EventToolFailed:    stream.KindToolResult,
	}
	for in, want := range cases {
		got, ok := eventKind(in)
		if !ok || got != want {
			t.Fatalf("eventKind(%q) = %q, %v; want %q", in, got, ok, want)
		}
	}
	if _, ok := eventKind(models.RuntimeEventType("unknown")); ok {
		t.Fatalf("expected unmapped event type to report ok=false")
	}
}
