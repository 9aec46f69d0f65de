package agent

import (
	"context"

	"github.com/nexus-ral/nexus/internal/observability"
	"github.com/nexus-ral/nexus/pkg/models"
	"go.opentelemetry.io/otel/trace"
)

// removedMessage records one message dropped by SanitizeMessages, for the
// structured log line and the matching telemetry span event.
type removedMessage struct {
	Index int    `json:"index"`
	Role  string `json:"role"`
}

// sanitizeFix names the kind of fix applied, matching the log/telemetry
// vocabulary in the recording log format.
type sanitizeFix string

const (
	fixTrailingAssistantStripped sanitizeFix = "trailing-assistant-stripped"
	fixEmptyMessageStripped      sanitizeFix = "empty-message-stripped"
)

// SanitizeMessages rewrites a prompt before it reaches a provider:
//  1. strips trailing assistant messages (while the last message is
//     role=assistant, drop it);
//  2. strips messages with empty content for role in {user, assistant} --
//     system messages are never stripped even when empty, and tool
//     messages are never stripped.
//
// If no fix is needed the input slice is returned unchanged by reference
// (identity preserved, S2) so a caller comparing pointers sees no rewrite
// happened. Each applied fix is recorded as one structured log line and one
// telemetry span event named "message-sanitizer.fix-applied".
func SanitizeMessages(ctx context.Context, logger *observability.Logger, model, callType string, messages []*models.Message) []*models.Message {
	fixed, removed := sanitize(messages)
	if len(removed) == 0 {
		return messages
	}

	logSanitizerFix(ctx, logger, model, callType, len(messages), len(fixed), removed)
	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.AddEvent("message-sanitizer.fix-applied")
	}
	return fixed
}

func sanitize(messages []*models.Message) ([]*models.Message, []removedMessage) {
	end := len(messages)
	var removed []removedMessage
	for end > 0 && messages[end-1] != nil && messages[end-1].Role == models.RoleAssistant {
		removed = append(removed, removedMessage{Index: end - 1, Role: string(models.RoleAssistant)})
		end--
	}

	out := make([]*models.Message, 0, end)
	for i := 0; i < end; i++ {
		m := messages[i]
		if m == nil {
			continue
		}
		if (m.Role == models.RoleUser || m.Role == models.RoleAssistant) && m.IsEmpty() {
			removed = append(removed, removedMessage{Index: i, Role: string(m.Role)})
			continue
		}
		out = append(out, m)
	}

	if len(removed) == 0 {
		return messages, nil
	}
	return out, removed
}

func logSanitizerFix(ctx context.Context, logger *observability.Logger, model, callType string, originalCount, fixedCount int, removed []removedMessage) {
	if logger == nil {
		return
	}
	fix := fixEmptyMessageStripped
	if len(removed) > 0 && removed[0].Role == string(models.RoleAssistant) && removed[0].Index == originalCount-1 {
		fix = fixTrailingAssistantStripped
	}
	logger.Warn(ctx, "message sanitizer applied a fix",
		"type", "message-sanitizer",
		"fix", string(fix),
		"model", model,
		"callType", callType,
		"original_count", originalCount,
		"fixed_count", fixedCount,
		"removed", removed,
	)
}
