package agent

import (
	"fmt"

	"github.com/nexus-ral/nexus/pkg/models"
)

// delegationFamilyTools names the tools whose completion triggers the
// cosmetic delegation follow-up reminder. Hardcoded rather than imported
// from internal/multiagent: that package imports agent, so the reverse
// import would cycle.
var delegationFamilyTools = map[string]bool{
	"delegate":          true,
	"delegate_phase":    true,
	"delegate_external": true,
	"delegate_followup": true,
}

// delegationFollowupReminder inspects the just-completed step's tool calls
// and, if the LAST one was a delegation-family tool that returned a
// non-error, non-empty result, returns a reminder message the model may use
// to ask delegate_followup for clarification. The message is cosmetic only:
// it never changes control flow, and ok is false whenever no reminder is
// warranted.
func delegationFollowupReminder(toolCalls []models.ToolCall, results []models.ToolResult) (CompletionMessage, bool) {
	if len(toolCalls) == 0 {
		return CompletionMessage{}, false
	}
	last := toolCalls[len(toolCalls)-1]
	if !delegationFamilyTools[last.Name] {
		return CompletionMessage{}, false
	}

	var result *models.ToolResult
	for i := range results {
		if results[i].ToolCallID == last.ID {
			result = &results[i]
			break
		}
	}
	if result == nil || result.IsError || result.Content == "" {
		return CompletionMessage{}, false
	}

	return CompletionMessage{
		Role:    "assistant",
		Content: fmt.Sprintf("Noted: the %s call returned a response. Call delegate_followup if you need clarification before continuing.", last.Name),
	}, true
}
