package multiagent

import (
	"fmt"

	"github.com/nexus-ral/nexus/internal/ral"
	"github.com/nexus-ral/nexus/pkg/models"
)

// sessionIDOf returns session's ID, or "" if session is nil.
func sessionIDOf(session *models.Session) string {
	if session == nil {
		return ""
	}
	return session.ID
}

// sessionConversation adapts a Session's multi-agent metadata to
// ral.Conversation, so the delegate tool family can enforce the todo-list
// precondition and record delegation markers without internal/ral importing
// session types (which would reintroduce the cycle RAL exists to break).
type sessionConversation struct {
	sessionID string
	meta      *SessionMetadata
}

// newSessionConversation returns a ral.Conversation for the given session
// metadata, or a nil interface value when meta is nil, so
// CheckTodosCrossProject's MCP-only bypass (conv == nil) triggers correctly.
func newSessionConversation(sessionID string, meta *SessionMetadata) ral.Conversation {
	if meta == nil {
		return nil
	}
	return &sessionConversation{sessionID: sessionID, meta: meta}
}

func (c *sessionConversation) GetRootEventID() string {
	return c.sessionID
}

func (c *sessionConversation) GetTodos() []string {
	if c.meta == nil {
		return nil
	}
	return c.meta.Todos
}

func (c *sessionConversation) AddDelegationMarker(ralNumber int64) error {
	if c.meta == nil {
		return nil
	}
	marker := fmt.Sprintf("ral:%d", ralNumber)
	combined := ral.CombineNudges(c.meta.Nudges, []string{marker})
	c.meta.Nudges = sortedNudgeSlice(combined)
	return nil
}

// sortedNudgeSlice flattens a nudge set into a deterministic, sorted slice.
func sortedNudgeSlice(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}
