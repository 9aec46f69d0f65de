package ral

import "errors"

// Conversation is the external collaborator the RAL consults for the
// todo-list precondition. The core does not own its persistence; an
// embedding application supplies an implementation.
type Conversation interface {
	GetRootEventID() string
	GetTodos() []string
	AddDelegationMarker(ralNumber int64) error
}

// ErrTodosRequired is the fixed error message enforced on delegate and
// delegate_crossproject. The "todo_write()" mention is part of the message
// on purpose: it is the hint surfaced back to the model.
var ErrTodosRequired = errors.New("Delegation requires a todo list: call todo_write() before delegating")

// CheckTodos enforces the todo-list precondition for the delegate tool: it
// always requires a non-empty todo list (there is no MCP-only bypass for
// same-project delegation).
func CheckTodos(conv Conversation) error {
	if conv == nil || len(conv.GetTodos()) == 0 {
		return ErrTodosRequired
	}
	return nil
}

// CheckTodosCrossProject enforces the same rule for delegate_crossproject,
// EXCEPT that a nil Conversation (MCP-only mode, no local conversation to
// consult) bypasses the precondition entirely. This asymmetry versus
// CheckTodos is intentional: headless callers have no todo list to consult.
func CheckTodosCrossProject(conv Conversation) error {
	if conv == nil {
		return nil
	}
	if len(conv.GetTodos()) == 0 {
		return ErrTodosRequired
	}
	return nil
}

// CombineNudges returns the deduplicated union of inherited and explicit
// nudge sets, per the nudge-propagation invariant (property 5): the result
// is a set, not an ordered list — callers that need stable output should
// sort it themselves (see Delegation.NudgeSlice).
func CombineNudges(inherited, explicit []string) map[string]struct{} {
	out := make(map[string]struct{}, len(inherited)+len(explicit))
	for _, n := range inherited {
		out[n] = struct{}{}
	}
	for _, n := range explicit {
		out[n] = struct{}{}
	}
	return out
}
