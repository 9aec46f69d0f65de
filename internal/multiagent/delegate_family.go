package multiagent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/nexus-ral/nexus/internal/agent"
	"github.com/nexus-ral/nexus/internal/ral"
)

// resolveAgentByIdentifier finds an agent by exact ID, case-insensitive
// ID/name, or partial name match, in that order.
func resolveAgentByIdentifier(orch *Orchestrator, identifier string) (*AgentDefinition, bool) {
	identifier = strings.TrimSpace(identifier)
	if a, ok := orch.GetAgent(identifier); ok {
		return a, true
	}
	lower := strings.ToLower(identifier)
	for _, a := range orch.ListAgents() {
		if strings.ToLower(a.ID) == lower || strings.ToLower(a.Name) == lower {
			return a, true
		}
	}
	for _, a := range orch.ListAgents() {
		if strings.Contains(strings.ToLower(a.Name), lower) {
			return a, true
		}
	}
	return nil, false
}

// DelegatePhaseTool delegates the next phase of a multi-phase task to a
// specialist within the same project. Unlike delegate_followup it always
// opens a fresh delegation-ledger entry; unlike delegate_external it never
// bypasses the todo-list precondition.
type DelegatePhaseTool struct {
	supervisor *Supervisor
}

// NewDelegatePhaseTool creates a delegate_phase tool bound to supervisor.
func NewDelegatePhaseTool(supervisor *Supervisor) *DelegatePhaseTool {
	return &DelegatePhaseTool{supervisor: supervisor}
}

func (d *DelegatePhaseTool) Name() string { return "delegate_phase" }

func (d *DelegatePhaseTool) Description() string {
	return `Hand a named phase of the current task to a specialist (e.g. "design", "implementation", "review").

Use this to break a multi-step piece of work into ordered phases, each delegated to the
specialist best suited to it. Requires an active todo list.`
}

func (d *DelegatePhaseTool) Schema() json.RawMessage {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"specialist": map[string]any{
				"type":        "string",
				"description": "The ID or name of the specialist for this phase",
			},
			"phase": map[string]any{
				"type":        "string",
				"description": "Name of the phase being delegated (e.g. design, implementation, review)",
			},
			"task": map[string]any{
				"type":        "string",
				"description": "What the specialist should do during this phase",
			},
			"context": map[string]any{
				"type":        "string",
				"description": "Relevant context from earlier phases",
			},
			"nudges": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Out-of-band follow-up hint IDs to attach to this delegation",
			},
		},
		"required": []string{"specialist", "phase", "task"},
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage("{}")
	}
	return data
}

// DelegatePhaseInput is the input for the delegate_phase tool.
type DelegatePhaseInput struct {
	Specialist string   `json:"specialist"`
	Phase      string   `json:"phase"`
	Task       string   `json:"task"`
	Context    string   `json:"context,omitempty"`
	Nudges     []string `json:"nudges,omitempty"`
}

func (d *DelegatePhaseTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input DelegatePhaseInput
	if err := json.Unmarshal(params, &input); err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("Invalid delegate_phase parameters: %v", err), IsError: true}, nil
	}
	if input.Phase == "" {
		return &agent.ToolResult{Content: "phase is required", IsError: true}, nil
	}

	orch := d.supervisor.orchestrator
	specialist, ok := resolveAgentByIdentifier(orch, input.Specialist)
	if !ok {
		return &agent.ToolResult{Content: fmt.Sprintf("Specialist not found: %s", input.Specialist), IsError: true}, nil
	}
	if !specialist.CanReceiveHandoffs {
		return &agent.ToolResult{Content: fmt.Sprintf("Specialist %s cannot receive delegations", specialist.Name), IsError: true}, nil
	}

	session := SessionFromContext(ctx)
	var meta *SessionMetadata
	if session != nil {
		meta = orch.getSessionMetadata(session)
	}
	conv := newSessionConversation(sessionIDOf(session), meta)
	if err := ral.CheckTodos(conv); err != nil {
		return &agent.ToolResult{Content: err.Error(), IsError: true}, nil
	}

	requesting := CurrentAgentFromContextString(ctx)
	if requesting == "" {
		requesting = d.supervisor.supervisorID
	}

	registry := ral.Default()
	ralNumber := registry.Create(requesting, sessionIDOf(session), "")
	inherited := meta.nudges()
	if err := registry.RegisterExpectation(ralNumber, 1, []string{specialist.ID}, inherited, input.Nudges); err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("Failed to register delegation: %v", err), IsError: true}, nil
	}
	if err := conv.AddDelegationMarker(ralNumber); err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("Failed to record delegation marker: %v", err), IsError: true}, nil
	}
	if session != nil {
		orch.updateSessionMetadata(session, meta)
	}
	nudges := sortedNudgeSlice(ral.CombineNudges(inherited, input.Nudges))

	resultData, err := json.Marshal(map[string]any{
		"handoff_request": &HandoffRequest{
			FromAgentID:    requesting,
			ToAgentID:      specialist.ID,
			Reason:         input.Task,
			ReturnExpected: true,
			RALNumber:      ralNumber,
			Nudges:         nudges,
			Context: &SharedContext{
				Task:    input.Task,
				Summary: input.Context,
				Metadata: map[string]any{
					"phase":         input.Phase,
					"is_delegation": true,
				},
			},
		},
		"target_agent":  specialist.ID,
		"target_name":   specialist.Name,
		"phase":         input.Phase,
		"status":        "delegated",
		"is_delegation": true,
		"ral_number":    ralNumber,
		"nudges":        nudges,
	})
	if err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("Failed to create delegation: %v", err), IsError: true}, nil
	}
	return &agent.ToolResult{Content: string(resultData), IsError: false}, nil
}

// DelegateExternalTool delegates a task to an agent in a different project,
// resolved via the orchestrator's external-project registry. Per the
// todo-list precondition, it bypasses enforcement only when called with no
// conversation attached (MCP-only mode).
type DelegateExternalTool struct {
	orchestrator *Orchestrator
}

// NewDelegateExternalTool creates a delegate_external tool.
func NewDelegateExternalTool(orchestrator *Orchestrator) *DelegateExternalTool {
	return &DelegateExternalTool{orchestrator: orchestrator}
}

func (d *DelegateExternalTool) Name() string { return "delegate_external" }

func (d *DelegateExternalTool) Description() string {
	return `Delegate a task to an agent in a different project.

Provide the target project ID and either a specific agent slug or "any" to let the
target project pick. Use this for cross-project collaboration, not same-project handoffs.`
}

func (d *DelegateExternalTool) Schema() json.RawMessage {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"project_id": map[string]any{
				"type":        "string",
				"description": "The target project's identifier",
			},
			"agent": map[string]any{
				"type":        "string",
				"description": `Agent slug within the target project, or "any"`,
			},
			"task": map[string]any{
				"type":        "string",
				"description": "What the remote agent should do",
			},
			"context": map[string]any{
				"type":        "string",
				"description": "Relevant context to share with the remote agent",
			},
			"nudges": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Out-of-band follow-up hint IDs to attach to this delegation",
			},
		},
		"required": []string{"project_id", "agent", "task"},
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage("{}")
	}
	return data
}

// DelegateExternalInput is the input for the delegate_external tool.
type DelegateExternalInput struct {
	ProjectID string   `json:"project_id"`
	Agent     string   `json:"agent"`
	Task      string   `json:"task"`
	Context   string   `json:"context,omitempty"`
	Nudges    []string `json:"nudges,omitempty"`
}

func (d *DelegateExternalTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input DelegateExternalInput
	if err := json.Unmarshal(params, &input); err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("Invalid delegate_external parameters: %v", err), IsError: true}, nil
	}
	if input.ProjectID == "" {
		return &agent.ToolResult{Content: "project_id is required", IsError: true}, nil
	}

	target, ok := d.orchestrator.ResolveExternalAgent(input.ProjectID, input.Agent)
	if !ok {
		return &agent.ToolResult{Content: fmt.Sprintf("No agent %q found in project %q", input.Agent, input.ProjectID), IsError: true}, nil
	}

	// delegate_crossproject bypasses the todo-list precondition when no
	// conversation is attached (MCP-only mode); same-project delegate never
	// does.
	session := SessionFromContext(ctx)
	var meta *SessionMetadata
	if session != nil {
		meta = d.orchestrator.getSessionMetadata(session)
	}
	conv := newSessionConversation(sessionIDOf(session), meta)
	if err := ral.CheckTodosCrossProject(conv); err != nil {
		return &agent.ToolResult{Content: err.Error(), IsError: true}, nil
	}

	requesting := CurrentAgentFromContextString(ctx)
	if requesting == "" {
		requesting = "unknown"
	}

	registry := ral.Default()
	ralNumber := registry.Create(requesting, sessionIDOf(session), input.ProjectID)
	inherited := meta.nudges()
	if err := registry.RegisterExpectation(ralNumber, 1, []string{target.ID}, inherited, input.Nudges); err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("Failed to register delegation: %v", err), IsError: true}, nil
	}
	if conv != nil {
		if err := conv.AddDelegationMarker(ralNumber); err != nil {
			return &agent.ToolResult{Content: fmt.Sprintf("Failed to record delegation marker: %v", err), IsError: true}, nil
		}
		if session != nil {
			d.orchestrator.updateSessionMetadata(session, meta)
		}
	}
	nudges := sortedNudgeSlice(ral.CombineNudges(inherited, input.Nudges))

	d.orchestrator.publishCrossProjectNudge(ctx, input.ProjectID, ralNumber, input.Task, nudges)

	resultData, err := json.Marshal(map[string]any{
		"handoff_request": &HandoffRequest{
			FromAgentID:    requesting,
			ToAgentID:      target.ID,
			Reason:         input.Task,
			ReturnExpected: true,
			RALNumber:      ralNumber,
			ProjectID:      input.ProjectID,
			Nudges:         nudges,
			Context: &SharedContext{
				Task:    input.Task,
				Summary: input.Context,
				Metadata: map[string]any{
					"is_delegation":     true,
					"is_cross_project":  true,
					"target_project_id": input.ProjectID,
				},
			},
		},
		"target_agent":   target.ID,
		"target_name":    target.Name,
		"target_project": input.ProjectID,
		"status":         "delegated",
		"is_delegation":  true,
		"ral_number":     ralNumber,
		"nudges":         nudges,
	})
	if err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("Failed to create delegation: %v", err), IsError: true}, nil
	}
	return &agent.ToolResult{Content: string(resultData), IsError: false}, nil
}

// DelegateSwarmTool fans a task out across every specialist that carries a
// SwarmRole, running them in dependency-respecting, bounded-parallel stages
// (via Swarm/BuildDependencyGraph) instead of the one-recipient-at-a-time
// delegations the rest of the family issues. Each agent in the graph gets its
// own RAL ledger entry so the caller can track and follow up on every
// participant individually.
type DelegateSwarmTool struct {
	supervisor *Supervisor
}

// NewDelegateSwarmTool creates a delegate_swarm tool bound to supervisor.
func NewDelegateSwarmTool(supervisor *Supervisor) *DelegateSwarmTool {
	return &DelegateSwarmTool{supervisor: supervisor}
}

func (d *DelegateSwarmTool) Name() string { return "delegate_swarm" }

func (d *DelegateSwarmTool) Description() string {
	return `Run every swarm-role specialist (gatherer/processor/synthesizer/validator) on a task at once.

Agents execute in dependency order (each agent's depends_on list from its definition), with
agents inside a stage running concurrently. Use this instead of delegate/delegate_phase when
the task naturally splits into independent sub-tasks rather than a single named recipient.
Requires an active todo list.`
}

func (d *DelegateSwarmTool) Schema() json.RawMessage {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"task": map[string]any{
				"type":        "string",
				"description": "The overall task to fan out across the swarm",
			},
			"context": map[string]any{
				"type":        "string",
				"description": "Relevant context shared with every participating agent",
			},
			"max_parallel_agents": map[string]any{
				"type":        "integer",
				"description": "Upper bound on agents run concurrently within a stage (default 5)",
			},
		},
		"required": []string{"task"},
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage("{}")
	}
	return data
}

// DelegateSwarmInput is the input for the delegate_swarm tool.
type DelegateSwarmInput struct {
	Task              string `json:"task"`
	Context           string `json:"context,omitempty"`
	MaxParallelAgents int    `json:"max_parallel_agents,omitempty"`
}

func (d *DelegateSwarmTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input DelegateSwarmInput
	if err := json.Unmarshal(params, &input); err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("Invalid delegate_swarm parameters: %v", err), IsError: true}, nil
	}
	if input.Task == "" {
		return &agent.ToolResult{Content: "task is required", IsError: true}, nil
	}

	orch := d.supervisor.orchestrator
	var swarmAgents []AgentDefinition
	for _, a := range orch.ListAgents() {
		if a.SwarmRole != "" {
			swarmAgents = append(swarmAgents, *a)
		}
	}
	if len(swarmAgents) == 0 {
		return &agent.ToolResult{Content: "no agents carry a swarm_role", IsError: true}, nil
	}

	session := SessionFromContext(ctx)
	var meta *SessionMetadata
	if session != nil {
		meta = orch.getSessionMetadata(session)
	}
	conv := newSessionConversation(sessionIDOf(session), meta)
	if err := ral.CheckTodos(conv); err != nil {
		return &agent.ToolResult{Content: err.Error(), IsError: true}, nil
	}

	requesting := CurrentAgentFromContextString(ctx)
	if requesting == "" {
		requesting = d.supervisor.supervisorID
	}
	inherited := meta.nudges()

	swarm, err := NewSwarm(SwarmConfig{Enabled: true, MaxParallelAgents: input.MaxParallelAgents}, swarmAgents)
	if err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("Failed to build swarm: %v", err), IsError: true}, nil
	}

	registry := ral.Default()
	var mu sync.Mutex
	ralNumbers := make(map[string]int64, len(swarmAgents))

	executor := func(_ context.Context, agentID string, _ SwarmSharedContext) (any, error) {
		ralNumber := registry.Create(requesting, sessionIDOf(session), "")
		if err := registry.RegisterExpectation(ralNumber, 1, []string{agentID}, inherited, nil); err != nil {
			return nil, fmt.Errorf("register delegation for %s: %w", agentID, err)
		}
		mu.Lock()
		ralNumbers[agentID] = ralNumber
		if err := conv.AddDelegationMarker(ralNumber); err != nil {
			mu.Unlock()
			return nil, fmt.Errorf("record delegation marker for %s: %w", agentID, err)
		}
		mu.Unlock()
		return ralNumber, nil
	}

	result, err := swarm.Execute(ctx, executor)
	if err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("Swarm delegation failed: %v", err), IsError: true}, nil
	}

	if session != nil {
		orch.updateSessionMetadata(session, meta)
	}
	nudges := sortedNudgeSlice(ral.CombineNudges(inherited, nil))

	handoffs := make([]*HandoffRequest, 0, len(result.Results))
	for _, r := range result.Results {
		target, _ := orch.GetAgent(r.AgentID)
		name := r.AgentID
		if target != nil {
			name = target.Name
		}
		handoffs = append(handoffs, &HandoffRequest{
			FromAgentID:    requesting,
			ToAgentID:      r.AgentID,
			Reason:         input.Task,
			ReturnExpected: true,
			RALNumber:      ralNumbers[r.AgentID],
			Nudges:         nudges,
			Context: &SharedContext{
				Task:    input.Task,
				Summary: input.Context,
				Metadata: map[string]any{
					"is_delegation": true,
					"is_swarm":      true,
					"target_name":   name,
				},
			},
		})
	}

	resultData, err := json.Marshal(map[string]any{
		"handoff_requests": handoffs,
		"status":           "delegated",
		"is_delegation":    true,
		"is_swarm":         true,
		"ral_numbers":      ralNumbers,
		"nudges":           nudges,
	})
	if err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("Failed to marshal swarm result: %v", err), IsError: true}, nil
	}
	return &agent.ToolResult{Content: string(resultData), IsError: false}, nil
}

// DelegateFollowupTool requests clarification from the recipient of a prior
// delegation, identified by its ledger handle. It opens a new RAL record
// chained to the original one rather than mutating it: the original record's
// completion status is left alone.
type DelegateFollowupTool struct {
	orchestrator *Orchestrator
}

// NewDelegateFollowupTool creates a delegate_followup tool.
func NewDelegateFollowupTool(orchestrator *Orchestrator) *DelegateFollowupTool {
	return &DelegateFollowupTool{orchestrator: orchestrator}
}

func (d *DelegateFollowupTool) Name() string { return "delegate_followup" }

func (d *DelegateFollowupTool) Description() string {
	return `Ask a clarifying follow-up question of the agent from a prior delegation.

Reference the ral_number returned by the original delegate/delegate_phase/delegate_external
call. Use this instead of a fresh delegation when you need more detail on an existing response.`
}

func (d *DelegateFollowupTool) Schema() json.RawMessage {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"ral_number": map[string]any{
				"type":        "integer",
				"description": "The ledger handle (ral_number) of the delegation to follow up on",
			},
			"question": map[string]any{
				"type":        "string",
				"description": "The clarifying question to ask",
			},
			"nudges": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Out-of-band follow-up hint IDs to attach to this follow-up",
			},
		},
		"required": []string{"ral_number", "question"},
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage("{}")
	}
	return data
}

// DelegateFollowupInput is the input for the delegate_followup tool.
type DelegateFollowupInput struct {
	RALNumber int64    `json:"ral_number"`
	Question  string   `json:"question"`
	Nudges    []string `json:"nudges,omitempty"`
}

func (d *DelegateFollowupTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input DelegateFollowupInput
	if err := json.Unmarshal(params, &input); err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("Invalid delegate_followup parameters: %v", err), IsError: true}, nil
	}
	if input.RALNumber == 0 {
		return &agent.ToolResult{Content: "ral_number is required", IsError: true}, nil
	}

	registry := ral.Default()
	original, err := registry.Get(input.RALNumber)
	if err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("Unknown delegation %d: %v", input.RALNumber, err), IsError: true}, nil
	}
	if len(original.Recipients) == 0 {
		return &agent.ToolResult{Content: fmt.Sprintf("Delegation %d has no recipient to follow up with", input.RALNumber), IsError: true}, nil
	}
	recipientID := original.Recipients[0]

	target, ok := d.orchestrator.GetAgent(recipientID)
	if !ok {
		return &agent.ToolResult{Content: fmt.Sprintf("Original recipient no longer available: %s", recipientID), IsError: true}, nil
	}

	requesting := CurrentAgentFromContextString(ctx)
	if requesting == "" {
		requesting = original.RequestingAgentPub
	}

	followupNumber := registry.Create(requesting, original.ConversationID, original.ProjectID)
	inherited := original.NudgeSlice()
	if err := registry.RegisterExpectation(followupNumber, 1, []string{recipientID}, inherited, input.Nudges); err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("Failed to register follow-up: %v", err), IsError: true}, nil
	}
	nudges := sortedNudgeSlice(ral.CombineNudges(inherited, input.Nudges))

	resultData, err := json.Marshal(map[string]any{
		"handoff_request": &HandoffRequest{
			FromAgentID:    requesting,
			ToAgentID:      target.ID,
			Reason:         input.Question,
			ReturnExpected: true,
			RALNumber:      followupNumber,
			ProjectID:      original.ProjectID,
			Nudges:         nudges,
			Context: &SharedContext{
				Task: input.Question,
				Metadata: map[string]any{
					"is_delegation":     true,
					"is_followup":       true,
					"parent_ral_number": input.RALNumber,
				},
			},
		},
		"target_agent":      target.ID,
		"target_name":       target.Name,
		"status":            "delegated",
		"is_delegation":     true,
		"is_followup":       true,
		"parent_ral_number": input.RALNumber,
		"ral_number":        followupNumber,
		"nudges":            nudges,
	})
	if err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("Failed to create follow-up: %v", err), IsError: true}, nil
	}
	return &agent.ToolResult{Content: string(resultData), IsError: false}, nil
}
