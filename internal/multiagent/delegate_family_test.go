package multiagent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/nexus-ral/nexus/internal/agent"
	"github.com/nexus-ral/nexus/internal/ral"
	"github.com/nexus-ral/nexus/pkg/models"
)

func todoCtx(sessionID string) context.Context {
	session := &models.Session{
		ID:       sessionID,
		Metadata: map[string]any{"todos": []string{"track the delegation"}},
	}
	return WithSession(context.Background(), session)
}

func TestDelegatePhaseTool_Execute(t *testing.T) {
	_, supervisor := createTestSupervisorOrchestrator()
	tool := NewDelegatePhaseTool(supervisor)
	ctx := todoCtx("sess-phase")

	input := DelegatePhaseInput{
		Specialist: "code-specialist",
		Phase:      "implementation",
		Task:       "Write the parser",
	}
	params, _ := json.Marshal(input)

	result, err := tool.Execute(ctx, params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %s", result.Content)
	}

	var data map[string]interface{}
	if err := json.Unmarshal([]byte(result.Content), &data); err != nil {
		t.Fatalf("invalid result JSON: %v", err)
	}
	if _, ok := data["handoff_request"]; !ok {
		t.Error("expected handoff_request in result")
	}
	if data["phase"] != "implementation" {
		t.Errorf("expected phase %q, got %v", "implementation", data["phase"])
	}
	ralNumber, ok := data["ral_number"].(float64)
	if !ok || ralNumber == 0 {
		t.Errorf("expected non-zero ral_number, got %v", data["ral_number"])
	}
}

func TestDelegatePhaseTool_Execute_RequiresPhase(t *testing.T) {
	_, supervisor := createTestSupervisorOrchestrator()
	tool := NewDelegatePhaseTool(supervisor)
	ctx := todoCtx("sess-phase-2")

	input := DelegatePhaseInput{Specialist: "code-specialist", Task: "Write the parser"}
	params, _ := json.Marshal(input)

	result, err := tool.Execute(ctx, params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Error("expected error result when phase is missing")
	}
}

func TestDelegatePhaseTool_Execute_RequiresTodos(t *testing.T) {
	_, supervisor := createTestSupervisorOrchestrator()
	tool := NewDelegatePhaseTool(supervisor)

	input := DelegatePhaseInput{Specialist: "code-specialist", Phase: "design", Task: "Sketch the API"}
	params, _ := json.Marshal(input)

	result, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Error("expected error result with no todos attached")
	}
}

func setupExternalProject(orch *Orchestrator) {
	orch.RegisterExternalProject(&ExternalProject{
		ID:    "proj-remote",
		Title: "Remote Project",
		Agents: map[string]*AgentDefinition{
			"remote-specialist": {
				ID:                 "remote-specialist",
				Name:               "Remote Specialist",
				CanReceiveHandoffs: true,
			},
		},
	})
}

func TestDelegateExternalTool_Execute(t *testing.T) {
	orch := createHandoffToolTestOrchestrator()
	setupExternalProject(orch)
	tool := NewDelegateExternalTool(orch)

	input := DelegateExternalInput{
		ProjectID: "proj-remote",
		Agent:     "remote-specialist",
		Task:      "Review the remote service's API",
	}
	params, _ := json.Marshal(input)

	// No conversation attached: delegate_external bypasses the todo check.
	result, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %s", result.Content)
	}

	var data map[string]interface{}
	if err := json.Unmarshal([]byte(result.Content), &data); err != nil {
		t.Fatalf("invalid result JSON: %v", err)
	}
	if data["target_project"] != "proj-remote" {
		t.Errorf("expected target_project proj-remote, got %v", data["target_project"])
	}
}

func TestDelegateExternalTool_Execute_UnknownProject(t *testing.T) {
	orch := createHandoffToolTestOrchestrator()
	tool := NewDelegateExternalTool(orch)

	input := DelegateExternalInput{ProjectID: "does-not-exist", Agent: "any", Task: "Do something"}
	params, _ := json.Marshal(input)

	result, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Error("expected error result for unknown project")
	}
}

func TestDelegateExternalTool_Execute_RequiresTodosWithSession(t *testing.T) {
	orch := createHandoffToolTestOrchestrator()
	setupExternalProject(orch)
	tool := NewDelegateExternalTool(orch)

	session := &models.Session{ID: "sess-no-todos"}
	ctx := WithSession(context.Background(), session)

	input := DelegateExternalInput{ProjectID: "proj-remote", Agent: "remote-specialist", Task: "Do something"}
	params, _ := json.Marshal(input)

	result, err := tool.Execute(ctx, params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Error("expected error result: a conversation with an empty todo list does not bypass the check")
	}
}

func TestDelegateFollowupTool_Execute(t *testing.T) {
	orch := createHandoffToolTestOrchestrator()
	followup := NewDelegateFollowupTool(orch)

	registry := ral.Default()
	original := registry.Create("default-agent", "sess-followup", "")
	if err := registry.RegisterExpectation(original, 1, []string{"code-agent"}, nil, []string{"nudge-1"}); err != nil {
		t.Fatalf("failed to set up original delegation: %v", err)
	}

	input := DelegateFollowupInput{RALNumber: original, Question: "What tests did you add?"}
	params, _ := json.Marshal(input)

	result, err := followup.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %s", result.Content)
	}

	var data map[string]interface{}
	if err := json.Unmarshal([]byte(result.Content), &data); err != nil {
		t.Fatalf("invalid result JSON: %v", err)
	}
	if data["is_followup"] != true {
		t.Error("expected is_followup to be true")
	}
	parentNumber, ok := data["parent_ral_number"].(float64)
	if !ok || int64(parentNumber) != original {
		t.Errorf("expected parent_ral_number %d, got %v", original, data["parent_ral_number"])
	}
	nudges, ok := data["nudges"].([]interface{})
	if !ok || len(nudges) == 0 {
		t.Fatalf("expected inherited nudges to be present, got %v", data["nudges"])
	}
}

func createSwarmTestSupervisorOrchestrator() (*Orchestrator, *Supervisor) {
	config := &MultiAgentConfig{
		DefaultAgentID:     "default-agent",
		SupervisorAgentID:  "supervisor",
		EnablePeerHandoffs: true,
		MaxHandoffDepth:    10,
		DefaultContextMode: ContextFull,
	}

	orch := &Orchestrator{
		config:   config,
		agents:   make(map[string]*AgentDefinition),
		runtimes: make(map[string]*agent.Runtime),
	}

	agents := []*AgentDefinition{
		{ID: "supervisor", Name: "Supervisor Agent", CanReceiveHandoffs: true},
		{ID: "gatherer", Name: "Gatherer", SwarmRole: RoleGatherer, CanReceiveHandoffs: true},
		{ID: "processor", Name: "Processor", SwarmRole: RoleProcessor, CanReceiveHandoffs: true, DependsOn: []string{"gatherer"}},
		{ID: "synthesizer", Name: "Synthesizer", SwarmRole: RoleSynthesizer, CanReceiveHandoffs: true, DependsOn: []string{"processor"}},
	}
	for _, a := range agents {
		orch.agents[a.ID] = a
		orch.runtimes[a.ID] = nil
	}

	supervisor := NewSupervisor(orch, "supervisor")
	return orch, supervisor
}

func TestDelegateSwarmTool_Execute(t *testing.T) {
	_, supervisor := createSwarmTestSupervisorOrchestrator()
	tool := NewDelegateSwarmTool(supervisor)
	ctx := todoCtx("sess-swarm")

	input := DelegateSwarmInput{Task: "Survey the API surface and write a report"}
	params, _ := json.Marshal(input)

	result, err := tool.Execute(ctx, params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %s", result.Content)
	}

	var data map[string]interface{}
	if err := json.Unmarshal([]byte(result.Content), &data); err != nil {
		t.Fatalf("invalid result JSON: %v", err)
	}
	handoffs, ok := data["handoff_requests"].([]interface{})
	if !ok || len(handoffs) != 3 {
		t.Fatalf("expected 3 handoff_requests, got %v", data["handoff_requests"])
	}
	ralNumbers, ok := data["ral_numbers"].(map[string]interface{})
	if !ok || len(ralNumbers) != 3 {
		t.Fatalf("expected 3 ral_numbers, got %v", data["ral_numbers"])
	}
	for _, id := range []string{"gatherer", "processor", "synthesizer"} {
		if _, ok := ralNumbers[id]; !ok {
			t.Errorf("expected a ral_number for %s", id)
		}
	}
}

func TestDelegateSwarmTool_Execute_RequiresTodos(t *testing.T) {
	_, supervisor := createSwarmTestSupervisorOrchestrator()
	tool := NewDelegateSwarmTool(supervisor)

	input := DelegateSwarmInput{Task: "Survey the API surface"}
	params, _ := json.Marshal(input)

	result, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Error("expected error result with no todos attached")
	}
}

func TestDelegateSwarmTool_Execute_NoSwarmAgents(t *testing.T) {
	_, supervisor := createTestSupervisorOrchestrator()
	tool := NewDelegateSwarmTool(supervisor)
	ctx := todoCtx("sess-swarm-none")

	input := DelegateSwarmInput{Task: "Survey the API surface"}
	params, _ := json.Marshal(input)

	result, err := tool.Execute(ctx, params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Error("expected error result when no agent carries a swarm_role")
	}
}

func TestDelegateFollowupTool_Execute_UnknownDelegation(t *testing.T) {
	orch := createHandoffToolTestOrchestrator()
	followup := NewDelegateFollowupTool(orch)

	input := DelegateFollowupInput{RALNumber: 999999999, Question: "Anything?"}
	params, _ := json.Marshal(input)

	result, err := followup.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Error("expected error result for unknown ral_number")
	}
}
