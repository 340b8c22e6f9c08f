package agent_test

import (
	"context"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/google/uuid"

	"github.com/incidentctl/controlplane/pkg/agent"
	"github.com/incidentctl/controlplane/pkg/audit"
	"github.com/incidentctl/controlplane/pkg/llm"
	"github.com/incidentctl/controlplane/pkg/model"
	"github.com/incidentctl/controlplane/pkg/tools"
)

type fakeKubectl struct{ invoked int }

func (f *fakeKubectl) Name() string        { return "kubectl" }
func (f *fakeKubectl) Description() string { return "fake kubectl for tests" }
func (f *fakeKubectl) ParameterSchema() *openapi3.Schema {
	return openapi3.NewObjectSchema()
}
func (f *fakeKubectl) Invoke(context.Context, map[string]interface{}) (tools.InvokeResult, error) {
	f.invoked++
	return tools.InvokeResult{Output: "restarts: 5", Risk: model.RiskLow}, nil
}

func newRegistry(kubectl *fakeKubectl) *tools.Registry {
	r := tools.New(audit.New())
	r.Register(kubectl, nil)
	return r
}

func TestInvestigationReturnsFinalResultFromMockProvider(t *testing.T) {
	provider := llm.NewMockProvider("fallback").
		Script("PodCrashLooping", "ROOT CAUSE: OOM\nFINDINGS:\n- restarts 5\nRECOMMENDATIONS:\n- increase memory\nAUTO-FIX: no")

	kubectl := &fakeKubectl{}
	rt := agent.New(provider, newRegistry(kubectl), nil)

	out, err := rt.Handle(context.Background(), uuid.New(), model.AgentInput{
		Kind: model.AgentInputInvestigationGoal,
		Goal: "Investigate PodCrashLooping in namespace prod",
	}, agent.Options{MaxIterations: 5, ToolNames: []string{"kubectl"}})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Kind != model.AgentOutputFinalInvestigationResult {
		t.Fatalf("expected final result, got kind=%v output=%+v", out.Kind, out)
	}
	if out.Result.RootCause != "OOM" {
		t.Fatalf("expected root cause OOM, got %q", out.Result.RootCause)
	}
}

func TestInvestigationInvokesToolThenFinalizes(t *testing.T) {
	// A provider that returns the tool call once, then a final result,
	// regardless of conversation content.
	provider := newSequencedProvider(
		`TOOL: kubectl {"verb":"get","namespace":"prod","kind":"pod","name":"x"}`,
		"ROOT CAUSE: OOM\nFINDINGS:\n- restarts 5\nRECOMMENDATIONS:\n- increase memory\nAUTO-FIX: no",
	)

	kubectl := &fakeKubectl{}
	rt := agent.New(provider, newRegistry(kubectl), nil)

	out, err := rt.Handle(context.Background(), uuid.New(), model.AgentInput{
		Kind: model.AgentInputInvestigationGoal,
		Goal: "investigate-tool-flow",
	}, agent.Options{MaxIterations: 5, ToolNames: []string{"kubectl"}})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Kind != model.AgentOutputFinalInvestigationResult {
		t.Fatalf("expected final result after tool call, got kind=%v", out.Kind)
	}
	if kubectl.invoked != 1 {
		t.Fatalf("expected kubectl invoked once, got %d", kubectl.invoked)
	}
}

func TestHighRiskActionSuspendsForApproval(t *testing.T) {
	provider := llm.NewMockProvider(`TOOL: kubectl {"verb":"delete","namespace":"prod","kind":"pod","name":"x"}`)
	kubectl := &fakeKubectl{}
	rt := agent.New(provider, newRegistry(kubectl), nil)

	out, err := rt.Handle(context.Background(), uuid.New(), model.AgentInput{
		Kind: model.AgentInputInvestigationGoal,
		Goal: "delete the crashlooping pod",
	}, agent.Options{MaxIterations: 5, ToolNames: []string{"kubectl"}})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Kind != model.AgentOutputPendingHumanApproval {
		t.Fatalf("expected PendingHumanApproval for a delete call, got kind=%v", out.Kind)
	}
	if kubectl.invoked != 0 {
		t.Fatalf("expected kubectl never invoked before approval, invoked=%d", kubectl.invoked)
	}
	if out.SavedState == nil || out.SavedState.PendingCall == nil {
		t.Fatalf("expected saved state with a pending call")
	}
}

func TestResumeDeniedApprovalNeverExecutesAndReturnsError(t *testing.T) {
	provider := llm.NewMockProvider(`TOOL: kubectl {"verb":"delete","namespace":"prod","kind":"pod","name":"x"}`)
	kubectl := &fakeKubectl{}
	rt := agent.New(provider, newRegistry(kubectl), nil)

	runID := uuid.New()
	pending, err := rt.Handle(context.Background(), runID, model.AgentInput{
		Kind: model.AgentInputInvestigationGoal,
		Goal: "delete the crashlooping pod",
	}, agent.Options{MaxIterations: 5, ToolNames: []string{"kubectl"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rt.Provider = llm.NewMockProvider("ROOT CAUSE: none\nFINDINGS:\nRECOMMENDATIONS:\nAUTO-FIX: no")
	resumed, err := rt.Handle(context.Background(), runID, model.AgentInput{
		Kind:             model.AgentInputResumeInvestigation,
		ApprovalResponse: &model.ApprovalResponse{Approved: false, Reason: "too risky", Approver: "alice"},
		SavedState:       pending.SavedState,
	}, agent.Options{MaxIterations: 5, ToolNames: []string{"kubectl"}})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if kubectl.invoked != 0 {
		t.Fatalf("expected kubectl never invoked after denial, invoked=%d", kubectl.invoked)
	}
	if resumed.Kind != model.AgentOutputFinalInvestigationResult {
		t.Fatalf("expected a final result after resume, got kind=%v", resumed.Kind)
	}
	if resumed.Result == nil || resumed.Result.ErrorMessage == "" {
		t.Fatalf("expected a non-empty error message on the final result after denial")
	}
}

func TestIterationBoundNeverExceeded(t *testing.T) {
	// A provider that always emits a tool-call directive never reaches a
	// final result, so the loop must stop at MaxIterations rather than
	// spinning forever.
	provider := llm.NewMockProvider(`TOOL: kubectl {"verb":"get","namespace":"prod","kind":"pod","name":"x"}`)
	kubectl := &fakeKubectl{}
	rt := agent.New(provider, newRegistry(kubectl), nil)

	out, err := rt.Handle(context.Background(), uuid.New(), model.AgentInput{
		Kind: model.AgentInputInvestigationGoal,
		Goal: "investigate forever",
	}, agent.Options{MaxIterations: 3, ToolNames: []string{"kubectl"}})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Kind != model.AgentOutputError {
		t.Fatalf("expected an error output once max_iterations is reached, got kind=%v", out.Kind)
	}
	if kubectl.invoked > 3 {
		t.Fatalf("expected at most 3 tool invocations, got %d", kubectl.invoked)
	}
}

// sequencedProvider returns one scripted response per call, in order,
// regardless of conversation content — used to drive a tool-call-then-
// final-result sequence deterministically.
type sequencedProvider struct {
	responses []string
	next      int
}

func newSequencedProvider(responses ...string) *sequencedProvider {
	return &sequencedProvider{responses: responses}
}

func (s *sequencedProvider) Complete(context.Context, []llm.Message, []llm.ToolSpec) (llm.Message, error) {
	if s.next >= len(s.responses) {
		s.next = len(s.responses) - 1
	}
	resp := s.responses[s.next]
	s.next++
	return llm.Message{Role: llm.RoleAssistant, Content: resp}, nil
}
