// Package agent implements the Agent Runtime (spec §4.6): a bounded
// iteration loop that orchestrates an LLM with a tool registry, enforces
// risk-based safety gating, and may suspend for human approval. The
// runtime's three input modes (InvestigationGoal/ResumeInvestigation/
// ChatMessage) share one dispatch surface, a `handle(input) -> output`
// entry point selected by AgentInput.Kind (spec §9 "The agent's multiple
// behaviors ... share an interface handle(input, context) -> output and
// are selected by input kind at call sites").
package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/incidentctl/controlplane/internal/apperrors"
	"github.com/incidentctl/controlplane/pkg/audit"
	"github.com/incidentctl/controlplane/pkg/llm"
	"github.com/incidentctl/controlplane/pkg/model"
	"github.com/incidentctl/controlplane/pkg/tools"
)

// maxUnparseableRetries bounds the corrective-message retries spec §4.6
// step 3 allows before surfacing an error.
const maxUnparseableRetries = 2

// tracer emits one span per reasoning-loop iteration (spec §4.6's
// "observe, decide, act" cycle), making iteration count and per-call LLM
// latency visible in a trace alongside the workflow-step span it runs
// under.
var tracer = otel.Tracer("github.com/incidentctl/controlplane/pkg/agent")

// Runtime is the Agent Runtime (spec §4.6).
type Runtime struct {
	Provider llm.Provider
	Tools    *tools.Registry
	Audit    *audit.Log
}

// New builds a Runtime over the given provider, tool registry, and audit
// log. A nil Audit is replaced with a fresh in-process log.
func New(provider llm.Provider, toolRegistry *tools.Registry, auditLog *audit.Log) *Runtime {
	if auditLog == nil {
		auditLog = audit.New()
	}
	return &Runtime{Provider: provider, Tools: toolRegistry, Audit: auditLog}
}

// Options bounds one Handle call (spec §3 AgentStep "max_iterations,
// timeout, approval_required").
type Options struct {
	MaxIterations    int
	Timeout          time.Duration
	ApprovalRequired bool
	ToolNames        []string
	// MaxContextSize bounds the conversation's estimated token count
	// (spec §6 LLM_MAX_TOKENS); 0 disables truncation.
	MaxContextSize int
}

// Handle dispatches on input.Kind, the sum-type visitor spec §9 describes.
func (r *Runtime) Handle(ctx context.Context, runID uuid.UUID, input model.AgentInput, opts Options) (model.AgentOutput, error) {
	switch input.Kind {
	case model.AgentInputInvestigationGoal:
		return r.runInvestigation(ctx, runID, input.Goal, nil, 0, opts)
	case model.AgentInputResumeInvestigation:
		return r.resumeInvestigation(ctx, runID, input, opts)
	case model.AgentInputChatMessage:
		return r.chat(ctx, input)
	default:
		return model.AgentOutput{Kind: model.AgentOutputError, ErrorMessage: fmt.Sprintf("unknown agent input kind %q", input.Kind)}, nil
	}
}

func (r *Runtime) chat(ctx context.Context, input model.AgentInput) (model.AgentOutput, error) {
	messages := make([]llm.Message, 0, len(input.History)+1)
	for _, turn := range input.History {
		messages = append(messages, llm.Message{Role: llm.Role(turn.Role), Content: turn.Content})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: input.Content})

	resp, err := r.Provider.Complete(ctx, messages, nil)
	if err != nil {
		return model.AgentOutput{Kind: model.AgentOutputError, ErrorMessage: err.Error()}, nil
	}
	return model.AgentOutput{Kind: model.AgentOutputChatResponse, Message: resp.Content}, nil
}

func (r *Runtime) resumeInvestigation(ctx context.Context, runID uuid.UUID, input model.AgentInput, opts Options) (model.AgentOutput, error) {
	state := input.SavedState
	if state == nil || state.PendingCall == nil {
		return model.AgentOutput{Kind: model.AgentOutputError, ErrorMessage: "resume requires saved state with a pending tool call"}, nil
	}

	approval := input.ApprovalResponse
	r.Audit.RecordApprovalDecision(runID, state.PendingCall, approval != nil && approval.Approved, approvalApprover(approval), approvalReason(approval))

	history := append([]model.ChatTurn{}, state.History...)
	if approval != nil && approval.Approved {
		result, err := r.Tools.Invoke(ctx, runID, state.PendingCall.ToolName, state.PendingCall.Args)
		if err != nil {
			history = append(history, model.ChatTurn{Role: string(llm.RoleUser), Content: fmt.Sprintf("Tool %s denied: %s", state.PendingCall.ToolName, err.Error())})
		} else {
			history = append(history, model.ChatTurn{Role: string(llm.RoleUser), Content: fmt.Sprintf("Observation from %s: %v", state.PendingCall.ToolName, result.Output)})
		}
	} else {
		reason := approvalReason(approval)
		history = append(history, model.ChatTurn{Role: string(llm.RoleUser), Content: fmt.Sprintf("Human denied approval for %s: %s", state.PendingCall.ToolName, reason)})
	}

	out, err := r.runInvestigation(ctx, runID, state.Goal, history, state.Iteration, opts)
	denied := approval == nil || !approval.Approved
	if err == nil && denied && out.Kind == model.AgentOutputFinalInvestigationResult && out.Result != nil && out.Result.ErrorMessage == "" {
		out.Result.ErrorMessage = fmt.Sprintf("approval denied for %s: %s", state.PendingCall.ToolName, approvalReason(approval))
	}
	return out, err
}

func approvalApprover(a *model.ApprovalResponse) string {
	if a == nil {
		return ""
	}
	return a.Approver
}

func approvalReason(a *model.ApprovalResponse) string {
	if a == nil {
		return "no approval response supplied"
	}
	return a.Reason
}

// runInvestigation drives the bounded reasoning loop (spec §4.6 steps 1-6).
func (r *Runtime) runInvestigation(ctx context.Context, runID uuid.UUID, goal string, history []model.ChatTurn, startIteration int, opts Options) (model.AgentOutput, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	toolSpecs := r.toolSpecs(opts.ToolNames)
	messages := r.assembleMessages(goal, history)

	iteration := startIteration
	unparseableRetries := 0

	for {
		if opts.MaxIterations > 0 && iteration >= opts.MaxIterations {
			return model.AgentOutput{Kind: model.AgentOutputError, ErrorMessage: "agent reached max_iterations without a final result"}, nil
		}
		select {
		case <-ctx.Done():
			return model.AgentOutput{Kind: model.AgentOutputError, ErrorMessage: "agent investigation timed out"}, nil
		default:
		}

		messages = truncateToBudget(messages, opts.MaxContextSize)

		iterCtx, span := tracer.Start(ctx, "agent.iteration", trace.WithAttributes(
			attribute.String("agent.run_id", runID.String()),
			attribute.Int("agent.iteration", iteration),
		))
		resp, err := r.Provider.Complete(iterCtx, messages, toolSpecs)
		if err != nil {
			span.RecordError(err)
			span.End()
			return model.AgentOutput{}, apperrors.NewLLMProviderError("agent", err)
		}
		span.End()

		parsed := parseResponse(resp.Content)

		switch parsed.kind {
		case directiveFinalResult:
			return model.AgentOutput{Kind: model.AgentOutputFinalInvestigationResult, Result: parsed.result}, nil

		case directiveToolCall:
			iteration++
			messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: resp.Content})

			risk := AssessRisk(parsed.toolCall.ToolName, parsed.toolCall.Args)
			parsed.toolCall.Risk = risk

			if requiresApproval(risk, opts.ApprovalRequired) {
				savedState := &model.AgentSavedState{
					Goal:        goal,
					History:     historyFromMessages(messages),
					Iteration:   iteration,
					PendingCall: parsed.toolCall,
				}
				return model.AgentOutput{
					Kind: model.AgentOutputPendingHumanApproval,
					Request: parsed.toolCall,
					Options: []model.ApprovalOption{
						{Label: "Approve", Value: "approved"},
						{Label: "Deny", Value: "denied"},
					},
					SavedState: savedState,
				}, nil
			}

			result, invokeErr := r.Tools.Invoke(ctx, runID, parsed.toolCall.ToolName, parsed.toolCall.Args)
			if invokeErr != nil {
				messages = append(messages, llm.Message{Role: llm.RoleUser, Content: fmt.Sprintf("Tool %s was denied: %s", parsed.toolCall.ToolName, invokeErr.Error())})
				continue
			}
			messages = append(messages, llm.Message{Role: llm.RoleUser, Content: fmt.Sprintf("Observation from %s: %v", parsed.toolCall.ToolName, result.Output)})
			continue

		default: // directiveUnparseable
			unparseableRetries++
			if unparseableRetries > maxUnparseableRetries {
				return model.AgentOutput{Kind: model.AgentOutputError, ErrorMessage: "llm response could not be parsed after retries"}, nil
			}
			messages = append(messages,
				llm.Message{Role: llm.RoleAssistant, Content: resp.Content},
				llm.Message{Role: llm.RoleUser, Content: "Your previous response did not match the required format. Respond with either a final result (ROOT CAUSE/FINDINGS/RECOMMENDATIONS/AUTO-FIX sections) or a single `TOOL: <name> {json args}` line."},
			)
			continue
		}
	}
}

// requiresApproval implements spec §4.6's gating rule: High-risk actions
// always require approval regardless of step configuration; other risk
// levels require approval only when the step explicitly demands it.
func requiresApproval(risk model.RiskLevel, approvalRequired bool) bool {
	if risk == model.RiskHigh {
		return true
	}
	return approvalRequired && risk == model.RiskMedium
}

func (r *Runtime) assembleMessages(goal string, history []model.ChatTurn) []llm.Message {
	preamble := "You are an incident investigation agent. Investigate the following goal using the " +
		"available tools, then report a final result using ROOT CAUSE/FINDINGS/RECOMMENDATIONS/AUTO-FIX " +
		"sections. To call a tool, respond with exactly one line: `TOOL: <name> {\"arg\":\"value\"}`."

	messages := []llm.Message{{Role: llm.RoleSystem, Content: preamble}}
	for _, turn := range history {
		messages = append(messages, llm.Message{Role: llm.Role(turn.Role), Content: turn.Content})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: goal})
	return messages
}

func (r *Runtime) toolSpecs(names []string) []llm.ToolSpec {
	allowed := map[string]bool{}
	for _, n := range names {
		allowed[n] = true
	}
	var specs []llm.ToolSpec
	for _, t := range r.Tools.Catalog() {
		if len(allowed) > 0 && !allowed[t.Name()] {
			continue
		}
		specs = append(specs, llm.ToolSpec{Name: t.Name(), Description: t.Description()})
	}
	return specs
}

func historyFromMessages(messages []llm.Message) []model.ChatTurn {
	out := make([]model.ChatTurn, 0, len(messages))
	for _, m := range messages {
		out = append(out, model.ChatTurn{Role: string(m.Role), Content: m.Content})
	}
	return out
}
