package model

import "github.com/shopspring/decimal"

// RiskLevel classifies a proposed agent action (spec §4.6).
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// ActionTaken records one action the agent executed (or proposed), with its
// risk classification and, for gated actions, the approver identity.
type ActionTaken struct {
	Description string    `json:"description"`
	Command     string    `json:"command,omitempty"`
	Risk        RiskLevel `json:"risk"`
	Approver    string    `json:"approver,omitempty"`
	Executed    bool      `json:"executed"`
}

// AgentResult is the structured output of a completed agent investigation
// (spec §3, §4.6).
type AgentResult struct {
	Summary         string          `json:"summary"`
	RootCause       string          `json:"root_cause,omitempty"`
	Findings        []string        `json:"findings"`
	Recommendations []string        `json:"recommendations"`
	ActionsTaken    []ActionTaken   `json:"actions_taken"`
	CanAutoFix      bool            `json:"can_auto_fix"`
	FixCommand      string          `json:"fix_command,omitempty"`
	Confidence      decimal.Decimal `json:"confidence"`
	ErrorMessage    string          `json:"error_message,omitempty"`
}

// AgentInputKind tags the AgentInput sum type (spec §4.6).
type AgentInputKind string

const (
	AgentInputInvestigationGoal  AgentInputKind = "investigation_goal"
	AgentInputResumeInvestigation AgentInputKind = "resume_investigation"
	AgentInputChatMessage        AgentInputKind = "chat_message"
)

// ChatTurn is one message in a chat history.
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// AgentInput is a tagged variant over the agent runtime's three input modes.
type AgentInput struct {
	Kind AgentInputKind

	// InvestigationGoal
	Goal        string                 `json:"goal,omitempty"`
	InitialData map[string]interface{} `json:"initial_data,omitempty"`
	Context     map[string]interface{} `json:"context,omitempty"`

	// ResumeInvestigation
	ApprovalResponse *ApprovalResponse `json:"approval_response,omitempty"`
	SavedState       *AgentSavedState  `json:"saved_state,omitempty"`

	// ChatMessage
	Content string     `json:"content,omitempty"`
	History []ChatTurn `json:"history,omitempty"`
}

// ApprovalResponse is the human decision fed back into ResumeInvestigation.
type ApprovalResponse struct {
	Approved bool   `json:"approved"`
	Reason   string `json:"reason,omitempty"`
	Approver string `json:"approver,omitempty"`
}

// PendingToolCall is the tool invocation the agent suspended on, pending approval.
type PendingToolCall struct {
	ToolName string                 `json:"tool_name"`
	Args     map[string]interface{} `json:"args"`
	Risk     RiskLevel              `json:"risk"`
}

// AgentSavedState is the serialized conversation state needed to resume a
// suspended agent loop verbatim (spec §4.6 "State persistence for approval
// resume").
type AgentSavedState struct {
	Goal        string     `json:"goal"`
	History     []ChatTurn `json:"history"`
	Iteration   int        `json:"iteration"`
	PendingCall *PendingToolCall `json:"pending_call"`
}

// AgentOutputKind tags the AgentOutput sum type (spec §4.6).
type AgentOutputKind string

const (
	AgentOutputChatResponse         AgentOutputKind = "chat_response"
	AgentOutputInvestigationUpdate  AgentOutputKind = "investigation_update"
	AgentOutputPendingHumanApproval AgentOutputKind = "pending_human_approval"
	AgentOutputFinalInvestigationResult AgentOutputKind = "final_investigation_result"
	AgentOutputError                AgentOutputKind = "error"
)

// ApprovalOption is one choice offered to the human approver.
type ApprovalOption struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// AgentOutput is a tagged variant over the agent runtime's five output modes.
type AgentOutput struct {
	Kind AgentOutputKind

	// ChatResponse
	Message string `json:"message,omitempty"`

	// InvestigationUpdate
	Status   string   `json:"status,omitempty"`
	Findings []string `json:"findings,omitempty"`

	// PendingHumanApproval
	Request    *PendingToolCall `json:"request,omitempty"`
	Options    []ApprovalOption `json:"options,omitempty"`
	SavedState *AgentSavedState `json:"saved_state,omitempty"`

	// FinalInvestigationResult
	Result *AgentResult `json:"result,omitempty"`

	// Error
	ErrorMessage string `json:"error_message,omitempty"`
}
