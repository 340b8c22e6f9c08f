package model

import "time"

// WorkflowRuntime describes the execution image, LLM configuration, and
// environment a Workflow runs with.
type WorkflowRuntime struct {
	Image       string            `yaml:"image" json:"image" validate:"required"`
	LLMProvider string            `yaml:"llmProvider" json:"llm_provider"`
	LLMModel    string            `yaml:"llmModel" json:"llm_model"`
	Environment map[string]string `yaml:"environment" json:"environment,omitempty"`
	// ElevatedRole, when set, authorizes write-verb kubectl tool calls for
	// this workflow (spec §4.7).
	ElevatedRole string `yaml:"elevatedRole" json:"elevated_role,omitempty"`
}

// StepKind tags the WorkflowStep sum type (spec §3, §9 "tagged variant").
type StepKind string

const (
	StepKindCLIStep         StepKind = "cli"
	StepKindAgentStep       StepKind = "agent"
	StepKindConditionalStep StepKind = "conditional"
)

// CLIStepSpec is the `cli` variant of WorkflowStep.
type CLIStepSpec struct {
	Command string            `yaml:"command" json:"command"`
	Env     map[string]string `yaml:"env" json:"env,omitempty"`
	Timeout time.Duration     `yaml:"timeout" json:"timeout"`
}

// AgentStepSpec is the `agent` variant of WorkflowStep.
type AgentStepSpec struct {
	Goal              string        `yaml:"goal" json:"goal"`
	Tools             []string      `yaml:"tools" json:"tools"`
	MaxIterations     int           `yaml:"maxIterations" json:"max_iterations"`
	Timeout           time.Duration `yaml:"timeout" json:"timeout"`
	ApprovalRequired  bool          `yaml:"approvalRequired" json:"approval_required"`
}

// ConditionalStepSpec is the `conditional` variant of WorkflowStep.
type ConditionalStepSpec struct {
	Condition string         `yaml:"condition" json:"condition"`
	ThenAgent *AgentStepSpec `yaml:"thenAgent" json:"then_agent,omitempty"`
}

// WorkflowStep is a tagged union over the three step kinds. Exactly one of
// CLI/Agent/Conditional is populated, selected by Kind.
type WorkflowStep struct {
	Name        string               `yaml:"name" json:"name" validate:"required"`
	Kind        StepKind             `yaml:"kind" json:"kind" validate:"required,oneof=cli agent conditional"`
	CLI         *CLIStepSpec         `yaml:"cli,omitempty" json:"cli,omitempty"`
	Agent       *AgentStepSpec       `yaml:"agent,omitempty" json:"agent,omitempty"`
	Conditional *ConditionalStepSpec `yaml:"conditional,omitempty" json:"conditional,omitempty"`
}

// WorkflowOutput is one declared (name, template) output pair.
type WorkflowOutput struct {
	Name     string `yaml:"name" json:"name"`
	Template string `yaml:"template" json:"template"`
}

// Workflow is the declarative pipeline descriptor (spec §3).
type Workflow struct {
	Name      string           `yaml:"name" json:"name" validate:"required"`
	Namespace string           `yaml:"namespace" json:"namespace" validate:"required"`
	Runtime   WorkflowRuntime  `yaml:"runtime" json:"runtime" validate:"required"`
	Steps     []WorkflowStep   `yaml:"steps" json:"steps" validate:"required,min=1,dive"`
	Outputs   []WorkflowOutput `yaml:"outputs" json:"outputs"`
	Sinks     []string         `yaml:"sinks" json:"sinks"`
	Status    WorkflowStatus   `json:"status"`
}

// WorkflowPhase is the reconciled lifecycle phase of a Workflow resource.
type WorkflowPhase string

const (
	WorkflowPhasePending   WorkflowPhase = "pending"
	WorkflowPhaseRunning   WorkflowPhase = "running"
	WorkflowPhaseSucceeded WorkflowPhase = "succeeded"
	WorkflowPhaseFailed    WorkflowPhase = "failed"
)

// WorkflowStatus is the status subresource of a Workflow resource.
type WorkflowStatus struct {
	Phase          WorkflowPhase          `json:"phase"`
	StepsCompleted int                    `json:"steps_completed"`
	CurrentStep    string                 `json:"current_step,omitempty"`
	StartTime      *time.Time             `json:"start_time,omitempty"`
	CompletionTime *time.Time             `json:"completion_time,omitempty"`
	Error          string                 `json:"error,omitempty"`
	Outputs        map[string]interface{} `json:"outputs,omitempty"`
}

// Key returns the (namespace,name) identity used by the Resource Registry.
func (w *Workflow) Key() RegistryKey {
	return RegistryKey{Kind: KindWorkflow, Namespace: w.Namespace, Name: w.Name}
}

// StepByName returns the step with the given name, or nil.
func (w *Workflow) StepByName(name string) *WorkflowStep {
	for i := range w.Steps {
		if w.Steps[i].Name == name {
			return &w.Steps[i]
		}
	}
	return nil
}
