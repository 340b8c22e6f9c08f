package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/mohae/deepcopy"
)

// RunState is the run-level state machine (spec §4.4): pending -> running
// -> {succeeded | failed}.
type RunState string

const (
	RunStatePending   RunState = "pending"
	RunStateRunning   RunState = "running"
	RunStateSucceeded RunState = "succeeded"
	RunStateFailed    RunState = "failed"
)

// WorkflowContextMetadata is the `metadata` arm of WorkflowContext (spec §3).
type WorkflowContextMetadata struct {
	Env     map[string]string      `json:"env,omitempty"`
	Runtime WorkflowRuntime        `json:"runtime"`
	Alert   map[string]interface{} `json:"alert,omitempty"`
}

// WorkflowContext is the data envelope propagated across steps (spec §3).
// Steps is append-only within a run: once steps[name] is written it must
// never be mutated again (the "output immutability" invariant, spec §8).
type WorkflowContext struct {
	Input    interface{}             `json:"input"`
	Steps    map[string]interface{}  `json:"steps"`
	Metadata WorkflowContextMetadata `json:"metadata"`
}

// NewWorkflowContext builds an empty context ready for step 1.
func NewWorkflowContext(input interface{}, metadata WorkflowContextMetadata) *WorkflowContext {
	return &WorkflowContext{
		Input:    input,
		Steps:    map[string]interface{}{},
		Metadata: metadata,
	}
}

// AsMap renders the context into the generic map[string]interface{} shape
// the template renderer and conditional-step path resolver operate over.
// The result is deep-copied (github.com/mohae/deepcopy) so the step
// executor always receives the read-only snapshot spec §3 requires: a step
// that mutates a map or slice reached through its snapshot must never be
// able to affect the run's actual context or a sibling step's view of it.
func (c *WorkflowContext) AsMap() map[string]interface{} {
	raw := map[string]interface{}{
		"input":   c.Input,
		"steps":   c.Steps,
		"env":     c.Metadata.Env,
		"runtime": c.Metadata.Runtime,
		"alert":   c.Metadata.Alert,
	}
	if copied, ok := deepcopy.Copy(raw).(map[string]interface{}); ok {
		return copied
	}
	return raw
}

// StepOutputs is the ordered record of per-step outputs kept on a
// WorkflowRun (an ordered map: insertion order is preserved alongside the
// name->value lookup used by templates and conditionals).
type StepOutputs struct {
	order   []string
	outputs map[string]interface{}
}

// NewStepOutputs builds an empty ordered output set.
func NewStepOutputs() *StepOutputs {
	return &StepOutputs{outputs: map[string]interface{}{}}
}

// Set records a step's output. Calling Set twice for the same name is a
// programming error (violates output immutability) and panics, since the
// engine must never attempt it.
func (s *StepOutputs) Set(name string, value interface{}) {
	if _, exists := s.outputs[name]; exists {
		panic("apperrors: step output " + name + " already recorded and is immutable")
	}
	s.order = append(s.order, name)
	s.outputs[name] = value
}

// Get looks up a previously recorded step output.
func (s *StepOutputs) Get(name string) (interface{}, bool) {
	v, ok := s.outputs[name]
	return v, ok
}

// Ordered returns (name, value) pairs in the order steps completed.
func (s *StepOutputs) Ordered() []struct {
	Name  string
	Value interface{}
} {
	out := make([]struct {
		Name  string
		Value interface{}
	}, len(s.order))
	for i, name := range s.order {
		out[i] = struct {
			Name  string
			Value interface{}
		}{Name: name, Value: s.outputs[name]}
	}
	return out
}

// AsMap snapshots the outputs recorded so far as a plain map, matching the
// shape expected under context.steps.
func (s *StepOutputs) AsMap() map[string]interface{} {
	out := make(map[string]interface{}, len(s.outputs))
	for k, v := range s.outputs {
		out[k] = v
	}
	return out
}

// WorkflowRun is the runtime record of one execution (spec §3).
type WorkflowRun struct {
	RunID         uuid.UUID              `json:"run_id"`
	WorkflowRef   RegistryKey            `json:"workflow_ref"`
	TriggerSource string                 `json:"trigger_source"`
	State         RunState               `json:"state"`
	Context       *WorkflowContext       `json:"context"`
	StepOutputs   *StepOutputs           `json:"-"`
	Outputs       map[string]interface{} `json:"outputs,omitempty"`
	Error         string                 `json:"error,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
	StartedAt     *time.Time             `json:"started_at,omitempty"`
	CompletedAt   *time.Time             `json:"completed_at,omitempty"`
}

// NewWorkflowRun creates a pending run ready to be queued.
func NewWorkflowRun(workflowRef RegistryKey, triggerSource string, ctx *WorkflowContext) *WorkflowRun {
	return &WorkflowRun{
		RunID:         uuid.New(),
		WorkflowRef:   workflowRef,
		TriggerSource: triggerSource,
		State:         RunStatePending,
		Context:       ctx,
		StepOutputs:   NewStepOutputs(),
		CreatedAt:     time.Now(),
	}
}
