package controller

import (
	"testing"

	"github.com/go-logr/logr"

	"github.com/incidentctl/controlplane/pkg/model"
	"github.com/incidentctl/controlplane/pkg/registry"
)

func validWorkflow(name string, sinks []string) *model.Workflow {
	return &model.Workflow{
		Name:      name,
		Namespace: "default",
		Runtime:   model.WorkflowRuntime{Image: "alpine:3.19"},
		Steps: []model.WorkflowStep{
			{Name: "gather", Kind: model.StepKindCLIStep, CLI: &model.CLIStepSpec{Command: "kubectl get pods"}},
		},
		Sinks: sinks,
	}
}

func TestWorkflowControllerRegistersValidWorkflow(t *testing.T) {
	reg := registry.New()
	c := NewWorkflowController(reg, logr.Discard())

	wf := validWorkflow("investigate", nil)
	c.reconcile(WorkflowEvent{Kind: ChangeCreate, Key: wf.Key(), Spec: wf})

	if wf.Status.Phase != model.WorkflowPhasePending {
		t.Fatalf("expected workflow registered with phase pending, got %s (%s)", wf.Status.Phase, wf.Status.Error)
	}
	if _, ok := reg.GetWorkflow(wf.Key()); !ok {
		t.Fatalf("expected workflow upserted into registry")
	}
}

func TestWorkflowControllerRejectsDuplicateStepNames(t *testing.T) {
	reg := registry.New()
	c := NewWorkflowController(reg, logr.Discard())

	wf := validWorkflow("dup", nil)
	wf.Steps = append(wf.Steps, model.WorkflowStep{Name: "gather", Kind: model.StepKindCLIStep, CLI: &model.CLIStepSpec{Command: "echo hi"}})

	c.reconcile(WorkflowEvent{Kind: ChangeCreate, Key: wf.Key(), Spec: wf})
	if wf.Status.Phase != model.WorkflowPhaseFailed {
		t.Fatalf("expected phase failed for duplicate step names, got %s", wf.Status.Phase)
	}
}

func TestWorkflowControllerRejectsStepKindMismatch(t *testing.T) {
	reg := registry.New()
	c := NewWorkflowController(reg, logr.Discard())

	wf := validWorkflow("mismatch", nil)
	wf.Steps[0].CLI = nil

	c.reconcile(WorkflowEvent{Kind: ChangeCreate, Key: wf.Key(), Spec: wf})
	if wf.Status.Phase != model.WorkflowPhaseFailed {
		t.Fatalf("expected phase failed when step kind has no matching config, got %s", wf.Status.Phase)
	}
}

func TestWorkflowControllerRejectsInvalidImageReference(t *testing.T) {
	reg := registry.New()
	c := NewWorkflowController(reg, logr.Discard())

	wf := validWorkflow("bad-image", nil)
	wf.Runtime.Image = "  not a valid ref  "

	c.reconcile(WorkflowEvent{Kind: ChangeCreate, Key: wf.Key(), Spec: wf})
	if wf.Status.Phase != model.WorkflowPhaseFailed {
		t.Fatalf("expected phase failed for invalid image reference, got %s", wf.Status.Phase)
	}
}

func TestWorkflowControllerDetectsSinkCycle(t *testing.T) {
	reg := registry.New()
	c := NewWorkflowController(reg, logr.Discard())

	// a -> sink(workflow:b) -> b -> sink(workflow:a) : cycle back to a
	sinkToB := &model.Sink{Name: "to-b", Namespace: "default", Type: model.SinkTypeWorkflow, Config: model.SinkConfig{ChainedWorkflowRef: "b"}}
	sinkToA := &model.Sink{Name: "to-a", Namespace: "default", Type: model.SinkTypeWorkflow, Config: model.SinkConfig{ChainedWorkflowRef: "a"}}
	reg.UpsertSink(sinkToB)
	reg.UpsertSink(sinkToA)

	wfB := validWorkflow("b", []string{"to-a"})
	reg.UpsertWorkflow(wfB)

	wfA := validWorkflow("a", []string{"to-b"})
	c.reconcile(WorkflowEvent{Kind: ChangeCreate, Key: wfA.Key(), Spec: wfA})

	if wfA.Status.Phase != model.WorkflowPhaseFailed {
		t.Fatalf("expected cycle to fail reconciliation, got phase %s", wfA.Status.Phase)
	}
}

func TestWorkflowControllerAllowsNonCyclicSinkChain(t *testing.T) {
	reg := registry.New()
	c := NewWorkflowController(reg, logr.Discard())

	sinkToB := &model.Sink{Name: "to-b", Namespace: "default", Type: model.SinkTypeWorkflow, Config: model.SinkConfig{ChainedWorkflowRef: "b"}}
	reg.UpsertSink(sinkToB)

	wfB := validWorkflow("b", nil)
	reg.UpsertWorkflow(wfB)

	wfA := validWorkflow("a", []string{"to-b"})
	c.reconcile(WorkflowEvent{Kind: ChangeCreate, Key: wfA.Key(), Spec: wfA})

	if wfA.Status.Phase != model.WorkflowPhasePending {
		t.Fatalf("expected non-cyclic chain to register cleanly, got phase %s (%s)", wfA.Status.Phase, wfA.Status.Error)
	}
}

func TestWorkflowControllerDeleteRemovesFromRegistry(t *testing.T) {
	reg := registry.New()
	c := NewWorkflowController(reg, logr.Discard())

	wf := validWorkflow("gone", nil)
	c.reconcile(WorkflowEvent{Kind: ChangeCreate, Key: wf.Key(), Spec: wf})
	c.reconcile(WorkflowEvent{Kind: ChangeDelete, Key: wf.Key()})

	if _, ok := reg.GetWorkflow(wf.Key()); ok {
		t.Fatalf("expected workflow removed from registry after delete")
	}
}
