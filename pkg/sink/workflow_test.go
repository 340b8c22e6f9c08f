package sink

import (
	"context"
	"testing"

	"github.com/incidentctl/controlplane/pkg/model"
)

type fakeTrigger struct {
	enqueued []*model.WorkflowRun
	err      error
}

func (f *fakeTrigger) Enqueue(run *model.WorkflowRun) error {
	if f.err != nil {
		return f.err
	}
	f.enqueued = append(f.enqueued, run)
	return nil
}

func TestWorkflowTransportEnqueuesChainedRun(t *testing.T) {
	trigger := &fakeTrigger{}
	transport := NewWorkflowTransport(trigger)

	s := &model.Sink{Name: "chain", Namespace: "default", Type: model.SinkTypeWorkflow, Config: model.SinkConfig{ChainedWorkflowRef: "remediate"}}
	run := newTestRun()

	if err := transport.Deliver(context.Background(), s, "diagnosis complete", run); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if len(trigger.enqueued) != 1 {
		t.Fatalf("expected one chained run enqueued, got %d", len(trigger.enqueued))
	}
	chained := trigger.enqueued[0]
	if chained.WorkflowRef.Name != "remediate" {
		t.Fatalf("expected chained run to target workflow %q, got %q", "remediate", chained.WorkflowRef.Name)
	}
	if chained.Context.Input != "diagnosis complete" {
		t.Fatalf("expected chained run input to carry rendered payload, got %v", chained.Context.Input)
	}
}

func TestWorkflowTransportPropagatesEnqueueError(t *testing.T) {
	trigger := &fakeTrigger{err: context.DeadlineExceeded}
	transport := NewWorkflowTransport(trigger)

	s := &model.Sink{Name: "chain", Namespace: "default", Type: model.SinkTypeWorkflow, Config: model.SinkConfig{ChainedWorkflowRef: "remediate"}}
	if err := transport.Deliver(context.Background(), s, "payload", newTestRun()); err == nil {
		t.Fatalf("expected error propagated from trigger")
	}
}

func TestWorkflowTransportIsNonIdempotent(t *testing.T) {
	transport := NewWorkflowTransport(&fakeTrigger{})
	if transport.Idempotent() {
		t.Fatalf("expected workflow chaining transport to be non-idempotent")
	}
}
