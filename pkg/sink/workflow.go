package sink

import (
	"context"
	"fmt"

	"github.com/incidentctl/controlplane/internal/apperrors"
	"github.com/incidentctl/controlplane/pkg/model"
)

// WorkflowTrigger enqueues a new WorkflowRun for a chained workflow. It is
// the narrow capability WorkflowTransport needs from the Engine, defined
// here rather than imported from pkg/engine to keep the same
// dependency-inversion shape as engine.SinkDispatcher and
// controller.Materializer.
type WorkflowTrigger interface {
	Enqueue(run *model.WorkflowRun) error
}

// WorkflowTransport implements the `workflow` sink type (spec §3's chained
// sinks, and §9's cyclic-chain design note): delivery means enqueuing a
// fresh run of the chained workflow, carrying the triggering run's
// rendered payload forward as that run's input. Re-enqueuing on retry
// would just fan out more runs, not converge on one, so this transport is
// non-idempotent.
type WorkflowTransport struct {
	Trigger WorkflowTrigger
}

// NewWorkflowTransport builds a WorkflowTransport.
func NewWorkflowTransport(trigger WorkflowTrigger) *WorkflowTransport {
	return &WorkflowTransport{Trigger: trigger}
}

func (t *WorkflowTransport) Idempotent() bool { return false }

func (t *WorkflowTransport) Deliver(_ context.Context, s *model.Sink, payload string, run *model.WorkflowRun) error {
	if t.Trigger == nil {
		return apperrors.NewSinkDeliveryError(s.Name, fmt.Errorf("workflow sink transport has no trigger configured"))
	}

	chainedRef := model.RegistryKey{Kind: model.KindWorkflow, Namespace: s.Namespace, Name: s.Config.ChainedWorkflowRef}
	metadata := run.Context.Metadata
	chained := model.NewWorkflowRun(chainedRef, fmt.Sprintf("sink:%s/%s", s.Namespace, s.Name), model.NewWorkflowContext(payload, metadata))

	if err := t.Trigger.Enqueue(chained); err != nil {
		return apperrors.NewSinkDeliveryError(s.Name, err)
	}
	return nil
}
