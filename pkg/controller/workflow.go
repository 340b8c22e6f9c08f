package controller

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/go-playground/validator/v10"
	"github.com/google/go-containerregistry/pkg/name"

	"github.com/incidentctl/controlplane/internal/apperrors"
	"github.com/incidentctl/controlplane/pkg/model"
	"github.com/incidentctl/controlplane/pkg/registry"
)

// WorkflowController reconciles Workflow resources (spec §4.2): validates
// the spec and upserts it into the Resource Registry. Presence in the
// registry is sufficient — triggering a run is the Ingress Dispatcher's
// job, not the controller's.
type WorkflowController struct {
	Registry *registry.Registry
	Log      logr.Logger

	validate *validator.Validate
}

// NewWorkflowController builds a WorkflowController over reg.
func NewWorkflowController(reg *registry.Registry, log logr.Logger) *WorkflowController {
	return &WorkflowController{Registry: reg, Log: log, validate: validator.New()}
}

// Run drains events until the channel closes or ctx is cancelled.
func (c *WorkflowController) Run(ctx context.Context, events <-chan WorkflowEvent) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-events:
			if !ok {
				return nil
			}
			c.reconcile(event)
		}
	}
}

func (c *WorkflowController) reconcile(event WorkflowEvent) {
	if event.Kind == ChangeDelete {
		c.Registry.DeleteWorkflow(event.Key)
		c.Log.Info("workflow deleted", "namespace", event.Key.Namespace, "name", event.Key.Name)
		return
	}

	workflow := event.Spec
	workflow.Status.Phase = model.WorkflowPhasePending

	if err := c.validateWorkflow(workflow); err != nil {
		workflow.Status.Phase = model.WorkflowPhaseFailed
		workflow.Status.Error = err.Error()
		c.Log.Info("workflow validation failed", "namespace", workflow.Namespace, "name", workflow.Name, "reason", err.Error())
		return
	}

	if err := detectSinkCycle(c.Registry, workflow.Key(), workflow.Sinks); err != nil {
		workflow.Status.Phase = model.WorkflowPhaseFailed
		workflow.Status.Error = err.Error()
		c.Log.Info("workflow sink chain cycle detected", "namespace", workflow.Namespace, "name", workflow.Name, "reason", err.Error())
		return
	}

	c.Registry.UpsertWorkflow(workflow)

	workflow.Status.Error = ""
	c.Log.Info("workflow registered", "namespace", workflow.Namespace, "name", workflow.Name)
}

// validateWorkflow applies struct-tag validation plus the semantic checks
// spec §3 calls out: unique step names within the workflow, and a
// resolvable container image reference for the runtime.
func (c *WorkflowController) validateWorkflow(w *model.Workflow) error {
	if err := c.validate.Struct(w); err != nil {
		return apperrors.NewValidationError(err.Error())
	}

	seen := make(map[string]bool, len(w.Steps))
	for _, step := range w.Steps {
		if seen[step.Name] {
			return apperrors.NewValidationError(fmt.Sprintf("duplicate step name %q", step.Name))
		}
		seen[step.Name] = true

		switch step.Kind {
		case model.StepKindCLIStep:
			if step.CLI == nil {
				return apperrors.NewValidationError(fmt.Sprintf("step %q declares kind cli but has no cli config", step.Name))
			}
		case model.StepKindAgentStep:
			if step.Agent == nil {
				return apperrors.NewValidationError(fmt.Sprintf("step %q declares kind agent but has no agent config", step.Name))
			}
		case model.StepKindConditionalStep:
			if step.Conditional == nil {
				return apperrors.NewValidationError(fmt.Sprintf("step %q declares kind conditional but has no conditional config", step.Name))
			}
		}
	}

	if _, err := name.ParseReference(w.Runtime.Image); err != nil {
		return apperrors.NewValidationError(fmt.Sprintf("runtime.image %q is not a valid container image reference: %s", w.Runtime.Image, err.Error()))
	}

	return nil
}

// detectSinkCycle implements spec §9's open question on sink-triggered
// workflow chains: "Implementations should reject cyclic sink chains at
// reconciliation time." It walks forward from this workflow's declared
// sinks, following any type=workflow sink into its chained workflow's own
// sinks, and fails if that walk ever revisits `root`.
func detectSinkCycle(reg *registry.Registry, root model.RegistryKey, sinkNames []string) error {
	visited := map[model.RegistryKey]bool{root: true}
	return walkSinkChain(reg, root.Namespace, sinkNames, visited, root)
}

func walkSinkChain(reg *registry.Registry, namespace string, sinkNames []string, visited map[model.RegistryKey]bool, root model.RegistryKey) error {
	for _, sinkName := range sinkNames {
		key := model.RegistryKey{Kind: model.KindSink, Namespace: namespace, Name: sinkName}
		sink, ok := reg.GetSink(key)
		if !ok || sink.Type != model.SinkTypeWorkflow {
			continue
		}

		nextWorkflowKey := model.RegistryKey{Kind: model.KindWorkflow, Namespace: namespace, Name: sink.Config.ChainedWorkflowRef}
		if nextWorkflowKey == root {
			return fmt.Errorf("sink %q chains back to workflow %s/%s, forming a cycle", sinkName, root.Namespace, root.Name)
		}
		if visited[nextWorkflowKey] {
			continue
		}
		visited[nextWorkflowKey] = true

		nextWorkflow, ok := reg.GetWorkflow(nextWorkflowKey)
		if !ok {
			continue
		}
		if err := walkSinkChain(reg, namespace, nextWorkflow.Sinks, visited, root); err != nil {
			return err
		}
	}
	return nil
}
