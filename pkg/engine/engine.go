// Package engine implements the Workflow Engine (spec §4.4): a bounded
// FIFO queue fed by the Ingress Dispatcher and by workflow-type sinks, drained by a
// semaphore-gated pool of concurrent run workers, each driving one
// WorkflowRun through its state machine (pending -> running ->
// {succeeded | failed}) and persisting progress to the Store at every
// transition.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/incidentctl/controlplane/internal/apperrors"
	"github.com/incidentctl/controlplane/pkg/executor"
	"github.com/incidentctl/controlplane/pkg/metrics"
	"github.com/incidentctl/controlplane/pkg/model"
	"github.com/incidentctl/controlplane/pkg/registry"
	"github.com/incidentctl/controlplane/pkg/store"
	"github.com/incidentctl/controlplane/pkg/template"
)

// tracer emits one span per workflow step, named after the step's kind, so
// a run's trace shows exactly where time and failures accumulated across
// the CLI/agent/conditional boundary (spec §5 "Suspension points occur at:
// ... tool execution").
var tracer = otel.Tracer("github.com/incidentctl/controlplane/pkg/engine")

// SinkDispatcher is the Sink Dispatcher's interface as the engine needs it
// (spec §4.4 step 4 "dispatch via Sink Dispatcher in fire-and-forget mode
// with per-sink retry"). Defined here, rather than imported from pkg/sink,
// so the engine depends only on the narrow capability it actually uses —
// the same inversion pkg/store applies to durability.
type SinkDispatcher interface {
	Dispatch(ctx context.Context, sink *model.Sink, run *model.WorkflowRun) error
}

// Engine drains the run queue and drives each WorkflowRun to a terminal
// state.
type Engine struct {
	Store    store.Store
	Registry *registry.Registry
	Executor *executor.Executor
	Sinks    SinkDispatcher
	Metrics  *metrics.Metrics

	queue chan *model.WorkflowRun
	sem   *semaphore.Weighted
}

// New builds an Engine with the given bounded queue capacity and maximum
// concurrent run workers.
func New(st store.Store, reg *registry.Registry, exec *executor.Executor, sinks SinkDispatcher, m *metrics.Metrics, queueCapacity, maxConcurrentRuns int) *Engine {
	return &Engine{
		Store:    st,
		Registry: reg,
		Executor: exec,
		Sinks:    sinks,
		Metrics:  m,
		queue:    make(chan *model.WorkflowRun, queueCapacity),
		sem:      semaphore.NewWeighted(int64(maxConcurrentRuns)),
	}
}

// Enqueue submits a run for execution. A full queue returns a
// BackpressureError rather than blocking the caller (spec §7
// "BackpressureError").
func (e *Engine) Enqueue(run *model.WorkflowRun) error {
	select {
	case e.queue <- run:
		e.observeQueueDepth()
		return nil
	default:
		return apperrors.NewBackpressureError("workflow_engine")
	}
}

func (e *Engine) observeQueueDepth() {
	if e.Metrics != nil {
		e.Metrics.QueueDepth.Set(float64(len(e.queue)))
	}
}

// Run drains the queue until ctx is cancelled, processing up to
// maxConcurrentRuns runs concurrently via a semaphore-gated errgroup. It
// returns once every in-flight run has completed after cancellation.
func (e *Engine) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	for {
		select {
		case <-ctx.Done():
			return g.Wait()
		case run, ok := <-e.queue:
			if !ok {
				return g.Wait()
			}
			e.observeQueueDepth()
			if err := e.sem.Acquire(gctx, 1); err != nil {
				return g.Wait()
			}
			g.Go(func() error {
				defer e.sem.Release(1)
				e.processRun(gctx, run)
				return nil
			})
		}
	}
}

// processRun implements spec §4.4's per-run procedure (steps 1-5).
func (e *Engine) processRun(ctx context.Context, run *model.WorkflowRun) {
	workflow, ok := e.Registry.GetWorkflow(run.WorkflowRef)
	if !ok {
		e.fail(ctx, nil, run, fmt.Errorf("workflow %s/%s no longer registered", run.WorkflowRef.Namespace, run.WorkflowRef.Name))
		return
	}

	now := time.Now()
	run.State = model.RunStateRunning
	run.StartedAt = &now
	e.persistProgress(ctx, run)

	for i := range workflow.Steps {
		step := &workflow.Steps[i]
		snapshot := run.Context.AsMap()

		out, err := e.runStep(ctx, run, step, snapshot)
		if err != nil {
			// Partial output of the failing step (e.g. a CLI step's
			// stderr) is preserved for audit even though the run did
			// not succeed (spec §8 scenario 5 "partial outputs contain
			// step 1's stderr").
			if out != nil {
				run.StepOutputs.Set(step.Name, out)
				run.Context.Steps[step.Name] = out
			}
			e.fail(ctx, workflow, run, err)
			return
		}

		run.StepOutputs.Set(step.Name, out)
		run.Context.Steps[step.Name] = out
		e.persistProgress(ctx, run)
	}

	outputs, err := renderOutputs(workflow.Outputs, run.Context.AsMap())
	if err != nil {
		e.fail(ctx, workflow, run, err)
		return
	}
	run.Outputs = outputs

	completed := time.Now()
	run.State = model.RunStateSucceeded
	run.CompletedAt = &completed
	if e.Store != nil {
		_ = e.Store.CompleteWorkflow(ctx, run)
	}
	if e.Metrics != nil {
		e.Metrics.WorkflowRunsTotal.WithLabelValues(string(model.RunStateSucceeded)).Inc()
	}

	e.dispatchSinks(ctx, workflow, run)
}

// runStep wraps one step invocation in its own span, tagged with the run
// and step identity, so a failed or slow step is attributable in a trace
// viewer without reading logs first.
func (e *Engine) runStep(ctx context.Context, run *model.WorkflowRun, step *model.WorkflowStep, snapshot map[string]interface{}) (interface{}, error) {
	ctx, span := tracer.Start(ctx, "workflow.step."+string(step.Kind),
		trace.WithAttributes(
			attribute.String("workflow.run_id", run.RunID.String()),
			attribute.String("workflow.step.name", step.Name),
			attribute.String("workflow.step.kind", string(step.Kind)),
		),
	)
	defer span.End()

	out, err := e.Executor.Run(ctx, run.RunID, step, snapshot)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return out, err
}

// fail transitions run to its terminal failed state and still dispatches
// sinks referenced by workflow, so a failed run's final workflow event
// (status=failed) reaches its configured destinations just like a
// succeeded one (spec §8 scenario 5 "sinks still receive the final
// workflow event with status=failed"). workflow may be nil when the run
// failed before its workflow could even be resolved, in which case there
// is nothing to dispatch to.
func (e *Engine) fail(ctx context.Context, workflow *model.Workflow, run *model.WorkflowRun, cause error) {
	completed := time.Now()
	run.State = model.RunStateFailed
	run.Error = cause.Error()
	run.CompletedAt = &completed
	if e.Store != nil {
		_ = e.Store.CompleteWorkflow(ctx, run)
	}
	if e.Metrics != nil {
		e.Metrics.WorkflowRunsTotal.WithLabelValues(string(model.RunStateFailed)).Inc()
	}
	if workflow != nil {
		e.dispatchSinks(ctx, workflow, run)
	}
}

func (e *Engine) persistProgress(ctx context.Context, run *model.WorkflowRun) {
	if e.Store != nil {
		_ = e.Store.UpdateWorkflowProgress(ctx, run)
	}
}

// renderOutputs implements spec §4.4 step 3: render each declared output's
// template against the final context.
func renderOutputs(declared []model.WorkflowOutput, ctxMap map[string]interface{}) (map[string]interface{}, error) {
	if len(declared) == 0 {
		return nil, nil
	}
	outputs := make(map[string]interface{}, len(declared))
	for _, o := range declared {
		rendered, err := template.Render(o.Template, ctxMap)
		if err != nil {
			return nil, fmt.Errorf("rendering output %q: %w", o.Name, err)
		}
		outputs[o.Name] = rendered
	}
	return outputs, nil
}

// dispatchSinks implements spec §4.4 step 4: evaluate each referenced
// sink's condition, then dispatch in fire-and-forget mode with per-sink
// retry. Delivery failures are non-fatal to the run (spec §4.4 "Failure
// semantics").
func (e *Engine) dispatchSinks(ctx context.Context, workflow *model.Workflow, run *model.WorkflowRun) {
	if e.Sinks == nil {
		return
	}
	ctxMap := run.Context.AsMap()

	for _, sinkName := range workflow.Sinks {
		key := model.RegistryKey{Kind: model.KindSink, Namespace: workflow.Namespace, Name: sinkName}
		sink, ok := e.Registry.GetSink(key)
		if !ok {
			continue
		}

		proceed, err := evaluateSinkCondition(sink.Condition, ctxMap)
		if err != nil || !proceed {
			continue
		}

		go e.deliverWithRetry(ctx, sink, run)
	}
}

// evaluateSinkCondition implements spec §4.4 step 4's "absent or
// non-empty rendered result => proceed" rule.
func evaluateSinkCondition(condition string, ctxMap map[string]interface{}) (bool, error) {
	if condition == "" {
		return true, nil
	}
	rendered, err := template.Render(condition, ctxMap)
	if err != nil {
		return false, err
	}
	return rendered != "", nil
}

// maxSinkDeliveryAttempts matches spec §4.4 step 4 "exponential, max 3 attempts".
const maxSinkDeliveryAttempts = 3

// deliverWithRetry dispatches one sink with exponential backoff, recording
// every attempt's outcome to the Store regardless of final success (spec
// §6 "sink_outputs" table). Delivery failures never propagate to the run.
func (e *Engine) deliverWithRetry(ctx context.Context, sink *model.Sink, run *model.WorkflowRun) {
	attempt := 0
	backoff := retry.NewExponential(200 * time.Millisecond)
	backoff = retry.WithMaxRetries(uint64(maxSinkDeliveryAttempts-1), backoff)

	deliveryErr := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := e.Sinks.Dispatch(ctx, sink, run)
		success := err == nil
		e.recordSinkOutcome(ctx, sink, run, attempt, success, err)
		if e.Metrics != nil {
			outcome := "success"
			if err != nil {
				outcome = "error"
			}
			e.Metrics.SinkDeliveryTotal.WithLabelValues(string(sink.Type), outcome).Inc()
		}
		if err != nil {
			return retry.RetryableError(apperrors.NewSinkDeliveryError(sink.Name, err))
		}
		return nil
	})
	_ = deliveryErr
}

func (e *Engine) recordSinkOutcome(ctx context.Context, sink *model.Sink, run *model.WorkflowRun, attempt int, success bool, deliveryErr error) {
	if e.Store == nil {
		return
	}
	outcome := &store.SinkOutcome{
		ID:          uuid.New(),
		RunID:       run.RunID,
		SinkRef:     sink.Key(),
		Attempt:     attempt,
		Success:     success,
		DeliveredAt: time.Now(),
	}
	if deliveryErr != nil {
		outcome.Error = deliveryErr.Error()
	}
	_ = e.Store.RecordSinkOutput(ctx, outcome)
}
