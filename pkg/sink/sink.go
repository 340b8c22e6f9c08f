// Package sink implements the Sink Dispatcher (spec §4.8): for each
// configured Sink, render its template against the run's context and route
// the payload over the sink-specific transport, retrying only where that
// transport is idempotent.
package sink

import (
	"context"
	"fmt"

	"github.com/incidentctl/controlplane/pkg/model"
	"github.com/incidentctl/controlplane/pkg/registry"
	"github.com/incidentctl/controlplane/pkg/template"
)

// Transport delivers one rendered payload to a sink's destination.
// Idempotent reports whether repeated delivery of the same payload is safe
// to retry (spec §4.8: "Retries are idempotent where the transport is
// idempotent ... non-idempotent ones are attempted once unless the
// transport explicitly supports dedup keys").
type Transport interface {
	Deliver(ctx context.Context, sink *model.Sink, payload string, run *model.WorkflowRun) error
	Idempotent() bool
}

// Materializable is implemented by transports that hold a static dispatch
// handle worth validating eagerly at Sink reconciliation time (spec §4.2
// "eagerly materialize static dispatch handles ... and validate
// credentials reference"). Transports that need nothing more than the Sink
// spec itself (stdout) don't implement it.
type Materializable interface {
	Materialize(ctx context.Context, sink *model.Sink) error
}

// Dispatcher routes Sink deliveries to the transport registered for the
// Sink's type. It implements both engine.SinkDispatcher and
// controller.Materializer without importing either package, the same
// narrow-interface inversion those packages already apply to pkg/store.
type Dispatcher struct {
	Registry   *registry.Registry
	transports map[model.SinkType]Transport
}

// NewDispatcher builds a Dispatcher with no transports registered; callers
// wire in the ones they need via RegisterTransport.
func NewDispatcher(reg *registry.Registry) *Dispatcher {
	return &Dispatcher{
		Registry:   reg,
		transports: map[model.SinkType]Transport{},
	}
}

// RegisterTransport binds a Transport to a SinkType.
func (d *Dispatcher) RegisterTransport(t model.SinkType, transport Transport) {
	d.transports[t] = transport
}

// Dispatch renders sink.Config.Template against {source, workflow, run}
// context and delivers it over the registered transport (spec §4.8).
func (d *Dispatcher) Dispatch(ctx context.Context, s *model.Sink, run *model.WorkflowRun) error {
	transport, ok := d.transports[s.Type]
	if !ok {
		return fmt.Errorf("sink: no transport registered for type %q", s.Type)
	}

	payload, err := template.Render(s.Config.Template, buildContext(s, run))
	if err != nil {
		return fmt.Errorf("sink: rendering template for %s/%s: %w", s.Namespace, s.Name, err)
	}

	return transport.Deliver(ctx, s, payload, run)
}

// Materialize validates and warms the transport's static dispatch handle
// for s, satisfying controller.Materializer. Transports that don't need
// eager materialization are a no-op.
func (d *Dispatcher) Materialize(ctx context.Context, s *model.Sink) error {
	transport, ok := d.transports[s.Type]
	if !ok {
		return fmt.Errorf("sink: no transport registered for type %q", s.Type)
	}
	if m, ok := transport.(Materializable); ok {
		return m.Materialize(ctx, s)
	}
	return nil
}

// buildContext assembles the {source, workflow, run} template context a
// Sink's template renders against (spec §4.8). "source" here means the
// triggering event's identity, not the full alert payload, which already
// lives under run.Context.
func buildContext(s *model.Sink, run *model.WorkflowRun) map[string]interface{} {
	ctxMap := run.Context.AsMap()
	return map[string]interface{}{
		"source":   run.TriggerSource,
		"workflow": run.WorkflowRef.Name,
		"run": map[string]interface{}{
			"id":    run.RunID.String(),
			"state": string(run.State),
		},
		"input":   ctxMap["input"],
		"steps":   ctxMap["steps"],
		"alert":   ctxMap["alert"],
		"outputs": run.Outputs,
	}
}

var (
	_ Transport = (*StdoutTransport)(nil)
)
