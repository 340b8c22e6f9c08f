// Package ingress implements the Ingress Dispatcher (spec §4.3): webhook
// authentication, payload parsing, filtering, fingerprinting, dedup/rate
// limiting, and enqueueing matched alerts as WorkflowRuns.
package ingress

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/incidentctl/controlplane/internal/apperrors"
	"github.com/incidentctl/controlplane/pkg/fingerprint"
	"github.com/incidentctl/controlplane/pkg/ingress/classifier"
	"github.com/incidentctl/controlplane/pkg/metrics"
	"github.com/incidentctl/controlplane/pkg/model"
	"github.com/incidentctl/controlplane/pkg/registry"
	"github.com/incidentctl/controlplane/pkg/store"
)

// Trigger enqueues a new WorkflowRun. Defined here, rather than imported
// from pkg/engine, for the same narrow-dependency reason
// engine.SinkDispatcher and controller.Materializer are defined at their
// consumer sites.
type Trigger interface {
	Enqueue(run *model.WorkflowRun) error
}

// Dispatcher implements the Ingress Dispatcher's webhook procedure (spec
// §4.3).
type Dispatcher struct {
	Registry    *registry.Registry
	Store       store.Store
	Trigger     Trigger
	RateLimiter *RateLimiter
	Classifier  *classifier.Classifier
	Metrics     *metrics.Metrics
	Log         *logrus.Entry
}

// New builds a Dispatcher. rateLimiter, cls, and m may be nil; the
// corresponding behavior (rate limiting, severity classification, metrics)
// is then skipped.
func New(reg *registry.Registry, st store.Store, trigger Trigger, rateLimiter *RateLimiter, cls *classifier.Classifier, m *metrics.Metrics, log *logrus.Entry) *Dispatcher {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Dispatcher{
		Registry:    reg,
		Store:       st,
		Trigger:     trigger,
		RateLimiter: rateLimiter,
		Classifier:  cls,
		Metrics:     m,
		Log:         log,
	}
}

// HandleWebhook executes spec §4.3's procedure end to end and returns the
// count of accepted events (enqueued as a new run, or reattached to an open
// alert), or an *apperrors.AppError carrying the HTTP status the caller
// should surface. A rate-limited or backpressured alert stops the batch and
// returns its error; alerts earlier in the same payload stay enqueued.
// Other per-alert failures are logged and skipped.
func (d *Dispatcher) HandleWebhook(ctx context.Context, path string, headers http.Header, body []byte) (int, error) {
	source, ok := d.Registry.LookupSourceByWebhookPath(path)
	if !ok {
		return 0, apperrors.NewNotFoundError("source for path " + path)
	}

	if err := authenticate(source.Config.Auth, headers, body); err != nil {
		return 0, err
	}

	alerts, err := parsePayload(source.Config.PayloadFormat, body)
	if err != nil {
		return 0, err
	}

	workflow, ok := d.Registry.GetWorkflow(model.RegistryKey{
		Kind:      model.KindWorkflow,
		Namespace: source.Namespace,
		Name:      source.TriggerWorkflowRef,
	})
	if !ok {
		return 0, apperrors.NewNotFoundError("trigger workflow " + source.TriggerWorkflowRef)
	}

	accepted := 0
	for _, a := range alerts {
		ok, err := d.processAlert(ctx, source, workflow, a)
		if err != nil {
			if apperrors.IsType(err, apperrors.ErrorTypeRateLimit) || apperrors.IsType(err, apperrors.ErrorTypeBackpressure) {
				return accepted, err
			}
			d.Log.WithError(err).WithField("source", path).Warn("ingress: failed processing alert")
			continue
		}
		if ok {
			accepted++
		}
	}

	return accepted, nil
}

func (d *Dispatcher) processAlert(ctx context.Context, source *model.Source, workflow *model.Workflow, parsed parsedAlert) (bool, error) {
	if !matchesFilters(source.Config.Filters, parsed.Labels) {
		return false, nil
	}

	alertName := parsed.Labels["alertname"]
	fp := parsed.Fingerprint
	if fp == "" {
		fp = fingerprint.Compute(alertName, parsed.Labels)
	}

	sourceKey := source.Namespace + "/" + source.Name
	if d.RateLimiter != nil {
		_, rateLimited, err := d.RateLimiter.Observe(ctx, sourceKey, fp, source.Config.DedupWindow, source.Config.BurstCeiling)
		if err != nil {
			return false, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "rate limiter")
		}
		if rateLimited {
			return false, apperrors.NewRateLimitedError(sourceKey)
		}
	}

	alert, reattached, err := d.reconcileAlert(ctx, source, parsed, alertName, fp)
	if err != nil {
		return false, err
	}

	if d.Store != nil {
		_ = d.Store.RecordSourceEvent(ctx, &store.SourceEvent{
			ID:          uuid.New(),
			SourceRef:   source.Key(),
			ReceivedAt:  time.Now(),
			Fingerprint: fp,
			RawPayload:  rawPayloadJSON(parsed.Raw),
		})
	}

	// Dedup correctness (spec §8, §9): a reattach to an already-open alert
	// within the dedup window must not enqueue a second WorkflowRun.
	if !reattached {
		workflowContext := buildWorkflowContext(source, workflow, alert, parsed)
		run := model.NewWorkflowRun(workflow.Key(), sourceKey, workflowContext)

		if d.Trigger != nil {
			if err := d.Trigger.Enqueue(run); err != nil {
				return false, err
			}
		}
	}

	if d.Metrics != nil {
		d.Metrics.AlertsReceivedTotal.Inc()
	}

	return true, nil
}

// reconcileAlert implements spec §4.3 step 4.b: reattach to an open alert
// with the same fingerprint received within the dedup window, or create a
// new one. The bool result reports whether an existing alert was reattached
// (true) rather than a new one created (false), so the caller can suppress
// enqueueing a second WorkflowRun for the same open alert.
func (d *Dispatcher) reconcileAlert(ctx context.Context, source *model.Source, parsed parsedAlert, alertName, fp string) (*model.Alert, bool, error) {
	severity := parsed.Labels["severity"]
	if severity == "" && d.Classifier != nil {
		classified, err := d.Classifier.Classify(ctx, parsed.Labels, parsed.Annotations)
		if err == nil {
			severity = classified
		}
	}

	if d.Store != nil {
		open, err := d.Store.ListOpenAlertsByFingerprint(ctx, fp)
		if err != nil {
			return nil, false, apperrors.NewStoreError("list_open_alerts", err)
		}
		window := source.Config.DedupWindow
		if window <= 0 {
			window = 30 * time.Second
		}
		if len(open) > 0 && time.Since(open[0].Timings.ReceivedAt) <= window {
			existing := open[0]
			// RepeatCount tracks total sightings of this fingerprint
			// (spec §8 scenario 3: 3 arrivals -> counter >= 3), not just
			// repeats beyond the first.
			existing.RepeatCount++
			if err := d.Store.SaveAlert(ctx, existing); err != nil {
				return nil, false, apperrors.NewStoreError("save_alert", err)
			}
			return existing, true, nil
		}
	}

	alert := &model.Alert{
		ID:          uuid.New(),
		Fingerprint: fp,
		Status:      model.AlertStatusReceived,
		Severity:    severity,
		AlertName:   alertName,
		Labels:      parsed.Labels,
		Annotations: parsed.Annotations,
		SourceRef:   source.Name,
		WorkflowRef: source.TriggerWorkflowRef,
		RepeatCount: 1,
		Timings:     model.AlertTimings{ReceivedAt: time.Now()},
	}
	if d.Store != nil {
		if err := d.Store.SaveAlert(ctx, alert); err != nil {
			return nil, false, apperrors.NewStoreError("save_alert", err)
		}
	}
	return alert, false, nil
}

func rawPayloadJSON(raw map[string]interface{}) string {
	b, err := json.Marshal(raw)
	if err != nil {
		return ""
	}
	return string(b)
}

// buildWorkflowContext implements spec §4.3 step 4.c: `{source: {data:
// <alert>}, env: <runtime.env>, alert: <labels+annotations>}`, merged with
// the Source's context_overlay.
func buildWorkflowContext(source *model.Source, workflow *model.Workflow, alert *model.Alert, parsed parsedAlert) *model.WorkflowContext {
	alertMap := map[string]interface{}{
		"alertname":   alert.AlertName,
		"fingerprint": alert.Fingerprint,
		"severity":    alert.Severity,
		"labels":      parsed.Labels,
		"annotations": parsed.Annotations,
		"status":      parsed.Status,
	}

	env := make(map[string]string, len(workflow.Runtime.Environment)+len(source.ContextOverlay))
	for k, v := range workflow.Runtime.Environment {
		env[k] = v
	}
	for k, v := range source.ContextOverlay {
		env[k] = v
	}

	metadata := model.WorkflowContextMetadata{
		Env:     env,
		Runtime: workflow.Runtime,
		Alert:   alertMap,
	}

	input := map[string]interface{}{
		"source": map[string]interface{}{"data": parsed.Raw},
	}

	return model.NewWorkflowContext(input, metadata)
}
