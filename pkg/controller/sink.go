package controller

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-playground/validator/v10"
	"github.com/sethvargo/go-retry"

	"github.com/incidentctl/controlplane/internal/apperrors"
	"github.com/incidentctl/controlplane/pkg/model"
	"github.com/incidentctl/controlplane/pkg/registry"
)

// defaultBackendBackoff implements spec §4.2's retry policy for transient
// backend errors during materialization: "exponential backoff 5s base,
// cap 5 min".
func defaultBackendBackoff() retry.Backoff {
	b := retry.NewExponential(5 * time.Second)
	b = retry.WithCappedDuration(5*time.Minute, b)
	return retry.WithMaxRetries(5, b)
}

// Materializer eagerly builds a Sink's static dispatch handle (spec §4.2
// "For Sink: eagerly materialize static dispatch handles (e.g., HTTP
// client + template) and validate credentials reference"). Defined here
// rather than imported from pkg/sink so the controller depends only on the
// narrow capability it needs, matching the inversion pkg/store and
// pkg/engine.SinkDispatcher already apply.
type Materializer interface {
	Materialize(ctx context.Context, sink *model.Sink) error
}

// SinkController reconciles Sink resources (spec §4.2): validates the
// spec, upserts it into the Resource Registry, and eagerly materializes
// its dispatch handle.
type SinkController struct {
	Registry     *registry.Registry
	Materializer Materializer
	Log          logr.Logger

	// Backoff governs retries of transient materialization failures (spec
	// §4.2). Tests override this with a fast backoff; production uses
	// defaultBackendBackoff.
	Backoff retry.Backoff

	validate *validator.Validate
}

// NewSinkController builds a SinkController over reg. A nil materializer
// skips eager materialization (used in tests that only exercise
// validation/registry behavior).
func NewSinkController(reg *registry.Registry, materializer Materializer, log logr.Logger) *SinkController {
	return &SinkController{
		Registry:     reg,
		Materializer: materializer,
		Log:          log,
		Backoff:      defaultBackendBackoff(),
		validate:     validator.New(),
	}
}

// Run drains events until the channel closes or ctx is cancelled.
func (c *SinkController) Run(ctx context.Context, events <-chan SinkEvent) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-events:
			if !ok {
				return nil
			}
			c.reconcile(ctx, event)
		}
	}
}

func (c *SinkController) reconcile(ctx context.Context, event SinkEvent) {
	if event.Kind == ChangeDelete {
		c.Registry.DeleteSink(event.Key)
		c.Log.Info("sink deleted", "namespace", event.Key.Namespace, "name", event.Key.Name)
		return
	}

	sink := event.Spec
	sink.Status.Phase = model.SinkPhaseValidating

	if err := c.validateSink(sink); err != nil {
		sink.Status.Phase = model.SinkPhaseFailed
		sink.Status.Reason = err.Error()
		c.Log.Info("sink validation failed", "namespace", sink.Namespace, "name", sink.Name, "reason", err.Error())
		return
	}

	c.Registry.UpsertSink(sink)

	if c.Materializer != nil {
		backoff := c.Backoff
		if backoff == nil {
			backoff = defaultBackendBackoff()
		}
		err := retry.Do(ctx, backoff, func(ctx context.Context) error {
			if err := c.Materializer.Materialize(ctx, sink); err != nil {
				return retry.RetryableError(err)
			}
			return nil
		})
		if err != nil {
			sink.Status.Phase = model.SinkPhaseFailed
			sink.Status.Reason = err.Error()
			c.Log.Info("sink materialization failed", "namespace", sink.Namespace, "name", sink.Name, "reason", err.Error())
			return
		}
	}

	sink.Status.Phase = model.SinkPhaseActive
	sink.Status.Reason = ""
	c.Log.Info("sink active", "namespace", sink.Namespace, "name", sink.Name)
}

// validateSink applies struct-tag validation plus the per-type required
// field checks a tag alone can't express across SinkConfig's variant
// shape (spec §3 "Sink... config (variant by type)").
func (c *SinkController) validateSink(s *model.Sink) error {
	if err := c.validate.Struct(s); err != nil {
		return apperrors.NewValidationError(err.Error())
	}

	switch s.Type {
	case model.SinkTypeSlack:
		if s.Config.WebhookURL == "" {
			return apperrors.NewValidationError("slack sink requires config.webhookURL")
		}
	case model.SinkTypeAlertmanager, model.SinkTypePrometheus:
		if s.Config.Endpoint == "" {
			return apperrors.NewValidationError(fmt.Sprintf("%s sink requires config.endpoint", s.Type))
		}
	case model.SinkTypeJira:
		if s.Config.JiraBaseURL == "" || s.Config.JiraProject == "" {
			return apperrors.NewValidationError("jira sink requires config.jiraBaseURL and config.jiraProject")
		}
		if s.Config.OAuthTokenURL == "" || s.Config.OAuthClientID == "" {
			return apperrors.NewValidationError("jira sink requires config.oauthTokenURL and config.oauthClientID")
		}
		if s.Config.CredentialsRef == "" {
			return apperrors.NewValidationError("jira sink requires config.credentialsRef")
		}
	case model.SinkTypePagerDuty:
		if s.Config.RoutingKey == "" {
			return apperrors.NewValidationError("pagerduty sink requires config.routingKey")
		}
	case model.SinkTypeWorkflow:
		if s.Config.ChainedWorkflowRef == "" {
			return apperrors.NewValidationError("workflow sink requires config.chainedWorkflowRef")
		}
	case model.SinkTypeStdout:
		// no required config
	}

	return nil
}
