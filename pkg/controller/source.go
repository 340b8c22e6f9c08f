package controller

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/go-playground/validator/v10"

	"github.com/incidentctl/controlplane/internal/apperrors"
	"github.com/incidentctl/controlplane/pkg/model"
	"github.com/incidentctl/controlplane/pkg/registry"
)

// SourceController reconciles Source resources (spec §4.2): validates the
// spec, upserts it into the Resource Registry, and registers/unregisters
// the webhook path. State machine: new -> validating -> {active | failed}.
type SourceController struct {
	Registry *registry.Registry
	Log      logr.Logger

	validate *validator.Validate
}

// NewSourceController builds a SourceController over reg.
func NewSourceController(reg *registry.Registry, log logr.Logger) *SourceController {
	return &SourceController{Registry: reg, Log: log, validate: validator.New()}
}

// Run drains events until the channel closes or ctx is cancelled.
func (c *SourceController) Run(ctx context.Context, events <-chan SourceEvent) error {
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

// reconcile implements spec §4.2's per-resource contract for Source.
func (c *SourceController) reconcile(event SourceEvent) {
	if event.Kind == ChangeDelete {
		c.Registry.DeleteSource(event.Key)
		c.Log.Info("source deleted", "namespace", event.Key.Namespace, "name", event.Key.Name)
		return
	}

	source := event.Spec
	source.Status.Phase = model.SourcePhaseValidating

	if err := c.validateSource(source); err != nil {
		source.Status.Phase = model.SourcePhaseFailed
		source.Status.Reason = err.Error()
		c.Log.Info("source validation failed", "namespace", source.Namespace, "name", source.Name, "reason", err.Error())
		return
	}

	if err := c.Registry.UpsertSource(source); err != nil {
		source.Status.Phase = model.SourcePhaseFailed
		source.Status.Reason = err.Error()
		c.Log.Info("source webhook path conflict", "namespace", source.Namespace, "name", source.Name, "reason", err.Error())
		return
	}

	source.Status.Phase = model.SourcePhaseActive
	source.Status.Reason = ""
	c.Log.Info("source active", "namespace", source.Namespace, "name", source.Name)
}

// validateSource applies struct-tag validation plus the type-specific
// semantic checks a tag alone can't express (spec §4.2 "reject malformed
// config").
func (c *SourceController) validateSource(s *model.Source) error {
	if err := c.validate.Struct(s); err != nil {
		return apperrors.NewValidationError(err.Error())
	}

	if s.Type == model.SourceTypeWebhook {
		if s.Config.WebhookPath == "" {
			return apperrors.NewValidationError("webhook source requires config.webhookPath")
		}
		switch s.Config.Auth.Type {
		case model.SourceAuthBearer:
			if s.Config.Auth.Token == "" {
				return apperrors.NewValidationError("bearer auth requires config.auth.token")
			}
		case model.SourceAuthHMAC:
			if s.Config.Auth.Secret == "" {
				return apperrors.NewValidationError("hmac auth requires config.auth.secret")
			}
			if s.Config.Auth.Digest == "" {
				return apperrors.NewValidationError("hmac auth requires config.auth.digest")
			}
		case model.SourceAuthBasic:
			if s.Config.Auth.Username == "" || s.Config.Auth.Password == "" {
				return apperrors.NewValidationError("basic auth requires config.auth.username and config.auth.password")
			}
		case model.SourceAuthHeader:
			if s.Config.Auth.HeaderName == "" || s.Config.Auth.HeaderValue == "" {
				return apperrors.NewValidationError("custom_header auth requires config.auth.headerName and config.auth.headerValue")
			}
		case model.SourceAuthNone:
			// no credentials required
		default:
			return apperrors.NewValidationError(fmt.Sprintf("unknown auth type %q", s.Config.Auth.Type))
		}

		switch s.Config.PayloadFormat {
		case model.PayloadFormatAlertManagerV2, model.PayloadFormatGenericJSON, model.PayloadFormatPrometheus, "":
		default:
			return apperrors.NewValidationError(fmt.Sprintf("unknown payload format %q", s.Config.PayloadFormat))
		}
	}

	for key, values := range s.Config.Filters {
		if len(values) == 0 {
			return apperrors.NewValidationError(fmt.Sprintf("filter %q declares no accepted values", key))
		}
	}

	return nil
}
