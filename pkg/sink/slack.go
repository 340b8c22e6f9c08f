package sink

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
	"github.com/sony/gobreaker"

	"github.com/incidentctl/controlplane/internal/apperrors"
	"github.com/incidentctl/controlplane/pkg/model"
)

// SlackTransport posts the rendered payload to a Slack incoming webhook
// (spec's DOMAIN STACK "Slack sink: slack-go/slack"). Slack webhooks have
// no dedup key, so a retried post creates a second message; the transport
// is therefore non-idempotent (spec §4.8) and wrapped in a circuit breaker
// (SPEC_FULL.md supplemented feature #4) so a failing webhook doesn't pile
// up duplicate posts once it recovers mid-retry-storm.
type SlackTransport struct {
	breaker *gobreaker.CircuitBreaker
}

// NewSlackTransport builds a SlackTransport with its own circuit breaker.
func NewSlackTransport() *SlackTransport {
	settings := gobreaker.Settings{
		Name: "sink:slack",
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	}
	return &SlackTransport{breaker: gobreaker.NewCircuitBreaker(settings)}
}

func (t *SlackTransport) Idempotent() bool { return false }

func (t *SlackTransport) Materialize(_ context.Context, s *model.Sink) error {
	if s.Config.WebhookURL == "" {
		return apperrors.NewValidationError(fmt.Sprintf("sink %s/%s: missing config.webhookURL", s.Namespace, s.Name))
	}
	return nil
}

func (t *SlackTransport) Deliver(_ context.Context, s *model.Sink, payload string, _ *model.WorkflowRun) error {
	msg := &slack.WebhookMessage{Channel: s.Config.Channel, Text: payload}

	_, err := t.breaker.Execute(func() (interface{}, error) {
		return nil, slack.PostWebhook(s.Config.WebhookURL, msg)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return apperrors.NewSinkDeliveryError(s.Name, fmt.Errorf("circuit open: %w", err))
		}
		return apperrors.NewSinkDeliveryError(s.Name, err)
	}
	return nil
}
