package sink

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/incidentctl/controlplane/internal/apperrors"
	"github.com/incidentctl/controlplane/pkg/model"
	"github.com/incidentctl/controlplane/pkg/shared/httpconfig"
)

// HTTPTransport posts the rendered payload as the request body to
// s.Config.Endpoint. It backs both the AlertManager and Prometheus sink
// types, which the spec calls out as idempotent (repeated annotation posts
// converge on the same alert state).
type HTTPTransport struct {
	client      *http.Client
	contentType string
}

// NewHTTPTransport builds an HTTPTransport using the shared default client
// configuration (spec's DOMAIN STACK "HTTP client plumbing: pkg/shared/http
// ... Sink transports").
func NewHTTPTransport(contentType string) *HTTPTransport {
	return &HTTPTransport{
		client:      httpconfig.NewClient(httpconfig.DefaultClientConfig()),
		contentType: contentType,
	}
}

func (t *HTTPTransport) Idempotent() bool { return true }

func (t *HTTPTransport) Materialize(_ context.Context, s *model.Sink) error {
	if s.Config.Endpoint == "" {
		return apperrors.NewValidationError(fmt.Sprintf("sink %s/%s: missing config.endpoint", s.Namespace, s.Name))
	}
	return nil
}

func (t *HTTPTransport) Deliver(ctx context.Context, s *model.Sink, payload string, _ *model.WorkflowRun) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Config.Endpoint, bytes.NewBufferString(payload))
	if err != nil {
		return apperrors.NewSinkDeliveryError(s.Name, err)
	}
	if t.contentType != "" {
		req.Header.Set("Content-Type", t.contentType)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return apperrors.NewSinkDeliveryError(s.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return apperrors.NewSinkDeliveryError(s.Name, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
	return nil
}
