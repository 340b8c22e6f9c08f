package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/incidentctl/controlplane/internal/apperrors"
	"github.com/incidentctl/controlplane/pkg/model"
)

// SecretResolver resolves a Sink's CredentialsRef into the actual secret
// value at delivery time. The Sink Controller validates only the
// *reference's* presence (spec §4.2 "validate credentials reference"); it
// never resolves the value itself, so the Dispatcher is handed a resolver
// by whatever wires it up (e.g. a Kubernetes Secret lookup or a local env
// var lookup in EXECUTION_MODE=local).
type SecretResolver func(ref string) (string, error)

// JiraTransport creates an issue via the Jira REST API, authenticating
// with an OAuth2 client-credentials flow (spec's DOMAIN STACK "OAuth2:
// golang.org/x/oauth2 ... Sink type=jira OAuth2 token source"). Jira issue
// creation has no idempotency key, so a retried create opens a second
// ticket; this transport is non-idempotent (spec §4.8).
type JiraTransport struct {
	resolveSecret SecretResolver
	httpClient    *http.Client
}

// NewJiraTransport builds a JiraTransport. resolveSecret must not be nil in
// production; tests may supply a resolver returning a canned token.
func NewJiraTransport(resolveSecret SecretResolver) *JiraTransport {
	return &JiraTransport{resolveSecret: resolveSecret, httpClient: http.DefaultClient}
}

func (t *JiraTransport) Idempotent() bool { return false }

func (t *JiraTransport) Materialize(_ context.Context, s *model.Sink) error {
	if s.Config.JiraBaseURL == "" || s.Config.JiraProject == "" {
		return apperrors.NewValidationError(fmt.Sprintf("sink %s/%s: missing config.jiraBaseURL or config.jiraProject", s.Namespace, s.Name))
	}
	if s.Config.OAuthTokenURL == "" || s.Config.OAuthClientID == "" {
		return apperrors.NewValidationError(fmt.Sprintf("sink %s/%s: missing config.oauthTokenURL or config.oauthClientID", s.Namespace, s.Name))
	}
	if s.Config.CredentialsRef == "" {
		return apperrors.NewValidationError(fmt.Sprintf("sink %s/%s: missing config.credentialsRef", s.Namespace, s.Name))
	}
	return nil
}

type jiraIssueRequest struct {
	Fields jiraIssueFields `json:"fields"`
}

type jiraIssueFields struct {
	Project     jiraProjectRef `json:"project"`
	Summary     string         `json:"summary"`
	Description string         `json:"description"`
	IssueType   jiraIssueType  `json:"issuetype"`
}

type jiraProjectRef struct {
	Key string `json:"key"`
}

type jiraIssueType struct {
	Name string `json:"name"`
}

func (t *JiraTransport) Deliver(ctx context.Context, s *model.Sink, payload string, run *model.WorkflowRun) error {
	secret, err := t.resolveSecret(s.Config.CredentialsRef)
	if err != nil {
		return apperrors.NewSinkDeliveryError(s.Name, fmt.Errorf("resolving credentials: %w", err))
	}

	cfg := clientcredentials.Config{
		ClientID:     s.Config.OAuthClientID,
		ClientSecret: secret,
		TokenURL:     s.Config.OAuthTokenURL,
	}
	client := cfg.Client(context.WithValue(ctx, oauth2.HTTPClient, t.httpClient))

	issue := jiraIssueRequest{
		Fields: jiraIssueFields{
			Project:     jiraProjectRef{Key: s.Config.JiraProject},
			Summary:     fmt.Sprintf("Incident: %s", run.TriggerSource),
			Description: payload,
			IssueType:   jiraIssueType{Name: "Incident"},
		},
	}
	body, err := json.Marshal(issue)
	if err != nil {
		return apperrors.NewSinkDeliveryError(s.Name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Config.JiraBaseURL+"/rest/api/2/issue", bytes.NewReader(body))
	if err != nil {
		return apperrors.NewSinkDeliveryError(s.Name, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return apperrors.NewSinkDeliveryError(s.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return apperrors.NewSinkDeliveryError(s.Name, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
	return nil
}
