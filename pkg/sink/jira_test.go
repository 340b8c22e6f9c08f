package sink

import (
	"context"
	"testing"

	"github.com/incidentctl/controlplane/pkg/model"
)

func TestJiraTransportMaterializeRequiresOAuthFields(t *testing.T) {
	transport := NewJiraTransport(func(ref string) (string, error) { return "secret", nil })

	s := &model.Sink{
		Name: "jira", Namespace: "default", Type: model.SinkTypeJira,
		Config: model.SinkConfig{JiraBaseURL: "https://issues.example.com", JiraProject: "INC"},
	}
	if err := transport.Materialize(context.Background(), s); err == nil {
		t.Fatalf("expected materialize error for missing oauth fields")
	}

	s.Config.OAuthTokenURL = "https://auth.example.com/token"
	s.Config.OAuthClientID = "client-id"
	if err := transport.Materialize(context.Background(), s); err == nil {
		t.Fatalf("expected materialize error for missing credentialsRef")
	}

	s.Config.CredentialsRef = "secret/jira-client"
	if err := transport.Materialize(context.Background(), s); err != nil {
		t.Fatalf("expected materialize to succeed with full config, got %v", err)
	}
}

func TestJiraTransportIsNonIdempotent(t *testing.T) {
	transport := NewJiraTransport(nil)
	if transport.Idempotent() {
		t.Fatalf("expected jira transport to be non-idempotent")
	}
}
