package model

// SinkType enumerates the output destination kinds (spec §3).
type SinkType string

const (
	SinkTypeSlack        SinkType = "slack"
	SinkTypeAlertmanager SinkType = "alertmanager"
	SinkTypePrometheus   SinkType = "prometheus"
	SinkTypeJira         SinkType = "jira"
	SinkTypePagerDuty    SinkType = "pagerduty"
	SinkTypeWorkflow     SinkType = "workflow"
	SinkTypeStdout       SinkType = "stdout"
)

// SinkConfig is the variant-by-type configuration for a Sink.
type SinkConfig struct {
	// Template renders the outbound payload against {source, workflow}.
	Template string `yaml:"template" json:"template"`

	// Slack
	WebhookURL string `yaml:"webhookURL" json:"webhook_url,omitempty"`
	Channel    string `yaml:"channel" json:"channel,omitempty"`

	// Alertmanager / Prometheus / generic HTTP
	Endpoint string `yaml:"endpoint" json:"endpoint,omitempty"`

	// Jira
	JiraBaseURL    string `yaml:"jiraBaseURL" json:"jira_base_url,omitempty"`
	JiraProject    string `yaml:"jiraProject" json:"jira_project,omitempty"`
	OAuthTokenURL  string `yaml:"oauthTokenURL" json:"oauth_token_url,omitempty"`
	OAuthClientID  string `yaml:"oauthClientID" json:"oauth_client_id,omitempty"`

	// PagerDuty
	RoutingKey string `yaml:"routingKey" json:"routing_key,omitempty"`

	// workflow (chained)
	ChainedWorkflowRef string `yaml:"chainedWorkflowRef" json:"chained_workflow_ref,omitempty"`

	// CredentialsRef names an out-of-band secret the Sink Controller
	// validates a reference to without resolving the value itself.
	CredentialsRef string `yaml:"credentialsRef" json:"credentials_ref,omitempty"`
}

// SinkPhase is the reconciliation state of a Sink (mirrors Source/Workflow).
type SinkPhase string

const (
	SinkPhaseNew        SinkPhase = "new"
	SinkPhaseValidating SinkPhase = "validating"
	SinkPhaseActive     SinkPhase = "active"
	SinkPhaseFailed     SinkPhase = "failed"
)

// SinkStatus is the status subresource of a Sink resource.
type SinkStatus struct {
	Phase  SinkPhase `json:"phase"`
	Reason string    `json:"reason,omitempty"`
}

// Sink is the declarative output descriptor (spec §3).
type Sink struct {
	Name      string     `yaml:"name" json:"name" validate:"required"`
	Namespace string     `yaml:"namespace" json:"namespace" validate:"required"`
	Type      SinkType   `yaml:"type" json:"type" validate:"required,oneof=slack alertmanager prometheus jira pagerduty workflow stdout"`
	Config    SinkConfig `yaml:"config" json:"config"`
	Condition string     `yaml:"condition" json:"condition,omitempty"`
	Status    SinkStatus `json:"status"`
}

// Key returns the (namespace,name) identity used by the Resource Registry.
func (s *Sink) Key() RegistryKey {
	return RegistryKey{Kind: KindSink, Namespace: s.Namespace, Name: s.Name}
}
