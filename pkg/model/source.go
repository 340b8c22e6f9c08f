package model

import "time"

// SourceType enumerates the kinds of ingress a Source can describe.
type SourceType string

const (
	SourceTypeWebhook    SourceType = "webhook"
	SourceTypeChat       SourceType = "chat"
	SourceTypeSchedule   SourceType = "schedule"
	SourceTypeAPI        SourceType = "api"
	SourceTypeKubernetes SourceType = "kubernetes"
)

// SourceAuthType enumerates the webhook authentication strategies (spec §4.3).
type SourceAuthType string

const (
	SourceAuthNone   SourceAuthType = ""
	SourceAuthBearer SourceAuthType = "bearer"
	SourceAuthHMAC   SourceAuthType = "hmac"
	SourceAuthBasic  SourceAuthType = "basic"
	SourceAuthHeader SourceAuthType = "custom_header"
)

// SourceAuthConfig describes how an ingress request proves its identity.
type SourceAuthConfig struct {
	Type   SourceAuthType `yaml:"type" json:"type"`
	Token  string         `yaml:"token" json:"token,omitempty"`
	Secret string         `yaml:"secret" json:"secret,omitempty"`
	// Digest names the HMAC digest algorithm (e.g. "sha256") when Type is hmac.
	Digest string `yaml:"digest" json:"digest,omitempty"`
	// HeaderName/HeaderValue are used when Type is custom_header.
	HeaderName  string `yaml:"headerName" json:"header_name,omitempty"`
	HeaderValue string `yaml:"headerValue" json:"header_value,omitempty"`
	Username    string `yaml:"username" json:"username,omitempty"`
	Password    string `yaml:"password" json:"password,omitempty"`
}

// PayloadFormat enumerates the webhook body shapes a Source can declare.
type PayloadFormat string

const (
	PayloadFormatAlertManagerV2 PayloadFormat = "alertmanager_v2"
	PayloadFormatGenericJSON    PayloadFormat = "generic_json"
	PayloadFormatPrometheus     PayloadFormat = "prometheus_direct"
)

// SourceConfig is the variant-by-type configuration carried by a Source.
type SourceConfig struct {
	WebhookPath   string              `yaml:"webhookPath" json:"webhook_path,omitempty"`
	PayloadFormat PayloadFormat       `yaml:"payloadFormat" json:"payload_format,omitempty"`
	Auth          SourceAuthConfig    `yaml:"auth" json:"auth"`
	Filters       map[string][]string `yaml:"filters" json:"filters,omitempty"`
	DedupWindow   time.Duration       `yaml:"dedupWindow" json:"dedup_window,omitempty"`
	BurstCeiling  int                 `yaml:"burstCeiling" json:"burst_ceiling,omitempty"`
}

// SourcePhase is the reconciliation state of a Source (spec §4.2).
type SourcePhase string

const (
	SourcePhaseNew        SourcePhase = "new"
	SourcePhaseValidating SourcePhase = "validating"
	SourcePhaseActive     SourcePhase = "active"
	SourcePhaseFailed     SourcePhase = "failed"
)

// SourceStatus is the reconciled status subresource of a Source.
type SourceStatus struct {
	Phase         SourcePhase `json:"phase"`
	Reason        string      `json:"reason,omitempty"`
	LastEventTime *time.Time  `json:"last_event_time,omitempty"`
	EventCount    int64       `json:"event_count"`
}

// Source is the declarative ingress descriptor (spec §3).
type Source struct {
	Name               string            `yaml:"name" json:"name" validate:"required"`
	Namespace          string            `yaml:"namespace" json:"namespace" validate:"required"`
	Type               SourceType        `yaml:"type" json:"type" validate:"required,oneof=webhook chat schedule api kubernetes"`
	Config             SourceConfig      `yaml:"config" json:"config"`
	TriggerWorkflowRef string            `yaml:"triggerWorkflowRef" json:"trigger_workflow_ref" validate:"required"`
	ContextOverlay     map[string]string `yaml:"contextOverlay" json:"context_overlay,omitempty"`
	Status             SourceStatus      `json:"status"`
}

// Key returns the (namespace,name) identity used by the Resource Registry.
func (s *Source) Key() RegistryKey {
	return RegistryKey{Kind: KindSource, Namespace: s.Namespace, Name: s.Name}
}
