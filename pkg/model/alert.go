// Package model holds the data model shared across the control plane:
// Alert, Source, Workflow, Sink, WorkflowRun, WorkflowContext, and
// AgentResult (spec §3).
package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AlertStatus is the lifecycle status of an Alert.
type AlertStatus string

const (
	AlertStatusReceived  AlertStatus = "received"
	AlertStatusTriaging  AlertStatus = "triaging"
	AlertStatusResolved  AlertStatus = "resolved"
	AlertStatusEscalated AlertStatus = "escalated"
)

// AlertTimings records the key timestamps in an Alert's lifecycle.
type AlertTimings struct {
	ReceivedAt        time.Time  `json:"received_at"`
	TriageStartedAt   *time.Time `json:"triage_started_at,omitempty"`
	TriageCompletedAt *time.Time `json:"triage_completed_at,omitempty"`
	ResolvedAt        *time.Time `json:"resolved_at,omitempty"`
}

// Alert is a normalized monitoring event (spec §3).
type Alert struct {
	ID            uuid.UUID         `json:"id"`
	ExternalID    string            `json:"external_id"`
	Fingerprint   string            `json:"fingerprint"`
	Status        AlertStatus       `json:"status"`
	Severity      string            `json:"severity"`
	AlertName     string            `json:"alert_name"`
	Summary       string            `json:"summary"`
	Labels        map[string]string `json:"labels"`
	Annotations   map[string]string `json:"annotations"`
	SourceRef     string            `json:"source_ref"`
	WorkflowRef   string            `json:"workflow_ref"`
	AIAnalysis    map[string]interface{} `json:"ai_analysis,omitempty"`
	AIConfidence  *decimal.Decimal  `json:"ai_confidence,omitempty"`
	Timings       AlertTimings      `json:"timings"`

	// RepeatCount tracks total sightings of this alert (the original plus
	// every arrival coalesced into it within the dedup window), starting
	// at 1 (spec §4.3, §8 "Dedup correctness").
	RepeatCount int `json:"repeat_count"`
}

// IsOpen reports whether the alert is still active (not resolved).
func (a *Alert) IsOpen() bool {
	return a.Status != AlertStatusResolved
}
