// Package controller implements the Source/Workflow/Sink controllers
// (spec §4.2): each consumes a stream of resource-change events and drives
// a per-resource reconciliation function that validates the spec, upserts
// it into the Resource Registry, and performs the resource-specific eager
// action (webhook path registration, sink transport materialization, or
// nothing for Workflow).
package controller

import "github.com/incidentctl/controlplane/pkg/model"

// ChangeKind tags one resource-change event (spec §4.2 "create/update/delete").
type ChangeKind string

const (
	ChangeCreate ChangeKind = "create"
	ChangeUpdate ChangeKind = "update"
	ChangeDelete ChangeKind = "delete"
)

// Event is one resource-change notification. Spec is nil for ChangeDelete.
type Event[T any] struct {
	Kind ChangeKind
	Key  model.RegistryKey
	Spec T
}

// SourceEvent, WorkflowEvent, and SinkEvent are the concrete event shapes
// per resource kind.
type SourceEvent = Event[*model.Source]
type WorkflowEvent = Event[*model.Workflow]
type SinkEvent = Event[*model.Sink]

// EventSource is the narrow interface a controller depends on: a channel
// of change events for one resource kind, started and stopped explicitly
// (spec §9 "Global mutable state... give it an explicit lifecycle").
type EventSource[T any] interface {
	Events() <-chan Event[T]
	Start() error
	Stop()
}
