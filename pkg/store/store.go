// Package store defines the durability boundary for the control plane
// (spec §4.4 "Store abstraction", §9 "Ownership"). The engine depends only
// on the Store interface, never on a concrete database; the Store is a
// backend for durability, not the runtime source of truth — in-memory
// WorkflowContext state during a run always wins.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/incidentctl/controlplane/pkg/model"
)

// Store is the persistence boundary the Workflow Engine and Controllers
// depend on. Implementations: an in-memory Store (sufficient for the
// property tests spec §8 describes) and a SQL-backed Store over
// Postgres/SQLite (spec §6 "Store schema").
type Store interface {
	// SaveAlert inserts a new Alert row, or updates an existing one in
	// place when reattaching a repeat arrival to an open alert (spec §5
	// step 2.b).
	SaveAlert(ctx context.Context, alert *model.Alert) error

	// GetAlert returns the Alert with the given id.
	GetAlert(ctx context.Context, id uuid.UUID) (*model.Alert, error)

	// ListOpenAlertsByFingerprint returns every open Alert sharing
	// fingerprint, most recent first, used by the dedup check in Ingress
	// Dispatcher step 2.b.
	ListOpenAlertsByFingerprint(ctx context.Context, fingerprint string) ([]*model.Alert, error)

	// CreateWorkflowRun persists a new run in the pending state.
	CreateWorkflowRun(ctx context.Context, run *model.WorkflowRun) error

	// GetWorkflowRun returns the run with the given id.
	GetWorkflowRun(ctx context.Context, runID uuid.UUID) (*model.WorkflowRun, error)

	// UpdateWorkflowProgress persists the run's current state and context
	// at least once per state transition (spec §4.4 step 2.d, §9 "Progress
	// updates... persisted at least every state transition").
	UpdateWorkflowProgress(ctx context.Context, run *model.WorkflowRun) error

	// CompleteWorkflow persists the run's terminal state, its rendered
	// outputs (or error), and completion timestamp (spec §4.4 steps 4-5).
	CompleteWorkflow(ctx context.Context, run *model.WorkflowRun) error

	// RecordSourceEvent appends a row to source_events for audit/replay.
	RecordSourceEvent(ctx context.Context, event *SourceEvent) error

	// RecordSinkOutput records the outcome of one sink delivery attempt.
	RecordSinkOutput(ctx context.Context, outcome *SinkOutcome) error
}

// SourceEvent is one raw ingress arrival, recorded before dedup/fingerprint
// logic runs (spec §6 "source_events" table).
type SourceEvent struct {
	ID          uuid.UUID
	SourceRef   model.RegistryKey
	ReceivedAt  time.Time
	Fingerprint string
	RawPayload  string
}

// SinkOutcome is one delivery attempt's result (spec §6 "sink_outputs"
// table, §7 "SinkDeliveryError... recorded per-sink with retry counters").
type SinkOutcome struct {
	ID         uuid.UUID
	RunID      uuid.UUID
	SinkRef    model.RegistryKey
	Attempt    int
	Success    bool
	Error      string
	DeliveredAt time.Time
}

// ErrNotFound is returned by Get* lookups that find nothing.
var ErrNotFound = &notFoundError{}

type notFoundError struct{}

func (*notFoundError) Error() string { return "store: not found" }
