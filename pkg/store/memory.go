package store

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/incidentctl/controlplane/pkg/model"
)

// MemoryStore is an in-process Store backed by mutex-guarded maps. It is
// sufficient for the property tests spec §8 describes and is the default
// Store for local/dev execution (spec §9 "in-memory implementation is
// sufficient for property tests").
type MemoryStore struct {
	mu sync.RWMutex

	alerts map[uuid.UUID]*model.Alert
	runs   map[uuid.UUID]*model.WorkflowRun
	events []*SourceEvent
	sinks  []*SinkOutcome
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		alerts: map[uuid.UUID]*model.Alert{},
		runs:   map[uuid.UUID]*model.WorkflowRun{},
	}
}

func (m *MemoryStore) SaveAlert(_ context.Context, alert *model.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts[alert.ID] = alert
	return nil
}

func (m *MemoryStore) GetAlert(_ context.Context, id uuid.UUID) (*model.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.alerts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return a, nil
}

func (m *MemoryStore) ListOpenAlertsByFingerprint(_ context.Context, fingerprint string) ([]*model.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*model.Alert
	for _, a := range m.alerts {
		if a.Fingerprint == fingerprint && a.IsOpen() {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timings.ReceivedAt.After(out[j].Timings.ReceivedAt)
	})
	return out, nil
}

func (m *MemoryStore) CreateWorkflowRun(_ context.Context, run *model.WorkflowRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.RunID] = run
	return nil
}

func (m *MemoryStore) GetWorkflowRun(_ context.Context, runID uuid.UUID) (*model.WorkflowRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.runs[runID]
	if !ok {
		return nil, ErrNotFound
	}
	return r, nil
}

func (m *MemoryStore) UpdateWorkflowProgress(_ context.Context, run *model.WorkflowRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.RunID] = run
	return nil
}

func (m *MemoryStore) CompleteWorkflow(_ context.Context, run *model.WorkflowRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.RunID] = run
	return nil
}

func (m *MemoryStore) RecordSourceEvent(_ context.Context, event *SourceEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *MemoryStore) RecordSinkOutput(_ context.Context, outcome *SinkOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sinks = append(m.sinks, outcome)
	return nil
}

var _ Store = (*MemoryStore)(nil)
