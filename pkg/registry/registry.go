// Package registry implements the Resource Registry (spec §4.1): a
// concurrency-safe mapping from (kind, namespace, name) to the latest
// reconciled Source/Workflow/Sink spec, plus a webhook-path index.
//
// The registry is given an explicit lifecycle (spec §9 "Global mutable
// state"): callers construct one with New, and tests construct isolated
// instances freely rather than reaching for process-global state.
package registry

import (
	"sort"
	"sync"

	"github.com/incidentctl/controlplane/pkg/model"
)

// Registry is the thread-safe in-memory store of live resource specs.
type Registry struct {
	mu sync.RWMutex

	sources   map[model.RegistryKey]*model.Source
	workflows map[model.RegistryKey]*model.Workflow
	sinks     map[model.RegistryKey]*model.Sink

	// webhookPaths maps a webhook path to the Source that currently owns it.
	webhookPaths map[string]model.RegistryKey
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		sources:      map[model.RegistryKey]*model.Source{},
		workflows:    map[model.RegistryKey]*model.Workflow{},
		sinks:        map[model.RegistryKey]*model.Sink{},
		webhookPaths: map[string]model.RegistryKey{},
	}
}

// PathConflictError is returned by UpsertSource when another active Source
// already owns the requested webhook path. The tie-break is deterministic:
// lexicographically smaller (namespace,name) wins (spec §4.1).
type PathConflictError struct {
	Path       string
	Winner     model.RegistryKey
	Loser      model.RegistryKey
}

func (e *PathConflictError) Error() string {
	return "webhook path " + e.Path + " already owned by " + e.Winner.Namespace + "/" + e.Winner.Name
}

func keyLess(a, b model.RegistryKey) bool {
	if a.Namespace != b.Namespace {
		return a.Namespace < b.Namespace
	}
	return a.Name < b.Name
}

// UpsertSource inserts or replaces a Source spec. If the Source declares a
// webhook path already owned by a different, still-active Source, the
// deterministic tie-break applies: the lexicographically smaller
// (namespace,name) keeps the path and the other is returned as an error for
// the caller to mark failed.
func (r *Registry) UpsertSource(s *model.Source) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := s.Key()
	path := s.Config.WebhookPath

	if path != "" {
		if existingKey, ok := r.webhookPaths[path]; ok && existingKey != key {
			if keyLess(existingKey, key) {
				return &PathConflictError{Path: path, Winner: existingKey, Loser: key}
			}
			// New source wins the tie-break; detach the loser's claim.
			if loser, ok := r.sources[existingKey]; ok {
				loser.Status.Phase = model.SourcePhaseFailed
				loser.Status.Reason = "webhook path " + path + " reassigned to " + key.Namespace + "/" + key.Name
			}
		}
		r.webhookPaths[path] = key
	}

	r.sources[key] = s
	return nil
}

// DeleteSource removes a Source and releases any webhook path it held.
func (r *Registry) DeleteSource(key model.RegistryKey) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sources[key]; ok {
		if s.Config.WebhookPath != "" {
			if owner, ok := r.webhookPaths[s.Config.WebhookPath]; ok && owner == key {
				delete(r.webhookPaths, s.Config.WebhookPath)
			}
		}
		delete(r.sources, key)
	}
}

// LookupSourceByWebhookPath resolves a path to at most one Source (spec §4.1).
func (r *Registry) LookupSourceByWebhookPath(path string) (*model.Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	key, ok := r.webhookPaths[path]
	if !ok {
		return nil, false
	}
	s, ok := r.sources[key]
	return s, ok
}

// GetSource returns the Source for key, if present.
func (r *Registry) GetSource(key model.RegistryKey) (*model.Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sources[key]
	return s, ok
}

// ListSources returns a lock-free snapshot of all Sources, sorted by
// (namespace,name) for deterministic iteration.
func (r *Registry) ListSources() []*model.Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*model.Source, 0, len(r.sources))
	for _, s := range r.sources {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return keyLess(out[i].Key(), out[j].Key()) })
	return out
}

// UpsertWorkflow inserts or replaces a Workflow spec.
func (r *Registry) UpsertWorkflow(w *model.Workflow) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workflows[w.Key()] = w
}

// DeleteWorkflow removes a Workflow spec.
func (r *Registry) DeleteWorkflow(key model.RegistryKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.workflows, key)
}

// GetWorkflow returns the Workflow for key, if present.
func (r *Registry) GetWorkflow(key model.RegistryKey) (*model.Workflow, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.workflows[key]
	return w, ok
}

// ListWorkflows returns a lock-free snapshot of all Workflows.
func (r *Registry) ListWorkflows() []*model.Workflow {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*model.Workflow, 0, len(r.workflows))
	for _, w := range r.workflows {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return keyLess(out[i].Key(), out[j].Key()) })
	return out
}

// UpsertSink inserts or replaces a Sink spec.
func (r *Registry) UpsertSink(s *model.Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks[s.Key()] = s
}

// DeleteSink removes a Sink spec.
func (r *Registry) DeleteSink(key model.RegistryKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sinks, key)
}

// GetSink returns the Sink for key, if present.
func (r *Registry) GetSink(key model.RegistryKey) (*model.Sink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sinks[key]
	return s, ok
}

// ListSinks returns a lock-free snapshot of all Sinks.
func (r *Registry) ListSinks() []*model.Sink {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*model.Sink, 0, len(r.sinks))
	for _, s := range r.sinks {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return keyLess(out[i].Key(), out[j].Key()) })
	return out
}
