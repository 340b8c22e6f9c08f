package controller

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/incidentctl/controlplane/pkg/model"
)

// FileEventSource is the local/dev ResourceEventSource (SPEC_FULL.md
// DOMAIN STACK "Local resource files: fsnotify/fsnotify, gopkg.in/yaml.v3
// ... file-backed 'event stream' feeding the Controllers when
// EXECUTION_MODE=local and no CRD backend is present"). It watches a
// directory of `*.yaml` files, each holding one resource spec. It emits a
// Create event for each file present at Start, an Update event for each
// file created or written afterwards, and a Delete event for each file
// removed or renamed away.
type FileEventSource[T any] struct {
	dir      string
	newSpec  func() T
	keyFunc  func(T) model.RegistryKey
	watcher  *fsnotify.Watcher
	ch       chan Event[T]
	mu       sync.Mutex
	lastSeen map[string]model.RegistryKey // path -> key, for emitting Delete with the right key
}

// NewFileEventSource builds a file-backed event source rooted at dir.
// newSpec must return a fresh zero value of T's underlying struct (e.g.
// `func() *model.Source { return &model.Source{} }`); keyFunc extracts the
// resource's registry key once a file has been decoded.
func NewFileEventSource[T any](dir string, newSpec func() T, keyFunc func(T) model.RegistryKey) *FileEventSource[T] {
	return &FileEventSource[T]{
		dir:      dir,
		newSpec:  newSpec,
		keyFunc:  keyFunc,
		ch:       make(chan Event[T], 32),
		lastSeen: map[string]model.RegistryKey{},
	}
}

// Events returns the event channel.
func (f *FileEventSource[T]) Events() <-chan Event[T] { return f.ch }

// Start loads every existing `*.yaml` file in the directory as an initial
// Create event, then begins watching for subsequent writes and removals.
func (f *FileEventSource[T]) Start() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("controller: creating file watcher: %w", err)
	}
	if err := watcher.Add(f.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("controller: watching %s: %w", f.dir, err)
	}
	f.watcher = watcher

	entries, err := os.ReadDir(f.dir)
	if err != nil {
		watcher.Close()
		return fmt.Errorf("controller: reading %s: %w", f.dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !isYAML(entry.Name()) {
			continue
		}
		f.loadAndEmit(filepath.Join(f.dir, entry.Name()), ChangeCreate)
	}

	go f.watch()
	return nil
}

// Stop closes the underlying fsnotify watcher and the event channel.
func (f *FileEventSource[T]) Stop() {
	if f.watcher != nil {
		f.watcher.Close()
	}
	close(f.ch)
}

func (f *FileEventSource[T]) watch() {
	for {
		select {
		case event, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			if !isYAML(event.Name) {
				continue
			}
			switch {
			case event.Op&(fsnotify.Write|fsnotify.Create) != 0:
				f.loadAndEmit(event.Name, ChangeUpdate)
			case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				f.emitDelete(event.Name)
			}
		case _, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (f *FileEventSource[T]) loadAndEmit(path string, kind ChangeKind) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	spec := f.newSpec()
	if err := yaml.Unmarshal(data, spec); err != nil {
		return
	}
	key := f.keyFunc(spec)

	f.mu.Lock()
	_, existed := f.lastSeen[path]
	f.lastSeen[path] = key
	f.mu.Unlock()

	if existed && kind == ChangeCreate {
		kind = ChangeUpdate
	}
	f.ch <- Event[T]{Kind: kind, Key: key, Spec: spec}
}

func (f *FileEventSource[T]) emitDelete(path string) {
	f.mu.Lock()
	key, ok := f.lastSeen[path]
	delete(f.lastSeen, path)
	f.mu.Unlock()
	if !ok {
		return
	}
	var zero T
	f.ch <- Event[T]{Kind: ChangeDelete, Key: key, Spec: zero}
}

func isYAML(name string) bool {
	ext := filepath.Ext(name)
	return ext == ".yaml" || ext == ".yml"
}
