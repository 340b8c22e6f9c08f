package controller

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/incidentctl/controlplane/pkg/model"
)

func newSourceFileSource(t *testing.T, dir string) *FileEventSource[*model.Source] {
	t.Helper()
	return NewFileEventSource(
		dir,
		func() *model.Source { return &model.Source{} },
		func(s *model.Source) model.RegistryKey { return s.Key() },
	)
}

func writeSourceYAML(t *testing.T, path, name string) {
	t.Helper()
	body := "name: " + name + "\n" +
		"namespace: default\n" +
		"type: webhook\n" +
		"triggerWorkflowRef: investigate\n" +
		"config:\n" +
		"  webhookPath: " + name + "\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

func waitForEvent(t *testing.T, ch <-chan SourceEvent) SourceEvent {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
		return SourceEvent{}
	}
}

func TestFileEventSourceLoadsExistingFilesOnStart(t *testing.T) {
	dir := t.TempDir()
	writeSourceYAML(t, filepath.Join(dir, "prod.yaml"), "prod-webhook")

	fs := newSourceFileSource(t, dir)
	if err := fs.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer fs.Stop()

	event := waitForEvent(t, fs.Events())
	if event.Kind != ChangeCreate {
		t.Fatalf("expected create event, got %s", event.Kind)
	}
	if event.Spec.Name != "prod-webhook" {
		t.Fatalf("expected prod-webhook, got %s", event.Spec.Name)
	}
}

func TestFileEventSourceEmitsUpdateOnNewFile(t *testing.T) {
	dir := t.TempDir()

	fs := newSourceFileSource(t, dir)
	if err := fs.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer fs.Stop()

	writeSourceYAML(t, filepath.Join(dir, "new.yaml"), "new-webhook")

	// A file created after Start() arrives through the fsnotify watch loop,
	// which reports every write/create filesystem op as ChangeUpdate;
	// ChangeCreate is reserved for the initial directory scan in Start().
	event := waitForEvent(t, fs.Events())
	if event.Kind != ChangeUpdate {
		t.Fatalf("expected update event, got %s", event.Kind)
	}
	if event.Spec.Name != "new-webhook" {
		t.Fatalf("expected new-webhook, got %s", event.Spec.Name)
	}
}

func TestFileEventSourceEmitsUpdateOnRewrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "changing.yaml")
	writeSourceYAML(t, path, "changing-webhook")

	fs := newSourceFileSource(t, dir)
	if err := fs.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer fs.Stop()

	waitForEvent(t, fs.Events()) // initial load

	writeSourceYAML(t, path, "changing-webhook-v2")

	event := waitForEvent(t, fs.Events())
	if event.Kind != ChangeUpdate {
		t.Fatalf("expected update event, got %s", event.Kind)
	}
	if event.Spec.Name != "changing-webhook-v2" {
		t.Fatalf("expected changing-webhook-v2, got %s", event.Spec.Name)
	}
}

func TestFileEventSourceEmitsDeleteOnRemove(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "removeme.yaml")
	writeSourceYAML(t, path, "removeme-webhook")

	fs := newSourceFileSource(t, dir)
	if err := fs.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer fs.Stop()

	created := waitForEvent(t, fs.Events())
	if created.Kind != ChangeCreate {
		t.Fatalf("expected create event, got %s", created.Kind)
	}

	if err := os.Remove(path); err != nil {
		t.Fatalf("removing %s: %v", path, err)
	}

	event := waitForEvent(t, fs.Events())
	if event.Kind != ChangeDelete {
		t.Fatalf("expected delete event, got %s", event.Kind)
	}
	if event.Key != created.Key {
		t.Fatalf("expected delete key %v, got %v", created.Key, event.Key)
	}
}

func TestFileEventSourceIgnoresNonYAMLFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("not a resource"), 0o644); err != nil {
		t.Fatalf("writing README.md: %v", err)
	}
	writeSourceYAML(t, filepath.Join(dir, "prod.yaml"), "prod-webhook")

	fs := newSourceFileSource(t, dir)
	if err := fs.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer fs.Stop()

	event := waitForEvent(t, fs.Events())
	if event.Spec.Name != "prod-webhook" {
		t.Fatalf("expected only the yaml file to be loaded, got %s", event.Spec.Name)
	}

	select {
	case e := <-fs.Events():
		t.Fatalf("expected no further events, got %v", e)
	case <-time.After(200 * time.Millisecond):
	}
}
