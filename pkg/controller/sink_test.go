package controller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/sethvargo/go-retry"

	"github.com/incidentctl/controlplane/pkg/model"
	"github.com/incidentctl/controlplane/pkg/registry"
)

type fakeMaterializer struct {
	failuresBeforeSuccess int
	calls                 int
	err                   error
}

func (f *fakeMaterializer) Materialize(ctx context.Context, sink *model.Sink) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	if f.calls <= f.failuresBeforeSuccess {
		return errors.New("transient backend hiccup")
	}
	return nil
}

func fastBackoff() retry.Backoff {
	b := retry.NewConstant(time.Millisecond)
	return retry.WithMaxRetries(3, b)
}

func TestSinkControllerMaterializesValidStdoutSink(t *testing.T) {
	reg := registry.New()
	m := &fakeMaterializer{}
	c := NewSinkController(reg, m, logr.Discard())
	c.Backoff = fastBackoff()

	sink := &model.Sink{Name: "console", Namespace: "default", Type: model.SinkTypeStdout}
	c.reconcile(context.Background(), SinkEvent{Kind: ChangeCreate, Key: sink.Key(), Spec: sink})

	if sink.Status.Phase != model.SinkPhaseActive {
		t.Fatalf("expected phase active, got %s (%s)", sink.Status.Phase, sink.Status.Reason)
	}
	if m.calls != 1 {
		t.Fatalf("expected materialize called once, got %d", m.calls)
	}
}

func TestSinkControllerRejectsSlackMissingWebhookURL(t *testing.T) {
	reg := registry.New()
	c := NewSinkController(reg, &fakeMaterializer{}, logr.Discard())

	sink := &model.Sink{Name: "slack", Namespace: "default", Type: model.SinkTypeSlack}
	c.reconcile(context.Background(), SinkEvent{Kind: ChangeCreate, Key: sink.Key(), Spec: sink})

	if sink.Status.Phase != model.SinkPhaseFailed {
		t.Fatalf("expected phase failed, got %s", sink.Status.Phase)
	}
	if _, ok := reg.GetSink(sink.Key()); ok {
		t.Fatalf("expected invalid sink not upserted")
	}
}

func TestSinkControllerRejectsJiraMissingOAuthFields(t *testing.T) {
	reg := registry.New()
	c := NewSinkController(reg, &fakeMaterializer{}, logr.Discard())

	sink := &model.Sink{
		Name: "jira", Namespace: "default", Type: model.SinkTypeJira,
		Config: model.SinkConfig{JiraBaseURL: "https://issues.example.com", JiraProject: "INC"},
	}
	c.reconcile(context.Background(), SinkEvent{Kind: ChangeCreate, Key: sink.Key(), Spec: sink})

	if sink.Status.Phase != model.SinkPhaseFailed {
		t.Fatalf("expected phase failed for missing oauth config, got %s", sink.Status.Phase)
	}
}

func TestSinkControllerRetriesTransientMaterializationFailures(t *testing.T) {
	reg := registry.New()
	m := &fakeMaterializer{failuresBeforeSuccess: 2}
	c := NewSinkController(reg, m, logr.Discard())
	c.Backoff = fastBackoff()

	sink := &model.Sink{Name: "console", Namespace: "default", Type: model.SinkTypeStdout}
	c.reconcile(context.Background(), SinkEvent{Kind: ChangeCreate, Key: sink.Key(), Spec: sink})

	if sink.Status.Phase != model.SinkPhaseActive {
		t.Fatalf("expected eventual success after retries, got phase %s (%s)", sink.Status.Phase, sink.Status.Reason)
	}
	if m.calls != 3 {
		t.Fatalf("expected 3 materialize attempts, got %d", m.calls)
	}
}

func TestSinkControllerFailsAfterExhaustingRetries(t *testing.T) {
	reg := registry.New()
	m := &fakeMaterializer{failuresBeforeSuccess: 100}
	c := NewSinkController(reg, m, logr.Discard())
	c.Backoff = fastBackoff()

	sink := &model.Sink{Name: "console", Namespace: "default", Type: model.SinkTypeStdout}
	c.reconcile(context.Background(), SinkEvent{Kind: ChangeCreate, Key: sink.Key(), Spec: sink})

	if sink.Status.Phase != model.SinkPhaseFailed {
		t.Fatalf("expected phase failed after exhausting retries, got %s", sink.Status.Phase)
	}
}

func TestSinkControllerDeleteRemovesFromRegistry(t *testing.T) {
	reg := registry.New()
	c := NewSinkController(reg, &fakeMaterializer{}, logr.Discard())
	c.Backoff = fastBackoff()

	sink := &model.Sink{Name: "console", Namespace: "default", Type: model.SinkTypeStdout}
	c.reconcile(context.Background(), SinkEvent{Kind: ChangeCreate, Key: sink.Key(), Spec: sink})
	c.reconcile(context.Background(), SinkEvent{Kind: ChangeDelete, Key: sink.Key()})

	if _, ok := reg.GetSink(sink.Key()); ok {
		t.Fatalf("expected sink removed from registry after delete")
	}
}
