package controller

import (
	"context"
	"testing"
	"time"

	"github.com/go-logr/logr"

	"github.com/incidentctl/controlplane/pkg/model"
	"github.com/incidentctl/controlplane/pkg/registry"
)

func TestSourceControllerActivatesValidSource(t *testing.T) {
	reg := registry.New()
	c := NewSourceController(reg, logr.Discard())

	src := &model.Source{
		Name:               "prod-webhook",
		Namespace:          "default",
		Type:               model.SourceTypeWebhook,
		TriggerWorkflowRef: "investigate",
		Config: model.SourceConfig{
			WebhookPath:   "test",
			PayloadFormat: model.PayloadFormatAlertManagerV2,
		},
	}

	src.Key()
	c.reconcile(SourceEvent{Kind: ChangeCreate, Key: src.Key(), Spec: src})

	if src.Status.Phase != model.SourcePhaseActive {
		t.Fatalf("expected phase active, got %s (%s)", src.Status.Phase, src.Status.Reason)
	}
	got, ok := reg.LookupSourceByWebhookPath("test")
	if !ok || got.Name != "prod-webhook" {
		t.Fatalf("expected source registered under webhook path")
	}
}

func TestSourceControllerRejectsMissingWebhookPath(t *testing.T) {
	reg := registry.New()
	c := NewSourceController(reg, logr.Discard())

	src := &model.Source{
		Name:               "bad",
		Namespace:          "default",
		Type:               model.SourceTypeWebhook,
		TriggerWorkflowRef: "investigate",
	}
	c.reconcile(SourceEvent{Kind: ChangeCreate, Key: src.Key(), Spec: src})

	if src.Status.Phase != model.SourcePhaseFailed {
		t.Fatalf("expected phase failed, got %s", src.Status.Phase)
	}
	if _, ok := reg.GetSource(src.Key()); ok {
		t.Fatalf("expected invalid source not upserted")
	}
}

func TestSourceControllerRejectsBearerAuthWithoutToken(t *testing.T) {
	reg := registry.New()
	c := NewSourceController(reg, logr.Discard())

	src := &model.Source{
		Name:               "bad-auth",
		Namespace:          "default",
		Type:               model.SourceTypeWebhook,
		TriggerWorkflowRef: "investigate",
		Config: model.SourceConfig{
			WebhookPath: "bad-auth",
			Auth:        model.SourceAuthConfig{Type: model.SourceAuthBearer},
		},
	}
	c.reconcile(SourceEvent{Kind: ChangeCreate, Key: src.Key(), Spec: src})
	if src.Status.Phase != model.SourcePhaseFailed {
		t.Fatalf("expected phase failed for missing bearer token")
	}
}

func TestSourceControllerDeleteReleasesPath(t *testing.T) {
	reg := registry.New()
	c := NewSourceController(reg, logr.Discard())

	src := &model.Source{
		Name: "s1", Namespace: "default", Type: model.SourceTypeWebhook,
		TriggerWorkflowRef: "wf",
		Config:             model.SourceConfig{WebhookPath: "p"},
	}
	c.reconcile(SourceEvent{Kind: ChangeCreate, Key: src.Key(), Spec: src})
	c.reconcile(SourceEvent{Kind: ChangeDelete, Key: src.Key()})

	if _, ok := reg.LookupSourceByWebhookPath("p"); ok {
		t.Fatalf("expected webhook path released after delete")
	}
}

func TestSourceControllerRunDrainsUntilContextCancel(t *testing.T) {
	reg := registry.New()
	c := NewSourceController(reg, logr.Discard())
	src := NewMemoryEventSource[*model.Source](1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, src.Events()) }()

	src.Emit(SourceEvent{Kind: ChangeCreate, Key: model.RegistryKey{Kind: model.KindSource, Namespace: "d", Name: "n"}, Spec: &model.Source{
		Name: "n", Namespace: "d", Type: model.SourceTypeWebhook, TriggerWorkflowRef: "wf",
		Config: model.SourceConfig{WebhookPath: "n"},
	}})

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not exit after context cancellation")
	}

	if _, ok := reg.LookupSourceByWebhookPath("n"); !ok {
		t.Fatalf("expected emitted source to have been reconciled before cancellation")
	}
}
