package tools_test

import (
	"context"
	"testing"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/incidentctl/controlplane/pkg/tools"
)

func TestKubectlToolGetPodByName(t *testing.T) {
	clientset := fake.NewSimpleClientset(&corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: "app-1", Namespace: "prod"},
	})
	tool := tools.NewKubectlTool(clientset)

	result, err := tool.Invoke(context.Background(), map[string]interface{}{
		"verb": "get", "kind": "pod", "namespace": "prod", "name": "app-1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pod, ok := result.Output.(*corev1.Pod)
	if !ok {
		t.Fatalf("expected *corev1.Pod, got %T", result.Output)
	}
	if pod.Name != "app-1" {
		t.Fatalf("expected app-1, got %s", pod.Name)
	}
}

func TestKubectlToolGetListsPodsWhenNameOmitted(t *testing.T) {
	clientset := fake.NewSimpleClientset(
		&corev1.Pod{ObjectMeta: metav1.ObjectMeta{Name: "a", Namespace: "prod"}},
		&corev1.Pod{ObjectMeta: metav1.ObjectMeta{Name: "b", Namespace: "prod"}},
	)
	tool := tools.NewKubectlTool(clientset)

	result, err := tool.Invoke(context.Background(), map[string]interface{}{
		"verb": "get", "kind": "pod", "namespace": "prod",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pods, ok := result.Output.([]corev1.Pod)
	if !ok {
		t.Fatalf("expected []corev1.Pod, got %T", result.Output)
	}
	if len(pods) != 2 {
		t.Fatalf("expected 2 pods, got %d", len(pods))
	}
}

func TestKubectlToolEventsListsNamespaceEvents(t *testing.T) {
	clientset := fake.NewSimpleClientset(&corev1.Event{
		ObjectMeta: metav1.ObjectMeta{Name: "evt-1", Namespace: "prod"},
		Reason:     "BackOff",
	})
	tool := tools.NewKubectlTool(clientset)

	result, err := tool.Invoke(context.Background(), map[string]interface{}{
		"verb": "events", "namespace": "prod",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	events, ok := result.Output.([]corev1.Event)
	if !ok {
		t.Fatalf("expected []corev1.Event, got %T", result.Output)
	}
	if len(events) != 1 || events[0].Reason != "BackOff" {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestKubectlToolRejectsUnsupportedVerb(t *testing.T) {
	clientset := fake.NewSimpleClientset()
	tool := tools.NewKubectlTool(clientset)

	_, err := tool.Invoke(context.Background(), map[string]interface{}{"verb": "delete", "namespace": "prod"})
	if err == nil {
		t.Fatal("expected error for unsupported verb")
	}
}

func TestKubectlToolTopIsUnimplemented(t *testing.T) {
	clientset := fake.NewSimpleClientset()
	tool := tools.NewKubectlTool(clientset)

	_, err := tool.Invoke(context.Background(), map[string]interface{}{"verb": "top"})
	if err == nil {
		t.Fatal("expected error for top verb")
	}
}

func TestKubectlToolGetRejectsUnsupportedKind(t *testing.T) {
	clientset := fake.NewSimpleClientset()
	tool := tools.NewKubectlTool(clientset)

	_, err := tool.Invoke(context.Background(), map[string]interface{}{
		"verb": "get", "kind": "Secret", "namespace": "prod", "name": "s",
	})
	if err == nil {
		t.Fatal("expected error for unsupported kind")
	}
}
