package tools

import (
	"context"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/incidentctl/controlplane/pkg/model"
)

// KubectlTool implements the read-only cluster inspection verbs spec §4.7
// requires: get, describe, logs, events, top. Write verbs are rejected by
// the Tool Registry's capability Policy before Invoke is ever reached, so
// this type only needs to implement the read path; it never calls a
// mutating clientset method. top is accepted by the parameter schema and
// the policy (the allowed-verb set is not narrowed) but Invoke returns an
// error for it (an execution error, not a *DeniedError): it requires the k8s.io/metrics clientset, which nothing
// else in this tree exercises (see DESIGN.md).
type KubectlTool struct {
	clientset kubernetes.Interface
}

// NewKubectlTool builds a KubectlTool over an already-authenticated clientset.
func NewKubectlTool(clientset kubernetes.Interface) *KubectlTool {
	return &KubectlTool{clientset: clientset}
}

func (t *KubectlTool) Name() string { return "kubectl" }
func (t *KubectlTool) Description() string {
	return "reads Kubernetes cluster state (get/describe/logs/events; top is allowed but not wired)"
}

func (t *KubectlTool) ParameterSchema() *openapi3.Schema {
	return openapi3.NewObjectSchema().
		WithProperty("verb", openapi3.NewStringSchema().WithEnum("get", "describe", "logs", "events", "top")).
		WithProperty("namespace", openapi3.NewStringSchema()).
		WithProperty("kind", openapi3.NewStringSchema()).
		WithProperty("name", openapi3.NewStringSchema())
}

// Invoke dispatches on the "verb" argument (spec §4.7 "Allowed verbs:
// get, describe, logs, events, top").
func (t *KubectlTool) Invoke(ctx context.Context, args map[string]interface{}) (InvokeResult, error) {
	verb, _ := args["verb"].(string)
	namespace, _ := args["namespace"].(string)
	kind, _ := args["kind"].(string)
	name, _ := args["name"].(string)

	switch verb {
	case "get":
		return t.get(ctx, namespace, kind, name)
	case "describe":
		return t.describe(ctx, namespace, kind, name)
	case "logs":
		return t.logs(ctx, namespace, name)
	case "events":
		return t.events(ctx, namespace)
	case "top":
		return InvokeResult{}, fmt.Errorf("kubectl top requires a metrics-server API and is not wired in this deployment")
	default:
		return InvokeResult{}, fmt.Errorf("unsupported kubectl verb %q", verb)
	}
}

func (t *KubectlTool) get(ctx context.Context, namespace, kind, name string) (InvokeResult, error) {
	switch kind {
	case "pod", "Pod", "":
		if name != "" {
			pod, err := t.clientset.CoreV1().Pods(namespace).Get(ctx, name, metav1.GetOptions{})
			if err != nil {
				return InvokeResult{}, err
			}
			return InvokeResult{Output: pod, Risk: model.RiskLow}, nil
		}
		pods, err := t.clientset.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{})
		if err != nil {
			return InvokeResult{}, err
		}
		return InvokeResult{Output: pods.Items, Risk: model.RiskLow}, nil
	case "deployment", "Deployment":
		deploy, err := t.clientset.AppsV1().Deployments(namespace).Get(ctx, name, metav1.GetOptions{})
		if err != nil {
			return InvokeResult{}, err
		}
		return InvokeResult{Output: deploy, Risk: model.RiskLow}, nil
	case "node", "Node":
		node, err := t.clientset.CoreV1().Nodes().Get(ctx, name, metav1.GetOptions{})
		if err != nil {
			return InvokeResult{}, err
		}
		return InvokeResult{Output: node, Risk: model.RiskLow}, nil
	default:
		return InvokeResult{}, fmt.Errorf("unsupported kubectl get kind %q", kind)
	}
}

func (t *KubectlTool) describe(ctx context.Context, namespace, kind, name string) (InvokeResult, error) {
	got, err := t.get(ctx, namespace, kind, name)
	if err != nil {
		return InvokeResult{}, err
	}
	events, err := t.clientset.CoreV1().Events(namespace).List(ctx, metav1.ListOptions{
		FieldSelector: "involvedObject.name=" + name,
	})
	if err != nil {
		return InvokeResult{}, err
	}
	return InvokeResult{
		Output: map[string]interface{}{"object": got.Output, "events": events.Items},
		Risk:   model.RiskLow,
	}, nil
}

func (t *KubectlTool) logs(ctx context.Context, namespace, podName string) (InvokeResult, error) {
	const tailLines = 200
	tail := int64(tailLines)
	req := t.clientset.CoreV1().Pods(namespace).GetLogs(podName, &corev1.PodLogOptions{TailLines: &tail})
	stream, err := req.Stream(ctx)
	if err != nil {
		return InvokeResult{}, err
	}
	defer stream.Close()

	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 4096)
	for {
		n, readErr := stream.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if readErr != nil {
			break
		}
	}
	return InvokeResult{Output: string(buf), Risk: model.RiskLow}, nil
}

func (t *KubectlTool) events(ctx context.Context, namespace string) (InvokeResult, error) {
	events, err := t.clientset.CoreV1().Events(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return InvokeResult{}, err
	}
	return InvokeResult{Output: events.Items, Risk: model.RiskLow}, nil
}
