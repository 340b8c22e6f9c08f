//go:build e2e
// +build e2e

package scenarios

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/incidentctl/controlplane/pkg/agent"
	"github.com/incidentctl/controlplane/pkg/engine"
	"github.com/incidentctl/controlplane/pkg/executor"
	"github.com/incidentctl/controlplane/pkg/ingress"
	"github.com/incidentctl/controlplane/pkg/llm"
	"github.com/incidentctl/controlplane/pkg/model"
	"github.com/incidentctl/controlplane/pkg/registry"
	"github.com/incidentctl/controlplane/pkg/sink"
	"github.com/incidentctl/controlplane/pkg/store"
	"github.com/incidentctl/controlplane/pkg/tools"
)

// syncBuffer lets the spec poll delivery output from the goroutine the
// engine dispatches sinks on (spec §4.4 step 4 is fire-and-forget) without
// racing the stdout transport's own writes.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

const oomInvestigationResponse = "ROOT CAUSE: OOM\nFINDINGS:\n- restarts 5\nRECOMMENDATIONS:\n- increase memory\nAUTO-FIX: no"

// BR-E2E-001: spec §8 scenario 1 - PodCrashLooping alert drives a webhook
// through ingress, the workflow engine, an agent step backed by a scripted
// LLM, and a stdout sink, with no component mocked out except the LLM
// provider and the sink's external transport.
var _ = Describe("PodCrashLooping alert investigation", func() {
	It("enqueues one run, completes it, and renders the stdout sink document", func() {
		reg := registry.New()
		st := store.NewMemoryStore()

		rt := agent.New(llm.NewMockProvider(oomInvestigationResponse), tools.New(nil), nil)
		exec := executor.New(rt)

		out := &syncBuffer{}
		dispatcher := sink.NewDispatcher(reg)
		dispatcher.RegisterTransport(model.SinkTypeStdout, sink.NewStdoutTransport(out))

		eng := engine.New(st, reg, exec, dispatcher, nil, 10, 2)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() { _ = eng.Run(ctx) }()

		workflow := &model.Workflow{
			Name:      "investigate-crashloop",
			Namespace: "default",
			Runtime:   model.WorkflowRuntime{Image: "alpine:3.19"},
			Steps: []model.WorkflowStep{
				{
					Name: "investigate",
					Kind: model.StepKindAgentStep,
					Agent: &model.AgentStepSpec{
						Goal:          "Investigate {{ .alert.alertname }} on pod {{ .alert.labels.pod }}",
						MaxIterations: 3,
					},
				},
			},
			Outputs: []model.WorkflowOutput{
				{Name: "root_cause", Template: "{{ .steps.investigate.result.root_cause }}"},
			},
			Sinks: []string{"crashloop-stdout"},
		}
		reg.UpsertWorkflow(workflow)

		reg.UpsertSink(&model.Sink{
			Name:      "crashloop-stdout",
			Namespace: "default",
			Type:      model.SinkTypeStdout,
			Config: model.SinkConfig{
				Template: "Root Cause: {{ .outputs.root_cause }}\nStatus: {{ .run.state }}",
			},
		})

		Expect(reg.UpsertSource(&model.Source{
			Name:               "prod-alerts",
			Namespace:          "default",
			Type:               model.SourceTypeWebhook,
			TriggerWorkflowRef: "investigate-crashloop",
			Config: model.SourceConfig{
				WebhookPath:   "test",
				PayloadFormat: model.PayloadFormatAlertManagerV2,
			},
		})).To(Succeed())

		dispatcherIngress := ingress.New(reg, st, eng, nil, nil, nil, nil)
		server := httptest.NewServer(ingress.NewRouter(dispatcherIngress))
		defer server.Close()

		payload := `{
			"version": "4", "status": "firing", "receiver": "default",
			"groupLabels": {}, "commonLabels": {}, "commonAnnotations": {},
			"alerts": [{
				"status": "firing",
				"labels": {"alertname": "PodCrashLooping", "severity": "critical", "pod": "crashloop-app"},
				"annotations": {}
			}]
		}`

		resp, err := http.Post(server.URL+"/webhook/test", "application/json", strings.NewReader(payload))
		Expect(err).ToNot(HaveOccurred())
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusAccepted))

		Eventually(out.String, 5*time.Second, 10*time.Millisecond).Should(ContainSubstring("Root Cause: OOM"))
		Expect(out.String()).To(ContainSubstring("Status: succeeded"))
	})
})
