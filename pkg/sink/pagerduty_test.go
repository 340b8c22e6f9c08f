package sink

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/incidentctl/controlplane/pkg/model"
)

func TestPagerDutyTransportIsIdempotent(t *testing.T) {
	if !NewPagerDutyTransport().Idempotent() {
		t.Fatal("expected the PagerDuty transport to be idempotent via dedup_key")
	}
}

func TestPagerDutyTransportMaterializeRequiresRoutingKey(t *testing.T) {
	transport := NewPagerDutyTransport()
	s := &model.Sink{Name: "pd", Namespace: "default", Type: model.SinkTypePagerDuty}

	if err := transport.Materialize(context.Background(), s); err == nil {
		t.Fatal("expected error when config.routingKey is missing")
	}

	s.Config.RoutingKey = "R123"
	if err := transport.Materialize(context.Background(), s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPagerDutyTransportDeliverSendsDedupKeyedEvent(t *testing.T) {
	var decoded pagerDutyEvent
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&decoded); err != nil {
			t.Errorf("decoding request body: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	transport := NewPagerDutyTransport()
	transport.Endpoint = server.URL

	s := &model.Sink{Name: "pd", Namespace: "default", Config: model.SinkConfig{RoutingKey: "R123"}}
	run := newTestRun()

	if err := transport.Deliver(context.Background(), s, "node disk full", run); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if decoded.RoutingKey != "R123" {
		t.Fatalf("expected routing key R123, got %q", decoded.RoutingKey)
	}
	if decoded.DedupKey != run.RunID.String() {
		t.Fatalf("expected dedup key %s, got %s", run.RunID.String(), decoded.DedupKey)
	}
	if decoded.EventAction != "trigger" {
		t.Fatalf("expected event action trigger, got %q", decoded.EventAction)
	}
}

func TestPagerDutyTransportDeliverErrorsOnServerFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	transport := NewPagerDutyTransport()
	transport.Endpoint = server.URL

	s := &model.Sink{Name: "pd", Namespace: "default", Config: model.SinkConfig{RoutingKey: "R123"}}
	if err := transport.Deliver(context.Background(), s, "payload", newTestRun()); err == nil {
		t.Fatal("expected error on non-2xx response")
	}
}
