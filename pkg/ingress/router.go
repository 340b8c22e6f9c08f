package ingress

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/incidentctl/controlplane/internal/apperrors"
)

// NewRouter builds the chi router exposing the webhook ingress endpoint
// plus the liveness and metrics endpoints spec §6 names. Every request is
// wrapped in an otelhttp span so a webhook's span is the trace root that
// the Workflow Engine's per-step and Agent Runtime's per-iteration spans
// (pkg/engine, pkg/agent) nest under when a trace context propagates
// through the in-process call chain.
func NewRouter(d *Dispatcher) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedMethods: []string{http.MethodPost, http.MethodGet},
	}))

	r.Post("/webhook/{path}", d.ServeWebhook)
	r.Get("/health", serveHealth)
	r.Handle("/metrics", promhttp.Handler())

	return otelhttp.NewHandler(r, "controlplane.ingress")
}

func serveHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// ServeWebhook adapts HandleWebhook to net/http (spec §6 "POST
// /webhook/<path> ... Response codes: 202 accepted, 400 parse error, 401
// auth, 404 unknown path, 429 rate-limited, 500 internal").
func (d *Dispatcher) ServeWebhook(w http.ResponseWriter, r *http.Request) {
	path := chi.URLParam(r, "path")

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, apperrors.NewParseError("webhook", err))
		return
	}
	defer r.Body.Close()

	accepted, err := d.HandleWebhook(r.Context(), path, r.Header, body)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"accepted": accepted})
}

func writeError(w http.ResponseWriter, err error) {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.StatusCode)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"error": appErr.Message})
}
