package ingress

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/incidentctl/controlplane/internal/apperrors"
	"github.com/incidentctl/controlplane/pkg/model"
)

// parsedAlert is one normalized alert extracted from a webhook body,
// regardless of which PayloadFormat produced it.
type parsedAlert struct {
	Status      string
	Labels      map[string]string
	Annotations map[string]string
	StartsAt    time.Time
	EndsAt      time.Time
	Fingerprint string
	Raw         map[string]interface{}
}

// alertManagerV2Payload is the exact shape spec §6 requires: top-level
// `{version, status, receiver, groupLabels, commonLabels,
// commonAnnotations, alerts:[...]}`.
type alertManagerV2Payload struct {
	Version           string              `json:"version"`
	Status            string              `json:"status"`
	Receiver          string              `json:"receiver"`
	GroupLabels       map[string]string   `json:"groupLabels"`
	CommonLabels      map[string]string   `json:"commonLabels"`
	CommonAnnotations map[string]string   `json:"commonAnnotations"`
	Alerts            []alertManagerAlert `json:"alerts"`
}

type alertManagerAlert struct {
	Status      string            `json:"status"`
	Labels      map[string]string `json:"labels"`
	Annotations map[string]string `json:"annotations"`
	StartsAt    time.Time         `json:"startsAt"`
	EndsAt      time.Time         `json:"endsAt"`
	Fingerprint string            `json:"fingerprint"`
}

// parsePayload parses body according to format (spec §4.3 step 3).
func parsePayload(format model.PayloadFormat, body []byte) ([]parsedAlert, error) {
	switch format {
	case model.PayloadFormatAlertManagerV2:
		return parseAlertManagerV2(body)
	case model.PayloadFormatPrometheus:
		return parsePrometheusDirect(body)
	case model.PayloadFormatGenericJSON, "":
		return parseGenericJSON(body)
	default:
		return nil, apperrors.NewParseError("webhook", fmt.Errorf("unsupported payload format %q", format))
	}
}

func parseAlertManagerV2(body []byte) ([]parsedAlert, error) {
	var payload alertManagerV2Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, apperrors.NewParseError("alertmanager_v2", err)
	}

	out := make([]parsedAlert, 0, len(payload.Alerts))
	for _, a := range payload.Alerts {
		labels := mergeMaps(payload.CommonLabels, a.Labels)
		annotations := mergeMaps(payload.CommonAnnotations, a.Annotations)
		raw, _ := structToMap(a)
		out = append(out, parsedAlert{
			Status:      a.Status,
			Labels:      labels,
			Annotations: annotations,
			StartsAt:    a.StartsAt,
			EndsAt:      a.EndsAt,
			Fingerprint: a.Fingerprint,
			Raw:         raw,
		})
	}
	return out, nil
}

// genericJSONPayload treats the body as one alert: top-level `labels` and
// `annotations` maps, everything else passed through as-is.
type genericJSONPayload struct {
	Status      string            `json:"status"`
	Labels      map[string]string `json:"labels"`
	Annotations map[string]string `json:"annotations"`
}

func parseGenericJSON(body []byte) ([]parsedAlert, error) {
	var payload genericJSONPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, apperrors.NewParseError("generic_json", err)
	}
	raw, err := bytesToMap(body)
	if err != nil {
		return nil, apperrors.NewParseError("generic_json", err)
	}
	return []parsedAlert{{
		Status:      payload.Status,
		Labels:      payload.Labels,
		Annotations: payload.Annotations,
		StartsAt:    time.Now(),
		Raw:         raw,
	}}, nil
}

// prometheusDirectPayload is a bare Prometheus alert rule evaluation
// result: `{labels, annotations, value}` with no AlertManager envelope.
type prometheusDirectPayload struct {
	Labels      map[string]string `json:"labels"`
	Annotations map[string]string `json:"annotations"`
	Value       string            `json:"value"`
}

func parsePrometheusDirect(body []byte) ([]parsedAlert, error) {
	var payload prometheusDirectPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, apperrors.NewParseError("prometheus_direct", err)
	}
	raw, err := bytesToMap(body)
	if err != nil {
		return nil, apperrors.NewParseError("prometheus_direct", err)
	}
	return []parsedAlert{{
		Status:      "firing",
		Labels:      payload.Labels,
		Annotations: payload.Annotations,
		StartsAt:    time.Now(),
		Raw:         raw,
	}}, nil
}

func mergeMaps(base, override map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}

func structToMap(v interface{}) (map[string]interface{}, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return bytesToMap(b)
}

func bytesToMap(b []byte) (map[string]interface{}, error) {
	var out map[string]interface{}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}
