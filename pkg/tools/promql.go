package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/itchyny/gojq"

	"github.com/incidentctl/controlplane/pkg/model"
	"github.com/incidentctl/controlplane/pkg/shared/httpconfig"
)

// PromQLTool evaluates a query against a configured Prometheus-compatible
// metrics endpoint and returns the parsed time series (spec §4.7 "PromQL:
// evaluates a query against a configured metrics endpoint").
type PromQLTool struct {
	endpoint string
	client   *http.Client
	// postProcess, when non-empty, is a gojq query applied to the parsed
	// response before it is handed back as the tool observation — grounded
	// on the DOMAIN STACK entry routing itchyny/gojq through "PromQL/script
	// tool result post-processing".
	postProcess string
}

// NewPromQLTool builds a tool against endpoint (e.g. "http://prometheus:9090").
func NewPromQLTool(endpoint string, timeout time.Duration) *PromQLTool {
	return &PromQLTool{
		endpoint: endpoint,
		client:   httpconfig.NewClient(httpconfig.PrometheusClientConfig(timeout)),
	}
}

// WithPostProcess sets a gojq filter applied to the decoded response.
func (t *PromQLTool) WithPostProcess(filter string) *PromQLTool {
	t.postProcess = filter
	return t
}

func (t *PromQLTool) Name() string        { return "promql" }
func (t *PromQLTool) Description() string { return "evaluates a PromQL query against the configured metrics endpoint" }

func (t *PromQLTool) ParameterSchema() *openapi3.Schema {
	return openapi3.NewObjectSchema().
		WithProperty("query", openapi3.NewStringSchema()).
		WithRequired([]string{"query"})
}

func (t *PromQLTool) Invoke(ctx context.Context, args map[string]interface{}) (InvokeResult, error) {
	query, _ := args["query"].(string)
	if query == "" {
		return InvokeResult{}, fmt.Errorf("promql tool requires a query argument")
	}

	u := t.endpoint + "/api/v1/query?" + url.Values{"query": {query}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return InvokeResult{}, err
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return InvokeResult{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return InvokeResult{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return InvokeResult{}, fmt.Errorf("promql endpoint returned status %d: %s", resp.StatusCode, string(body))
	}

	var decoded interface{}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return InvokeResult{}, fmt.Errorf("promql: decoding response: %w", err)
	}

	output := decoded
	if t.postProcess != "" {
		output, err = applyGojq(t.postProcess, decoded)
		if err != nil {
			return InvokeResult{}, err
		}
	}

	return InvokeResult{Output: output, Risk: model.RiskLow}, nil
}

func applyGojq(filter string, input interface{}) (interface{}, error) {
	query, err := gojq.Parse(filter)
	if err != nil {
		return nil, fmt.Errorf("gojq: invalid filter %q: %w", filter, err)
	}
	iter := query.Run(input)
	v, ok := iter.Next()
	if !ok {
		return nil, nil
	}
	if err, ok := v.(error); ok {
		return nil, err
	}
	return v, nil
}
