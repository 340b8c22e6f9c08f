package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/incidentctl/controlplane/pkg/model"
	"github.com/incidentctl/controlplane/pkg/shared/httpconfig"
)

// HTTPTool implements the size- and time-capped GET/HEAD tool restricted to
// a domain allowlist (spec §4.7 "HTTP client: GET/HEAD to a domain
// allowlist; size- and time-capped").
type HTTPTool struct {
	client   *http.Client
	maxBytes int64
}

// NewHTTPTool builds an HTTP tool with the given timeout (the 30s client
// default when timeout is zero) and response size cap (defaulting to 1MiB
// when maxBytes is zero).
func NewHTTPTool(timeout time.Duration, maxBytes int64) *HTTPTool {
	if maxBytes <= 0 {
		maxBytes = 1 << 20
	}
	cfg := httpconfig.DefaultClientConfig()
	if timeout > 0 {
		cfg.Timeout = timeout
	}
	return &HTTPTool{
		client:   httpconfig.NewClient(cfg),
		maxBytes: maxBytes,
	}
}

func (t *HTTPTool) Name() string        { return "http" }
func (t *HTTPTool) Description() string { return "issues a capped GET/HEAD request to an allowlisted domain" }

func (t *HTTPTool) ParameterSchema() *openapi3.Schema {
	return openapi3.NewObjectSchema().
		WithProperty("method", openapi3.NewStringSchema().WithEnum("GET", "HEAD")).
		WithProperty("url", openapi3.NewStringSchema()).
		WithRequired([]string{"url"})
}

func (t *HTTPTool) Invoke(ctx context.Context, args map[string]interface{}) (InvokeResult, error) {
	rawURL, _ := args["url"].(string)
	method, _ := args["method"].(string)
	if method == "" {
		method = http.MethodGet
	}
	if method != http.MethodGet && method != http.MethodHead {
		return InvokeResult{}, fmt.Errorf("http tool only supports GET/HEAD, got %q", method)
	}

	if _, err := url.Parse(rawURL); err != nil {
		return InvokeResult{}, fmt.Errorf("http tool: invalid url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return InvokeResult{}, err
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return InvokeResult{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, t.maxBytes))
	if err != nil {
		return InvokeResult{}, err
	}

	return InvokeResult{
		Output: map[string]interface{}{
			"status_code": resp.StatusCode,
			"body":        string(body),
		},
		Risk: model.RiskLow,
	}, nil
}
