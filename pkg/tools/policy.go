package tools

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
)

// kubectlPolicyModule is the rego policy gating kubectl tool invocations
// (spec §4.7): read verbs are always allowed within the namespace
// whitelist; write verbs (delete, patch, apply, scale) require an elevated
// role explicitly bound to the workflow.
const kubectlPolicyModule = `
package kubectl

default allow = false

read_verbs := {"get", "describe", "logs", "events", "top"}
write_verbs := {"delete", "patch", "apply", "scale"}

allow {
	read_verbs[input.verb]
	namespace_allowed
}

allow {
	write_verbs[input.verb]
	input.elevated_role != ""
	namespace_allowed
}

namespace_allowed {
	count(input.namespace_whitelist) == 0
}

namespace_allowed {
	count(input.namespace_whitelist) > 0
	input.namespace_whitelist[_] == input.namespace
}
`

// KubectlPolicy enforces the verb/namespace whitelist capability policy via
// an embedded OPA/rego module, per SPEC_FULL.md's DOMAIN STACK entry
// ("Policy evaluation: open-policy-agent/opa ... Tool Registry capability
// policy (kubectl verb/namespace whitelist)").
type KubectlPolicy struct {
	NamespaceWhitelist []string
	ElevatedRole       string
	query              rego.PreparedEvalQuery
}

// NewKubectlPolicy prepares the rego query once so Validate calls only pay
// for evaluation, not parsing/compilation.
func NewKubectlPolicy(namespaceWhitelist []string, elevatedRole string) (*KubectlPolicy, error) {
	q, err := rego.New(
		rego.Query("data.kubectl.allow"),
		rego.Module("kubectl_policy.rego", kubectlPolicyModule),
	).PrepareForEval(context.Background())
	if err != nil {
		return nil, fmt.Errorf("tools: preparing kubectl policy: %w", err)
	}
	return &KubectlPolicy{NamespaceWhitelist: namespaceWhitelist, ElevatedRole: elevatedRole, query: q}, nil
}

// Validate implements Policy.
func (p *KubectlPolicy) Validate(ctx context.Context, toolName string, args map[string]interface{}) error {
	verb, _ := args["verb"].(string)
	namespace, _ := args["namespace"].(string)

	input := map[string]interface{}{
		"verb":                verb,
		"namespace":           namespace,
		"namespace_whitelist": p.NamespaceWhitelist,
		"elevated_role":       p.ElevatedRole,
	}

	rs, err := p.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return fmt.Errorf("tools: evaluating kubectl policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return fmt.Errorf("kubectl verb %q denied by capability policy", verb)
	}
	allowed, _ := rs[0].Expressions[0].Value.(bool)
	if !allowed {
		return fmt.Errorf("kubectl verb %q on namespace %q denied by capability policy", verb, namespace)
	}
	return nil
}

// HTTPDomainPolicy restricts the HTTP tool to a configured domain allowlist
// (spec §4.7 "HTTP client: GET/HEAD to a domain allowlist").
type HTTPDomainPolicy struct {
	AllowedDomains map[string]bool
}

// NewHTTPDomainPolicy builds a policy from an allowlist of hostnames.
func NewHTTPDomainPolicy(domains []string) *HTTPDomainPolicy {
	allowed := make(map[string]bool, len(domains))
	for _, d := range domains {
		allowed[d] = true
	}
	return &HTTPDomainPolicy{AllowedDomains: allowed}
}

// Validate implements Policy.
func (p *HTTPDomainPolicy) Validate(_ context.Context, _ string, args map[string]interface{}) error {
	host, _ := args["host"].(string)
	if host == "" {
		return fmt.Errorf("http tool requires a host argument")
	}
	if len(p.AllowedDomains) > 0 && !p.AllowedDomains[host] {
		return fmt.Errorf("host %q is not in the domain allowlist", host)
	}
	return nil
}
