// Package tools implements the Tool Registry (spec §4.7): capability-
// validated invocations of kubectl, PromQL, HTTP, and script tools, backed
// by a capability policy and an append-only audit trail. No concrete
// teacher source for this package survived retrieval (the pack's AI/
// toolset code is almost entirely test files for subsystems this spec
// places out of scope — dynamic-toolset-server, contextapi); the contract
// is derived directly from spec §4.7's enumerated tool list and its
// "structured denial, not a generic error" requirement.
package tools

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/google/uuid"

	"github.com/incidentctl/controlplane/internal/apperrors"
	"github.com/incidentctl/controlplane/pkg/audit"
	"github.com/incidentctl/controlplane/pkg/model"
)

// InvokeResult is a successful tool invocation's observation, fed back into
// the agent's conversation as the next message.
type InvokeResult struct {
	Output interface{}
	Risk   model.RiskLevel
}

// Tool is a named capability invokable by the Agent Runtime (spec §4.7).
type Tool interface {
	Name() string
	Description() string
	// ParameterSchema returns the tool's argument JSON Schema, validated by
	// the registry before Invoke is ever called.
	ParameterSchema() *openapi3.Schema
	Invoke(ctx context.Context, args map[string]interface{}) (InvokeResult, error)
}

// DeniedError is the "structured denial" spec §4.7 requires: a tool policy
// rejection must be distinguishable from a generic execution failure so the
// agent can adapt its next move instead of treating it as a dead end.
type DeniedError struct {
	Tool   string
	Reason string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("tool %s denied: %s", e.Tool, e.Reason)
}

// Policy validates a proposed tool invocation's arguments against the
// tool's capability policy (spec §4.7: kubectl verb/namespace whitelist,
// HTTP domain allowlist, ...) before the registry ever calls Invoke.
type Policy interface {
	Validate(ctx context.Context, toolName string, args map[string]interface{}) error
}

// Registry holds every tool available to the Agent Runtime, a shared
// capability Policy, and the audit trail every invocation is logged to.
type Registry struct {
	mu       sync.RWMutex
	tools    map[string]Tool
	policies map[string]Policy
	auditLog *audit.Log
}

// New builds an empty Registry. A nil auditLog is replaced by a fresh,
// process-local one so Invoke never needs a nil check.
func New(auditLog *audit.Log) *Registry {
	if auditLog == nil {
		auditLog = audit.New()
	}
	return &Registry{
		tools:    map[string]Tool{},
		policies: map[string]Policy{},
		auditLog: auditLog,
	}
}

// Register adds a tool to the registry, optionally with a capability policy
// gating its invocations.
func (r *Registry) Register(t Tool, policy Policy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
	if policy != nil {
		r.policies[t.Name()] = policy
	}
}

// Get returns the named tool, if registered.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Catalog lists every registered tool's name, description, and parameter
// schema for the Agent Runtime's system prompt assembly (spec §4.6 step 1).
func (r *Registry) Catalog() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	return out
}

// Invoke validates args against the tool's parameter schema and capability
// policy, executes it if both pass, and appends an audit entry regardless
// of outcome (spec §4.7 "All tool invocations log ... to the audit trail").
// A policy or schema rejection returns a *DeniedError, never a bare error,
// so the agent can feed the denial back into its reasoning as an
// observation (spec §4.6 step 4).
func (r *Registry) Invoke(ctx context.Context, runID uuid.UUID, name string, args map[string]interface{}) (InvokeResult, error) {
	t, ok := r.Get(name)
	if !ok {
		err := &DeniedError{Tool: name, Reason: "no such tool registered"}
		r.auditLog.RecordToolInvocation(runID, name, args, 0, "denied", "")
		return InvokeResult{}, err
	}

	if err := validateSchema(t, args); err != nil {
		denial := &DeniedError{Tool: name, Reason: err.Error()}
		r.auditLog.RecordToolInvocation(runID, name, args, 0, "denied", "")
		return InvokeResult{}, denial
	}

	r.mu.RLock()
	policy := r.policies[name]
	r.mu.RUnlock()

	if policy != nil {
		if err := policy.Validate(ctx, name, withResolvedHost(args)); err != nil {
			denial := &DeniedError{Tool: name, Reason: err.Error()}
			r.auditLog.RecordToolInvocation(runID, name, args, 0, "denied", "")
			return InvokeResult{}, denial
		}
	}

	start := time.Now()
	result, err := t.Invoke(ctx, args)
	duration := time.Since(start)

	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	r.auditLog.RecordToolInvocation(runID, name, args, duration, outcome, result.Risk)

	if err != nil {
		return InvokeResult{}, apperrors.NewStepError(apperrors.StepKindAgent, name, err)
	}
	return result, nil
}

func validateSchema(t Tool, args map[string]interface{}) error {
	schema := t.ParameterSchema()
	if schema == nil {
		return nil
	}
	return schema.VisitJSON(args)
}

// withResolvedHost returns args with a derived "host" key when the caller
// supplied a "url" argument but no explicit "host" (the HTTP tool's policy
// input), so the HTTPDomainPolicy can validate against the actual target
// domain regardless of which form the caller used.
func withResolvedHost(args map[string]interface{}) map[string]interface{} {
	if _, hasHost := args["host"]; hasHost {
		return args
	}
	rawURL, ok := args["url"].(string)
	if !ok || rawURL == "" {
		return args
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return args
	}
	resolved := make(map[string]interface{}, len(args)+1)
	for k, v := range args {
		resolved[k] = v
	}
	resolved["host"] = parsed.Hostname()
	return resolved
}
