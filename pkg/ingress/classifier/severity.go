// Package classifier implements the severity classifier SPEC_FULL.md
// supplements: alerts arriving without an explicit severity label are
// classified via a small OPA/rego policy over their labels/annotations
// rather than silently defaulting, loosely grounded on the business
// requirement behind severity determination via rego policy seen in the
// teacher's signal-processing package, adapted here into a pure function
// over label/annotation maps with no controller-runtime machinery.
package classifier

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
)

const severityPolicyModule = `
package severity

default level = "info"

level = "critical" {
	input.annotations.impact == "outage"
}

level = "critical" {
	input.labels.alertname == "Watchdog"
}

level = "warning" {
	input.annotations.impact == "degraded"
}

level = "warning" {
	contains_any(object.get(input.labels, "component", ""), {"database", "gateway"})
}

contains_any(value, set) {
	set[value]
}
`

// Classifier evaluates the severity policy over an alert's labels and
// annotations.
type Classifier struct {
	query rego.PreparedEvalQuery
}

// New prepares the rego query once so Classify only pays for evaluation.
func New() (*Classifier, error) {
	q, err := rego.New(
		rego.Query("data.severity.level"),
		rego.Module("severity_policy.rego", severityPolicyModule),
	).PrepareForEval(context.Background())
	if err != nil {
		return nil, fmt.Errorf("classifier: preparing policy: %w", err)
	}
	return &Classifier{query: q}, nil
}

// Classify returns the rego-derived severity for an alert with no explicit
// severity label. Falls back to "info" if the policy produces no result.
func (c *Classifier) Classify(ctx context.Context, labels, annotations map[string]string) (string, error) {
	input := map[string]interface{}{
		"labels":      labels,
		"annotations": annotations,
	}

	results, err := c.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return "", fmt.Errorf("classifier: evaluating policy: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return "info", nil
	}
	level, ok := results[0].Expressions[0].Value.(string)
	if !ok {
		return "info", nil
	}
	return level, nil
}
