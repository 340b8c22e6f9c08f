package agent

import (
	"strings"

	"github.com/incidentctl/controlplane/pkg/model"
)

// highRiskKubectlVerbs are always delete-shaped and unrecoverable (spec
// §4.6 Risk assessment "High (delete, scale with broad effect...)").
var highRiskKubectlVerbs = map[string]bool{
	"delete": true,
}

// mediumRiskKubectlVerbs mutate but recover (spec §4.6 "Medium (mutation
// with recoverable scope)").
var mediumRiskKubectlVerbs = map[string]bool{
	"patch": true,
	"apply": true,
	"scale": true,
}

// AssessRisk classifies a proposed tool invocation per spec §4.6: Low
// (read-only), Medium (mutation with recoverable scope), High
// (unrecoverable). For kubectl, delete and a scale to zero replicas are
// High; patch, apply and any other scale are Medium; every other verb is
// Low. A script call is Medium; every other tool (promql, http) is Low.
// The agent loop assesses risk before the call reaches the Tool Registry,
// so the capability policy has not yet seen the arguments.
func AssessRisk(toolName string, args map[string]interface{}) model.RiskLevel {
	switch toolName {
	case "kubectl":
		verb, _ := args["verb"].(string)
		verb = strings.ToLower(verb)
		if highRiskKubectlVerbs[verb] {
			return model.RiskHigh
		}
		if mediumRiskKubectlVerbs[verb] {
			// A scale to zero broadens the blast radius to High even though
			// "scale" is Medium by default.
			if replicas, ok := args["replicas"]; ok {
				if n, ok := toInt(replicas); ok && n == 0 {
					return model.RiskHigh
				}
			}
			return model.RiskMedium
		}
		return model.RiskLow
	case "script":
		// A script is only as safe as its predefined body; treat it as
		// Medium by default since it is not pure cluster introspection.
		return model.RiskMedium
	default:
		return model.RiskLow
	}
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
