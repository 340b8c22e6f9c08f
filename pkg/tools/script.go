package tools

import (
	"context"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/itchyny/gojq"

	"github.com/incidentctl/controlplane/pkg/model"
)

// Script is one predefined, named script the ScriptTool can run. Unlike the
// CLI step's template-rendered shell command, a script's body is fixed at
// registration time: the agent selects one by name and supplies only
// parameters, never arbitrary shell text (spec §4.7 "script: runs from a
// predefined library (no arbitrary shell)").
type Script struct {
	Name        string
	Description string
	Run         func(ctx context.Context, params map[string]interface{}) (interface{}, error)
}

// ScriptTool exposes a fixed library of named scripts to the agent.
type ScriptTool struct {
	library map[string]Script
}

// NewScriptTool builds a ScriptTool over the given library, keyed by
// Script.Name.
func NewScriptTool(library []Script) *ScriptTool {
	indexed := make(map[string]Script, len(library))
	for _, s := range library {
		indexed[s.Name] = s
	}
	return &ScriptTool{library: indexed}
}

func (t *ScriptTool) Name() string        { return "script" }
func (t *ScriptTool) Description() string { return "runs a named script from the predefined library" }

func (t *ScriptTool) ParameterSchema() *openapi3.Schema {
	return openapi3.NewObjectSchema().
		WithProperty("name", openapi3.NewStringSchema()).
		WithProperty("params", openapi3.NewObjectSchema()).
		WithRequired([]string{"name"})
}

func (t *ScriptTool) Invoke(ctx context.Context, args map[string]interface{}) (InvokeResult, error) {
	name, _ := args["name"].(string)
	script, ok := t.library[name]
	if !ok {
		return InvokeResult{}, fmt.Errorf("script %q is not in the predefined library", name)
	}

	params, _ := args["params"].(map[string]interface{})
	out, err := script.Run(ctx, params)
	if err != nil {
		return InvokeResult{}, err
	}

	if filter, ok := params["jqFilter"].(string); ok && filter != "" {
		query, err := gojq.Parse(filter)
		if err != nil {
			return InvokeResult{}, fmt.Errorf("script %q: invalid jqFilter: %w", name, err)
		}
		iter := query.Run(out)
		if v, ok := iter.Next(); ok {
			if errv, ok := v.(error); ok {
				return InvokeResult{}, errv
			}
			out = v
		}
	}

	return InvokeResult{Output: out, Risk: model.RiskLow}, nil
}
