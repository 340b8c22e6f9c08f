package tools_test

import (
	"context"
	"errors"
	"testing"

	"github.com/incidentctl/controlplane/pkg/tools"
)

func TestScriptToolInvokesNamedScript(t *testing.T) {
	tool := tools.NewScriptTool([]tools.Script{
		{
			Name:        "restart-count",
			Description: "counts pod restarts",
			Run: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
				return map[string]interface{}{"restarts": 5}, nil
			},
		},
	})

	result, err := tool.Invoke(context.Background(), map[string]interface{}{"name": "restart-count"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out, ok := result.Output.(map[string]interface{})
	if !ok {
		t.Fatalf("expected map output, got %T", result.Output)
	}
	if out["restarts"] != 5 {
		t.Fatalf("expected restarts=5, got %v", out["restarts"])
	}
}

func TestScriptToolUnknownScriptIsDenied(t *testing.T) {
	tool := tools.NewScriptTool(nil)
	_, err := tool.Invoke(context.Background(), map[string]interface{}{"name": "does-not-exist"})
	if err == nil {
		t.Fatal("expected error for unknown script")
	}
}

func TestScriptToolPropagatesRunError(t *testing.T) {
	tool := tools.NewScriptTool([]tools.Script{
		{
			Name: "fails",
			Run: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
				return nil, errors.New("script blew up")
			},
		},
	})

	_, err := tool.Invoke(context.Background(), map[string]interface{}{"name": "fails"})
	if err == nil {
		t.Fatal("expected propagated run error")
	}
}

func TestScriptToolAppliesJQFilterFromParams(t *testing.T) {
	tool := tools.NewScriptTool([]tools.Script{
		{
			Name: "list-pods",
			Run: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
				return map[string]interface{}{"pods": []interface{}{"a", "b", "c"}}, nil
			},
		},
	})

	result, err := tool.Invoke(context.Background(), map[string]interface{}{
		"name": "list-pods",
		"params": map[string]interface{}{
			"jqFilter": ".pods | length",
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	switch v := result.Output.(type) {
	case int:
		if v != 3 {
			t.Fatalf("expected 3, got %d", v)
		}
	case float64:
		if v != 3 {
			t.Fatalf("expected 3, got %v", v)
		}
	default:
		t.Fatalf("expected numeric output, got %T", result.Output)
	}
}
