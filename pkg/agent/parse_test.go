package agent

import (
	"testing"
)

func TestParseResponseFinalResult(t *testing.T) {
	text := "ROOT CAUSE: OOM\nFINDINGS:\n- restarts 5\nRECOMMENDATIONS:\n- increase memory\nAUTO-FIX: no"

	d := parseResponse(text)
	if d.kind != directiveFinalResult {
		t.Fatalf("expected directiveFinalResult, got %v", d.kind)
	}
	if d.result.RootCause != "OOM" {
		t.Fatalf("expected root cause OOM, got %q", d.result.RootCause)
	}
	if len(d.result.Findings) != 1 || d.result.Findings[0] != "restarts 5" {
		t.Fatalf("expected one finding 'restarts 5', got %v", d.result.Findings)
	}
	if d.result.CanAutoFix {
		t.Fatalf("expected CanAutoFix false for AUTO-FIX: no")
	}
}

func TestParseResponseAutoFixYes(t *testing.T) {
	text := "ROOT CAUSE: bad replica count\nAUTO-FIX: yes - kubectl scale deployment/x --replicas=3"

	d := parseResponse(text)
	if !d.result.CanAutoFix {
		t.Fatalf("expected CanAutoFix true")
	}
	if d.result.FixCommand == "" {
		t.Fatalf("expected a non-empty fix command")
	}
}

func TestParseResponseToolCall(t *testing.T) {
	text := `TOOL: kubectl {"verb":"get","namespace":"prod","kind":"pod","name":"crashloop-app"}`

	d := parseResponse(text)
	if d.kind != directiveToolCall {
		t.Fatalf("expected directiveToolCall, got %v", d.kind)
	}
	if d.toolCall.ToolName != "kubectl" {
		t.Fatalf("expected tool name kubectl, got %q", d.toolCall.ToolName)
	}
	if d.toolCall.Args["namespace"] != "prod" {
		t.Fatalf("expected namespace arg prod, got %v", d.toolCall.Args["namespace"])
	}
}

func TestParseResponseUnparseable(t *testing.T) {
	d := parseResponse("I am thinking about this problem but have no answer yet.")
	if d.kind != directiveUnparseable {
		t.Fatalf("expected directiveUnparseable, got %v", d.kind)
	}
}
