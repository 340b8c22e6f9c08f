package agent

import (
	"strings"
	"testing"

	"github.com/incidentctl/controlplane/pkg/llm"
)

func TestTruncateToBudgetNoOpUnderLimit(t *testing.T) {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: "preamble"},
		{Role: llm.RoleUser, Content: "short goal"},
	}
	out := truncateToBudget(messages, 1000)
	if len(out) != len(messages) {
		t.Fatalf("expected no truncation under budget, got %d messages", len(out))
	}
}

func TestTruncateToBudgetDropsOldestKeepsSystem(t *testing.T) {
	long := strings.Repeat("investigate the cluster state in detail ", 50)
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: "preamble"},
		{Role: llm.RoleUser, Content: long},
		{Role: llm.RoleAssistant, Content: long},
		{Role: llm.RoleUser, Content: "final short goal"},
	}
	out := truncateToBudget(messages, 20)
	if out[0].Role != llm.RoleSystem {
		t.Fatalf("expected system message preserved first, got %v", out[0].Role)
	}
	if len(out) >= len(messages) {
		t.Fatalf("expected truncation to drop messages, got %d (from %d)", len(out), len(messages))
	}
	if out[len(out)-1].Content != "final short goal" {
		t.Fatalf("expected most recent message retained, got %q", out[len(out)-1].Content)
	}
}

func TestTruncateToBudgetDisabledAtZero(t *testing.T) {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: "preamble"},
		{Role: llm.RoleUser, Content: strings.Repeat("x", 10000)},
	}
	out := truncateToBudget(messages, 0)
	if len(out) != len(messages) {
		t.Fatalf("expected truncation disabled at maxTokens=0")
	}
}
