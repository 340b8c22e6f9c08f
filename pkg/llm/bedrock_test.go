package llm_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/incidentctl/controlplane/pkg/llm"
)

type stubConverseClient struct {
	lastInput *bedrockruntime.ConverseInput
	out       *bedrockruntime.ConverseOutput
	err       error
}

func (s *stubConverseClient) Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	s.lastInput = params
	if s.err != nil {
		return nil, s.err
	}
	return s.out, nil
}

func converseTextOutput(text string) *bedrockruntime.ConverseOutput {
	return &bedrockruntime.ConverseOutput{
		Output: &types.ConverseOutputMemberMessage{
			Value: types.Message{
				Role:    types.ConversationRoleAssistant,
				Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: text}},
			},
		},
	}
}

func TestBedrockProviderReturnsAssembledText(t *testing.T) {
	stub := &stubConverseClient{out: converseTextOutput("ROOT CAUSE: node NotReady")}
	provider := llm.NewBedrockProvider(stub, "anthropic.claude-3", 2048)

	resp, err := provider.Complete(context.Background(), []llm.Message{
		{Role: llm.RoleSystem, Content: "Investigate."},
		{Role: llm.RoleUser, Content: "NodeNotReady on node-2"},
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "ROOT CAUSE: node NotReady" {
		t.Fatalf("expected assembled text, got %q", resp.Content)
	}
	if len(stub.lastInput.System) != 1 {
		t.Fatalf("expected system message forwarded, got %d blocks", len(stub.lastInput.System))
	}
	if len(stub.lastInput.Messages) != 1 {
		t.Fatalf("expected one non-system message, got %d", len(stub.lastInput.Messages))
	}
}

func TestBedrockProviderFoldsToolCatalogIntoSystem(t *testing.T) {
	stub := &stubConverseClient{out: converseTextOutput("ok")}
	provider := llm.NewBedrockProvider(stub, "anthropic.claude-3", 2048)

	_, err := provider.Complete(context.Background(), []llm.Message{
		{Role: llm.RoleUser, Content: "hi"},
	}, []llm.ToolSpec{{Name: "promql", Description: "queries metrics"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(stub.lastInput.System) != 1 {
		t.Fatalf("expected catalog appended as a system block, got %d", len(stub.lastInput.System))
	}
}

func TestBedrockProviderDefaultsMaxTokens(t *testing.T) {
	stub := &stubConverseClient{out: converseTextOutput("ok")}
	provider := llm.NewBedrockProvider(stub, "anthropic.claude-3", 0)

	if _, err := provider.Complete(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "hi"}}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *stub.lastInput.InferenceConfig.MaxTokens != 4096 {
		t.Fatalf("expected default max tokens 4096, got %d", *stub.lastInput.InferenceConfig.MaxTokens)
	}
}

func TestBedrockProviderWrapsTransportError(t *testing.T) {
	stub := &stubConverseClient{err: errors.New("throttled")}
	provider := llm.NewBedrockProvider(stub, "anthropic.claude-3", 2048)

	_, err := provider.Complete(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "hi"}}, nil)
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestBedrockProviderErrorsOnUnexpectedOutputShape(t *testing.T) {
	stub := &stubConverseClient{out: &bedrockruntime.ConverseOutput{Output: &types.UnknownUnionMember{Tag: "other"}}}
	provider := llm.NewBedrockProvider(stub, "anthropic.claude-3", 2048)

	_, err := provider.Complete(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "hi"}}, nil)
	if err == nil {
		t.Fatal("expected error for unexpected output shape")
	}
}
