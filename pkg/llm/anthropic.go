// Anthropic transport, grounded on goadesign-goa-ai's
// features/model/anthropic/client.go: a MessagesClient seam (satisfied by
// *sdk.Client's Messages service or a test double), sdk.NewUserMessage/
// sdk.NewTextBlock message construction, and ANTHROPIC_API_KEY-driven
// client construction via sdk.NewClient(option.WithAPIKey(...)).
package llm

import (
	"context"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/incidentctl/controlplane/internal/apperrors"
)

// MessagesClient is the subset of *sdk.Client.Messages this provider uses,
// satisfied by the real SDK client or a test double.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// AnthropicProvider implements Provider over the Anthropic Messages API.
type AnthropicProvider struct {
	client      MessagesClient
	model       string
	maxTokens   int
	temperature float64
}

// NewAnthropicProvider builds a provider from an already-constructed
// MessagesClient (test seam) and model configuration.
func NewAnthropicProvider(client MessagesClient, model string, maxTokens int, temperature float64) *AnthropicProvider {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &AnthropicProvider{client: client, model: model, maxTokens: maxTokens, temperature: temperature}
}

// NewAnthropicProviderFromAPIKey builds a provider using the default
// Anthropic HTTP client, per spec §6 ANTHROPIC_API_KEY.
func NewAnthropicProviderFromAPIKey(apiKey, model string, maxTokens int, temperature float64) (*AnthropicProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic provider: ANTHROPIC_API_KEY is required")
	}
	client := sdk.NewClient(option.WithAPIKey(apiKey))
	return NewAnthropicProvider(&client.Messages, model, maxTokens, temperature), nil
}

// Complete implements Provider. Tool catalog entries are folded into the
// system block as plain text (spec §4.6's tool-call directive is a textual
// protocol parsed by the Agent Runtime, not a native tool_use response), so
// every provider transport shares one parsing path regardless of whether
// the underlying API has native tool-calling support.
func (p *AnthropicProvider) Complete(ctx context.Context, messages []Message, tools []ToolSpec) (Message, error) {
	system, conversation := encodeMessages(messages, tools)

	params := sdk.MessageNewParams{
		Model:     sdk.Model(p.model),
		MaxTokens: int64(p.maxTokens),
		Messages:  conversation,
	}
	if system != "" {
		params.System = []sdk.TextBlockParam{{Text: system}}
	}
	if p.temperature > 0 {
		params.Temperature = sdk.Float(p.temperature)
	}

	resp, err := p.client.New(ctx, params)
	if err != nil {
		return Message{}, apperrors.NewLLMProviderError("anthropic", err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return Message{Role: RoleAssistant, Content: text}, nil
}

func encodeMessages(messages []Message, tools []ToolSpec) (system string, conversation []sdk.MessageParam) {
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
		case RoleUser:
			conversation = append(conversation, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		case RoleAssistant:
			conversation = append(conversation, sdk.NewAssistantMessage(sdk.NewTextBlock(m.Content)))
		}
	}
	if len(tools) > 0 {
		catalog := CatalogText(tools)
		if system != "" {
			system += "\n\n"
		}
		system += catalog
	}
	return system, conversation
}
