// OpenAI transport via tmc/langchaingo, grounded on
// compozy-compozy/engine/llm/adapter/langchain_adapter_test.go's message
// conversion shape (llms.MessageContent/llms.TextContent, one
// ChatMessageType per Role) and llms.Model.GenerateContent as the single
// completion call.
package llm

import (
	"context"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/incidentctl/controlplane/internal/apperrors"
)

// OpenAIProvider implements Provider over any langchaingo llms.Model,
// defaulting to the OpenAI chat completion backend.
type OpenAIProvider struct {
	model       llms.Model
	maxTokens   int
	temperature float64
}

// NewOpenAIProvider wraps an already-constructed langchaingo model (test seam).
func NewOpenAIProvider(model llms.Model, maxTokens int, temperature float64) *OpenAIProvider {
	return &OpenAIProvider{model: model, maxTokens: maxTokens, temperature: temperature}
}

// NewOpenAIProviderFromAPIKey builds a provider over langchaingo's OpenAI
// backend, per spec §6 OPENAI_API_KEY/LLM_MODEL.
func NewOpenAIProviderFromAPIKey(apiKey, modelName string) (*OpenAIProvider, error) {
	llm, err := openai.New(openai.WithToken(apiKey), openai.WithModel(modelName))
	if err != nil {
		return nil, apperrors.NewLLMProviderError("openai", err)
	}
	return NewOpenAIProvider(llm, 4096, 0.2), nil
}

// Complete implements Provider.
func (p *OpenAIProvider) Complete(ctx context.Context, messages []Message, tools []ToolSpec) (Message, error) {
	content := make([]llms.MessageContent, 0, len(messages)+1)
	for _, m := range messages {
		content = append(content, llms.TextParts(roleType(m.Role), m.Content))
	}
	if len(tools) > 0 {
		content = append(content, llms.TextParts(llms.ChatMessageTypeSystem, CatalogText(tools)))
	}

	opts := []llms.CallOption{llms.WithTemperature(p.temperature)}
	if p.maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(p.maxTokens))
	}

	resp, err := p.model.GenerateContent(ctx, content, opts...)
	if err != nil {
		return Message{}, apperrors.NewLLMProviderError("openai", err)
	}
	if len(resp.Choices) == 0 {
		return Message{}, apperrors.NewLLMProviderError("openai", nil).WithDetails("empty response")
	}
	return Message{Role: RoleAssistant, Content: resp.Choices[0].Content}, nil
}

func roleType(r Role) llms.ChatMessageType {
	switch r {
	case RoleSystem:
		return llms.ChatMessageTypeSystem
	case RoleAssistant:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}
