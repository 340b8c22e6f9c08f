package llm

import (
	"context"
	"fmt"

	"github.com/incidentctl/controlplane/internal/config"
)

// NewProviderFromConfig builds the Provider named by cfg.LLM.Provider (spec
// §6 LLM_PROVIDER ∈ {anthropic, openai, mock}, extended additively with
// bedrock per SPEC_FULL.md).
func NewProviderFromConfig(ctx context.Context, cfg *config.Config) (Provider, error) {
	provider, err := newTransport(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.LLM.Provider == "mock" {
		return provider, nil
	}
	return NewBreakerProvider(cfg.LLM.Provider, provider), nil
}

func newTransport(ctx context.Context, cfg *config.Config) (Provider, error) {
	switch cfg.LLM.Provider {
	case "anthropic":
		return NewAnthropicProviderFromAPIKey(cfg.LLM.AnthropicAPIKey, cfg.LLM.Model, cfg.LLM.MaxTokens, cfg.LLM.Temperature)
	case "openai":
		return NewOpenAIProviderFromAPIKey(cfg.LLM.OpenAIAPIKey, cfg.LLM.Model)
	case "bedrock":
		return NewBedrockProviderFromEnv(ctx, cfg.LLM.Model, cfg.LLM.MaxTokens)
	case "mock":
		return NewMockProvider("ROOT CAUSE: unknown\nFINDINGS:\nRECOMMENDATIONS:\nAUTO-FIX: no"), nil
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.LLM.Provider)
	}
}
