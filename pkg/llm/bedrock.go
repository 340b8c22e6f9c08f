// Bedrock transport via aws-sdk-go-v2, additive to spec §6's LLM_PROVIDER
// enum per the SPEC_FULL.md DOMAIN STACK table. Uses the Bedrock Runtime
// Converse API, which normalizes message/role encoding across every model
// family Bedrock hosts (Anthropic, Titan, Llama, ...) behind one request
// shape, matching this package's "providers differ only in transport" goal
// more directly than per-model InvokeModel payloads would.
package llm

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/incidentctl/controlplane/internal/apperrors"
)

// ConverseClient is the subset of *bedrockruntime.Client this provider uses.
type ConverseClient interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockProvider implements Provider over the Bedrock Runtime Converse API.
type BedrockProvider struct {
	client    ConverseClient
	modelID   string
	maxTokens int
}

// NewBedrockProvider wraps an already-constructed ConverseClient (test seam).
func NewBedrockProvider(client ConverseClient, modelID string, maxTokens int) *BedrockProvider {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &BedrockProvider{client: client, modelID: modelID, maxTokens: maxTokens}
}

// NewBedrockProviderFromEnv builds a provider using the default AWS
// credential chain (region, profile, env vars resolved by aws-sdk-go-v2
// itself, outside this package's §6 env surface).
func NewBedrockProviderFromEnv(ctx context.Context, modelID string, maxTokens int) (*BedrockProvider, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, apperrors.NewLLMProviderError("bedrock", err)
	}
	return NewBedrockProvider(bedrockruntime.NewFromConfig(cfg), modelID, maxTokens), nil
}

// Complete implements Provider.
func (p *BedrockProvider) Complete(ctx context.Context, messages []Message, tools []ToolSpec) (Message, error) {
	var system []types.SystemContentBlock
	var conversation []types.Message

	for _, m := range messages {
		if m.Role == RoleSystem {
			system = append(system, &types.SystemContentBlockMemberText{Value: m.Content})
			continue
		}
		conversation = append(conversation, types.Message{
			Role:    bedrockRole(m.Role),
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: m.Content}},
		})
	}
	if len(tools) > 0 {
		system = append(system, &types.SystemContentBlockMemberText{Value: CatalogText(tools)})
	}

	out, err := p.client.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId:  aws.String(p.modelID),
		Messages: conversation,
		System:   system,
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens: aws.Int32(int32(p.maxTokens)),
		},
	})
	if err != nil {
		return Message{}, apperrors.NewLLMProviderError("bedrock", err)
	}

	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return Message{}, apperrors.NewLLMProviderError("bedrock", nil).WithDetails("unexpected converse output shape")
	}
	var text string
	for _, block := range msg.Value.Content {
		if tb, ok := block.(*types.ContentBlockMemberText); ok {
			text += tb.Value
		}
	}
	return Message{Role: RoleAssistant, Content: text}, nil
}

func bedrockRole(r Role) types.ConversationRole {
	if r == RoleAssistant {
		return types.ConversationRoleAssistant
	}
	return types.ConversationRoleUser
}
