package agent

import (
	"github.com/pkoukk/tiktoken-go"

	"github.com/incidentctl/controlplane/pkg/llm"
)

// encodingName is fixed rather than configurable: the agent's text
// protocol (TOOL: lines, ROOT CAUSE/FINDINGS sections) is encoding-neutral,
// so any provider's tokenizer is an adequate proxy for prompt size.
const encodingName = "cl100k_base"

// truncateToBudget drops the oldest non-system messages until the
// conversation's estimated token count fits within maxTokens (spec §6
// LLM_MAX_TOKENS; SPEC_FULL.md DOMAIN STACK "Token budgeting:
// pkoukk/tiktoken-go ... Agent prompt truncation"). A maxTokens of 0
// disables truncation. The system preamble (messages[0]) is never dropped.
func truncateToBudget(messages []llm.Message, maxTokens int) []llm.Message {
	if maxTokens <= 0 || len(messages) <= 1 {
		return messages
	}

	enc, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return messages
	}

	total := countTokens(enc, messages)
	if total <= maxTokens {
		return messages
	}

	system := messages[0]
	rest := append([]llm.Message{}, messages[1:]...)

	for len(rest) > 1 && total > maxTokens {
		dropped := rest[0]
		rest = rest[1:]
		total -= len(enc.Encode(dropped.Content, nil, nil))
	}

	return append([]llm.Message{system}, rest...)
}

func countTokens(enc *tiktoken.Tiktoken, messages []llm.Message) int {
	total := 0
	for _, m := range messages {
		total += len(enc.Encode(m.Content, nil, nil))
	}
	return total
}
