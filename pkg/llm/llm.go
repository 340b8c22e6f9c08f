// Package llm implements the LLM provider abstraction (spec §9 "LLM
// provider abstraction: single capability — complete(messages, tools) ->
// message; providers differ only in transport"). The Agent Runtime depends
// only on the Provider interface; the four concrete providers
// (anthropic, openai, bedrock, mock) differ only in how they reach the
// model, never in how the Agent Runtime drives the conversation.
package llm

import "context"

// Role is a conversation turn's speaker.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of the conversation the Agent Runtime maintains.
type Message struct {
	Role    Role
	Content string
}

// ToolSpec describes one tool in the catalog assembled into the system
// prompt (spec §4.6 step 1 "a serialized tool catalog").
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

// Provider is the single capability the Agent Runtime depends on. A
// provider's Complete call is expected to be a single round-trip: no
// streaming, no session state held between calls (spec §1 Non-goals
// "streaming LLM outputs, stateful long-lived agent sessions").
type Provider interface {
	Complete(ctx context.Context, messages []Message, tools []ToolSpec) (Message, error)
}

// CatalogText renders tools into the plain-text catalog appended to the
// system prompt, in the shape the agent's text protocol expects: one tool
// per line, `- name: description`. Parameter schemas are not included.
func CatalogText(tools []ToolSpec) string {
	if len(tools) == 0 {
		return "No tools are available for this investigation."
	}
	out := "Available tools:\n"
	for _, t := range tools {
		out += "- " + t.Name + ": " + t.Description + "\n"
	}
	return out
}
