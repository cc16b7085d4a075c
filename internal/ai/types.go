// Package ai routes completion requests across multiple AI backends with
// availability fallback, bounded conversation context, and a single-flight
// background analysis queue.
package ai

import "context"

// Provider identifies an AI backend.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderCopilot   Provider = "copilot"
	ProviderAuto      Provider = "auto"
)

// fallbackOrder is the fixed preference chain used when the selected
// provider is unavailable.
var fallbackOrder = []Provider{ProviderOpenAI, ProviderAnthropic, ProviderCopilot}

// Conversation roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is one turn of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options tunes a single completion call.
type Options struct {
	MaxTokens   int
	Temperature float32
	// JSONResponse requests a structured JSON-shaped reply.
	JSONResponse bool
}

// Usage reports token consumption for one call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// Client is implemented by each backend.
type Client interface {
	// Provider returns the backend identifier.
	Provider() Provider

	// Available reports whether the backend can serve requests right now
	// (credentials present, integration reachable). Absence is a normal
	// condition, never an error.
	Available() bool

	// Complete sends the messages and returns the assistant reply text.
	Complete(ctx context.Context, messages []Message, opts Options) (string, *Usage, error)
}
