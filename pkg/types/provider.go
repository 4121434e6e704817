package types

import "context"

// Message roles understood by chat providers.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Prompt is either a plain completion prompt or a chat message list.
type Prompt struct {
	Text     string
	Messages []Message
}

// IsChat reports whether the prompt should be sent through a chat call.
func (p Prompt) IsChat() bool {
	return len(p.Messages) > 0
}

// ChatOptions are the sampling parameters passed to a provider call.
type ChatOptions struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// ModernProvider is a chat/completion backend that carries the model in its
// options.
type ModernProvider interface {
	Chat(ctx context.Context, messages []Message, opts ChatOptions) (string, error)
	Complete(ctx context.Context, prompt string, opts ChatOptions) (string, error)
}

// LegacyProvider is a chat/completion backend that takes the model as an
// explicit argument.
type LegacyProvider interface {
	GenerateChat(ctx context.Context, model string, messages []Message, opts ChatOptions) (string, error)
	GenerateCompletion(ctx context.Context, model, prompt string, opts ChatOptions) (string, error)
}

// EmbeddingProvider generates raw embedding vectors.
type EmbeddingProvider interface {
	GenerateEmbedding(ctx context.Context, model, text string) ([]float64, error)
}

// PromptFormatter turns caller input into provider-ready prompts.
type PromptFormatter interface {
	FormatChatPrompt(model, systemPrompt, context, prompt string) []Message
	FormatConceptPrompt(model, text string) Prompt
}
