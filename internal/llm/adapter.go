package llm

import (
	"context"

	"github.com/dshills/llmbridge/pkg/types"
)

type adapterKind int

const (
	kindModern adapterKind = iota + 1
	kindLegacy
)

func (k adapterKind) String() string {
	switch k {
	case kindModern:
		return "modern"
	case kindLegacy:
		return "legacy"
	default:
		return "unknown"
	}
}

// adapter hides the two provider call shapes behind one dispatch. It is
// resolved once in New and never re-probed.
type adapter struct {
	kind   adapterKind
	modern types.ModernProvider
	legacy types.LegacyProvider
}

// detectAdapter prefers the modern shape when a provider offers both.
func detectAdapter(provider any) (adapter, error) {
	if p, ok := provider.(types.ModernProvider); ok {
		return adapter{kind: kindModern, modern: p}, nil
	}
	if p, ok := provider.(types.LegacyProvider); ok {
		return adapter{kind: kindLegacy, legacy: p}, nil
	}
	return adapter{}, types.Configurationf("llm: provider %T supports neither Chat/Complete nor GenerateChat/GenerateCompletion", provider)
}

func (a adapter) chat(ctx context.Context, messages []types.Message, opts types.ChatOptions) (string, error) {
	if a.kind == kindLegacy {
		return a.legacy.GenerateChat(ctx, opts.Model, messages, opts)
	}
	return a.modern.Chat(ctx, messages, opts)
}

func (a adapter) complete(ctx context.Context, prompt string, opts types.ChatOptions) (string, error) {
	if a.kind == kindLegacy {
		return a.legacy.GenerateCompletion(ctx, opts.Model, prompt, opts)
	}
	return a.modern.Complete(ctx, prompt, opts)
}

// send dispatches a formatted prompt to chat or completion.
func (a adapter) send(ctx context.Context, p types.Prompt, opts types.ChatOptions) (string, error) {
	if p.IsChat() {
		return a.chat(ctx, p.Messages, opts)
	}
	return a.complete(ctx, p.Text, opts)
}
