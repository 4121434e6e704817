// Package types provides shared type definitions for llmbridge.
//
// It holds the data model that crosses package boundaries: chat messages and
// prompts, text windows, the provider capability interfaces and the error
// taxonomy.
//
// # Provider Shapes
//
// Chat backends come in two shapes. ModernProvider carries the model inside
// ChatOptions:
//
//	reply, err := p.Chat(ctx, messages, types.ChatOptions{Model: "gpt-4o-mini"})
//
// LegacyProvider takes the model as an explicit argument:
//
//	reply, err := p.GenerateChat(ctx, "llama3", messages, opts)
//
// Either shape may additionally implement EmbeddingProvider. The invokers in
// internal/llm and internal/embedder probe these capabilities once at
// construction.
//
// # Errors
//
// Every failure surfaced by the layer is marked with one of ErrConfiguration,
// ErrValidation, ErrProvider, ErrTimeout or ErrRetryExhausted:
//
//	if errors.Is(err, types.ErrRetryExhausted) {
//	    // the provider kept throttling us
//	}
//
// The original upstream error stays in the chain, so errors.As can still reach
// a *StatusError.
package types
