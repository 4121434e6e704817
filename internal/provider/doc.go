// Package provider implements the HTTP backends the invokers talk to.
//
// Each backend exposes a different capability set:
//
//	OpenAI  chat, completion (types.ModernProvider) and embeddings
//	Ollama  chat, completion (types.LegacyProvider) and embeddings
//	Jina    embeddings only
//	Local   deterministic offline embeddings, no network
//
// The invokers never type-switch on these structs; they probe for the
// interfaces in pkg/types once at construction.
//
// # Provider Selection
//
//  1. If LLMBRIDGE_PROVIDER is set → use specified provider
//  2. Else if OPENAI_API_KEY is set → use OpenAI
//  3. Else if JINA_API_KEY is set → use Jina AI
//  4. Else if OLLAMA_HOST is set → use Ollama
//  5. Else → fallback to local provider (offline mode)
//
// # Errors
//
// Non-2xx responses come back as *types.StatusError so the retry layer can
// classify 429 and 529 responses as rate limiting. Undecodable bodies are
// marked types.ErrValidation.
package provider
