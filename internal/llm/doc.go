// Package llm invokes chat and completion providers resiliently.
//
// An Invoker probes its provider once for one of two call shapes
// (types.ModernProvider or types.LegacyProvider) and dispatches every
// request through that shape. Around each call it applies, in order:
//
//   - a response cache keyed on model, temperature and the formatted prompt
//   - a timeout that also abandons providers ignoring their context
//   - rate-limit retries with exponential backoff and jitter
//   - a configurable fallback response in place of the error
//
// ExtractConcepts parses free-form model output through a pipeline of
// ConceptExtractors and never fails. GenerateEmbedding passes through to the
// provider's embedding capability with linear retry.
package llm
