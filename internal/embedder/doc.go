// Package embedder turns provider embeddings into cached vectors of one fixed
// dimension.
//
// # Basic Usage
//
//	vectors := cache.New[[]float64](ctx, cache.WithName("embeddings"))
//	defer vectors.Close()
//
//	inv, err := embedder.New(provider, vectors, embedder.Config{
//	    Model:     "text-embedding-3-small",
//	    Dimension: 1536,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	vec, err := inv.GenerateEmbedding(ctx, "func ParseFile(path string) error")
//
// The provider is any value implementing types.EmbeddingProvider; New rejects
// anything else with ErrConfiguration.
//
// # Standardization
//
// Providers disagree on vector length, so every vector passes through a
// Normalizer before it is cached:
//   - shorter vectors are zero-padded
//   - longer vectors are truncated
//   - every element must be finite, or the call fails with ErrValidation
//
// Config.UnitNormalize additionally scales vectors to unit L2 length.
//
// # Caching
//
// The default key is the model name plus the first 100 characters of the
// text. Texts that share a long prefix therefore share an entry; pass
// WithKeyFunc(embedder.HashKey) to key on a hash of the full text instead.
// Concurrent misses for the same key result in a single provider call.
//
// # Batches
//
//	vecs, err := inv.GenerateBatch(ctx, texts)
//
// Texts are validated up front, embedded with at most
// Config.BatchConcurrency calls in flight, and returned in input order.
package embedder
