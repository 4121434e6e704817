package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"
	"golang.org/x/sync/singleflight"

	"github.com/dshills/llmbridge/internal/cache"
	"github.com/dshills/llmbridge/internal/metrics"
	"github.com/dshills/llmbridge/pkg/types"
)

const (
	// DefaultBatchConcurrency bounds in-flight provider calls in GenerateBatch.
	DefaultBatchConcurrency = 4

	// keyPrefixRunes is how much of the text the default cache key keeps.
	keyPrefixRunes = 100
)

// KeyFunc derives the cache key for a model and text.
type KeyFunc func(model, text string) string

// DefaultKey keys on the model and the first 100 characters of text. Texts
// sharing that prefix share a cache entry; use WithKeyFunc with HashKey when
// that collision matters.
func DefaultKey(model, text string) string {
	r := []rune(text)
	if len(r) > keyPrefixRunes {
		r = r[:keyPrefixRunes]
	}
	return model + ":" + string(r)
}

// HashKey keys on the model and a SHA-256 of the full text.
func HashKey(model, text string) string {
	return model + ":" + ComputeHash(text)
}

// Config configures an Invoker.
type Config struct {
	Model            string
	Dimension        int
	UnitNormalize    bool
	BatchConcurrency int
}

// Invoker produces cached, fixed-dimension embeddings from an embedding
// provider. It is safe for concurrent use.
type Invoker struct {
	provider   types.EmbeddingProvider
	cache      *cache.Cache[[]float64]
	normalizer *Normalizer
	cfg        Config

	keyFunc KeyFunc
	logger  zerolog.Logger
	metrics *metrics.Metrics
	group   singleflight.Group
}

// Option configures an Invoker.
type Option func(*Invoker)

func WithLogger(l zerolog.Logger) Option {
	return func(inv *Invoker) { inv.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(inv *Invoker) { inv.metrics = m }
}

// WithKeyFunc replaces DefaultKey.
func WithKeyFunc(fn KeyFunc) Option {
	return func(inv *Invoker) {
		if fn != nil {
			inv.keyFunc = fn
		}
	}
}

// New builds an Invoker. provider must implement types.EmbeddingProvider. A nil
// cache disables caching.
func New(provider any, c *cache.Cache[[]float64], cfg Config, opts ...Option) (*Invoker, error) {
	p, ok := provider.(types.EmbeddingProvider)
	if !ok {
		return nil, types.Configurationf("embedder: provider %T does not generate embeddings", provider)
	}
	n, err := NewNormalizer(cfg.Dimension)
	if err != nil {
		return nil, err
	}
	if cfg.BatchConcurrency <= 0 {
		cfg.BatchConcurrency = DefaultBatchConcurrency
	}

	inv := &Invoker{
		provider:   p,
		cache:      c,
		normalizer: n,
		cfg:        cfg,
		keyFunc:    DefaultKey,
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv, nil
}

// Model returns the configured embedding model.
func (inv *Invoker) Model() string {
	return inv.cfg.Model
}

// Dimension returns the length of every returned vector.
func (inv *Invoker) Dimension() int {
	return inv.cfg.Dimension
}

// GenerateEmbedding returns the embedding for text, served from cache when
// possible. The returned slice is owned by the caller.
func (inv *Invoker) GenerateEmbedding(ctx context.Context, text string) ([]float64, error) {
	if text == "" {
		return nil, types.Validationf("embedder: text cannot be empty")
	}

	key := inv.keyFunc(inv.cfg.Model, text)
	if inv.cache != nil {
		if v, ok := inv.cache.Get(key); ok {
			return clone(v), nil
		}
	}

	// Concurrent misses for one key share a single provider call. The shared
	// call is detached from any one caller's cancellation; each caller stops
	// waiting when its own ctx is done.
	ch := inv.group.DoChan(key, func() (interface{}, error) {
		return inv.fetch(context.WithoutCancel(ctx), key, text)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return clone(res.Val.([]float64)), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// GenerateBatch embeds every text, preserving order. All texts are validated
// before any provider call; the first failure cancels the rest.
func (inv *Invoker) GenerateBatch(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, types.Validationf("embedder: no texts provided")
	}
	for i, text := range texts {
		if text == "" {
			return nil, types.Validationf("embedder: text at index %d is empty", i)
		}
	}

	out := make([][]float64, len(texts))
	p := pool.New().
		WithContext(ctx).
		WithCancelOnError().
		WithFirstError().
		WithMaxGoroutines(inv.cfg.BatchConcurrency)
	for i, text := range texts {
		p.Go(func(ctx context.Context) error {
			v, err := inv.GenerateEmbedding(ctx, text)
			if err != nil {
				return errors.Wrapf(err, "embedding text %d", i)
			}
			out[i] = v
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (inv *Invoker) fetch(ctx context.Context, key, text string) ([]float64, error) {
	start := time.Now()
	raw, err := inv.provider.GenerateEmbedding(ctx, inv.cfg.Model, text)
	if err != nil {
		inv.metrics.ProviderCall("embedding", "error", time.Since(start).Seconds())
		return nil, types.WrapProvider(err, "embedding provider failed")
	}
	if raw == nil {
		inv.metrics.ProviderCall("embedding", "error", time.Since(start).Seconds())
		return nil, errors.Mark(errors.New("embedding provider returned no vector"), types.ErrProvider)
	}
	inv.metrics.ProviderCall("embedding", "success", time.Since(start).Seconds())

	action := inv.normalizer.Action(raw)
	inv.metrics.Standardized(action)
	if action != ActionNone {
		inv.logger.Debug().
			Str("model", inv.cfg.Model).
			Str("action", action).
			Int("got", len(raw)).
			Int("want", inv.normalizer.Dimension()).
			Msg("standardized embedding")
	}

	vec := inv.normalizer.Standardize(raw)
	if inv.cfg.UnitNormalize {
		vec = inv.normalizer.Normalize(vec)
	}
	if err := inv.normalizer.Validate(vec); err != nil {
		return nil, err
	}

	if inv.cache != nil {
		inv.cache.Set(key, vec)
	}
	return vec, nil
}

// ComputeHash returns the hex SHA-256 of text.
func ComputeHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

func clone(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	return out
}
