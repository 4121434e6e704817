package main

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"github.com/dshills/llmbridge/internal/cache"
	"github.com/dshills/llmbridge/internal/config"
	"github.com/dshills/llmbridge/internal/embedder"
	"github.com/dshills/llmbridge/internal/llm"
	"github.com/dshills/llmbridge/internal/metrics"
	"github.com/dshills/llmbridge/internal/provider"
	"github.com/dshills/llmbridge/internal/window"
	"github.com/dshills/llmbridge/pkg/types"
)

// app holds the components built from configuration. Close releases them.
type app struct {
	provider   provider.Provider
	responses  *cache.Cache[string]
	embeddings *cache.Cache[[]float64]
	invoker    *llm.Invoker
	embedder   *embedder.Invoker
	windower   *window.Windower
}

// buildApp wires every component. A provider without chat support leaves
// invoker nil; one without embeddings leaves embedder nil.
func buildApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger, m *metrics.Metrics) (*app, error) {
	w, err := window.New(cfg.WindowConfig(), window.WithLogger(logger.With().Str("component", "window").Logger()))
	if err != nil {
		return nil, err
	}

	p, err := provider.New(cfg.ProviderConfig())
	if err != nil {
		return nil, err
	}
	a := &app{provider: p, windower: w}
	logger.Info().Str("provider", p.Name()).Msg("provider selected")

	if cfg.LLM.Cache.Enabled {
		a.responses = cache.New[string](ctx, append(cfg.LLM.Cache.Options("responses"),
			cache.WithLogger(logger), cache.WithMetrics(m))...)
	}
	if cfg.Embedding.Cache.Enabled {
		a.embeddings = cache.New[[]float64](ctx, append(cfg.Embedding.Cache.Options("embeddings"),
			cache.WithLogger(logger), cache.WithMetrics(m))...)
	}

	embOpts := []embedder.Option{
		embedder.WithLogger(logger.With().Str("component", "embedder").Logger()),
		embedder.WithMetrics(m),
	}
	if cfg.Embedding.HashKeys {
		embOpts = append(embOpts, embedder.WithKeyFunc(embedder.HashKey))
	}
	a.embedder, err = embedder.New(p, a.embeddings, cfg.EmbedderConfig(p), embOpts...)
	if err != nil {
		a.Close()
		return nil, err
	}

	llmOpts := []llm.Option{
		llm.WithLogger(logger.With().Str("component", "llm").Logger()),
		llm.WithMetrics(m),
	}
	if a.responses != nil {
		llmOpts = append(llmOpts, llm.WithCache(a.responses))
	}
	a.invoker, err = llm.New(p, cfg.LLMConfig(p), llmOpts...)
	if err != nil {
		if !errors.Is(err, types.ErrConfiguration) {
			a.Close()
			return nil, err
		}
		logger.Warn().Err(err).Str("provider", p.Name()).Msg("chat unavailable, serving embeddings and windowing only")
		a.invoker = nil
	}
	return a, nil
}

func (a *app) Close() {
	if a.responses != nil {
		_ = a.responses.Close()
	}
	if a.embeddings != nil {
		_ = a.embeddings.Close()
	}
	if a.provider != nil {
		_ = a.provider.Close()
	}
}
