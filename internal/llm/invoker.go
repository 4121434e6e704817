package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dshills/llmbridge/internal/cache"
	"github.com/dshills/llmbridge/internal/metrics"
	"github.com/dshills/llmbridge/internal/prompt"
	"github.com/dshills/llmbridge/pkg/types"
)

const tracerName = "github.com/dshills/llmbridge/internal/llm"

// FallbackConfig supplies canned results used instead of errors.
type FallbackConfig struct {
	Enabled bool

	// Response replaces any failed generation.
	Response string

	// TimeoutResponse replaces a timed-out generation. Empty means Response.
	TimeoutResponse string

	// Embedding, when non-empty, replaces a failed GenerateEmbedding.
	Embedding []float64
}

// Config configures an Invoker.
type Config struct {
	Model        string
	Temperature  float64
	MaxTokens    int
	SystemPrompt string

	Retry    RetryPolicy
	Timeout  time.Duration
	Fallback FallbackConfig
	Concepts ConceptsConfig

	EmbeddingModel      string
	EmbeddingRetries    int
	EmbeddingRetryDelay time.Duration
}

// DefaultConfig returns a Config for model with the standard defaults.
func DefaultConfig(model string) Config {
	return Config{
		Model:               model,
		Temperature:         0.7,
		Retry:               DefaultRetryPolicy(),
		Concepts:            DefaultConceptsConfig(),
		EmbeddingRetries:    3,
		EmbeddingRetryDelay: time.Second,
	}
}

// GenerateOptions override Config for a single GenerateResponse call. Zero
// values keep the configured setting.
type GenerateOptions struct {
	Model        string
	Temperature  *float64
	SystemPrompt string
	MaxRetries   *int
	BaseDelay    time.Duration
	Timeout      time.Duration
}

// Invoker wraps a chat provider with rate-limit retries, timeouts, response
// caching and fallbacks. It is safe for concurrent use.
type Invoker struct {
	adapter   adapter
	embedder  types.EmbeddingProvider
	formatter types.PromptFormatter
	cache     *cache.Cache[string]
	cfg       Config

	extractors []ConceptExtractor
	logger     zerolog.Logger
	metrics    *metrics.Metrics
	jitter     *jitterSource
	tracer     trace.Tracer

	mu          sync.RWMutex
	temperature float64
}

// Option configures an Invoker.
type Option func(*options)

type options struct {
	formatter  types.PromptFormatter
	cache      *cache.Cache[string]
	logger     zerolog.Logger
	metrics    *metrics.Metrics
	rng        *rand.Rand
	extractors []ConceptExtractor
}

func WithFormatter(f types.PromptFormatter) Option {
	return func(o *options) { o.formatter = f }
}

// WithCache enables response caching.
func WithCache(c *cache.Cache[string]) Option {
	return func(o *options) { o.cache = c }
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithRand sets the jitter source, for reproducible backoff.
func WithRand(r *rand.Rand) Option {
	return func(o *options) { o.rng = r }
}

// WithExtractors replaces the concept parsing pipeline.
func WithExtractors(ex ...ConceptExtractor) Option {
	return func(o *options) { o.extractors = ex }
}

// New probes provider for a chat capability and returns an Invoker. The
// provider must implement types.ModernProvider or types.LegacyProvider; if it
// also implements types.EmbeddingProvider, GenerateEmbedding is available.
func New(provider any, cfg Config, opts ...Option) (*Invoker, error) {
	if !ValidateModel(cfg.Model) {
		return nil, types.Configurationf("llm: model name is required")
	}
	if err := validateTemperature(cfg.Temperature); err != nil {
		return nil, errors.Mark(err, types.ErrConfiguration)
	}
	a, err := detectAdapter(provider)
	if err != nil {
		return nil, err
	}
	cfg.Concepts = cfg.Concepts.withDefaults()

	o := options{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.formatter == nil {
		o.formatter = prompt.NewFormatter()
	}
	if o.extractors == nil {
		if o.extractors, err = DefaultExtractors(cfg.Concepts.Schema); err != nil {
			return nil, err
		}
	}

	embedder, _ := provider.(types.EmbeddingProvider)
	inv := &Invoker{
		adapter:     a,
		embedder:    embedder,
		formatter:   o.formatter,
		cache:       o.cache,
		cfg:         cfg,
		extractors:  o.extractors,
		logger:      o.logger,
		metrics:     o.metrics,
		jitter:      newJitterSource(o.rng),
		tracer:      otel.Tracer(tracerName),
		temperature: cfg.Temperature,
	}
	inv.logger.Debug().
		Str("model", cfg.Model).
		Str("adapter", a.kind.String()).
		Bool("embeddings", embedder != nil).
		Msg("llm invoker ready")
	return inv, nil
}

// Model returns the default model.
func (inv *Invoker) Model() string {
	return inv.cfg.Model
}

// Temperature returns the current default temperature.
func (inv *Invoker) Temperature() float64 {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	return inv.temperature
}

// SetTemperature changes the default temperature. Values outside [0, 1] are
// rejected with ErrValidation.
func (inv *Invoker) SetTemperature(t float64) error {
	if err := validateTemperature(t); err != nil {
		return err
	}
	inv.mu.Lock()
	inv.temperature = t
	inv.mu.Unlock()
	return nil
}

// ValidateModel reports whether model is usable as a model identifier.
func (inv *Invoker) ValidateModel(model string) bool {
	return ValidateModel(model)
}

// ValidateModel reports whether model is non-empty after trimming.
func ValidateModel(model string) bool {
	return strings.TrimSpace(model) != ""
}

func validateTemperature(t float64) error {
	if t < 0 || t > 1 {
		return types.Validationf("llm: temperature must be in [0,1], got %v", t)
	}
	return nil
}

// GenerateResponse sends prompt, with optional context, to the chat provider.
// Rate-limit failures are retried per the retry policy. Errors are marked
// ErrTimeout, ErrRetryExhausted or ErrProvider; with fallback enabled, those
// become the configured fallback response and a nil error.
func (inv *Invoker) GenerateResponse(ctx context.Context, promptText, contextText string, opts GenerateOptions) (string, error) {
	ctx, span := inv.tracer.Start(ctx, "llm.GenerateResponse")
	defer span.End()
	log := inv.requestLogger("generate_response")

	if strings.TrimSpace(promptText) == "" {
		return "", types.Validationf("llm: prompt cannot be empty")
	}

	model := inv.cfg.Model
	if opts.Model != "" {
		if ValidateModel(opts.Model) {
			model = opts.Model
		} else {
			log.Warn().Str("model", opts.Model).Msg("ignoring invalid model override")
		}
	}
	temperature := inv.Temperature()
	if opts.Temperature != nil {
		if err := validateTemperature(*opts.Temperature); err != nil {
			return "", err
		}
		temperature = *opts.Temperature
	}
	system := inv.cfg.SystemPrompt
	if opts.SystemPrompt != "" {
		system = opts.SystemPrompt
	}
	policy := inv.cfg.Retry
	if opts.MaxRetries != nil {
		policy.MaxRetries = *opts.MaxRetries
	}
	if opts.BaseDelay > 0 {
		policy.BaseDelay = opts.BaseDelay
	}
	timeout := inv.cfg.Timeout
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}

	span.SetAttributes(
		attribute.String("llm.model", model),
		attribute.Float64("llm.temperature", temperature),
		attribute.String("llm.adapter", inv.adapter.kind.String()),
	)
	log = log.With().Str("model", model).Logger()

	messages := inv.formatter.FormatChatPrompt(model, system, contextText, promptText)
	key := responseKey(model, temperature, messages)
	if inv.cache != nil {
		if resp, ok := inv.cache.Get(key); ok {
			log.Debug().Msg("response cache hit")
			return resp, nil
		}
	}

	chatOpts := types.ChatOptions{Model: model, Temperature: temperature, MaxTokens: inv.cfg.MaxTokens}
	start := time.Now()
	resp, err := runWithTimeout(ctx, timeout, func(ctx context.Context) (string, error) {
		return withRateLimit(ctx, inv.retrier(log), policy, "chat", func(ctx context.Context) (string, error) {
			return inv.adapter.chat(ctx, messages, chatOpts)
		})
	})
	if err != nil {
		err = classify(err, "chat provider failed")
		inv.metrics.ProviderCall("chat", outcome(err), time.Since(start).Seconds())
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return inv.fallbackResponse(log, "chat", err)
	}
	inv.metrics.ProviderCall("chat", "success", time.Since(start).Seconds())

	if inv.cache != nil {
		inv.cache.Set(key, resp)
	}
	return resp, nil
}

// ExtractConcepts asks the provider for the key concepts in text. It never
// fails: every error is logged and yields an empty list.
func (inv *Invoker) ExtractConcepts(ctx context.Context, text string) []string {
	ctx, span := inv.tracer.Start(ctx, "llm.ExtractConcepts")
	defer span.End()
	log := inv.requestLogger("extract_concepts").With().Str("model", inv.cfg.Model).Logger()

	if strings.TrimSpace(text) == "" {
		return []string{}
	}

	p := inv.formatter.FormatConceptPrompt(inv.cfg.Model, text)
	chatOpts := types.ChatOptions{
		Model:       inv.cfg.Model,
		Temperature: inv.cfg.Concepts.Temperature,
		MaxTokens:   inv.cfg.MaxTokens,
	}
	span.SetAttributes(attribute.String("llm.model", inv.cfg.Model), attribute.Bool("llm.chat", p.IsChat()))

	start := time.Now()
	raw, err := runWithTimeout(ctx, inv.cfg.Timeout, func(ctx context.Context) (string, error) {
		return withRateLimit(ctx, inv.retrier(log), inv.cfg.Retry, "concepts", func(ctx context.Context) (string, error) {
			return inv.adapter.send(ctx, p, chatOpts)
		})
	})
	if err != nil {
		err = classify(err, "concept provider failed")
		inv.metrics.ProviderCall("concepts", outcome(err), time.Since(start).Seconds())
		span.RecordError(err)
		log.Warn().Err(err).Msg("concept extraction failed")
		return []string{}
	}
	inv.metrics.ProviderCall("concepts", "success", time.Since(start).Seconds())

	for _, ex := range inv.extractors {
		found, ok := ex.Extract(raw)
		if !ok {
			continue
		}
		if concepts := cleanConcepts(found, inv.cfg.Concepts); len(concepts) > 0 {
			inv.metrics.ConceptsParsed(ex.Name())
			log.Debug().Str("strategy", ex.Name()).Int("concepts", len(concepts)).Msg("concepts extracted")
			return concepts
		}
	}
	inv.metrics.ConceptsParsed("none")
	log.Debug().Int("response_length", len(raw)).Msg("no concepts found in response")
	return []string{}
}

// GenerateEmbedding passes text through to the provider's embedding
// capability. Failed attempts are retried with a linearly growing delay;
// retries is the total number of attempts, falling back to
// Config.EmbeddingRetries when <= 0. An empty model uses
// Config.EmbeddingModel.
func (inv *Invoker) GenerateEmbedding(ctx context.Context, text, model string, retries int) ([]float64, error) {
	ctx, span := inv.tracer.Start(ctx, "llm.GenerateEmbedding")
	defer span.End()
	log := inv.requestLogger("generate_embedding")

	if inv.embedder == nil {
		return nil, types.Configurationf("llm: provider does not generate embeddings")
	}
	if text == "" {
		return nil, types.Validationf("llm: text cannot be empty")
	}
	if model == "" {
		model = inv.cfg.EmbeddingModel
	}
	attempts := retries
	if attempts <= 0 {
		attempts = inv.cfg.EmbeddingRetries
	}
	if attempts <= 0 {
		attempts = 1
	}
	span.SetAttributes(attribute.String("llm.model", model), attribute.Int("llm.max_attempts", attempts))

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		start := time.Now()
		vec, err := inv.embedder.GenerateEmbedding(ctx, model, text)
		if err == nil && vec == nil {
			err = errors.New("provider returned no vector")
		}
		if err == nil {
			inv.metrics.ProviderCall("embedding", "success", time.Since(start).Seconds())
			return vec, nil
		}
		inv.metrics.ProviderCall("embedding", "error", time.Since(start).Seconds())
		lastErr = err
		log.Warn().Err(err).Int("attempt", attempt).Int("attempts", attempts).Msg("embedding attempt failed")

		if attempt == attempts {
			break
		}
		inv.metrics.Retry("embedding")
		if err := sleep(ctx, inv.cfg.EmbeddingRetryDelay*time.Duration(attempt)); err != nil {
			span.RecordError(err)
			return nil, errors.Wrapf(err, "embedding cancelled after %d attempts", attempt)
		}
	}

	err := errors.Mark(
		errors.Wrapf(lastErr, "embedding failed after %d attempts", attempts),
		types.ErrRetryExhausted,
	)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	if inv.cfg.Fallback.Enabled && len(inv.cfg.Fallback.Embedding) > 0 {
		inv.metrics.Fallback("embedding", "error")
		log.Warn().Err(err).Msg("returning fallback embedding")
		out := make([]float64, len(inv.cfg.Fallback.Embedding))
		copy(out, inv.cfg.Fallback.Embedding)
		return out, nil
	}
	return nil, err
}

func (inv *Invoker) requestLogger(op string) zerolog.Logger {
	return inv.logger.With().
		Str("request_id", uuid.NewString()).
		Str("operation", op).
		Logger()
}

func (inv *Invoker) retrier(log zerolog.Logger) retrier {
	return retrier{jitter: inv.jitter, metrics: inv.metrics, logger: log}
}

func (inv *Invoker) fallbackResponse(log zerolog.Logger, op string, err error) (string, error) {
	if !inv.cfg.Fallback.Enabled || errors.Is(err, context.Canceled) {
		return "", err
	}
	reason, resp := "error", inv.cfg.Fallback.Response
	if errors.Is(err, types.ErrTimeout) {
		reason = "timeout"
		if inv.cfg.Fallback.TimeoutResponse != "" {
			resp = inv.cfg.Fallback.TimeoutResponse
		}
	}
	inv.metrics.Fallback(op, reason)
	log.Warn().Err(err).Str("reason", reason).Msg("returning fallback response")
	return resp, nil
}

// runWithTimeout runs fn under a derived deadline and also races it, so a
// provider that ignores its context cannot hold the caller past the timeout.
// Such a provider keeps running in the background until it returns.
func runWithTimeout[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		done <- result{v, err}
	}()

	var zero T
	select {
	case r := <-done:
		if r.err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, timeoutError(r.err, timeout)
		}
		return r.value, r.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, timeoutError(ctx.Err(), timeout)
		}
		return zero, ctx.Err()
	}
}

func timeoutError(cause error, timeout time.Duration) error {
	return errors.Mark(errors.Wrapf(cause, "timed out after %s", timeout), types.ErrTimeout)
}

// classify leaves timeout, exhaustion and cancellation errors alone and marks
// everything else as a provider failure.
func classify(err error, msg string) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return types.WrapProvider(err, msg)
}

func outcome(err error) string {
	switch {
	case errors.Is(err, types.ErrTimeout):
		return "timeout"
	case errors.Is(err, types.ErrRetryExhausted):
		return "exhausted"
	default:
		return "error"
	}
}

// responseKey hashes everything that determines a response.
func responseKey(model string, temperature float64, messages []types.Message) string {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatFloat(temperature, 'g', -1, 64)))
	for _, m := range messages {
		h.Write([]byte{0})
		h.Write([]byte(m.Role))
		h.Write([]byte{0})
		h.Write([]byte(m.Content))
	}
	return hex.EncodeToString(h.Sum(nil))
}
