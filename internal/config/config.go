package config

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"

	"github.com/dshills/llmbridge/internal/cache"
	"github.com/dshills/llmbridge/internal/embedder"
	"github.com/dshills/llmbridge/internal/llm"
	"github.com/dshills/llmbridge/internal/provider"
	"github.com/dshills/llmbridge/internal/window"
	"github.com/dshills/llmbridge/pkg/types"
)

// EnvPrefix prefixes every environment override, e.g. LLMBRIDGE_LLM_MODEL.
const EnvPrefix = "LLMBRIDGE"

// Config is the binary configuration. Values come from defaults, an optional
// config file and LLMBRIDGE_* environment variables, in increasing priority.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Provider  ProviderConfig  `mapstructure:"provider"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Window    WindowConfig    `mapstructure:"window"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// MetricsConfig controls the Prometheus endpoint. An empty Address disables it.
type MetricsConfig struct {
	Address string `mapstructure:"address"`
}

type ProviderConfig struct {
	Name    string        `mapstructure:"name"` // openai, ollama, jina, local; empty auto-detects
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	MaxSize int           `mapstructure:"max_size"`
	TTL     time.Duration `mapstructure:"ttl"`
}

type RetryConfig struct {
	MaxRetries       int           `mapstructure:"max_retries"`
	BaseDelay        time.Duration `mapstructure:"base_delay"`
	MaxDelay         time.Duration `mapstructure:"max_delay"`
	MaxJitter        time.Duration `mapstructure:"max_jitter"`
	PreDelayMin      time.Duration `mapstructure:"pre_delay_min"`
	PreDelayMax      time.Duration `mapstructure:"pre_delay_max"`
	RateLimitCodes   []int         `mapstructure:"rate_limit_codes"`
	RateLimitMarkers []string      `mapstructure:"rate_limit_markers"`
}

type FallbackConfig struct {
	Enabled         bool      `mapstructure:"enabled"`
	Response        string    `mapstructure:"response"`
	TimeoutResponse string    `mapstructure:"timeout_response"`
	Embedding       []float64 `mapstructure:"embedding"`
}

type ConceptsConfig struct {
	MaxConcepts int     `mapstructure:"max_concepts"`
	MinLength   int     `mapstructure:"min_length"`
	MaxLength   int     `mapstructure:"max_length"`
	Temperature float64 `mapstructure:"temperature"`
	Schema      string  `mapstructure:"schema"`
}

type LLMConfig struct {
	Model               string         `mapstructure:"model"` // empty uses the provider's chat model
	Temperature         float64        `mapstructure:"temperature"`
	MaxTokens           int            `mapstructure:"max_tokens"`
	SystemPrompt        string         `mapstructure:"system_prompt"`
	Timeout             time.Duration  `mapstructure:"timeout"`
	EmbeddingRetries    int            `mapstructure:"embedding_retries"`
	EmbeddingRetryDelay time.Duration  `mapstructure:"embedding_retry_delay"`
	Retry               RetryConfig    `mapstructure:"retry"`
	Fallback            FallbackConfig `mapstructure:"fallback"`
	Concepts            ConceptsConfig `mapstructure:"concepts"`
	Cache               CacheConfig    `mapstructure:"cache"`
}

type EmbeddingConfig struct {
	Model            string      `mapstructure:"model"`     // empty uses the provider's embedding model
	Dimension        int         `mapstructure:"dimension"` // 0 uses the provider's dimension
	UnitNormalize    bool        `mapstructure:"unit_normalize"`
	BatchConcurrency int         `mapstructure:"batch_concurrency"`
	HashKeys         bool        `mapstructure:"hash_keys"`
	Cache            CacheConfig `mapstructure:"cache"`
}

type WindowConfig struct {
	MinWindowSize  int     `mapstructure:"min_window_size"`
	MaxWindowSize  int     `mapstructure:"max_window_size"`
	OverlapRatio   float64 `mapstructure:"overlap_ratio"`
	AvgTokenLength float64 `mapstructure:"avg_token_length"`
}

// Load reads configuration. configPath may be empty, in which case an
// llmbridge.{yaml,toml,json} in the working directory or $HOME/.llmbridge is
// used when present.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("llmbridge")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.llmbridge")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, errors.Mark(errors.Wrap(err, "config: read"), types.ErrConfiguration)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "config: decode"), types.ErrConfiguration)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("metrics.address", "")

	v.SetDefault("provider.name", "")
	v.SetDefault("provider.api_key", "")
	v.SetDefault("provider.base_url", "")
	v.SetDefault("provider.timeout", provider.DefaultTimeout)

	llmDefaults := llm.DefaultConfig("")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.temperature", llmDefaults.Temperature)
	v.SetDefault("llm.max_tokens", 0)
	v.SetDefault("llm.system_prompt", "")
	v.SetDefault("llm.timeout", 2*time.Minute)
	v.SetDefault("llm.embedding_retries", llmDefaults.EmbeddingRetries)
	v.SetDefault("llm.embedding_retry_delay", llmDefaults.EmbeddingRetryDelay)

	retry := llmDefaults.Retry
	v.SetDefault("llm.retry.max_retries", retry.MaxRetries)
	v.SetDefault("llm.retry.base_delay", retry.BaseDelay)
	v.SetDefault("llm.retry.max_delay", retry.MaxDelay)
	v.SetDefault("llm.retry.max_jitter", retry.MaxJitter)
	v.SetDefault("llm.retry.pre_delay_min", retry.PreDelayMin)
	v.SetDefault("llm.retry.pre_delay_max", retry.PreDelayMax)
	v.SetDefault("llm.retry.rate_limit_codes", retry.RateLimitCodes)
	v.SetDefault("llm.retry.rate_limit_markers", retry.RateLimitMarkers)

	v.SetDefault("llm.fallback.enabled", false)
	v.SetDefault("llm.fallback.response", "")
	v.SetDefault("llm.fallback.timeout_response", "")
	v.SetDefault("llm.fallback.embedding", []float64(nil))

	concepts := llm.DefaultConceptsConfig()
	v.SetDefault("llm.concepts.max_concepts", concepts.MaxConcepts)
	v.SetDefault("llm.concepts.min_length", concepts.MinLength)
	v.SetDefault("llm.concepts.max_length", concepts.MaxLength)
	v.SetDefault("llm.concepts.temperature", concepts.Temperature)
	v.SetDefault("llm.concepts.schema", "")

	v.SetDefault("llm.cache.enabled", true)
	v.SetDefault("llm.cache.max_size", cache.DefaultMaxSize)
	v.SetDefault("llm.cache.ttl", cache.DefaultTTL)

	v.SetDefault("embedding.model", "")
	v.SetDefault("embedding.dimension", 0)
	v.SetDefault("embedding.unit_normalize", false)
	v.SetDefault("embedding.batch_concurrency", embedder.DefaultBatchConcurrency)
	v.SetDefault("embedding.hash_keys", false)
	v.SetDefault("embedding.cache.enabled", true)
	v.SetDefault("embedding.cache.max_size", cache.DefaultMaxSize)
	v.SetDefault("embedding.cache.ttl", cache.DefaultTTL)

	win := window.DefaultConfig()
	v.SetDefault("window.min_window_size", win.MinWindowSize)
	v.SetDefault("window.max_window_size", win.MaxWindowSize)
	v.SetDefault("window.overlap_ratio", win.OverlapRatio)
	v.SetDefault("window.avg_token_length", win.AvgTokenLength)
}

// Validate checks the values components would otherwise reject late.
func (c *Config) Validate() error {
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 1 {
		return types.Configurationf("config: llm.temperature must be in [0,1], got %v", c.LLM.Temperature)
	}
	if c.LLM.Retry.MaxRetries < 0 {
		return types.Configurationf("config: llm.retry.max_retries cannot be negative")
	}
	if c.Embedding.Dimension < 0 {
		return types.Configurationf("config: embedding.dimension cannot be negative")
	}
	if err := c.WindowConfig().Validate(); err != nil {
		return errors.Wrap(err, "config")
	}
	return nil
}

// ProviderConfig maps to provider.Config.
func (c *Config) ProviderConfig() provider.Config {
	return provider.Config{
		Provider: c.Provider.Name,
		APIKey:   c.Provider.APIKey,
		BaseURL:  c.Provider.BaseURL,
		Timeout:  c.Provider.Timeout,
	}
}

// LLMConfig maps to llm.Config, taking unset models from p.
func (c *Config) LLMConfig(p provider.Provider) llm.Config {
	model := c.LLM.Model
	if model == "" && p != nil {
		model = p.ChatModel()
	}
	embeddingModel := c.Embedding.Model
	if embeddingModel == "" && p != nil {
		embeddingModel = p.EmbeddingModel()
	}

	return llm.Config{
		Model:        model,
		Temperature:  c.LLM.Temperature,
		MaxTokens:    c.LLM.MaxTokens,
		SystemPrompt: c.LLM.SystemPrompt,
		Retry: llm.RetryPolicy{
			MaxRetries:       c.LLM.Retry.MaxRetries,
			BaseDelay:        c.LLM.Retry.BaseDelay,
			MaxDelay:         c.LLM.Retry.MaxDelay,
			MaxJitter:        c.LLM.Retry.MaxJitter,
			PreDelayMin:      c.LLM.Retry.PreDelayMin,
			PreDelayMax:      c.LLM.Retry.PreDelayMax,
			RateLimitCodes:   c.LLM.Retry.RateLimitCodes,
			RateLimitMarkers: c.LLM.Retry.RateLimitMarkers,
		},
		Timeout: c.LLM.Timeout,
		Fallback: llm.FallbackConfig{
			Enabled:         c.LLM.Fallback.Enabled,
			Response:        c.LLM.Fallback.Response,
			TimeoutResponse: c.LLM.Fallback.TimeoutResponse,
			Embedding:       c.LLM.Fallback.Embedding,
		},
		Concepts: llm.ConceptsConfig{
			MaxConcepts: c.LLM.Concepts.MaxConcepts,
			MinLength:   c.LLM.Concepts.MinLength,
			MaxLength:   c.LLM.Concepts.MaxLength,
			Temperature: c.LLM.Concepts.Temperature,
			Schema:      c.LLM.Concepts.Schema,
		},
		EmbeddingModel:      embeddingModel,
		EmbeddingRetries:    c.LLM.EmbeddingRetries,
		EmbeddingRetryDelay: c.LLM.EmbeddingRetryDelay,
	}
}

// EmbedderConfig maps to embedder.Config, taking unset values from p.
func (c *Config) EmbedderConfig(p provider.Provider) embedder.Config {
	cfg := embedder.Config{
		Model:            c.Embedding.Model,
		Dimension:        c.Embedding.Dimension,
		UnitNormalize:    c.Embedding.UnitNormalize,
		BatchConcurrency: c.Embedding.BatchConcurrency,
	}
	if p != nil {
		if cfg.Model == "" {
			cfg.Model = p.EmbeddingModel()
		}
		if cfg.Dimension == 0 {
			cfg.Dimension = p.Dimension()
		}
	}
	return cfg
}

func (c *Config) WindowConfig() window.Config {
	return window.Config{
		MinWindowSize:  c.Window.MinWindowSize,
		MaxWindowSize:  c.Window.MaxWindowSize,
		OverlapRatio:   c.Window.OverlapRatio,
		AvgTokenLength: c.Window.AvgTokenLength,
	}
}

// Options returns cache options for a cache named name.
func (c CacheConfig) Options(name string) []cache.Option {
	return []cache.Option{
		cache.WithName(name),
		cache.WithMaxSize(c.MaxSize),
		cache.WithTTL(c.TTL),
	}
}
