package provider

import (
	"os"
	"strings"
	"time"

	"github.com/dshills/llmbridge/pkg/types"
)

// Environment variables consulted by NewFromEnv and DetectProvider.
const (
	EnvProvider     = "LLMBRIDGE_PROVIDER"
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
	EnvJinaAPIKey   = "JINA_API_KEY"
	EnvOllamaHost   = "OLLAMA_HOST"
)

// Config selects and configures a provider.
type Config struct {
	Provider string
	APIKey   string
	BaseURL  string
	Timeout  time.Duration
}

// NewFromEnv creates a provider based on environment variables
// Priority:
// 1. LLMBRIDGE_PROVIDER (openai, ollama, jina, local)
// 2. Check for API keys: OPENAI_API_KEY, JINA_API_KEY
// 3. OLLAMA_HOST selects a local Ollama server
// 4. Default to local if nothing is configured
func NewFromEnv() (Provider, error) {
	return New(Config{Provider: DetectProvider()})
}

// New creates a provider with explicit configuration. An empty name is
// resolved with DetectProvider.
func New(cfg Config) (Provider, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if name == "" {
		name = DetectProvider()
	}

	opts := []Option{WithBaseURL(cfg.BaseURL), WithTimeout(cfg.Timeout)}
	switch name {
	case ProviderOpenAI:
		return NewOpenAI(cfg.APIKey, opts...)
	case ProviderOllama:
		return NewOllama(opts...)
	case ProviderJina:
		return NewJina(cfg.APIKey, opts...)
	case ProviderLocal:
		return NewLocal(), nil
	default:
		return nil, types.Configurationf("provider: unknown provider %q", cfg.Provider)
	}
}

// DetectProvider returns the provider that would be used based on current environment
func DetectProvider() string {
	if p := os.Getenv(EnvProvider); p != "" {
		return strings.ToLower(p)
	}
	if os.Getenv(EnvOpenAIAPIKey) != "" {
		return ProviderOpenAI
	}
	if os.Getenv(EnvJinaAPIKey) != "" {
		return ProviderJina
	}
	if os.Getenv(EnvOllamaHost) != "" {
		return ProviderOllama
	}
	return ProviderLocal
}
