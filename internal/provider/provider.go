package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/dshills/llmbridge/pkg/types"
)

// Provider names accepted by New and LLMBRIDGE_PROVIDER.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	ProviderJina   = "jina"
	ProviderLocal  = "local"
)

// Default endpoints and models.
const (
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	DefaultJinaBaseURL   = "https://api.jina.ai/v1"
	DefaultOllamaHost    = "http://localhost:11434"

	DefaultOpenAIChatModel      = "gpt-4o-mini"
	DefaultOpenAIEmbeddingModel = "text-embedding-3-small"
	DefaultJinaModel            = "jina-embeddings-v3"
	DefaultOllamaChatModel      = "llama3.2"
	DefaultOllamaEmbeddingModel = "nomic-embed-text"
	DefaultLocalModel           = "local-embeddings"

	OpenAIDimension = 1536
	JinaDimension   = 1024
	OllamaDimension = 768
	LocalDimension  = 384

	DefaultTimeout = 60 * time.Second
)

// maxErrorBody caps how much of an error response is kept in StatusError.
const maxErrorBody = 4 << 10

// Provider is the common surface of every backend. Chat-capable backends
// additionally implement types.ModernProvider or types.LegacyProvider.
type Provider interface {
	types.EmbeddingProvider

	// Name returns the provider identifier.
	Name() string

	// ChatModel returns the default chat model, or "" when the backend has no
	// chat capability.
	ChatModel() string

	// EmbeddingModel returns the default embedding model.
	EmbeddingModel() string

	// Dimension returns the native dimension of EmbeddingModel.
	Dimension() int

	// Close releases idle connections.
	Close() error
}

type options struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
}

// Option configures an HTTP-backed provider.
type Option func(*options)

// WithBaseURL points the provider at a different endpoint, such as an
// OpenAI-compatible gateway or a test server.
func WithBaseURL(u string) Option {
	return func(o *options) {
		if u != "" {
			o.baseURL = u
		}
	}
}

// WithHTTPClient replaces the default traced client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithTimeout sets the per-request timeout of the default client.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

func buildOptions(defaultURL string, opts []Option) options {
	o := options{baseURL: defaultURL, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{
			Timeout:   o.timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	return o
}

// postJSON sends body as JSON and decodes a 2xx response into out. Any other
// status becomes a *types.StatusError.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return errors.Wrap(err, "api call")
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &types.StatusError{Code: resp.StatusCode, Message: string(bytes.TrimSpace(msg))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Mark(errors.Wrap(err, "decode response"), types.ErrValidation)
	}
	return nil
}

func bearer(apiKey string) map[string]string {
	if apiKey == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + apiKey}
}

func modelOr(model, fallback string) string {
	if model == "" {
		return fallback
	}
	return model
}
