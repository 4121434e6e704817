package provider

import (
	"context"
	"net/http"
	"os"
	"strings"

	"github.com/dshills/llmbridge/pkg/types"
)

// Ollama talks to a local Ollama server. Its calls take the model as an
// explicit argument, so it satisfies types.LegacyProvider.
type Ollama struct {
	baseURL    string
	httpClient *http.Client
}

// NewOllama creates an Ollama provider. The host defaults to OLLAMA_HOST, then
// DefaultOllamaHost.
func NewOllama(opts ...Option) (*Ollama, error) {
	host := os.Getenv(EnvOllamaHost)
	if host == "" {
		host = DefaultOllamaHost
	}
	if !strings.Contains(host, "://") {
		host = "http://" + host
	}
	o := buildOptions(strings.TrimRight(host, "/"), opts)
	return &Ollama{baseURL: o.baseURL, httpClient: o.httpClient}, nil
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

func toOllamaOptions(opts types.ChatOptions) ollamaOptions {
	return ollamaOptions{Temperature: opts.Temperature, NumPredict: opts.MaxTokens}
}

// GenerateChat calls /api/chat.
func (o *Ollama) GenerateChat(ctx context.Context, model string, messages []types.Message, opts types.ChatOptions) (string, error) {
	req := struct {
		Model    string          `json:"model"`
		Messages []types.Message `json:"messages"`
		Stream   bool            `json:"stream"`
		Options  ollamaOptions   `json:"options"`
	}{
		Model:    modelOr(model, DefaultOllamaChatModel),
		Messages: messages,
		Options:  toOllamaOptions(opts),
	}
	var resp struct {
		Message types.Message `json:"message"`
	}
	if err := postJSON(ctx, o.httpClient, o.baseURL+"/api/chat", nil, req, &resp); err != nil {
		return "", err
	}
	return resp.Message.Content, nil
}

// GenerateCompletion calls /api/generate.
func (o *Ollama) GenerateCompletion(ctx context.Context, model, prompt string, opts types.ChatOptions) (string, error) {
	req := struct {
		Model   string        `json:"model"`
		Prompt  string        `json:"prompt"`
		Stream  bool          `json:"stream"`
		Options ollamaOptions `json:"options"`
	}{
		Model:   modelOr(model, DefaultOllamaChatModel),
		Prompt:  prompt,
		Options: toOllamaOptions(opts),
	}
	var resp struct {
		Response string `json:"response"`
	}
	if err := postJSON(ctx, o.httpClient, o.baseURL+"/api/generate", nil, req, &resp); err != nil {
		return "", err
	}
	return resp.Response, nil
}

// GenerateEmbedding calls /api/embeddings.
func (o *Ollama) GenerateEmbedding(ctx context.Context, model, text string) ([]float64, error) {
	req := map[string]string{
		"model":  modelOr(model, DefaultOllamaEmbeddingModel),
		"prompt": text,
	}
	var resp struct {
		Embedding []float64 `json:"embedding"`
	}
	if err := postJSON(ctx, o.httpClient, o.baseURL+"/api/embeddings", nil, req, &resp); err != nil {
		return nil, err
	}
	return resp.Embedding, nil
}

func (o *Ollama) Name() string           { return ProviderOllama }
func (o *Ollama) ChatModel() string      { return DefaultOllamaChatModel }
func (o *Ollama) EmbeddingModel() string { return DefaultOllamaEmbeddingModel }
func (o *Ollama) Dimension() int         { return OllamaDimension }

func (o *Ollama) Close() error {
	o.httpClient.CloseIdleConnections()
	return nil
}
