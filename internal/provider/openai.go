package provider

import (
	"context"
	"net/http"
	"os"

	"github.com/dshills/llmbridge/pkg/types"
)

// OpenAI talks to an OpenAI-compatible API. It carries the model in its call
// options, so it satisfies types.ModernProvider.
type OpenAI struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewOpenAI creates an OpenAI provider. An empty apiKey falls back to
// OPENAI_API_KEY.
func NewOpenAI(apiKey string, opts ...Option) (*OpenAI, error) {
	if apiKey == "" {
		apiKey = os.Getenv(EnvOpenAIAPIKey)
	}
	if apiKey == "" {
		return nil, types.Configurationf("provider: %s not set", EnvOpenAIAPIKey)
	}
	o := buildOptions(DefaultOpenAIBaseURL, opts)
	return &OpenAI{apiKey: apiKey, baseURL: o.baseURL, httpClient: o.httpClient}, nil
}

type openAIChatRequest struct {
	Model       string          `json:"model"`
	Messages    []types.Message `json:"messages"`
	Temperature float64         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message types.Message `json:"message"`
	} `json:"choices"`
}

// Chat sends messages to the chat completions endpoint.
func (o *OpenAI) Chat(ctx context.Context, messages []types.Message, opts types.ChatOptions) (string, error) {
	req := openAIChatRequest{
		Model:       modelOr(opts.Model, DefaultOpenAIChatModel),
		Messages:    messages,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}
	var resp openAIChatResponse
	if err := postJSON(ctx, o.httpClient, o.baseURL+"/chat/completions", bearer(o.apiKey), req, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", types.Validationf("provider: openai returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// Complete sends prompt as a single user message.
func (o *OpenAI) Complete(ctx context.Context, prompt string, opts types.ChatOptions) (string, error) {
	return o.Chat(ctx, []types.Message{{Role: types.RoleUser, Content: prompt}}, opts)
}

// GenerateEmbedding calls the embeddings endpoint.
func (o *OpenAI) GenerateEmbedding(ctx context.Context, model, text string) ([]float64, error) {
	req := map[string]interface{}{
		"model": modelOr(model, DefaultOpenAIEmbeddingModel),
		"input": text,
	}
	var resp embeddingResponse
	if err := postJSON(ctx, o.httpClient, o.baseURL+"/embeddings", bearer(o.apiKey), req, &resp); err != nil {
		return nil, err
	}
	return resp.first()
}

func (o *OpenAI) Name() string           { return ProviderOpenAI }
func (o *OpenAI) ChatModel() string      { return DefaultOpenAIChatModel }
func (o *OpenAI) EmbeddingModel() string { return DefaultOpenAIEmbeddingModel }
func (o *OpenAI) Dimension() int         { return OpenAIDimension }

func (o *OpenAI) Close() error {
	o.httpClient.CloseIdleConnections()
	return nil
}

// embeddingResponse is the OpenAI-style payload shared by OpenAI and Jina.
type embeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
}

func (r embeddingResponse) first() ([]float64, error) {
	if len(r.Data) == 0 {
		return nil, types.Validationf("provider: no embeddings returned")
	}
	return r.Data[0].Embedding, nil
}
