package provider

import (
	"context"
	"net/http"
	"os"

	"github.com/dshills/llmbridge/pkg/types"
)

// Jina is an embedding-only provider backed by the Jina AI API.
type Jina struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewJina creates a Jina provider. An empty apiKey falls back to JINA_API_KEY.
func NewJina(apiKey string, opts ...Option) (*Jina, error) {
	if apiKey == "" {
		apiKey = os.Getenv(EnvJinaAPIKey)
	}
	if apiKey == "" {
		return nil, types.Configurationf("provider: %s not set", EnvJinaAPIKey)
	}
	o := buildOptions(DefaultJinaBaseURL, opts)
	return &Jina{apiKey: apiKey, baseURL: o.baseURL, httpClient: o.httpClient}, nil
}

func (j *Jina) GenerateEmbedding(ctx context.Context, model, text string) ([]float64, error) {
	req := map[string]interface{}{
		"model": modelOr(model, DefaultJinaModel),
		"input": []string{text},
	}
	var resp embeddingResponse
	if err := postJSON(ctx, j.httpClient, j.baseURL+"/embeddings", bearer(j.apiKey), req, &resp); err != nil {
		return nil, err
	}
	return resp.first()
}

func (j *Jina) Name() string           { return ProviderJina }
func (j *Jina) ChatModel() string      { return "" }
func (j *Jina) EmbeddingModel() string { return DefaultJinaModel }
func (j *Jina) Dimension() int         { return JinaDimension }

func (j *Jina) Close() error {
	j.httpClient.CloseIdleConnections()
	return nil
}
