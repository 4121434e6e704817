package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/llmbridge/internal/embedder"
	"github.com/dshills/llmbridge/internal/llm"
	"github.com/dshills/llmbridge/internal/provider"
	"github.com/dshills/llmbridge/internal/window"
	"github.com/dshills/llmbridge/pkg/types"
)

// chatProvider answers every chat with reply, or fails with err.
type chatProvider struct {
	reply string
	err   error
	delay time.Duration
}

func (c *chatProvider) Chat(ctx context.Context, messages []types.Message, opts types.ChatOptions) (string, error) {
	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return c.reply, c.err
}

func (c *chatProvider) Complete(ctx context.Context, prompt string, opts types.ChatOptions) (string, error) {
	return c.Chat(ctx, nil, opts)
}

func newTestServer(t *testing.T, chat *chatProvider) *Server {
	t.Helper()

	w, err := window.New(window.DefaultConfig())
	require.NoError(t, err)

	local := provider.NewLocal()
	emb, err := embedder.New(local, nil, embedder.Config{Model: local.EmbeddingModel(), Dimension: 8})
	require.NoError(t, err)

	c := Components{Windower: w, Embedder: emb}
	if chat != nil {
		cfg := llm.DefaultConfig("test-model")
		cfg.Retry.PreDelayMin, cfg.Retry.PreDelayMax = 0, 0
		cfg.Retry.BaseDelay = time.Millisecond
		c.Invoker, err = llm.New(chat, cfg)
		require.NoError(t, err)
	}

	s, err := NewServer(c, zerolog.Nop())
	require.NoError(t, err)
	return s
}

func callRequest(args map[string]interface{}) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func decodeResult(t *testing.T, res *mcp.CallToolResult) map[string]interface{} {
	t.Helper()
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content, got %T", res.Content[0])

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(text.Text), &out))
	return out
}

func requireMCPCode(t *testing.T, err error, code int) {
	t.Helper()
	var mcpErr *MCPError
	require.True(t, errors.As(err, &mcpErr), "expected MCPError, got %v", err)
	assert.Equal(t, code, mcpErr.Code)
}

func TestNewServer_RegistersAvailableTools(t *testing.T) {
	t.Run("all components", func(t *testing.T) {
		s := newTestServer(t, &chatProvider{reply: "ok"})
		assert.Equal(t, []string{
			"generate_response", "extract_concepts", "generate_embedding", "window_text", "merge_windows",
		}, s.Tools())
	})

	t.Run("without chat", func(t *testing.T) {
		s := newTestServer(t, nil)
		assert.Equal(t, []string{"generate_embedding", "window_text", "merge_windows"}, s.Tools())
	})

	t.Run("windower required", func(t *testing.T) {
		_, err := NewServer(Components{}, zerolog.Nop())
		assert.Error(t, err)
	})
}

func TestHandleGenerateResponse(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		s := newTestServer(t, &chatProvider{reply: "hello back"})
		res, err := s.handleGenerateResponse(ctx, callRequest(map[string]interface{}{
			"prompt":      "hello",
			"temperature": 0.3,
		}))
		require.NoError(t, err)

		out := decodeResult(t, res)
		assert.Equal(t, "hello back", out["response"])
		assert.Equal(t, "test-model", out["model"])
	})

	tests := []struct {
		name string
		args map[string]interface{}
	}{
		{"missing prompt", map[string]interface{}{}},
		{"blank prompt", map[string]interface{}{"prompt": "  "}},
		{"temperature too high", map[string]interface{}{"prompt": "hi", "temperature": 1.5}},
		{"negative retries", map[string]interface{}{"prompt": "hi", "max_retries": float64(-1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, &chatProvider{reply: "unused"})
			_, err := s.handleGenerateResponse(ctx, callRequest(tt.args))
			requireMCPCode(t, err, ErrorCodeInvalidParams)
		})
	}

	t.Run("provider failure", func(t *testing.T) {
		s := newTestServer(t, &chatProvider{err: errors.New("backend down")})
		_, err := s.handleGenerateResponse(ctx, callRequest(map[string]interface{}{"prompt": "hi"}))
		requireMCPCode(t, err, ErrorCodeInternalError)
	})

	t.Run("timeout", func(t *testing.T) {
		s := newTestServer(t, &chatProvider{reply: "late", delay: time.Second})
		_, err := s.handleGenerateResponse(ctx, callRequest(map[string]interface{}{
			"prompt":     "hi",
			"timeout_ms": float64(20),
		}))
		requireMCPCode(t, err, ErrorCodeTimeout)
	})
}

func TestHandleExtractConcepts(t *testing.T) {
	s := newTestServer(t, &chatProvider{reply: `["bounded caches", "jitter"]`})

	res, err := s.handleExtractConcepts(context.Background(), callRequest(map[string]interface{}{"text": "some text"}))
	require.NoError(t, err)
	out := decodeResult(t, res)
	assert.Equal(t, []interface{}{"bounded caches", "jitter"}, out["concepts"])
	assert.Equal(t, float64(2), out["count"])

	_, err = s.handleExtractConcepts(context.Background(), callRequest(map[string]interface{}{}))
	requireMCPCode(t, err, ErrorCodeInvalidParams)
}

func TestHandleGenerateEmbedding(t *testing.T) {
	s := newTestServer(t, nil)
	ctx := context.Background()

	res, err := s.handleGenerateEmbedding(ctx, callRequest(map[string]interface{}{"text": "hello"}))
	require.NoError(t, err)
	out := decodeResult(t, res)
	assert.Equal(t, float64(8), out["dimension"])
	assert.Len(t, out["embedding"], 8)

	res, err = s.handleGenerateEmbedding(ctx, callRequest(map[string]interface{}{
		"texts": []interface{}{"one", "two", "three"},
	}))
	require.NoError(t, err)
	out = decodeResult(t, res)
	assert.Equal(t, float64(3), out["count"])
	assert.Len(t, out["embeddings"], 3)

	_, err = s.handleGenerateEmbedding(ctx, callRequest(map[string]interface{}{}))
	requireMCPCode(t, err, ErrorCodeInvalidParams)

	_, err = s.handleGenerateEmbedding(ctx, callRequest(map[string]interface{}{"texts": []interface{}{"ok", 3}}))
	requireMCPCode(t, err, ErrorCodeInvalidParams)
}

func TestHandleWindowTextAndMerge(t *testing.T) {
	s := newTestServer(t, nil)
	ctx := context.Background()
	text := strings.Repeat("word ", 40)

	res, err := s.handleWindowText(ctx, callRequest(map[string]interface{}{
		"text":                 text,
		"window_size":          float64(50),
		"include_token_counts": true,
	}))
	require.NoError(t, err)
	out := decodeResult(t, res)

	rawWindows, ok := out["windows"].([]interface{})
	require.True(t, ok)
	require.Greater(t, len(rawWindows), 1)

	for _, w := range rawWindows {
		m := w.(map[string]interface{})
		assert.Positive(t, m["token_count"])
	}

	res, err = s.handleMergeWindows(ctx, callRequest(map[string]interface{}{"windows": rawWindows}))
	require.NoError(t, err)
	assert.Equal(t, text, decodeResult(t, res)["text"])

	res, err = s.handleMergeWindows(ctx, callRequest(map[string]interface{}{
		"texts": []interface{}{"The quick brown fox jumps over", "fox jumps over the lazy dog"},
	}))
	require.NoError(t, err)
	assert.Equal(t, "The quick brown fox jumps over the lazy dog", decodeResult(t, res)["text"])

	_, err = s.handleMergeWindows(ctx, callRequest(map[string]interface{}{}))
	requireMCPCode(t, err, ErrorCodeInvalidParams)

	_, err = s.handleMergeWindows(ctx, callRequest(map[string]interface{}{"windows": []interface{}{"not an object"}}))
	requireMCPCode(t, err, ErrorCodeInvalidParams)

	_, err = s.handleWindowText(ctx, callRequest(map[string]interface{}{"text": "x", "window_size": float64(-4)}))
	requireMCPCode(t, err, ErrorCodeInvalidParams)
}

func TestOperationErrorCodes(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []struct {
		name string
		err  error
		code int
	}{
		{"validation", types.Validationf("bad input"), ErrorCodeInvalidParams},
		{"timeout", errors.Mark(errors.New("slow"), types.ErrTimeout), ErrorCodeTimeout},
		{"provider", types.WrapProvider(errors.New("down"), "chat"), ErrorCodeInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requireMCPCode(t, s.operationError("failed", tt.err), tt.code)
		})
	}
}
