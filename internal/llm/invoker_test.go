package llm

import (
	"context"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/llmbridge/internal/cache"
	"github.com/dshills/llmbridge/pkg/types"
)

// modernStub implements types.ModernProvider with scripted behaviour.
type modernStub struct {
	mu       sync.Mutex
	chat     func(call int, messages []types.Message, opts types.ChatOptions) (string, error)
	complete func(prompt string, opts types.ChatOptions) (string, error)
	calls    int
	lastOpts types.ChatOptions
}

func (m *modernStub) Chat(ctx context.Context, messages []types.Message, opts types.ChatOptions) (string, error) {
	m.mu.Lock()
	m.calls++
	call := m.calls
	m.lastOpts = opts
	m.mu.Unlock()
	return m.chat(call, messages, opts)
}

func (m *modernStub) Complete(ctx context.Context, prompt string, opts types.ChatOptions) (string, error) {
	m.mu.Lock()
	m.calls++
	m.lastOpts = opts
	m.mu.Unlock()
	if m.complete == nil {
		return "", errors.New("completion not scripted")
	}
	return m.complete(prompt, opts)
}

func (m *modernStub) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// legacyStub implements types.LegacyProvider and types.EmbeddingProvider.
type legacyStub struct {
	model       string
	embedErrs   int
	embedCalls  atomic.Int32
	completions atomic.Int32
}

func (l *legacyStub) GenerateChat(ctx context.Context, model string, messages []types.Message, opts types.ChatOptions) (string, error) {
	l.model = model
	return "legacy chat: " + messages[len(messages)-1].Content, nil
}

func (l *legacyStub) GenerateCompletion(ctx context.Context, model, prompt string, opts types.ChatOptions) (string, error) {
	l.completions.Add(1)
	return `["alpha concept", "beta concept"]`, nil
}

func (l *legacyStub) GenerateEmbedding(ctx context.Context, model, text string) ([]float64, error) {
	n := l.embedCalls.Add(1)
	if int(n) <= l.embedErrs {
		return nil, errors.New("embedding backend unavailable")
	}
	return []float64{1, 2, 3}, nil
}

// bothStub offers both shapes; the modern one must win.
type bothStub struct {
	modernStub
	legacyStub
}

func testConfig() Config {
	cfg := DefaultConfig("test-model")
	cfg.Retry = fastPolicy(3)
	cfg.EmbeddingRetryDelay = time.Millisecond
	return cfg
}

func newTestInvoker(t *testing.T, provider any, cfg Config, opts ...Option) *Invoker {
	t.Helper()
	opts = append([]Option{WithRand(rand.New(rand.NewPCG(1, 1)))}, opts...)
	inv, err := New(provider, cfg, opts...)
	require.NoError(t, err)
	return inv
}

func echo(call int, messages []types.Message, _ types.ChatOptions) (string, error) {
	return "reply: " + messages[len(messages)-1].Content, nil
}

func TestNew_CapabilityDetection(t *testing.T) {
	t.Run("modern", func(t *testing.T) {
		inv := newTestInvoker(t, &modernStub{chat: echo}, testConfig())
		assert.Equal(t, kindModern, inv.adapter.kind)
		assert.Nil(t, inv.embedder)
	})

	t.Run("legacy with embeddings", func(t *testing.T) {
		inv := newTestInvoker(t, &legacyStub{}, testConfig())
		assert.Equal(t, kindLegacy, inv.adapter.kind)
		assert.NotNil(t, inv.embedder)
	})

	t.Run("modern preferred over legacy", func(t *testing.T) {
		inv := newTestInvoker(t, &bothStub{modernStub: modernStub{chat: echo}}, testConfig())
		assert.Equal(t, kindModern, inv.adapter.kind)
	})

	t.Run("neither", func(t *testing.T) {
		_, err := New(struct{}{}, testConfig())
		assert.ErrorIs(t, err, types.ErrConfiguration)
	})

	t.Run("nil provider", func(t *testing.T) {
		_, err := New(nil, testConfig())
		assert.ErrorIs(t, err, types.ErrConfiguration)
	})

	t.Run("blank model", func(t *testing.T) {
		cfg := testConfig()
		cfg.Model = "   "
		_, err := New(&modernStub{chat: echo}, cfg)
		assert.ErrorIs(t, err, types.ErrConfiguration)
	})

	t.Run("bad temperature", func(t *testing.T) {
		cfg := testConfig()
		cfg.Temperature = 1.5
		_, err := New(&modernStub{chat: echo}, cfg)
		assert.ErrorIs(t, err, types.ErrConfiguration)
	})
}

func TestGenerateResponse_Success(t *testing.T) {
	stub := &modernStub{chat: echo}
	inv := newTestInvoker(t, stub, testConfig())

	got, err := inv.GenerateResponse(context.Background(), "hello", "", GenerateOptions{})
	require.NoError(t, err)
	assert.Equal(t, "reply: hello", got)
	assert.Equal(t, "test-model", stub.lastOpts.Model)
	assert.Equal(t, 0.7, stub.lastOpts.Temperature)
}

func TestGenerateResponse_LegacyDispatch(t *testing.T) {
	stub := &legacyStub{}
	inv := newTestInvoker(t, stub, testConfig())

	got, err := inv.GenerateResponse(context.Background(), "hello", "", GenerateOptions{Model: "llama-x"})
	require.NoError(t, err)
	assert.Equal(t, "legacy chat: hello", got)
	assert.Equal(t, "llama-x", stub.model)
}

func TestGenerateResponse_Overrides(t *testing.T) {
	stub := &modernStub{chat: echo}
	inv := newTestInvoker(t, stub, testConfig())
	temp := 0.2

	_, err := inv.GenerateResponse(context.Background(), "hi", "", GenerateOptions{Model: "other", Temperature: &temp})
	require.NoError(t, err)
	assert.Equal(t, "other", stub.lastOpts.Model)
	assert.Equal(t, 0.2, stub.lastOpts.Temperature)

	_, err = inv.GenerateResponse(context.Background(), "hi again", "", GenerateOptions{Model: "  "})
	require.NoError(t, err)
	assert.Equal(t, "test-model", stub.lastOpts.Model, "blank override is ignored")

	bad := 2.0
	_, err = inv.GenerateResponse(context.Background(), "hi", "", GenerateOptions{Temperature: &bad})
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestGenerateResponse_EmptyPrompt(t *testing.T) {
	stub := &modernStub{chat: echo}
	inv := newTestInvoker(t, stub, testConfig())

	_, err := inv.GenerateResponse(context.Background(), "  ", "ctx", GenerateOptions{})
	assert.ErrorIs(t, err, types.ErrValidation)
	assert.Equal(t, 0, stub.Calls())
}

func TestGenerateResponse_RecoversFromRateLimit(t *testing.T) {
	stub := &modernStub{chat: func(call int, messages []types.Message, opts types.ChatOptions) (string, error) {
		if call <= 2 {
			return "", &types.StatusError{Code: 429, Message: "rate limit exceeded"}
		}
		return "finally", nil
	}}
	inv := newTestInvoker(t, stub, testConfig())

	got, err := inv.GenerateResponse(context.Background(), "hello", "", GenerateOptions{})
	require.NoError(t, err)
	assert.Equal(t, "finally", got)
	assert.Equal(t, 3, stub.Calls())
}

func TestGenerateResponse_OverloadedThreeTimes(t *testing.T) {
	stub := &modernStub{chat: func(call int, messages []types.Message, opts types.ChatOptions) (string, error) {
		if call <= 3 {
			return "", &types.StatusError{Code: 529}
		}
		return "ok", nil
	}}
	inv := newTestInvoker(t, stub, testConfig())

	got, err := inv.GenerateResponse(context.Background(), "hello", "", GenerateOptions{})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 4, stub.Calls())
}

func TestGenerateResponse_RetryExhausted(t *testing.T) {
	stub := &modernStub{chat: func(int, []types.Message, types.ChatOptions) (string, error) {
		return "", errors.New("server overloaded")
	}}
	cfg := testConfig()
	cfg.Retry.MaxRetries = 2
	inv := newTestInvoker(t, stub, cfg)

	_, err := inv.GenerateResponse(context.Background(), "hello", "", GenerateOptions{})
	assert.ErrorIs(t, err, types.ErrRetryExhausted)
	assert.Equal(t, 3, stub.Calls())
}

func TestGenerateResponse_MaxRetriesOverride(t *testing.T) {
	stub := &modernStub{chat: func(int, []types.Message, types.ChatOptions) (string, error) {
		return "", types.ErrRateLimited
	}}
	inv := newTestInvoker(t, stub, testConfig())
	zero := 0

	_, err := inv.GenerateResponse(context.Background(), "hello", "", GenerateOptions{MaxRetries: &zero})
	assert.ErrorIs(t, err, types.ErrRetryExhausted)
	assert.Equal(t, 1, stub.Calls())
}

func TestGenerateResponse_NonRateLimitFailsOnce(t *testing.T) {
	upstream := &types.StatusError{Code: 401, Message: "bad key"}
	stub := &modernStub{chat: func(int, []types.Message, types.ChatOptions) (string, error) {
		return "", upstream
	}}
	inv := newTestInvoker(t, stub, testConfig())

	_, err := inv.GenerateResponse(context.Background(), "hello", "", GenerateOptions{})
	assert.ErrorIs(t, err, types.ErrProvider)
	assert.NotErrorIs(t, err, types.ErrRetryExhausted)
	assert.Equal(t, 1, stub.Calls())

	var statusErr *types.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, 401, statusErr.Code)
}

func TestGenerateResponse_Timeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	stub := &modernStub{chat: func(int, []types.Message, types.ChatOptions) (string, error) {
		// ignores its context on purpose
		<-release
		return "too late", nil
	}}
	cfg := testConfig()
	cfg.Timeout = 30 * time.Millisecond
	inv := newTestInvoker(t, stub, cfg)

	start := time.Now()
	_, err := inv.GenerateResponse(context.Background(), "hello", "", GenerateOptions{})
	assert.ErrorIs(t, err, types.ErrTimeout)
	assert.Less(t, time.Since(start), time.Second)
}

func TestGenerateResponse_Fallback(t *testing.T) {
	failing := func(int, []types.Message, types.ChatOptions) (string, error) {
		return "", errors.New("backend down")
	}

	t.Run("error uses response", func(t *testing.T) {
		cfg := testConfig()
		cfg.Fallback = FallbackConfig{Enabled: true, Response: "sorry", TimeoutResponse: "too slow"}
		inv := newTestInvoker(t, &modernStub{chat: failing}, cfg)

		got, err := inv.GenerateResponse(context.Background(), "hello", "", GenerateOptions{})
		require.NoError(t, err)
		assert.Equal(t, "sorry", got)
	})

	t.Run("timeout uses timeout response", func(t *testing.T) {
		release := make(chan struct{})
		defer close(release)
		slow := &modernStub{chat: func(int, []types.Message, types.ChatOptions) (string, error) {
			<-release
			return "", nil
		}}
		cfg := testConfig()
		cfg.Timeout = 20 * time.Millisecond
		cfg.Fallback = FallbackConfig{Enabled: true, Response: "sorry", TimeoutResponse: "too slow"}
		inv := newTestInvoker(t, slow, cfg)

		got, err := inv.GenerateResponse(context.Background(), "hello", "", GenerateOptions{})
		require.NoError(t, err)
		assert.Equal(t, "too slow", got)
	})

	t.Run("validation errors are not masked", func(t *testing.T) {
		cfg := testConfig()
		cfg.Fallback = FallbackConfig{Enabled: true, Response: "sorry"}
		inv := newTestInvoker(t, &modernStub{chat: failing}, cfg)

		_, err := inv.GenerateResponse(context.Background(), "", "", GenerateOptions{})
		assert.ErrorIs(t, err, types.ErrValidation)
	})
}

func TestGenerateResponse_Cache(t *testing.T) {
	responses := cache.New[string](context.Background(), cache.WithSweepInterval(time.Hour))
	defer responses.Close()

	stub := &modernStub{chat: echo}
	inv := newTestInvoker(t, stub, testConfig(), WithCache(responses))
	ctx := context.Background()

	first, err := inv.GenerateResponse(ctx, "hello", "ctx", GenerateOptions{})
	require.NoError(t, err)
	second, err := inv.GenerateResponse(ctx, "hello", "ctx", GenerateOptions{})
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, stub.Calls())

	temp := 0.1
	_, err = inv.GenerateResponse(ctx, "hello", "ctx", GenerateOptions{Temperature: &temp})
	require.NoError(t, err)
	assert.Equal(t, 2, stub.Calls(), "different temperature is a different key")
}

func TestExtractConcepts(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		err   error
		want  []string
	}{
		{"json", `["concurrency", "channels"]`, nil, []string{"concurrency", "channels"}},
		{"no brackets", "no brackets here", nil, []string{}},
		{"null", "null", nil, []string{}},
		{"empty reply", "", nil, []string{}},
		{"malformed", `{"concepts": [`, nil, []string{"concepts"}},
		{"provider error", "", errors.New("boom"), []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &modernStub{chat: func(int, []types.Message, types.ChatOptions) (string, error) {
				return tt.reply, tt.err
			}}
			inv := newTestInvoker(t, stub, testConfig())

			got := inv.ExtractConcepts(context.Background(), "Go concurrency with channels")
			assert.NotNil(t, got)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, DefaultConceptsConfig().Temperature, stub.lastOpts.Temperature)
		})
	}
}

func TestExtractConcepts_EmptyTextSkipsProvider(t *testing.T) {
	stub := &modernStub{chat: echo}
	inv := newTestInvoker(t, stub, testConfig())

	assert.Equal(t, []string{}, inv.ExtractConcepts(context.Background(), "   "))
	assert.Equal(t, 0, stub.Calls())
}

func TestExtractConcepts_CompletionModel(t *testing.T) {
	stub := &legacyStub{}
	cfg := testConfig()
	cfg.Model = "text-davinci-003"
	inv := newTestInvoker(t, stub, cfg)

	got := inv.ExtractConcepts(context.Background(), "some text")
	assert.Equal(t, []string{"alpha concept", "beta concept"}, got)
	assert.Equal(t, int32(1), stub.completions.Load())
}

func TestGenerateEmbedding(t *testing.T) {
	t.Run("pass through", func(t *testing.T) {
		inv := newTestInvoker(t, &legacyStub{}, testConfig())
		got, err := inv.GenerateEmbedding(context.Background(), "text", "", 0)
		require.NoError(t, err)
		assert.Equal(t, []float64{1, 2, 3}, got)
	})

	t.Run("retries then succeeds", func(t *testing.T) {
		stub := &legacyStub{embedErrs: 2}
		inv := newTestInvoker(t, stub, testConfig())
		got, err := inv.GenerateEmbedding(context.Background(), "text", "", 3)
		require.NoError(t, err)
		assert.Len(t, got, 3)
		assert.Equal(t, int32(3), stub.embedCalls.Load())
	})

	t.Run("exhausted", func(t *testing.T) {
		stub := &legacyStub{embedErrs: 10}
		inv := newTestInvoker(t, stub, testConfig())
		_, err := inv.GenerateEmbedding(context.Background(), "text", "", 2)
		assert.ErrorIs(t, err, types.ErrRetryExhausted)
		assert.Contains(t, err.Error(), "2 attempts")
		assert.Contains(t, err.Error(), "embedding backend unavailable")
		assert.Equal(t, int32(2), stub.embedCalls.Load())
	})

	t.Run("fallback vector", func(t *testing.T) {
		cfg := testConfig()
		cfg.Fallback = FallbackConfig{Enabled: true, Embedding: []float64{0, 0}}
		inv := newTestInvoker(t, &legacyStub{embedErrs: 10}, cfg)
		got, err := inv.GenerateEmbedding(context.Background(), "text", "", 1)
		require.NoError(t, err)
		assert.Equal(t, []float64{0, 0}, got)
	})

	t.Run("no capability", func(t *testing.T) {
		inv := newTestInvoker(t, &modernStub{chat: echo}, testConfig())
		_, err := inv.GenerateEmbedding(context.Background(), "text", "", 1)
		assert.ErrorIs(t, err, types.ErrConfiguration)
	})

	t.Run("empty text", func(t *testing.T) {
		inv := newTestInvoker(t, &legacyStub{}, testConfig())
		_, err := inv.GenerateEmbedding(context.Background(), "", "", 1)
		assert.ErrorIs(t, err, types.ErrValidation)
	})
}

func TestTemperatureAndModel(t *testing.T) {
	inv := newTestInvoker(t, &modernStub{chat: echo}, testConfig())

	assert.Equal(t, "test-model", inv.Model())
	assert.Equal(t, 0.7, inv.Temperature())

	require.NoError(t, inv.SetTemperature(0))
	require.NoError(t, inv.SetTemperature(1))
	assert.Equal(t, 1.0, inv.Temperature())

	assert.ErrorIs(t, inv.SetTemperature(-0.1), types.ErrValidation)
	assert.ErrorIs(t, inv.SetTemperature(1.01), types.ErrValidation)
	assert.Equal(t, 1.0, inv.Temperature())

	assert.True(t, inv.ValidateModel("gpt-4o"))
	assert.False(t, inv.ValidateModel(""))
	assert.False(t, inv.ValidateModel(" \t\n"))
}

func TestRunWithTimeout_ParentCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := runWithTimeout(ctx, time.Second, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, types.ErrTimeout)
}
