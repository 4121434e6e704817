package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/llmbridge/internal/config"
	"github.com/dshills/llmbridge/internal/mcp"
	"github.com/dshills/llmbridge/pkg/types"
)

func TestBuildApp_LocalProviderHasNoChat(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("LLMBRIDGE_PROVIDER_NAME", "local")

	cfg, err := config.Load("")
	require.NoError(t, err)

	var logs bytes.Buffer
	a, err := buildApp(context.Background(), cfg, zerolog.New(&logs), nil)
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.invoker)
	require.NotNil(t, a.embedder)
	require.NotNil(t, a.windower)
	assert.Equal(t, "local", a.provider.Name())
	assert.Contains(t, logs.String(), "chat unavailable")
	assert.Contains(t, logs.String(), `"level":"warn"`)

	vec, err := a.embedder.GenerateEmbedding(context.Background(), "offline text")
	require.NoError(t, err)
	assert.Len(t, vec, a.embedder.Dimension())

	srv, err := mcp.NewServer(mcp.Components{Embedder: a.embedder, Windower: a.windower}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, []string{"generate_embedding", "window_text", "merge_windows"}, srv.Tools())
}

func TestBuildApp_UnknownProvider(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("LLMBRIDGE_PROVIDER_NAME", "carrier-pigeon")

	cfg, err := config.Load("")
	require.NoError(t, err)

	_, err = buildApp(context.Background(), cfg, zerolog.Nop(), nil)
	assert.ErrorIs(t, err, types.ErrConfiguration)
}
