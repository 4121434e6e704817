package mcp

import (
	"context"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/dshills/llmbridge/internal/embedder"
	"github.com/dshills/llmbridge/internal/llm"
	"github.com/dshills/llmbridge/internal/window"
)

const (
	// ServerName is the MCP server name
	ServerName = "llmbridge"
	// ServerVersion is the current server version
	ServerVersion = "0.3.0"
)

// Components are the services exposed as tools. Invoker and Embedder are
// optional; their tools are only registered when present.
type Components struct {
	Invoker  *llm.Invoker
	Embedder *embedder.Invoker
	Windower *window.Windower
}

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp      *server.MCPServer
	invoker  *llm.Invoker
	embedder *embedder.Invoker
	windower *window.Windower
	logger   zerolog.Logger
	tools    []string
}

// NewServer creates a new MCP server instance
func NewServer(c Components, logger zerolog.Logger) (*Server, error) {
	if c.Windower == nil {
		return nil, errors.New("mcp: windower is required")
	}

	s := &Server{
		mcp:      server.NewMCPServer(ServerName, ServerVersion, server.WithToolCapabilities(false)),
		invoker:  c.Invoker,
		embedder: c.Embedder,
		windower: c.Windower,
		logger:   logger,
	}
	s.registerTools()
	s.logger.Info().Strs("tools", s.tools).Msg("mcp tools registered")
	return s, nil
}

// Tools lists the registered tool names.
func (s *Server) Tools() []string {
	return append([]string(nil), s.tools...)
}

// Serve runs the MCP protocol over in and out until ctx is cancelled or in
// is closed.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	err := stdio.Listen(ctx, in, out)
	if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, io.EOF)) {
		return nil
	}
	return err
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	if s.invoker != nil {
		s.mcp.AddTool(generateResponseTool(), s.handleGenerateResponse)
		s.mcp.AddTool(extractConceptsTool(), s.handleExtractConcepts)
		s.tools = append(s.tools, "generate_response", "extract_concepts")
	}
	if s.embedder != nil {
		s.mcp.AddTool(generateEmbeddingTool(), s.handleGenerateEmbedding)
		s.tools = append(s.tools, "generate_embedding")
	}

	s.mcp.AddTool(windowTextTool(), s.handleWindowText)
	s.mcp.AddTool(mergeWindowsTool(), s.handleMergeWindows)
	s.tools = append(s.tools, "window_text", "merge_windows")
}
