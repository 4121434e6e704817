package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/llmbridge/internal/llm"
	"github.com/dshills/llmbridge/internal/window"
	"github.com/dshills/llmbridge/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams = -32602 // Invalid method parameters
	ErrorCodeInternalError = -32603 // Internal JSON-RPC error
	ErrorCodeTimeout       = -32005 // Provider call exceeded its deadline
)

// handleGenerateResponse handles the generate_response tool invocation
func (s *Server) handleGenerateResponse(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	prompt, ok := args["prompt"].(string)
	if !ok || strings.TrimSpace(prompt) == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "prompt parameter is required", map[string]interface{}{
			"param":  "prompt",
			"reason": "missing or empty",
		})
	}

	opts := llm.GenerateOptions{
		Model:        getStringDefault(args, "model", ""),
		SystemPrompt: getStringDefault(args, "system_prompt", ""),
	}
	if temp, ok := args["temperature"].(float64); ok {
		if temp < 0 || temp > 1 {
			return nil, newMCPError(ErrorCodeInvalidParams, "temperature must be between 0 and 1", map[string]interface{}{
				"param": "temperature",
				"value": temp,
			})
		}
		opts.Temperature = &temp
	}
	if _, ok := args["max_retries"]; ok {
		retries := getIntDefault(args, "max_retries", 0)
		if retries < 0 || retries > 10 {
			return nil, newMCPError(ErrorCodeInvalidParams, "max_retries must be between 0 and 10", map[string]interface{}{
				"param": "max_retries",
				"value": retries,
			})
		}
		opts.MaxRetries = &retries
	}
	if ms := getIntDefault(args, "timeout_ms", 0); ms > 0 {
		opts.Timeout = time.Duration(ms) * time.Millisecond
	}

	start := time.Now()
	resp, err := s.invoker.GenerateResponse(ctx, prompt, getStringDefault(args, "context", ""), opts)
	if err != nil {
		return nil, s.operationError("generation failed", err)
	}

	model := opts.Model
	if model == "" {
		model = s.invoker.Model()
	}
	response := map[string]interface{}{
		"response":    resp,
		"model":       model,
		"duration_ms": time.Since(start).Milliseconds(),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleExtractConcepts handles the extract_concepts tool invocation
func (s *Server) handleExtractConcepts(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	text, ok := args["text"].(string)
	if !ok || strings.TrimSpace(text) == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "text parameter is required", map[string]interface{}{
			"param":  "text",
			"reason": "missing or empty",
		})
	}

	concepts := s.invoker.ExtractConcepts(ctx, text)
	response := map[string]interface{}{
		"concepts": concepts,
		"count":    len(concepts),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGenerateEmbedding handles the generate_embedding tool invocation
func (s *Server) handleGenerateEmbedding(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	texts, err := getStrings(args, "texts")
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "texts must be an array of strings", map[string]interface{}{
			"param":  "texts",
			"reason": err.Error(),
		})
	}
	text := getStringDefault(args, "text", "")
	if text == "" && len(texts) == 0 {
		return nil, newMCPError(ErrorCodeInvalidParams, "text or texts parameter is required", map[string]interface{}{
			"param":  "text",
			"reason": "missing or empty",
		})
	}

	response := map[string]interface{}{
		"model":     s.embedder.Model(),
		"dimension": s.embedder.Dimension(),
	}
	if len(texts) > 0 {
		vectors, err := s.embedder.GenerateBatch(ctx, texts)
		if err != nil {
			return nil, s.operationError("embedding failed", err)
		}
		response["embeddings"] = vectors
		response["count"] = len(vectors)
	} else {
		vec, err := s.embedder.GenerateEmbedding(ctx, text)
		if err != nil {
			return nil, s.operationError("embedding failed", err)
		}
		response["embedding"] = vec
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleWindowText handles the window_text tool invocation
func (s *Server) handleWindowText(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	text, ok := args["text"].(string)
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "text parameter is required", map[string]interface{}{
			"param":  "text",
			"reason": "missing",
		})
	}

	size := getIntDefault(args, "window_size", 0)
	if size < 0 {
		return nil, newMCPError(ErrorCodeInvalidParams, "window_size must be positive", map[string]interface{}{
			"param": "window_size",
			"value": size,
		})
	}

	windows := s.windower.ProcessContext(text, window.ProcessOptions{
		WindowSize:         size,
		IncludeTokenCounts: getBoolDefault(args, "include_token_counts", false),
	})
	response := map[string]interface{}{
		"windows":          windows,
		"count":            len(windows),
		"estimated_tokens": s.windower.EstimateTokens(text),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleMergeWindows handles the merge_windows tool invocation
func (s *Server) handleMergeWindows(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	var merged string
	switch {
	case args["windows"] != nil:
		windows, err := getWindows(args, "windows")
		if err != nil {
			return nil, newMCPError(ErrorCodeInvalidParams, "windows must be an array of window objects", map[string]interface{}{
				"param":  "windows",
				"reason": err.Error(),
			})
		}
		merged = s.windower.MergeOverlappingContent(windows)
	case args["texts"] != nil:
		texts, err := getStrings(args, "texts")
		if err != nil {
			return nil, newMCPError(ErrorCodeInvalidParams, "texts must be an array of strings", map[string]interface{}{
				"param":  "texts",
				"reason": err.Error(),
			})
		}
		merged = s.windower.MergeTexts(texts)
	default:
		return nil, newMCPError(ErrorCodeInvalidParams, "windows or texts parameter is required", map[string]interface{}{
			"param":  "windows",
			"reason": "missing",
		})
	}

	response := map[string]interface{}{
		"text":   merged,
		"length": len(merged),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// operationError maps an operation failure onto an MCP error code.
func (s *Server) operationError(message string, err error) error {
	code := ErrorCodeInternalError
	switch {
	case errors.Is(err, types.ErrValidation):
		code = ErrorCodeInvalidParams
	case errors.Is(err, types.ErrTimeout):
		code = ErrorCodeTimeout
	}
	s.logger.Warn().Err(err).Int("code", code).Msg(message)
	return newMCPError(code, message, map[string]interface{}{
		"error": err.Error(),
	})
}

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// getStrings extracts an optional array of strings. JSON decoding yields
// []interface{}; Go callers may pass []string directly.
func getStrings(args map[string]interface{}, key string) ([]string, error) {
	switch val := args[key].(type) {
	case nil:
		return nil, nil
	case []string:
		return val, nil
	case []interface{}:
		out := make([]string, 0, len(val))
		for i, item := range val {
			s, ok := item.(string)
			if !ok {
				return nil, errors.Newf("element %d is %T, not a string", i, item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, errors.Newf("got %T", val)
	}
}

// getWindows extracts an array of {text, start, end} objects.
func getWindows(args map[string]interface{}, key string) ([]types.Window, error) {
	raw, ok := args[key].([]interface{})
	if !ok {
		return nil, errors.Newf("got %T", args[key])
	}
	out := make([]types.Window, 0, len(raw))
	for i, item := range raw {
		m, ok := item.(map[string]interface{})
		if !ok {
			return nil, errors.Newf("element %d is %T, not an object", i, item)
		}
		text, ok := m["text"].(string)
		if !ok {
			return nil, errors.Newf("element %d has no text", i)
		}
		out = append(out, types.Window{
			Text:  text,
			Start: getIntDefault(m, "start", 0),
			End:   getIntDefault(m, "end", 0),
		})
	}
	return out, nil
}
