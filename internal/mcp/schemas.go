package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// generateResponseTool returns the tool definition for generate_response
func generateResponseTool() mcp.Tool {
	return mcp.Tool{
		Name:        "generate_response",
		Description: "Send a prompt, with optional context, to the configured chat model with rate-limit retries and a timeout",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"prompt": map[string]interface{}{
					"type":        "string",
					"description": "The user prompt",
				},
				"context": map[string]interface{}{
					"type":        "string",
					"description": "Optional context placed before the prompt",
				},
				"system_prompt": map[string]interface{}{
					"type":        "string",
					"description": "Overrides the configured system prompt",
				},
				"model": map[string]interface{}{
					"type":        "string",
					"description": "Overrides the configured model",
				},
				"temperature": map[string]interface{}{
					"type":        "number",
					"description": "Sampling temperature (0.0-1.0)",
					"minimum":     0.0,
					"maximum":     1.0,
				},
				"max_retries": map[string]interface{}{
					"type":        "integer",
					"description": "Rate-limit retries after the first attempt",
					"minimum":     0,
					"maximum":     10,
				},
				"timeout_ms": map[string]interface{}{
					"type":        "integer",
					"description": "Overall timeout in milliseconds",
					"minimum":     1,
				},
			},
			Required: []string{"prompt"},
		},
	}
}

// extractConceptsTool returns the tool definition for extract_concepts
func extractConceptsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "extract_concepts",
		Description: "Ask the chat model for the key concepts in a text. Returns an empty list rather than failing",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"text": map[string]interface{}{
					"type":        "string",
					"description": "Text to analyse",
				},
			},
			Required: []string{"text"},
		},
	}
}

// generateEmbeddingTool returns the tool definition for generate_embedding
func generateEmbeddingTool() mcp.Tool {
	return mcp.Tool{
		Name:        "generate_embedding",
		Description: "Generate a cached embedding vector of the configured dimension",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"text": map[string]interface{}{
					"type":        "string",
					"description": "Text to embed",
				},
				"texts": map[string]interface{}{
					"type":        "array",
					"description": "Several texts to embed in one call; results keep input order",
					"items": map[string]interface{}{
						"type": "string",
					},
				},
			},
		},
	}
}

// windowTextTool returns the tool definition for window_text
func windowTextTool() mcp.Tool {
	return mcp.Tool{
		Name:        "window_text",
		Description: "Split long text into overlapping, word-aligned windows",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"text": map[string]interface{}{
					"type":        "string",
					"description": "Text to split",
				},
				"window_size": map[string]interface{}{
					"type":        "integer",
					"description": "Window size in bytes; computed from the estimated token count when omitted",
					"minimum":     1,
				},
				"include_token_counts": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, annotate each window with its estimated token count",
					"default":     false,
				},
			},
			Required: []string{"text"},
		},
	}
}

// mergeWindowsTool returns the tool definition for merge_windows
func mergeWindowsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "merge_windows",
		Description: "Merge ordered window texts back into one text, collapsing overlaps",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"windows": map[string]interface{}{
					"type":        "array",
					"description": "Windows as returned by window_text; offsets allow an exact merge",
					"items": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"text":  map[string]interface{}{"type": "string"},
							"start": map[string]interface{}{"type": "integer"},
							"end":   map[string]interface{}{"type": "integer"},
						},
						"required": []string{"text"},
					},
				},
				"texts": map[string]interface{}{
					"type":        "array",
					"description": "Window texts in order, merged by detecting overlaps",
					"items": map[string]interface{}{
						"type": "string",
					},
				},
			},
		},
	}
}
