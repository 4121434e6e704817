// Package mcp implements the Model Context Protocol (MCP) server for llmbridge.
//
// The MCP server exposes up to five tools to MCP clients:
//   - generate_response: Send a prompt to the chat model with retries and a timeout
//   - extract_concepts: Pull key concepts out of a text via the chat model
//   - generate_embedding: Produce cached, fixed-dimension embeddings
//   - window_text: Split long text into overlapping windows
//   - merge_windows: Merge windows back into one text
//
// The first two are only registered when the configured provider supports
// chat, and generate_embedding only when an embedder is available.
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// Stdout carries protocol traffic only; all logging goes to stderr.
//
// # Tool: generate_response
//
//	Request:
//	{
//	  "name": "generate_response",
//	  "arguments": {
//	    "prompt": "Summarise the design",
//	    "context": "The cache evicts the least recently accessed entry...",
//	    "temperature": 0.2,
//	    "timeout_ms": 30000
//	  }
//	}
//
//	Response:
//	{
//	  "response": "The cache ...",
//	  "model": "gpt-4o-mini",
//	  "duration_ms": 812
//	}
//
// # Tool: window_text
//
//	Request:
//	{
//	  "name": "window_text",
//	  "arguments": {"text": "...", "window_size": 2000, "include_token_counts": true}
//	}
//
//	Response:
//	{
//	  "windows": [{"text": "...", "start": 0, "end": 2003, "token_count": 501}, ...],
//	  "count": 4,
//	  "estimated_tokens": 1900
//	}
//
// Passing those windows unchanged to merge_windows reproduces the original
// text exactly. Plain strings passed as "texts" are merged by overlap
// detection instead.
//
// # Error Codes
//
//   - -32602: Invalid parameters (missing or out of range arguments)
//   - -32603: Internal error (provider failure, retries exhausted)
//   - -32005: Provider call timed out
//
// extract_concepts never fails on provider errors; it returns an empty list.
package mcp
