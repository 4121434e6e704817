// Package prompt builds provider-ready prompts for the invokers.
package prompt

import (
	"strings"

	"github.com/dshills/llmbridge/pkg/types"
)

// Model families that need special handling. Matching is by prefix on the
// lower-cased model name.
var (
	// noSystemRole lists models that reject a system message.
	noSystemRole = []string{"o1", "gemma"}

	// completionOnly lists models served by a plain completion endpoint.
	completionOnly = []string{"text-", "davinci", "babbage", "gpt-3.5-turbo-instruct"}
)

const conceptSystem = "You extract key concepts from text. " +
	"Respond with only a JSON array of short strings, most important first, " +
	"with no commentary."

const conceptInstruction = "List the key concepts in the following text as a JSON array of strings."

// Formatter is the default types.PromptFormatter.
type Formatter struct{}

// NewFormatter returns a Formatter.
func NewFormatter() *Formatter {
	return &Formatter{}
}

var _ types.PromptFormatter = (*Formatter)(nil)

// FormatChatPrompt returns the system message (when there is one) followed by
// the user message. Context, when given, precedes the prompt in the user
// message. Models without a system role get the system text prepended to the
// user message instead.
func (f *Formatter) FormatChatPrompt(model, systemPrompt, context, prompt string) []types.Message {
	user := prompt
	if strings.TrimSpace(context) != "" {
		user = "Context:\n" + context + "\n\n" + prompt
	}

	if strings.TrimSpace(systemPrompt) == "" {
		return []types.Message{{Role: types.RoleUser, Content: user}}
	}
	if !SupportsSystemRole(model) {
		return []types.Message{{Role: types.RoleUser, Content: systemPrompt + "\n\n" + user}}
	}
	return []types.Message{
		{Role: types.RoleSystem, Content: systemPrompt},
		{Role: types.RoleUser, Content: user},
	}
}

// FormatConceptPrompt asks for a JSON array of concepts: as a plain string for
// completion-only models, as chat messages otherwise.
func (f *Formatter) FormatConceptPrompt(model, text string) types.Prompt {
	if IsCompletionModel(model) {
		return types.Prompt{
			Text: conceptSystem + "\n\n" + conceptInstruction + "\n\nText:\n" + text + "\n\nConcepts:",
		}
	}
	return types.Prompt{
		Messages: f.FormatChatPrompt(model, conceptSystem, "", conceptInstruction+"\n\nText:\n"+text),
	}
}

// SupportsSystemRole reports whether model accepts a system message.
func SupportsSystemRole(model string) bool {
	return !hasAnyPrefix(model, noSystemRole)
}

// IsCompletionModel reports whether model only serves plain completions.
func IsCompletionModel(model string) bool {
	return hasAnyPrefix(model, completionOnly)
}

func hasAnyPrefix(model string, prefixes []string) bool {
	m := strings.ToLower(strings.TrimSpace(model))
	for _, p := range prefixes {
		if strings.HasPrefix(m, p) {
			return true
		}
	}
	return false
}
