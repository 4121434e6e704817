package llm

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/xeipuuv/gojsonschema"

	"github.com/dshills/llmbridge/pkg/types"
)

// DefaultConceptSchema accepts a JSON array of strings, or an object whose
// values are strings or arrays of strings.
const DefaultConceptSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "anyOf": [
    {"type": "array", "items": {"type": "string"}},
    {
      "type": "object",
      "additionalProperties": {
        "anyOf": [
          {"type": "string"},
          {"type": "array", "items": {"type": "string"}}
        ]
      }
    }
  ]
}`

// ConceptsConfig bounds concept extraction.
type ConceptsConfig struct {
	MaxConcepts int
	MinLength   int
	MaxLength   int
	Temperature float64

	// Schema validates structured responses. Empty means DefaultConceptSchema.
	Schema string
}

// DefaultConceptsConfig returns the default extraction limits.
func DefaultConceptsConfig() ConceptsConfig {
	return ConceptsConfig{
		MaxConcepts: 10,
		MinLength:   3,
		MaxLength:   100,
		Temperature: 0.1,
	}
}

func (c ConceptsConfig) withDefaults() ConceptsConfig {
	d := DefaultConceptsConfig()
	if c.MaxConcepts <= 0 {
		c.MaxConcepts = d.MaxConcepts
	}
	if c.MinLength <= 0 {
		c.MinLength = d.MinLength
	}
	if c.MaxLength <= 0 {
		c.MaxLength = d.MaxLength
	}
	if c.Schema == "" {
		c.Schema = DefaultConceptSchema
	}
	return c
}

// ConceptExtractor pulls candidate concepts out of a model response. ok is
// false when the strategy does not apply to the text.
type ConceptExtractor interface {
	Name() string
	Extract(text string) (concepts []string, ok bool)
}

// DefaultExtractors returns the standard pipeline, most structured first.
func DefaultExtractors(schema string) ([]ConceptExtractor, error) {
	structured, err := NewStructuredExtractor(schema)
	if err != nil {
		return nil, err
	}
	return []ConceptExtractor{
		structured,
		QuotedExtractor{},
		ListExtractor{},
		PhraseExtractor{},
	}, nil
}

var (
	jsonPattern      = regexp.MustCompile(`(?s)(\{.*\}|\[.*\])`)
	arrayPattern     = regexp.MustCompile(`(?s)\[.*\]`)
	trailingComma    = regexp.MustCompile(`,\s*([}\]])`)
	unquotedKey      = regexp.MustCompile(`([{,]\s*)([a-zA-Z_][a-zA-Z0-9_]*)\s*:`)
	quotedPattern    = regexp.MustCompile(`"([^"\n]+)"|“([^”\n]+)”`)
	listItemPattern  = regexp.MustCompile(`(?m)^\s*(?:[-*•+]|\d+[.)])\s+(.+?)\s*$`)
	phraseSeparators = regexp.MustCompile(`[,;]`)
	capitalizedWords = regexp.MustCompile(`^\p{Lu}[\p{L}\p{N}'-]*(?:[ \t]+\p{Lu}[\p{L}\p{N}'-]*)*$`)
)

// StructuredExtractor reads a JSON array or object embedded in the response
// and checks it against a JSON schema.
type StructuredExtractor struct {
	schema *gojsonschema.Schema
}

// NewStructuredExtractor compiles schema, or DefaultConceptSchema when empty.
func NewStructuredExtractor(schema string) (*StructuredExtractor, error) {
	if schema == "" {
		schema = DefaultConceptSchema
	}
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schema))
	if err != nil {
		return nil, types.Configurationf("llm: invalid concept schema: %v", err)
	}
	return &StructuredExtractor{schema: compiled}, nil
}

func (s *StructuredExtractor) Name() string { return "structured" }

func (s *StructuredExtractor) Extract(text string) ([]string, bool) {
	for _, pattern := range []*regexp.Regexp{jsonPattern, arrayPattern} {
		match := pattern.FindString(text)
		if match == "" {
			continue
		}
		for _, candidate := range repairCandidates(match) {
			if concepts, ok := s.decode(candidate); ok {
				return concepts, true
			}
		}
	}
	return nil, false
}

func (s *StructuredExtractor) decode(raw string) ([]string, bool) {
	if !json.Valid([]byte(raw)) {
		return nil, false
	}
	result, err := s.schema.Validate(gojsonschema.NewStringLoader(raw))
	if err != nil || !result.Valid() {
		return nil, false
	}

	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "[") {
		var items []string
		if err := json.Unmarshal([]byte(trimmed), &items); err != nil {
			return nil, false
		}
		return items, true
	}

	values, err := orderedValues([]byte(trimmed))
	if err != nil {
		return nil, false
	}
	var out []string
	for _, v := range values {
		switch val := v.(type) {
		case string:
			out = append(out, val)
		case []interface{}:
			for _, item := range val {
				if str, ok := item.(string); ok {
					out = append(out, str)
				}
			}
		}
	}
	return out, true
}

// repairCandidates returns raw followed by progressively repaired variants.
func repairCandidates(raw string) []string {
	fixed := trailingComma.ReplaceAllString(raw, "$1")
	fixed = unquotedKey.ReplaceAllString(fixed, `$1"$2":`)
	candidates := []string{raw, fixed}
	if strings.Contains(fixed, "'") {
		candidates = append(candidates, strings.ReplaceAll(fixed, "'", `"`))
	}
	return candidates
}

// orderedValues decodes a JSON object's values in document order.
func orderedValues(data []byte) ([]interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	var values []interface{}
	for dec.More() {
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		var v interface{}
		if err := dec.Decode(&v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}

// QuotedExtractor collects double-quoted substrings.
type QuotedExtractor struct{}

func (QuotedExtractor) Name() string { return "quoted" }

func (QuotedExtractor) Extract(text string) ([]string, bool) {
	matches := quotedPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil, false
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if m[1] != "" {
			out = append(out, m[1])
		} else {
			out = append(out, m[2])
		}
	}
	return out, true
}

// ListExtractor collects bulleted and numbered list items.
type ListExtractor struct{}

func (ListExtractor) Name() string { return "list" }

func (ListExtractor) Extract(text string) ([]string, bool) {
	matches := listItemPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil, false
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m[1])
	}
	return out, true
}

// PhraseExtractor reads a comma-separated run of capitalized phrases such as
// "Rate Limiting, Exponential Backoff, Circuit Breakers". Every word of an
// accepted phrase must start with an upper-case letter, and a reply that does
// not split into at least two parts is ignored, so refusals and plain
// sentences yield nothing.
type PhraseExtractor struct{}

func (PhraseExtractor) Name() string { return "phrases" }

func (PhraseExtractor) Extract(text string) ([]string, bool) {
	parts := phraseSeparators.Split(strings.TrimSpace(text), -1)
	if len(parts) < 2 {
		return nil, false
	}
	var out []string
	for _, part := range parts {
		part = strings.TrimSpace(part)
		part = strings.TrimSpace(strings.TrimPrefix(part, "and "))
		part = strings.TrimRight(part, ".!")
		if capitalizedWords.MatchString(part) {
			out = append(out, part)
		}
	}
	return out, len(out) > 0
}

// cleanConcepts trims, filters by length, removes duplicates keeping the
// first occurrence, and caps the list.
func cleanConcepts(raw []string, cfg ConceptsConfig) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, cfg.MaxConcepts)
	for _, c := range raw {
		c = strings.TrimSpace(strings.Trim(strings.TrimSpace(c), "\"'`"))
		n := utf8.RuneCountInString(c)
		if n < cfg.MinLength || n > cfg.MaxLength {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
		if len(out) == cfg.MaxConcepts {
			break
		}
	}
	return out
}
