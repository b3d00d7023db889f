// Package structured turns free-form LLM completions into typed values.
//
// The handler prepends a schema-bearing system prompt, calls the provider,
// extracts the JSON payload from the raw response (markdown fences, stray
// prose and brace boundaries are all handled) and unmarshals it into T.
// Callers that need to distinguish clean parses from degraded ones use
// GenerateWithParse and inspect ParseResult.Errors.
package structured

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/BaSui01/queryflow/llm"
)

// ParseError describes a single problem found while parsing a response.
type ParseError struct {
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
}

// ValidationErrors aggregates parse errors into a single error value.
type ValidationErrors struct {
	Errors []ParseError
}

func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e.Errors))
	for _, pe := range e.Errors {
		if pe.Path != "" {
			parts = append(parts, fmt.Sprintf("%s: %s", pe.Path, pe.Message))
		} else {
			parts = append(parts, pe.Message)
		}
	}
	return strings.Join(parts, "; ")
}

// ParseResult carries the outcome of parsing a structured response.
type ParseResult[T any] struct {
	Value  *T           `json:"value,omitempty"`
	Raw    string       `json:"raw"`
	Errors []ParseError `json:"errors,omitempty"`
}

// IsValid returns true when parsing succeeded with no errors.
func (r *ParseResult[T]) IsValid() bool {
	return r.Value != nil && len(r.Errors) == 0
}

// StructuredOutput is a generic handler producing type-safe output from an
// LLM provider via prompt engineering.
type StructuredOutput[T any] struct {
	provider    llm.Provider
	schemaJSON  string
	required    []string
	model       string
	temperature float32
	maxTokens   int
}

// NewStructuredOutput creates a handler for type T. schemaJSON is the JSON
// Schema snippet shown to the model; required lists top-level keys that must
// be present in the response for it to count as a clean parse.
func NewStructuredOutput[T any](provider llm.Provider, schemaJSON string, required ...string) (*StructuredOutput[T], error) {
	if provider == nil {
		return nil, fmt.Errorf("provider cannot be nil")
	}
	if strings.TrimSpace(schemaJSON) == "" {
		return nil, fmt.Errorf("schema cannot be empty")
	}
	return &StructuredOutput[T]{
		provider:   provider,
		schemaJSON: schemaJSON,
		required:   required,
	}, nil
}

// WithModel overrides the provider's default model.
func (s *StructuredOutput[T]) WithModel(model string) *StructuredOutput[T] {
	s.model = model
	return s
}

// WithTemperature sets the sampling temperature.
func (s *StructuredOutput[T]) WithTemperature(temp float32) *StructuredOutput[T] {
	s.temperature = temp
	return s
}

// WithMaxTokens caps the completion length.
func (s *StructuredOutput[T]) WithMaxTokens(n int) *StructuredOutput[T] {
	s.maxTokens = n
	return s
}

// Generate produces a structured output from a prompt string.
func (s *StructuredOutput[T]) Generate(ctx context.Context, prompt string) (*T, error) {
	result, err := s.GenerateWithParse(ctx, prompt)
	if err != nil {
		return nil, err
	}
	if !result.IsValid() {
		return nil, &ValidationErrors{Errors: result.Errors}
	}
	return result.Value, nil
}

// GenerateWithParse produces a structured output and returns the detailed
// parse result. A provider error is returned as err; parse and validation
// problems are reported in ParseResult.Errors with a non-nil result.
func (s *StructuredOutput[T]) GenerateWithParse(ctx context.Context, prompt string) (*ParseResult[T], error) {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: s.buildStructuredOutputPrompt()},
		{Role: llm.RoleUser, Content: prompt},
	}

	req := &llm.ChatRequest{
		Model:       s.model,
		Messages:    messages,
		Temperature: s.temperature,
		MaxTokens:   s.maxTokens,
	}

	resp, err := s.provider.Completion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("provider completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response choices returned")
	}

	raw := resp.Choices[0].Message.Content
	return s.ParseWithResult(raw), nil
}

// Parse parses a JSON string into the target type, failing on any error.
func (s *StructuredOutput[T]) Parse(jsonStr string) (*T, error) {
	result := s.ParseWithResult(jsonStr)
	if !result.IsValid() {
		return nil, &ValidationErrors{Errors: result.Errors}
	}
	return result.Value, nil
}

// ParseWithResult parses a raw response and returns the detailed result.
func (s *StructuredOutput[T]) ParseWithResult(raw string) *ParseResult[T] {
	jsonStr := extractJSON(raw)
	result := &ParseResult[T]{Raw: raw}

	// Required-key check runs against the loose decoding so a missing key is
	// reported by name rather than as a zero value downstream.
	var loose map[string]json.RawMessage
	if err := json.Unmarshal([]byte(jsonStr), &loose); err != nil {
		result.Errors = append(result.Errors, ParseError{
			Message: fmt.Sprintf("JSON parse error: %v", err),
		})
		return result
	}
	for _, key := range s.required {
		if _, ok := loose[key]; !ok {
			result.Errors = append(result.Errors, ParseError{
				Path:    key,
				Message: "required field missing",
			})
		}
	}

	var value T
	if err := json.Unmarshal([]byte(jsonStr), &value); err != nil {
		result.Errors = append(result.Errors, ParseError{
			Message: fmt.Sprintf("JSON parse error: %v", err),
		})
		return result
	}
	result.Value = &value
	return result
}

// buildStructuredOutputPrompt creates the system prompt for structured output.
func (s *StructuredOutput[T]) buildStructuredOutputPrompt() string {
	var sb strings.Builder

	sb.WriteString("You are a helpful assistant that generates structured JSON output.\n\n")
	sb.WriteString("IMPORTANT INSTRUCTIONS:\n")
	sb.WriteString("1. You MUST respond with valid JSON that conforms to the schema below.\n")
	sb.WriteString("2. Do NOT include any text before or after the JSON.\n")
	sb.WriteString("3. Do NOT wrap the JSON in markdown code blocks.\n")
	sb.WriteString("4. Ensure all required fields are present and have valid values.\n")
	sb.WriteString("5. Follow all constraints specified in the schema (enum values, min/max, patterns, etc.).\n\n")
	sb.WriteString("JSON Schema:\n")
	sb.WriteString("```json\n")
	sb.WriteString(s.schemaJSON)
	sb.WriteString("\n```\n\n")
	sb.WriteString("Respond with ONLY the JSON object.")

	return sb.String()
}

var fencedBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?```")

// extractJSON pulls the JSON payload out of a response that may contain
// markdown fences or surrounding prose.
func extractJSON(response string) string {
	response = strings.TrimSpace(response)

	if strings.Contains(response, "```") {
		matches := fencedBlockRe.FindStringSubmatch(response)
		if len(matches) > 1 {
			return strings.TrimSpace(matches[1])
		}
	}

	// Object boundaries
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start >= 0 && end > start {
		return response[start : end+1]
	}

	// Array boundaries
	start = strings.Index(response, "[")
	end = strings.LastIndex(response, "]")
	if start >= 0 && end > start {
		return response[start : end+1]
	}

	return response
}
