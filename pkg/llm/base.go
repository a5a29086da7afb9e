// Package llm provides the language-model backend of the memory engine.
//
// The engine asks a model for two things only: memory candidates from one
// turn, returned as JSON, and a rolling session summary, returned as prose.
// Both are optional and degrade gracefully, so a Provider may be absent or
// failing. Providers report a reply cut off by the token limit as
// ErrTruncated, because neither half a JSON document nor half a summary is
// worth keeping.
package llm

import (
	"context"
	"errors"
	"strings"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Errors shared by every provider.
var (
	// ErrEmptyResponse is returned when a provider answers with no text.
	ErrEmptyResponse = errors.New("llm generation failed: empty response")

	// ErrTruncated is returned when the reply stopped at the token limit.
	ErrTruncated = errors.New("llm generation failed: reply truncated at token limit")
)

// Format selects the shape of the reply.
type Format int

const (
	// FormatText asks for free text.
	FormatText Format = iota

	// FormatJSON asks for a single JSON object. Providers with a native JSON
	// mode enable it; the others add an instruction to the system prompt.
	FormatJSON
)

// jsonInstruction is appended to the system prompt by providers without a
// native JSON mode.
const jsonInstruction = "Respond with a single JSON object and nothing else."

// Provider generates text for the engine.
type Provider interface {
	// Generate answers a single user prompt.
	Generate(ctx context.Context, prompt string, opts ...GenerateOption) (string, error)

	// GenerateWithMessages answers a conversation of system, user and
	// assistant messages. The returned text is trimmed and never empty.
	GenerateWithMessages(ctx context.Context, messages []Message, opts ...GenerateOption) (string, error)

	// Close releases the provider.
	Close() error
}

// Message is one entry of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerateOptions holds per-request settings.
type GenerateOptions struct {
	// Temperature controls randomness. Memory tasks default to 0.2.
	Temperature float64

	// MaxTokens bounds the reply length.
	MaxTokens int

	// Format selects free text or a JSON object.
	Format Format

	// Stop contains stop sequences that end generation.
	Stop []string
}

// GenerateOption configures a request.
type GenerateOption func(*GenerateOptions)

// WithTemperature sets the sampling temperature.
func WithTemperature(temp float64) GenerateOption {
	return func(opts *GenerateOptions) {
		opts.Temperature = temp
	}
}

// WithMaxTokens bounds the reply length.
//
// Example:
//
//	text, _ := provider.Generate(ctx, "Summarize", llm.WithMaxTokens(256))
func WithMaxTokens(max int) GenerateOption {
	return func(opts *GenerateOptions) {
		opts.MaxTokens = max
	}
}

// WithJSON asks for a JSON object reply.
func WithJSON() GenerateOption {
	return func(opts *GenerateOptions) {
		opts.Format = FormatJSON
	}
}

// WithStop sets stop sequences.
func WithStop(stop ...string) GenerateOption {
	return func(opts *GenerateOptions) {
		opts.Stop = stop
	}
}

// ApplyGenerateOptions resolves options over the defaults: temperature 0.2,
// 512 tokens, free text.
func ApplyGenerateOptions(opts []GenerateOption) *GenerateOptions {
	options := &GenerateOptions{
		Temperature: 0.2,
		MaxTokens:   512,
		Format:      FormatText,
	}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// SystemPrompt joins the system messages, adding the JSON instruction when
// the format asks for it and the provider has no native JSON mode.
func SystemPrompt(messages []Message, options *GenerateOptions, nativeJSON bool) string {
	var parts []string
	for _, m := range messages {
		if m.Role == RoleSystem && m.Content != "" {
			parts = append(parts, m.Content)
		}
	}
	if options.Format == FormatJSON && !nativeJSON {
		parts = append(parts, jsonInstruction)
	}
	return strings.Join(parts, "\n\n")
}

// Unfence strips a surrounding Markdown code fence (```json ... ```) that
// models often add around structured replies.
func Unfence(reply string) string {
	s := strings.TrimSpace(reply)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 && !strings.ContainsAny(s[:nl], "[{") {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// Finish validates raw reply text: truncated replies fail with
// ErrTruncated, blank ones with ErrEmptyResponse.
func Finish(text string, truncated bool) (string, error) {
	if truncated {
		return "", ErrTruncated
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
