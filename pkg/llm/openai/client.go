// Package openai provides an LLM provider for the OpenAI Chat Completions API
// and compatible endpoints (DeepSeek, Qwen, vLLM and others reached through
// BaseURL).
package openai

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/halldyll/recall-go/pkg/llm"
)

// Client is an OpenAI LLM client implementing llm.Provider.
type Client struct {
	client *openai.Client
	model  string

	// nativeJSON enables response_format json_object. Some compatible
	// endpoints reject the field; they get the prompt instruction instead.
	nativeJSON bool
}

// Config is the configuration for OpenAI LLM.
// APIKey: OpenAI API key (required)
// Model: Model name to use, defaults to "gpt-4o-mini"
// BaseURL: API base URL, defaults to OpenAI official address
// DisableJSONMode: Ask for JSON in the prompt instead of response_format
type Config struct {
	APIKey          string
	Model           string
	BaseURL         string
	DisableJSONMode bool
}

// NewClient creates a new OpenAI LLM client.
func NewClient(cfg *Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai llm: api key is required")
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}

	return &Client{
		client:     openai.NewClientWithConfig(config),
		model:      model,
		nativeJSON: !cfg.DisableJSONMode,
	}, nil
}

// Generate answers a single user prompt.
func (c *Client) Generate(ctx context.Context, prompt string, opts ...llm.GenerateOption) (string, error) {
	return c.GenerateWithMessages(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, opts...)
}

// GenerateWithMessages sends one chat completion. System messages are merged
// into a single leading system message.
func (c *Client) GenerateWithMessages(ctx context.Context, messages []llm.Message, opts ...llm.GenerateOption) (string, error) {
	options := llm.ApplyGenerateOptions(opts)

	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    c.chatMessages(messages, options),
		Temperature: float32(options.Temperature),
		MaxTokens:   options.MaxTokens,
		Stop:        options.Stop,
	}
	if options.Format == llm.FormatJSON && c.nativeJSON {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("openai generate: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", llm.ErrEmptyResponse
	}

	choice := resp.Choices[0]
	return llm.Finish(choice.Message.Content, choice.FinishReason == openai.FinishReasonLength)
}

func (c *Client) chatMessages(messages []llm.Message, options *llm.GenerateOptions) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if system := llm.SystemPrompt(messages, options, c.nativeJSON); system != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	for _, msg := range messages {
		if msg.Role == llm.RoleSystem {
			continue
		}
		out = append(out, openai.ChatCompletionMessage{Role: msg.Role, Content: msg.Content})
	}
	return out
}

// Close is a no-op; the SDK client holds no resources.
func (c *Client) Close() error {
	return nil
}
