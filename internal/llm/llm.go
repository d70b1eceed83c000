package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// DefaultMaxTokens bounds a single completion.
const DefaultMaxTokens = 2048

// ErrEmptyResponse is returned when the model answered without any text block.
var ErrEmptyResponse = errors.New("no text content in API response")

// Client wraps the Anthropic Messages API.
type Client struct {
	api       *anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

// NewClient creates an LLM client with the given API key and model.
func NewClient(apiKey, model string) *Client {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := anthropic.NewClient(opts...)
	return &Client{
		api:       &client,
		model:     anthropic.Model(model),
		maxTokens: DefaultMaxTokens,
	}
}

// Model returns the configured model name.
func (c *Client) Model() string { return string(c.model) }

// Complete sends one system/user exchange and returns the text of the reply
// with any markdown fencing removed.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API call: %w", err)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if text == "" {
		return "", ErrEmptyResponse
	}
	return StripFences(text), nil
}

// StripFences removes a surrounding ``` block if present.
func StripFences(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		lines := strings.SplitN(text, "\n", 2)
		if len(lines) > 1 {
			text = lines[1]
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}
	return text
}
