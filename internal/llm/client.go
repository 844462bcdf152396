package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultBaseURL is the default OpenAI API base URL
const DefaultBaseURL = "https://api.openai.com/v1"

// ErrEmptyCompletion is returned when the provider answers with no usable text
var ErrEmptyCompletion = errors.New("API returned empty response")

// Completer produces a completion for a single system prompt
type Completer interface {
	Complete(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error)
}

// Options client options
type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	MaxRetries int           // SDK-level retries, 0 disables them
	Timeout    time.Duration // per-request timeout, 0 leaves it to the caller's context
}

// Client LLM client for any OpenAI-compatible Chat Completions endpoint
type Client struct {
	api   openai.Client
	model string
}

var _ Completer = (*Client)(nil)

// New creates a new LLM client
func New(opts Options) *Client {
	baseURL := strings.TrimSpace(opts.BaseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithBaseURL(baseURL),
		option.WithMaxRetries(opts.MaxRetries),
	}
	if opts.Timeout > 0 {
		reqOpts = append(reqOpts, option.WithRequestTimeout(opts.Timeout))
	}

	return &Client{
		api:   openai.NewClient(reqOpts...),
		model: opts.Model,
	}
}

// Model returns the configured model name
func (c *Client) Model() string {
	return c.model
}

// Complete sends prompt as the only system-role message and returns the trimmed
// text of the first choice
func (c *Client) Complete(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(prompt),
		},
		Temperature: openai.Float(temperature),
	}
	if maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(maxTokens))
	}

	resp, err := c.api.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}
