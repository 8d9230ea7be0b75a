// ABOUTME: Chat-completion client with retry policy for rate limits and server errors
// ABOUTME: Deliberately generic - tool and RAG policy live in the chat service
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"ragdesk/internal/models"
	"ragdesk/internal/util"
)

const (
	// DefaultModel is used when neither the invocation nor the client
	// configuration names a model.
	DefaultModel = "gpt-4o-mini"
	// DefaultTimeout bounds a single completion request.
	DefaultTimeout = 60 * time.Second
)

// Config holds client-level defaults. Per-channel settings from
// models.ChatbotConfig override these per invocation.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	MaxRetries int
	BaseDelay  time.Duration
	Timeout    time.Duration
}

// DefaultConfig returns the default client configuration.
func DefaultConfig(apiKey string) Config {
	return Config{
		APIKey:     apiKey,
		Model:      DefaultModel,
		MaxRetries: 3,
		BaseDelay:  time.Second,
		Timeout:    DefaultTimeout,
	}
}

// Tool aliases the OpenAI tool definition so callers build schemas without
// importing the SDK in two places.
type Tool = openai.Tool

// Options configures a single Invoke call.
type Options struct {
	// APIKey, BaseURL and Model override the client defaults when set.
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	// Tools, when non-empty, are attached to the request with tool choice
	// left to the model.
	Tools []Tool
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// Completion is the assistant message returned by Invoke.
type Completion struct {
	Content   string
	ToolCalls []ToolCall
}

// completionAPI is the slice of the OpenAI client the Client needs.
type completionAPI interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Client invokes chat completions with exponential backoff on HTTP 429 and
// 5xx responses. Any other error propagates immediately.
type Client struct {
	cfg Config

	mu      sync.Mutex
	clients map[string]completionAPI
}

// New creates a chat-completion client with the given defaults.
func New(cfg Config) *Client {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.BaseDelay == 0 {
		cfg.BaseDelay = time.Second
	}
	return &Client{
		cfg:     cfg,
		clients: make(map[string]completionAPI),
	}
}

// apiFor returns (building if needed) the OpenAI client for the key/URL pair.
func (c *Client) apiFor(apiKey, baseURL string) completionAPI {
	if apiKey == "" {
		apiKey = c.cfg.APIKey
	}
	if baseURL == "" {
		baseURL = c.cfg.BaseURL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	cacheKey := apiKey + "\x00" + baseURL
	if api, ok := c.clients[cacheKey]; ok {
		return api
	}

	conf := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		conf.BaseURL = baseURL
	}
	api := openai.NewClientWithConfig(conf)
	c.clients[cacheKey] = api
	return api
}

// Invoke sends the conversation to the model and returns the assistant
// message. Exhausting retries surfaces models.ErrLLMUnavailable wrapping the
// last error; timeouts surface models.ErrLLMTimeout without further retries.
func (c *Client) Invoke(ctx context.Context, messages []models.ChatMessage, opts Options) (*Completion, error) {
	api := c.apiFor(opts.APIKey, opts.BaseURL)

	model := opts.Model
	if model == "" {
		model = c.cfg.Model
	}

	req := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    toOpenAIMessages(messages),
		Temperature: opts.Temperature,
	}
	if len(opts.Tools) > 0 {
		req.Tools = opts.Tools
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(util.Backoff(c.cfg.BaseDelay, attempt))
		}

		callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		resp, err := api.CreateChatCompletion(callCtx, req)
		cancel()

		if err != nil {
			if isTimeout(err) {
				return nil, fmt.Errorf("%w: %v", models.ErrLLMTimeout, err)
			}
			if !isRetryable(err) {
				return nil, err
			}
			lastErr = fmt.Errorf("attempt %d: %w", attempt+1, err)
			continue
		}

		if len(resp.Choices) == 0 {
			lastErr = fmt.Errorf("attempt %d: no completion choices returned", attempt+1)
			continue
		}

		return fromChoice(resp.Choices[0]), nil
	}

	return nil, fmt.Errorf("%w after %d attempts: %w", models.ErrLLMUnavailable, c.cfg.MaxRetries+1, lastErr)
}

// toOpenAIMessages converts history messages to the API format.
func toOpenAIMessages(messages []models.ChatMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		out[i] = openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		}
	}
	return out
}

// fromChoice extracts content and tool calls from the first choice.
func fromChoice(choice openai.ChatCompletionChoice) *Completion {
	comp := &Completion{Content: choice.Message.Content}
	for _, tc := range choice.Message.ToolCalls {
		comp.ToolCalls = append(comp.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return comp
}

// isRetryable reports whether the error is a rate limit or server error.
func isRetryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}
	return false
}

// isTimeout reports whether the error came from a deadline or timeout.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}
