package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/longregen/counsel/internal/adapters/retry"
)

// ChatMessage represents a message in the OpenAI chat format
type ChatMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// ToolCall represents a function call from the LLM
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall represents the function details
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // JSON string
}

// Tool represents a function definition for the LLM
type Tool struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

// ToolFunction represents the function metadata
type ToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ChatCompletionRequest represents the request to the chat completions API
type ChatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
	Stream      bool          `json:"stream"`
	Tools       []Tool        `json:"tools,omitempty"`
	ToolChoice  string        `json:"tool_choice,omitempty"`
}

// ChatCompletionResponse represents the response from the chat completions API
type ChatCompletionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int         `json:"index"`
		Message      ChatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// APIError is a non-2xx answer from the provider.
type APIError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error: %s - %s", e.Status, e.Body)
}

// MalformedResponseError means the provider answered 2xx with something unusable.
type MalformedResponseError struct {
	Err error
}

func (e *MalformedResponseError) Error() string {
	return "malformed completion response: " + e.Err.Error()
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}

type ClientConfig struct {
	BaseURL      string
	APIKey       string
	Model        string
	MaxTokens    int
	Temperature  float64
	Timeout      time.Duration
	SystemPrompt string
	Retry        retry.Policy
}

// Client is an OpenAI-compatible chat completions client
type Client struct {
	baseURL      string
	apiKey       string
	model        string
	maxTokens    int
	temperature  float64
	systemPrompt string
	httpClient   *http.Client
	retryPolicy  retry.Policy
}

// maxErrorBody bounds how much of an error response is kept for classification
const maxErrorBody = 4096

func NewClient(cfg ClientConfig) *Client {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	baseURL = strings.TrimSuffix(baseURL, "/v1")

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &Client{
		baseURL:      baseURL,
		apiKey:       cfg.APIKey,
		model:        cfg.Model,
		maxTokens:    cfg.MaxTokens,
		temperature:  cfg.Temperature,
		systemPrompt: cfg.SystemPrompt,
		httpClient:   &http.Client{Timeout: timeout},
		retryPolicy:  cfg.Retry,
	}
}

func (c *Client) Model() string {
	return c.model
}

// ChatWithTools sends a non-streaming chat completion request. A configured
// system prompt is prepended unless the caller already supplied one.
func (c *Client) ChatWithTools(ctx context.Context, messages []ChatMessage, tools []Tool) (*ChatCompletionResponse, error) {
	if c.systemPrompt != "" && (len(messages) == 0 || messages[0].Role != "system") {
		messages = append([]ChatMessage{{Role: "system", Content: c.systemPrompt}}, messages...)
	}

	req := ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	}
	if len(tools) > 0 {
		req.Tools = tools
		req.ToolChoice = "auto"
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var respBody []byte
	err = retry.Do(ctx, c.retryPolicy, "chat completion", func(int) (retry.Result, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
		if err != nil {
			return retry.Result{}, fmt.Errorf("failed to create request: %w", err)
		}

		httpReq.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return retry.Result{}, fmt.Errorf("failed to send request: %w", err)
		}
		defer resp.Body.Close()

		result := retry.Result{Status: resp.StatusCode, RetryAfter: retry.ParseRetryAfter(resp.Header)}

		if resp.StatusCode != http.StatusOK {
			errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			return result, &APIError{StatusCode: resp.StatusCode, Status: resp.Status, Body: string(errBody)}
		}

		respBody, err = io.ReadAll(resp.Body)
		if err != nil {
			return result, fmt.Errorf("failed to read body: %w", err)
		}
		return result, nil
	})
	if err != nil {
		return nil, err
	}

	var response ChatCompletionResponse
	if err := json.Unmarshal(respBody, &response); err != nil {
		return nil, &MalformedResponseError{Err: err}
	}
	if len(response.Choices) == 0 {
		return nil, &MalformedResponseError{Err: fmt.Errorf("no choices in response")}
	}

	return &response, nil
}
