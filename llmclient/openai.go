package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultTemperature is the fixed low sampling temperature sent with every
// completion request.
const DefaultTemperature = 0.1

// OpenAIAdapter talks to any endpoint implementing the OpenAI chat
// completions format (OpenAI, Azure OpenAI, Ollama, vLLM, Groq, ...). It owns
// request construction, authentication, and error sanitization. It never
// retries: a single failed call surfaces to the caller.
type OpenAIAdapter struct {
	name       string
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// OpenAIOption configures an OpenAIAdapter.
type OpenAIOption func(*OpenAIAdapter)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) OpenAIOption {
	return func(a *OpenAIAdapter) {
		a.httpClient = hc
	}
}

// WithName overrides the provider name the adapter registers under.
func WithName(name string) OpenAIOption {
	return func(a *OpenAIAdapter) {
		a.name = name
	}
}

// NewOpenAIAdapter creates an adapter for an OpenAI-compatible endpoint.
// baseURL is the API root (e.g. "https://api.openai.com/v1").
func NewOpenAIAdapter(baseURL, apiKey string, opts ...OpenAIOption) *OpenAIAdapter {
	a := &OpenAIAdapter{
		name:    "openai",
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name returns the provider identifier.
func (a *OpenAIAdapter) Name() string {
	return a.name
}

// chatRequest is the wire body for the chat completions endpoint.
type chatRequest struct {
	Model       string           `json:"model"`
	Messages    []Message        `json:"messages"`
	Tools       []ToolDefinition `json:"tools,omitempty"`
	ToolChoice  string           `json:"tool_choice,omitempty"`
	Temperature float64          `json:"temperature"`
}

// chatResponse is the wire body of a successful completion.
type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int     `json:"index"`
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage *wireUsage `json:"usage,omitempty"`
}

type wireUsage struct {
	PromptTokens        int `json:"prompt_tokens"`
	CompletionTokens    int `json:"completion_tokens"`
	TotalTokens         int `json:"total_tokens"`
	PromptTokensDetails *struct {
		CachedTokens int `json:"cached_tokens"`
	} `json:"prompt_tokens_details,omitempty"`
}

// Complete sends one chat completions request. The endpoint decides whether
// to answer directly or request tool calls (tool_choice "auto").
func (a *OpenAIAdapter) Complete(ctx context.Context, req Request) (*Reply, error) {
	temperature := req.Temperature
	if temperature == 0 {
		temperature = DefaultTemperature
	}

	body := chatRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: temperature,
	}
	if len(req.Tools) > 0 {
		body.Tools = req.Tools
		body.ToolChoice = "auto"
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &ClientError{Message: "failed to encode request", Cause: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, &ClientError{Message: "failed to build request", Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if a.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, &NetworkError{ClientError: ClientError{Message: "completion request failed", Cause: err}}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{ClientError: ClientError{Message: "failed to read response body", Cause: err}}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// The raw body may quote back credentials from the request; it must
		// never surface unredacted.
		return nil, ErrorFromStatusCode(resp.StatusCode, SanitizeErrorBody(string(raw)), a.name)
	}

	var decoded chatResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, &MalformedReplyError{ClientError: ClientError{
			Message: fmt.Sprintf("undecodable completion body (%d bytes)", len(raw)),
			Cause:   err,
		}}
	}
	if len(decoded.Choices) == 0 {
		return nil, &MalformedReplyError{ClientError: ClientError{
			Message: "completion returned no choices",
		}}
	}

	choice := decoded.Choices[0]
	reply := &Reply{
		Message:      choice.Message,
		FinishReason: choice.FinishReason,
	}
	// Usage is optional on the wire; absent usage stays zero.
	if decoded.Usage != nil {
		reply.Usage = Usage{
			PromptTokens:     decoded.Usage.PromptTokens,
			CompletionTokens: decoded.Usage.CompletionTokens,
			TotalTokens:      decoded.Usage.TotalTokens,
		}
		if decoded.Usage.PromptTokensDetails != nil {
			reply.Usage.CachedTokens = decoded.Usage.PromptTokensDetails.CachedTokens
		}
	}
	return reply, nil
}
