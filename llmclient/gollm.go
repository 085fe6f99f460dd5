package llmclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/teilomillet/gollm"
)

// GollmAdapter wraps a gollm.LLM instance behind the ProviderAdapter
// interface. It covers providers whose native HTTP surface is not the
// chat-completions format, at the cost of flattening the transcript into a
// single prompt and recovering tool calls from response text.
type GollmAdapter struct {
	provider string
	llm      gollm.LLM
	model    string
}

// NewGollmAdapter creates a GollmAdapter for the given provider and model.
// If apiKey is empty, gollm reads it from the provider's environment variable.
func NewGollmAdapter(provider, model, apiKey string) (*GollmAdapter, error) {
	opts := []gollm.ConfigOption{
		gollm.SetProvider(provider),
		gollm.SetModel(model),
		gollm.SetMaxTokens(4096),
		gollm.SetTemperature(DefaultTemperature),
		gollm.SetMaxRetries(0), // a single failed call aborts the turn
		gollm.SetLogLevel(gollm.LogLevelWarn),
	}
	if apiKey != "" {
		opts = append(opts, gollm.SetAPIKey(apiKey))
	}

	llm, err := gollm.NewLLM(opts...)
	if err != nil {
		return nil, fmt.Errorf("gollm init for provider %s: %w", provider, err)
	}
	return &GollmAdapter{provider: provider, llm: llm, model: model}, nil
}

// NewGollmAdapterFromLLM wraps an existing gollm.LLM instance.
func NewGollmAdapterFromLLM(provider string, llm gollm.LLM) *GollmAdapter {
	return &GollmAdapter{provider: provider, llm: llm}
}

// Name returns the provider identifier.
func (a *GollmAdapter) Name() string {
	return a.provider
}

// Complete translates the request into a gollm prompt, generates, and
// reassembles a Reply.
func (a *GollmAdapter) Complete(ctx context.Context, req Request) (*Reply, error) {
	prompt := a.translateRequest(req)

	if req.Model != "" {
		a.llm.SetOption("model", req.Model)
	}
	if req.Temperature != 0 {
		a.llm.SetOption("temperature", req.Temperature)
	}

	text, err := a.llm.Generate(ctx, prompt)
	if err != nil {
		return nil, a.translateError(err)
	}
	return a.buildReply(text), nil
}

// translateRequest flattens the transcript into a gollm prompt. The system
// message becomes the prompt's system section; assistant and tool turns are
// inlined as labeled context.
func (a *GollmAdapter) translateRequest(req Request) *gollm.Prompt {
	var systemPrompt string
	var parts []string

	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			systemPrompt += msg.Content + "\n"
		case RoleUser:
			parts = append(parts, msg.Content)
		case RoleAssistant:
			if msg.Content != "" {
				parts = append(parts, "[Assistant]: "+msg.Content)
			}
			for _, tc := range msg.ToolCalls {
				parts = append(parts, fmt.Sprintf("[Assistant called %s]: %s", tc.Function.Name, tc.Function.Arguments))
			}
		case RoleTool:
			parts = append(parts, "[Tool Result]: "+msg.Content)
		}
	}

	promptText := strings.Join(parts, "\n")
	if promptText == "" {
		promptText = "Hello"
	}

	promptOpts := []gollm.PromptOption{}
	if systemPrompt != "" {
		promptOpts = append(promptOpts, gollm.WithSystemPrompt(strings.TrimSpace(systemPrompt), gollm.CacheTypeEphemeral))
	}

	if len(req.Tools) > 0 {
		tools := make([]gollm.Tool, 0, len(req.Tools))
		for _, t := range req.Tools {
			tools = append(tools, gollm.Tool{
				Type: "function",
				Function: gollm.Function{
					Name:        t.Function.Name,
					Description: t.Function.Description,
					Parameters:  t.Function.Parameters,
				},
			})
		}
		promptOpts = append(promptOpts, gollm.WithTools(tools))
		promptOpts = append(promptOpts, gollm.WithToolChoice("auto"))
	}

	return gollm.NewPrompt(promptText, promptOpts...)
}

// buildReply assembles a Reply from generated text, recovering any tool
// calls gollm embedded in the text.
func (a *GollmAdapter) buildReply(text string) *Reply {
	calls := parseEmbeddedToolCalls(text)

	msg := Message{Role: RoleAssistant}
	finishReason := "stop"
	if len(calls) > 0 {
		msg.ToolCalls = calls
		msg.Content = stripEmbeddedToolCalls(text)
		finishReason = "tool_calls"
	} else {
		msg.Content = text
	}

	return &Reply{
		Message:      msg,
		FinishReason: finishReason,
		// gollm does not expose usage; totals stay zero and the loop
		// tolerates that.
	}
}

// embeddedCallMarkers are the prefixes gollm uses when a provider returns
// tool calls inside the generated text.
var embeddedCallMarkers = []string{`{"tool_calls"`, `[{"name"`}

// parseEmbeddedToolCalls extracts tool calls a provider embedded as JSON in
// the response text. Returns nil when the text holds no recognizable calls.
func parseEmbeddedToolCalls(text string) []ToolCall {
	start := -1
	for _, marker := range embeddedCallMarkers {
		if idx := strings.Index(text, marker); idx != -1 {
			start = idx
			break
		}
	}
	if start == -1 {
		return nil
	}

	type rawCall struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	var rawCalls []rawCall
	payload := []byte(text[start:])
	if err := json.Unmarshal(payload, &rawCalls); err != nil {
		var wrapper struct {
			ToolCalls []rawCall `json:"tool_calls"`
		}
		if err := json.Unmarshal(payload, &wrapper); err != nil {
			return nil
		}
		rawCalls = wrapper.ToolCalls
	}

	calls := make([]ToolCall, 0, len(rawCalls))
	for _, rc := range rawCalls {
		calls = append(calls, ToolCall{
			ID:   "call_" + uuid.New().String()[:8],
			Type: "function",
			Function: FunctionCall{
				Name:      rc.Name,
				Arguments: string(rc.Arguments),
			},
		})
	}
	return calls
}

// stripEmbeddedToolCalls removes the parsed tool-call JSON from the text.
func stripEmbeddedToolCalls(text string) string {
	for _, marker := range embeddedCallMarkers {
		if idx := strings.Index(text, marker); idx != -1 {
			text = strings.TrimSpace(text[:idx])
		}
	}
	return text
}

// translateError classifies a gollm error into the llmclient hierarchy.
// gollm surfaces provider failures as flat strings, so classification is by
// message content.
func (a *GollmAdapter) translateError(err error) error {
	// The raw error is deliberately not kept as a cause: its text may quote
	// credentials and only the sanitized message may surface.
	msg := SanitizeErrorBody(err.Error())
	pe := ProviderError{
		ClientError: ClientError{Message: msg},
		Provider:    a.provider,
	}
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "401") || strings.Contains(lower, "unauthorized") || strings.Contains(lower, "invalid api key"):
		pe.StatusCode = 401
		return &AuthenticationError{ProviderError: pe}
	case strings.Contains(lower, "403") || strings.Contains(lower, "forbidden"):
		pe.StatusCode = 403
		return &AccessDeniedError{ProviderError: pe}
	case strings.Contains(lower, "429") || strings.Contains(lower, "rate limit"):
		pe.StatusCode = 429
		return &RateLimitError{ProviderError: pe}
	case strings.Contains(lower, "500") || strings.Contains(lower, "internal server"):
		pe.StatusCode = 500
		return &ServerError{ProviderError: pe}
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "connection"):
		return &NetworkError{ClientError: pe.ClientError}
	default:
		return &pe
	}
}
