// Package llmclient provides the completion client layer: wire types for the
// chat-completions protocol, provider adapters, and a typed error hierarchy
// with credential sanitization.
package llmclient

import "encoding/json"

// Role identifies who produced a message in a conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one turn in the conversation transcript. Content may be empty on
// assistant messages that carry only tool calls; ToolCallID is set only on
// tool-role messages and names the ToolCall it answers.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is a single model-issued request to invoke a named tool.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"` // always "function"
	Function FunctionCall `json:"function"`
}

// FunctionCall carries the tool name and its arguments as the raw JSON text
// the model emitted. Arguments must be decoded before dispatch; decode
// failure is recoverable at the orchestration layer.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolDefinition declares a tool to the completion endpoint.
type ToolDefinition struct {
	Type     string      `json:"type"` // always "function"
	Function FunctionDef `json:"function"`
}

// FunctionDef is the machine-readable declaration of a tool: name,
// description, and a JSON-schema-shaped parameter object.
type FunctionDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Usage tracks token consumption for one completion call. Endpoints may omit
// usage entirely; the zero value is valid.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
	CachedTokens     int `json:"cached_tokens,omitempty"`
}

// Add returns the sum of u and other.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		PromptTokens:     u.PromptTokens + other.PromptTokens,
		CompletionTokens: u.CompletionTokens + other.CompletionTokens,
		TotalTokens:      u.TotalTokens + other.TotalTokens,
		CachedTokens:     u.CachedTokens + other.CachedTokens,
	}
}

// Request is the input to a single completion call: the full ordered
// conversation plus the tool declarations visible to the session.
type Request struct {
	Model       string
	Provider    string // routing key; empty selects the client default
	Messages    []Message
	Tools       []ToolDefinition
	Temperature float64
}

// Reply is the structured result of one completion call. The Message carries
// either final answer text or a set of requested tool calls.
type Reply struct {
	Message      Message
	FinishReason string
	Usage        Usage
}

// HasToolCalls reports whether the reply requests tool execution.
func (r *Reply) HasToolCalls() bool {
	return len(r.Message.ToolCalls) > 0
}

// SystemMessage creates a system-role Message.
func SystemMessage(text string) Message {
	return Message{Role: RoleSystem, Content: text}
}

// UserMessage creates a user-role Message.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: text}
}

// AssistantMessage creates an assistant-role Message with text content.
func AssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Content: text}
}

// ToolMessage creates a tool-role Message answering the given tool call.
func ToolMessage(toolCallID, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: toolCallID}
}

// NewFunctionDef builds a ToolDefinition from name, description, and a
// JSON-schema parameter object.
func NewFunctionDef(name, description string, parameters map[string]any) ToolDefinition {
	return ToolDefinition{
		Type: "function",
		Function: FunctionDef{
			Name:        name,
			Description: description,
			Parameters:  parameters,
		},
	}
}

// DecodeArguments unmarshals a tool call's argument text into a key/value
// mapping.
func DecodeArguments(raw string) (map[string]any, error) {
	if raw == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, err
	}
	return args, nil
}
