package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/seaborne/helmsman/llmclient"
)

// scriptedAdapter returns queued replies in order, recording every request.
// When the script is exhausted it keeps returning the last reply.
type scriptedAdapter struct {
	replies  []*llmclient.Reply
	err      error
	requests []llmclient.Request
}

func (s *scriptedAdapter) Name() string { return "scripted" }

func (s *scriptedAdapter) Complete(ctx context.Context, req llmclient.Request) (*llmclient.Reply, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	idx := len(s.requests) - 1
	if idx >= len(s.replies) {
		idx = len(s.replies) - 1
	}
	return s.replies[idx], nil
}

func finalReply(text string) *llmclient.Reply {
	return &llmclient.Reply{
		Message:      llmclient.AssistantMessage(text),
		FinishReason: "stop",
		Usage:        llmclient.Usage{PromptTokens: 100, CompletionTokens: 10, TotalTokens: 110, CachedTokens: 40},
	}
}

func toolCallReply(id, name, arguments string) *llmclient.Reply {
	return &llmclient.Reply{
		Message: llmclient.Message{
			Role: llmclient.RoleAssistant,
			ToolCalls: []llmclient.ToolCall{{
				ID:       id,
				Type:     "function",
				Function: llmclient.FunctionCall{Name: name, Arguments: arguments},
			}},
		},
		FinishReason: "tool_calls",
		Usage:        llmclient.Usage{PromptTokens: 50, CompletionTokens: 5, TotalTokens: 55},
	}
}

// spyTool records invocations and argument payloads.
type spyTool struct {
	calls int
	args  []map[string]any
}

func (s *spyTool) fn(result string) ToolFunc {
	return func(ctx context.Context, args map[string]any) (string, error) {
		s.calls++
		s.args = append(s.args, args)
		return result, nil
	}
}

func newTestLoop(adapter *scriptedAdapter, registry *Registry, gate Gate, profile Profile) *Loop {
	client := llmclient.NewClient(llmclient.WithProvider("scripted", adapter))
	if profile.Provider == "" {
		profile.Provider = "scripted"
	}
	if profile.BasePrompt == "" {
		profile.BasePrompt = "You are a helpful assistant."
	}
	return NewLoop(client, registry, gate, profile, nil)
}

func TestChatFinalAnswerInOneRound(t *testing.T) {
	adapter := &scriptedAdapter{replies: []*llmclient.Reply{finalReply("The capital of France is Paris.")}}
	spy := &spyTool{}
	reg := NewRegistry()
	reg.Register(Tool{Name: "web_search", Description: "search", Parameters: map[string]any{"type": "object"}, Handler: spy.fn("x")})

	loop := newTestLoop(adapter, reg, StaticGate(true), Profile{Name: "test"})
	defer loop.Close()

	answer, err := loop.Chat(context.Background(), "what is the capital of France")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if answer != "The capital of France is Paris." {
		t.Errorf("answer = %q", answer)
	}
	if len(adapter.requests) != 1 {
		t.Errorf("expected exactly 1 round, got %d", len(adapter.requests))
	}
	if spy.calls != 0 {
		t.Errorf("expected zero tool executions, got %d", spy.calls)
	}
}

func TestChatToolRoundThenAnswer(t *testing.T) {
	adapter := &scriptedAdapter{replies: []*llmclient.Reply{
		toolCallReply("call_1", "web_search", `{"query":"X"}`),
		finalReply("done"),
	}}
	spy := &spyTool{}
	reg := NewRegistry()
	reg.Register(Tool{Name: "web_search", Description: "search", Parameters: map[string]any{"type": "object"}, Handler: spy.fn("search results")})

	loop := newTestLoop(adapter, reg, StaticGate(true), Profile{Name: "test"})
	defer loop.Close()

	answer, err := loop.Chat(context.Background(), "search for X")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if answer != "done" {
		t.Errorf("answer = %q", answer)
	}
	if spy.calls != 1 {
		t.Fatalf("expected handler invoked exactly once, got %d", spy.calls)
	}
	if spy.args[0]["query"] != "X" {
		t.Errorf("handler args = %v", spy.args[0])
	}

	// Exactly one tool-role message between the two assistant messages,
	// correlated to the call that produced it.
	msgs := loop.Conversation()
	var between []llmclient.Message
	firstAssistant := -1
	for i, m := range msgs {
		if m.Role == llmclient.RoleAssistant {
			if firstAssistant == -1 {
				firstAssistant = i
				continue
			}
			between = msgs[firstAssistant+1 : i]
			break
		}
	}
	if len(between) != 1 {
		t.Fatalf("expected 1 message between assistant turns, got %d", len(between))
	}
	if between[0].Role != llmclient.RoleTool || between[0].ToolCallID != "call_1" {
		t.Errorf("unexpected correlation message: %+v", between[0])
	}
	if between[0].Content != "search results" {
		t.Errorf("tool result content = %q", between[0].Content)
	}
}

func TestChatIterationCeiling(t *testing.T) {
	adapter := &scriptedAdapter{replies: []*llmclient.Reply{
		toolCallReply("call_1", "web_search", `{"query":"again"}`),
	}}
	spy := &spyTool{}
	reg := NewRegistry()
	reg.Register(Tool{Name: "web_search", Description: "search", Parameters: map[string]any{"type": "object"}, Handler: spy.fn("more")})

	client := llmclient.NewClient(llmclient.WithProvider("scripted", adapter))
	loop := NewLoop(client, reg, StaticGate(true), Profile{Name: "test", Provider: "scripted", BasePrompt: "p"}, &LoopConfig{MaxIterations: 4})
	defer loop.Close()

	answer, err := loop.Chat(context.Background(), "loop forever")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if answer != exhaustionNotice {
		t.Errorf("expected exhaustion notice, got %q", answer)
	}
	if len(adapter.requests) != 4 {
		t.Errorf("expected exactly 4 model calls at ceiling, got %d", len(adapter.requests))
	}
	if spy.calls != 4 {
		t.Errorf("expected 4 tool executions, got %d", spy.calls)
	}
	// No rollback: all rounds retained in the conversation.
	if loop.Usage().Rounds != 4 {
		t.Errorf("rounds = %d", loop.Usage().Rounds)
	}
}

func TestChatApprovalRefusedNeverExecutes(t *testing.T) {
	adapter := &scriptedAdapter{replies: []*llmclient.Reply{
		toolCallReply("call_1", "write_file", `{"path":"local/out.txt","content":"hi"}`),
		finalReply("understood"),
	}}
	spy := &spyTool{}
	reg := NewRegistry()
	reg.Register(Tool{Name: "write_file", Description: "write", Parameters: map[string]any{"type": "object"}, Handler: spy.fn("written")})

	loop := newTestLoop(adapter, reg, StaticGate(false), Profile{Name: "test", Gated: []string{"write_file"}})
	defer loop.Close()

	if _, err := loop.Chat(context.Background(), "write a file"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if spy.calls != 0 {
		t.Fatalf("refused tool must never run; got %d invocations", spy.calls)
	}

	var denial string
	for _, m := range loop.Conversation() {
		if m.Role == llmclient.RoleTool && m.ToolCallID == "call_1" {
			denial = m.Content
		}
	}
	if !strings.Contains(denial, "local/out.txt") {
		t.Errorf("denial message must name the target path, got %q", denial)
	}
}

func TestChatUnknownToolIsRecoverable(t *testing.T) {
	adapter := &scriptedAdapter{replies: []*llmclient.Reply{
		toolCallReply("call_1", "nonexistent_tool", `{}`),
		finalReply("ok"),
	}}
	loop := newTestLoop(adapter, NewRegistry(), StaticGate(true), Profile{Name: "test"})
	defer loop.Close()

	answer, err := loop.Chat(context.Background(), "try it")
	if err != nil {
		t.Fatalf("unknown tool must not fail the turn: %v", err)
	}
	if answer != "ok" {
		t.Errorf("answer = %q", answer)
	}

	var results []string
	for _, m := range loop.Conversation() {
		if m.Role == llmclient.RoleTool {
			results = append(results, m.Content)
		}
	}
	if len(results) != 1 || !strings.Contains(results[0], "unknown tool: nonexistent_tool") {
		t.Errorf("tool results = %v", results)
	}

	// Idempotent: the same call yields the same textual result again.
	adapter2 := &scriptedAdapter{replies: []*llmclient.Reply{
		toolCallReply("call_9", "nonexistent_tool", `{}`),
		finalReply("ok"),
	}}
	loop2 := newTestLoop(adapter2, NewRegistry(), StaticGate(true), Profile{Name: "test"})
	defer loop2.Close()
	if _, err := loop2.Chat(context.Background(), "try again"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, m := range loop2.Conversation() {
		if m.Role == llmclient.RoleTool && m.Content != results[0] {
			t.Errorf("unknown-tool result not stable: %q vs %q", m.Content, results[0])
		}
	}
}

func TestChatArgumentDecodeFailureIsRecoverable(t *testing.T) {
	adapter := &scriptedAdapter{replies: []*llmclient.Reply{
		toolCallReply("call_1", "web_search", `{not valid json`),
		finalReply("recovered"),
	}}
	spy := &spyTool{}
	reg := NewRegistry()
	reg.Register(Tool{Name: "web_search", Description: "search", Parameters: map[string]any{"type": "object"}, Handler: spy.fn("x")})

	loop := newTestLoop(adapter, reg, StaticGate(true), Profile{Name: "test"})
	defer loop.Close()

	answer, err := loop.Chat(context.Background(), "go")
	if err != nil {
		t.Fatalf("decode failure must not fail the turn: %v", err)
	}
	if answer != "recovered" {
		t.Errorf("answer = %q", answer)
	}
	if spy.calls != 0 {
		t.Errorf("handler must be skipped on decode failure, got %d calls", spy.calls)
	}
	found := false
	for _, m := range loop.Conversation() {
		if m.Role == llmclient.RoleTool && strings.Contains(m.Content, "invalid arguments for web_search") {
			found = true
		}
	}
	if !found {
		t.Error("expected decode-error tool result in conversation")
	}
}

func TestChatTransportFailureAbortsTurn(t *testing.T) {
	adapter := &scriptedAdapter{err: &llmclient.ServerError{ProviderError: llmclient.ProviderError{
		ClientError: llmclient.ClientError{Message: "upstream exploded"},
		Provider:    "scripted",
		StatusCode:  503,
	}}}
	loop := newTestLoop(adapter, NewRegistry(), StaticGate(true), Profile{Name: "test"})
	defer loop.Close()

	_, err := loop.Chat(context.Background(), "hello")
	if err == nil {
		t.Fatal("expected error")
	}
	var serverErr *llmclient.ServerError
	if !errors.As(err, &serverErr) {
		t.Errorf("expected wrapped ServerError, got %v", err)
	}

	// The conversation up to the failure is retained for the next turn.
	msgs := loop.Conversation()
	if len(msgs) != 2 || msgs[1].Role != llmclient.RoleUser {
		t.Errorf("conversation not retained: %+v", msgs)
	}
}

func TestChatMultipleToolCallsInOrder(t *testing.T) {
	reply := &llmclient.Reply{
		Message: llmclient.Message{
			Role: llmclient.RoleAssistant,
			ToolCalls: []llmclient.ToolCall{
				{ID: "call_a", Type: "function", Function: llmclient.FunctionCall{Name: "first", Arguments: `{}`}},
				{ID: "call_b", Type: "function", Function: llmclient.FunctionCall{Name: "second", Arguments: `{}`}},
			},
		},
		FinishReason: "tool_calls",
	}
	adapter := &scriptedAdapter{replies: []*llmclient.Reply{reply, finalReply("ok")}}

	var order []string
	reg := NewRegistry()
	for _, name := range []string{"first", "second"} {
		name := name
		reg.Register(Tool{Name: name, Description: name, Parameters: map[string]any{"type": "object"}, Handler: func(ctx context.Context, args map[string]any) (string, error) {
			order = append(order, name)
			return name + " done", nil
		}})
	}

	loop := newTestLoop(adapter, reg, StaticGate(true), Profile{Name: "test"})
	defer loop.Close()

	if _, err := loop.Chat(context.Background(), "do both"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("execution order = %v", order)
	}

	// One correlated result per call, in request order, before round two.
	var toolMsgs []llmclient.Message
	for _, m := range loop.Conversation() {
		if m.Role == llmclient.RoleTool {
			toolMsgs = append(toolMsgs, m)
		}
	}
	if len(toolMsgs) != 2 || toolMsgs[0].ToolCallID != "call_a" || toolMsgs[1].ToolCallID != "call_b" {
		t.Errorf("tool messages = %+v", toolMsgs)
	}
}

func TestChatSingleSystemMessageInvariant(t *testing.T) {
	adapter := &scriptedAdapter{replies: []*llmclient.Reply{finalReply("hi")}}
	loop := newTestLoop(adapter, NewRegistry(), StaticGate(true), Profile{Name: "test"})
	defer loop.Close()

	for i := 0; i < 3; i++ {
		if _, err := loop.Chat(context.Background(), fmt.Sprintf("turn %d", i)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	system := 0
	msgs := loop.Conversation()
	for _, m := range msgs {
		if m.Role == llmclient.RoleSystem {
			system++
		}
	}
	if system != 1 {
		t.Errorf("expected exactly one system message, got %d", system)
	}
	if msgs[0].Role != llmclient.RoleSystem {
		t.Error("system message must come first")
	}
}

func TestChatUsageAccumulation(t *testing.T) {
	adapter := &scriptedAdapter{replies: []*llmclient.Reply{
		toolCallReply("call_1", "web_search", `{"query":"a"}`), // 50 prompt tokens
		finalReply("done"),                                     // 100 prompt, 40 cached
	}}
	spy := &spyTool{}
	reg := NewRegistry()
	reg.Register(Tool{Name: "web_search", Description: "search", Parameters: map[string]any{"type": "object"}, Handler: spy.fn("r")})

	loop := newTestLoop(adapter, reg, StaticGate(true), Profile{Name: "test"})
	defer loop.Close()

	if _, err := loop.Chat(context.Background(), "q"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	usage := loop.Usage()
	if usage.PromptTokens != 150 || usage.CompletionTokens != 15 || usage.CachedTokens != 40 {
		t.Errorf("usage = %+v", usage)
	}
	if usage.Rounds != 2 {
		t.Errorf("rounds = %d", usage.Rounds)
	}
	want := 40.0 / 150.0
	if ratio := usage.CacheHitRatio(); ratio != want {
		t.Errorf("cache hit ratio = %v, want %v", ratio, want)
	}

	// Next turn resets the accumulator.
	adapter.replies = []*llmclient.Reply{finalReply("again")}
	adapter.requests = nil
	if _, err := loop.Chat(context.Background(), "next"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if usage := loop.Usage(); usage.PromptTokens != 100 || usage.Rounds != 1 {
		t.Errorf("accumulator not reset: %+v", usage)
	}
}

func TestChatEmptyFinalContent(t *testing.T) {
	adapter := &scriptedAdapter{replies: []*llmclient.Reply{{
		Message:      llmclient.Message{Role: llmclient.RoleAssistant, Content: "   "},
		FinishReason: "stop",
	}}}
	loop := newTestLoop(adapter, NewRegistry(), StaticGate(true), Profile{Name: "test"})
	defer loop.Close()

	answer, err := loop.Chat(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if answer != noContentPlaceholder {
		t.Errorf("answer = %q, want placeholder", answer)
	}
}

func TestChatDeclaresProfileToolSubset(t *testing.T) {
	adapter := &scriptedAdapter{replies: []*llmclient.Reply{finalReply("hi")}}
	reg := NewRegistry()
	for _, name := range []string{"read_file", "write_file", "calculate"} {
		reg.Register(Tool{Name: name, Description: name, Parameters: map[string]any{"type": "object"}, Handler: func(ctx context.Context, args map[string]any) (string, error) { return "", nil }})
	}

	loop := newTestLoop(adapter, reg, StaticGate(true), Profile{Name: "test", Tools: []string{"read_file", "calculate"}})
	defer loop.Close()

	if _, err := loop.Chat(context.Background(), "hi"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	declared := adapter.requests[0].Tools
	if len(declared) != 2 {
		t.Fatalf("expected 2 declared tools, got %d", len(declared))
	}
	for _, d := range declared {
		if d.Function.Name == "write_file" {
			t.Error("write_file must not be declared for this profile")
		}
	}
}
