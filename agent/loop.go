package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/seaborne/helmsman/llmclient"
)

// DefaultMaxIterations is the round ceiling applied when the config leaves
// it unset. The ceiling bounds cost and stops a model that keeps requesting
// tools without ever answering.
const DefaultMaxIterations = 10

// exhaustionNotice is returned when the ceiling is reached without a final
// answer. The conversation retains every round attempted.
const exhaustionNotice = "I could not reach a final answer within the allowed number of steps. The partial work is kept in the conversation; ask me to continue if you want me to keep going."

// noContentPlaceholder stands in for a final assistant message whose content
// is absent or empty.
const noContentPlaceholder = "(the model returned an empty response)"

// UsageTotals accumulates token accounting across all rounds of one
// user-turn. Reset at the start of each turn; never shared across turns.
type UsageTotals struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	CachedTokens     int
	Rounds           int
}

// Accumulate folds one reply's usage into the totals.
func (u *UsageTotals) Accumulate(usage llmclient.Usage) {
	u.PromptTokens += usage.PromptTokens
	u.CompletionTokens += usage.CompletionTokens
	u.TotalTokens += usage.TotalTokens
	u.CachedTokens += usage.CachedTokens
}

// CacheHitRatio reports cached prompt tokens over total prompt tokens.
// Reported, not enforced.
func (u UsageTotals) CacheHitRatio() float64 {
	if u.PromptTokens == 0 {
		return 0
	}
	return float64(u.CachedTokens) / float64(u.PromptTokens)
}

// LoopConfig holds optional Loop settings.
type LoopConfig struct {
	MaxIterations int // round ceiling per user-turn; 0 means DefaultMaxIterations
	Temperature   float64
	Logger        *zap.Logger
	EventBuffer   int
}

// Loop is the orchestration state machine for one chat session. It owns the
// Conversation and the usage accumulator exclusively for the session's
// lifetime; rounds execute strictly sequentially, as do tool executions
// within a round.
type Loop struct {
	id            string
	client        *llmclient.Client
	registry      *Registry
	gate          Gate
	profile       Profile
	conv          *Conversation
	usage         UsageTotals
	emitter       *EventEmitter
	logger        *zap.Logger
	maxIterations int
	temperature   float64
	mu            sync.Mutex
}

// NewLoop creates a session loop. The system prompt is seeded from the
// profile immediately; config may be nil for defaults.
func NewLoop(client *llmclient.Client, registry *Registry, gate Gate, profile Profile, config *LoopConfig) *Loop {
	cfg := LoopConfig{}
	if config != nil {
		cfg = *config
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if gate == nil {
		gate = StaticGate(false)
	}

	id := uuid.New().String()
	return &Loop{
		id:            id,
		client:        client,
		registry:      registry,
		gate:          gate,
		profile:       profile,
		conv:          NewConversation(profile.SystemPrompt("", "")),
		emitter:       NewEventEmitter(id, cfg.EventBuffer),
		logger:        cfg.Logger.With(zap.String("session", id), zap.String("agent", profile.Name)),
		maxIterations: cfg.MaxIterations,
		temperature:   cfg.Temperature,
	}
}

// ID returns the session identifier.
func (l *Loop) ID() string { return l.id }

// Events returns the event channel for the host application.
func (l *Loop) Events() <-chan Event { return l.emitter.Events() }

// Conversation returns a copy of the transcript so far.
func (l *Loop) Conversation() []llmclient.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conv.Messages()
}

// Usage returns the accumulator for the most recent user-turn.
func (l *Loop) Usage() UsageTotals {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.usage
}

// Close releases the event channel.
func (l *Loop) Close() {
	l.emitter.Close()
}

// Chat handles one user message: up to maxIterations rounds of
// [complete -> dispatch tools -> append results], returning the model's
// final answer text. Transport and malformed-reply failures abort the turn
// with an error; the conversation up to that point is retained for the next
// turn. Every other condition resolves to a returned answer string.
func (l *Loop) Chat(ctx context.Context, userMessage string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	start := time.Now()
	l.conv.Append(llmclient.UserMessage(userMessage))
	l.usage = UsageTotals{}
	l.emitter.Emit(EventTurnStart, map[string]any{"message": userMessage})

	for round := 0; round < l.maxIterations; round++ {
		l.emitter.Emit(EventRound, map[string]any{"round": round + 1})

		reply, err := l.client.Complete(ctx, llmclient.Request{
			Model:       l.profile.Model,
			Provider:    l.profile.Provider,
			Messages:    l.conv.Messages(),
			Tools:       l.registry.Declarations(l.profile.Tools),
			Temperature: l.temperature,
		})
		if err != nil {
			l.emitter.Emit(EventError, map[string]any{"error": err.Error()})
			l.logger.Error("completion failed", zap.Int("round", round+1), zap.Error(err))
			return "", fmt.Errorf("completion failed on round %d: %w", round+1, err)
		}

		l.usage.Accumulate(reply.Usage)
		l.usage.Rounds = round + 1
		l.conv.Append(reply.Message)

		if !reply.HasToolCalls() {
			// Final answer.
			content := reply.Message.Content
			if strings.TrimSpace(content) == "" {
				content = noContentPlaceholder
			}
			l.finishTurn(start)
			return content, nil
		}

		// The model must see a result for every requested call, in request
		// order, before the next round.
		for _, tc := range reply.Message.ToolCalls {
			result := l.dispatch(ctx, tc)
			l.conv.Append(llmclient.ToolMessage(tc.ID, result))
		}
	}

	l.emitter.Emit(EventExhausted, map[string]any{"rounds": l.maxIterations})
	l.logger.Warn("iteration ceiling reached", zap.Int("ceiling", l.maxIterations))
	l.finishTurn(start)
	return exhaustionNotice, nil
}

// finishTurn reports elapsed time and aggregated usage for the turn.
func (l *Loop) finishTurn(start time.Time) {
	elapsed := time.Since(start)
	l.emitter.Emit(EventTurnEnd, map[string]any{
		"elapsed_ms":        elapsed.Milliseconds(),
		"rounds":            l.usage.Rounds,
		"prompt_tokens":     l.usage.PromptTokens,
		"completion_tokens": l.usage.CompletionTokens,
		"cached_tokens":     l.usage.CachedTokens,
		"cache_hit_ratio":   l.usage.CacheHitRatio(),
	})
	l.logger.Info("turn complete",
		zap.Duration("elapsed", elapsed),
		zap.Int("rounds", l.usage.Rounds),
		zap.Int("prompt_tokens", l.usage.PromptTokens),
		zap.Int("completion_tokens", l.usage.CompletionTokens),
		zap.Float64("cache_hit_ratio", l.usage.CacheHitRatio()),
	)
}

// dispatch resolves one tool call to result text. Decode failures, unknown
// names, and approval refusals are recoverable: each becomes a textual
// result the model can reason about on the next round.
func (l *Loop) dispatch(ctx context.Context, tc llmclient.ToolCall) string {
	name := tc.Function.Name
	l.emitter.Emit(EventToolStart, map[string]any{"tool": name, "call_id": tc.ID})

	args, err := llmclient.DecodeArguments(tc.Function.Arguments)
	if err != nil {
		result := fmt.Sprintf("invalid arguments for %s: %v", name, err)
		l.emitter.Emit(EventToolEnd, map[string]any{"tool": name, "call_id": tc.ID, "error": result})
		return result
	}

	if !l.registry.Has(name) {
		result := fmt.Sprintf("unknown tool: %s", name)
		l.emitter.Emit(EventToolEnd, map[string]any{"tool": name, "call_id": tc.ID, "error": result})
		return result
	}

	if l.profile.IsGated(name) && !l.gate.Approve(name, args) {
		result := fmt.Sprintf("the operator denied execution of %s on %q", name, targetIdentifier(args))
		l.emitter.Emit(EventApprovalDenied, map[string]any{"tool": name, "call_id": tc.ID, "target": targetIdentifier(args)})
		l.logger.Info("approval denied", zap.String("tool", name))
		return result
	}

	result := l.registry.Execute(ctx, name, args)
	l.emitter.Emit(EventToolEnd, map[string]any{"tool": name, "call_id": tc.ID, "bytes": len(result)})
	return result
}

// targetIdentifierKeys are checked in order when naming the object of a
// denied or previewed action.
var targetIdentifierKeys = []string{"path", "file_path", "key", "topic", "url", "query"}

// targetIdentifier picks the argument that best identifies what a tool call
// would act on.
func targetIdentifier(args map[string]any) string {
	for _, key := range targetIdentifierKeys {
		if s, ok := StringArg(args, key); ok && s != "" {
			return s
		}
	}
	for _, k := range sortedKeys(args) {
		if s, ok := StringArg(args, k); ok && s != "" {
			return s
		}
	}
	return "(unspecified)"
}
