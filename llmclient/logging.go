package llmclient

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// LoggingMiddleware logs each completion call: provider, model, transcript
// size, latency, usage, and outcome. Message bodies are never logged; error
// text reaching here is already sanitized by the adapters.
func LoggingMiddleware(logger *zap.Logger) Middleware {
	return func(ctx context.Context, req Request, next func(context.Context, Request) (*Reply, error)) (*Reply, error) {
		start := time.Now()
		reply, err := next(ctx, req)
		elapsed := time.Since(start)

		fields := []zap.Field{
			zap.String("provider", req.Provider),
			zap.String("model", req.Model),
			zap.Int("messages", len(req.Messages)),
			zap.Int("tools", len(req.Tools)),
			zap.Duration("elapsed", elapsed),
		}
		if err != nil {
			logger.Warn("completion failed", append(fields, zap.Error(err))...)
			return nil, err
		}

		fields = append(fields,
			zap.String("finish_reason", reply.FinishReason),
			zap.Int("prompt_tokens", reply.Usage.PromptTokens),
			zap.Int("completion_tokens", reply.Usage.CompletionTokens),
			zap.Int("cached_tokens", reply.Usage.CachedTokens),
			zap.Int("tool_calls", len(reply.Message.ToolCalls)),
		)
		logger.Debug("completion ok", fields...)
		return reply, nil
	}
}
