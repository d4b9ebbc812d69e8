package hostfunc

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"
)

// ByteHandler processes one host call payload and produces the reply.
type ByteHandler func(ctx context.Context, payload []byte) ([]byte, error)

// Middleware wraps a ByteHandler to add cross-cutting behavior. Chains
// execute in FIFO order: the first middleware wraps outermost.
type Middleware func(next ByteHandler) ByteHandler

// Chain applies middlewares around a handler.
func Chain(handler ByteHandler, middlewares ...Middleware) ByteHandler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return handler
}

// LoggingMiddleware logs each host call with its duration.
func LoggingMiddleware(logger *slog.Logger, fn string) Middleware {
	return func(next ByteHandler) ByteHandler {
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			start := time.Now()
			out, err := next(ctx, payload)
			logger.DebugContext(ctx, "host call served",
				slog.String("function", fn),
				slog.Duration("duration", time.Since(start)),
				slog.Bool("ok", err == nil))
			return out, err
		}
	}
}

// UserAgentMiddleware injects a User-Agent header into HTTP request
// payloads that do not carry one.
func UserAgentMiddleware(userAgent string) Middleware {
	return func(next ByteHandler) ByteHandler {
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			var req map[string]any
			if err := json.Unmarshal(payload, &req); err == nil {
				headers, ok := req["headers"].(map[string]any)
				if !ok {
					headers = make(map[string]any)
					req["headers"] = headers
				}
				found := false
				for k := range headers {
					if strings.EqualFold(k, "User-Agent") {
						found = true
						break
					}
				}
				if !found {
					headers["User-Agent"] = userAgent
					if patched, err := json.Marshal(req); err == nil {
						payload = patched
					}
				}
			}
			return next(ctx, payload)
		}
	}
}
