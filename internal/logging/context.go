package logging

import (
	"context"
	"log/slog"
)

// ctxKey is an unexported type for context keys defined in this package.
type ctxKey string

const (
	loggerKey    ctxKey = "logger"
	requestIDKey ctxKey = "requestID"
	spanKey      ctxKey = "span"
)

// WithLogger stores the provided logger on the context.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	if ctx == nil || logger == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext returns the update-scoped logger or falls back to slog.Default().
func FromContext(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return slog.Default()
	}
	if logger, ok := ctx.Value(loggerKey).(*slog.Logger); ok && logger != nil {
		return logger
	}
	return slog.Default()
}

// WithRequestID stores a request identifier on the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if ctx == nil || requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext retrieves a previously stored request identifier.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// ForUpdate derives the context used while handling one chat update. The
// logger carries the request id together with the chat and user ids so every
// line emitted for the update can be correlated.
func ForUpdate(ctx context.Context, base *slog.Logger, requestID string, updateID int, chatID, userID int64) context.Context {
	if base == nil {
		base = FromContext(ctx)
	}
	logger := base.With(
		slog.String("request_id", requestID),
		slog.Int("update_id", updateID),
		slog.Int64("chat_id", chatID),
		slog.Int64("user_id", userID),
	)
	ctx = WithLogger(ctx, logger)
	return WithRequestID(ctx, requestID)
}
