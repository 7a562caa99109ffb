package logger

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// HeaderCorrelationID carries the correlation identifier across service boundaries.
const HeaderCorrelationID = "X-Correlation-ID"

// correlationIDKey marks the context storage slot for the correlation identifier.
type correlationIDKey struct{}

// CorrelationIDFromContext returns the correlation identifier stored in ctx, or an empty string when absent.
func CorrelationIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey{}).(string); ok {
		return id
	}

	return ""
}

// WithCorrelationID stores id in ctx. A new UUID is generated when id is empty.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	if id == "" {
		id = uuid.NewString()
	}
	return context.WithValue(ctx, correlationIDKey{}, id)
}

// FromContext returns log enriched with the correlation identifier from ctx.
func FromContext(ctx context.Context, log *slog.Logger) *slog.Logger {
	if log == nil {
		log = slog.Default()
	}
	if id := CorrelationIDFromContext(ctx); id != "" {
		return log.With("correlation_id", id)
	}
	return log
}
