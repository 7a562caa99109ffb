package errors

import (
	"context"
	"errors"
	"log/slog"

	"github.com/getsentry/sentry-go"

	"github.com/Proton-105/tasklink-bot/pkg/logger"
	"github.com/Proton-105/tasklink-bot/pkg/metrics"
)

const defaultUserMessage = "Something went wrong. Please try again later"

// Handler logs, counts and reports errors, returning the text safe to show a user.
type Handler struct {
	log           *slog.Logger
	sentryEnabled bool
}

func NewHandler(log *slog.Logger, sentryEnabled bool) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		log:           log,
		sentryEnabled: sentryEnabled,
	}
}

// Handle records err and returns the user-facing message and whether the operation may be retried.
func (h *Handler) Handle(ctx context.Context, err error) (string, bool) {
	if err == nil {
		return "", false
	}

	if ctx == nil {
		ctx = context.Background()
	}

	log := logger.FromContext(ctx, h.log)

	var appErr *AppError
	if errors.As(err, &appErr) && appErr != nil {
		level := slog.LevelWarn
		if appErr.Severity == SeverityHigh || appErr.Severity == SeverityCritical {
			level = slog.LevelError
		}
		log.Log(ctx, level, "application error",
			slog.String("error_code", appErr.Code),
			slog.String("message", err.Error()),
			slog.String("severity", string(appErr.Severity)),
			slog.Bool("retryable", appErr.Retryable),
		)
		metrics.RecordError(appErr.Code, string(appErr.Severity))

		if h.sentryEnabled && level == slog.LevelError {
			h.sendToSentry(ctx, err)
		}

		userMessage := appErr.UserMessage
		if userMessage == "" {
			userMessage = defaultUserMessage
		}

		return userMessage, appErr.Retryable
	}

	log.Error("unknown error",
		slog.String("message", err.Error()),
		slog.String("severity", string(SeverityHigh)),
	)
	metrics.RecordError("unknown", string(SeverityHigh))

	if h.sentryEnabled {
		h.sendToSentry(ctx, err)
	}

	return defaultUserMessage, false
}

func (h *Handler) sendToSentry(ctx context.Context, err error) {
	sentry.WithScope(func(scope *sentry.Scope) {
		var appErr *AppError
		if errors.As(err, &appErr) && appErr != nil {
			if appErr.Code != "" {
				scope.SetTag("code", appErr.Code)
			}

			if appErr.Severity != "" {
				scope.SetTag("severity", string(appErr.Severity))
			}
		}
		if id := logger.CorrelationIDFromContext(ctx); id != "" {
			scope.SetTag("correlation_id", id)
		}

		sentry.CaptureException(err)
	})
}
