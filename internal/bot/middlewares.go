package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/Proton-105/tasklink-bot/internal/bot/handlers"
	apperrors "github.com/Proton-105/tasklink-bot/internal/errors"
	"github.com/Proton-105/tasklink-bot/internal/i18n"
	"github.com/Proton-105/tasklink-bot/internal/idempotency"
	"github.com/Proton-105/tasklink-bot/internal/ratelimit"
	"github.com/Proton-105/tasklink-bot/pkg/logger"
	"github.com/Proton-105/tasklink-bot/pkg/metrics"
)

// RecoveryMiddleware catches panics, reports them via the centralized handler, and notifies the chat.
func RecoveryMiddleware(log *slog.Logger, errHandler *apperrors.Handler, sender handlers.Sender, tr i18n.Translator) handlers.Middleware {
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		return func(ctx context.Context, req *handlers.Request) (err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.FromContext(ctx, log).ErrorContext(ctx, "panic recovered in handler",
						slog.Any("panic", r),
						slog.String("stack", string(debug.Stack())),
					)
					if errHandler != nil {
						errHandler.Handle(ctx, apperrors.NewInternalError("panic recovered in handler", fmt.Errorf("%v", r)))
					}
					sender.Send(ctx, req.ChatID, tr.T("errors.generic"))
					err = nil
				}
			}()

			return next(ctx, req)
		}
	}
}

// ErrorHandlingMiddleware reports handler failures and answers the chat with a generic message.
func ErrorHandlingMiddleware(errHandler *apperrors.Handler, sender handlers.Sender, tr i18n.Translator) handlers.Middleware {
	return func(next handlers.Handler) handlers.Handler {
		return func(ctx context.Context, req *handlers.Request) error {
			err := next(ctx, req)
			if err == nil {
				return nil
			}

			if errHandler != nil {
				errHandler.Handle(ctx, err)
			}
			sender.Send(ctx, req.ChatID, tr.T("errors.generic"))
			return nil
		}
	}
}

// LoggingMiddleware attaches a correlation id and logs each routed command.
// Message text is never logged since it may carry a link code.
func LoggingMiddleware(log *slog.Logger) handlers.Middleware {
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		return func(ctx context.Context, req *handlers.Request) error {
			if logger.CorrelationIDFromContext(ctx) == "" {
				ctx = logger.WithCorrelationID(ctx, "")
			}
			l := logger.FromContext(ctx, log)

			start := time.Now()
			l.InfoContext(ctx, "handling update",
				slog.Int64("update_id", req.UpdateID),
				slog.Int64("chat_id", req.ChatID),
				slog.String("command", req.Command),
			)

			err := next(ctx, req)

			l.InfoContext(ctx, "handled update",
				slog.Int64("update_id", req.UpdateID),
				slog.String("command", req.Command),
				slog.Duration("duration", time.Since(start)),
				slog.Any("error", err),
			)
			return err
		}
	}
}

// IdempotencyMiddleware runs each update id at most once.
func IdempotencyMiddleware(manager idempotency.Manager, ttl time.Duration, log *slog.Logger) handlers.Middleware {
	if manager == nil {
		return func(next handlers.Handler) handlers.Handler { return next }
	}
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		return func(ctx context.Context, req *handlers.Request) error {
			if req.UpdateID == 0 {
				return next(ctx, req)
			}

			key := idempotency.UpdateKey(req.UpdateID)
			result, err := manager.Execute(ctx, key, ttl, func(execCtx context.Context) (interface{}, error) {
				return nil, next(execCtx, req)
			})
			switch {
			case errors.Is(err, idempotency.ErrRequestInProgress):
				log.DebugContext(ctx, "update already in progress", slog.Int64("update_id", req.UpdateID))
				return nil
			case err != nil:
				return err
			case result != nil && result.FromCache:
				log.InfoContext(ctx, "duplicate update skipped", slog.Int64("update_id", req.UpdateID))
			}
			return nil
		}
	}
}

// RateLimitMiddleware enforces the inbound per-chat limit. Limiter failures let the update through.
func RateLimitMiddleware(limiter ratelimit.Limiter, rules *ratelimit.Rules, sender handlers.Sender, tr i18n.Translator, log *slog.Logger) handlers.Middleware {
	if limiter == nil || rules == nil || !rules.Inbound.Enabled() {
		return func(next handlers.Handler) handlers.Handler { return next }
	}
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		return func(ctx context.Context, req *handlers.Request) error {
			if rules.IsWhitelisted(req.ChatID) {
				return next(ctx, req)
			}

			key := "chat:" + strconv.FormatInt(req.ChatID, 10)
			res, err := limiter.Check(ctx, key, rules.Inbound.Limit, rules.Inbound.Window)
			if errors.Is(err, ratelimit.ErrLimitExceeded) {
				log.WarnContext(ctx, "inbound rate limit exceeded", slog.Int64("chat_id", req.ChatID))
				seconds := res.RetryAfter(time.Now())
				sender.Send(ctx, req.ChatID, tr.F("errors.rate_limited", i18n.Vars{"seconds": strconv.Itoa(seconds)}))
				return nil
			}
			if err != nil {
				log.WarnContext(ctx, "rate limiter error", slog.Int64("chat_id", req.ChatID), slog.Any("error", err))
			}
			return next(ctx, req)
		}
	}
}

// MetricsMiddleware measures execution time and status per command.
func MetricsMiddleware(next handlers.Handler) handlers.Handler {
	return func(ctx context.Context, req *handlers.Request) error {
		start := time.Now()
		err := next(ctx, req)

		status := "ok"
		if err != nil {
			status = "error"
		}
		metrics.RecordCommand(req.Command, status, time.Since(start))
		return err
	}
}
