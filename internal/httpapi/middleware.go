package httpapi

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Proton-105/tasklink-bot/pkg/logger"
)

// HeaderInternalKey authenticates calls from the task service.
const HeaderInternalKey = "X-Internal-Key"

// CorrelationID stores a correlation id in the request context, reusing the incoming header.
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := logger.WithCorrelationID(c.Request.Context(), c.GetHeader(logger.HeaderCorrelationID))
		c.Request = c.Request.WithContext(ctx)
		c.Header(logger.HeaderCorrelationID, logger.CorrelationIDFromContext(ctx))
		c.Next()
	}
}

// RequestLogger logs each request with a level chosen by status.
func RequestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		l := logger.FromContext(c.Request.Context(), log)
		attrs := []any{
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", status),
			slog.Duration("latency", time.Since(start)),
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, slog.String("errors", c.Errors.String()))
		}

		switch {
		case status >= http.StatusInternalServerError:
			l.ErrorContext(c.Request.Context(), "handled http request", attrs...)
		case status >= http.StatusBadRequest:
			l.WarnContext(c.Request.Context(), "handled http request", attrs...)
		default:
			l.InfoContext(c.Request.Context(), "handled http request", attrs...)
		}
	}
}

// Recovery turns panics into 500 responses.
func Recovery(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.FromContext(c.Request.Context(), log).Error("panic recovered in http handler",
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())),
				)
				abortWithError(c, http.StatusInternalServerError, "internal", "internal error")
			}
		}()
		c.Next()
	}
}

// InternalAuth requires the shared internal key. An empty key disables the internal routes.
func InternalAuth(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key == "" {
			abortWithError(c, http.StatusForbidden, "forbidden", "internal api disabled")
			return
		}
		if subtle.ConstantTimeCompare([]byte(c.GetHeader(HeaderInternalKey)), []byte(key)) != 1 {
			abortWithError(c, http.StatusUnauthorized, "unauthorized", "invalid internal key")
			return
		}
		c.Next()
	}
}
