// Package httpapi exposes the linking REST API, the internal notification hook, the
// Telegram webhook and operational endpoints.
package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apperrors "github.com/Proton-105/tasklink-bot/internal/errors"
	"github.com/Proton-105/tasklink-bot/internal/health"
)

// WebhookPath is where Telegram delivers updates in webhook mode.
const WebhookPath = "/telegram/webhook"

// Deps are the services behind the HTTP surface. Webhook and Health may be nil.
type Deps struct {
	Linker      Linker
	Notifier    Notifier
	ErrHandler  *apperrors.Handler
	Webhook     http.Handler
	Health      *health.Checker
	InternalKey string
}

// NewRouter builds the gin engine.
func NewRouter(deps Deps, log *slog.Logger) *gin.Engine {
	if log == nil {
		log = slog.Default()
	}
	errs := deps.ErrHandler
	if errs == nil {
		errs = apperrors.NewHandler(log, false)
	}

	r := gin.New()
	r.Use(Recovery(log), CorrelationID(), RequestLogger(log))

	h := &handler{linker: deps.Linker, notifier: deps.Notifier, errs: errs}

	api := r.Group("/api/v1/telegram")
	api.GET("/link", h.getLink)
	api.DELETE("/link", h.deleteLink)
	api.GET("/status", h.getStatus)

	internal := r.Group("/internal/v1", InternalAuth(deps.InternalKey))
	internal.POST("/notifications", h.postNotification)

	if deps.Webhook != nil {
		r.POST(WebhookPath, gin.WrapH(deps.Webhook))
	}

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", func(c *gin.Context) {
		if deps.Health == nil {
			c.JSON(http.StatusOK, health.Report{Healthy: true, Components: map[string]string{}})
			return
		}
		report := deps.Health.Check(c.Request.Context())
		status := http.StatusOK
		if !report.Healthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, report)
	})

	return r
}
