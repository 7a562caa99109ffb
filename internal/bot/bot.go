// Package bot turns inbound Telegram messages into link, status and unlink operations.
package bot

import (
	"context"
	"log/slog"
	"time"

	"github.com/Proton-105/tasklink-bot/internal/bot/handlers"
	apperrors "github.com/Proton-105/tasklink-bot/internal/errors"
	"github.com/Proton-105/tasklink-bot/internal/i18n"
	"github.com/Proton-105/tasklink-bot/internal/idempotency"
	"github.com/Proton-105/tasklink-bot/internal/ingest"
	"github.com/Proton-105/tasklink-bot/internal/ratelimit"
)

// Deps are the collaborators the command pipeline needs. Optional fields may be nil.
type Deps struct {
	Linker     handlers.Linker
	Sender     handlers.Sender
	Translator i18n.Translator
	ErrHandler *apperrors.Handler

	Idempotency    idempotency.Manager
	IdempotencyTTL time.Duration

	Limiter ratelimit.Limiter
	Rules   *ratelimit.Rules
}

// Bot feeds one update source into the command router.
type Bot struct {
	source ingest.UpdateSource
	router *Router
	log    *slog.Logger
}

// New wires the command pipeline for botUsername and attaches it to source.
func New(source ingest.UpdateSource, botUsername string, deps Deps, log *slog.Logger) *Bot {
	if log == nil {
		log = slog.Default()
	}

	return &Bot{
		source: source,
		router: NewCommandRouter(botUsername, deps, log),
		log:    log,
	}
}

// NewCommandRouter registers the middleware chain and the chat commands.
func NewCommandRouter(botUsername string, deps Deps, log *slog.Logger) *Router {
	router := NewRouter(botUsername, log)

	router.Use(RecoveryMiddleware(log, deps.ErrHandler, deps.Sender, deps.Translator))
	router.Use(LoggingMiddleware(log))
	router.Use(IdempotencyMiddleware(deps.Idempotency, deps.IdempotencyTTL, log))
	router.Use(RateLimitMiddleware(deps.Limiter, deps.Rules, deps.Sender, deps.Translator, log))
	router.Use(ErrorHandlingMiddleware(deps.ErrHandler, deps.Sender, deps.Translator))
	router.Use(MetricsMiddleware)

	link := handlers.NewLinkHandler(deps.Linker, deps.Sender, deps.Translator, log)
	router.SetLinkHandler(link)
	router.RegisterCommand(CommandStart, handlers.CommandStart, 1, handlers.NewStartHandler(link, deps.Sender, deps.Translator))
	router.RegisterCommand(CommandStatus, handlers.CommandStatus, 0, handlers.NewStatusHandler(deps.Linker, deps.Sender, deps.Translator))
	router.RegisterCommand(CommandUnlink, handlers.CommandUnlink, 0, handlers.NewUnlinkHandler(deps.Linker, deps.Sender, deps.Translator))

	return router
}

// Run consumes updates until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	b.log.Info("starting update ingestion", "source", b.source.Name())
	err := b.source.Run(ctx, b.router)
	b.log.Info("update ingestion stopped", "source", b.source.Name())
	return err
}

// Router exposes the command router, e.g. for feeding updates directly.
func (b *Bot) Router() *Router {
	return b.router
}
