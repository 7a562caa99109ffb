// Package ingest receives Telegram updates by webhook or long polling and feeds them to one handler.
package ingest

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	tele "gopkg.in/telebot.v3"

	"github.com/Proton-105/tasklink-bot/internal/domain"
	apperrors "github.com/Proton-105/tasklink-bot/internal/errors"
	"github.com/Proton-105/tasklink-bot/pkg/metrics"
)

// Update outcomes recorded in updates_received_total.
const (
	OutcomeHandled    = "handled"
	OutcomeIgnored    = "ignored"
	OutcomeParseError = "parse_error"
	OutcomeFailed     = "failed"
)

// AllowedUpdates is the only update kind requested from Telegram.
var AllowedUpdates = []string{"message"}

// Handler processes one normalized update. Returned errors are logged, never retried.
type Handler interface {
	HandleUpdate(ctx context.Context, u domain.InboundUpdate) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, u domain.InboundUpdate) error

func (f HandlerFunc) HandleUpdate(ctx context.Context, u domain.InboundUpdate) error {
	return f(ctx, u)
}

// UpdateSource delivers updates to h one at a time until ctx is cancelled.
type UpdateSource interface {
	Name() string
	Run(ctx context.Context, h Handler) error
}

// Fetcher pulls updates from the Bot API.
type Fetcher interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]tele.Update, error)
	RemoveWebhook(ctx context.Context, dropPending bool) error
}

// WebhookConfig describes the webhook registration.
type WebhookConfig struct {
	URL         string
	Secret      string
	DropPending bool
}

// Registrar installs a webhook with the Bot API.
type Registrar interface {
	SetWebhook(ctx context.Context, cfg WebhookConfig) error
}

// Normalize converts a raw update into an InboundUpdate. ok is false for updates that carry
// nothing to handle: non-message updates, group chats and messages without text.
func Normalize(u tele.Update) (in domain.InboundUpdate, ok bool, err error) {
	msg := u.Message
	if msg == nil {
		return domain.InboundUpdate{}, false, nil
	}
	if msg.Chat == nil {
		return domain.InboundUpdate{}, false, apperrors.NewParseError("message without chat", nil)
	}
	if msg.Chat.Type != tele.ChatPrivate {
		return domain.InboundUpdate{}, false, nil
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return domain.InboundUpdate{}, false, nil
	}

	return domain.InboundUpdate{
		UpdateID:        int64(u.ID),
		ChatID:          msg.Chat.ID,
		ChatDisplayName: displayName(msg),
		Text:            text,
	}, true, nil
}

func displayName(msg *tele.Message) string {
	chat := msg.Chat
	name := strings.TrimSpace(chat.FirstName + " " + chat.LastName)
	if name == "" && msg.Sender != nil {
		name = strings.TrimSpace(msg.Sender.FirstName + " " + msg.Sender.LastName)
	}
	if name == "" && chat.Username != "" {
		name = "@" + chat.Username
	}
	return name
}

// deliver normalizes u and hands it to h, recording the outcome. It never returns an error.
func deliver(ctx context.Context, source string, h Handler, u tele.Update, log *slog.Logger) {
	in, ok, err := Normalize(u)
	switch {
	case err != nil:
		metrics.RecordUpdate(source, OutcomeParseError)
		log.WarnContext(ctx, "skipping malformed update", "update_id", u.ID, "error", err)
		return
	case !ok:
		metrics.RecordUpdate(source, OutcomeIgnored)
		return
	}

	if err := h.HandleUpdate(ctx, in); err != nil {
		metrics.RecordUpdate(source, OutcomeFailed)
		if !errors.Is(err, context.Canceled) {
			log.ErrorContext(ctx, "update handling failed", "update_id", in.UpdateID, "chat_id", in.ChatID, "error", err)
		}
		return
	}
	metrics.RecordUpdate(source, OutcomeHandled)
}
