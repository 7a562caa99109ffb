package handlers

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Proton-105/tasklink-bot/internal/bot/keyboard"
	apperrors "github.com/Proton-105/tasklink-bot/internal/errors"
	"github.com/Proton-105/tasklink-bot/internal/i18n"
	"github.com/Proton-105/tasklink-bot/internal/messenger"
)

// NewLinkHandler redeems the code in the request text and reports the outcome to the chat.
// Unknown, expired and conflicting codes are answered, not returned as errors.
func NewLinkHandler(l Linker, sender Sender, tr i18n.Translator, log *slog.Logger) Handler {
	if log == nil {
		log = slog.Default()
	}

	return func(ctx context.Context, req *Request) error {
		res, err := l.Bind(ctx, req.Text, req.ChatID, req.ChatDisplayName)

		var key string
		switch {
		case err == nil:
			text := tr.F("link.success", i18n.Vars{"account": messenger.Escape(res.AccountName)})
			sender.Send(ctx, req.ChatID, text, messenger.WithMarkup(keyboard.CommandMenu(tr, true)))
			return nil
		case errors.Is(err, apperrors.ErrNotFound):
			key = "link.not_found"
		case errors.Is(err, apperrors.ErrExpired):
			key = "link.expired"
		case errors.Is(err, apperrors.ErrConflict):
			key = "link.conflict"
		default:
			return err
		}

		log.InfoContext(ctx, "link attempt refused", "chat_id", req.ChatID, "reason", key)
		sender.Send(ctx, req.ChatID, tr.T(key))
		return nil
	}
}
