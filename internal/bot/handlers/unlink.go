package handlers

import (
	"context"
	"fmt"

	"github.com/Proton-105/tasklink-bot/internal/bot/keyboard"
	"github.com/Proton-105/tasklink-bot/internal/i18n"
	"github.com/Proton-105/tasklink-bot/internal/messenger"
)

// NewUnlinkHandler clears the chat's binding.
func NewUnlinkHandler(l Linker, sender Sender, tr i18n.Translator) Handler {
	return func(ctx context.Context, req *Request) error {
		removed, err := l.UnbindByChat(ctx, req.ChatID)
		if err != nil {
			return fmt.Errorf("unlink chat: %w", err)
		}

		key := "unlink.done"
		if !removed {
			key = "unlink.not_linked"
		}
		sender.Send(ctx, req.ChatID, tr.T(key), messenger.WithMarkup(keyboard.Remove()))
		return nil
	}
}
