package handlers

import (
	"context"
	"fmt"

	"github.com/Proton-105/tasklink-bot/internal/bot/keyboard"
	"github.com/Proton-105/tasklink-bot/internal/i18n"
	"github.com/Proton-105/tasklink-bot/internal/messenger"
)

// NewStatusHandler reports which account, if any, the chat is linked to.
func NewStatusHandler(l Linker, sender Sender, tr i18n.Translator) Handler {
	return func(ctx context.Context, req *Request) error {
		st, err := l.StatusForChat(ctx, req.ChatID)
		if err != nil {
			return fmt.Errorf("status for chat: %w", err)
		}

		if !st.Linked {
			sender.Send(ctx, req.ChatID, tr.T("status.unlinked"), messenger.WithMarkup(keyboard.Remove()))
			return nil
		}

		text := tr.F("status.linked", i18n.Vars{"account": messenger.Escape(st.Account)})
		sender.Send(ctx, req.ChatID, text, messenger.WithMarkup(keyboard.CommandMenu(tr, true)))
		return nil
	}
}
