// Package keyboard builds the reply keyboards attached to bot messages.
package keyboard

import (
	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/tasklink-bot/internal/i18n"
)

// CommandMenu builds a reply keyboard with the commands that make sense for the chat's link state.
func CommandMenu(t i18n.Translator, linked bool) *telebot.ReplyMarkup {
	markup := &telebot.ReplyMarkup{
		ResizeKeyboard:  true,
		OneTimeKeyboard: false,
	}

	lookup := func(key string) string {
		if t == nil {
			return key
		}
		return t.T(key)
	}

	statusBtn := markup.Text(lookup("keyboard.status"))
	if !linked {
		markup.Reply(markup.Row(statusBtn))
		return markup
	}

	unlinkBtn := markup.Text(lookup("keyboard.unlink"))
	markup.Reply(markup.Row(statusBtn, unlinkBtn))
	return markup
}

// Remove hides any reply keyboard previously shown.
func Remove() *telebot.ReplyMarkup {
	return &telebot.ReplyMarkup{RemoveKeyboard: true}
}
