package keyboard_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/tasklink-bot/internal/bot/keyboard"
	"github.com/Proton-105/tasklink-bot/internal/i18n"
)

func rows(t *testing.T, linked bool) [][]string {
	t.Helper()

	manager, err := i18n.Load("en")
	require.NoError(t, err)

	markup := keyboard.CommandMenu(manager.Translator("en"), linked)
	require.True(t, markup.ResizeKeyboard)

	var out [][]string
	for _, row := range markup.ReplyKeyboard {
		var texts []string
		for _, btn := range row {
			texts = append(texts, btn.Text)
		}
		out = append(out, texts)
	}
	return out
}

func TestCommandMenu(t *testing.T) {
	assert.Equal(t, [][]string{{"/status", "/unlink"}}, rows(t, true))
	assert.Equal(t, [][]string{{"/status"}}, rows(t, false))
}

func TestCommandMenu_NilTranslator(t *testing.T) {
	markup := keyboard.CommandMenu(nil, true)
	require.Len(t, markup.ReplyKeyboard, 1)
	assert.Equal(t, "keyboard.status", markup.ReplyKeyboard[0][0].Text)
}

func TestRemove(t *testing.T) {
	assert.True(t, keyboard.Remove().RemoveKeyboard)
}
