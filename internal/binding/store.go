// Package binding persists the one-to-one association between users and Telegram chats.
package binding

import (
	"context"
	"fmt"

	"github.com/Proton-105/tasklink-bot/internal/domain"
	apperrors "github.com/Proton-105/tasklink-bot/internal/errors"
)

// Store reads and writes bindings. Every user has at most one chat and every chat at most one user.
type Store interface {
	// GetByUser returns ErrNotBound when the user has no chat.
	GetByUser(ctx context.Context, userID int64) (domain.Binding, error)
	// GetByChat returns ErrNotBound when no user owns the chat.
	GetByChat(ctx context.Context, chatID int64) (domain.Binding, error)
	// Bind links b.UserID to b.ChatID, replacing the user's previous chat.
	// It returns ErrConflict without changes when the chat belongs to another user.
	Bind(ctx context.Context, b domain.Binding) error
	// UnbindUser clears the user's chat. Unbound users are not an error.
	UnbindUser(ctx context.Context, userID int64) error
	// UnbindChat clears whichever user owns the chat and returns that user, or 0.
	UnbindChat(ctx context.Context, chatID int64) (int64, error)
	// AccountName returns the display name of the application account.
	AccountName(ctx context.Context, userID int64) (string, error)
}

func errNotBound(what string, id int64) error {
	return apperrors.NewNotBoundError(fmt.Sprintf("%s %d is not bound", what, id))
}

func errConflict(chatID int64) error {
	return apperrors.NewConflictError(fmt.Sprintf("chat %d is bound to another user", chatID))
}

func fallbackName(userID int64) string {
	return fmt.Sprintf("user #%d", userID)
}
