// Package handlers implements the bot's chat commands.
package handlers

import (
	"context"

	"github.com/Proton-105/tasklink-bot/internal/domain"
	"github.com/Proton-105/tasklink-bot/internal/linker"
	"github.com/Proton-105/tasklink-bot/internal/messenger"
)

// Command names used for routing, logs and metrics.
const (
	CommandLink   = "link"
	CommandStart  = "start"
	CommandStatus = "status"
	CommandUnlink = "unlink"
)

// Request is one routed inbound message.
type Request struct {
	domain.InboundUpdate
	Command string
	Args    []string
}

// Handler processes a routed request. A returned error means the request could not be served
// and is turned into a generic reply by middleware.
type Handler func(ctx context.Context, req *Request) error

// Middleware wraps handlers with additional behavior.
type Middleware func(Handler) Handler

// Sender delivers a reply; it reports failures instead of returning them.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string, opts ...messenger.Option) bool
}

// Linker is the subset of the account linker the chat commands use.
type Linker interface {
	Bind(ctx context.Context, code string, chatID int64, displayName string) (linker.LinkResult, error)
	UnbindByChat(ctx context.Context, chatID int64) (bool, error)
	StatusForChat(ctx context.Context, chatID int64) (linker.Status, error)
}
