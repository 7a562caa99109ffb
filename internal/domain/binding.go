// Package domain holds the value types exchanged between the bot components.
package domain

import "time"

// Binding associates an application user with a Telegram chat.
type Binding struct {
	UserID      int64
	ChatID      int64
	DisplayName string
	LinkedAt    time.Time
}

// InboundUpdate is a normalized inbound chat message.
type InboundUpdate struct {
	UpdateID        int64
	ChatID          int64
	ChatDisplayName string
	Text            string
}
