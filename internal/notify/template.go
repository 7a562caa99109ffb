package notify

import (
	"github.com/Proton-105/tasklink-bot/internal/domain"
	"github.com/Proton-105/tasklink-bot/internal/i18n"
	"github.com/Proton-105/tasklink-bot/internal/messenger"
)

const (
	titleMaxLen = 200
	nameMaxLen  = 100
)

// render builds the HTML message for event. All user-supplied fields are escaped.
func (r *Router) render(e domain.NotificationEvent) string {
	p := e.Payload
	actor := e.ActorName
	if actor == "" {
		actor = "?"
	}

	return r.tr.F("notify."+string(e.Kind), i18n.Vars{
		"actor":   messenger.SafeText(actor, nameMaxLen),
		"task":    messenger.SafeText(p.TaskTitle, titleMaxLen),
		"parent":  messenger.SafeText(p.ParentTaskTitle, titleMaxLen),
		"status":  messenger.SafeText(p.Status, nameMaxLen),
		"comment": messenger.SafeText(p.Comment, r.commentMaxLen),
	})
}
