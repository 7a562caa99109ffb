// Package notify turns task events into best-effort chat messages for the participants involved.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"slices"

	"github.com/Proton-105/tasklink-bot/internal/domain"
	apperrors "github.com/Proton-105/tasklink-bot/internal/errors"
	"github.com/Proton-105/tasklink-bot/internal/i18n"
	"github.com/Proton-105/tasklink-bot/internal/messenger"
	"github.com/Proton-105/tasklink-bot/pkg/metrics"
)

// DefaultCommentMaxLen caps comment bodies quoted in notifications.
const DefaultCommentMaxLen = 500

// Delivery statuses.
const (
	StatusSent         = "sent"
	StatusFailed       = "failed"
	StatusUnbound      = "unbound"
	StatusLookupFailed = "lookup_failed"
)

// Delivery is the outcome for one recipient.
type Delivery struct {
	UserID int64  `json:"user_id"`
	ChatID int64  `json:"chat_id,omitempty"`
	Status string `json:"status"`
}

// Report lists the deliveries attempted for one event. An empty report means every recipient was suppressed.
type Report struct {
	Kind       domain.NotificationKind `json:"kind"`
	Deliveries []Delivery              `json:"deliveries"`
}

// Sent counts successful deliveries.
func (r Report) Sent() int {
	n := 0
	for _, d := range r.Deliveries {
		if d.Status == StatusSent {
			n++
		}
	}
	return n
}

// Resolver finds the chat bound to a user.
type Resolver interface {
	GetByUser(ctx context.Context, userID int64) (domain.Binding, error)
}

// Sender delivers one message and reports success.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string, opts ...messenger.Option) bool
}

// Router resolves recipients for events and dispatches rendered messages.
type Router struct {
	bindings      Resolver
	sender        Sender
	tr            i18n.Translator
	commentMaxLen int
	log           *slog.Logger
}

func NewRouter(bindings Resolver, sender Sender, tr i18n.Translator, commentMaxLen int, log *slog.Logger) *Router {
	if commentMaxLen <= 0 {
		commentMaxLen = DefaultCommentMaxLen
	}
	if log == nil {
		log = slog.Default()
	}
	return &Router{
		bindings:      bindings,
		sender:        sender,
		tr:            tr,
		commentMaxLen: commentMaxLen,
		log:           log,
	}
}

// Route delivers event to every non-suppressed recipient. Failures are reported, never returned.
func (r *Router) Route(ctx context.Context, event domain.NotificationEvent) Report {
	report := Report{Kind: event.Kind, Deliveries: []Delivery{}}

	recipients := Recipients(event)
	if len(recipients) == 0 {
		metrics.RecordNotification(string(event.Kind), "suppressed")
		r.log.DebugContext(ctx, "notification suppressed", "kind", event.Kind, "actor_id", event.ActorID)
		return report
	}

	text := r.render(event)
	for _, userID := range recipients {
		d := r.deliver(ctx, userID, text)
		metrics.RecordNotification(string(event.Kind), d.Status)
		report.Deliveries = append(report.Deliveries, d)
	}

	r.log.InfoContext(ctx, "notification routed",
		"kind", event.Kind,
		"recipients", len(recipients),
		"sent", report.Sent(),
	)
	return report
}

func (r *Router) deliver(ctx context.Context, userID int64, text string) Delivery {
	b, err := r.bindings.GetByUser(ctx, userID)
	if errors.Is(err, apperrors.ErrNotBound) {
		return Delivery{UserID: userID, Status: StatusUnbound}
	}
	if err != nil {
		r.log.WarnContext(ctx, "binding lookup failed", "user_id", userID, "error", err)
		return Delivery{UserID: userID, Status: StatusLookupFailed}
	}

	if !r.sender.Send(ctx, b.ChatID, text, messenger.WithoutPreview()) {
		return Delivery{UserID: userID, ChatID: b.ChatID, Status: StatusFailed}
	}
	return Delivery{UserID: userID, ChatID: b.ChatID, Status: StatusSent}
}

// Recipients applies the per-kind rules and returns distinct, non-zero user ids in delivery order.
func Recipients(e domain.NotificationEvent) []int64 {
	p := e.Payload

	switch e.Kind {
	case domain.KindTaskAssigned:
		return distinct(e.ActorID, e.RecipientID)
	case domain.KindTaskReassigned:
		if e.RecipientID == p.PreviousExecutorID {
			return nil
		}
		return distinct(0, e.RecipientID)
	case domain.KindStatusChanged:
		switch e.ActorID {
		case p.ExecutorID:
			return distinct(e.ActorID, p.CustomerID)
		case p.CustomerID:
			return distinct(e.ActorID, p.ExecutorID)
		default:
			return distinct(e.ActorID, p.CustomerID, p.ExecutorID)
		}
	case domain.KindSubtaskCompleted:
		return distinct(0, e.RecipientID)
	case domain.KindComment:
		return distinct(e.ActorID, p.CustomerID, p.ExecutorID)
	}
	return nil
}

// distinct drops zero ids, the excluded id and duplicates.
func distinct(exclude int64, ids ...int64) []int64 {
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id == 0 || id == exclude || slices.Contains(out, id) {
			continue
		}
		out = append(out, id)
	}
	return out
}
