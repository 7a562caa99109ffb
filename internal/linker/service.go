// Package linker binds Telegram chats to application accounts using one-time link codes.
package linker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/Proton-105/tasklink-bot/internal/binding"
	"github.com/Proton-105/tasklink-bot/internal/domain"
	apperrors "github.com/Proton-105/tasklink-bot/internal/errors"
	"github.com/Proton-105/tasklink-bot/internal/linkcode"
	"github.com/Proton-105/tasklink-bot/internal/ratelimit"
	"github.com/Proton-105/tasklink-bot/pkg/metrics"
)

// LinkResult describes a successful bind.
type LinkResult struct {
	UserID      int64
	ChatID      int64
	AccountName string
}

// Status is the link state of an account or chat.
type Status struct {
	Linked      bool   `json:"linked"`
	DisplayName string `json:"display_name,omitempty"`
	Account     string `json:"-"`
	UserID      int64  `json:"-"`
}

// LinkOffer is returned to the web application when it asks how to link a user.
type LinkOffer struct {
	Linked      bool       `json:"linked"`
	DisplayName string     `json:"display_name,omitempty"`
	LinkURL     string     `json:"link_url,omitempty"`
	Code        string     `json:"code,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// Service orchestrates link codes and bindings.
type Service struct {
	codes       linkcode.Store
	bindings    binding.Store
	botUsername string
	limiter     ratelimit.Limiter
	issueRule   ratelimit.Rule
	log         *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithIssueLimit rate-limits RequestLink per user.
func WithIssueLimit(limiter ratelimit.Limiter, rule ratelimit.Rule) Option {
	return func(s *Service) {
		s.limiter = limiter
		s.issueRule = rule
	}
}

func NewService(codes linkcode.Store, bindings binding.Store, botUsername string, log *slog.Logger, opts ...Option) *Service {
	if log == nil {
		log = slog.Default()
	}
	s := &Service{
		codes:       codes,
		bindings:    bindings,
		botUsername: botUsername,
		log:         log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Bind redeems code and links chatID to the code's owner. Code errors are returned unchanged.
// The code is spent even when the chat turns out to belong to someone else.
func (s *Service) Bind(ctx context.Context, code string, chatID int64, displayName string) (LinkResult, error) {
	userID, err := s.codes.Consume(ctx, code)
	if err != nil {
		metrics.RecordLinkAttempt(linkResultLabel(err))
		return LinkResult{}, err
	}

	err = s.bindings.Bind(ctx, domain.Binding{
		UserID:      userID,
		ChatID:      chatID,
		DisplayName: displayName,
		LinkedAt:    time.Now(),
	})
	if err != nil {
		metrics.RecordLinkAttempt(linkResultLabel(err))
		if errors.Is(err, apperrors.ErrConflict) {
			s.log.WarnContext(ctx, "link rejected: chat bound to another user", "chat_id", chatID, "user_id", userID)
		}
		return LinkResult{}, err
	}

	metrics.RecordLinkAttempt("linked")
	s.log.InfoContext(ctx, "chat linked", "chat_id", chatID, "user_id", userID)

	account, err := s.bindings.AccountName(ctx, userID)
	if err != nil {
		s.log.WarnContext(ctx, "account name lookup failed", "user_id", userID, "error", err)
		account = displayName
	}

	return LinkResult{UserID: userID, ChatID: chatID, AccountName: account}, nil
}

// Unbind clears the user's binding. Unbound users succeed silently.
func (s *Service) Unbind(ctx context.Context, userID int64) error {
	if err := s.bindings.UnbindUser(ctx, userID); err != nil {
		return fmt.Errorf("unbind user %d: %w", userID, err)
	}
	s.log.InfoContext(ctx, "user unlinked", "user_id", userID)
	return nil
}

// UnbindByChat clears the binding owning chatID and reports whether there was one.
func (s *Service) UnbindByChat(ctx context.Context, chatID int64) (bool, error) {
	userID, err := s.bindings.UnbindChat(ctx, chatID)
	if err != nil {
		return false, fmt.Errorf("unbind chat %d: %w", chatID, err)
	}
	if userID != 0 {
		s.log.InfoContext(ctx, "chat unlinked", "chat_id", chatID, "user_id", userID)
	}
	return userID != 0, nil
}

// StatusFor reports whether userID has a chat.
func (s *Service) StatusFor(ctx context.Context, userID int64) (Status, error) {
	b, err := s.bindings.GetByUser(ctx, userID)
	return s.status(ctx, b, err)
}

// StatusForChat reports which account owns chatID.
func (s *Service) StatusForChat(ctx context.Context, chatID int64) (Status, error) {
	b, err := s.bindings.GetByChat(ctx, chatID)
	return s.status(ctx, b, err)
}

func (s *Service) status(ctx context.Context, b domain.Binding, err error) (Status, error) {
	if errors.Is(err, apperrors.ErrNotBound) {
		return Status{}, nil
	}
	if err != nil {
		return Status{}, err
	}

	account, nameErr := s.bindings.AccountName(ctx, b.UserID)
	if nameErr != nil {
		account = b.DisplayName
	}
	return Status{Linked: true, DisplayName: b.DisplayName, Account: account, UserID: b.UserID}, nil
}

// RequestLink returns the current binding or a fresh deep link for userID.
func (s *Service) RequestLink(ctx context.Context, userID int64) (LinkOffer, error) {
	st, err := s.StatusFor(ctx, userID)
	if err != nil {
		return LinkOffer{}, err
	}
	if st.Linked {
		return LinkOffer{Linked: true, DisplayName: st.DisplayName}, nil
	}

	if s.limiter != nil && s.issueRule.Enabled() {
		res, err := s.limiter.Check(ctx, "link_issue:"+strconv.FormatInt(userID, 10), s.issueRule.Limit, s.issueRule.Window)
		if errors.Is(err, ratelimit.ErrLimitExceeded) {
			return LinkOffer{}, apperrors.NewRateLimitError(res.RetryAfter(time.Now()))
		}
		if err != nil {
			s.log.WarnContext(ctx, "link issue limiter unavailable", "error", err)
		}
	}

	entry, err := s.codes.Issue(ctx, userID)
	if err != nil {
		return LinkOffer{}, fmt.Errorf("issue link code: %w", err)
	}

	expires := entry.ExpiresAt
	return LinkOffer{
		Linked:    false,
		LinkURL:   DeepLink(s.botUsername, entry.Code),
		Code:      entry.Code,
		ExpiresAt: &expires,
	}, nil
}

// DeepLink builds the t.me URL that opens the bot with /start <code>.
func DeepLink(botUsername, code string) string {
	u := url.URL{
		Scheme:   "https",
		Host:     "t.me",
		Path:     "/" + botUsername,
		RawQuery: url.Values{"start": []string{code}}.Encode(),
	}
	return u.String()
}

func linkResultLabel(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		return "not_found"
	case errors.Is(err, apperrors.ErrExpired):
		return "expired"
	case errors.Is(err, apperrors.ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}
