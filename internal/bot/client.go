package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	telebot "gopkg.in/telebot.v3"

	apperrors "github.com/Proton-105/tasklink-bot/internal/errors"
	"github.com/Proton-105/tasklink-bot/internal/ingest"
	"github.com/Proton-105/tasklink-bot/internal/messenger"
	"github.com/Proton-105/tasklink-bot/pkg/config"
)

// Client talks to the Telegram Bot API. Every call is bounded by its context: a cancelled
// context returns immediately while the underlying request finishes in the background
// within the HTTP client timeout.
type Client struct {
	api *telebot.Bot
	log *slog.Logger
}

// NewClient builds a client without contacting Telegram.
func NewClient(cfg config.BotConfig, log *slog.Logger) (*Client, error) {
	if log == nil {
		log = slog.Default()
	}

	api, err := telebot.NewBot(telebot.Settings{
		URL:       cfg.APIURL,
		Token:     cfg.Token,
		ParseMode: telebot.ModeHTML,
		Offline:   true,
		Client:    &http.Client{Timeout: cfg.RequestTimeout + cfg.PollTimeout},
		OnError: func(err error, _ telebot.Context) {
			log.Error("telebot error", "error", err)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("initialize telebot: %w", err)
	}

	return &Client{api: api, log: log}, nil
}

// SendText sends an HTML message. Telegram errors are returned unwrapped for classification.
func (c *Client) SendText(ctx context.Context, chatID int64, text string, opts messenger.SendOptions) error {
	sendOpts := &telebot.SendOptions{
		ParseMode:             telebot.ModeHTML,
		DisableWebPagePreview: opts.DisablePreview,
	}
	if opts.ReplyMarkup != nil {
		sendOpts.ReplyMarkup = opts.ReplyMarkup
	}

	_, err := call(ctx, func() (*telebot.Message, error) {
		return c.api.Send(telebot.ChatID(chatID), text, sendOpts)
	})
	return err
}

// GetUpdates long-polls for updates starting at offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]telebot.Update, error) {
	params := map[string]any{
		"offset":          offset,
		"timeout":         int(timeout / time.Second),
		"allowed_updates": ingest.AllowedUpdates,
	}

	data, err := call(ctx, func() ([]byte, error) {
		return c.api.Raw("getUpdates", params)
	})
	if err != nil {
		return nil, apperrors.NewTransportError("getUpdates", err)
	}

	var resp struct {
		Result []telebot.Update `json:"result"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, apperrors.NewParseError("decode getUpdates response", err)
	}
	return resp.Result, nil
}

// SetWebhook registers the public webhook URL.
func (c *Client) SetWebhook(ctx context.Context, cfg ingest.WebhookConfig) error {
	hook := &telebot.Webhook{
		AllowedUpdates: ingest.AllowedUpdates,
		DropUpdates:    cfg.DropPending,
		SecretToken:    cfg.Secret,
		Endpoint:       &telebot.WebhookEndpoint{PublicURL: cfg.URL},
	}

	_, err := call(ctx, func() (struct{}, error) {
		return struct{}{}, c.api.SetWebhook(hook)
	})
	if err != nil {
		return apperrors.NewTransportError("setWebhook", err)
	}
	return nil
}

// RemoveWebhook switches the bot back to getUpdates.
func (c *Client) RemoveWebhook(ctx context.Context, dropPending bool) error {
	_, err := call(ctx, func() (struct{}, error) {
		return struct{}{}, c.api.RemoveWebhook(dropPending)
	})
	if err != nil {
		return apperrors.NewTransportError("deleteWebhook", err)
	}
	return nil
}

// HealthCheck verifies the token with getMe.
func (c *Client) HealthCheck(ctx context.Context) error {
	_, err := call(ctx, func() ([]byte, error) {
		return c.api.Raw("getMe", nil)
	})
	if err != nil {
		return apperrors.NewTransportError("getMe", err)
	}
	return nil
}

// call runs fn and waits for it or for ctx, whichever comes first.
func call[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		val T
		err error
	}

	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{val: v, err: err}
	}()

	select {
	case r := <-done:
		return r.val, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
