// Package messenger sends outbound chat messages without ever failing the caller.
package messenger

import (
	"context"
	"errors"
	"log/slog"
	"time"

	tele "gopkg.in/telebot.v3"

	apperrors "github.com/Proton-105/tasklink-bot/internal/errors"
	"github.com/Proton-105/tasklink-bot/pkg/logger"
	"github.com/Proton-105/tasklink-bot/pkg/metrics"
)

// DefaultTimeout bounds a single send.
const DefaultTimeout = 5 * time.Second

// Send results reported to metrics and logs.
const (
	ResultSent        = "sent"
	ResultThrottled   = "throttled"
	ResultRejected    = "rejected"
	ResultTimeout     = "timeout"
	ResultCircuitOpen = "circuit_open"
	ResultNetwork     = "network"
)

// SendOptions tunes one outbound message.
type SendOptions struct {
	ReplyMarkup    *tele.ReplyMarkup
	DisablePreview bool
}

// Option mutates SendOptions.
type Option func(*SendOptions)

// WithMarkup attaches a keyboard to the message.
func WithMarkup(m *tele.ReplyMarkup) Option {
	return func(o *SendOptions) { o.ReplyMarkup = m }
}

// WithoutPreview disables link previews.
func WithoutPreview() Option {
	return func(o *SendOptions) { o.DisablePreview = true }
}

// Transport delivers HTML-formatted text to a chat.
type Transport interface {
	SendText(ctx context.Context, chatID int64, text string, opts SendOptions) error
}

// Dispatcher wraps a Transport with a deadline, a circuit breaker and failure absorption.
type Dispatcher struct {
	transport Transport
	timeout   time.Duration
	breaker   *apperrors.CircuitBreaker
	log       *slog.Logger
}

func NewDispatcher(transport Transport, timeout time.Duration, log *slog.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		transport: transport,
		timeout:   timeout,
		breaker: apperrors.NewCircuitBreaker(func(err error) bool {
			return Classify(err) != ResultRejected
		}),
		log: log,
	}
}

// Send performs one delivery attempt and reports whether it succeeded. It never panics or returns an error.
func (d *Dispatcher) Send(ctx context.Context, chatID int64, text string, opts ...Option) (ok bool) {
	var o SendOptions
	for _, opt := range opts {
		opt(&o)
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	log := logger.FromContext(ctx, d.log).With("chat_id", chatID)
	defer func() {
		if r := recover(); r != nil {
			log.ErrorContext(ctx, "send panicked", "panic", r)
			metrics.RecordMessage(ResultNetwork)
			ok = false
		}
	}()

	err := d.breaker.Call(func() error {
		return d.transport.SendText(ctx, chatID, text, o)
	})
	if err == nil {
		metrics.RecordMessage(ResultSent)
		return true
	}

	result := Classify(err)
	metrics.RecordMessage(result)

	attrs := []any{"result", result, "error", apperrors.NewTransportError("sendMessage", err)}
	var flood tele.FloodError
	if errors.As(err, &flood) {
		attrs = append(attrs, "retry_after", flood.RetryAfter)
	}
	if result == ResultRejected {
		log.WarnContext(ctx, "message rejected by telegram", attrs...)
	} else {
		log.ErrorContext(ctx, "message delivery failed", attrs...)
	}

	return false
}

// Classify maps a send error to a result label.
func Classify(err error) string {
	if err == nil {
		return ResultSent
	}
	if apperrors.IsOpen(err) {
		return ResultCircuitOpen
	}

	var flood tele.FloodError
	if errors.As(err, &flood) {
		return ResultThrottled
	}

	var tgErr *tele.Error
	if errors.As(err, &tgErr) {
		switch tgErr.Code {
		case 429:
			return ResultThrottled
		case 400, 403:
			return ResultRejected
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ResultTimeout
	}
	return ResultNetwork
}
