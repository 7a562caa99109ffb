package ingest

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	tele "gopkg.in/telebot.v3"

	apperrors "github.com/Proton-105/tasklink-bot/internal/errors"
	"github.com/Proton-105/tasklink-bot/pkg/metrics"
)

// SecretHeader carries the webhook secret set at registration.
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

const maxWebhookBody = 1 << 20

// WebhookSource receives pushed updates over HTTP. It must be mounted on the HTTP server
// and started with Run; deliveries arriving before Run are refused with 503.
type WebhookSource struct {
	registrar Registrar
	cfg       WebhookConfig
	log       *slog.Logger

	mu      sync.Mutex
	handler Handler
}

func NewWebhookSource(registrar Registrar, cfg WebhookConfig, log *slog.Logger) *WebhookSource {
	if log == nil {
		log = slog.Default()
	}
	return &WebhookSource{
		registrar: registrar,
		cfg:       cfg,
		log:       log.With("source", "webhook"),
	}
}

func (s *WebhookSource) Name() string { return "webhook" }

// Run registers the webhook and serves deliveries until ctx is cancelled.
func (s *WebhookSource) Run(ctx context.Context, h Handler) error {
	err := apperrors.WithRetry(ctx, func() error {
		return s.registrar.SetWebhook(ctx, s.cfg)
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	s.mu.Lock()
	s.handler = h
	s.mu.Unlock()

	s.log.InfoContext(ctx, "webhook registered", "url", s.cfg.URL)
	<-ctx.Done()

	s.mu.Lock()
	s.handler = nil
	s.mu.Unlock()

	s.log.InfoContext(ctx, "webhook source stopped")
	return nil
}

// ServeHTTP acknowledges every authenticated delivery with 200 regardless of processing outcome.
func (s *WebhookSource) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if s.cfg.Secret != "" {
		got := r.Header.Get(SecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.cfg.Secret)) != 1 {
			s.log.WarnContext(r.Context(), "webhook delivery with bad secret", "remote", r.RemoteAddr)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}

	// Deliveries are processed one at a time, in arrival order.
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handler == nil {
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}

	var u tele.Update
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxWebhookBody)).Decode(&u); err != nil {
		metrics.RecordUpdate(s.Name(), OutcomeParseError)
		s.log.WarnContext(r.Context(), "malformed webhook payload", "error", apperrors.NewParseError("decode update", err))
		writeAck(w)
		return
	}

	ctx := context.WithoutCancel(r.Context())
	deliver(ctx, s.Name(), s.handler, u, s.log)
	writeAck(w)
}

func writeAck(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"ok":true}`))
}
