package ingest

import (
	"context"
	"log/slog"
	"time"

	tele "gopkg.in/telebot.v3"

	apperrors "github.com/Proton-105/tasklink-bot/internal/errors"
	"github.com/Proton-105/tasklink-bot/pkg/metrics"
)

const (
	// DefaultPollTimeout is the server-side long-poll wait.
	DefaultPollTimeout = 30 * time.Second

	minPollBackoff = 100 * time.Millisecond
	maxPollBackoff = 30 * time.Second
)

// Poller pulls updates with getUpdates and processes them strictly in order.
type Poller struct {
	fetcher     Fetcher
	timeout     time.Duration
	dropPending bool
	offset      int64
	backoff     *apperrors.Backoff
	sleep       func(context.Context, time.Duration) error
	log         *slog.Logger
}

// NewPoller builds a long-poll source. A non-positive timeout selects DefaultPollTimeout
// so that empty batches never turn into a busy loop.
func NewPoller(fetcher Fetcher, timeout time.Duration, dropPending bool, log *slog.Logger) *Poller {
	if timeout <= 0 {
		timeout = DefaultPollTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &Poller{
		fetcher:     fetcher,
		timeout:     timeout,
		dropPending: dropPending,
		backoff:     apperrors.NewBackoff(minPollBackoff, maxPollBackoff),
		sleep:       apperrors.Sleep,
		log:         log.With("source", "polling"),
	}
}

func (p *Poller) Name() string { return "polling" }

// Offset returns the next update id the poller will ask for.
func (p *Poller) Offset() int64 { return p.offset }

// Run removes any webhook and polls until ctx is cancelled. It returns nil on shutdown.
func (p *Poller) Run(ctx context.Context, h Handler) error {
	err := apperrors.WithRetry(ctx, func() error {
		return p.fetcher.RemoveWebhook(ctx, p.dropPending)
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		p.log.WarnContext(ctx, "remove webhook failed, polling anyway", "error", err)
	}

	p.log.InfoContext(ctx, "long polling started", "timeout", p.timeout)
	for {
		if ctx.Err() != nil {
			p.log.InfoContext(ctx, "long polling stopped", "offset", p.offset)
			return nil
		}

		updates, err := p.fetcher.GetUpdates(ctx, p.offset, p.timeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			metrics.RecordPollFailure()
			delay := p.backoff.Next()
			p.log.WarnContext(ctx, "getUpdates failed", "error", err, "retry_in", delay)
			_ = p.sleep(ctx, delay)
			continue
		}
		p.backoff.Reset()

		p.process(ctx, h, updates)
	}
}

func (p *Poller) process(ctx context.Context, h Handler, updates []tele.Update) {
	for _, u := range updates {
		if ctx.Err() != nil {
			return
		}

		id := int64(u.ID)
		if id < p.offset {
			p.log.DebugContext(ctx, "skipping already processed update", "update_id", id, "offset", p.offset)
			continue
		}

		p.offset = id + 1
		metrics.SetPollOffset(p.offset)

		deliver(ctx, p.Name(), h, u, p.log)
	}
}
