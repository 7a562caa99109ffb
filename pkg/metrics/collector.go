// Package metrics exposes the Prometheus instruments shared across the bot.
package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	updatesReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "updates_received_total",
			Help: "Inbound Telegram updates by ingestion source and outcome",
		},
		[]string{"source", "outcome"},
	)
	botCommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_commands_total",
			Help: "Total number of bot commands received labeled by command and status",
		},
		[]string{"command", "status"},
	)
	commandDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "command_duration_seconds",
			Help:    "Duration of bot commands in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"command"},
	)
	linkAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "link_attempts_total",
			Help: "Account link attempts by result",
		},
		[]string{"result"},
	)
	messagesSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_sent_total",
			Help: "Outbound Telegram messages by result",
		},
		[]string{"result"},
	)
	notificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Notification deliveries by event kind and status",
		},
		[]string{"kind", "status"},
	)
	pollFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "poll_failures_total",
			Help: "Failed getUpdates calls",
		},
	)
	pollOffset = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "poll_offset",
			Help: "Next update id requested by the long-poll loop",
		},
	)
	linkCodesLive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "link_codes_live",
			Help: "Link codes currently held by the store",
		},
	)
	errorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors split by type and severity",
		},
		[]string{"type", "severity"},
	)
)

func label(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}

// RecordUpdate counts an inbound update.
func RecordUpdate(source, outcome string) {
	updatesReceivedTotal.WithLabelValues(label(source), label(outcome)).Inc()
}

// RecordCommand increments command counters and records duration.
func RecordCommand(command, status string, duration time.Duration) {
	command = label(command)
	botCommandsTotal.WithLabelValues(command, label(status)).Inc()
	commandDurationSeconds.WithLabelValues(command).Observe(duration.Seconds())
}

// RecordLinkAttempt counts a link attempt outcome (linked, not_found, expired, conflict, error).
func RecordLinkAttempt(result string) {
	linkAttemptsTotal.WithLabelValues(label(result)).Inc()
}

// RecordMessage counts an outbound send outcome.
func RecordMessage(result string) {
	messagesSentTotal.WithLabelValues(label(result)).Inc()
}

// RecordNotification counts one routed delivery.
func RecordNotification(kind, status string) {
	notificationsTotal.WithLabelValues(label(kind), label(status)).Inc()
}

// RecordPollFailure counts a failed long-poll request.
func RecordPollFailure() {
	pollFailuresTotal.Inc()
}

// SetPollOffset publishes the long-poll cursor.
func SetPollOffset(offset int64) {
	pollOffset.Set(float64(offset))
}

// SetLinkCodesLive publishes the link-code store size.
func SetLinkCodesLive(n int) {
	linkCodesLive.Set(float64(n))
}

// RecordError increments error counters with metadata.
func RecordError(errType, severity string) {
	errorsTotal.WithLabelValues(label(errType), label(severity)).Inc()
}

// Sizer reports the number of entries held by a store.
type Sizer interface {
	Len(ctx context.Context) (int, error)
}

// CodeCollector periodically publishes the link-code store size.
type CodeCollector struct {
	store    Sizer
	interval time.Duration
	log      *slog.Logger
}

// NewCodeCollector builds a collector bound to store.
func NewCodeCollector(store Sizer, interval time.Duration, log *slog.Logger) *CodeCollector {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &CodeCollector{store: store, interval: interval, log: log}
}

// Run polls the store until ctx is cancelled.
func (c *CodeCollector) Run(ctx context.Context) {
	if c == nil || c.store == nil {
		return
	}

	for {
		c.collect(ctx)

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.interval):
		}
	}
}

func (c *CodeCollector) collect(ctx context.Context) {
	n, err := c.store.Len(ctx)
	if err != nil {
		c.log.Debug("link code gauge skipped", "error", err)
		return
	}
	SetLinkCodesLive(n)
}
