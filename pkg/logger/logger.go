// Package logger builds the process-wide slog logger.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	slogmulti "github.com/samber/slog-multi"
	slogsentry "github.com/samber/slog-sentry/v2"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/Proton-105/tasklink-bot/pkg/config"
)

var level = new(slog.LevelVar)

// New creates a slog.Logger from configuration. Records are masked, optionally
// mirrored into a rotating file, and errors are forwarded to Sentry when enabled.
func New(cfg *config.Config) (*slog.Logger, io.Closer, error) {
	if err := SetLevel(cfg.Logger.Level); err != nil {
		return nil, nil, err
	}

	var (
		out    io.Writer = os.Stdout
		closer io.Closer = nopCloser{}
	)
	if cfg.Logger.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.Logger.File,
			MaxSize:    cfg.Logger.MaxSizeMB,
			MaxBackups: cfg.Logger.MaxBackups,
			MaxAge:     cfg.Logger.MaxAgeDays,
			Compress:   true,
		}
		out = io.MultiWriter(os.Stdout, rotator)
		closer = rotator
	}

	opts := &slog.HandlerOptions{Level: level}

	var base slog.Handler
	if strings.EqualFold(cfg.Logger.Format, "text") {
		base = slog.NewTextHandler(out, opts)
	} else {
		base = slog.NewJSONHandler(out, opts)
	}

	handler := slog.Handler(NewMaskingHandler(base))
	if cfg.Sentry.Enabled {
		sentryHandler := slogsentry.Option{Level: slog.LevelError}.NewSentryHandler()
		handler = slogmulti.Fanout(handler, NewMaskingHandler(sentryHandler))
	}

	return slog.New(handler).With("env", cfg.AppEnv), closer, nil
}

// SetLevel changes the minimum level of every logger built by New.
func SetLevel(name string) error {
	var l slog.Level
	if err := l.UnmarshalText([]byte(name)); err != nil {
		return fmt.Errorf("parse log level %q: %w", name, err)
	}
	level.Set(l)
	return nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
