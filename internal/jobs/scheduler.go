// Package jobs runs the periodic maintenance tasks of the bot.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Task is one run of a periodic job.
type Task func(ctx context.Context) error

type Scheduler interface {
	Register(name string, every time.Duration, task Task) error
	Run()
	Shutdown(ctx context.Context) error
}

type scheduler struct {
	cron    *cron.Cron
	log     *slog.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	timeout time.Duration
}

// NewScheduler builds a cron-backed scheduler. Overlapping runs of the same job are skipped
// and each run gets at most timeout to finish.
func NewScheduler(log *slog.Logger, timeout time.Duration) Scheduler {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = time.Minute
	}

	cl := cronLogger{log: log}
	ctx, cancel := context.WithCancel(context.Background())

	return &scheduler{
		cron:    cron.New(cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)), cron.WithLogger(cl)),
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
		timeout: timeout,
	}
}

func (s *scheduler) Register(name string, every time.Duration, task Task) error {
	if every <= 0 {
		return fmt.Errorf("register job %s: interval must be positive", name)
	}

	_, err := s.cron.AddFunc(fmt.Sprintf("@every %s", every), func() {
		ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
		defer cancel()

		start := time.Now()
		if err := task(ctx); err != nil {
			s.log.ErrorContext(ctx, "scheduler: job failed", "job", name, "error", err)
			return
		}
		s.log.DebugContext(ctx, "scheduler: job done", "job", name, "duration", time.Since(start))
	})
	if err != nil {
		return fmt.Errorf("register job %s: %w", name, err)
	}

	s.log.Info("scheduler: registered job", "job", name, "every", every)
	return nil
}

func (s *scheduler) Run() {
	s.log.Info("scheduler: starting")
	s.cron.Start()
}

// Shutdown stops scheduling and waits for running jobs or ctx, whichever ends first.
func (s *scheduler) Shutdown(ctx context.Context) error {
	s.log.Info("scheduler: shutting down")

	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		return ctx.Err()
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
