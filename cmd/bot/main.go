package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/Proton-105/tasklink-bot/internal/bot"
	apperrors "github.com/Proton-105/tasklink-bot/internal/errors"
	"github.com/Proton-105/tasklink-bot/internal/health"
	"github.com/Proton-105/tasklink-bot/internal/httpapi"
	"github.com/Proton-105/tasklink-bot/internal/i18n"
	"github.com/Proton-105/tasklink-bot/internal/ingest"
	"github.com/Proton-105/tasklink-bot/internal/jobs"
	"github.com/Proton-105/tasklink-bot/internal/lifecycle"
	"github.com/Proton-105/tasklink-bot/internal/linker"
	"github.com/Proton-105/tasklink-bot/internal/messenger"
	"github.com/Proton-105/tasklink-bot/internal/notify"
	"github.com/Proton-105/tasklink-bot/pkg/config"
	"github.com/Proton-105/tasklink-bot/pkg/graceful"
	"github.com/Proton-105/tasklink-bot/pkg/logger"
	"github.com/Proton-105/tasklink-bot/pkg/metrics"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "tasklink-bot:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, v, err := config.Load()
	if err != nil {
		return err
	}

	log, logCloser, err := logger.New(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logCloser.Close()
	slog.SetDefault(log)

	if cfg.Sentry.Enabled {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Sentry.DSN,
			Environment: cfg.AppEnv,
			SampleRate:  cfg.Sentry.SampleRate,
		}); err != nil {
			return fmt.Errorf("init sentry: %w", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	config.Watch(v, log, func(next *config.Config) {
		if err := logger.SetLevel(next.Logger.Level); err != nil {
			log.Warn("log level not applied", "error", err)
		}
	})

	log.Info("starting tasklink bot", "mode", cfg.Bot.Mode, "link_store", cfg.Link.Store, "addr", cfg.Server.Addr())

	shutdown := lifecycle.NewShutdown(log)
	checker := health.NewChecker(log, 3*time.Second)
	scheduler := jobs.NewScheduler(log, time.Minute)

	st, err := openStores(ctx, cfg, log, shutdown, checker, scheduler)
	if err != nil {
		_ = shutdown.Execute(context.Background())
		return err
	}

	translations, err := i18n.Load(cfg.Bot.Language)
	if err != nil {
		return fmt.Errorf("load translations: %w", err)
	}
	tr := translations.Translator(cfg.Bot.Language)

	client, err := bot.NewClient(cfg.Bot, log)
	if err != nil {
		return err
	}
	checker.AddCheck("telegram", client)

	errHandler := apperrors.NewHandler(log, cfg.Sentry.Enabled)
	dispatcher := messenger.NewDispatcher(client, cfg.Notify.SendTimeout, log)
	service := linker.NewService(st.codes, st.bindings, cfg.Bot.Username, log,
		linker.WithIssueLimit(st.limiter, st.rules.LinkIssue))
	notifier := notify.NewRouter(st.bindings, dispatcher, tr, cfg.Notify.CommentMaxLen, log)

	var (
		source  ingest.UpdateSource
		webhook http.Handler
	)
	if cfg.Bot.Mode == config.ModeWebhook {
		ws := ingest.NewWebhookSource(client, ingest.WebhookConfig{
			URL:         cfg.Bot.WebhookURL,
			Secret:      cfg.Bot.WebhookSecret,
			DropPending: cfg.Bot.DropPending,
		}, log)
		source, webhook = ws, ws
	} else {
		source = ingest.NewPoller(client, cfg.Bot.PollTimeout, cfg.Bot.DropPending, log)
	}

	tgBot := bot.New(source, cfg.Bot.Username, bot.Deps{
		Linker:         service,
		Sender:         dispatcher,
		Translator:     tr,
		ErrHandler:     errHandler,
		Idempotency:    st.idempotency,
		IdempotencyTTL: cfg.Idempotency.TTL,
		Limiter:        st.limiter,
		Rules:          st.rules,
	}, log)

	engine := httpapi.NewRouter(httpapi.Deps{
		Linker:      service,
		Notifier:    notifier,
		ErrHandler:  errHandler,
		Webhook:     webhook,
		Health:      checker,
		InternalKey: cfg.Server.InternalKey,
	}, log)

	srv := graceful.NewServer(log, &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}, cfg.Server.ShutdownTimeout)

	serveErr, err := srv.Start()
	if err != nil {
		_ = shutdown.Execute(context.Background())
		return fmt.Errorf("start http server: %w", err)
	}

	bgCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()

	var ingestErr error
	ingestDone := make(chan struct{})
	go func() {
		defer close(ingestDone)
		ingestErr = tgBot.Run(bgCtx)
	}()

	go metrics.NewCodeCollector(st.codes, time.Minute, log).Run(bgCtx)
	scheduler.Run()

	shutdown.Register(lifecycle.PhaseIngestion, "ingestion", func(ctx context.Context) error {
		stopBackground()
		select {
		case <-ingestDone:
			return ingestErr
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	shutdown.Register(lifecycle.PhaseHTTP, "http", srv.Shutdown)
	shutdown.Register(lifecycle.PhaseJobs, "scheduler", scheduler.Shutdown)

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serveErr:
		runErr = fmt.Errorf("http server: %w", err)
	case <-ingestDone:
		if ingestErr != nil {
			runErr = fmt.Errorf("update ingestion: %w", ingestErr)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := shutdown.Execute(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("shutdown finished with errors", "error", err)
		if runErr == nil {
			runErr = err
		}
	}

	log.Info("tasklink bot stopped")
	return runErr
}
