package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Proton-105/tasklink-bot/internal/binding"
	"github.com/Proton-105/tasklink-bot/internal/database"
	"github.com/Proton-105/tasklink-bot/internal/health"
	"github.com/Proton-105/tasklink-bot/internal/idempotency"
	"github.com/Proton-105/tasklink-bot/internal/jobs"
	"github.com/Proton-105/tasklink-bot/internal/lifecycle"
	"github.com/Proton-105/tasklink-bot/internal/linkcode"
	"github.com/Proton-105/tasklink-bot/internal/ratelimit"
	"github.com/Proton-105/tasklink-bot/pkg/config"
	redisclient "github.com/Proton-105/tasklink-bot/pkg/redis"
)

const (
	limiterIdle      = time.Hour
	cleanupInterval  = 5 * time.Minute
	redisSweepPeriod = 10 * time.Minute
)

type stores struct {
	bindings    binding.Store
	codes       linkcode.Store
	limiter     ratelimit.Limiter
	rules       *ratelimit.Rules
	idempotency idempotency.Manager
}

// openStores connects the configured backends and registers their health checks,
// maintenance jobs and shutdown hooks.
func openStores(
	ctx context.Context,
	cfg *config.Config,
	log *slog.Logger,
	shutdown *lifecycle.Shutdown,
	checker *health.Checker,
	scheduler jobs.Scheduler,
) (*stores, error) {
	var st stores

	var rdb *redisclient.Client
	if cfg.Redis.Enabled {
		var err error
		rdb, err = redisclient.New(ctx, redisclient.ConfigFrom(cfg.Redis))
		if err != nil {
			return nil, err
		}
		checker.AddCheck("redis", health.NewRedisChecker(rdb))
		shutdown.Register(lifecycle.PhaseStores, "redis", func(context.Context) error { return rdb.Close() })
	}

	if cfg.Database.Enabled() {
		db, err := database.Open(ctx, cfg.Database.DSN())
		if err != nil {
			return nil, err
		}
		shutdown.Register(lifecycle.PhaseStores, "database", func(context.Context) error { return db.Close() })

		if err := database.NewMigrator(db, log).Apply(ctx, database.Migrations, database.MigrationsRoot); err != nil {
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
		checker.AddCheck("database", health.NewDBChecker(db))
		st.bindings = binding.NewPostgresStore(db, log)
	} else {
		log.Warn("no database configured, bindings are kept in memory")
		st.bindings = binding.NewMemoryStore()
	}
	if rdb != nil && cfg.Redis.BindingCacheTTL > 0 {
		st.bindings = binding.NewCachedStore(st.bindings, rdb, cfg.Redis.BindingCacheTTL, log)
	}

	switch cfg.Link.Store {
	case config.StoreRedis:
		if rdb == nil {
			return nil, errors.New("link.store is redis but redis is disabled")
		}
		st.codes = linkcode.NewRedisStore(rdb, cfg.Link.CodeTTL)
	default:
		st.codes = linkcode.NewMemoryStore(cfg.Link.CodeTTL)
	}
	if err := scheduler.Register("linkcode_sweep", cfg.Link.SweepInterval, jobs.SweepTask("linkcode", st.codes, log)); err != nil {
		return nil, err
	}

	rules, err := ratelimit.NewRules(cfg.RateLimit)
	if err != nil {
		return nil, fmt.Errorf("rate limit rules: %w", err)
	}
	st.rules = rules

	memLimiter := ratelimit.NewMemoryLimiter(limiterIdle, log)
	if err := scheduler.Register("ratelimit_cleanup", cleanupInterval, jobs.CleanupTask(memLimiter)); err != nil {
		return nil, err
	}
	st.limiter = memLimiter

	idemMemory := idempotency.NewMemoryStore()
	var idemStore idempotency.Store = idemMemory

	if rdb != nil {
		st.limiter = ratelimit.NewAdaptiveLimiter(ratelimit.NewRedisLimiter(rdb, log), memLimiter, log)
		window := max(rules.Inbound.Window, rules.LinkIssue.Window)
		sweeper := ratelimit.NewRedisSweeper(rdb, window, log)
		if err := scheduler.Register("ratelimit_sweep", redisSweepPeriod, jobs.SweepTask("ratelimit", sweeper, log)); err != nil {
			return nil, err
		}

		idemStore = idempotency.NewRedisStore(rdb, log)
		idemSweeper := idempotency.NewRedisSweeper(rdb, cfg.Idempotency.TTL, log)
		if err := scheduler.Register("idempotency_sweep", redisSweepPeriod, jobs.SweepTask("idempotency", idemSweeper, log)); err != nil {
			return nil, err
		}
	} else if err := scheduler.Register("idempotency_cleanup", cleanupInterval, jobs.CleanupTask(idemMemory)); err != nil {
		return nil, err
	}
	st.idempotency = idempotency.NewManager(idemStore, log)

	return &st, nil
}
