package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSweeper removes stale entries from rate-limit keys that outlived their traffic.
type RedisSweeper struct {
	client redis.UniversalClient
	maxAge time.Duration
	log    *slog.Logger
}

// NewRedisSweeper constructs a sweeper dropping window entries older than maxAge.
func NewRedisSweeper(client redis.UniversalClient, maxAge time.Duration, log *slog.Logger) *RedisSweeper {
	if log == nil {
		log = slog.Default()
	}
	if maxAge <= 0 {
		maxAge = time.Hour
	}

	return &RedisSweeper{
		client: client,
		maxAge: maxAge,
		log:    log,
	}
}

// Sweep trims every rate-limit key and deletes the ones left empty. It returns the number of deleted keys.
func (c *RedisSweeper) Sweep(ctx context.Context) (int, error) {
	const scanCount = 100

	cutoff := float64(time.Now().Add(-c.maxAge).UnixNano()) / float64(time.Millisecond)
	cleaned := 0

	iter := c.client.Scan(ctx, 0, keyPrefix+"*", scanCount).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()

		pipe := c.client.TxPipeline()
		pipe.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("(%f", cutoff))
		cardCmd := pipe.ZCard(ctx, key)
		if _, err := pipe.Exec(ctx); err != nil {
			c.log.WarnContext(ctx, "cleanup pipeline failed", slog.String("key", key), slog.Any("error", err))
			continue
		}

		if cardCmd.Val() == 0 {
			if err := c.client.Del(ctx, key).Err(); err != nil {
				c.log.WarnContext(ctx, "failed to delete empty rate limit key", slog.String("key", key), slog.Any("error", err))
				continue
			}
			cleaned++
		}
	}
	if err := iter.Err(); err != nil {
		return cleaned, fmt.Errorf("scan rate limit keys: %w", err)
	}

	return cleaned, nil
}
