package idempotency

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSweeper deletes idempotency keys that lost their TTL or carry one longer than maxTTL.
type RedisSweeper struct {
	client redis.UniversalClient
	maxTTL time.Duration
	log    *slog.Logger
}

func NewRedisSweeper(client redis.UniversalClient, maxTTL time.Duration, log *slog.Logger) *RedisSweeper {
	if log == nil {
		log = slog.Default()
	}

	return &RedisSweeper{
		client: client,
		maxTTL: maxTTL,
		log:    log,
	}
}

// Sweep returns the number of deleted keys.
func (c *RedisSweeper) Sweep(ctx context.Context) (int, error) {
	removed := 0

	iter := c.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()

		ttl, err := c.client.TTL(ctx, key).Result()
		if err != nil {
			c.log.WarnContext(ctx, "failed to get key ttl", slog.String("key", key), slog.Any("error", err))
			continue
		}

		// -2 means the key vanished between SCAN and TTL
		if ttl == -2*time.Nanosecond || (ttl >= 0 && ttl <= c.maxTTL) {
			continue
		}

		if err := c.client.Del(ctx, key).Err(); err != nil {
			c.log.WarnContext(ctx, "failed to delete stale idempotency key", slog.String("key", key), slog.Any("error", err))
			continue
		}
		removed++
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("scan idempotency keys: %w", err)
	}

	return removed, nil
}
