package binding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/Proton-105/tasklink-bot/internal/domain"
)

const (
	userKeyPattern = "binding:user:%d"
	chatKeyPattern = "binding:chat:%d"
	generationKey  = "binding:generation"

	defaultCacheTTL = 10 * time.Minute
)

// fillScript caches a loaded binding only if no invalidation ran since the load started.
var fillScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1]) or '0'
if current ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
redis.call('SET', KEYS[3], ARGV[2], 'PX', ARGV[3])
return 1
`)

// CachedStore serves binding reads from Redis and falls back to next on a miss.
// Writes go to next first, then invalidate the affected keys and bump a generation
// counter so that loads racing with the write never repopulate stale entries.
type CachedStore struct {
	next   Store
	client redis.UniversalClient
	ttl    time.Duration
	log    *slog.Logger
}

func NewCachedStore(next Store, client redis.UniversalClient, ttl time.Duration, log *slog.Logger) *CachedStore {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	if log == nil {
		log = slog.Default()
	}
	return &CachedStore{next: next, client: client, ttl: ttl, log: log}
}

func (c *CachedStore) GetByUser(ctx context.Context, userID int64) (domain.Binding, error) {
	return c.readThrough(ctx, fmt.Sprintf(userKeyPattern, userID), func() (domain.Binding, error) {
		return c.next.GetByUser(ctx, userID)
	})
}

func (c *CachedStore) GetByChat(ctx context.Context, chatID int64) (domain.Binding, error) {
	return c.readThrough(ctx, fmt.Sprintf(chatKeyPattern, chatID), func() (domain.Binding, error) {
		return c.next.GetByChat(ctx, chatID)
	})
}

func (c *CachedStore) readThrough(ctx context.Context, key string, load func() (domain.Binding, error)) (domain.Binding, error) {
	if b, ok := c.get(ctx, key); ok {
		return b, nil
	}

	gen, genErr := c.generation(ctx)

	b, err := load()
	if err != nil {
		return domain.Binding{}, err
	}

	if genErr == nil {
		c.fill(ctx, b, gen)
	}
	return b, nil
}

func (c *CachedStore) Bind(ctx context.Context, b domain.Binding) error {
	prev, prevErr := c.next.GetByUser(ctx, b.UserID)

	if err := c.next.Bind(ctx, b); err != nil {
		return err
	}

	keys := []string{
		fmt.Sprintf(userKeyPattern, b.UserID),
		fmt.Sprintf(chatKeyPattern, b.ChatID),
	}
	if prevErr == nil {
		keys = append(keys, fmt.Sprintf(chatKeyPattern, prev.ChatID))
	}
	c.invalidate(ctx, keys...)
	return nil
}

func (c *CachedStore) UnbindUser(ctx context.Context, userID int64) error {
	prev, prevErr := c.next.GetByUser(ctx, userID)

	if err := c.next.UnbindUser(ctx, userID); err != nil {
		return err
	}

	keys := []string{fmt.Sprintf(userKeyPattern, userID)}
	if prevErr == nil {
		keys = append(keys, fmt.Sprintf(chatKeyPattern, prev.ChatID))
	}
	c.invalidate(ctx, keys...)
	return nil
}

func (c *CachedStore) UnbindChat(ctx context.Context, chatID int64) (int64, error) {
	userID, err := c.next.UnbindChat(ctx, chatID)
	if err != nil {
		return 0, err
	}

	keys := []string{fmt.Sprintf(chatKeyPattern, chatID)}
	if userID != 0 {
		keys = append(keys, fmt.Sprintf(userKeyPattern, userID))
	}
	c.invalidate(ctx, keys...)
	return userID, nil
}

func (c *CachedStore) AccountName(ctx context.Context, userID int64) (string, error) {
	return c.next.AccountName(ctx, userID)
}

func (c *CachedStore) get(ctx context.Context, key string) (domain.Binding, bool) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.WarnContext(ctx, "binding cache read failed", "key", key, "error", err)
		}
		return domain.Binding{}, false
	}

	var b domain.Binding
	if err := json.Unmarshal(data, &b); err != nil {
		c.log.WarnContext(ctx, "binding cache entry corrupt", "key", key, "error", err)
		return domain.Binding{}, false
	}
	return b, true
}

func (c *CachedStore) generation(ctx context.Context) (string, error) {
	gen, err := c.client.Get(ctx, generationKey).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return "0", nil
	case err != nil:
		c.log.WarnContext(ctx, "binding cache generation read failed", "error", err)
		return "", err
	}
	return gen, nil
}

func (c *CachedStore) fill(ctx context.Context, b domain.Binding, gen string) {
	payload, err := json.Marshal(b)
	if err != nil {
		return
	}

	keys := []string{generationKey, fmt.Sprintf(userKeyPattern, b.UserID), fmt.Sprintf(chatKeyPattern, b.ChatID)}
	stored, err := fillScript.Run(ctx, c.client, keys, gen, payload, c.ttl.Milliseconds()).Int()
	if err != nil {
		c.log.WarnContext(ctx, "binding cache write failed", "user_id", b.UserID, "error", err)
		return
	}
	if stored == 0 {
		c.log.DebugContext(ctx, "binding cache fill skipped after concurrent write", "user_id", b.UserID)
	}
}

func (c *CachedStore) invalidate(ctx context.Context, keys ...string) {
	pipe := c.client.TxPipeline()
	pipe.Incr(ctx, generationKey)
	pipe.Del(ctx, keys...)
	if _, err := pipe.Exec(ctx); err != nil {
		c.log.ErrorContext(ctx, "binding cache invalidation failed", "keys", keys, "error", err)
	}
}
