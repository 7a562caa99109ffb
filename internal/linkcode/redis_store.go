package linkcode

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const (
	codeKeyPrefix = "linkcode:code:"
	userKeyPrefix = "linkcode:user:"

	// keys outlive the code so Consume can still tell expired from unknown
	gcFactor = 2
)

// KEYS: user key, candidate code key
// ARGV: user id, now ms, expires ms, gc ttl ms, code, code prefix, user prefix
var issueScript = goredis.NewScript(`
local old = redis.call('GET', KEYS[1])
if old then
  local oldKey = ARGV[6] .. old
  if redis.call('HGET', oldKey, 'user_id') == ARGV[1] then
    redis.call('DEL', oldKey)
  end
  redis.call('DEL', KEYS[1])
end
local exp = redis.call('HGET', KEYS[2], 'expires_at')
if exp then
  if tonumber(exp) >= tonumber(ARGV[2]) then
    return 0
  end
  local owner = redis.call('HGET', KEYS[2], 'user_id')
  if owner and redis.call('GET', ARGV[7] .. owner) == ARGV[5] then
    redis.call('DEL', ARGV[7] .. owner)
  end
  redis.call('DEL', KEYS[2])
end
redis.call('HSET', KEYS[2], 'user_id', ARGV[1], 'expires_at', ARGV[3])
redis.call('PEXPIRE', KEYS[2], ARGV[4])
redis.call('SET', KEYS[1], ARGV[5], 'PX', ARGV[4])
return 1
`)

// KEYS: code key
// ARGV: now ms, user prefix, code
// returns {0} unknown, {1, user} live, {2, user} expired
var consumeScript = goredis.NewScript(`
local vals = redis.call('HMGET', KEYS[1], 'user_id', 'expires_at')
if not vals[1] then
  return {0}
end
redis.call('DEL', KEYS[1])
if redis.call('GET', ARGV[2] .. vals[1]) == ARGV[3] then
  redis.call('DEL', ARGV[2] .. vals[1])
end
if tonumber(ARGV[1]) > tonumber(vals[2]) then
  return {2, vals[1]}
end
return {1, vals[1]}
`)

// KEYS: code key
// ARGV: now ms, user prefix, code
var evictExpiredScript = goredis.NewScript(`
local vals = redis.call('HMGET', KEYS[1], 'user_id', 'expires_at')
if not vals[1] or tonumber(vals[2]) >= tonumber(ARGV[1]) then
  return 0
end
redis.call('DEL', KEYS[1])
if redis.call('GET', ARGV[2] .. vals[1]) == ARGV[3] then
  redis.call('DEL', ARGV[2] .. vals[1])
end
return 1
`)

// RedisStore keeps link codes in Redis so several bot processes share them.
// Expiry is decided from the stored timestamp; key TTLs only reclaim memory.
type RedisStore struct {
	client   goredis.UniversalClient
	ttl      time.Duration
	now      func() time.Time
	generate Generator
}

// NewRedisStore creates a Redis-backed store whose codes live for ttl.
func NewRedisStore(client goredis.UniversalClient, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{
		client:   client,
		ttl:      ttl,
		now:      time.Now,
		generate: RandomCode,
	}
}

func codeKey(code string) string {
	return codeKeyPrefix + code
}

func userKey(userID int64) string {
	return userKeyPrefix + strconv.FormatInt(userID, 10)
}

func (s *RedisStore) Issue(ctx context.Context, userID int64) (Entry, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)
	uid := strconv.FormatInt(userID, 10)

	for attempt := 0; attempt < maxIssueAttempts; attempt++ {
		code, err := s.generate()
		if err != nil {
			return Entry{}, err
		}

		ok, err := issueScript.Run(ctx, s.client,
			[]string{userKey(userID), codeKey(code)},
			uid,
			now.UnixMilli(),
			expiresAt.UnixMilli(),
			(s.ttl * gcFactor).Milliseconds(),
			code,
			codeKeyPrefix,
			userKeyPrefix,
		).Int()
		if err != nil {
			return Entry{}, fmt.Errorf("issue link code: %w", err)
		}
		if ok == 1 {
			return Entry{Code: code, UserID: userID, ExpiresAt: expiresAt}, nil
		}
	}

	return Entry{}, errExhausted()
}

func (s *RedisStore) Consume(ctx context.Context, code string) (int64, error) {
	if !LooksLikeCode(code) {
		return 0, errNotFound()
	}

	res, err := consumeScript.Run(ctx, s.client,
		[]string{codeKey(code)},
		s.now().UnixMilli(),
		userKeyPrefix,
		code,
	).Slice()
	if err != nil {
		return 0, fmt.Errorf("consume link code: %w", err)
	}

	status, _ := res[0].(int64)
	if status == 0 || len(res) < 2 {
		return 0, errNotFound()
	}

	raw, _ := res[1].(string)
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("consume link code: parse owner %q: %w", raw, err)
	}

	if status == 2 {
		return 0, errExpired()
	}
	return userID, nil
}

func (s *RedisStore) Sweep(ctx context.Context) (int, error) {
	now := s.now().UnixMilli()
	removed := 0

	iter := s.client.Scan(ctx, 0, codeKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		code := key[len(codeKeyPrefix):]

		n, err := evictExpiredScript.Run(ctx, s.client, []string{key}, now, userKeyPrefix, code).Int()
		if err != nil {
			return removed, fmt.Errorf("sweep link codes: %w", err)
		}
		removed += n
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("sweep link codes: %w", err)
	}

	return removed, nil
}

func (s *RedisStore) Len(ctx context.Context) (int, error) {
	count := 0
	iter := s.client.Scan(ctx, 0, codeKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("count link codes: %w", err)
	}
	return count, nil
}
