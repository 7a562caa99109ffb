package linkcode

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Proton-105/tasklink-bot/internal/errors"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// sequence yields the given codes in order, then falls back to random ones.
func sequence(codes ...string) Generator {
	var i int64 = -1
	return func() (string, error) {
		n := atomic.AddInt64(&i, 1)
		if int(n) < len(codes) {
			return codes[n], nil
		}
		return RandomCode()
	}
}

func setupTestRedis(t *testing.T) *goredis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

type storeFactory func(t *testing.T, clock *fakeClock, gen Generator) Store

func factories() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(t *testing.T, clock *fakeClock, gen Generator) Store {
			return NewMemoryStore(DefaultTTL, WithClock(clock.Now), WithGenerator(gen))
		},
		"redis": func(t *testing.T, clock *fakeClock, gen Generator) Store {
			s := NewRedisStore(setupTestRedis(t), DefaultTTL)
			s.now = clock.Now
			s.generate = gen
			return s
		},
	}
}

func forEachStore(t *testing.T, fn func(t *testing.T, clock *fakeClock, newStore func(Generator) Store)) {
	for name, factory := range factories() {
		factory := factory
		t.Run(name, func(t *testing.T) {
			clock := &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
			fn(t, clock, func(gen Generator) Store {
				if gen == nil {
					gen = RandomCode
				}
				return factory(t, clock, gen)
			})
		})
	}
}

func TestStore_IssueThenConsume(t *testing.T) {
	forEachStore(t, func(t *testing.T, clock *fakeClock, newStore func(Generator) Store) {
		ctx := context.Background()
		store := newStore(sequence("482913"))

		entry, err := store.Issue(ctx, 7)
		require.NoError(t, err)
		assert.Equal(t, "482913", entry.Code)
		assert.Equal(t, int64(7), entry.UserID)
		assert.Equal(t, clock.Now().Add(DefaultTTL), entry.ExpiresAt)

		userID, err := store.Consume(ctx, "482913")
		require.NoError(t, err)
		assert.Equal(t, int64(7), userID)
	})
}

func TestStore_SecondIssueInvalidatesFirst(t *testing.T) {
	forEachStore(t, func(t *testing.T, clock *fakeClock, newStore func(Generator) Store) {
		ctx := context.Background()
		store := newStore(sequence("111111", "222222"))

		first, err := store.Issue(ctx, 1)
		require.NoError(t, err)
		clock.Advance(time.Second)
		second, err := store.Issue(ctx, 1)
		require.NoError(t, err)
		require.NotEqual(t, first.Code, second.Code)

		_, err = store.Consume(ctx, first.Code)
		assert.ErrorIs(t, err, apperrors.ErrNotFound)

		userID, err := store.Consume(ctx, second.Code)
		require.NoError(t, err)
		assert.Equal(t, int64(1), userID)
	})
}

func TestStore_ConsumeIsSingleUse(t *testing.T) {
	forEachStore(t, func(t *testing.T, clock *fakeClock, newStore func(Generator) Store) {
		ctx := context.Background()
		store := newStore(nil)

		entry, err := store.Issue(ctx, 3)
		require.NoError(t, err)

		_, err = store.Consume(ctx, entry.Code)
		require.NoError(t, err)

		_, err = store.Consume(ctx, entry.Code)
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})
}

func TestStore_ExpiredCodeIsPurged(t *testing.T) {
	forEachStore(t, func(t *testing.T, clock *fakeClock, newStore func(Generator) Store) {
		ctx := context.Background()
		store := newStore(nil)

		entry, err := store.Issue(ctx, 4)
		require.NoError(t, err)

		clock.Advance(DefaultTTL)
		n, err := store.Len(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n, "still valid exactly at expires_at")

		clock.Advance(time.Millisecond)
		_, err = store.Consume(ctx, entry.Code)
		assert.ErrorIs(t, err, apperrors.ErrExpired)

		_, err = store.Consume(ctx, entry.Code)
		assert.ErrorIs(t, err, apperrors.ErrNotFound)

		n, err = store.Len(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestStore_UnknownCode(t *testing.T) {
	forEachStore(t, func(t *testing.T, clock *fakeClock, newStore func(Generator) Store) {
		_, err := newStore(nil).Consume(context.Background(), "000000")
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})
}

func TestStore_CollisionWithLiveCodeRegenerates(t *testing.T) {
	forEachStore(t, func(t *testing.T, clock *fakeClock, newStore func(Generator) Store) {
		ctx := context.Background()
		store := newStore(sequence("555555", "555555", "666666"))

		a, err := store.Issue(ctx, 1)
		require.NoError(t, err)
		b, err := store.Issue(ctx, 2)
		require.NoError(t, err)

		assert.Equal(t, "555555", a.Code)
		assert.Equal(t, "666666", b.Code)

		owner, err := store.Consume(ctx, "555555")
		require.NoError(t, err)
		assert.Equal(t, int64(1), owner)
	})
}

func TestStore_CollisionWithExpiredCodeReuses(t *testing.T) {
	forEachStore(t, func(t *testing.T, clock *fakeClock, newStore func(Generator) Store) {
		ctx := context.Background()
		store := newStore(sequence("777777", "777777", "888888"))

		_, err := store.Issue(ctx, 1)
		require.NoError(t, err)
		clock.Advance(DefaultTTL + time.Second)

		b, err := store.Issue(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, "777777", b.Code)

		// user 1 no longer owns anything; a fresh issue must not evict user 2's code
		_, err = store.Issue(ctx, 1)
		require.NoError(t, err)

		owner, err := store.Consume(ctx, "777777")
		require.NoError(t, err)
		assert.Equal(t, int64(2), owner)
	})
}

func TestStore_Sweep(t *testing.T) {
	forEachStore(t, func(t *testing.T, clock *fakeClock, newStore func(Generator) Store) {
		ctx := context.Background()
		store := newStore(sequence("100001", "100002"))

		_, err := store.Issue(ctx, 1)
		require.NoError(t, err)
		clock.Advance(DefaultTTL / 2)
		_, err = store.Issue(ctx, 2)
		require.NoError(t, err)

		clock.Advance(DefaultTTL/2 + time.Second)
		removed, err := store.Sweep(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, removed)

		n, err := store.Len(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		owner, err := store.Consume(ctx, "100002")
		require.NoError(t, err)
		assert.Equal(t, int64(2), owner)
	})
}

func TestStore_ConcurrentConsumeSucceedsOnce(t *testing.T) {
	forEachStore(t, func(t *testing.T, clock *fakeClock, newStore func(Generator) Store) {
		ctx := context.Background()
		store := newStore(nil)

		entry, err := store.Issue(ctx, 9)
		require.NoError(t, err)

		var (
			wg        sync.WaitGroup
			successes int64
		)
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := store.Consume(ctx, entry.Code); err == nil {
					atomic.AddInt64(&successes, 1)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int64(1), successes)
	})
}

func TestStore_OneLiveCodePerUserUnderConcurrency(t *testing.T) {
	forEachStore(t, func(t *testing.T, clock *fakeClock, newStore func(Generator) Store) {
		ctx := context.Background()
		store := newStore(nil)

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = store.Issue(ctx, 42)
			}()
		}
		wg.Wait()

		n, err := store.Len(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})
}

func TestStore_GeneratorExhausted(t *testing.T) {
	forEachStore(t, func(t *testing.T, clock *fakeClock, newStore func(Generator) Store) {
		ctx := context.Background()
		store := newStore(func() (string, error) { return "123123", nil })

		_, err := store.Issue(ctx, 1)
		require.NoError(t, err)

		_, err = store.Issue(ctx, 2)
		assert.Error(t, err)
	})
}

func TestRandomCode_Shape(t *testing.T) {
	for i := 0; i < 100; i++ {
		code, err := RandomCode()
		require.NoError(t, err)
		assert.True(t, LooksLikeCode(code), fmt.Sprintf("bad code %q", code))
	}
}

func TestLooksLikeCode(t *testing.T) {
	tests := map[string]bool{
		"482913":  true,
		"000000":  true,
		"48291":   false,
		"4829133": false,
		"48a913":  false,
		" 482913": false,
		"":        false,
	}
	for text, want := range tests {
		assert.Equal(t, want, LooksLikeCode(text), text)
	}
}
