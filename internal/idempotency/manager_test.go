package idempotency

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func stores(t *testing.T) map[string]Store {
	_, client := setupTestRedis(t)
	return map[string]Store{
		"memory": NewMemoryStore(),
		"redis":  NewRedisStore(client, testLogger()),
	}
}

func TestManager_RunsOnce(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			m := NewManager(store, testLogger())
			ctx := context.Background()
			calls := 0
			op := func(context.Context) (interface{}, error) {
				calls++
				return "done", nil
			}

			res, err := m.Execute(ctx, "update:1", time.Hour, op)
			require.NoError(t, err)
			assert.False(t, res.FromCache)

			res, err = m.Execute(ctx, "update:1", time.Hour, op)
			require.NoError(t, err)
			assert.True(t, res.FromCache)
			assert.Equal(t, "done", res.Response)
			assert.Equal(t, 1, calls)
		})
	}
}

func TestManager_FailureAllowsRetry(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			m := NewManager(store, testLogger())
			ctx := context.Background()
			boom := errors.New("boom")

			_, err := m.Execute(ctx, "update:2", time.Hour, func(context.Context) (interface{}, error) {
				return nil, boom
			})
			assert.ErrorIs(t, err, boom)

			res, err := m.Execute(ctx, "update:2", time.Hour, func(context.Context) (interface{}, error) {
				return nil, nil
			})
			require.NoError(t, err)
			assert.False(t, res.FromCache)
		})
	}
}

func TestManager_InProgress(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			locked, err := store.Lock(ctx, "update:3", time.Minute)
			require.NoError(t, err)
			require.True(t, locked)

			_, err = NewManager(store, testLogger()).Execute(ctx, "update:3", time.Hour, func(context.Context) (interface{}, error) {
				t.Fatal("must not run")
				return nil, nil
			})
			assert.ErrorIs(t, err, ErrRequestInProgress)
		})
	}
}

func TestMemoryStore_Cleanup(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewMemoryStore()
	s.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", &Record{Status: StatusCompleted}, time.Minute))
	_, err := s.Lock(ctx, "l", time.Minute)
	require.NoError(t, err)

	s.Cleanup(now.Add(2 * time.Minute))
	assert.Empty(t, s.records)
	assert.Empty(t, s.locks)
}

func TestRedisSweeper(t *testing.T) {
	mr, client := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, mr.Set(keyPrefix+"no-ttl", "x"))
	require.NoError(t, mr.Set(keyPrefix+"ok", "x"))
	mr.SetTTL(keyPrefix+"ok", time.Hour)
	require.NoError(t, mr.Set(keyPrefix+"too-long", "x"))
	mr.SetTTL(keyPrefix+"too-long", 72*time.Hour)

	removed, err := NewRedisSweeper(client, 25*time.Hour, testLogger()).Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.True(t, mr.Exists(keyPrefix+"ok"))
}

func TestUpdateKey_Deterministic(t *testing.T) {
	assert.Equal(t, UpdateKey(42), UpdateKey(42))
	assert.NotEqual(t, UpdateKey(42), UpdateKey(43))
	assert.Len(t, UpdateKey(42), 64)
}
