package health

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestChecker_Check(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	mock.ExpectPing()

	checker := NewChecker(testLogger(), time.Second)
	checker.AddCheck("redis", NewRedisChecker(client))
	checker.AddCheck("database", NewDBChecker(db))
	checker.AddCheck("telegram", CheckFunc(func(context.Context) error { return errors.New("unauthorized") }))
	checker.AddCheck("", CheckFunc(func(context.Context) error { return nil }))

	report := checker.Check(context.Background())

	assert.False(t, report.Healthy)
	assert.Equal(t, map[string]string{
		"redis":    "OK",
		"database": "OK",
		"telegram": "unauthorized",
	}, report.Components)
	assert.Equal(t, []string{"database", "redis", "telegram"}, checker.Names())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChecker_HealthyWhenAllPass(t *testing.T) {
	checker := NewChecker(testLogger(), 0)
	checker.AddCheck("noop", CheckFunc(func(context.Context) error { return nil }))

	assert.True(t, checker.Check(context.Background()).Healthy)
}

func TestChecker_BoundsSlowChecks(t *testing.T) {
	checker := NewChecker(testLogger(), 20*time.Millisecond)
	checker.AddCheck("slow", CheckFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	report := checker.Check(context.Background())
	assert.False(t, report.Healthy)
	assert.Equal(t, context.DeadlineExceeded.Error(), report.Components["slow"])
}

func TestRedisChecker_Nil(t *testing.T) {
	var c *RedisChecker
	assert.ErrorIs(t, c.HealthCheck(context.Background()), goredis.ErrClosed)
}
