package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type countingSweeper struct {
	calls   int64
	removed int
	err     error
}

func (s *countingSweeper) Sweep(context.Context) (int, error) {
	atomic.AddInt64(&s.calls, 1)
	return s.removed, s.err
}

type countingCleaner struct {
	calls int64
}

func (c *countingCleaner) Cleanup(time.Time) {
	atomic.AddInt64(&c.calls, 1)
}

func TestScheduler_RunsRegisteredJobs(t *testing.T) {
	s := NewScheduler(testLogger(), time.Second)
	sweeper := &countingSweeper{removed: 2}

	require.NoError(t, s.Register("linkcodes", time.Second, SweepTask("linkcodes", sweeper, testLogger())))
	s.Run()
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })

	assert.Eventually(t, func() bool {
		return atomic.LoadInt64(&sweeper.calls) >= 1
	}, 3*time.Second, 50*time.Millisecond)
}

func TestScheduler_RejectsNonPositiveInterval(t *testing.T) {
	s := NewScheduler(testLogger(), time.Second)
	assert.Error(t, s.Register("bad", 0, CleanupTask(&countingCleaner{})))
}

func TestSweepTask_PropagatesError(t *testing.T) {
	task := SweepTask("linkcodes", &countingSweeper{err: errors.New("redis down")}, testLogger())
	assert.Error(t, task(context.Background()))
}

func TestCleanupTask(t *testing.T) {
	c := &countingCleaner{}
	require.NoError(t, CleanupTask(c)(context.Background()))
	assert.Equal(t, int64(1), c.calls)
}

func TestScheduler_ShutdownHonoursContext(t *testing.T) {
	s := NewScheduler(testLogger(), time.Second)
	s.Run()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Shutdown(ctx))
}
