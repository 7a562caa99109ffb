package messenger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	tele "gopkg.in/telebot.v3"

	apperrors "github.com/Proton-105/tasklink-bot/internal/errors"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type mockTransport struct {
	mock.Mock
}

func (m *mockTransport) SendText(ctx context.Context, chatID int64, text string, opts SendOptions) error {
	args := m.Called(ctx, chatID, text, opts)
	return args.Error(0)
}

type blockingTransport struct{}

func (blockingTransport) SendText(ctx context.Context, _ int64, _ string, _ SendOptions) error {
	<-ctx.Done()
	return ctx.Err()
}

type panickingTransport struct{}

func (panickingTransport) SendText(context.Context, int64, string, SendOptions) error {
	panic("boom")
}

func TestDispatcher_Send(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "delivered", err: nil, want: true},
		{name: "chat not found", err: tele.ErrChatNotFound, want: false},
		{name: "blocked", err: fmt.Errorf("telebot: %w", tele.ErrBlockedByUser), want: false},
		{name: "network", err: errors.New("dial tcp: connection refused"), want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tr := &mockTransport{}
			tr.On("SendText", mock.Anything, int64(555), "hello", SendOptions{DisablePreview: true}).Return(tc.err).Once()

			d := NewDispatcher(tr, time.Second, testLogger())
			assert.Equal(t, tc.want, d.Send(context.Background(), 555, "hello", WithoutPreview()))
			tr.AssertExpectations(t)
		})
	}
}

func TestDispatcher_SendTimesOut(t *testing.T) {
	d := NewDispatcher(blockingTransport{}, 20*time.Millisecond, testLogger())

	start := time.Now()
	assert.False(t, d.Send(context.Background(), 1, "hi"))
	assert.Less(t, time.Since(start), time.Second)
}

func TestDispatcher_SendRecoversPanics(t *testing.T) {
	d := NewDispatcher(panickingTransport{}, time.Second, testLogger())
	assert.False(t, d.Send(context.Background(), 1, "hi"))
}

func TestDispatcher_BreakerOpensOnNetworkFailures(t *testing.T) {
	tr := &mockTransport{}
	tr.On("SendText", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("connection reset"))

	d := NewDispatcher(tr, time.Second, testLogger())
	for i := 0; i < apperrors.MinRequests; i++ {
		d.Send(context.Background(), 1, "hi")
	}

	assert.Equal(t, apperrors.StateOpen, d.breaker.State())
	assert.False(t, d.Send(context.Background(), 1, "hi"))
	tr.AssertNumberOfCalls(t, "SendText", apperrors.MinRequests)
}

func TestDispatcher_RejectionsDoNotOpenBreaker(t *testing.T) {
	tr := &mockTransport{}
	tr.On("SendText", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(tele.ErrBlockedByUser)

	d := NewDispatcher(tr, time.Second, testLogger())
	for i := 0; i < apperrors.MinRequests*2; i++ {
		d.Send(context.Background(), 1, "hi")
	}

	assert.Equal(t, apperrors.StateClosed, d.breaker.State())
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ResultSent},
		{tele.FloodError{RetryAfter: 3}, ResultThrottled},
		{tele.NewError(429, "Too Many Requests"), ResultThrottled},
		{tele.ErrChatNotFound, ResultRejected},
		{tele.ErrBlockedByUser, ResultRejected},
		{context.DeadlineExceeded, ResultTimeout},
		{fmt.Errorf("send: %w", apperrors.ErrCircuitOpen), ResultCircuitOpen},
		{errors.New("eof"), ResultNetwork},
	}

	for i, tc := range tests {
		assert.Equal(t, tc.want, Classify(tc.err), "case %d", i)
	}
}
