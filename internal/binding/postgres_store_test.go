package binding

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/tasklink-bot/internal/domain"
	apperrors "github.com/Proton-105/tasklink-bot/internal/errors"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newPostgresStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s := NewPostgresStore(db, testLogger())
	s.now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }
	return s, mock
}

func TestPostgresStore_GetByUser(t *testing.T) {
	s, mock := newPostgresStore(t)
	linkedAt := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(selectByUser)).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "telegram_chat_id", "telegram_display_name", "telegram_linked_at"}).
			AddRow(int64(1), int64(555), "Alice", linkedAt))

	b, err := s.GetByUser(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, domain.Binding{UserID: 1, ChatID: 555, DisplayName: "Alice", LinkedAt: linkedAt}, b)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetByChat_NotBound(t *testing.T) {
	s, mock := newPostgresStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(selectByChat)).
		WithArgs(int64(555)).
		WillReturnError(sql.ErrNoRows)

	_, err := s.GetByChat(context.Background(), 555)
	assert.ErrorIs(t, err, apperrors.ErrNotBound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetByUser_DatabaseError(t *testing.T) {
	s, mock := newPostgresStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(selectByUser)).
		WithArgs(int64(1)).
		WillReturnError(errors.New("connection refused"))

	_, err := s.GetByUser(context.Background(), 1)
	assert.ErrorIs(t, err, apperrors.ErrDatabase)
}

func TestPostgresStore_Bind(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(mock sqlmock.Sqlmock)
		wantErr error
	}{
		{
			name: "free chat",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery(regexp.QuoteMeta(lockChatOwner)).WithArgs(int64(555)).WillReturnError(sql.ErrNoRows)
				mock.ExpectExec(regexp.QuoteMeta(updateBinding)).
					WithArgs(int64(555), "Alice", time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC), int64(1)).
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectCommit()
			},
		},
		{
			name: "chat already owned by same user",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery(regexp.QuoteMeta(lockChatOwner)).WithArgs(int64(555)).
					WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
				mock.ExpectExec(regexp.QuoteMeta(updateBinding)).WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectCommit()
			},
		},
		{
			name: "chat owned by another user",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery(regexp.QuoteMeta(lockChatOwner)).WithArgs(int64(555)).
					WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(2)))
				mock.ExpectRollback()
			},
			wantErr: apperrors.ErrConflict,
		},
		{
			name: "unique violation from concurrent bind",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery(regexp.QuoteMeta(lockChatOwner)).WithArgs(int64(555)).WillReturnError(sql.ErrNoRows)
				mock.ExpectExec(regexp.QuoteMeta(updateBinding)).WillReturnError(&pq.Error{Code: uniqueViolation})
				mock.ExpectRollback()
			},
			wantErr: apperrors.ErrConflict,
		},
		{
			name: "unknown user",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery(regexp.QuoteMeta(lockChatOwner)).WithArgs(int64(555)).WillReturnError(sql.ErrNoRows)
				mock.ExpectExec(regexp.QuoteMeta(updateBinding)).WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectRollback()
			},
			wantErr: apperrors.ErrInternal,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s, mock := newPostgresStore(t)
			tc.setup(mock)

			err := s.Bind(context.Background(), domain.Binding{UserID: 1, ChatID: 555, DisplayName: "Alice"})
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgresStore_UnbindChat(t *testing.T) {
	s, mock := newPostgresStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(clearByChat)).WithArgs(int64(555)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectQuery(regexp.QuoteMeta(clearByChat)).WithArgs(int64(555)).
		WillReturnError(sql.ErrNoRows)

	userID, err := s.UnbindChat(context.Background(), 555)
	require.NoError(t, err)
	assert.Equal(t, int64(1), userID)

	userID, err = s.UnbindChat(context.Background(), 555)
	require.NoError(t, err)
	assert.Zero(t, userID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UnbindUser(t *testing.T) {
	s, mock := newPostgresStore(t)

	mock.ExpectExec(regexp.QuoteMeta(clearByUser)).WithArgs(int64(1)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(clearByUser)).WithArgs(int64(1)).WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.UnbindUser(context.Background(), 1))
	require.NoError(t, s.UnbindUser(context.Background(), 1))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AccountName(t *testing.T) {
	s, mock := newPostgresStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(selectName)).WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("Alice Smith"))
	mock.ExpectQuery(regexp.QuoteMeta(selectName)).WithArgs(int64(2)).
		WillReturnError(sql.ErrNoRows)

	name, err := s.AccountName(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Alice Smith", name)

	name, err = s.AccountName(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, "user #2", name)
}
