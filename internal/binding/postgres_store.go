package binding

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/Proton-105/tasklink-bot/internal/domain"
	apperrors "github.com/Proton-105/tasklink-bot/internal/errors"
)

const (
	selectByUser = `
		SELECT id, telegram_chat_id, COALESCE(telegram_display_name, ''), COALESCE(telegram_linked_at, now())
		FROM users
		WHERE id = $1 AND telegram_chat_id IS NOT NULL
	`
	selectByChat = `
		SELECT id, telegram_chat_id, COALESCE(telegram_display_name, ''), COALESCE(telegram_linked_at, now())
		FROM users
		WHERE telegram_chat_id = $1
	`
	lockChatOwner = `SELECT id FROM users WHERE telegram_chat_id = $1 FOR UPDATE`
	updateBinding = `
		UPDATE users
		SET telegram_chat_id = $1, telegram_display_name = NULLIF($2, ''), telegram_linked_at = $3
		WHERE id = $4
	`
	clearByUser = `
		UPDATE users
		SET telegram_chat_id = NULL, telegram_display_name = NULL, telegram_linked_at = NULL
		WHERE id = $1
	`
	clearByChat = `
		UPDATE users
		SET telegram_chat_id = NULL, telegram_display_name = NULL, telegram_linked_at = NULL
		WHERE telegram_chat_id = $1
		RETURNING id
	`
	selectName = `SELECT name FROM users WHERE id = $1`

	uniqueViolation = "23505"
)

// PostgresStore keeps bindings as columns of the users table.
type PostgresStore struct {
	db  *sql.DB
	log *slog.Logger
	now func() time.Time
}

func NewPostgresStore(db *sql.DB, log *slog.Logger) *PostgresStore {
	if log == nil {
		log = slog.Default()
	}
	return &PostgresStore{db: db, log: log, now: time.Now}
}

func (s *PostgresStore) GetByUser(ctx context.Context, userID int64) (domain.Binding, error) {
	b, err := s.scanOne(ctx, selectByUser, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Binding{}, errNotBound("user", userID)
	}
	if err != nil {
		return domain.Binding{}, fmt.Errorf("select binding by user: %w", apperrors.NewDatabaseError(err))
	}
	return b, nil
}

func (s *PostgresStore) GetByChat(ctx context.Context, chatID int64) (domain.Binding, error) {
	b, err := s.scanOne(ctx, selectByChat, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Binding{}, errNotBound("chat", chatID)
	}
	if err != nil {
		return domain.Binding{}, fmt.Errorf("select binding by chat: %w", apperrors.NewDatabaseError(err))
	}
	return b, nil
}

func (s *PostgresStore) scanOne(ctx context.Context, query string, arg int64) (domain.Binding, error) {
	var b domain.Binding
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&b.UserID, &b.ChatID, &b.DisplayName, &b.LinkedAt)
	return b, err
}

// Bind locks the current owner of the chat, rejects foreign owners and moves the user's binding.
// The partial unique index on telegram_chat_id closes the race between two first-time binds.
func (s *PostgresStore) Bind(ctx context.Context, b domain.Binding) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin bind: %w", apperrors.NewDatabaseError(err))
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				s.log.ErrorContext(ctx, "bind rollback failed", "error", rbErr)
			}
		}
	}()

	var owner int64
	switch scanErr := tx.QueryRowContext(ctx, lockChatOwner, b.ChatID).Scan(&owner); {
	case errors.Is(scanErr, sql.ErrNoRows):
	case scanErr != nil:
		return fmt.Errorf("lock chat owner: %w", apperrors.NewDatabaseError(scanErr))
	case owner != b.UserID:
		return errConflict(b.ChatID)
	}

	linkedAt := b.LinkedAt
	if linkedAt.IsZero() {
		linkedAt = s.now()
	}

	res, err := tx.ExecContext(ctx, updateBinding, b.ChatID, b.DisplayName, linkedAt, b.UserID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return errConflict(b.ChatID)
		}
		return fmt.Errorf("update binding: %w", apperrors.NewDatabaseError(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NewInternalError(fmt.Sprintf("bind: user %d has no account row", b.UserID), nil)
	}

	if err = tx.Commit(); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return errConflict(b.ChatID)
		}
		return fmt.Errorf("commit bind: %w", apperrors.NewDatabaseError(err))
	}

	return nil
}

func (s *PostgresStore) UnbindUser(ctx context.Context, userID int64) error {
	if _, err := s.db.ExecContext(ctx, clearByUser, userID); err != nil {
		return fmt.Errorf("clear binding by user: %w", apperrors.NewDatabaseError(err))
	}
	return nil
}

func (s *PostgresStore) UnbindChat(ctx context.Context, chatID int64) (int64, error) {
	var userID int64
	err := s.db.QueryRowContext(ctx, clearByChat, chatID).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("clear binding by chat: %w", apperrors.NewDatabaseError(err))
	}
	return userID, nil
}

func (s *PostgresStore) AccountName(ctx context.Context, userID int64) (string, error) {
	var name string
	err := s.db.QueryRowContext(ctx, selectName, userID).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && name == "") {
		return fallbackName(userID), nil
	}
	if err != nil {
		return "", fmt.Errorf("select account name: %w", apperrors.NewDatabaseError(err))
	}
	return name, nil
}
