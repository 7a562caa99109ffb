// Package linkcode issues and redeems short-lived single-use codes that prove chat ownership.
package linkcode

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"time"

	apperrors "github.com/Proton-105/tasklink-bot/internal/errors"
)

const (
	// CodeLength is the number of digits in a link code.
	CodeLength = 6
	// DefaultTTL bounds how long an issued code can be redeemed.
	DefaultTTL = 10 * time.Minute

	maxIssueAttempts = 16
)

var codePattern = regexp.MustCompile(`^\d{6}$`)

// LooksLikeCode reports whether text has the shape of a link code.
func LooksLikeCode(text string) bool {
	return codePattern.MatchString(text)
}

// Entry is a live link code.
type Entry struct {
	Code      string
	UserID    int64
	ExpiresAt time.Time
}

// Store holds link codes. Implementations must make Issue and Consume atomic:
// at most one live code per user and at most one successful Consume per code.
type Store interface {
	// Issue replaces any code held by userID with a fresh one.
	Issue(ctx context.Context, userID int64) (Entry, error)
	// Consume redeems code, returning ErrNotFound or ErrExpired when it cannot be used.
	Consume(ctx context.Context, code string) (int64, error)
	// Sweep drops expired entries and reports how many were removed.
	Sweep(ctx context.Context) (int, error)
	// Len reports the number of stored entries, expired ones included.
	Len(ctx context.Context) (int, error)
}

// Generator produces candidate codes.
type Generator func() (string, error)

// RandomCode returns a uniformly distributed zero-padded numeric code.
func RandomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("generate link code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func errNotFound() error {
	return apperrors.NewNotFoundError("link code")
}

func errExpired() error {
	return apperrors.NewExpiredError("link code")
}

func errExhausted() error {
	return fmt.Errorf("issue link code: no free code after %d attempts", maxIssueAttempts)
}
