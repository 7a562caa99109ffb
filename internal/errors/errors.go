// Package errors defines the application error taxonomy shared by every component.
package errors

import (
	"errors"
	"fmt"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Error codes.
const (
	CodeValidation  = "E100"
	CodeDatabase    = "E200"
	CodeExternalAPI = "E300"
	CodeNotFound    = "E410"
	CodeExpired     = "E420"
	CodeConflict    = "E430"
	CodeNotBound    = "E440"
	CodeRateLimited = "E500"
	CodeInternal    = "E900"
)

// Sentinels for errors.Is; an *AppError matches when the codes are equal.
var (
	ErrValidation  = &AppError{Code: CodeValidation, Message: "validation failed"}
	ErrDatabase    = &AppError{Code: CodeDatabase, Message: "database error"}
	ErrExternalAPI = &AppError{Code: CodeExternalAPI, Message: "external api error"}
	ErrNotFound    = &AppError{Code: CodeNotFound, Message: "not found"}
	ErrExpired     = &AppError{Code: CodeExpired, Message: "expired"}
	ErrConflict    = &AppError{Code: CodeConflict, Message: "conflict"}
	ErrNotBound    = &AppError{Code: CodeNotBound, Message: "not bound"}
	ErrRateLimited = &AppError{Code: CodeRateLimited, Message: "rate limited"}
	ErrInternal    = &AppError{Code: CodeInternal, Message: "internal error"}

	// ErrTransport and ErrParse share codes with ErrExternalAPI and ErrValidation.
	ErrTransport = &AppError{Code: CodeExternalAPI, Message: "transport error"}
	ErrParse     = &AppError{Code: CodeValidation, Message: "parse error"}
)

type AppError struct {
	Code        string
	Message     string
	UserMessage string
	Severity    Severity
	Retryable   bool
	cause       error
}

func (e *AppError) Error() string {
	if e == nil {
		return ""
	}

	return e.Message
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.cause
}

func (e *AppError) Cause() error {
	return e.Unwrap()
}

// Is reports whether target is an *AppError with the same code.
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !errors.As(target, &t) || t == nil || e == nil {
		return false
	}
	return e.Code == t.Code
}

// CodeOf returns the code of the first *AppError in err's chain.
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr != nil {
		return appErr.Code
	}
	return ""
}

func NewValidationError(msg string) *AppError {
	return &AppError{
		Code:        CodeValidation,
		Message:     msg,
		UserMessage: fmt.Sprintf("Invalid input. %s", msg),
		Severity:    SeverityLow,
	}
}

func NewDatabaseError(cause error) *AppError {
	var underlyingMsg string
	if cause != nil {
		underlyingMsg = cause.Error()
	}

	return &AppError{
		Code:        CodeDatabase,
		Message:     fmt.Sprintf("database error: %s", underlyingMsg),
		UserMessage: "Temporary problem, please try again later",
		Severity:    SeverityHigh,
		Retryable:   true,
		cause:       cause,
	}
}

func NewExternalAPIError(apiName string, cause error) *AppError {
	msg := fmt.Sprintf("external api error: %s", apiName)
	if cause != nil {
		msg = fmt.Sprintf("%s: %s", msg, cause.Error())
	}

	return &AppError{
		Code:        CodeExternalAPI,
		Message:     msg,
		UserMessage: "Service temporarily unavailable",
		Severity:    SeverityMedium,
		Retryable:   true,
		cause:       cause,
	}
}

// NewTransportError wraps a failed Telegram Bot API call.
func NewTransportError(op string, cause error) *AppError {
	return NewExternalAPIError("telegram "+op, cause)
}

// NewParseError reports a malformed inbound payload.
func NewParseError(msg string, cause error) *AppError {
	if cause != nil {
		msg = fmt.Sprintf("%s: %s", msg, cause.Error())
	}
	return &AppError{
		Code:     CodeValidation,
		Message:  msg,
		Severity: SeverityLow,
		cause:    cause,
	}
}

func NewNotFoundError(what string) *AppError {
	return &AppError{
		Code:        CodeNotFound,
		Message:     fmt.Sprintf("%s not found", what),
		UserMessage: "Nothing found",
		Severity:    SeverityLow,
	}
}

func NewExpiredError(what string) *AppError {
	return &AppError{
		Code:        CodeExpired,
		Message:     fmt.Sprintf("%s expired", what),
		UserMessage: "This has expired",
		Severity:    SeverityLow,
	}
}

func NewConflictError(msg string) *AppError {
	return &AppError{
		Code:        CodeConflict,
		Message:     msg,
		UserMessage: "This chat is already linked to another account",
		Severity:    SeverityLow,
	}
}

func NewNotBoundError(msg string) *AppError {
	return &AppError{
		Code:        CodeNotBound,
		Message:     msg,
		UserMessage: "No account is linked",
		Severity:    SeverityLow,
	}
}

func NewRateLimitError(retryAfter int) *AppError {
	return &AppError{
		Code:        CodeRateLimited,
		Message:     fmt.Sprintf("rate limit exceeded: retry after %d seconds", retryAfter),
		UserMessage: fmt.Sprintf("Too many requests. Try again in %d seconds", retryAfter),
		Severity:    SeverityLow,
	}
}

// NewInternalError reports a broken invariant inside the service, such as a recovered panic
// or data the bot expects to exist.
func NewInternalError(msg string, cause error) *AppError {
	if cause != nil {
		msg = fmt.Sprintf("%s: %s", msg, cause.Error())
	}
	return &AppError{
		Code:        CodeInternal,
		Message:     msg,
		UserMessage: "Something went wrong, please try again later",
		Severity:    SeverityCritical,
		cause:       cause,
	}
}
