package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Proton-105/tasklink-bot/internal/domain"
	apperrors "github.com/Proton-105/tasklink-bot/internal/errors"
	"github.com/Proton-105/tasklink-bot/internal/linker"
	"github.com/Proton-105/tasklink-bot/internal/notify"
)

// HeaderUserID carries the authenticated application user, set by the upstream gateway.
const HeaderUserID = "X-User-ID"

// Linker is the account-linking surface exposed over REST.
type Linker interface {
	RequestLink(ctx context.Context, userID int64) (linker.LinkOffer, error)
	StatusFor(ctx context.Context, userID int64) (linker.Status, error)
	Unbind(ctx context.Context, userID int64) error
}

// Notifier routes task events to chats.
type Notifier interface {
	Route(ctx context.Context, event domain.NotificationEvent) notify.Report
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func abortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

type handler struct {
	linker   Linker
	notifier Notifier
	errs     *apperrors.Handler
}

func userID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.GetHeader(HeaderUserID), 10, 64)
	if err != nil || id <= 0 {
		abortWithError(c, http.StatusUnauthorized, "unauthorized", "missing or invalid "+HeaderUserID)
		return 0, false
	}
	return id, true
}

func (h *handler) fail(c *gin.Context, err error) {
	_ = c.Error(err)
	msg, _ := h.errs.Handle(c.Request.Context(), err)

	var appErr *apperrors.AppError
	code := "internal"
	if errors.As(err, &appErr) {
		code = appErr.Code
	}

	switch {
	case errors.Is(err, apperrors.ErrRateLimited):
		abortWithError(c, http.StatusTooManyRequests, code, msg)
	case errors.Is(err, apperrors.ErrValidation):
		abortWithError(c, http.StatusBadRequest, code, msg)
	default:
		abortWithError(c, http.StatusInternalServerError, code, msg)
	}
}

// getLink returns the chat binding or a fresh deep link.
func (h *handler) getLink(c *gin.Context) {
	id, ok := userID(c)
	if !ok {
		return
	}

	offer, err := h.linker.RequestLink(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, offer)
}

// deleteLink unbinds the user's chat; it succeeds for unbound users.
func (h *handler) deleteLink(c *gin.Context) {
	id, ok := userID(c)
	if !ok {
		return
	}

	if err := h.linker.Unbind(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, linker.Status{Linked: false})
}

func (h *handler) getStatus(c *gin.Context) {
	id, ok := userID(c)
	if !ok {
		return
	}

	st, err := h.linker.StatusFor(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// postNotification routes one task event and returns the per-recipient report.
func (h *handler) postNotification(c *gin.Context) {
	var event domain.NotificationEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		h.fail(c, apperrors.NewValidationError(err.Error()))
		return
	}
	if err := event.Validate(); err != nil {
		h.fail(c, apperrors.NewValidationError(err.Error()))
		return
	}

	c.JSON(http.StatusOK, h.notifier.Route(c.Request.Context(), event))
}
