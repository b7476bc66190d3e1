package handlers

import (
	"errors"
	"net/http"

	"github.com/codeduel/duel-backend/internal/service"
	"github.com/codeduel/duel-backend/pkg/logger"
	"github.com/gin-gonic/gin"
)

var errorStatuses = []struct {
	err    error
	status int
}{
	{service.ErrInvalidInput, http.StatusBadRequest},
	{service.ErrSelfRequest, http.StatusBadRequest},
	{service.ErrUserNotFound, http.StatusNotFound},
	{service.ErrMatchNotFound, http.StatusNotFound},
	{service.ErrMatchRequestNotFound, http.StatusNotFound},
	{service.ErrUnauthorizedAction, http.StatusForbidden},
	{service.ErrNotFriends, http.StatusForbidden},
	{service.ErrAlreadyQueued, http.StatusConflict},
	{service.ErrAlreadyInMatch, http.StatusConflict},
	{service.ErrAlreadyResponded, http.StatusConflict},
	{service.ErrPendingRequestExists, http.StatusConflict},
	{service.ErrPendingOutgoing, http.StatusConflict},
	{service.ErrReceiverBusy, http.StatusConflict},
	{service.ErrInQueue, http.StatusConflict},
	{service.ErrExpired, http.StatusGone},
	{service.ErrNoCompatibleProblem, http.StatusUnprocessableEntity},
	{service.ErrRateLimited, http.StatusTooManyRequests},
}

// statusFor 서비스 에러에 맞는 HTTP 상태 코드
func statusFor(err error) int {
	for _, e := range errorStatuses {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	return http.StatusInternalServerError
}

// respondError 에러 응답. 5xx 는 원인을 로그로 남김
func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, gin.H{"error": service.ClientMessage(err)})
}

func pagination(c *gin.Context, defaultLimit int) (limit, offset int, ok bool) {
	var q struct {
		Limit  *int `form:"limit" binding:"omitempty,min=1"`
		Offset int  `form:"offset" binding:"min=0"`
	}
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid pagination parameters"})
		return 0, 0, false
	}
	limit = defaultLimit
	if q.Limit != nil {
		limit = *q.Limit
	}
	return limit, q.Offset, true
}
