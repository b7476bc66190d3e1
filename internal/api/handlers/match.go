package handlers

import (
	"context"
	"net/http"

	"github.com/codeduel/duel-backend/internal/api/middleware"
	"github.com/codeduel/duel-backend/internal/models"
	"github.com/gin-gonic/gin"
)

// MatchResults 완료된 매치 조회
type MatchResults interface {
	GetMatchResult(ctx context.Context, matchID string) (*models.MatchResultView, error)
	GetUserHistory(ctx context.Context, userID string, limit, offset int) ([]models.HistoryEntry, error)
}

type MatchHandler struct {
	matches MatchResults
}

func NewMatchHandler(matches MatchResults) *MatchHandler {
	return &MatchHandler{matches: matches}
}

// GetMatch 매치 결과 조회. 진행 중인 매치는 404
func (h *MatchHandler) GetMatch(c *gin.Context) {
	result, err := h.matches.GetMatchResult(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetHistory 로그인한 사용자의 매치 기록
func (h *MatchHandler) GetHistory(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	limit, offset, ok := pagination(c, 10)
	if !ok {
		return
	}

	history, err := h.matches.GetUserHistory(c.Request.Context(), userID, limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"matches": history,
		"total":   len(history),
	})
}
