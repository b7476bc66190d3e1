package handlers

import (
	"context"
	"net/http"

	"github.com/codeduel/duel-backend/internal/models"
	"github.com/gin-gonic/gin"
)

// LeaderboardReader Elo 순위 조회
type LeaderboardReader interface {
	GetLeaderboard(ctx context.Context, limit, offset int) ([]models.LeaderboardEntry, error)
}

type LeaderboardHandler struct {
	users LeaderboardReader
}

func NewLeaderboardHandler(users LeaderboardReader) *LeaderboardHandler {
	return &LeaderboardHandler{users: users}
}

// GetLeaderboard Elo 순위 (limit 기본 50, offset)
func (h *LeaderboardHandler) GetLeaderboard(c *gin.Context) {
	limit, offset, ok := pagination(c, 50)
	if !ok {
		return
	}

	entries, err := h.users.GetLeaderboard(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	if entries == nil {
		entries = []models.LeaderboardEntry{}
	}

	c.JSON(http.StatusOK, gin.H{
		"leaderboard": entries,
		"total":       len(entries),
	})
}
