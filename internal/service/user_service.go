package service

import (
	"context"

	"github.com/codeduel/duel-backend/internal/models"
)

const (
	defaultLeaderboardLimit = 50
	maxLeaderboardLimit     = 100
)

type UserService struct {
	users UserStore
}

func NewUserService(users UserStore) *UserService {
	return &UserService{users: users}
}

// GetLeaderboard Elo 순위 (페이지 단위)
func (s *UserService) GetLeaderboard(ctx context.Context, limit, offset int) ([]models.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = defaultLeaderboardLimit
	}
	if limit > maxLeaderboardLimit {
		limit = maxLeaderboardLimit
	}
	if offset < 0 {
		offset = 0
	}

	entries, err := s.users.Leaderboard(ctx, limit, offset)
	if err != nil {
		return nil, persistenceError("load leaderboard", err)
	}
	return entries, nil
}
